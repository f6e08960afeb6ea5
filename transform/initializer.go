package transform

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/xshoji/go-img-reg/geometry"
	"github.com/xshoji/go-img-reg/imageutil"
)

// ErrZeroMass は輝度の総和が0で重心が求まらない場合に返される
var ErrZeroMass = errors.New("image has zero total intensity")

// InitMode は初期化方式
type InitMode int

const (
	// ModeGeometry は画像の幾何学的中心を用いる
	ModeGeometry InitMode = iota
	// ModeMoments は輝度の重心を用いる
	ModeMoments
)

func (m InitMode) String() string {
	if m == ModeMoments {
		return "moments"
	}
	return "geometry"
}

// InitializeCentered は変換の回転中心を固定画像の中心に、平行移動を両画像の中心の差に設定する
func InitializeCentered(t Centered, fixed, moving *imageutil.FloatImage, mode InitMode) error {
	if fixed.Empty() || moving.Empty() {
		return imageutil.ErrEmptyImage
	}

	var fixedCenter, movingCenter geometry.Point2D
	switch mode {
	case ModeGeometry:
		fixedCenter = fixed.Center()
		movingCenter = moving.Center()
	case ModeMoments:
		var err error
		if fixedCenter, err = CenterOfMass(fixed); err != nil {
			return fmt.Errorf("fixed image: %w", err)
		}
		if movingCenter, err = CenterOfMass(moving); err != nil {
			return fmt.Errorf("moving image: %w", err)
		}
	default:
		return fmt.Errorf("unknown initialization mode %d", int(mode))
	}

	t.SetCenter(fixedCenter)
	t.SetTranslation(movingCenter.Sub(fixedCenter))
	return nil
}

// CenterOfMass は輝度を重みとした画像の重心（物理座標）を求める
// 負の輝度は0として扱う
func CenterOfMass(img *imageutil.FloatImage) (geometry.Point2D, error) {
	n := img.Width * img.Height
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	weights := make([]float64, 0, n)
	mass := 0.0

	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			w := max(img.At(x, y), 0)
			p := img.IndexToPhysical(float64(x), float64(y))
			xs = append(xs, p.X)
			ys = append(ys, p.Y)
			weights = append(weights, w)
			mass += w
		}
	}

	if mass == 0 {
		return geometry.Point2D{}, ErrZeroMass
	}
	return geometry.Point2D{X: stat.Mean(xs, weights), Y: stat.Mean(ys, weights)}, nil
}
