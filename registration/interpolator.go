package registration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xshoji/go-img-reg/geometry"
	"github.com/xshoji/go-img-reg/imageutil"
)

// Interpolator は物理座標での画素値を求める
type Interpolator interface {
	Evaluate(img *imageutil.FloatImage, p geometry.Point2D) (float64, bool)
}

// LinearInterpolator は双線形補間を行う
type LinearInterpolator struct{}

// Evaluate は p が画像の範囲外なら ok=false を返す
func (LinearInterpolator) Evaluate(img *imageutil.FloatImage, p geometry.Point2D) (float64, bool) {
	return img.Interpolate(p)
}

// NearestNeighborInterpolator は最も近い画素の値を返す（マスクやラベル画像向け）
type NearestNeighborInterpolator struct{}

// Evaluate は p が画像の範囲外なら ok=false を返す
func (NearestNeighborInterpolator) Evaluate(img *imageutil.FloatImage, p geometry.Point2D) (float64, bool) {
	ix, iy := img.PhysicalToIndex(p)
	if ix < -0.5 || iy < -0.5 {
		return 0, false
	}
	x := int(ix + 0.5)
	y := int(iy + 0.5)
	if x >= img.Width || y >= img.Height {
		return 0, false
	}
	return img.At(x, y), true
}

// ErrUnknownInterpolator は未知の補間方法が指定された場合に返される
var ErrUnknownInterpolator = errors.New("unknown interpolator")

// ParseInterpolator は名前 ("linear", "nearest") から補間方法を求める
// 空文字は線形補間として扱う
func ParseInterpolator(name string) (Interpolator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "linear":
		return LinearInterpolator{}, nil
	case "nearest":
		return NearestNeighborInterpolator{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInterpolator, name)
	}
}

func interpolatorOrDefault(interp Interpolator) Interpolator {
	if interp == nil {
		return LinearInterpolator{}
	}
	return interp
}
