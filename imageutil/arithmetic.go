package imageutil

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats は画像の輝度統計量
type Stats struct {
	Min, Max float64
	Mean     float64
	StdDev   float64
}

func (s Stats) String() string {
	return fmt.Sprintf("min=%.4f max=%.4f mean=%.4f stddev=%.4f", s.Min, s.Max, s.Mean, s.StdDev)
}

// Statistics は画像の最小値・最大値・平均・標準偏差を求める
func Statistics(img *FloatImage) (Stats, error) {
	if img.Empty() {
		return Stats{}, ErrEmptyImage
	}
	mean, std := stat.PopMeanStdDev(img.Pix, nil)
	return Stats{
		Min:    floats.Min(img.Pix),
		Max:    floats.Max(img.Pix),
		Mean:   mean,
		StdDev: std,
	}, nil
}

// checkSameSize は2つの画像のサイズが一致するか確認する
func checkSameSize(a, b *FloatImage) error {
	if a.Width != b.Width || a.Height != b.Height {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, a.Width, a.Height, b.Width, b.Height)
	}
	return nil
}

// Subtract は画素ごとの差 a-b を求める
func Subtract(a, b *FloatImage) (*FloatImage, error) {
	if err := checkSameSize(a, b); err != nil {
		return nil, err
	}
	out := NewFloatImageLike(a)
	floats.SubTo(out.Pix, a.Pix, b.Pix)
	return out, nil
}

// SquaredDifference は画素ごとの二乗差 (a-b)^2 を求める
func SquaredDifference(a, b *FloatImage) (*FloatImage, error) {
	out, err := Subtract(a, b)
	if err != nil {
		return nil, err
	}
	floats.Mul(out.Pix, out.Pix)
	return out, nil
}

// RescaleIntensity は輝度範囲 [画像の最小値, 最大値] を [outMin, outMax] に線形変換する
// 一定値の画像はすべて outMin になる
func RescaleIntensity(img *FloatImage, outMin, outMax float64) (*FloatImage, error) {
	if outMax < outMin {
		return nil, fmt.Errorf("invalid output range [%g, %g]", outMin, outMax)
	}
	out := NewFloatImageLike(img)
	if img.Empty() {
		return out, nil
	}

	inMin := floats.Min(img.Pix)
	inMax := floats.Max(img.Pix)
	if inMax == inMin {
		for i := range out.Pix {
			out.Pix[i] = outMin
		}
		return out, nil
	}

	scale := (outMax - outMin) / (inMax - inMin)
	for i, v := range img.Pix {
		out.Pix[i] = (v-inMin)*scale + outMin
	}
	return out, nil
}

// CastToUint8 は値を0～255にクランプして小数部を切り捨てる
func CastToUint8(img *FloatImage) *FloatImage {
	out := NewFloatImageLike(img)
	for i, v := range img.Pix {
		if math.IsNaN(v) {
			continue
		}
		out.Pix[i] = math.Trunc(math.Max(0, math.Min(math.MaxUint8, v)))
	}
	return out
}

// Threshold は level 以上の画素を255、それ以外を0にした2値画像を返す
func Threshold(img *FloatImage, level float64) *FloatImage {
	out := NewFloatImageLike(img)
	for i, v := range img.Pix {
		if v >= level {
			out.Pix[i] = math.MaxUint8
		}
	}
	return out
}
