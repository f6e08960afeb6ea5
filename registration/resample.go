package registration

import (
	"runtime"

	"github.com/xshoji/go-img-reg/imageutil"
	"github.com/xshoji/go-img-reg/transform"
	"github.com/xshoji/go-img-reg/utils"
)

// Resample は移動画像を固定画像の格子上に再標本化する
// 出力の各画素 p には moving(T(p)) が入り、範囲外なら defaultValue になる
func Resample(fixed, moving *imageutil.FloatImage, t transform.Transform, defaultValue float64) (*imageutil.FloatImage, error) {
	return ResampleWith(fixed, moving, t, defaultValue, LinearInterpolator{}, 0)
}

// ResampleWith は補間方法とワーカー数を指定して再標本化する
func ResampleWith(fixed, moving *imageutil.FloatImage, t transform.Transform, defaultValue float64,
	interp Interpolator, numWorkers int) (*imageutil.FloatImage, error) {
	if fixed.Empty() || moving.Empty() {
		return nil, imageutil.ErrEmptyImage
	}
	interp = interpolatorOrDefault(interp)
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	out := imageutil.NewFloatImageLike(fixed)

	err := utils.ParallelRows(fixed.Height, numWorkers, func(band utils.RowBand) error {
		for y := band.Y0; y < band.Y1; y++ {
			for x := 0; x < fixed.Width; x++ {
				p := fixed.IndexToPhysical(float64(x), float64(y))
				v, ok := interp.Evaluate(moving, t.TransformPoint(p))
				if !ok {
					v = defaultValue
				}
				out.Set(x, y, v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
