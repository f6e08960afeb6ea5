// registration パッケージは平均二乗誤差と勾配降下法による画像レジストレーションを提供します
package registration

import (
	"errors"
	"fmt"
	"runtime"

	"gonum.org/v1/gonum/mat"

	"github.com/xshoji/go-img-reg/geometry"
	"github.com/xshoji/go-img-reg/imageutil"
	"github.com/xshoji/go-img-reg/transform"
	"github.com/xshoji/go-img-reg/utils"
)

var (
	// ErrNoValidPoints は評価に使える点が1つもない場合に返される
	ErrNoValidPoints = errors.New("no valid points: all samples map outside the moving image or the mask")
	// ErrNoParameters はパラメータを持たない変換を最適化しようとした場合に返される
	ErrNoParameters = errors.New("transform has no parameters to optimize")
)

// sampleBands は評価点を分割する部分和の数
const sampleBands = 64

// sample は固定画像上の評価点
type sample struct {
	point geometry.Point2D
	value float64
}

// MeanSquaresMetric は固定画像と変換後の移動画像の平均二乗誤差を評価する
// 微分は値を減少させる方向（負の勾配）を返す
type MeanSquaresMetric struct {
	Fixed     *imageutil.FloatImage
	Moving    *imageutil.FloatImage
	Transform transform.Transform
	FixedMask *imageutil.Mask // nil の場合は全画素を使用

	Interpolator Interpolator // nil の場合は LinearInterpolator

	SamplingStride int // 1=全画素, k=縦横k画素ごと
	NumWorkers     int // 0の場合は GOMAXPROCS

	samples             []sample
	movingGX, movingGY  *imageutil.FloatImage
	lastValidPointCount int
}

// Initialize は評価点と移動画像の勾配を準備する
func (m *MeanSquaresMetric) Initialize() error {
	if m.Fixed == nil || m.Moving == nil || m.Transform == nil {
		return errors.New("metric requires fixed image, moving image and transform")
	}
	if m.Fixed.Empty() || m.Moving.Empty() {
		return imageutil.ErrEmptyImage
	}
	if m.Transform.NumParams() == 0 {
		return ErrNoParameters
	}

	stride := utils.Max(1, m.SamplingStride)
	m.samples = m.samples[:0]
	for y := 0; y < m.Fixed.Height; y += stride {
		for x := 0; x < m.Fixed.Width; x += stride {
			p := m.Fixed.IndexToPhysical(float64(x), float64(y))
			if m.FixedMask != nil && !m.FixedMask.IsInside(p) {
				continue
			}
			m.samples = append(m.samples, sample{point: p, value: m.Fixed.At(x, y)})
		}
	}
	if len(m.samples) == 0 {
		return fmt.Errorf("%w (fixed mask is empty)", ErrNoValidPoints)
	}

	m.movingGX, m.movingGY = m.Moving.Gradient()
	return nil
}

// NumParams は変換のパラメータ数を返す
func (m *MeanSquaresMetric) NumParams() int { return m.Transform.NumParams() }

// Params は変換の現在のパラメータを返す
func (m *MeanSquaresMetric) Params() []float64 { return m.Transform.Params() }

// SetParams は変換のパラメータを設定する
func (m *MeanSquaresMetric) SetParams(params []float64) error { return m.Transform.SetParams(params) }

// NumberOfValidPoints は直前の評価で使用した点の数を返す
func (m *MeanSquaresMetric) NumberOfValidPoints() int { return m.lastValidPointCount }

// partial はバンドごとの部分和
type partial struct {
	sum        float64
	count      int
	derivative []float64
}

func (m *MeanSquaresMetric) workers() int {
	if m.NumWorkers > 0 {
		return m.NumWorkers
	}
	return runtime.GOMAXPROCS(0)
}

// Value は現在の変換での平均二乗誤差を返す
func (m *MeanSquaresMetric) Value() (float64, error) {
	value, _, err := m.evaluate(false)
	return value, err
}

// ValueAndDerivative は平均二乗誤差とその微分（降下方向）を返す
func (m *MeanSquaresMetric) ValueAndDerivative() (float64, []float64, error) {
	return m.evaluate(true)
}

func (m *MeanSquaresMetric) evaluate(withDerivative bool) (float64, []float64, error) {
	if m.samples == nil {
		if err := m.Initialize(); err != nil {
			return 0, nil, err
		}
	}

	n := m.Transform.NumParams()
	interp := interpolatorOrDefault(m.Interpolator)
	// バンド分割はワーカー数に依存させない
	bands := utils.SplitRows(len(m.samples), sampleBands)
	partials := make([]partial, len(bands))

	err := utils.ParallelBands(bands, m.workers(), func(band utils.RowBand) error {
		part := partial{}
		var jac *mat.Dense
		if withDerivative {
			part.derivative = make([]float64, n)
			jac = mat.NewDense(2, n, nil)
		}

		for _, s := range m.samples[band.Y0:band.Y1] {
			mapped := m.Transform.TransformPoint(s.point)
			movingValue, ok := interp.Evaluate(m.Moving, mapped)
			if !ok {
				continue
			}

			diff := s.value - movingValue
			part.sum += diff * diff
			part.count++

			if !withDerivative {
				continue
			}
			gx, _ := interp.Evaluate(m.movingGX, mapped)
			gy, _ := interp.Evaluate(m.movingGY, mapped)
			m.Transform.Jacobian(s.point, jac)
			for k := 0; k < n; k++ {
				part.derivative[k] += 2 * diff * (gx*jac.At(0, k) + gy*jac.At(1, k))
			}
		}

		partials[band.Index] = part
		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	// バンドの順に集計する
	total := partial{}
	if withDerivative {
		total.derivative = make([]float64, n)
	}
	for _, part := range partials {
		total.sum += part.sum
		total.count += part.count
		for k := range part.derivative {
			total.derivative[k] += part.derivative[k]
		}
	}

	m.lastValidPointCount = total.count
	if total.count == 0 {
		return 0, nil, ErrNoValidPoints
	}

	value := total.sum / float64(total.count)
	for k := range total.derivative {
		total.derivative[k] /= float64(total.count)
	}
	return value, total.derivative, nil
}
