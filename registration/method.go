package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xshoji/go-img-reg/imageutil"
	"github.com/xshoji/go-img-reg/transform"
)

// ErrInvalidLevels は多重解像度の設定が不正な場合に返される
var ErrInvalidLevels = errors.New("invalid multi-resolution levels")

// Method は固定画像と移動画像の間の変換を多重解像度で推定する
type Method struct {
	Fixed     *imageutil.FloatImage
	Moving    *imageutil.FloatImage
	Transform transform.Transform // 初期値として使われ、その場で更新される
	Optimizer *RegularStepGradientDescent
	FixedMask *imageutil.Mask

	ShrinkFactors   []int
	SmoothingSigmas []float64

	SamplingStride int
	NumWorkers     int
	Interpolator   Interpolator
	Verbose        bool
}

// LevelResult は1解像度レベルの最適化結果
type LevelResult struct {
	Level        int
	ShrinkFactor int
	Sigma        float64
	Stop         StopCondition
	Iterations   int
	Value        float64
	Elapsed      time.Duration
}

// Result はレジストレーション全体の結果
type Result struct {
	Transform  transform.Transform
	Stop       StopCondition
	Iterations int     // 最終レベルの反復回数
	Value      float64 // 最終レベルの評価値
	Level      int     // 最終レベルの番号（0始まり）
	// NumberOfLevels は設定されたレベル数（中断時は len(Levels) より大きい）
	NumberOfLevels int
	Levels         []LevelResult
}

// NewMethod は1レベル（縮小なし、平滑化なし）の Method を生成する
func NewMethod(fixed, moving *imageutil.FloatImage, t transform.Transform, optimizer *RegularStepGradientDescent) *Method {
	return &Method{
		Fixed:           fixed,
		Moving:          moving,
		Transform:       t,
		Optimizer:       optimizer,
		ShrinkFactors:   []int{1},
		SmoothingSigmas: []float64{0},
		SamplingStride:  1,
	}
}

// NumberOfLevels は解像度レベルの数を返す
func (m *Method) NumberOfLevels() int {
	return len(m.ShrinkFactors)
}

func (m *Method) validate() error {
	if m.Fixed == nil || m.Moving == nil {
		return errors.New("fixed and moving images are required")
	}
	if m.Transform == nil {
		return errors.New("transform is required")
	}
	if m.Optimizer == nil {
		return errors.New("optimizer is required")
	}
	if len(m.ShrinkFactors) == 0 {
		return fmt.Errorf("%w: at least one level is required", ErrInvalidLevels)
	}
	if len(m.ShrinkFactors) != len(m.SmoothingSigmas) {
		return fmt.Errorf("%w: %d shrink factors but %d smoothing sigmas",
			ErrInvalidLevels, len(m.ShrinkFactors), len(m.SmoothingSigmas))
	}
	for i, f := range m.ShrinkFactors {
		if f < 1 {
			return fmt.Errorf("%w: shrink factor[%d] must be >= 1: %d", ErrInvalidLevels, i, f)
		}
		if m.SmoothingSigmas[i] < 0 {
			return fmt.Errorf("%w: smoothing sigma[%d] must be >= 0: %g", ErrInvalidLevels, i, m.SmoothingSigmas[i])
		}
	}
	return nil
}

// prepareLevel は平滑化と縮小を適用した画像を返す
func prepareLevel(img *imageutil.FloatImage, factor int, sigma float64) (*imageutil.FloatImage, error) {
	smoothed, err := imageutil.GaussianSmooth(img, sigma)
	if err != nil {
		return nil, err
	}
	return imageutil.Shrink(smoothed, factor)
}

// Run はすべてのレベルを粗い順に最適化する
// キャンセルされた場合はその時点の変換と StopCancelled を返す
func (m *Method) Run(ctx context.Context) (*Result, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	result := &Result{Transform: m.Transform, NumberOfLevels: m.NumberOfLevels()}
	for level := range m.ShrinkFactors {
		start := time.Now()
		factor := m.ShrinkFactors[level]
		sigma := m.SmoothingSigmas[level]

		fixed, err := prepareLevel(m.Fixed, factor, sigma)
		if err != nil {
			return nil, fmt.Errorf("level %d: fixed image: %w", level, err)
		}
		moving, err := prepareLevel(m.Moving, factor, sigma)
		if err != nil {
			return nil, fmt.Errorf("level %d: moving image: %w", level, err)
		}

		metric := &MeanSquaresMetric{
			Fixed:          fixed,
			Moving:         moving,
			Transform:      m.Transform,
			FixedMask:      m.FixedMask,
			Interpolator:   m.Interpolator,
			SamplingStride: m.SamplingStride,
			NumWorkers:     m.NumWorkers,
		}
		if err := metric.Initialize(); err != nil {
			return nil, fmt.Errorf("level %d: %w", level, err)
		}

		m.Optimizer.level = level
		opt, err := m.Optimizer.Optimize(ctx, metric)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", level, err)
		}

		levelResult := LevelResult{
			Level:        level,
			ShrinkFactor: factor,
			Sigma:        sigma,
			Stop:         opt.Stop,
			Iterations:   opt.Iterations,
			Value:        opt.Value,
			Elapsed:      time.Since(start),
		}
		result.Levels = append(result.Levels, levelResult)
		result.Stop = opt.Stop
		result.Iterations = opt.Iterations
		result.Value = opt.Value
		result.Level = level

		if m.Verbose {
			fmt.Printf("[INFO] Level %d (shrink %d, sigma %g): %d iterations, value %.6f (%.2fs)\n",
				level, factor, sigma, opt.Iterations, opt.Value, levelResult.Elapsed.Seconds())
		}
		if opt.Stop.Reason == StopCancelled {
			break
		}
	}
	return result, nil
}
