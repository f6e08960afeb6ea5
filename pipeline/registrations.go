// pipeline パッケージは読み込みから出力までのレジストレーション処理の流れを提供します
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/xshoji/go-img-reg/config"
	"github.com/xshoji/go-img-reg/geometry"
	"github.com/xshoji/go-img-reg/imageutil"
	"github.com/xshoji/go-img-reg/registration"
	"github.com/xshoji/go-img-reg/transform"
)

// Registration1 は剛体変換（回転＋平行移動）で位置合わせする
// cfg が nil の場合はプリセット1の設定を使う
func Registration1(ctx context.Context, fixed, moving *imageutil.FloatImage, cfg *config.AppConfig,
	observers ...registration.Observer) (*registration.Result, error) {
	cfg, err := presetOrGiven(1, cfg)
	if err != nil {
		return nil, err
	}
	return register(ctx, fixed, moving, cfg, observers)
}

// Registration2 は相似変換（スケール＋回転＋平行移動）で位置合わせする
func Registration2(ctx context.Context, fixed, moving *imageutil.FloatImage, cfg *config.AppConfig,
	observers ...registration.Observer) (*registration.Result, error) {
	cfg, err := presetOrGiven(2, cfg)
	if err != nil {
		return nil, err
	}
	return register(ctx, fixed, moving, cfg, observers)
}

// Registration3 はアフィン変換で多重解像度の位置合わせを行う
func Registration3(ctx context.Context, fixed, moving *imageutil.FloatImage, cfg *config.AppConfig,
	observers ...registration.Observer) (*registration.Result, error) {
	cfg, err := presetOrGiven(3, cfg)
	if err != nil {
		return nil, err
	}
	return register(ctx, fixed, moving, cfg, observers)
}

// Registration4 はメディアンフィルタで雑音を除いてから剛体変換で位置合わせする
// プリセット4は UseMask が有効なので、固定画像のエッジから作ったマスク内だけが評価される
func Registration4(ctx context.Context, fixed, moving *imageutil.FloatImage, cfg *config.AppConfig,
	observers ...registration.Observer) (*registration.Result, error) {
	cfg, err := presetOrGiven(4, cfg)
	if err != nil {
		return nil, err
	}

	filteredFixed, err := imageutil.MedianFilter(fixed, cfg.MedianRadius)
	if err != nil {
		return nil, fmt.Errorf("median filter (fixed): %w", err)
	}
	filteredMoving, err := imageutil.MedianFilter(moving, cfg.MedianRadius)
	if err != nil {
		return nil, fmt.Errorf("median filter (moving): %w", err)
	}

	return register(ctx, filteredFixed, filteredMoving, cfg, observers)
}

// EdgeMask は勾配強度を8ビットに変換して閾値処理したマスクを作る
func EdgeMask(img *imageutil.FloatImage, sigma, threshold float64) (*imageutil.Mask, error) {
	gradient, err := imageutil.GradientMagnitude(img, sigma)
	if err != nil {
		return nil, fmt.Errorf("gradient magnitude: %w", err)
	}
	return imageutil.NewMask(imageutil.Threshold(imageutil.CastToUint8(gradient), threshold)), nil
}

func presetOrGiven(method int, cfg *config.AppConfig) (*config.AppConfig, error) {
	if cfg != nil {
		return cfg, nil
	}
	return config.NewPresetConfig(method)
}

// register は設定に従って変換を初期化し、最適化を実行する
// UseMask が有効な場合は固定画像のエッジマスク内の画素だけで評価する
func register(ctx context.Context, fixed, moving *imageutil.FloatImage, cfg *config.AppConfig,
	observers []registration.Observer) (*registration.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	interpolator, err := registration.ParseInterpolator(cfg.Interpolator)
	if err != nil {
		return nil, err
	}

	var mask *imageutil.Mask
	if cfg.UseMask {
		if mask, err = EdgeMask(fixed, cfg.GradientSigma, cfg.MaskThreshold); err != nil {
			return nil, err
		}
		fmt.Printf("[INFO] Fixed image mask: %d of %d pixels\n", mask.Count(), len(fixed.Pix))
	}

	t, err := InitialTransform(fixed, moving, cfg)
	if err != nil {
		return nil, err
	}
	fmt.Printf("[INFO] Initial transform: %s\n", t)

	optimizer := NewOptimizer(cfg.Optimizer)
	for _, observer := range observers {
		optimizer.AddObserver(observer)
	}

	method := registration.NewMethod(fixed, moving, t, optimizer)
	method.ShrinkFactors = cfg.ShrinkFactors
	method.SmoothingSigmas = cfg.SmoothingSigmas
	method.FixedMask = mask
	method.SamplingStride = cfg.SamplingStride
	method.NumWorkers = cfg.NumCPU
	method.Interpolator = interpolator
	method.Verbose = true

	fmt.Printf("[INFO] Starting %s registration (%d levels)...\n", t.Kind(), method.NumberOfLevels())
	startTime := time.Now()
	result, err := method.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	fmt.Printf("[INFO] Registration completed in %.2f seconds\n", time.Since(startTime).Seconds())
	return result, nil
}

// NewOptimizer は設定から最適化器を作成する
func NewOptimizer(c config.OptimizerConfig) *registration.RegularStepGradientDescent {
	optimizer := registration.NewRegularStepGradientDescent()
	optimizer.LearningRate = c.LearningRate
	optimizer.MinimumStepLength = c.MinimumStepLength
	optimizer.RelaxationFactor = c.RelaxationFactor
	optimizer.GradientMagnitudeTolerance = c.GradientMagnitudeTolerance
	optimizer.NumberOfIterations = c.NumberOfIterations
	optimizer.Scales = append([]float64(nil), c.Scales...)
	optimizer.ReturnBestParameters = c.ReturnBestParameters
	return optimizer
}

// InitialTransform は設定された種類の変換を作成し、中心と平行移動を初期化する
func InitialTransform(fixed, moving *imageutil.FloatImage, cfg *config.AppConfig) (transform.Centered, error) {
	kind, err := transform.ParseKind(cfg.Transform)
	if err != nil {
		return nil, err
	}
	created, err := transform.New(kind)
	if err != nil {
		return nil, err
	}
	t, ok := created.(transform.Centered)
	if !ok {
		return nil, fmt.Errorf("%s transform cannot be initialized", kind)
	}

	switch cfg.Initializer {
	case config.InitMoments:
		err = transform.InitializeCentered(t, fixed, moving, transform.ModeMoments)
	case config.InitSearch:
		err = initializeBySearch(t, fixed, moving, cfg)
	default:
		err = transform.InitializeCentered(t, fixed, moving, transform.ModeGeometry)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize transform: %w", err)
	}

	switch tt := t.(type) {
	case *transform.Rigid2D:
		tt.SetAngle(cfg.InitialAngle)
	case *transform.Similarity2D:
		tt.SetAngle(cfg.InitialAngle)
		if err := tt.SetScale(cfg.InitialScale); err != nil {
			return nil, err
		}
	case *transform.Affine:
		if cfg.InitialAngle != 0 {
			c, s := math.Cos(cfg.InitialAngle), math.Sin(cfg.InitialAngle)
			tt.SetMatrix(mat.NewDense(2, 2, []float64{c, -s, s, c}))
		}
	}
	return t, nil
}

// initializeBySearch は整数オフセットの総当たり探索結果を平行移動の初期値にする
// 中心は固定画像の中心に置く
func initializeBySearch(t transform.Centered, fixed, moving *imageutil.FloatImage, cfg *config.AppConfig) error {
	if err := transform.InitializeCentered(t, fixed, moving, transform.ModeGeometry); err != nil {
		return err
	}
	offsetX, offsetY := imageutil.NewAnalyzer(cfg).FindBestOffset(fixed, moving)
	t.SetTranslation(geometry.Point2D{
		X: moving.Origin.X - fixed.Origin.X + float64(offsetX)*moving.Spacing.X,
		Y: moving.Origin.Y - fixed.Origin.Y + float64(offsetY)*moving.Spacing.Y,
	})
	return nil
}
