package pipeline

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/xshoji/go-img-reg/config"
	"github.com/xshoji/go-img-reg/imageutil"
	"github.com/xshoji/go-img-reg/monitor"
	"github.com/xshoji/go-img-reg/registration"
	"github.com/xshoji/go-img-reg/transform"
)

// RegistrationFunc はプリセットのレジストレーション関数の型
type RegistrationFunc func(ctx context.Context, fixed, moving *imageutil.FloatImage, cfg *config.AppConfig,
	observers ...registration.Observer) (*registration.Result, error)

// Presets はプリセット番号とレジストレーション関数の対応
var Presets = map[int]RegistrationFunc{
	1: Registration1,
	2: Registration2,
	3: Registration3,
	4: Registration4,
}

// Report はパイプライン全体の実行結果
type Report struct {
	Result *registration.Result

	MeanSquaresBefore float64 // 位置合わせ前の固定画像との平均二乗誤差
	MeanSquaresAfter  float64 // 位置合わせ後の固定画像との平均二乗誤差

	Residuals []image.Rectangle // 閾値を超えて残った差分の領域
	Outputs   []string          // 書き出したファイル
	Elapsed   time.Duration
}

// Runner は設定に従って読み込みから出力までを実行する
type Runner struct {
	cfg       *config.AppConfig
	out       io.Writer
	observers []registration.Observer
}

// NewRunner は設定をもとに Runner を作成する
// 最終パラメータは標準出力に書き出される
func NewRunner(cfg *config.AppConfig) *Runner {
	return &Runner{cfg: cfg, out: os.Stdout}
}

// SetOutput は最終パラメータと反復表示の出力先を変更する
func (r *Runner) SetOutput(w io.Writer) {
	r.out = w
}

// AddObserver は最適化の反復ごとの通知先を追加する
func (r *Runner) AddObserver(observer registration.Observer) {
	r.observers = append(r.observers, observer)
}

// Run はパイプラインを実行する
// 読み込み → 前処理・初期化・最適化 → 再標本化 → 差分画像の出力
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	cfg := r.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	registerFunc, ok := Presets[cfg.Method]
	if !ok {
		return nil, fmt.Errorf("%w: unknown registration method %d", config.ErrInvalidConfig, cfg.Method)
	}

	// 並列処理のためのCPU数を設定
	runtime.GOMAXPROCS(cfg.NumCPU)
	startTime := time.Now()

	fixed, moving, err := loadImages(cfg)
	if err != nil {
		return nil, err
	}

	observers := append([]registration.Observer(nil), r.observers...)
	if cfg.Verbose {
		observers = append(observers, registration.PrintObserver{W: r.out})
	}
	var recorder *monitor.Recorder
	if cfg.PlotPath != "" || cfg.CSVPath != "" {
		recorder = monitor.NewRecorder()
		observers = append(observers, recorder)
	}

	result, err := registerFunc(ctx, fixed, moving, cfg, observers...)
	if err != nil {
		return nil, err
	}
	if err := registration.FinalParameters(r.out, result); err != nil {
		return nil, err
	}

	report := &Report{Result: result}
	if err := r.writeOutputs(fixed, moving, result.Transform, report); err != nil {
		return nil, err
	}
	if recorder != nil {
		if err := saveRecording(recorder, cfg, report); err != nil {
			return nil, err
		}
	}

	report.Elapsed = time.Since(startTime)
	fmt.Printf("[INFO] Total processing completed in %.2f seconds\n", report.Elapsed.Seconds())
	return report, nil
}

// saveRecording は収束グラフとCSVを書き出す
func saveRecording(recorder *monitor.Recorder, cfg *config.AppConfig, report *Report) error {
	if cfg.PlotPath != "" {
		if err := recorder.SavePlot(cfg.PlotPath); err != nil {
			return err
		}
		report.Outputs = append(report.Outputs, cfg.PlotPath)
	}
	if cfg.CSVPath != "" {
		file, err := os.Create(cfg.CSVPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", cfg.CSVPath, err)
		}
		if err := recorder.WriteCSV(file); err != nil {
			file.Close()
			return fmt.Errorf("failed to write %s: %w", cfg.CSVPath, err)
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("failed to write %s: %w", cfg.CSVPath, err)
		}
		fmt.Printf("[INFO] Iteration values saved to %s\n", cfg.CSVPath)
		report.Outputs = append(report.Outputs, cfg.CSVPath)
	}
	return nil
}

// loadImages は固定画像と移動画像を読み込む
func loadImages(cfg *config.AppConfig) (fixed, moving *imageutil.FloatImage, err error) {
	fmt.Printf("[INFO] Loading images...\n")

	fixed, err = imageutil.LoadImage(cfg.FixedImage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load fixed image: %w", err)
	}
	moving, err = imageutil.LoadImage(cfg.MovingImage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load moving image: %w", err)
	}

	fmt.Printf("Fixed image: %s %s\n", cfg.FixedImage, fixed)
	fmt.Printf("Moving image: %s %s\n", cfg.MovingImage, moving)
	if fixed.Width != moving.Width || fixed.Height != moving.Height {
		fmt.Printf("[WARNING] Image dimensions do not match!\n")
	}
	return fixed, moving, nil
}

// writeOutputs は位置合わせ後の画像と差分画像を書き出す
func (r *Runner) writeOutputs(fixed, moving *imageutil.FloatImage, t transform.Transform, report *Report) error {
	cfg := r.cfg

	interpolator, err := registration.ParseInterpolator(cfg.Interpolator)
	if err != nil {
		return err
	}
	registered, err := registration.ResampleWith(fixed, moving, t, cfg.DefaultPixelValue, interpolator, cfg.NumCPU)
	if err != nil {
		return fmt.Errorf("resample: %w", err)
	}
	// 位置合わせ前の比較用に移動画像をそのまま固定画像の格子へ載せる
	unregistered, err := registration.Resample(fixed, moving, transform.NewIdentity(), cfg.DefaultPixelValue)
	if err != nil {
		return fmt.Errorf("resample: %w", err)
	}

	save := func(path string, saveFunc func() error) error {
		if err := saveFunc(); err != nil {
			return fmt.Errorf("failed to save %s: %w", path, err)
		}
		report.Outputs = append(report.Outputs, path)
		return nil
	}

	if err := save(cfg.Output, func() error { return imageutil.SaveImage(registered, cfg.Output) }); err != nil {
		return err
	}
	if cfg.Output16 != "" {
		if err := save(cfg.Output16, func() error { return imageutil.SaveImage16(registered, cfg.Output16) }); err != nil {
			return err
		}
	}

	for _, d := range []struct {
		suffix string
		image  *imageutil.FloatImage
		ms     *float64
	}{
		{"diff_before", unregistered, &report.MeanSquaresBefore},
		{"diff_after", registered, &report.MeanSquaresAfter},
	} {
		diff, ms, err := differenceImage(fixed, d.image)
		if err != nil {
			return err
		}
		*d.ms = ms
		path := SuffixedPath(cfg.Output, d.suffix)
		if err := save(path, func() error { return imageutil.SaveImage(diff, path) }); err != nil {
			return err
		}
	}
	fmt.Printf("[INFO] Mean squares before: %.4f, after: %.4f\n", report.MeanSquaresBefore, report.MeanSquaresAfter)

	if cfg.HighlightPath != "" {
		analyzer := imageutil.NewAnalyzer(cfg)
		hasResiduals, err := analyzer.HasResiduals(fixed, registered)
		if err != nil {
			return err
		}
		if !hasResiduals {
			fmt.Printf("[INFO] No residuals above threshold %d, skipping %s\n", cfg.Threshold, cfg.HighlightPath)
			return nil
		}
		highlighted, regions, err := analyzer.GenerateResidualImage(fixed, registered)
		if err != nil {
			return err
		}
		report.Residuals = regions
		if err := save(cfg.HighlightPath, func() error { return imageutil.SaveRGBA(highlighted, cfg.HighlightPath) }); err != nil {
			return err
		}
	}
	return nil
}

// differenceImage は fixed - other を0～255に伸張した画像と平均二乗誤差を返す
func differenceImage(fixed, other *imageutil.FloatImage) (*imageutil.FloatImage, float64, error) {
	diff, err := imageutil.Subtract(fixed, other)
	if err != nil {
		return nil, 0, err
	}
	squared, err := imageutil.SquaredDifference(fixed, other)
	if err != nil {
		return nil, 0, err
	}
	stats, err := imageutil.Statistics(squared)
	if err != nil {
		return nil, 0, err
	}
	rescaled, err := imageutil.RescaleIntensity(diff, 0, 255)
	if err != nil {
		return nil, 0, err
	}
	return rescaled, stats.Mean, nil
}

// SuffixedPath は "out.png" を "out_<suffix>.png" のように拡張子の前へ接尾辞を付ける
func SuffixedPath(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + suffix + ext
}
