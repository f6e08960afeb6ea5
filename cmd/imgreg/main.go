package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"strings"

	"github.com/xshoji/go-img-reg/config"
	"github.com/xshoji/go-img-reg/pipeline"
	"github.com/xshoji/go-img-reg/utils"
)

// 定数定義
const (
	UsageRequiredPrefix = "\u001B[33m(REQ)\u001B[0m "
	ConfigEnvKey        = "IMGREG_CONFIG"
)

// アプリケーション設定とオプション
var (
	// コマンドオプション表示に関する設定
	commandDescription      = "2D image registration tool (rigid, similarity and affine transforms)."
	commandOptionFieldWidth = "12" // フィールド幅の推奨値: 一般的に12、ブール値のみの場合は5

	// 必須オプション（設定ファイルで指定することも可能）
	optionFixedImage  = flag.String("f", "", UsageRequiredPrefix+"Fixed image path")
	optionMovingImage = flag.String("m", "", UsageRequiredPrefix+"Moving image path")
	optionOutput      = flag.String("o", "", UsageRequiredPrefix+"Output registered image path")

	// レジストレーション方式の設定
	optionMethod     = flag.Int("r", 1, "Registration preset (1=rigid, 2=similarity, 3=affine multi-resolution, 4=masked rigid)")
	optionTransform  = flag.String("t", "", "Transform override (rigid, similarity, affine)")
	optionConfigFile = flag.String("config", "", "YAML config file (default: $"+ConfigEnvKey+")")
	optionInit       = flag.String("init", config.InitGeometry, "Transform initializer (geometry, moments, search)")

	// 最適化の設定
	optionLearningRate = flag.Float64("lr", 0, "Learning rate (0=preset value)")
	optionMinStep      = flag.Float64("minstep", 0, "Minimum step length (0=preset value)")
	optionIterations   = flag.Int("n", 0, "Maximum number of iterations (0=preset value)")

	// 前処理の設定
	optionMedianRadius  = flag.Int("median", 0, "Median filter radius for preset 4 (0=preset value)")
	optionGradientSigma = flag.Float64("sigma", 0, "Gradient magnitude sigma for the fixed image mask (0=preset value)")
	optionMask          = flag.Bool("mask", false, "Evaluate the metric only inside the fixed image edge mask (preset 4 enables it)")

	// 並列処理のためのCPU数設定
	optionNumCPU = flag.Int("c", 4, "Number of CPU cores to use for parallel processing")

	// サンプリング設定
	optionSamplingStride = flag.Int("s", 1, "Metric sampling stride (1=all pixels, 2=every other pixel, etc)")
	optionInterpolator   = flag.String("interp", config.InterpolatorLinear, "Interpolator for the metric and the resampler (linear, nearest)")

	// 追加の出力
	optionOutput16  = flag.String("o16", "", "Output path for the 16-bit registered image (png or tiff)")
	optionPlot      = flag.String("plot", "", "Output path for the convergence plot (png)")
	optionHighlight = flag.String("highlight", "", "Output path for the residual highlight image")
	optionCSV       = flag.String("csv", "", "Output path for the per-iteration metric values (csv)")

	// 表示の設定
	optionVerbose = flag.Bool("v", false, "Print the metric value and parameters at every iteration")
)

func init() {
	// ヘルプメッセージのカスタマイズ
	customizeHelpMessage()
}

// main エントリポイント
func main() {
	// コマンドライン引数の解析
	flag.Parse()

	// 設定オブジェクトの作成
	cfg, err := createAppConfig()
	if err != nil {
		fmt.Printf("[ERROR] %v\n", err)
		os.Exit(1)
	}

	// 必須オプションのチェック
	if err := validateRequiredOptions(cfg); err != nil {
		fmt.Println(err)
		flag.Usage()
		os.Exit(1)
	}

	// 設定情報の表示
	printFlagInfo()

	// Ctrl+C で最適化を中断できるようにする
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// 画像処理の実行
	if _, err := pipeline.NewRunner(cfg).Run(ctx); err != nil {
		fmt.Printf("[ERROR] %v\n", err)
		stop()
		os.Exit(1)
	}

	fmt.Printf("Registered image saved to %s\n", cfg.Output)
}

// validateRequiredOptions 必須オプションが指定されているかチェック
func validateRequiredOptions(cfg *config.AppConfig) error {
	var missingOptions []string

	if cfg.FixedImage == "" {
		missingOptions = append(missingOptions, "f")
	}
	if cfg.MovingImage == "" {
		missingOptions = append(missingOptions, "m")
	}
	if cfg.Output == "" {
		missingOptions = append(missingOptions, "o")
	}

	if len(missingOptions) > 0 {
		return fmt.Errorf("\n[ERROR] Missing required option(s): %s\n",
			strings.Join(missingOptions, ", "))
	}

	return nil
}

// printFlagInfo 設定情報を表示
func printFlagInfo() {
	fmt.Printf("[ Command options ]\n")
	flag.VisitAll(func(a *flag.Flag) {
		fmt.Printf("  -%-30s %s\n",
			fmt.Sprintf("%s %v", a.Name, a.Value),
			strings.Trim(a.Usage, "\n"))
	})

	fmt.Printf("\n\n")
}

// createAppConfig はプリセット、設定ファイル、コマンドオプションの順に設定を重ねる
// -r が指定されていなければプリセット番号は設定ファイルの method から決まる
func createAppConfig() (*config.AppConfig, error) {
	methodSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "r" {
			methodSet = true
		}
	})

	configPath := *optionConfigFile
	if configPath == "" {
		configPath = utils.GetEnvOrDefault(ConfigEnvKey, "")
	}
	if configPath != "" {
		fmt.Printf("[INFO] Loading config file: %s\n", configPath)
	}
	cfg, err := config.NewLayeredConfig(configPath, *optionMethod, methodSet)
	if err != nil {
		return nil, err
	}

	// 明示的に指定されたオプションだけで上書きする
	flag.Visit(func(f *flag.Flag) {
		applyFlag(cfg, f.Name)
	})
	return cfg, nil
}

// applyFlag はオプション name の値を設定に反映する
func applyFlag(cfg *config.AppConfig, name string) {
	switch name {
	case "f":
		cfg.FixedImage = *optionFixedImage
	case "m":
		cfg.MovingImage = *optionMovingImage
	case "o":
		cfg.Output = *optionOutput
	case "t":
		cfg.SetTransform(strings.ToLower(strings.TrimSpace(*optionTransform)))
	case "init":
		cfg.Initializer = *optionInit
	case "lr":
		if *optionLearningRate > 0 {
			cfg.Optimizer.LearningRate = *optionLearningRate
		}
	case "minstep":
		if *optionMinStep > 0 {
			cfg.Optimizer.MinimumStepLength = *optionMinStep
		}
	case "n":
		if *optionIterations > 0 {
			cfg.Optimizer.NumberOfIterations = *optionIterations
		}
	case "median":
		if *optionMedianRadius > 0 {
			cfg.MedianRadius = *optionMedianRadius
		}
	case "sigma":
		if *optionGradientSigma > 0 {
			cfg.GradientSigma = *optionGradientSigma
		}
	case "mask":
		cfg.UseMask = *optionMask
	case "c":
		cfg.NumCPU = utils.Clamp(*optionNumCPU, 1, runtime.NumCPU())
	case "s":
		cfg.SamplingStride = utils.Max(1, *optionSamplingStride)
	case "o16":
		cfg.Output16 = *optionOutput16
	case "plot":
		cfg.PlotPath = *optionPlot
	case "highlight":
		cfg.HighlightPath = *optionHighlight
	case "csv":
		cfg.CSVPath = *optionCSV
	case "interp":
		cfg.Interpolator = strings.ToLower(strings.TrimSpace(*optionInterpolator))
	case "v":
		cfg.Verbose = *optionVerbose
	}
}

// customizeHelpMessage ヘルプメッセージの表示形式をカスタマイズする
func customizeHelpMessage() {
	b := new(bytes.Buffer)
	func() { flag.CommandLine.SetOutput(b); flag.Usage(); flag.CommandLine.SetOutput(os.Stderr) }()
	usage := strings.Replace(strings.Replace(b.String(), ":", " [OPTIONS] [-h, --help]\n\nDescription:\n  "+commandDescription+"\n\nOptions:\n", 1), "Usage of", "Usage:", 1)
	re := regexp.MustCompile(`[^,] +(-\S+)(?: (\S+))?\n*(\s+)(.*)\n`)
	flag.Usage = func() {
		_, _ = fmt.Fprint(flag.CommandLine.Output(), re.ReplaceAllStringFunc(usage, func(m string) string {
			return fmt.Sprintf("  %-"+commandOptionFieldWidth+"s %s\n", re.FindStringSubmatch(m)[1]+" "+strings.TrimSpace(re.FindStringSubmatch(m)[2]), re.FindStringSubmatch(m)[4])
		}))
	}
}
