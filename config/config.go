package config

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// 初期化方式
const (
	InitGeometry = "geometry" // 画像中心による初期化
	InitMoments  = "moments"  // 輝度重心による初期化
	InitSearch   = "search"   // 整数オフセット探索による初期化
)

// 補間方法
const (
	InterpolatorLinear  = "linear"  // 双線形補間
	InterpolatorNearest = "nearest" // 最近傍補間
)

// 変換の種類
const (
	TransformRigid      = "rigid"
	TransformSimilarity = "similarity"
	TransformAffine     = "affine"
)

// ErrInvalidConfig は設定値が不正な場合に返される
var ErrInvalidConfig = errors.New("invalid config")

// OptimizerConfig は勾配降下法の設定を保持する構造体
type OptimizerConfig struct {
	LearningRate               float64   `yaml:"learning_rate"`                // 初期ステップ長
	MinimumStepLength          float64   `yaml:"minimum_step_length"`          // 最小ステップ長
	RelaxationFactor           float64   `yaml:"relaxation_factor"`            // 勾配反転時のステップ縮小率
	GradientMagnitudeTolerance float64   `yaml:"gradient_magnitude_tolerance"` // 勾配の大きさの許容値
	NumberOfIterations         int       `yaml:"iterations"`                   // 最大反復回数
	Scales                     []float64 `yaml:"scales"`                       // パラメータごとのスケール
	ReturnBestParameters       bool      `yaml:"return_best_parameters"`       // 最良のパラメータを返すか
}

// AppConfig は画像レジストレーションのための設定を保持する構造体
type AppConfig struct {
	// 入出力の設定
	FixedImage    string `yaml:"fixed"`     // 固定画像のパス
	MovingImage   string `yaml:"moving"`    // 移動画像のパス
	Output        string `yaml:"output"`    // 位置合わせ後の画像の出力パス
	Output16      string `yaml:"output16"`  // 16ビット出力のパス（空なら出力しない）
	PlotPath      string `yaml:"plot"`      // 収束グラフの出力パス（空なら出力しない）
	HighlightPath string `yaml:"highlight"` // 残差領域の強調画像の出力パス（空なら出力しない）
	CSVPath       string `yaml:"csv"`       // 反復ごとの評価値のCSV出力パス（空なら出力しない）

	// レジストレーション方式の設定
	Method       int     `yaml:"method"`        // プリセット番号 (1=剛体, 2=相似, 3=アフィン, 4=マスク付き剛体)
	Transform    string  `yaml:"transform"`     // 変換の種類
	Initializer  string  `yaml:"initializer"`   // 初期化方式
	InitialAngle float64 `yaml:"initial_angle"` // 初期回転角（ラジアン）
	InitialScale float64 `yaml:"initial_scale"` // 初期スケール（相似変換のみ）

	// 最適化の設定
	Optimizer OptimizerConfig `yaml:"optimizer"`

	// 多重解像度の設定
	ShrinkFactors   []int     `yaml:"shrink_factors"`   // レベルごとの縮小率
	SmoothingSigmas []float64 `yaml:"smoothing_sigmas"` // レベルごとの平滑化シグマ

	// 前処理の設定
	MedianRadius  int     `yaml:"median_radius"`  // メディアンフィルタの半径（0なら適用しない）
	GradientSigma float64 `yaml:"gradient_sigma"` // 勾配強度フィルタのシグマ（マスク生成用）
	MaskThreshold float64 `yaml:"mask_threshold"` // マスクの閾値（0～255）
	UseMask       bool    `yaml:"use_mask"`       // 固定画像マスクを使用するか

	// 評価関数の設定
	SamplingStride    int     `yaml:"sampling_stride"`     // サンプリング間隔 (1=全ピクセル)
	DefaultPixelValue float64 `yaml:"default_pixel_value"` // 範囲外の画素値
	Interpolator      string  `yaml:"interpolator"`        // 補間方法 (linear, nearest)

	// 並列処理のための設定
	NumCPU int `yaml:"num_cpu"` // 使用するCPUコア数

	// 表示の設定
	Verbose      bool `yaml:"verbose"`       // 反復ごとの値を表示するか
	ProgressStep int  `yaml:"progress_step"` // 進捗表示の間隔（パーセント）

	// オフセット探索の設定（Initializer=search のとき）
	MaxOffset    int  `yaml:"max_offset"`    // 探索する最大オフセット（ピクセル単位）
	SamplingRate int  `yaml:"sampling_rate"` // 探索時のサンプリングレート
	FastMode     bool `yaml:"fast_mode"`     // 段階的サンプリングを使用する高速モード

	// 残差表示の設定
	Threshold              int        `yaml:"threshold"`            // 残差の閾値 (0-255)
	ShowTransparentOverlay bool       `yaml:"show_overlay"`         // 残差部分に固定画像を透過表示するか
	OverlayTransparency    float64    `yaml:"overlay_transparency"` // オーバーレイの透明度 (0.0=不透明、1.0=完全透明)
	OverlayTint            color.RGBA `yaml:"overlay_tint"`         // 透過表示時の色調
	UseTint                bool       `yaml:"use_tint"`             // 色調を適用するかどうか
	TintStrength           float64    `yaml:"tint_strength"`        // 色調の強さ (0.0～1.0)
	TintTransparency       float64    `yaml:"tint_transparency"`    // 色調の透明度 (0.0=不透明、1.0=完全透明)
}

// NewDefaultConfig はデフォルト設定（プリセット1: 剛体変換）を持つ新しいAppConfigを返す
func NewDefaultConfig() *AppConfig {
	cfg, _ := NewPresetConfig(1)
	return cfg
}

// NewPresetConfig は指定されたプリセット番号の設定を返す
func NewPresetConfig(method int) (*AppConfig, error) {
	cfg := &AppConfig{
		Method:       method,
		Initializer:  InitGeometry,
		InitialAngle: 0.0,
		InitialScale: 1.0,
		Optimizer: OptimizerConfig{
			MinimumStepLength:          0.0001,
			RelaxationFactor:           0.5,
			GradientMagnitudeTolerance: 1e-4,
		},
		ShrinkFactors:          []int{1},
		SmoothingSigmas:        []float64{0},
		GradientSigma:          1.0,
		MaskThreshold:          10,
		SamplingStride:         1,
		DefaultPixelValue:      0,
		Interpolator:           InterpolatorLinear,
		NumCPU:                 4,
		ProgressStep:           10,
		MaxOffset:              10,
		SamplingRate:           4,
		Threshold:              30,
		ShowTransparentOverlay: true,
		OverlayTransparency:    0.3,
		OverlayTint:            color.RGBA{255, 0, 0, 255},
		UseTint:                true,
		TintStrength:           0.7,
		TintTransparency:       0.2,
	}

	switch method {
	case 1:
		cfg.Transform = TransformRigid
		cfg.Optimizer.LearningRate = 0.1
		cfg.Optimizer.NumberOfIterations = 200
	case 2:
		cfg.Transform = TransformSimilarity
		cfg.Optimizer.LearningRate = 1.0
		cfg.Optimizer.NumberOfIterations = 200
	case 3:
		cfg.Transform = TransformAffine
		cfg.Optimizer.LearningRate = 1.0
		cfg.Optimizer.NumberOfIterations = 300
		cfg.ShrinkFactors = []int{4, 2, 1}
		cfg.SmoothingSigmas = []float64{2, 1, 0}
	case 4:
		cfg.Transform = TransformRigid
		cfg.Optimizer.LearningRate = 0.1
		cfg.Optimizer.NumberOfIterations = 200
		cfg.MedianRadius = 2
		cfg.GradientSigma = 2.0
		cfg.UseMask = true
	default:
		return nil, fmt.Errorf("%w: unknown registration method %d (expected 1-4)", ErrInvalidConfig, method)
	}
	cfg.Optimizer.Scales = DefaultScales(cfg.Transform)

	return cfg, nil
}

// yamlKeys はYAMLに記載された項目のうち、プリセットとの整合に使うもの
type yamlKeys struct {
	Method    *int    `yaml:"method"`
	Transform *string `yaml:"transform"`
	Optimizer struct {
		Scales []float64 `yaml:"scales"`
	} `yaml:"optimizer"`
}

func parseKeys(data []byte) (yamlKeys, error) {
	var keys yamlKeys
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return keys, fmt.Errorf("failed to parse config: %w", err)
	}
	return keys, nil
}

// NewLayeredConfig はプリセットに設定ファイルの内容を重ねた設定を返す
// プリセット番号は method が明示されていればそれを、なければファイルの method を、どちらもなければ1を使う
// path が空の場合はプリセットのみを返す
func NewLayeredConfig(path string, method int, methodSet bool) (*AppConfig, error) {
	var data []byte
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	keys, err := parseKeys(data)
	if err != nil {
		return nil, err
	}

	if !methodSet {
		method = 1
		if keys.Method != nil {
			method = *keys.Method
		}
	}
	cfg, err := NewPresetConfig(method)
	if err != nil {
		return nil, err
	}
	if err := cfg.load(data, keys); err != nil {
		return nil, err
	}
	// オプションで指定されたプリセット番号をファイルの値より優先する
	cfg.Method = method
	return cfg, nil
}

// LoadFile はYAMLファイルを読み込み、既存の設定を上書きする
// ファイルに記載されていない項目は元の値が保持される
func (c *AppConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return c.Load(bytes.NewReader(data))
}

// Load はYAMLを読み込み、既存の設定を上書きする
// 変換の種類だけが変わりスケールが記載されていない場合は、新しい変換の標準スケールにする
func (c *AppConfig) Load(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	keys, err := parseKeys(data)
	if err != nil {
		return err
	}
	return c.load(data, keys)
}

func (c *AppConfig) load(data []byte, keys yamlKeys) error {
	previous := c.Transform

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil // 空のファイル
		}
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if keys.Transform != nil && keys.Optimizer.Scales == nil && c.Transform != previous {
		c.Optimizer.Scales = DefaultScales(c.Transform)
	}
	return nil
}

// Validate は設定値の整合性をチェックする
func (c *AppConfig) Validate() error {
	switch c.Transform {
	case TransformRigid, TransformSimilarity, TransformAffine:
	default:
		return fmt.Errorf("%w: unknown transform %q", ErrInvalidConfig, c.Transform)
	}

	switch c.Initializer {
	case InitGeometry, InitMoments, InitSearch:
	default:
		return fmt.Errorf("%w: unknown initializer %q", ErrInvalidConfig, c.Initializer)
	}

	switch c.Interpolator {
	case InterpolatorLinear, InterpolatorNearest:
	default:
		return fmt.Errorf("%w: unknown interpolator %q", ErrInvalidConfig, c.Interpolator)
	}

	if c.Optimizer.LearningRate <= 0 {
		return fmt.Errorf("%w: learning rate must be > 0", ErrInvalidConfig)
	}
	if c.Optimizer.MinimumStepLength < 0 {
		return fmt.Errorf("%w: minimum step length must be >= 0", ErrInvalidConfig)
	}
	if c.Optimizer.RelaxationFactor <= 0 || c.Optimizer.RelaxationFactor >= 1 {
		return fmt.Errorf("%w: relaxation factor must be in (0, 1)", ErrInvalidConfig)
	}
	if c.Optimizer.NumberOfIterations <= 0 {
		return fmt.Errorf("%w: number of iterations must be > 0", ErrInvalidConfig)
	}
	if n := c.NumParams(); len(c.Optimizer.Scales) != 0 && len(c.Optimizer.Scales) != n {
		return fmt.Errorf("%w: %s transform needs %d scales, got %d",
			ErrInvalidConfig, c.Transform, n, len(c.Optimizer.Scales))
	}
	for _, s := range c.Optimizer.Scales {
		if s <= 0 {
			return fmt.Errorf("%w: scales must be > 0", ErrInvalidConfig)
		}
	}

	if len(c.ShrinkFactors) == 0 || len(c.ShrinkFactors) != len(c.SmoothingSigmas) {
		return fmt.Errorf("%w: shrink factors (%d) and smoothing sigmas (%d) must have the same non-zero length",
			ErrInvalidConfig, len(c.ShrinkFactors), len(c.SmoothingSigmas))
	}
	for i := range c.ShrinkFactors {
		if c.ShrinkFactors[i] < 1 || c.SmoothingSigmas[i] < 0 {
			return fmt.Errorf("%w: level %d has shrink factor %d and sigma %g",
				ErrInvalidConfig, i, c.ShrinkFactors[i], c.SmoothingSigmas[i])
		}
	}

	if c.MedianRadius < 0 {
		return fmt.Errorf("%w: median radius must be >= 0", ErrInvalidConfig)
	}
	if c.UseMask && c.GradientSigma <= 0 {
		return fmt.Errorf("%w: gradient sigma must be > 0 when a mask is used", ErrInvalidConfig)
	}
	if c.SamplingStride < 1 {
		return fmt.Errorf("%w: sampling stride must be >= 1", ErrInvalidConfig)
	}
	if c.NumCPU < 1 {
		return fmt.Errorf("%w: num cpu must be >= 1", ErrInvalidConfig)
	}
	if c.Transform == TransformSimilarity && c.InitialScale <= 0 {
		return fmt.Errorf("%w: initial scale must be > 0", ErrInvalidConfig)
	}
	if c.Initializer == InitSearch && (c.MaxOffset < 0 || c.SamplingRate < 1) {
		return fmt.Errorf("%w: offset search needs max offset >= 0 and sampling rate >= 1", ErrInvalidConfig)
	}
	if c.ProgressStep < 1 {
		return fmt.Errorf("%w: progress step must be >= 1", ErrInvalidConfig)
	}

	return nil
}

// NumParams は設定された変換のパラメータ数を返す
func (c *AppConfig) NumParams() int {
	switch c.Transform {
	case TransformRigid:
		return 5
	case TransformSimilarity, TransformAffine:
		return 6
	default:
		return 0
	}
}

// DefaultScales は変換の種類ごとの標準的なスケールを返す
// 回転・スケール・行列成分は1、中心と平行移動は1/1000
func DefaultScales(transform string) []float64 {
	const translationScale = 1.0 / 1000.0
	switch transform {
	case TransformRigid:
		return []float64{1.0, translationScale, translationScale, translationScale, translationScale}
	case TransformSimilarity:
		return []float64{10.0, 1.0, translationScale, translationScale, translationScale, translationScale}
	case TransformAffine:
		return []float64{1.0, 1.0, 1.0, 1.0, translationScale, translationScale}
	default:
		return nil
	}
}

// SetTransform は変換の種類を変更し、パラメータ数が合わないスケールを標準値に置き換える
func (c *AppConfig) SetTransform(transform string) {
	c.Transform = transform
	if len(c.Optimizer.Scales) != c.NumParams() {
		c.Optimizer.Scales = DefaultScales(transform)
	}
}
