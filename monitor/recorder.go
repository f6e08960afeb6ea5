// monitor パッケージは最適化の収束過程を記録し、グラフやCSVとして出力します
package monitor

import (
	"encoding/csv"
	"errors"
	"fmt"
	"image/color"
	"io"
	"strconv"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/xshoji/go-img-reg/registration"
)

// ErrNoSamples は記録が1件もない状態で出力しようとした場合に返される
var ErrNoSamples = errors.New("no iterations recorded")

// Sample は1反復分の記録
type Sample struct {
	Level      int
	Iteration  int
	Value      float64
	StepLength float64
}

// Recorder は registration.Observer として反復ごとの評価値を記録する
type Recorder struct {
	mu      sync.Mutex
	samples []Sample
}

// NewRecorder は空の Recorder を作成する
func NewRecorder() *Recorder {
	return &Recorder{}
}

// OnIteration は反復の記録を追加する
func (r *Recorder) OnIteration(event registration.IterationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, Sample{
		Level:      event.Level,
		Iteration:  event.Iteration,
		Value:      event.Value,
		StepLength: event.StepLength,
	})
}

// Samples は記録のコピーを返す
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.samples...)
}

// Levels はレベルごとに分けた記録を返す（レベルの昇順）
func (r *Recorder) Levels() [][]Sample {
	var levels [][]Sample
	for _, s := range r.Samples() {
		for len(levels) <= s.Level {
			levels = append(levels, nil)
		}
		levels[s.Level] = append(levels[s.Level], s)
	}
	return levels
}

// SavePlot は評価値の推移を PNG などの画像に書き出す
// 解像度レベルごとに1本の線を描く
func (r *Recorder) SavePlot(path string) error {
	levels := r.Levels()
	if len(levels) == 0 {
		return ErrNoSamples
	}

	p := plot.New()
	p.Title.Text = "Registration convergence"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Mean squares"

	colors := levelColors(len(levels))
	for level, samples := range levels {
		if len(samples) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(samples))
		for i, s := range samples {
			pts[i] = plotter.XY{X: float64(s.Iteration), Y: s.Value}
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("level %d: %w", level, err)
		}
		line.Color = colors[level]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("level %d", level), line)
	}

	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save convergence plot: %w", err)
	}
	fmt.Printf("[INFO] Convergence plot saved: %s\n", path)
	return nil
}

// WriteCSV は記録を "level,iteration,value,step" の CSV で書き出す
func (r *Recorder) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"level", "iteration", "value", "step"}); err != nil {
		return err
	}
	for _, s := range r.Samples() {
		record := []string{
			strconv.Itoa(s.Level),
			strconv.Itoa(s.Iteration),
			strconv.FormatFloat(s.Value, 'g', -1, 64),
			strconv.FormatFloat(s.StepLength, 'g', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// levelColors はレベル数に応じて区別しやすい色を返す
func levelColors(n int) []color.Color {
	palette := []color.Color{
		color.RGBA{R: 31, G: 119, B: 180, A: 255},
		color.RGBA{R: 255, G: 127, B: 14, A: 255},
		color.RGBA{R: 44, G: 160, B: 44, A: 255},
		color.RGBA{R: 214, G: 39, B: 40, A: 255},
		color.RGBA{R: 148, G: 103, B: 189, A: 255},
	}
	colors := make([]color.Color, n)
	for i := range colors {
		colors[i] = palette[i%len(palette)]
	}
	return colors
}
