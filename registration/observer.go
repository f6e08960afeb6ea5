package registration

import (
	"fmt"
	"io"
	"strings"
)

// IterationEvent は最適化の1反復ごとに通知される
type IterationEvent struct {
	Level             int
	Iteration         int
	Value             float64
	StepLength        float64
	GradientMagnitude float64
	Params            []float64
}

// Observer は最適化の進捗を受け取る
type Observer interface {
	OnIteration(event IterationEvent)
}

// ObserverFunc は関数を Observer として使うためのアダプタ
type ObserverFunc func(event IterationEvent)

// OnIteration は f(event) を呼び出す
func (f ObserverFunc) OnIteration(event IterationEvent) { f(event) }

// PrintObserver は各反復を1行ずつ書き出す
type PrintObserver struct {
	W io.Writer
}

// OnIteration は "<iteration> = <value> : [p0, p1, ...]" の形式で出力する
func (p PrintObserver) OnIteration(event IterationEvent) {
	fmt.Fprintf(p.W, "%d = %.6f : %s\n", event.Iteration, event.Value, formatParams(event.Params))
}

func formatParams(params []float64) string {
	parts := make([]string, len(params))
	for i, v := range params {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
