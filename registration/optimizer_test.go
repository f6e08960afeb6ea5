package registration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadratic は target を最小点とする二次関数
type quadratic struct {
	params []float64
	target []float64
	calls  int
}

func newQuadratic(start, target []float64) *quadratic {
	return &quadratic{params: append([]float64(nil), start...), target: target}
}

func (q *quadratic) NumParams() int    { return len(q.params) }
func (q *quadratic) Params() []float64 { return append([]float64(nil), q.params...) }

func (q *quadratic) SetParams(params []float64) error {
	copy(q.params, params)
	return nil
}

func (q *quadratic) ValueAndDerivative() (float64, []float64, error) {
	q.calls++
	value := 0.0
	derivative := make([]float64, len(q.params))
	for i := range q.params {
		d := q.params[i] - q.target[i]
		value += d * d
		derivative[i] = -2 * d
	}
	return value, derivative, nil
}

func TestRegularStepGradientDescentConverges(t *testing.T) {
	opt := NewRegularStepGradientDescent()
	opt.LearningRate = 1
	opt.MinimumStepLength = 1e-4
	opt.NumberOfIterations = 500

	cost := newQuadratic([]float64{0, 0}, []float64{6.5, -3.25})
	result, err := opt.Optimize(context.Background(), cost)
	require.NoError(t, err)

	assert.Contains(t, []StopReason{StopStepTooSmall, StopGradientMagnitude}, result.Stop.Reason)
	assert.InDelta(t, 6.5, result.Params[0], 1e-3)
	assert.InDelta(t, -3.25, result.Params[1], 1e-3)
	assert.Less(t, result.Iterations, 500)
}

func TestRegularStepGradientDescentStopConditions(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name       string
		ctx        context.Context
		setup      func(o *RegularStepGradientDescent)
		wantReason StopReason
		wantIter   int
		wantDesc   string
	}{
		{
			name:       "正常系: 反復回数の上限",
			ctx:        context.Background(),
			setup:      func(o *RegularStepGradientDescent) { o.NumberOfIterations = 3 },
			wantReason: StopMaximumIterations,
			wantIter:   3,
			wantDesc:   "Maximum number of iterations (3) exceeded.",
		},
		{
			name: "正常系: ステップが最小値未満",
			ctx:  context.Background(),
			setup: func(o *RegularStepGradientDescent) {
				o.LearningRate = 0.01
				o.MinimumStepLength = 0.1
			},
			wantReason: StopStepTooSmall,
			wantIter:   0,
			wantDesc:   "Step too small after 0 iterations. Current step (0.01) is less than minimum step (0.1).",
		},
		{
			name:       "正常系: 勾配が許容値未満",
			ctx:        context.Background(),
			setup:      func(o *RegularStepGradientDescent) { o.GradientMagnitudeTolerance = 1e6 },
			wantReason: StopGradientMagnitude,
			wantIter:   0,
		},
		{
			name:       "正常系: キャンセル",
			ctx:        cancelled,
			setup:      func(o *RegularStepGradientDescent) {},
			wantReason: StopCancelled,
			wantIter:   0,
			wantDesc:   "Registration cancelled after 0 iterations.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := NewRegularStepGradientDescent()
			tt.setup(opt)

			result, err := opt.Optimize(tt.ctx, newQuadratic([]float64{0, 0}, []float64{10, 10}))
			require.NoError(t, err)
			assert.Equal(t, tt.wantReason, result.Stop.Reason)
			assert.Equal(t, tt.wantIter, result.Iterations)
			if tt.wantDesc != "" {
				assert.Equal(t, tt.wantDesc, result.Stop.Description())
			}
		})
	}
}

func TestRegularStepGradientDescentScales(t *testing.T) {
	opt := NewRegularStepGradientDescent()
	opt.LearningRate = 1
	opt.NumberOfIterations = 1
	opt.Scales = []float64{1, 1e-3}

	// 2番目のパラメータはスケールが小さいのでほぼその方向だけに進む
	cost := newQuadratic([]float64{0, 0}, []float64{1, 1})
	result, err := opt.Optimize(context.Background(), cost)
	require.NoError(t, err)
	assert.InDelta(t, 0, result.Params[0], 1e-2)
	assert.InDelta(t, 1, result.Params[1], 1e-2)
}

func TestRegularStepGradientDescentInvalid(t *testing.T) {
	tests := []struct {
		name  string
		setup func(o *RegularStepGradientDescent)
	}{
		{"異常系: スケールの数が不一致", func(o *RegularStepGradientDescent) { o.Scales = []float64{1} }},
		{"異常系: スケールが0", func(o *RegularStepGradientDescent) { o.Scales = []float64{1, 0} }},
		{"異常系: 学習率が0", func(o *RegularStepGradientDescent) { o.LearningRate = 0 }},
		{"異常系: 緩和係数が1", func(o *RegularStepGradientDescent) { o.RelaxationFactor = 1 }},
		{"異常系: 反復回数が0", func(o *RegularStepGradientDescent) { o.NumberOfIterations = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := NewRegularStepGradientDescent()
			tt.setup(opt)
			cost := newQuadratic([]float64{0, 0}, []float64{1, 1})
			_, err := opt.Optimize(context.Background(), cost)
			assert.Error(t, err)
			assert.Zero(t, cost.calls)
		})
	}

	opt := NewRegularStepGradientDescent()
	opt.Scales = []float64{1}
	_, err := opt.Optimize(context.Background(), newQuadratic([]float64{0, 0}, []float64{1, 1}))
	assert.ErrorIs(t, err, ErrScalesMismatch)
}

func TestRegularStepGradientDescentObserver(t *testing.T) {
	opt := NewRegularStepGradientDescent()
	opt.NumberOfIterations = 5

	var events []IterationEvent
	opt.AddObserver(ObserverFunc(func(e IterationEvent) { events = append(events, e) }))

	result, err := opt.Optimize(context.Background(), newQuadratic([]float64{0}, []float64{100}))
	require.NoError(t, err)
	require.Len(t, events, result.Iterations)
	for i, e := range events {
		assert.Equal(t, i, e.Iteration)
		assert.InDelta(t, 0.1, e.StepLength, 1e-12)
	}
	// 値は単調に減少する
	for i := 1; i < len(events); i++ {
		assert.Less(t, events[i].Value, events[i-1].Value)
	}
}

func TestRegularStepGradientDescentReturnBest(t *testing.T) {
	opt := NewRegularStepGradientDescent()
	opt.LearningRate = 4
	opt.NumberOfIterations = 2
	opt.ReturnBestParameters = true

	// 1回目で目標を大きく越えるため、最後の位置より最初の位置のほうが良い
	cost := newQuadratic([]float64{0}, []float64{1})
	result, err := opt.Optimize(context.Background(), cost)
	require.NoError(t, err)
	assert.InDelta(t, 0, result.Params[0], 1e-12)
	assert.InDelta(t, 1, result.Value, 1e-12)
}
