package registration

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrScalesMismatch はスケールの数がパラメータ数と一致しない場合に返される
var ErrScalesMismatch = errors.New("number of scales does not match number of parameters")

// StopReason は最適化が終了した理由
type StopReason int

const (
	StopNone StopReason = iota
	StopMaximumIterations
	StopStepTooSmall
	StopGradientMagnitude
	StopCancelled
)

func (r StopReason) String() string {
	switch r {
	case StopMaximumIterations:
		return "MaximumNumberOfIterations"
	case StopStepTooSmall:
		return "StepTooSmall"
	case StopGradientMagnitude:
		return "GradientMagnitudeTolerance"
	case StopCancelled:
		return "Cancelled"
	default:
		return "None"
	}
}

// StopCondition は終了理由と説明用の数値を保持する
type StopCondition struct {
	Reason     StopReason
	Iterations int
	Current    float64 // 終了時のステップ長または勾配の大きさ
	Limit      float64 // 比較した閾値
}

// Description は終了理由を人が読める文で返す
func (s StopCondition) Description() string {
	switch s.Reason {
	case StopMaximumIterations:
		return fmt.Sprintf("Maximum number of iterations (%d) exceeded.", s.Iterations)
	case StopStepTooSmall:
		return fmt.Sprintf("Step too small after %d iterations. Current step (%g) is less than minimum step (%g).",
			s.Iterations, s.Current, s.Limit)
	case StopGradientMagnitude:
		return fmt.Sprintf("Gradient magnitude tolerance met after %d iterations. Gradient magnitude (%g) is less than gradient magnitude tolerance (%g).",
			s.Iterations, s.Current, s.Limit)
	case StopCancelled:
		return fmt.Sprintf("Registration cancelled after %d iterations.", s.Iterations)
	default:
		return "Optimization has not run."
	}
}

// Optimizable は最適化対象のコスト関数
// ValueAndDerivative の微分は値を減少させる方向を返す
type Optimizable interface {
	NumParams() int
	Params() []float64
	SetParams(params []float64) error
	ValueAndDerivative() (float64, []float64, error)
}

// OptimizeResult は1回の最適化の結果
type OptimizeResult struct {
	Stop       StopCondition
	Iterations int
	Value      float64
	Params     []float64
}

// RegularStepGradientDescent は勾配の向きが反転するたびにステップを縮める勾配降下法
type RegularStepGradientDescent struct {
	LearningRate               float64
	MinimumStepLength          float64
	RelaxationFactor           float64
	GradientMagnitudeTolerance float64
	NumberOfIterations         int
	Scales                     []float64 // 空の場合はすべて1
	ReturnBestParameters       bool

	observers []Observer
	level     int
}

// NewRegularStepGradientDescent はよく使われる既定値で最適化器を生成する
func NewRegularStepGradientDescent() *RegularStepGradientDescent {
	return &RegularStepGradientDescent{
		LearningRate:               0.1,
		MinimumStepLength:          0.001,
		RelaxationFactor:           0.5,
		GradientMagnitudeTolerance: 1e-4,
		NumberOfIterations:         200,
	}
}

// AddObserver は反復ごとの通知先を登録する
func (o *RegularStepGradientDescent) AddObserver(observer Observer) {
	o.observers = append(o.observers, observer)
}

func (o *RegularStepGradientDescent) validate(numParams int) error {
	if numParams == 0 {
		return ErrNoParameters
	}
	if o.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive: %g", o.LearningRate)
	}
	if o.RelaxationFactor <= 0 || o.RelaxationFactor >= 1 {
		return fmt.Errorf("relaxation factor must be in (0, 1): %g", o.RelaxationFactor)
	}
	if o.NumberOfIterations <= 0 {
		return fmt.Errorf("number of iterations must be positive: %d", o.NumberOfIterations)
	}
	if len(o.Scales) != 0 {
		if len(o.Scales) != numParams {
			return fmt.Errorf("%w: %d scales for %d parameters", ErrScalesMismatch, len(o.Scales), numParams)
		}
		for i, s := range o.Scales {
			if s <= 0 {
				return fmt.Errorf("scale[%d] must be positive: %g", i, s)
			}
		}
	}
	return nil
}

// Optimize はコスト関数を終了条件を満たすまで最適化する
// ctx がキャンセルされると反復の区切りで停止し、それまでのパラメータを残す
func (o *RegularStepGradientDescent) Optimize(ctx context.Context, cost Optimizable) (*OptimizeResult, error) {
	n := cost.NumParams()
	if err := o.validate(n); err != nil {
		return nil, err
	}

	relaxation := 1.0
	previousStep := make([]float64, n)
	bestValue := math.Inf(1)
	var bestParams []float64
	var value float64
	var stop StopCondition

	iteration := 0
	for {
		if iteration >= o.NumberOfIterations {
			stop = StopCondition{Reason: StopMaximumIterations, Iterations: o.NumberOfIterations}
			break
		}
		if ctx.Err() != nil {
			stop = StopCondition{Reason: StopCancelled, Iterations: iteration}
			break
		}

		v, derivative, err := cost.ValueAndDerivative()
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iteration, err)
		}
		value = v
		if o.ReturnBestParameters && value < bestValue {
			bestValue = value
			bestParams = cost.Params()
		}

		gradient := append([]float64(nil), derivative...)
		if len(o.Scales) != 0 {
			floats.Div(gradient, o.Scales)
		}

		magnitude := floats.Norm(gradient, 2)
		if magnitude < o.GradientMagnitudeTolerance {
			stop = StopCondition{Reason: StopGradientMagnitude, Iterations: iteration,
				Current: magnitude, Limit: o.GradientMagnitudeTolerance}
			break
		}

		// 前回の移動方向と逆向きになったら振動しているとみなして緩和する
		if floats.Dot(gradient, previousStep) < 0 {
			relaxation *= o.RelaxationFactor
		}
		stepLength := relaxation * o.LearningRate
		if stepLength < o.MinimumStepLength {
			stop = StopCondition{Reason: StopStepTooSmall, Iterations: iteration,
				Current: stepLength, Limit: o.MinimumStepLength}
			break
		}

		floats.Scale(stepLength/magnitude, gradient)
		params := cost.Params()
		floats.Add(params, gradient)
		if err := cost.SetParams(params); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iteration, err)
		}
		previousStep = gradient

		event := IterationEvent{
			Level:             o.level,
			Iteration:         iteration,
			Value:             value,
			StepLength:        stepLength,
			GradientMagnitude: magnitude,
			Params:            cost.Params(),
		}
		for _, observer := range o.observers {
			observer.OnIteration(event)
		}
		iteration++
	}

	if o.ReturnBestParameters && bestParams != nil {
		if err := cost.SetParams(bestParams); err != nil {
			return nil, err
		}
		value = bestValue
	}

	return &OptimizeResult{
		Stop:       stop,
		Iterations: iteration,
		Value:      value,
		Params:     cost.Params(),
	}, nil
}
