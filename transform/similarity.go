package transform

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/xshoji/go-img-reg/geometry"
)

// Similarity2D は回転中心を持つ相似変換
// パラメータは [スケール, 角度, 中心X, 中心Y, 平行移動X, 平行移動Y]
// T(x) = sR(角度)(x - c) + c + t
type Similarity2D struct {
	scale       float64
	angle       float64
	center      geometry.Point2D
	translation geometry.Point2D
}

// NewSimilarity2D は恒等写像となる相似変換を作成する
func NewSimilarity2D() *Similarity2D {
	return &Similarity2D{scale: 1}
}

func (s *Similarity2D) Kind() Kind     { return KindSimilarity }
func (s *Similarity2D) NumParams() int { return 6 }

func (s *Similarity2D) Params() []float64 {
	return []float64{s.scale, s.angle, s.center.X, s.center.Y, s.translation.X, s.translation.Y}
}

func (s *Similarity2D) SetParams(params []float64) error {
	if err := checkParams(s, params); err != nil {
		return err
	}
	if params[0] <= 0 {
		return fmt.Errorf("%w: %g", ErrInvalidScale, params[0])
	}
	s.scale = params[0]
	s.angle = params[1]
	s.center = geometry.Point2D{X: params[2], Y: params[3]}
	s.translation = geometry.Point2D{X: params[4], Y: params[5]}
	return nil
}

// Scale はスケールを返す
func (s *Similarity2D) Scale() float64 { return s.scale }

// SetScale はスケールを設定する
func (s *Similarity2D) SetScale(scale float64) error {
	if scale <= 0 {
		return fmt.Errorf("%w: %g", ErrInvalidScale, scale)
	}
	s.scale = scale
	return nil
}

// Angle は回転角（ラジアン）を返す
func (s *Similarity2D) Angle() float64 { return s.angle }

// SetAngle は回転角（ラジアン）を設定する
func (s *Similarity2D) SetAngle(angle float64) { s.angle = angle }

func (s *Similarity2D) Center() geometry.Point2D          { return s.center }
func (s *Similarity2D) SetCenter(c geometry.Point2D)      { s.center = c }
func (s *Similarity2D) Translation() geometry.Point2D     { return s.translation }
func (s *Similarity2D) SetTranslation(t geometry.Point2D) { s.translation = t }

func (s *Similarity2D) TransformPoint(p geometry.Point2D) geometry.Point2D {
	return p.Sub(s.center).Rotate(s.angle).Scale(s.scale).Add(s.center).Add(s.translation)
}

func (s *Similarity2D) Jacobian(p geometry.Point2D, jac *mat.Dense) {
	sn, cs := math.Sincos(s.angle)
	d := p.Sub(s.center)

	// スケール: R (x - c)
	jac.Set(0, 0, cs*d.X-sn*d.Y)
	jac.Set(1, 0, sn*d.X+cs*d.Y)
	// 角度: s dR/dθ (x - c)
	jac.Set(0, 1, s.scale*(-sn*d.X-cs*d.Y))
	jac.Set(1, 1, s.scale*(cs*d.X-sn*d.Y))
	// 中心: I - sR
	jac.Set(0, 2, 1-s.scale*cs)
	jac.Set(1, 2, -s.scale*sn)
	jac.Set(0, 3, s.scale*sn)
	jac.Set(1, 3, 1-s.scale*cs)
	// 平行移動: I
	jac.Set(0, 4, 1)
	jac.Set(1, 4, 0)
	jac.Set(0, 5, 0)
	jac.Set(1, 5, 1)
}

func (s *Similarity2D) Matrix() *mat.Dense {
	sn, cs := math.Sincos(s.angle)
	return mat.NewDense(2, 2, []float64{s.scale * cs, -s.scale * sn, s.scale * sn, s.scale * cs})
}

func (s *Similarity2D) Offset() geometry.Point2D { return offsetOf(s) }

func (s *Similarity2D) Clone() Transform {
	clone := *s
	return &clone
}

func (s *Similarity2D) String() string {
	return fmt.Sprintf("Similarity2D(scale=%.6f, angle=%.6f, center=%s, translation=%s)",
		s.scale, s.angle, s.center, s.translation)
}
