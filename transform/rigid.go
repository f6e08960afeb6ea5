package transform

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/xshoji/go-img-reg/geometry"
)

// Rigid2D は回転中心を持つ剛体変換
// パラメータは [角度, 中心X, 中心Y, 平行移動X, 平行移動Y]
// T(x) = R(角度)(x - c) + c + t
type Rigid2D struct {
	angle       float64
	center      geometry.Point2D
	translation geometry.Point2D
}

// NewRigid2D は恒等写像となる剛体変換を作成する
func NewRigid2D() *Rigid2D {
	return &Rigid2D{}
}

func (r *Rigid2D) Kind() Kind     { return KindRigid }
func (r *Rigid2D) NumParams() int { return 5 }

func (r *Rigid2D) Params() []float64 {
	return []float64{r.angle, r.center.X, r.center.Y, r.translation.X, r.translation.Y}
}

func (r *Rigid2D) SetParams(params []float64) error {
	if err := checkParams(r, params); err != nil {
		return err
	}
	r.angle = params[0]
	r.center = geometry.Point2D{X: params[1], Y: params[2]}
	r.translation = geometry.Point2D{X: params[3], Y: params[4]}
	return nil
}

// Angle は回転角（ラジアン）を返す
func (r *Rigid2D) Angle() float64 { return r.angle }

// SetAngle は回転角（ラジアン）を設定する
func (r *Rigid2D) SetAngle(angle float64) { r.angle = angle }

func (r *Rigid2D) Center() geometry.Point2D          { return r.center }
func (r *Rigid2D) SetCenter(c geometry.Point2D)      { r.center = c }
func (r *Rigid2D) Translation() geometry.Point2D     { return r.translation }
func (r *Rigid2D) SetTranslation(t geometry.Point2D) { r.translation = t }

func (r *Rigid2D) TransformPoint(p geometry.Point2D) geometry.Point2D {
	return p.Sub(r.center).Rotate(r.angle).Add(r.center).Add(r.translation)
}

func (r *Rigid2D) Jacobian(p geometry.Point2D, jac *mat.Dense) {
	s, c := math.Sincos(r.angle)
	d := p.Sub(r.center)

	// 角度: dR/dθ (x - c)
	jac.Set(0, 0, -s*d.X-c*d.Y)
	jac.Set(1, 0, c*d.X-s*d.Y)
	// 中心: I - R
	jac.Set(0, 1, 1-c)
	jac.Set(1, 1, -s)
	jac.Set(0, 2, s)
	jac.Set(1, 2, 1-c)
	// 平行移動: I
	jac.Set(0, 3, 1)
	jac.Set(1, 3, 0)
	jac.Set(0, 4, 0)
	jac.Set(1, 4, 1)
}

func (r *Rigid2D) Matrix() *mat.Dense {
	s, c := math.Sincos(r.angle)
	return mat.NewDense(2, 2, []float64{c, -s, s, c})
}

func (r *Rigid2D) Offset() geometry.Point2D { return offsetOf(r) }

func (r *Rigid2D) Clone() Transform {
	clone := *r
	return &clone
}

func (r *Rigid2D) String() string {
	return fmt.Sprintf("Rigid2D(angle=%.6f, center=%s, translation=%s)", r.angle, r.center, r.translation)
}
