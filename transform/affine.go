package transform

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/xshoji/go-img-reg/geometry"
)

// Affine は回転中心を持つ2次元アフィン変換
// パラメータは [a11, a12, a21, a22, 平行移動X, 平行移動Y]、中心は固定パラメータ
// T(x) = A(x - c) + c + t
type Affine struct {
	matrix      [4]float64
	center      geometry.Point2D
	translation geometry.Point2D
}

// NewAffine は恒等写像となるアフィン変換を作成する
func NewAffine() *Affine {
	return &Affine{matrix: [4]float64{1, 0, 0, 1}}
}

func (a *Affine) Kind() Kind     { return KindAffine }
func (a *Affine) NumParams() int { return 6 }

func (a *Affine) Params() []float64 {
	return []float64{a.matrix[0], a.matrix[1], a.matrix[2], a.matrix[3], a.translation.X, a.translation.Y}
}

func (a *Affine) SetParams(params []float64) error {
	if err := checkParams(a, params); err != nil {
		return err
	}
	copy(a.matrix[:], params[:4])
	a.translation = geometry.Point2D{X: params[4], Y: params[5]}
	return nil
}

func (a *Affine) Center() geometry.Point2D          { return a.center }
func (a *Affine) SetCenter(c geometry.Point2D)      { a.center = c }
func (a *Affine) Translation() geometry.Point2D     { return a.translation }
func (a *Affine) SetTranslation(t geometry.Point2D) { a.translation = t }

// SetMatrix は線形部分を設定する
func (a *Affine) SetMatrix(m mat.Matrix) {
	a.matrix = [4]float64{m.At(0, 0), m.At(0, 1), m.At(1, 0), m.At(1, 1)}
}

func (a *Affine) TransformPoint(p geometry.Point2D) geometry.Point2D {
	d := p.Sub(a.center)
	return geometry.Point2D{
		X: a.matrix[0]*d.X + a.matrix[1]*d.Y,
		Y: a.matrix[2]*d.X + a.matrix[3]*d.Y,
	}.Add(a.center).Add(a.translation)
}

func (a *Affine) Jacobian(p geometry.Point2D, jac *mat.Dense) {
	d := p.Sub(a.center)
	jac.Zero()
	jac.Set(0, 0, d.X)
	jac.Set(0, 1, d.Y)
	jac.Set(1, 2, d.X)
	jac.Set(1, 3, d.Y)
	jac.Set(0, 4, 1)
	jac.Set(1, 5, 1)
}

func (a *Affine) Matrix() *mat.Dense {
	return mat.NewDense(2, 2, []float64{a.matrix[0], a.matrix[1], a.matrix[2], a.matrix[3]})
}

func (a *Affine) Offset() geometry.Point2D { return offsetOf(a) }

// RotationAngle は行列の第1列から求めた回転角（ラジアン）を返す
func (a *Affine) RotationAngle() float64 {
	return math.Atan2(a.matrix[2], a.matrix[0])
}

// Inverse は逆変換を返す（中心は同じ）
// T^-1(y) = A^-1(y - c) + c - A^-1 t
func (a *Affine) Inverse() (*Affine, error) {
	var inv mat.Dense
	if err := inv.Inverse(a.Matrix()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	var t mat.VecDense
	t.MulVec(&inv, mat.NewVecDense(2, []float64{a.translation.X, a.translation.Y}))

	out := NewAffine()
	out.SetMatrix(&inv)
	out.center = a.center
	out.translation = geometry.Point2D{X: -t.AtVec(0), Y: -t.AtVec(1)}
	return out, nil
}

func (a *Affine) Clone() Transform {
	clone := *a
	return &clone
}

func (a *Affine) String() string {
	return fmt.Sprintf("Affine(matrix=%s, center=%s, translation=%s)",
		formatMatrix(a.Matrix()), a.center, a.translation)
}
