// transform パッケージは2次元の空間変換（剛体・相似・アフィン）と初期化処理を提供します
//
// すべての変換は固定画像の物理座標を移動画像の物理座標へ写像します。
package transform

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/xshoji/go-img-reg/geometry"
)

var (
	// ErrParamCount はパラメータ数が変換と一致しない場合に返される
	ErrParamCount = errors.New("parameter count mismatch")
	// ErrInvalidScale は相似変換のスケールが正でない場合に返される
	ErrInvalidScale = errors.New("scale must be positive")
	// ErrUnknownKind は未知の変換の種類が指定された場合に返される
	ErrUnknownKind = errors.New("unknown transform kind")
	// ErrSingular は逆変換が存在しない場合に返される
	ErrSingular = errors.New("transform is not invertible")
)

// Kind は変換の種類
type Kind int

const (
	KindIdentity Kind = iota
	KindRigid
	KindSimilarity
	KindAffine
)

func (k Kind) String() string {
	switch k {
	case KindIdentity:
		return "identity"
	case KindRigid:
		return "rigid"
	case KindSimilarity:
		return "similarity"
	case KindAffine:
		return "affine"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind は文字列から変換の種類を求める
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "identity":
		return KindIdentity, nil
	case "rigid":
		return KindRigid, nil
	case "similarity":
		return KindSimilarity, nil
	case "affine":
		return KindAffine, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Transform は最適化対象のパラメータを持つ2次元変換
type Transform interface {
	Kind() Kind
	NumParams() int
	// Params は現在のパラメータのコピーを返す
	Params() []float64
	SetParams(params []float64) error
	TransformPoint(p geometry.Point2D) geometry.Point2D
	// Jacobian は点 p におけるパラメータに関する偏微分 (2 x NumParams) を jac に書き込む
	Jacobian(p geometry.Point2D, jac *mat.Dense)
	// Matrix は線形部分の2x2行列を返す
	Matrix() *mat.Dense
	// Offset は T(x) = Matrix*x + Offset となる平行移動成分を返す
	Offset() geometry.Point2D
	Clone() Transform
	String() string
}

// Centered は回転中心と平行移動を持つ変換（初期化処理の対象）
type Centered interface {
	Transform
	Center() geometry.Point2D
	SetCenter(c geometry.Point2D)
	Translation() geometry.Point2D
	SetTranslation(t geometry.Point2D)
}

// New は指定された種類の恒等変換を作成する
func New(kind Kind) (Transform, error) {
	switch kind {
	case KindIdentity:
		return NewIdentity(), nil
	case KindRigid:
		return NewRigid2D(), nil
	case KindSimilarity:
		return NewSimilarity2D(), nil
	case KindAffine:
		return NewAffine(), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}
}

// checkParams はパラメータ数を確認する
func checkParams(t Transform, params []float64) error {
	if len(params) != t.NumParams() {
		return fmt.Errorf("%w: %s transform needs %d parameters, got %d",
			ErrParamCount, t.Kind(), t.NumParams(), len(params))
	}
	return nil
}

// offsetOf は T(x) = A*x + offset の offset を T(0) として求める
func offsetOf(t Transform) geometry.Point2D {
	return t.TransformPoint(geometry.Point2D{})
}

// formatMatrix は2x2行列を1行の文字列にする
func formatMatrix(m *mat.Dense) string {
	return fmt.Sprintf("[[%.6f, %.6f], [%.6f, %.6f]]", m.At(0, 0), m.At(0, 1), m.At(1, 0), m.At(1, 1))
}

// Identity は恒等変換（パラメータなし）
type Identity struct{}

// NewIdentity は恒等変換を作成する
func NewIdentity() *Identity { return &Identity{} }

func (*Identity) Kind() Kind               { return KindIdentity }
func (*Identity) NumParams() int           { return 0 }
func (*Identity) Params() []float64        { return []float64{} }
func (i *Identity) Clone() Transform       { return &Identity{} }
func (*Identity) String() string           { return "Identity" }
func (*Identity) Offset() geometry.Point2D { return geometry.Point2D{} }

func (i *Identity) SetParams(params []float64) error {
	return checkParams(i, params)
}

func (*Identity) TransformPoint(p geometry.Point2D) geometry.Point2D { return p }

func (*Identity) Jacobian(geometry.Point2D, *mat.Dense) {}

func (*Identity) Matrix() *mat.Dense {
	return mat.NewDense(2, 2, []float64{1, 0, 0, 1})
}
