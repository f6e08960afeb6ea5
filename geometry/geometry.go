// geometry パッケージは物理座標系の2次元の点とベクトルを提供します
package geometry

import (
	"fmt"
	"math"
)

// Point2D は物理座標系上の点（またはベクトル）
type Point2D struct {
	X, Y float64
}

// Add は p+q を返す
func (p Point2D) Add(q Point2D) Point2D {
	return Point2D{p.X + q.X, p.Y + q.Y}
}

// Sub は p-q を返す
func (p Point2D) Sub(q Point2D) Point2D {
	return Point2D{p.X - q.X, p.Y - q.Y}
}

// Scale は各成分を s 倍した点を返す
func (p Point2D) Scale(s float64) Point2D {
	return Point2D{p.X * s, p.Y * s}
}

// Norm はベクトルの長さを返す
func (p Point2D) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Rotate は原点まわりに angle ラジアン回転した点を返す
func (p Point2D) Rotate(angle float64) Point2D {
	s, c := math.Sincos(angle)
	return Point2D{c*p.X - s*p.Y, s*p.X + c*p.Y}
}

func (p Point2D) String() string {
	return fmt.Sprintf("[%.6f, %.6f]", p.X, p.Y)
}
