package imageutil

import (
	"github.com/xshoji/go-img-reg/geometry"
)

// Mask は評価関数の計算対象を制限する2値マスク
// 値が0以外の画素が内側となる
type Mask struct {
	img *FloatImage
}

// NewMask は画像から2値マスクを作成する
func NewMask(img *FloatImage) *Mask {
	return &Mask{img: img}
}

// IsInside は物理座標 p が最近傍画素でマスクの内側にあるかを返す
func (m *Mask) IsInside(p geometry.Point2D) bool {
	ix, iy := m.img.PhysicalToIndex(p)
	x := int(ix + 0.5)
	y := int(iy + 0.5)
	if ix < -0.5 || iy < -0.5 || x >= m.img.Width || y >= m.img.Height {
		return false
	}
	return m.img.At(x, y) != 0
}

// Count はマスク内側の画素数を返す
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.img.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// Image はマスクの元画像を返す
func (m *Mask) Image() *FloatImage {
	return m.img
}
