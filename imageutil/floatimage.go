package imageutil

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/xshoji/go-img-reg/geometry"
)

// ErrSizeMismatch は画像サイズが一致しない場合に返される
var ErrSizeMismatch = errors.New("image size mismatch")

// ErrEmptyImage は画素を持たない画像が渡された場合に返される
var ErrEmptyImage = errors.New("empty image")

// FloatImage はスカラー値の2次元画像
// 画素 (i, j) の物理座標は Origin + (i*Spacing.X, j*Spacing.Y)
type FloatImage struct {
	Width, Height int
	Pix           []float64 // 行優先で格納した画素値
	Origin        geometry.Point2D
	Spacing       geometry.Point2D
}

// NewFloatImage は原点(0,0)、画素間隔(1,1)の空画像を作成する
func NewFloatImage(width, height int) *FloatImage {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &FloatImage{
		Width:   width,
		Height:  height,
		Pix:     make([]float64, width*height),
		Spacing: geometry.Point2D{X: 1, Y: 1},
	}
}

// NewFloatImageLike は同じ格子（サイズ・原点・間隔）を持つ空画像を作成する
func NewFloatImageLike(img *FloatImage) *FloatImage {
	out := NewFloatImage(img.Width, img.Height)
	out.Origin = img.Origin
	out.Spacing = img.Spacing
	return out
}

// FromImage は image.Image を輝度値の FloatImage に変換する
// 16ビット画像は0～65535、それ以外は0～255の範囲になる
func FromImage(img image.Image) *FloatImage {
	bounds := img.Bounds()
	out := NewFloatImage(bounds.Dx(), bounds.Dy())

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				out.Pix[y*out.Width+x] = float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	case *image.Gray16:
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				out.Pix[y*out.Width+x] = float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	default:
		// カラー画像は輝度に変換する
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				g := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
				out.Pix[y*out.Width+x] = float64(g.Y)
			}
		}
	}

	return out
}

// Clone は画像のコピーを返す
func (f *FloatImage) Clone() *FloatImage {
	out := NewFloatImageLike(f)
	copy(out.Pix, f.Pix)
	return out
}

// At は画素 (x, y) の値を返す
func (f *FloatImage) At(x, y int) float64 {
	return f.Pix[y*f.Width+x]
}

// Set は画素 (x, y) に値を設定する
func (f *FloatImage) Set(x, y int, v float64) {
	f.Pix[y*f.Width+x] = v
}

// Empty は画素を持たない場合に true を返す
func (f *FloatImage) Empty() bool {
	return f.Width == 0 || f.Height == 0
}

// IndexToPhysical は画素インデックスを物理座標に変換する
func (f *FloatImage) IndexToPhysical(x, y float64) geometry.Point2D {
	return geometry.Point2D{
		X: f.Origin.X + x*f.Spacing.X,
		Y: f.Origin.Y + y*f.Spacing.Y,
	}
}

// PhysicalToIndex は物理座標を連続インデックスに変換する
func (f *FloatImage) PhysicalToIndex(p geometry.Point2D) (float64, float64) {
	return (p.X - f.Origin.X) / f.Spacing.X, (p.Y - f.Origin.Y) / f.Spacing.Y
}

// Center は画像の物理的な中心座標を返す
func (f *FloatImage) Center() geometry.Point2D {
	return f.IndexToPhysical(float64(f.Width-1)/2, float64(f.Height-1)/2)
}

// SameGrid は2つの画像が同じ格子を持つかを返す
func (f *FloatImage) SameGrid(g *FloatImage) bool {
	return f.Width == g.Width && f.Height == g.Height &&
		f.Origin == g.Origin && f.Spacing == g.Spacing
}

// Interpolate は物理座標 p における値を双線形補間で求める
// 画像の範囲外の場合は ok=false を返す
func (f *FloatImage) Interpolate(p geometry.Point2D) (value float64, ok bool) {
	ix, iy := f.PhysicalToIndex(p)
	return f.InterpolateIndex(ix, iy)
}

// InterpolateIndex は連続インデックス (ix, iy) における値を双線形補間で求める
func (f *FloatImage) InterpolateIndex(ix, iy float64) (float64, bool) {
	if f.Empty() || ix < 0 || iy < 0 || ix > float64(f.Width-1) || iy > float64(f.Height-1) {
		return 0, false
	}

	x0 := int(math.Floor(ix))
	y0 := int(math.Floor(iy))
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 >= f.Width {
		x1 = x0
	}
	if y1 >= f.Height {
		y1 = y0
	}
	dx := ix - float64(x0)
	dy := iy - float64(y0)

	top := f.At(x0, y0)*(1-dx) + f.At(x1, y0)*dx
	bottom := f.At(x0, y1)*(1-dx) + f.At(x1, y1)*dx
	return top*(1-dy) + bottom*dy, true
}

// Gradient は中心差分による物理座標系での勾配画像 (d/dx, d/dy) を返す
// 境界では片側差分を用いる
func (f *FloatImage) Gradient() (gx, gy *FloatImage) {
	gx = NewFloatImageLike(f)
	gy = NewFloatImageLike(f)

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			gx.Set(x, y, f.derivative(x, y, 1, 0)/f.Spacing.X)
			gy.Set(x, y, f.derivative(x, y, 0, 1)/f.Spacing.Y)
		}
	}
	return gx, gy
}

func (f *FloatImage) derivative(x, y, dx, dy int) float64 {
	xp, yp := x+dx, y+dy
	xm, ym := x-dx, y-dy
	denom := 2.0
	if xp >= f.Width || yp >= f.Height {
		xp, yp = x, y
		denom = 1
	}
	if xm < 0 || ym < 0 {
		xm, ym = x, y
		denom = 1
	}
	if xp == xm && yp == ym {
		return 0
	}
	return (f.At(xp, yp) - f.At(xm, ym)) / denom
}

// ToGray は値を0～255にクランプした8ビット画像に変換する
func (f *FloatImage) ToGray() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	for i, v := range f.Pix {
		out.Pix[i] = uint8(clampRound(v, 0, math.MaxUint8))
	}
	return out
}

// ToGray16 は値を0～65535にクランプした16ビット画像に変換する
func (f *FloatImage) ToGray16() *image.Gray16 {
	out := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			out.SetGray16(x, y, color.Gray16{Y: uint16(clampRound(f.At(x, y), 0, math.MaxUint16))})
		}
	}
	return out
}

func (f *FloatImage) String() string {
	return fmt.Sprintf("%dx%d origin=%s spacing=%s", f.Width, f.Height, f.Origin, f.Spacing)
}

func clampRound(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, math.Round(v)))
}
