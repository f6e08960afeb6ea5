package imageutil

import (
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/xshoji/go-img-reg/utils"
)

// workers は並列処理に使用するワーカー数を返す
// CPUコア数は runtime.GOMAXPROCS で設定される
func workers() int {
	return runtime.GOMAXPROCS(0)
}

// MedianFilter は半径 radius の正方近傍 ((2r+1)x(2r+1)) のメディアンを求める
// 画像端では範囲内の画素のみを用いる
func MedianFilter(img *FloatImage, radius int) (*FloatImage, error) {
	if radius < 0 {
		return nil, fmt.Errorf("median radius must be >= 0, got %d", radius)
	}
	if radius == 0 || img.Empty() {
		return img.Clone(), nil
	}

	out := NewFloatImageLike(img)
	size := (2*radius + 1) * (2*radius + 1)

	err := utils.ParallelRows(img.Height, workers(), func(band utils.RowBand) error {
		window := make([]float64, 0, size)
		for y := band.Y0; y < band.Y1; y++ {
			for x := 0; x < img.Width; x++ {
				window = window[:0]
				for ny := utils.Max(0, y-radius); ny <= utils.Min(img.Height-1, y+radius); ny++ {
					for nx := utils.Max(0, x-radius); nx <= utils.Min(img.Width-1, x+radius); nx++ {
						window = append(window, img.At(nx, ny))
					}
				}
				sort.Float64s(window)
				n := len(window)
				if n%2 == 1 {
					out.Set(x, y, window[n/2])
				} else {
					out.Set(x, y, (window[n/2-1]+window[n/2])/2)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// gaussianKernel はシグマ sigma（ピクセル単位）の正規化されたガウシアン係数を返す
// 係数の半幅は ceil(3σ)
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// gaussianDerivativeKernel はガウシアンの1次微分係数を返す
// 線形関数 f(i)=i に適用したとき1になるよう正規化する
func gaussianDerivativeKernel(sigma float64) []float64 {
	g := gaussianKernel(sigma)
	radius := len(g) / 2
	kernel := make([]float64, len(g))
	moment := 0.0
	for i := -radius; i <= radius; i++ {
		v := float64(i) / (sigma * sigma) * g[i+radius]
		kernel[i+radius] = v
		moment += float64(i) * v
	}
	for i := range kernel {
		kernel[i] /= moment
	}
	return kernel
}

// correlateAxis は係数 kernel を1軸方向に適用する（境界は端の画素を複製）
// horizontal が true の場合はX方向、false の場合はY方向
func correlateAxis(img *FloatImage, kernel []float64, horizontal bool) (*FloatImage, error) {
	out := NewFloatImageLike(img)
	radius := len(kernel) / 2

	err := utils.ParallelRows(img.Height, workers(), func(band utils.RowBand) error {
		for y := band.Y0; y < band.Y1; y++ {
			for x := 0; x < img.Width; x++ {
				sum := 0.0
				for k := -radius; k <= radius; k++ {
					if horizontal {
						sum += kernel[k+radius] * img.At(utils.Clamp(x+k, 0, img.Width-1), y)
					} else {
						sum += kernel[k+radius] * img.At(x, utils.Clamp(y+k, 0, img.Height-1))
					}
				}
				out.Set(x, y, sum)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GaussianSmooth はシグマ sigma（物理単位）の分離型ガウシアン平滑化を行う
// sigma が0の場合はコピーを返す
func GaussianSmooth(img *FloatImage, sigma float64) (*FloatImage, error) {
	if sigma < 0 {
		return nil, fmt.Errorf("gaussian sigma must be >= 0, got %g", sigma)
	}
	if sigma == 0 || img.Empty() {
		return img.Clone(), nil
	}

	tmp, err := correlateAxis(img, gaussianKernel(sigma/img.Spacing.X), true)
	if err != nil {
		return nil, err
	}
	return correlateAxis(tmp, gaussianKernel(sigma/img.Spacing.Y), false)
}

// GradientMagnitude はシグマ sigma（物理単位）のガウシアン微分による勾配強度を求める
func GradientMagnitude(img *FloatImage, sigma float64) (*FloatImage, error) {
	if sigma <= 0 {
		return nil, fmt.Errorf("gradient sigma must be > 0, got %g", sigma)
	}
	if img.Empty() {
		return nil, ErrEmptyImage
	}

	sx := sigma / img.Spacing.X
	sy := sigma / img.Spacing.Y

	// X方向の微分: Y方向に平滑化してからX方向に微分
	smoothY, err := correlateAxis(img, gaussianKernel(sy), false)
	if err != nil {
		return nil, err
	}
	gx, err := correlateAxis(smoothY, gaussianDerivativeKernel(sx), true)
	if err != nil {
		return nil, err
	}

	// Y方向の微分: X方向に平滑化してからY方向に微分
	smoothX, err := correlateAxis(img, gaussianKernel(sx), true)
	if err != nil {
		return nil, err
	}
	gy, err := correlateAxis(smoothX, gaussianDerivativeKernel(sy), false)
	if err != nil {
		return nil, err
	}

	out := NewFloatImageLike(img)
	for i := range out.Pix {
		dx := gx.Pix[i] / img.Spacing.X
		dy := gy.Pix[i] / img.Spacing.Y
		out.Pix[i] = math.Hypot(dx, dy)
	}
	return out, nil
}

// Shrink は整数倍率 factor で画像を縮小する
// 各画素は factor x factor ブロックの平均で、原点は最初のブロックの中心に移る
func Shrink(img *FloatImage, factor int) (*FloatImage, error) {
	if factor < 1 {
		return nil, fmt.Errorf("shrink factor must be >= 1, got %d", factor)
	}
	if factor == 1 || img.Empty() {
		return img.Clone(), nil
	}

	width := utils.Max(1, img.Width/factor)
	height := utils.Max(1, img.Height/factor)
	center := float64(factor-1) / 2

	out := NewFloatImage(width, height)
	out.Spacing = img.Spacing.Scale(float64(factor))
	out.Origin = img.IndexToPhysical(center, center)

	for y := 0; y < height; y++ {
		y0, y1 := y*factor, utils.Min((y+1)*factor, img.Height)
		for x := 0; x < width; x++ {
			x0, x1 := x*factor, utils.Min((x+1)*factor, img.Width)
			sum := 0.0
			for sy := y0; sy < y1; sy++ {
				for sx := x0; sx < x1; sx++ {
					sum += img.At(sx, sy)
				}
			}
			out.Set(x, y, sum/float64((y1-y0)*(x1-x0)))
		}
	}
	return out, nil
}
