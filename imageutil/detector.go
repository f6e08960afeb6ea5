package imageutil

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"
)

const (
	// 残差領域に加える余白
	regionPadding = 5
	// 残差領域の最小サイズ
	regionMinSize = 20
)

// GenerateResidualImage は位置合わせ後に残った差分を強調した画像を生成する
// 位置合わせ後の画像をベースにして、残差領域を赤枠で囲み固定画像を透過表示する
func (a *Analyzer) GenerateResidualImage(fixed, registered *FloatImage) (*image.RGBA, []image.Rectangle, error) {
	if err := checkSameSize(fixed, registered); err != nil {
		return nil, nil, err
	}
	fmt.Printf("[INFO] Generating residual image (%dx%d)...\n", fixed.Width, fixed.Height)
	startTime := time.Now()

	// 両画像を共通の輝度範囲で0～255に変換する
	fixed8, registered8 := normalizePair(fixed, registered)

	result := image.NewRGBA(image.Rect(0, 0, fixed.Width, fixed.Height))
	draw.Draw(result, result.Bounds(), registered8.ToGray(), image.Point{}, draw.Src)

	regions := a.detectResidualRegions(fixed8, registered8)
	fmt.Printf("[INFO] Found %d residual regions\n", len(regions))

	if a.cfg.ShowTransparentOverlay {
		fmt.Printf("[INFO] Applying overlay with transparency: %.1f%%\n", a.cfg.OverlayTransparency*100)
	}
	a.drawRedBorders(result, regions, fixed8.ToGray())

	fmt.Printf("[INFO] Residual image generation completed in %.2f seconds\n", time.Since(startTime).Seconds())
	return result, regions, nil
}

// HasResiduals は閾値を超える残差が存在するかを返す
func (a *Analyzer) HasResiduals(fixed, registered *FloatImage) (bool, error) {
	if err := checkSameSize(fixed, registered); err != nil {
		return false, err
	}
	fixed8, registered8 := normalizePair(fixed, registered)
	threshold := float64(a.cfg.Threshold)
	for i := range fixed8.Pix {
		if math.Abs(fixed8.Pix[i]-registered8.Pix[i]) > threshold {
			return true, nil
		}
	}
	return false, nil
}

// normalizePair は2つの画像を共通の最小値・最大値で0～255に線形変換する
func normalizePair(a, b *FloatImage) (*FloatImage, *FloatImage) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, img := range []*FloatImage{a, b} {
		for _, v := range img.Pix {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}

	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}
	convert := func(img *FloatImage) *FloatImage {
		out := NewFloatImageLike(img)
		for i, v := range img.Pix {
			out.Pix[i] = (v - lo) * scale
		}
		return out
	}
	return convert(a), convert(b)
}

// detectResidualRegions は閾値を超える残差画素を連結成分ごとに矩形へまとめる
func (a *Analyzer) detectResidualRegions(fixed, registered *FloatImage) []image.Rectangle {
	width, height := fixed.Width, fixed.Height
	threshold := float64(a.cfg.Threshold)

	// 残差マップを作成
	diffMap := make([]bool, width*height)
	for i := range diffMap {
		diffMap[i] = math.Abs(fixed.Pix[i]-registered.Pix[i]) > threshold
	}

	bounds := image.Rect(0, 0, width, height)
	visited := make([]bool, width*height)
	var regions []image.Rectangle
	stack := make([]int, 0, 64)

	// 8近傍の連結成分をスタックで走査する
	for start := range diffMap {
		if !diffMap[start] || visited[start] {
			continue
		}

		rect := image.Rect(start%width, start/width, start%width+1, start/width+1)
		visited[start] = true
		stack = append(stack[:0], start)

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%width, idx/width
			rect = rect.Union(image.Rect(x, y, x+1, y+1))

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= width || ny >= height {
						continue
					}
					n := ny*width + nx
					if diffMap[n] && !visited[n] {
						visited[n] = true
						stack = append(stack, n)
					}
				}
			}
		}

		regions = append(regions, expandRect(rect, regionPadding, regionMinSize, bounds))
	}

	merged := mergeOverlappingRectangles(regions)
	if len(merged) < len(regions) {
		fmt.Printf("[INFO] Merged %d residual regions into %d combined regions\n", len(regions), len(merged))
	}
	return merged
}

// toRGBA は色を color.RGBA に変換する
func toRGBA(c color.Color) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}
