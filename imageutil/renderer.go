package imageutil

import (
	"image"
	"image/color"
)

// 枠の太さ
const borderThickness = 3

// drawRedBorders は指定された領域に赤枠を描画し、領域内に固定画像を透過表示する
func (a *Analyzer) drawRedBorders(img *image.RGBA, regions []image.Rectangle, fixed *image.Gray) {
	red := color.RGBA{255, 0, 0, 255}

	for _, rect := range regions {
		rect = rect.Intersect(img.Bounds())

		// 1. 残差領域内（枠の内側）に固定画像を透過表示
		if fixed != nil && a.cfg.ShowTransparentOverlay {
			inner := rect.Inset(borderThickness)
			for y := inner.Min.Y; y < inner.Max.Y; y++ {
				for x := inner.Min.X; x < inner.Max.X; x++ {
					blended := blendColors(
						img.RGBAAt(x, y),
						toRGBA(fixed.GrayAt(x, y)),
						a.cfg.OverlayTransparency,
						a.cfg.OverlayTint,
						a.cfg.UseTint,
						a.cfg.TintStrength,
						a.cfg.TintTransparency,
					)
					img.SetRGBA(x, y, blended)
				}
			}
		}

		// 2. 赤枠を描画
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			for x := rect.Min.X; x < rect.Max.X; x++ {
				if x < rect.Min.X+borderThickness || x >= rect.Max.X-borderThickness ||
					y < rect.Min.Y+borderThickness || y >= rect.Max.Y-borderThickness {
					img.SetRGBA(x, y, red)
				}
			}
		}
	}
}
