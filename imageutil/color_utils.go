package imageutil

import (
	"image/color"

	"github.com/xshoji/go-img-reg/utils"
)

// blendColors は背景色に元画像の色を重ねる
// dst: 背景色（位置合わせ後の画像のピクセル）
// src: 固定画像のピクセル色
// transparency: 固定画像の透明度 (0.0=不透明、1.0=完全透明)
// tint: 適用する色調
// useTint: 色調を適用するかどうか
// tintStrength: 色調の強さ (0.0=色調なし、1.0=完全に色調のみ)
// tintTransparency: 色調の透明度 (0.0=不透明、1.0=完全透明)
func blendColors(
	dst, src color.RGBA,
	transparency float64,
	tint color.RGBA,
	useTint bool,
	tintStrength, tintTransparency float64,
) color.RGBA {
	transparency = utils.ClampFloat64(transparency, 0, 1)

	sr, sg, sb := float64(src.R), float64(src.G), float64(src.B)
	effectiveTransparency := transparency

	if useTint {
		// 1. 色調と元画像を混合
		strength := utils.ClampFloat64(tintStrength, 0, 1)
		sr = sr*(1-strength) + float64(tint.R)*strength
		sg = sg*(1-strength) + float64(tint.G)*strength
		sb = sb*(1-strength) + float64(tint.B)*strength

		// 2. 色調の透明度を考慮
		effectiveTransparency = (transparency + utils.ClampFloat64(tintTransparency, 0, 1)) / 2
	}

	mix := func(s float64, d uint8) uint8 {
		return uint8(s*(1-effectiveTransparency) + float64(d)*effectiveTransparency)
	}

	// アルファは大きい方を採用
	return color.RGBA{
		R: mix(sr, dst.R),
		G: mix(sg, dst.G),
		B: mix(sb, dst.B),
		A: uint8(utils.Max(int(src.A), int(dst.A))),
	}
}
