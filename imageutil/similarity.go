package imageutil

import (
	"math"

	"github.com/xshoji/go-img-reg/utils"
)

// calculateOffsetScore は fixed(x, y) と moving(x+offsetX, y+offsetY) の平均二乗誤差を計算する
// 値が小さいほど一致度が高い。重なりがない場合は +Inf を返す
func (a *Analyzer) calculateOffsetScore(fixed, moving *FloatImage, offsetX, offsetY, samplingRate int) float64 {
	// 重なり合う領域を固定画像の座標で計算
	minX := utils.Max(0, -offsetX)
	minY := utils.Max(0, -offsetY)
	maxX := utils.Min(fixed.Width, moving.Width-offsetX)
	maxY := utils.Min(fixed.Height, moving.Height-offsetY)

	if maxX <= minX || maxY <= minY {
		return math.Inf(1)
	}

	samplingRate = utils.Max(1, samplingRate)
	sampledPoints := 0
	sum := 0.0

	for y := minY; y < maxY; y += samplingRate {
		for x := minX; x < maxX; x += samplingRate {
			d := fixed.At(x, y) - moving.At(x+offsetX, y+offsetY)
			sum += d * d
			sampledPoints++
		}
	}

	score := sum / float64(sampledPoints)

	// 重なりが小さすぎる場合はスコアを悪化させる
	overlapArea := (maxX - minX) * (maxY - minY)
	totalArea := utils.Max(fixed.Width*fixed.Height, moving.Width*moving.Height)
	coverageRatio := float64(overlapArea) / float64(totalArea)
	if coverageRatio < 0.5 {
		score /= coverageRatio * 2.0
	}

	return score
}
