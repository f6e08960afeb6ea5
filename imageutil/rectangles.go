package imageutil

import (
	"image"
	"sort"
)

const (
	// 近接とみなす距離（ピクセル）
	proximityThreshold = 10
	// 出力する矩形の最大数
	maxRegions = 50
)

// mergeOverlappingRectangles は重なり合う、または近接する矩形を連結して大きな矩形にする
// 連結が起きなくなるまで繰り返し、面積の大きい順に最大 maxRegions 個を返す
func mergeOverlappingRectangles(rects []image.Rectangle) []image.Rectangle {
	result := filterValidRects(rects)

	for changed := true; changed; {
		changed = false
		for i := 0; i < len(result) && !changed; i++ {
			for j := i + 1; j < len(result); j++ {
				if !shouldMergeRects(result[i], result[j]) {
					continue
				}
				// 矩形を連結し、連結された側を取り除く
				result[i] = result[i].Union(result[j])
				result = append(result[:j], result[j+1:]...)
				changed = true
				break
			}
		}
	}

	// 大きい順にソート（同じ面積なら左上が先）
	sort.SliceStable(result, func(i, j int) bool {
		ai, aj := rectArea(result[i]), rectArea(result[j])
		if ai != aj {
			return ai > aj
		}
		if result[i].Min.Y != result[j].Min.Y {
			return result[i].Min.Y < result[j].Min.Y
		}
		return result[i].Min.X < result[j].Min.X
	})

	if len(result) > maxRegions {
		result = result[:maxRegions]
	}
	return result
}

// rectArea は矩形の面積を計算
func rectArea(rect image.Rectangle) int {
	return rect.Dx() * rect.Dy()
}

// filterValidRects は有効な矩形だけを残す
func filterValidRects(rects []image.Rectangle) []image.Rectangle {
	validRects := make([]image.Rectangle, 0, len(rects))
	for _, r := range rects {
		if isValidRect(r) {
			validRects = append(validRects, r)
		}
	}
	return validRects
}

// isValidRect は矩形が有効かどうかをチェック
func isValidRect(rect image.Rectangle) bool {
	return rect.Min.X < rect.Max.X && rect.Min.Y < rect.Max.Y
}

// shouldMergeRects は2つの矩形が重なっているか、proximityThreshold 以内に近接しているかを判定する
func shouldMergeRects(r1, r2 image.Rectangle) bool {
	return r1.Inset(-proximityThreshold).Overlaps(r2)
}

// expandRect は矩形に余白を加え、最小サイズを確保して bounds 内に収める
func expandRect(rect image.Rectangle, padding, minSize int, bounds image.Rectangle) image.Rectangle {
	rect = rect.Inset(-padding)

	if rect.Dx() < minSize {
		cx := (rect.Min.X + rect.Max.X) / 2
		rect.Min.X, rect.Max.X = cx-minSize/2, cx+minSize-minSize/2
	}
	if rect.Dy() < minSize {
		cy := (rect.Min.Y + rect.Max.Y) / 2
		rect.Min.Y, rect.Max.Y = cy-minSize/2, cy+minSize-minSize/2
	}

	return rect.Intersect(bounds)
}
