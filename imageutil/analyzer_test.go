package imageutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xshoji/go-img-reg/config"
)

func newSearchConfig(fastMode bool) *config.AppConfig {
	cfg := config.NewDefaultConfig()
	cfg.MaxOffset = 6
	cfg.SamplingRate = 1
	cfg.FastMode = fastMode
	cfg.NumCPU = 2
	return cfg
}

func TestAnalyzer_FindBestOffset(t *testing.T) {
	tests := []struct {
		name     string
		fastMode bool
		offsetX  int
		offsetY  int
	}{
		{"通常モード", false, 3, -2},
		{"通常モード（オフセットなし）", false, 0, 0},
		{"高速モード", true, -4, 5},
		{"高速モード（オフセットなし）", true, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixed, moving := shiftedPair(48, tt.offsetX, tt.offsetY)
			a := NewAnalyzer(newSearchConfig(tt.fastMode))

			gotX, gotY := a.FindBestOffset(fixed, moving)
			assert.Equal(t, tt.offsetX, gotX, "offsetX")
			assert.Equal(t, tt.offsetY, gotY, "offsetY")
		})
	}
}

func TestAnalyzer_searchBestOffsetInRange(t *testing.T) {
	fixed, moving := shiftedPair(32, 2, 1)
	a := NewAnalyzer(newSearchConfig(false))

	x, y, score := a.searchBestOffsetInRange(fixed, moving, 1, -3, 3, -3, 3, false)
	assert.Equal(t, 2, x)
	assert.Equal(t, 1, y)
	assert.Zero(t, score)

	// 正解が範囲外の場合は範囲内の最良値を返す
	x, y, score = a.searchBestOffsetInRange(fixed, moving, 1, -3, 0, -3, 0, false)
	assert.LessOrEqual(t, x, 0)
	assert.LessOrEqual(t, y, 0)
	assert.Greater(t, score, 0.0)
}

func TestIsBetterOffset(t *testing.T) {
	tests := []struct {
		name      string
		candidate offsetScore
		best      offsetScore
		want      bool
	}{
		{"評価値が小さい", offsetScore{5, 5, 1}, offsetScore{0, 0, 2}, true},
		{"評価値が大きい", offsetScore{0, 0, 3}, offsetScore{5, 5, 2}, false},
		{"同点なら原点に近い方", offsetScore{1, 0, 2}, offsetScore{2, 2, 2}, true},
		{"同点で原点から遠い", offsetScore{3, 0, 2}, offsetScore{1, 1, 2}, false},
		{"同距離ならYが小さい方", offsetScore{1, -1, 2}, offsetScore{-1, 1, 2}, true},
		{"同距離同YならXが小さい方", offsetScore{-1, 1, 2}, offsetScore{1, 1, 2}, true},
		{"同一", offsetScore{1, 1, 2}, offsetScore{1, 1, 2}, false},
		{"初期値の無限大より小さい", offsetScore{4, 4, 1e9}, offsetScore{0, 0, math.Inf(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isBetterOffset(tt.candidate, tt.best))
		})
	}
}
