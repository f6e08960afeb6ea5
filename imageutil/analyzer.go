package imageutil

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/xshoji/go-img-reg/config"
	"github.com/xshoji/go-img-reg/utils"
)

// Analyzer は位置合わせ前後の画像の解析とビジュアル化を行う構造体
type Analyzer struct {
	cfg *config.AppConfig
}

// NewAnalyzer 設定をもとに新しいAnalyzerインスタンスを作成
func NewAnalyzer(cfg *config.AppConfig) *Analyzer {
	return &Analyzer{
		cfg: cfg,
	}
}

// offsetScore はオフセットと評価値の組
type offsetScore struct {
	offsetX, offsetY int
	score            float64
}

// FindBestOffset は固定画像と移動画像の間の最適な整数オフセットを検出する
// fixed(x, y) と moving(x+offsetX, y+offsetY) の二乗誤差が最小となるオフセットを総当たりで探索する
func (a *Analyzer) FindBestOffset(fixed, moving *FloatImage) (int, int) {
	fmt.Printf("[INFO] Starting offset search...\n")
	startTime := time.Now()

	// 高速モードが有効な場合は段階的サンプリングを使用
	if a.cfg.FastMode {
		fmt.Printf("[INFO] Fast mode enabled: using progressive sampling\n")
		return a.findBestOffsetWithProgressiveSampling(fixed, moving)
	}

	if a.cfg.SamplingRate > 1 {
		fmt.Printf("[INFO] Using sampling rate 1/%d (analyzing %d%% of pixels)\n",
			a.cfg.SamplingRate, 100/(a.cfg.SamplingRate*a.cfg.SamplingRate))
	}

	maxOffset := a.cfg.MaxOffset
	bestX, bestY, bestScore := a.searchBestOffsetInRange(fixed, moving, a.cfg.SamplingRate,
		-maxOffset, maxOffset, -maxOffset, maxOffset, true)

	elapsed := time.Since(startTime)
	fmt.Printf("[INFO] Best offset found: offset=(%d, %d) with mean squares=%.4f (%.2fs elapsed)\n",
		bestX, bestY, bestScore, elapsed.Seconds())

	return bestX, bestY
}

// findBestOffsetWithProgressiveSampling は段階的サンプリングを使用して最適なオフセットを検出する
// 最初に粗いサンプリングでおおよその位置を特定し、徐々に精度を上げていく
func (a *Analyzer) findBestOffsetWithProgressiveSampling(fixed, moving *FloatImage) (int, int) {
	startTime := time.Now()

	// 段階的なサンプリングレートを定義（大きい値から小さい値へ）
	samplingStages := []int{8, 4, 2, utils.Max(1, a.cfg.SamplingRate)}

	maxOffset := a.cfg.MaxOffset
	bestX, bestY := 0, 0

	for stageIdx, samplingRate := range samplingStages {
		stageStartTime := time.Now()

		// 2段階目以降は直前の最適オフセット周辺に探索範囲を絞る
		searchMaxOffset := maxOffset
		if stageIdx > 0 {
			searchMaxOffset = utils.Max(2, maxOffset/(2*stageIdx))
		}

		fmt.Printf("[INFO] Progressive sampling stage %d/%d: sampling rate=1/%d, max offset=%d\n",
			stageIdx+1, len(samplingStages), samplingRate, searchMaxOffset)

		var score float64
		bestX, bestY, score = a.searchBestOffsetInRange(fixed, moving, samplingRate,
			bestX-searchMaxOffset, bestX+searchMaxOffset,
			bestY-searchMaxOffset, bestY+searchMaxOffset, false)

		fmt.Printf("[INFO] Stage %d completed: best offset=(%d, %d), mean squares=%.4f, time=%.2fs\n",
			stageIdx+1, bestX, bestY, score, time.Since(stageStartTime).Seconds())

		maxOffset = searchMaxOffset
	}

	fmt.Printf("[INFO] Progressive offset search completed in %.2fs\n", time.Since(startTime).Seconds())
	return bestX, bestY
}

// searchBestOffsetInRange は指定された範囲内で最適なオフセットを検索する
// CPUコア数分のワーカーで範囲内の全オフセットを評価する
func (a *Analyzer) searchBestOffsetInRange(
	fixed, moving *FloatImage, samplingRate int,
	minX, maxX, minY, maxY int, reportProgress bool) (bestX, bestY int, bestScore float64) {

	// 範囲内のすべてのオフセットを生成
	offsets := make([]struct{ x, y int }, 0, (maxX-minX+1)*(maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			offsets = append(offsets, struct{ x, y int }{x, y})
		}
	}

	totalOffsets := len(offsets)
	fmt.Printf("[INFO] Searching %d offsets in range X:[%d,%d], Y:[%d,%d]\n",
		totalOffsets, minX, maxX, minY, maxY)

	results := make(chan offsetScore, totalOffsets)
	offsetCh := make(chan struct{ x, y int }, totalOffsets)

	// ワーカー数を決定（CPUコア数を超えないように）
	numWorkers := utils.Max(1, utils.Min(a.cfg.NumCPU, totalOffsets))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for offset := range offsetCh {
				score := a.calculateOffsetScore(fixed, moving, offset.x, offset.y, samplingRate)
				results <- offsetScore{offset.x, offset.y, score}
			}
		}()
	}

	for _, offset := range offsets {
		offsetCh <- offset
	}
	close(offsetCh)

	go func() {
		wg.Wait()
		close(results)
	}()

	// 評価値が最小のオフセットを選択する（同点の場合は原点に近いものを優先）
	bestScore = math.Inf(1)
	processed := 0
	lastPercentReported := -1
	startTime := time.Now()

	for result := range results {
		processed++

		if isBetterOffset(result, offsetScore{bestX, bestY, bestScore}) {
			bestScore = result.score
			bestX = result.offsetX
			bestY = result.offsetY
		}

		if !reportProgress {
			continue
		}
		percent := (processed * 100) / totalOffsets
		if percent > lastPercentReported && percent%utils.Max(1, a.cfg.ProgressStep) == 0 {
			elapsed := time.Since(startTime)
			remaining := float64(elapsed) * float64(totalOffsets-processed) / float64(processed)
			fmt.Printf("[INFO] Offset search progress: %d%% - Elapsed: %.1fs, Est. remaining: %.1fs\n",
				percent, elapsed.Seconds(), remaining/float64(time.Second))
			lastPercentReported = percent
		}
	}

	return bestX, bestY, bestScore
}

// isBetterOffset は候補が現在の最良値より良いかを判定する
// 結果の到着順に依存しないよう、同点の場合は原点からの距離、さらにY、Xの順で比較する
func isBetterOffset(candidate, best offsetScore) bool {
	if candidate.score != best.score {
		return candidate.score < best.score
	}
	cd := candidate.offsetX*candidate.offsetX + candidate.offsetY*candidate.offsetY
	bd := best.offsetX*best.offsetX + best.offsetY*best.offsetY
	if cd != bd {
		return cd < bd
	}
	if candidate.offsetY != best.offsetY {
		return candidate.offsetY < best.offsetY
	}
	return candidate.offsetX < best.offsetX
}
