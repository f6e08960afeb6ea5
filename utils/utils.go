package utils

import (
	"os"

	"golang.org/x/sync/errgroup"
)

// Min は2つの整数のうち小さい方を返す
func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Max は2つの整数のうち大きい方を返す
func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Clamp は値を指定範囲内に制限する
func Clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampFloat64 は浮動小数点値を指定範囲内に制限する
func ClampFloat64(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// GetEnvOrDefault は環境変数の値を取得し、設定されていない場合はデフォルト値を返す
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// RowBand は行範囲 [Y0, Y1) を表す
type RowBand struct {
	Index  int
	Y0, Y1 int
}

// SplitRows は高さ height の画像を最大 n 個の連続した行範囲に分割する
// 分割結果は行の昇順で、空のバンドは含まない
func SplitRows(height, n int) []RowBand {
	if height <= 0 {
		return nil
	}
	n = Clamp(n, 1, height)

	bands := make([]RowBand, 0, n)
	base, rest := height/n, height%n
	y := 0
	for i := 0; i < n; i++ {
		rows := base
		if i < rest {
			rows++
		}
		bands = append(bands, RowBand{Index: i, Y0: y, Y1: y + rows})
		y += rows
	}
	return bands
}

// ParallelRows は行バンドごとに fn を並列実行する
// 同時実行数は numCPU に制限され、最初に発生したエラーを返す
func ParallelRows(height, numCPU int, fn func(band RowBand) error) error {
	return ParallelBands(SplitRows(height, numCPU), numCPU, fn)
}

// ParallelBands は与えられたバンドを最大 limit 個ずつ並列に処理する
func ParallelBands(bands []RowBand, limit int, fn func(band RowBand) error) error {
	if len(bands) == 1 {
		return fn(bands[0])
	}

	var g errgroup.Group
	g.SetLimit(Max(limit, 1))
	for _, band := range bands {
		g.Go(func() error {
			return fn(band)
		})
	}
	return g.Wait()
}
