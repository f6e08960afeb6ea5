package utils

import (
	"errors"
	"os"
	"sync"
	"testing"
)

func TestMin(t *testing.T) {
	tests := []struct {
		name     string
		a        int
		b        int
		expected int
	}{
		{"a < b", 1, 2, 1},
		{"a > b", 5, 3, 3},
		{"a = b", 4, 4, 4},
		{"negative values", -10, -5, -10},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := Min(test.a, test.b)
			if result != test.expected {
				t.Errorf("Min(%d, %d) = %d; expected %d", test.a, test.b, result, test.expected)
			}
		})
	}
}

func TestMax(t *testing.T) {
	tests := []struct {
		name     string
		a        int
		b        int
		expected int
	}{
		{"a < b", 1, 2, 2},
		{"a > b", 5, 3, 5},
		{"a = b", 4, 4, 4},
		{"negative values", -10, -5, -5},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := Max(test.a, test.b)
			if result != test.expected {
				t.Errorf("Max(%d, %d) = %d; expected %d", test.a, test.b, result, test.expected)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		value    int
		min      int
		max      int
		expected int
	}{
		{"value within range", 5, 1, 10, 5},
		{"value below min", 0, 1, 10, 1},
		{"value above max", 11, 1, 10, 10},
		{"negative range", -5, -10, -1, -5},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := Clamp(test.value, test.min, test.max)
			if result != test.expected {
				t.Errorf("Clamp(%d, %d, %d) = %d; expected %d",
					test.value, test.min, test.max, result, test.expected)
			}
		})
	}
}

func TestClampFloat64(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		expected float64
	}{
		{"範囲内", 0.5, 0.5},
		{"下限未満", -0.1, 0.0},
		{"上限超過", 1.5, 1.0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := ClampFloat64(test.value, 0.0, 1.0)
			if result != test.expected {
				t.Errorf("ClampFloat64(%f) = %f; expected %f", test.value, result, test.expected)
			}
		})
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	key := "IMGREG_TEST_ENV_KEY"
	os.Unsetenv(key)

	if got := GetEnvOrDefault(key, "default"); got != "default" {
		t.Errorf("GetEnvOrDefault() = %s; expected default", got)
	}

	t.Setenv(key, "value")
	if got := GetEnvOrDefault(key, "default"); got != "value" {
		t.Errorf("GetEnvOrDefault() = %s; expected value", got)
	}
}

func TestSplitRows(t *testing.T) {
	tests := []struct {
		name      string
		height    int
		n         int
		wantBands int
	}{
		{"均等分割", 10, 5, 5},
		{"余りあり", 10, 3, 3},
		{"行数よりワーカーが多い", 3, 8, 3},
		{"ワーカー数0", 4, 0, 1},
		{"高さ0", 0, 4, 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bands := SplitRows(test.height, test.n)
			if len(bands) != test.wantBands {
				t.Fatalf("SplitRows(%d, %d) returned %d bands; expected %d",
					test.height, test.n, len(bands), test.wantBands)
			}

			// 行範囲が連続して全行を覆っていることを確認
			y := 0
			for i, band := range bands {
				if band.Index != i || band.Y0 != y || band.Y1 <= band.Y0 {
					t.Fatalf("unexpected band %+v at %d", band, i)
				}
				y = band.Y1
			}
			if y != test.height {
				t.Errorf("bands cover %d rows; expected %d", y, test.height)
			}
		})
	}
}

func TestParallelRows(t *testing.T) {
	var mu sync.Mutex
	covered := make([]int, 100)

	err := ParallelRows(100, 4, func(band RowBand) error {
		mu.Lock()
		defer mu.Unlock()
		for y := band.Y0; y < band.Y1; y++ {
			covered[y]++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ParallelRows() error = %v", err)
	}
	for y, c := range covered {
		if c != 1 {
			t.Fatalf("row %d processed %d times", y, c)
		}
	}

	wantErr := errors.New("band failed")
	err = ParallelRows(100, 4, func(band RowBand) error {
		if band.Index == 2 {
			return wantErr
		}
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("ParallelRows() error = %v; expected %v", err, wantErr)
	}
}

func TestParallelBands(t *testing.T) {
	bands := SplitRows(10, 5)
	var order []int

	// limit 1 でも全バンドが処理される
	err := ParallelBands(bands, 1, func(band RowBand) error {
		order = append(order, band.Index)
		return nil
	})
	if err != nil {
		t.Fatalf("ParallelBands() error = %v", err)
	}
	if len(order) != len(bands) {
		t.Errorf("processed %d bands; expected %d", len(order), len(bands))
	}

	if err := ParallelBands(nil, 4, func(RowBand) error { return errors.New("unexpected") }); err != nil {
		t.Errorf("ParallelBands(nil) error = %v; expected nil", err)
	}
}
