package imageutil

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xshoji/go-img-reg/config"
)

// squareResidual は指定範囲のみ値が異なる画像の組を作成する
func squareResidual(size int, r image.Rectangle, value float64) (*FloatImage, *FloatImage) {
	fixed := NewFloatImage(size, size)
	registered := NewFloatImage(size, size)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			registered.Set(x, y, value)
		}
	}
	return fixed, registered
}

func newDetectorConfig() *config.AppConfig {
	cfg := config.NewDefaultConfig()
	cfg.Threshold = 30
	cfg.ShowTransparentOverlay = false
	return cfg
}

func TestAnalyzer_GenerateResidualImage(t *testing.T) {
	a := NewAnalyzer(newDetectorConfig())
	fixed, registered := squareResidual(60, image.Rect(20, 20, 30, 30), 255)

	img, regions, err := a.GenerateResidualImage(fixed, registered)
	require.NoError(t, err)

	if diff := cmp.Diff([]image.Rectangle{image.Rect(15, 15, 35, 35)}, regions); diff != "" {
		t.Errorf("regions mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, image.Rect(0, 0, 60, 60), img.Bounds())
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, img.RGBAAt(15, 15), "枠の左上は赤")
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(25, 25), "残差部分は位置合わせ後の画像")
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(50, 50), "領域外は位置合わせ後の画像")
}

func TestAnalyzer_GenerateResidualImageNoResidual(t *testing.T) {
	a := NewAnalyzer(newDetectorConfig())
	fixed, registered := squareResidual(40, image.Rect(0, 0, 40, 40), 0)

	_, regions, err := a.GenerateResidualImage(fixed, registered)
	require.NoError(t, err)
	assert.Empty(t, regions)
}

func TestAnalyzer_GenerateResidualImageSizeMismatch(t *testing.T) {
	a := NewAnalyzer(newDetectorConfig())
	_, _, err := a.GenerateResidualImage(NewFloatImage(10, 10), NewFloatImage(10, 11))
	if !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("err = %v, want ErrSizeMismatch", err)
	}
}

func TestAnalyzer_HasResiduals(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  bool
	}{
		{"閾値を超える残差あり", 255, true},
		{"残差なし", 0, false},
	}

	a := NewAnalyzer(newDetectorConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixed, registered := squareResidual(30, image.Rect(5, 5, 10, 10), tt.value)
			got, err := a.HasResiduals(fixed, registered)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := a.HasResiduals(NewFloatImage(3, 3), NewFloatImage(4, 3))
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestAnalyzer_detectResidualRegions(t *testing.T) {
	a := NewAnalyzer(newDetectorConfig())

	fixed := NewFloatImage(100, 100)
	registered := NewFloatImage(100, 100)
	// 離れた2つの残差と、斜めに接する画素
	registered.Set(10, 10, 255)
	registered.Set(11, 11, 255)
	registered.Set(80, 80, 255)

	got := a.detectResidualRegions(fixed, registered)
	want := []image.Rectangle{
		image.Rect(1, 1, 21, 21),
		image.Rect(70, 70, 90, 90),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("regions mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizePair(t *testing.T) {
	tests := []struct {
		name  string
		a, b  []float64
		wantA []float64
		wantB []float64
	}{
		{
			name: "共通の範囲で変換", a: []float64{0, 10}, b: []float64{5, 20},
			wantA: []float64{0, 127.5}, wantB: []float64{63.75, 255},
		},
		{
			name: "一定値の画像", a: []float64{7, 7}, b: []float64{7, 7},
			wantA: []float64{0, 0}, wantB: []float64{0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewFloatImage(2, 1)
			b := NewFloatImage(2, 1)
			copy(a.Pix, tt.a)
			copy(b.Pix, tt.b)

			gotA, gotB := normalizePair(a, b)
			assert.Equal(t, tt.wantA, gotA.Pix)
			assert.Equal(t, tt.wantB, gotB.Pix)
			// 入力は変更されない
			assert.Equal(t, tt.a, a.Pix)
		})
	}
}
