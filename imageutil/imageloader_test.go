package imageutil

import (
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// generateTestImage はグラデーションを持つテスト用の画像を作成する
func generateTestImage(width, height int) *FloatImage {
	img := NewFloatImage(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, float64((x*7+y*3)%256))
		}
	}
	return img
}

func TestLoadImage(t *testing.T) {
	tempDir := t.TempDir()
	src := generateTestImage(12, 8)

	// 可逆形式で保存したファイル
	lossless := []string{"test.png", "test.tif", "test.bmp"}
	for _, name := range lossless {
		if err := SaveImage(src, filepath.Join(tempDir, name)); err != nil {
			t.Fatalf("SaveImage(%s) error = %v", name, err)
		}
	}

	// JPEGは非可逆なので読み込めることだけ確認する
	jpegPath := filepath.Join(tempDir, "test.jpg")
	createJPEGFile(t, jpegPath)

	unsupportedPath := filepath.Join(tempDir, "test.txt")
	if err := os.WriteFile(unsupportedPath, []byte("text"), 0o644); err != nil {
		t.Fatal(err)
	}
	brokenPath := filepath.Join(tempDir, "broken.png")
	if err := os.WriteFile(brokenPath, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		wantExact bool
	}{
		{"正常系: PNG画像を読み込む", filepath.Join(tempDir, "test.png"), false, true},
		{"正常系: TIFF画像を読み込む", filepath.Join(tempDir, "test.tif"), false, true},
		{"正常系: BMP画像を読み込む", filepath.Join(tempDir, "test.bmp"), false, true},
		{"正常系: JPEG画像を読み込む", jpegPath, false, false},
		{"異常系: 存在しないファイル", filepath.Join(tempDir, "non_existent.png"), true, false},
		{"異常系: サポートされていないフォーマット", unsupportedPath, true, false},
		{"異常系: 壊れたファイル", brokenPath, true, false},
		{"異常系: DICOMではないファイル", unsupportedPath + ".dcm", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadImage(tt.filePath)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadImage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if got.Width != 12 || got.Height != 8 {
				t.Fatalf("LoadImage() size = %dx%d, want 12x8", got.Width, got.Height)
			}
			if tt.wantExact {
				for i := range src.Pix {
					if got.Pix[i] != src.Pix[i] {
						t.Fatalf("pixel %d = %v, want %v", i, got.Pix[i], src.Pix[i])
					}
				}
			}
		})
	}
}

func TestLoadImageNotExist(t *testing.T) {
	_, err := LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadImage() error = %v, want os.ErrNotExist", err)
	}
}

func TestSaveImage16(t *testing.T) {
	tempDir := t.TempDir()

	src := NewFloatImage(4, 2)
	src.Pix = []float64{0, 1000, 40000, 65535, 70000, -5, 12.4, 12.6}
	want := []float64{0, 1000, 40000, 65535, 65535, 0, 12, 13}

	tests := []struct {
		name    string
		file    string
		wantErr bool
	}{
		{"正常系: 16ビットPNG", "out16.png", false},
		{"正常系: 16ビットTIFF", "out16.tiff", false},
		{"異常系: JPEGは16ビット非対応", "out16.jpg", true},
		{"異常系: 未対応の拡張子", "out16.gif", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tempDir, tt.file)
			err := SaveImage16(src, path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SaveImage16() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			got, err := LoadImage(path)
			if err != nil {
				t.Fatalf("LoadImage() error = %v", err)
			}
			for i := range want {
				if got.Pix[i] != want[i] {
					t.Errorf("pixel %d = %v, want %v", i, got.Pix[i], want[i])
				}
			}
		})
	}
}

func TestSaveRGBA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})

	path := filepath.Join(t.TempDir(), "rgba.png")
	if err := SaveRGBA(img, path); err != nil {
		t.Fatalf("SaveRGBA() error = %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("saved file is missing or empty: %v", err)
	}
}

func TestDicomPixelSpacing(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		wantOK bool
		wantX  float64
		wantY  float64
	}{
		{"正常系: 行間隔と列間隔", []string{"0.5", "0.25"}, true, 0.25, 0.5},
		{"正常系: 前後の空白", []string{" 1.5", "2 "}, true, 2, 1.5},
		{"異常系: 値が1つだけ", []string{"0.5"}, false, 0, 0},
		{"異常系: 数値ではない", []string{"a", "b"}, false, 0, 0},
		{"異常系: 0以下", []string{"0", "1"}, false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			elem, err := dicom.NewElement(tag.PixelSpacing, tt.values)
			if err != nil {
				t.Fatalf("NewElement() error = %v", err)
			}
			ds := dicom.Dataset{Elements: []*dicom.Element{elem}}

			got, ok := dicomPixelSpacing(ds)
			if ok != tt.wantOK {
				t.Fatalf("dicomPixelSpacing() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (got.X != tt.wantX || got.Y != tt.wantY) {
				t.Errorf("dicomPixelSpacing() = %v, want (%v, %v)", got, tt.wantX, tt.wantY)
			}
		})
	}

	if _, ok := dicomPixelSpacing(dicom.Dataset{}); ok {
		t.Error("dicomPixelSpacing() on empty dataset should fail")
	}
}

// createJPEGFile はテスト用のJPEGファイルを作成する
func createJPEGFile(t *testing.T, path string) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 12, 8))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 2)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
}
