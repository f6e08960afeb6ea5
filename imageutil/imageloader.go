package imageutil

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/xshoji/go-img-reg/geometry"
)

// LoadImage 指定されたパスから画像を読み込み、輝度値の FloatImage に変換する
func LoadImage(filePath string) (*FloatImage, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == ".dcm" {
		return LoadDICOM(filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var img image.Image
	switch ext {
	case ".png":
		img, err = png.Decode(file)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(file)
	case ".tif", ".tiff":
		img, err = tiff.Decode(file)
	case ".bmp":
		img, err = bmp.Decode(file)
	default:
		return nil, fmt.Errorf("unsupported image format: %s", ext)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return FromImage(img), nil
}

// LoadDICOM はDICOMファイルの最初のフレームを読み込む
// PixelSpacing が記録されている場合は画素間隔に反映する
func LoadDICOM(filePath string) (*FloatImage, error) {
	dataset, err := dicom.ParseFile(filePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DICOM file: %w", err)
	}

	pixelData, err := dataset.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("DICOM file has no pixel data: %w", err)
	}

	info := dicom.MustGetPixelDataInfo(pixelData.Value)
	if len(info.Frames) == 0 {
		return nil, fmt.Errorf("DICOM file has no frames: %w", ErrEmptyImage)
	}

	fr := info.Frames[0]
	img, err := fr.GetImage()
	if err != nil {
		return nil, fmt.Errorf("failed to decode DICOM frame: %w", err)
	}

	out := FromImage(img)
	if spacing, ok := dicomPixelSpacing(dataset); ok {
		out.Spacing = spacing
	}
	return out, nil
}

// dicomPixelSpacing は PixelSpacing (行間隔\列間隔) を物理間隔 (X=列, Y=行) に変換する
func dicomPixelSpacing(dataset dicom.Dataset) (geometry.Point2D, bool) {
	elem, err := dataset.FindElementByTag(tag.PixelSpacing)
	if err != nil {
		return geometry.Point2D{}, false
	}

	values, ok := elem.Value.GetValue().([]string)
	if !ok || len(values) < 2 {
		return geometry.Point2D{}, false
	}

	row, err1 := strconv.ParseFloat(strings.TrimSpace(values[0]), 64)
	col, err2 := strconv.ParseFloat(strings.TrimSpace(values[1]), 64)
	if err1 != nil || err2 != nil || row <= 0 || col <= 0 {
		return geometry.Point2D{}, false
	}
	return geometry.Point2D{X: col, Y: row}, true
}

// SaveImage 画像を8ビットグレースケールとしてファイルに保存する
// 値は0～255にクランプされる
func SaveImage(img *FloatImage, outputPath string) error {
	return saveEncoded(img.ToGray(), outputPath, false)
}

// SaveImage16 画像を16ビットグレースケールとしてファイルに保存する (PNG/TIFFのみ)
func SaveImage16(img *FloatImage, outputPath string) error {
	return saveEncoded(img.ToGray16(), outputPath, true)
}

// SaveRGBA カラー画像をファイルに保存する
func SaveRGBA(img image.Image, outputPath string) error {
	return saveEncoded(img, outputPath, false)
}

func saveEncoded(img image.Image, outputPath string, sixteenBit bool) error {
	fmt.Printf("[INFO] Saving image to %s...\n", outputPath)
	startTime := time.Now()

	ext := strings.ToLower(filepath.Ext(outputPath))
	switch ext {
	case ".png", ".tif", ".tiff":
	case ".jpg", ".jpeg", ".bmp":
		if sixteenBit {
			return fmt.Errorf("unsupported 16-bit output format: %s", ext)
		}
	default:
		return fmt.Errorf("unsupported output format: %s", ext)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	var saveErr error
	switch ext {
	case ".png":
		fmt.Printf("[INFO] Encoding as PNG...\n")
		saveErr = png.Encode(file, img)
	case ".jpg", ".jpeg":
		fmt.Printf("[INFO] Encoding as JPEG (quality: 90)...\n")
		saveErr = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	case ".tif", ".tiff":
		fmt.Printf("[INFO] Encoding as TIFF (deflate)...\n")
		saveErr = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	case ".bmp":
		fmt.Printf("[INFO] Encoding as BMP...\n")
		saveErr = bmp.Encode(file, img)
	}

	if saveErr != nil {
		return fmt.Errorf("failed to save image: %w", saveErr)
	}

	elapsed := time.Since(startTime)
	fmt.Printf("[INFO] Image saved successfully in %.2f seconds\n", elapsed.Seconds())
	return nil
}
