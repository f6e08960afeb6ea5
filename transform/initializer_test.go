package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xshoji/go-img-reg/geometry"
	"github.com/xshoji/go-img-reg/imageutil"
)

// squareImage は (x0, y0) を左上とする size x size の明るい正方形を持つ画像を作成する
func squareImage(width, height, x0, y0, size int) *imageutil.FloatImage {
	img := imageutil.NewFloatImage(width, height)
	for y := y0; y < y0+size; y++ {
		for x := x0; x < x0+size; x++ {
			img.Set(x, y, 200)
		}
	}
	return img
}

func TestInitializeCenteredGeometry(t *testing.T) {
	fixed := imageutil.NewFloatImage(101, 51)
	moving := imageutil.NewFloatImage(81, 61)

	r := NewRigid2D()
	require.NoError(t, InitializeCentered(r, fixed, moving, ModeGeometry))

	assert.Equal(t, geometry.Point2D{X: 50, Y: 25}, r.Center())
	assert.Equal(t, geometry.Point2D{X: -10, Y: 5}, r.Translation())
}

func TestInitializeCenteredMoments(t *testing.T) {
	fixed := squareImage(64, 64, 10, 10, 10)  // 重心 (14.5, 14.5)
	moving := squareImage(64, 64, 30, 20, 10) // 重心 (34.5, 24.5)

	for _, tr := range []Centered{NewRigid2D(), NewSimilarity2D(), NewAffine()} {
		t.Run(tr.Kind().String(), func(t *testing.T) {
			require.NoError(t, InitializeCentered(tr, fixed, moving, ModeMoments))

			c := tr.Center()
			assert.InDelta(t, 14.5, c.X, 1e-9)
			assert.InDelta(t, 14.5, c.Y, 1e-9)

			tt := tr.Translation()
			assert.InDelta(t, 20.0, tt.X, 1e-9)
			assert.InDelta(t, 10.0, tt.Y, 1e-9)

			// 固定画像の重心は移動画像の重心へ写る
			mapped := tr.TransformPoint(c)
			assert.InDelta(t, 34.5, mapped.X, 1e-9)
			assert.InDelta(t, 24.5, mapped.Y, 1e-9)
		})
	}
}

func TestInitializeCenteredErrors(t *testing.T) {
	empty := imageutil.NewFloatImage(0, 0)
	black := imageutil.NewFloatImage(8, 8)

	assert.ErrorIs(t, InitializeCentered(NewRigid2D(), empty, black, ModeGeometry), imageutil.ErrEmptyImage)
	assert.ErrorIs(t, InitializeCentered(NewRigid2D(), black, black, ModeMoments), ErrZeroMass)
	assert.Error(t, InitializeCentered(NewRigid2D(), black, black, InitMode(9)))
}

func TestCenterOfMassHonoursSpacing(t *testing.T) {
	img := squareImage(20, 20, 4, 6, 2) // 画素中心 (4.5, 6.5)
	img.Spacing = geometry.Point2D{X: 0.5, Y: 2}
	img.Origin = geometry.Point2D{X: 1, Y: -1}

	c, err := CenterOfMass(img)
	require.NoError(t, err)
	assert.InDelta(t, 1+4.5*0.5, c.X, 1e-9)
	assert.InDelta(t, -1+6.5*2, c.Y, 1e-9)
}
