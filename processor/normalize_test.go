package processor

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestNormalize_OpaqueIsIdentity(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 7)
	}
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 0xff
	}

	once := Normalize(src)
	assert.Equal(t, src.Pix, once.Pix)
	assert.Equal(t, once.Pix, Normalize(once).Pix)
}

func TestNormalize_AlphaOnWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})
	src.SetNRGBA(1, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	src.SetNRGBA(2, 0, color.NRGBA{R: 200, G: 0, B: 0, A: 128})

	got := Normalize(src)
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, rgbaAt(got, 0, 0))
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, rgbaAt(got, 1, 0))

	blended := rgbaAt(got, 2, 0)
	assert.InDelta(t, 227, int(blended.R), 1)
	assert.InDelta(t, 127, int(blended.G), 1)
	assert.Equal(t, uint8(255), blended.A)
}

func TestNormalize_ColorModes(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	gray.SetGray(1, 1, color.Gray{Y: 77})
	got := Normalize(gray)
	assert.Equal(t, color.RGBA{R: 77, G: 77, B: 77, A: 255}, rgbaAt(got, 1, 1))

	palette := color.Palette{color.RGBA{A: 0}, color.RGBA{R: 0, G: 0, B: 255, A: 255}}
	paletted := image.NewPaletted(image.Rect(0, 0, 2, 1), palette)
	paletted.SetColorIndex(1, 0, 1)
	got = Normalize(paletted)
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, rgbaAt(got, 0, 0))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, rgbaAt(got, 1, 0))

	ycc := image.NewYCbCr(image.Rect(0, 0, 4, 4), image.YCbCrSubsampleRatio420)
	got = Normalize(ycc)
	assert.Equal(t, image.Rect(0, 0, 4, 4), got.Bounds())
	assert.True(t, got.Opaque())
}

func TestNormalize_RebasesOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	src.SetRGBA(5, 5, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	sub := src.SubImage(image.Rect(5, 5, 9, 8))

	got := Normalize(sub)
	assert.Equal(t, image.Rect(0, 0, 4, 3), got.Bounds())
	assert.Equal(t, color.RGBA{R: 1, G: 2, B: 3, A: 255}, rgbaAt(got, 0, 0))
}

func TestHasAlpha(t *testing.T) {
	opaque := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := 3; i < len(opaque.Pix); i += 4 {
		opaque.Pix[i] = 0xff
	}
	assert.False(t, hasAlpha(opaque))

	opaque.Pix[3] = 0x10
	assert.True(t, hasAlpha(opaque))
	assert.False(t, hasAlpha(image.NewGray(image.Rect(0, 0, 2, 2))))
	assert.True(t, hasAlpha(image.NewUniform(color.Transparent)))
}

func TestFitSize(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	assert.Same(t, src, fitSize(src, image.Pt(20, 10)))

	got := fitSize(src, image.Pt(7, 13))
	require.NotNil(t, got)
	assert.Equal(t, image.Pt(7, 13), got.Bounds().Size())
}

func TestFitSize_SemiTransparentEdge(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 40, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 40; x++ {
			c := color.NRGBA{A: 255}
			if x < 20 {
				c = color.NRGBA{R: 255, G: 255, B: 255, A: 128}
			}
			src.SetNRGBA(x, y, c)
		}
	}

	fitted := fitSize(src, image.Pt(57, 4))
	b := fitted.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := fitted.At(x, y).RGBA()
			require.LessOrEqual(t, max(r, g, bl), a, "pixel (%d,%d) is not valid premultiplied", x, y)
		}
	}

	out := onWhite(fitted)
	for x := 0; x < 28; x++ {
		c := rgbaAt(out, x, 1)
		assert.GreaterOrEqual(t, c.R, uint8(125), "pixel (%d,1) = %v", x, c)
	}
	assert.Less(t, rgbaAt(out, 50, 1).R, uint8(10))
}

func TestClampPremultiplied(t *testing.T) {
	m := image.NewRGBA(image.Rect(0, 0, 1, 1))
	copy(m.Pix, []uint8{139, 20, 116, 116})
	clampPremultiplied(m)
	assert.Equal(t, []uint8{116, 20, 116, 116}, m.Pix)

	m64 := image.NewRGBA64(image.Rect(0, 0, 1, 1))
	m64.SetRGBA64(0, 0, color.RGBA64{R: 0x9000, G: 0x1000, B: 0x8000, A: 0x8000})
	clampPremultiplied(m64)
	assert.Equal(t, color.RGBA64{R: 0x8000, G: 0x1000, B: 0x8000, A: 0x8000}, m64.RGBA64At(0, 0))
}
