package processor

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// hasAlpha 检查图像是否真的包含透明信息
// 只要存在非 255（非完全不透明）的像素，就认为需要按 alpha 合成
func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

// whiteCanvas returns an opaque white RGB raster of the given size.
func whiteCanvas(size image.Point) *image.RGBA {
	canvas := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return canvas
}

// onWhite 把图像贴到同尺寸的白色画布上
// 带透明信息时以 alpha 作为蒙版混合，否则直接覆盖（等价于转为 RGB）
func onWhite(img image.Image) *image.RGBA {
	b := img.Bounds()
	canvas := whiteCanvas(b.Size())

	op := draw.Src
	if hasAlpha(img) {
		op = draw.Over
	}
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, op)
	return canvas
}

// Normalize returns img as an opaque RGB raster anchored at the origin.
// Transparent pixels become white. An opaque input is copied unchanged.
func Normalize(img image.Image) *image.RGBA {
	return onWhite(img)
}

// fitSize 缩放到目标尺寸（宽高均强制匹配，不保持比例）
func fitSize(img image.Image, size image.Point) image.Image {
	if img.Bounds().Size() == size {
		return img
	}
	return clampPremultiplied(resize.Resize(uint(size.X), uint(size.Y), img, resize.Lanczos3))
}

// clampPremultiplied 修正 Lanczos 振铃导致的非法预乘像素（颜色分量 > alpha）
// nfnt 对每个通道单独截断，draw.Over 遇到这种像素会溢出变黑
func clampPremultiplied(img image.Image) image.Image {
	switch m := img.(type) {
	case *image.RGBA:
		for i := 0; i < len(m.Pix); i += 4 {
			a := m.Pix[i+3]
			m.Pix[i] = min(m.Pix[i], a)
			m.Pix[i+1] = min(m.Pix[i+1], a)
			m.Pix[i+2] = min(m.Pix[i+2], a)
		}
	case *image.RGBA64:
		for i := 0; i < len(m.Pix); i += 8 {
			a := uint16(m.Pix[i+6])<<8 | uint16(m.Pix[i+7])
			for c := i; c < i+6; c += 2 {
				if v := uint16(m.Pix[c])<<8 | uint16(m.Pix[c+1]); v > a {
					m.Pix[c], m.Pix[c+1] = uint8(a>>8), uint8(a)
				}
			}
		}
	}
	return img
}
