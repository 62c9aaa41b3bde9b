package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/chaos-io/whitebg/rembg"
	"github.com/chaos-io/whitebg/util"
)

// JPEG quality of the two outputs.
const (
	OriginalQuality  = 90
	ProcessedQuality = 95
)

// Result holds both images as base64-encoded JPEG.
type Result struct {
	Original  string
	Processed string
}

// Processor turns input image bytes into a Result using RemBG for the cutout.
type Processor struct {
	RemBG  rembg.Remover
	logger *zap.Logger
}

// NewProcessor returns a Processor backed by remover.
func NewProcessor(remover rembg.Remover, logger *zap.Logger) *Processor {
	return &Processor{
		RemBG:  remover,
		logger: logger,
	}
}

// Process 把任意输入图片变成两张 JPEG
//
//	original: 去掉透明通道（白底），原尺寸，质量 90
//	processed: 背景被移除并替换为白色，与 original 同尺寸，质量 95
//
// 背景去除使用原始输入字节，而不是归一化后的图像。
func (p *Processor) Process(ctx context.Context, data []byte) (*Result, error) {
	defer util.Trace("process image")()

	// 1. 解码
	img, err := decode(data)
	if err != nil {
		return nil, err
	}

	// 2. 颜色模式归一化
	original := Normalize(img)
	size := original.Bounds().Size()
	p.logger.Debug("decoded input", zap.Int("width", size.X), zap.Int("height", size.Y), zap.Bool("alpha", hasAlpha(img)))

	// 3. 原图编码
	originalB64, err := encodeJPEG(original, OriginalQuality)
	if err != nil {
		return nil, err
	}

	// 4. 背景去除
	removed, err := p.removeBackground(ctx, data)
	if err != nil {
		return nil, err
	}

	// 5. 尺寸对齐
	if got := removed.Bounds().Size(); got != size {
		p.logger.Debug("resizing cutout", zap.Stringer("from", got), zap.Stringer("to", size))
	}
	removed = fitSize(removed, size)

	// 6~7. 白色背景合成
	composited := onWhite(removed)

	// 8. 结果编码
	processedB64, err := encodeJPEG(composited, ProcessedQuality)
	if err != nil {
		return nil, err
	}

	return &Result{Original: originalB64, Processed: processedB64}, nil
}

func (p *Processor) removeBackground(ctx context.Context, data []byte) (image.Image, error) {
	defer util.Trace("remove background")()

	out, err := p.RemBG.Remove(ctx, data)
	if err != nil {
		return nil, &Error{Kind: ErrSegmentation, Err: err}
	}

	img, format, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, newError(ErrSegmentation, "decode remover output (%s): %w", mimetype.Detect(out), err)
	}
	p.logger.Debug("cutout decoded", zap.String("format", format), zap.Bool("alpha", hasAlpha(img)))

	return img, nil
}

func decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, newError(ErrDecode, "empty input")
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, newError(ErrDecode, "unsupported content type %s", mtype)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, newError(ErrDecode, "%s: %w", mtype, err)
	}
	return img, nil
}

func encodeJPEG(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", newError(ErrEncode, "quality %d: %w", quality, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
