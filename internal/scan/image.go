package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ImageSource decodes a QR code from a PNG or JPEG file, such as a screenshot
// or a photo of a merchant standee.
type ImageSource struct {
	Path string
}

// Start decodes the image synchronously. An image without a readable QR code
// yields a closed, empty channel; an unreadable file is an error.
func (s ImageSource) Start(ctx context.Context) (<-chan string, error) {
	out := make(chan string, 1)
	defer close(out)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	code, err := DecodeImageFile(s.Path)
	switch {
	case errors.Is(err, ErrNoCode):
	case err != nil:
		return nil, err
	default:
		out <- code
	}
	return out, nil
}

func (ImageSource) Stop() {}

// DecodeImageFile returns the text of the QR code in the image at path.
func DecodeImageFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	return DecodeImage(img)
}

// DecodeImage returns the text of the QR code in img.
func DecodeImage(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("binarize image: %w", err)
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	res, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	return res.GetText(), nil
}
