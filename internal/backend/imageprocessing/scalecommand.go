package imageprocessing

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// ScaleCommand scales a PNG to a target width while preserving aspect ratio.
// Images narrower than the target are returned unchanged.
type ScaleCommand struct {
	width int
}

func NewScaleCommand(width int) (*ScaleCommand, error) {
	if width <= 0 {
		return nil, fmt.Errorf("width must be positive, got %d", width)
	}
	return &ScaleCommand{width: width}, nil
}

func (c *ScaleCommand) Name() string {
	return "ScaleCommand"
}

func (c *ScaleCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= c.width {
		return imageData, nil
	}

	targetHeight := max(1, bounds.Dy()*c.width/bounds.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, c.width, targetHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode scaled PNG image: %w", err)
	}
	return buf.Bytes(), nil
}
