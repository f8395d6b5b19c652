package imageprocessing

import "fmt"

// Thumbnail decodes an image data URI and renders it as a PNG at most width
// pixels wide. SVG documents without an explicit size are rendered as a square.
func Thumbnail(dataURI string, width int) ([]byte, error) {
	uri, err := ParseDataURI(dataURI)
	if err != nil {
		return nil, err
	}

	scale, err := NewScaleCommand(width)
	if err != nil {
		return nil, fmt.Errorf("failed to create thumbnail command: %w", err)
	}

	invoker := NewCommandInvoker(NewPngConverterCommand(width, width), scale)
	thumbnail, err := invoker.Execute(uri.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to generate thumbnail: %w", err)
	}
	return thumbnail, nil
}
