package processing

import "errors"

var (
	// ErrNotDataURL is returned when a payload is not a base64 data URL.
	ErrNotDataURL = errors.New("payload is not a base64 data URL")
	// ErrDecode is returned when payload bytes are not a decodable image.
	ErrDecode = errors.New("image: unknown or unsupported format")
	// ErrUnsupportedEncoding is returned for output formats the processor
	// cannot write.
	ErrUnsupportedEncoding = errors.New("unsupported output format")
	// ErrCropOutOfBounds is returned when the crop origin falls outside the
	// displayed image.
	ErrCropOutOfBounds = errors.New("crop rectangle lies outside the image")
	// ErrEmptyCrop is returned when the crop scales to zero pixels.
	ErrEmptyCrop = errors.New("empty crop rectangle")
)
