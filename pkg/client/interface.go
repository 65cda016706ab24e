// Package client defines the vision model backend used to suggest crops.
package client

import (
	"context"

	"github.com/menta2k/image-editor/pkg/types"
)

// VisionClient asks a multimodal model about an image. Images travel as
// base64-encoded JPEG or PNG.
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error)
}
