package ports

import (
	"context"
	"image"

	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
)

// SequenceEngine is the external notation engine. Its natural behavior is
// "build into the current document", so callers MUST point it at an isolated
// scratch document; the pipeline never hands it the shared one.
type SequenceEngine interface {
	// BuildSequence populates scratch with the raw beat records for params.
	BuildSequence(ctx context.Context, params domain.GenerationParams, scratch *domain.Document) error

	// RenderArtifact paints a preview of the given raw sequence.
	RenderArtifact(ctx context.Context, beats []domain.Beat, opts domain.RenderOptions) (image.Image, error)
}
