// Package generate drives the sequence engine inside isolated scratch
// sessions and gates its output.
package generate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/austencloud/tka-desktop-sub001/internal/logging"
	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
	"github.com/austencloud/tka-desktop-sub001/pkg/ports"
)

// Generator produces one artifact per call by pointing the engine's
// "build into current document" behavior at a session's scratch document,
// so nothing can leak into the shared one.
type Generator struct {
	engine ports.SequenceEngine
	logger *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// New creates a Generator over the given engine.
func New(engine ports.SequenceEngine, opts ...Option) *Generator {
	g := &Generator{engine: engine, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate builds one artifact for params inside sess. jobIndex is the
// job's position within its batch; jobs after the first get a deterministic
// parameter variation (start position forced to "any") so a batch whose
// engine seeds randomness from its inputs cannot collapse into identical
// repeats.
//
// The length gate is hard: the counted content beats must equal
// params.Length exactly or the output is discarded as a validation failure.
func (g *Generator) Generate(ctx context.Context, params domain.GenerationParams, sess *domain.Session, jobIndex int) (*domain.Artifact, error) {
	jobParams := params
	if jobIndex > 0 {
		jobParams = params.WithStartPosition(domain.StartPositionAny)
	}

	sess.Scratch.Reset()
	if err := g.engine.BuildSequence(ctx, jobParams, sess.Scratch); err != nil {
		return nil, domain.NewGenerationFailure(sess.ID, err)
	}

	beats := sess.Scratch.Beats
	if len(beats) == 0 {
		return nil, domain.NewGenerationFailure(sess.ID, fmt.Errorf("engine produced no beats"))
	}

	content := domain.ContentBeats(beats)
	if len(content) != jobParams.Length {
		g.logger.Warn("discarding wrong-length artifact",
			"session_id", sess.ID,
			"want", jobParams.Length,
			"got", len(content),
		)
		return nil, domain.NewValidationFailure(sess.ID,
			fmt.Errorf("content beat count %d != requested length %d", len(content), jobParams.Length))
	}

	raw := make([]domain.Beat, len(beats))
	copy(raw, beats)

	return &domain.Artifact{
		ID:     uuid.NewString(),
		Word:   domain.Word(raw),
		Beats:  raw,
		Params: jobParams,
	}, nil
}
