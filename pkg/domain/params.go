package domain

import "fmt"

// ContinuityMode controls how rotation direction evolves across a sequence.
type ContinuityMode string

const (
	ContinuityContinuous ContinuityMode = "continuous"
	ContinuityRandom     ContinuityMode = "random"
)

// SequenceMode selects the overall construction strategy.
type SequenceMode string

const (
	ModeFreeform SequenceMode = "freeform"
	ModeCircular SequenceMode = "circular"
)

// RotationType refines circular construction when the cap is strict-rotated.
type RotationType string

const (
	RotationHalved    RotationType = "halved"
	RotationQuartered RotationType = "quartered"
)

// CapType names how a circular sequence closes back on its start.
type CapType string

const (
	CapStrictRotated          CapType = "strict_rotated"
	CapStrictMirrored         CapType = "strict_mirrored"
	CapStrictSwapped          CapType = "strict_swapped"
	CapStrictComplementary    CapType = "strict_complementary"
	CapSwappedComplementary   CapType = "swapped_complementary"
	CapRotatedComplementary   CapType = "rotated_complementary"
	CapMirroredSwapped        CapType = "mirrored_swapped"
	CapRotatedSwapped         CapType = "rotated_swapped"
	CapMirroredComplementary  CapType = "mirrored_complementary"
	CapMirroredRotated        CapType = "mirrored_rotated"
	CapAny                    CapType = "any"
)

// StartPositionAny leaves the opening position to the engine.
const StartPositionAny = "any"

// GenerationParams is the immutable input of one generation job.
// Copies are cheap; the orchestrator derives per-job variations by value.
type GenerationParams struct {
	Length        int            `yaml:"length" json:"length"`
	Level         int            `yaml:"level" json:"level"`
	TurnIntensity float64        `yaml:"turn_intensity" json:"turn_intensity"`
	Continuity    ContinuityMode `yaml:"continuity" json:"continuity"`
	Mode          SequenceMode   `yaml:"mode" json:"mode"`
	Rotation      RotationType   `yaml:"rotation,omitempty" json:"rotation,omitempty"`
	Cap           CapType        `yaml:"cap" json:"cap"`
	StartPosition string         `yaml:"start_position" json:"start_position"`
}

var capTypes = map[CapType]bool{
	CapStrictRotated:         true,
	CapStrictMirrored:        true,
	CapStrictSwapped:         true,
	CapStrictComplementary:   true,
	CapSwappedComplementary:  true,
	CapRotatedComplementary:  true,
	CapMirroredSwapped:       true,
	CapRotatedSwapped:        true,
	CapMirroredComplementary: true,
	CapMirroredRotated:       true,
	CapAny:                   true,
}

// Validate reports the first violated constraint, or nil.
func (p GenerationParams) Validate() error {
	if p.Length <= 0 {
		return fmt.Errorf("length must be positive, got %d", p.Length)
	}
	if p.Level < 1 || p.Level > 3 {
		return fmt.Errorf("level must be between 1 and 3, got %d", p.Level)
	}
	switch p.Continuity {
	case ContinuityContinuous, ContinuityRandom:
	default:
		return fmt.Errorf("unknown continuity mode %q", p.Continuity)
	}
	switch p.Mode {
	case ModeFreeform, ModeCircular:
	default:
		return fmt.Errorf("unknown sequence mode %q", p.Mode)
	}
	if !capTypes[p.Cap] {
		return fmt.Errorf("unknown cap type %q", p.Cap)
	}
	// Rotation only matters for circular strict-rotated sequences.
	if p.Mode == ModeCircular && p.Cap == CapStrictRotated {
		switch p.Rotation {
		case RotationHalved, RotationQuartered:
		default:
			return fmt.Errorf("circular strict-rotated sequences require a rotation type, got %q", p.Rotation)
		}
	}
	if p.StartPosition == "" {
		return fmt.Errorf("start position must be set (use %q to let the engine choose)", StartPositionAny)
	}
	return nil
}

// WithStartPosition returns a copy with the start position replaced.
func (p GenerationParams) WithStartPosition(pos string) GenerationParams {
	p.StartPosition = pos
	return p
}

// DefaultParams returns a valid baseline parameter set.
func DefaultParams() GenerationParams {
	return GenerationParams{
		Length:        16,
		Level:         1,
		TurnIntensity: 1,
		Continuity:    ContinuityContinuous,
		Mode:          ModeFreeform,
		Cap:           CapAny,
		StartPosition: StartPositionAny,
	}
}
