package breathe

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type PhaseName string

const (
	PhaseInhale  PhaseName = "inhale"
	PhaseHold    PhaseName = "hold"
	PhaseExhale  PhaseName = "exhale"
	PhaseHoldOut PhaseName = "hold_out"
)

func (p PhaseName) IsValid() bool {
	switch p {
	case PhaseInhale, PhaseHold, PhaseExhale, PhaseHoldOut:
		return true
	default:
		return false
	}
}

// Label is the instruction shown to the user during the phase.
func (p PhaseName) Label() string {
	switch p {
	case PhaseInhale:
		return "Breathe in"
	case PhaseHold, PhaseHoldOut:
		return "Hold"
	case PhaseExhale:
		return "Breathe out"
	default:
		return string(p)
	}
}

type Phase struct {
	Name            PhaseName `json:"name"`
	DurationSeconds int       `json:"duration_seconds"`
}

func (p Phase) Duration() time.Duration {
	return time.Duration(p.DurationSeconds) * time.Second
}

type Technique struct {
	ID                     TechniqueID `json:"id"`
	Name                   string      `json:"name"`
	Description            string      `json:"description,omitempty"`
	Color                  string      `json:"color"`
	IsSystem               bool        `json:"is_system"`
	Phases                 []Phase     `json:"phases"`
	DefaultDurationSeconds int         `json:"default_duration_seconds"`
}

// Validate checks the phase pattern: non-empty with every duration > 0.
func (t Technique) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("technique name is required")
	}
	if len(t.Phases) == 0 {
		return fmt.Errorf("technique %q has no phases", t.Name)
	}
	for i, p := range t.Phases {
		if !p.Name.IsValid() {
			return fmt.Errorf("technique %q phase %d: invalid name %q", t.Name, i, p.Name)
		}
		if p.DurationSeconds <= 0 {
			return fmt.Errorf("technique %q phase %d: duration must be > 0", t.Name, i)
		}
	}
	return nil
}

// CycleDuration is the length of one traversal of the phase pattern.
func (t Technique) CycleDuration() time.Duration {
	var d time.Duration
	for _, p := range t.Phases {
		d += p.Duration()
	}
	return d
}

// Pattern renders the phase durations, e.g. "4-7-8".
func (t Technique) Pattern() string {
	parts := make([]string, 0, len(t.Phases))
	for _, p := range t.Phases {
		parts = append(parts, fmt.Sprint(p.DurationSeconds))
	}
	return strings.Join(parts, "-")
}

// TechniqueInput is the payload for creating or updating a custom technique.
type TechniqueInput struct {
	Name                   string  `json:"name"`
	Description            string  `json:"description,omitempty"`
	Color                  string  `json:"color"`
	Phases                 []Phase `json:"phases"`
	DefaultDurationSeconds int     `json:"default_duration_seconds"`
}

func (in TechniqueInput) Technique(id TechniqueID) Technique {
	return Technique{
		ID:                     id,
		Name:                   strings.TrimSpace(in.Name),
		Description:            in.Description,
		Color:                  in.Color,
		Phases:                 in.Phases,
		DefaultDurationSeconds: in.DefaultDurationSeconds,
	}
}
