// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import "fmt"

// Phase is the gait sub-phase reported by the adaptive filter.
type Phase uint8

const (
	// Transition is the zero value: it is reported until enough history
	// exists to classify, and whenever the two features disagree.
	Transition Phase = iota
	Stance
	Swing
)

func (p Phase) String() string {
	switch p {
	case Stance:
		return "stance"
	case Swing:
		return "swing"
	case Transition:
		return "transition"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// MarshalText encodes the phase as its lowercase name.
func (p Phase) MarshalText() ([]byte, error) {
	switch p {
	case Stance, Swing, Transition:
		return []byte(p.String()), nil
	}
	return nil, fmt.Errorf("invalid phase %d", uint8(p))
}

// UnmarshalText accepts the names produced by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	v, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePhase parses "stance", "swing" or "transition".
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "stance":
		return Stance, nil
	case "swing":
		return Swing, nil
	case "transition":
		return Transition, nil
	}
	return Transition, fmt.Errorf("unknown phase %q", s)
}
