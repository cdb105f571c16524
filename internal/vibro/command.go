// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package vibro

import (
	"errors"
	"fmt"
)

// MaxChannel is the highest addressable actuator channel (16-bit mask).
const MaxChannel = 16

var (
	ErrEmptyChannels = errors.New("vibro: channel set is empty")
	ErrUnknownMode   = errors.New("vibro: unknown feedback mode")
)

// Mode selects how feedback is delivered.
type Mode string

const (
	// ModeSpaVib emits short bursts at swing initiation.
	ModeSpaVib Mode = "SpaVib"
	// ModeConst emits one command spanning the whole trial.
	ModeConst Mode = "Const"
)

// ParseMode accepts the two known modes, case-sensitive as sent on the wire.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSpaVib, ModeConst:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func (m Mode) code() byte {
	switch m {
	case ModeSpaVib:
		return 1
	case ModeConst:
		return 2
	}
	return 0
}

func modeFromCode(c byte) (Mode, error) {
	switch c {
	case 1:
		return ModeSpaVib, nil
	case 2:
		return ModeConst, nil
	}
	return "", fmt.Errorf("%w: code %d", ErrUnknownMode, c)
}

// Command is one timed actuation event. Build it with NewCommand.
type Command struct {
	Start     float64 `json:"t_start"`
	End       float64 `json:"t_end"`
	Channels  []int   `json:"channels"`
	Amplitude float64 `json:"amplitude"`
	Frequency float64 `json:"frequency"`
	Mode      Mode    `json:"mode"`
}

// NewCommand validates and builds a command. Channels are copied.
func NewCommand(start, end float64, channels []int, amplitude, frequency float64, mode Mode) (Command, error) {
	if err := checkChannels(channels); err != nil {
		return Command{}, err
	}
	if end < start {
		return Command{}, fmt.Errorf("vibro: command ends (%g) before it starts (%g)", end, start)
	}
	if amplitude < 0 || amplitude > 1 {
		return Command{}, fmt.Errorf("vibro: amplitude %g outside [0,1]", amplitude)
	}
	return Command{
		Start:     start,
		End:       end,
		Channels:  append([]int(nil), channels...),
		Amplitude: amplitude,
		Frequency: frequency,
		Mode:      mode,
	}, nil
}

func checkChannels(channels []int) error {
	if len(channels) == 0 {
		return ErrEmptyChannels
	}
	for _, ch := range channels {
		if ch < 1 || ch > MaxChannel {
			return fmt.Errorf("vibro: channel %d outside 1..%d", ch, MaxChannel)
		}
	}
	return nil
}

// Duration returns End - Start in seconds.
func (c Command) Duration() float64 { return c.End - c.Start }

// Mask returns the channel bitmask: bit k set iff channel k+1 is active.
func (c Command) Mask() uint16 {
	var m uint16
	for _, ch := range c.Channels {
		m |= 1 << (ch - 1)
	}
	return m
}
