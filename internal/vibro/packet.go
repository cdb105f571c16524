// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package vibro

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Serial frame layout, little-endian:
//
//	0-1   sync 0xA5 0x5A
//	2     mode (1 SpaVib, 2 Const)
//	3-4   channel mask
//	5-8   amplitude float32
//	9-12  frequency float32
//	13-20 t_start float64
//	21-28 t_end float64
//	29    XOR of bytes 0-28
const (
	PacketSize = 30

	sync0 = 0xA5
	sync1 = 0x5A
)

var ErrBadFrame = errors.New("vibro: malformed actuation frame")

// Packet is the transport form of a Command.
type Packet struct {
	TStart      float64 `json:"t_start"`
	TEnd        float64 `json:"t_end"`
	ChannelMask uint16  `json:"channel_mask"`
	Amplitude   float64 `json:"amplitude"`
	Frequency   float64 `json:"frequency"`
	Mode        Mode    `json:"mode"`
}

// ToPackets converts commands 1:1, preserving order.
func ToPackets(cmds []Command) []Packet {
	out := make([]Packet, len(cmds))
	for i, c := range cmds {
		out[i] = c.Packet()
	}
	return out
}

func (c Command) Packet() Packet {
	return Packet{
		TStart:      c.Start,
		TEnd:        c.End,
		ChannelMask: c.Mask(),
		Amplitude:   c.Amplitude,
		Frequency:   c.Frequency,
		Mode:        c.Mode,
	}
}

// Channels expands the mask back into 1-based channel numbers.
func (p Packet) Channels() []int {
	var chs []int
	for k := 0; k < MaxChannel; k++ {
		if p.ChannelMask&(1<<k) != 0 {
			chs = append(chs, k+1)
		}
	}
	return chs
}

// MarshalBinary encodes the serial frame. Amplitude and frequency are
// narrowed to float32.
func (p Packet) MarshalBinary() ([]byte, error) {
	code := p.Mode.code()
	if code == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, p.Mode)
	}
	if p.ChannelMask == 0 {
		return nil, ErrEmptyChannels
	}

	buf := make([]byte, PacketSize)
	buf[0], buf[1] = sync0, sync1
	buf[2] = code
	binary.LittleEndian.PutUint16(buf[3:], p.ChannelMask)
	binary.LittleEndian.PutUint32(buf[5:], math.Float32bits(float32(p.Amplitude)))
	binary.LittleEndian.PutUint32(buf[9:], math.Float32bits(float32(p.Frequency)))
	binary.LittleEndian.PutUint64(buf[13:], math.Float64bits(p.TStart))
	binary.LittleEndian.PutUint64(buf[21:], math.Float64bits(p.TEnd))
	buf[PacketSize-1] = checksum(buf[:PacketSize-1])
	return buf, nil
}

func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) != PacketSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrBadFrame, len(data), PacketSize)
	}
	if data[0] != sync0 || data[1] != sync1 {
		return fmt.Errorf("%w: bad sync 0x%02X%02X", ErrBadFrame, data[0], data[1])
	}
	if sum := checksum(data[:PacketSize-1]); sum != data[PacketSize-1] {
		return fmt.Errorf("%w: checksum 0x%02X, want 0x%02X", ErrBadFrame, data[PacketSize-1], sum)
	}
	mode, err := modeFromCode(data[2])
	if err != nil {
		return err
	}
	*p = Packet{
		Mode:        mode,
		ChannelMask: binary.LittleEndian.Uint16(data[3:]),
		Amplitude:   float64(math.Float32frombits(binary.LittleEndian.Uint32(data[5:]))),
		Frequency:   float64(math.Float32frombits(binary.LittleEndian.Uint32(data[9:]))),
		TStart:      math.Float64frombits(binary.LittleEndian.Uint64(data[13:])),
		TEnd:        math.Float64frombits(binary.LittleEndian.Uint64(data[21:])),
	}
	return nil
}

func checksum(b []byte) byte {
	var x byte
	for _, v := range b {
		x ^= v
	}
	return x
}
