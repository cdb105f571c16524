// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package template

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/relabs-tech/gait_feedback/internal/signal"
)

// Harmonic coefficients (degrees) of a population thigh-flexion curve over
// one stride starting at heel strike: ~26° flexion at contact, ~-11°
// extension near 58 % of the cycle, swing flexion back toward contact.
var normativeHarmonics = []struct{ cos, sin float64 }{
	{18, 4},
	{1, -2},
	{-0.5, 0.5},
}

const normativeMean = 8.0

// DefaultNormative returns the built-in normative thigh-angle template
// sampled at n evenly spaced phase points in [0, 1].
func DefaultNormative(n int) []float64 {
	phase := signal.Linspace(0, 1, n)
	out := make([]float64, len(phase))
	for i, p := range phase {
		v := normativeMean
		for k, h := range normativeHarmonics {
			w := 2 * math.Pi * float64(k+1) * p
			v += h.cos*math.Cos(w) + h.sin*math.Sin(w)
		}
		out[i] = v
	}
	return out
}

// LoadNormative reads a single-column template: one angle (degrees) per
// record. Blank lines and lines starting with '#' are skipped, as is a
// non-numeric first record (header). Extra columns are ignored.
func LoadNormative(r io.Reader) ([]float64, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []float64
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("normative template: %w", err)
		}
		field := strings.TrimSpace(rec[0])
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			if len(out) == 0 && line == 1 {
				continue
			}
			return nil, fmt.Errorf("normative template record %d: %w", line, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, ErrEmptyNormative
	}
	return out, nil
}

// LoadNormativeFile loads a template from path. An empty path yields the
// built-in template with n points.
func LoadNormativeFile(path string, n int) ([]float64, error) {
	if path == "" {
		return DefaultNormative(n), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open normative template: %w", err)
	}
	defer f.Close()
	return LoadNormative(f)
}
