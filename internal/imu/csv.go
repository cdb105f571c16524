// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrShortRecord is returned when a trial row has fewer than 7 columns.
var ErrShortRecord = errors.New("imu: trial record needs 7 columns (t,ax,ay,az,gx,gy,gz)")

var csvHeader = []string{"t", "ax", "ay", "az", "gx", "gy", "gz"}

// ReadCSV reads a recorded trial. The first row may be the header
// t,ax,ay,az,gx,gy,gz; blank lines and lines starting with '#' are skipped.
// Timestamps must be strictly increasing.
func ReadCSV(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var samples []Sample
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("trial csv: %w", err)
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "t") {
			continue
		}
		if len(rec) < len(csvHeader) {
			return nil, fmt.Errorf("trial csv row %d: %w", line, ErrShortRecord)
		}
		var v [7]float64
		for i := range v {
			v[i], err = strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("trial csv row %d column %s: %w", line, csvHeader[i], err)
			}
		}
		samples = append(samples, Sample{
			T:    v[0],
			Acc:  Vec3{X: v[1], Y: v[2], Z: v[3]},
			Gyro: Vec3{X: v[4], Y: v[5], Z: v[6]},
		})
	}

	if err := CheckMonotonic(samples); err != nil {
		return nil, fmt.Errorf("trial csv: %w", err)
	}
	return samples, nil
}

// WriteCSV writes samples with the standard trial header.
func WriteCSV(w io.Writer, samples []Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, s := range samples {
		row := []string{
			f(s.T),
			f(s.Acc.X), f(s.Acc.Y), f(s.Acc.Z),
			f(s.Gyro.X), f(s.Gyro.Y), f(s.Gyro.Z),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
