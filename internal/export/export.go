// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package export writes trial results as columns for statistical
// reporting: one row per sample and one row per gait cycle.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/relabs-tech/gait_feedback/internal/pipeline"
)

type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
)

// ParseFormat accepts parquet or csv; empty means parquet.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatParquet, nil
	case FormatParquet, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q (expected parquet|csv)", s)
}

type sampleRow struct {
	SessionID string  `parquet:"name=session_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	T         float64 `parquet:"name=t, type=DOUBLE"`
	ThetaRaw  float64 `parquet:"name=theta_raw, type=DOUBLE"`
	Theta     float64 `parquet:"name=theta, type=DOUBLE"`
	Phase     string  `parquet:"name=phase, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

type cycleRow struct {
	SessionID string  `parquet:"name=session_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Index     int64   `parquet:"name=index, type=INT64"`
	TStart    float64 `parquet:"name=t_start, type=DOUBLE"`
	TEnd      float64 `parquet:"name=t_end, type=DOUBLE"`
	Samples   int64   `parquet:"name=samples, type=INT64"`
	Accepted  bool    `parquet:"name=accepted, type=BOOLEAN"`
	Normality float64 `parquet:"name=normality, type=DOUBLE"`
}

var (
	sampleHeader = []string{"session_id", "t", "theta_raw", "theta", "phase"}
	cycleHeader  = []string{"session_id", "index", "t_start", "t_end", "samples", "accepted", "normality"}
)

func sampleRows(res pipeline.TrialResult) []sampleRow {
	tr := res.Trajectory
	rows := make([]sampleRow, tr.Len())
	for i := range rows {
		rows[i] = sampleRow{
			SessionID: res.SessionID,
			T:         tr.T[i],
			ThetaRaw:  tr.Raw[i],
			Theta:     tr.Theta[i],
			Phase:     tr.Phases[i].String(),
		}
	}
	return rows
}

func cycleRows(res pipeline.TrialResult) []cycleRow {
	rows := make([]cycleRow, len(res.Cycles))
	for i, c := range res.Cycles {
		rows[i] = cycleRow{
			SessionID: res.SessionID,
			Index:     int64(c.Index),
			TStart:    c.Start,
			TEnd:      c.End,
			Samples:   int64(c.Samples),
			Accepted:  c.Accepted,
			Normality: c.Normality,
		}
	}
	return rows
}

// Paths are the files written by WriteTrial.
type Paths struct {
	Samples string
	Cycles  string
}

// WriteTrial writes samples.<ext> and cycles.<ext> into dir, creating it.
func WriteTrial(dir string, format Format, res pipeline.TrialResult) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create export dir: %w", err)
	}
	p := Paths{
		Samples: filepath.Join(dir, "samples."+string(format)),
		Cycles:  filepath.Join(dir, "cycles."+string(format)),
	}

	var err error
	switch format {
	case FormatParquet:
		if err = writeParquet(p.Samples, new(sampleRow), sampleRows(res)); err == nil {
			err = writeParquet(p.Cycles, new(cycleRow), cycleRows(res))
		}
	case FormatCSV:
		if err = writeCSV(p.Samples, sampleHeader, sampleRecords(res)); err == nil {
			err = writeCSV(p.Cycles, cycleHeader, cycleRecords(res))
		}
	default:
		return Paths{}, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return Paths{}, fmt.Errorf("write %s export: %w", format, err)
	}
	return p, nil
}

func writeParquet[R any](path string, schema *R, rows []R) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewParquetWriter(fw, schema, 4)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

func f64(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func sampleRecords(res pipeline.TrialResult) [][]string {
	rows := sampleRows(res)
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{r.SessionID, f64(r.T), f64(r.ThetaRaw), f64(r.Theta), r.Phase}
	}
	return out
}

func cycleRecords(res pipeline.TrialResult) [][]string {
	rows := cycleRows(res)
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{
			r.SessionID,
			strconv.FormatInt(r.Index, 10),
			f64(r.TStart),
			f64(r.TEnd),
			strconv.FormatInt(r.Samples, 10),
			strconv.FormatBool(r.Accepted),
			f64(r.Normality),
		}
	}
	return out
}

func writeCSV(path string, header []string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
