package template

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gait_feedback/internal/gaitdb"
)

var _ Source = (*gaitdb.Database)(nil)

type fakeSource struct {
	template    []float64
	reliability float64
}

func (s fakeSource) TimeWeightedTemplate() ([]float64, bool) {
	return s.template, s.template != nil
}

func (s fakeSource) ReliabilityIndex() float64 { return s.reliability }

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func newFusion(t *testing.T, normative []float64) *Fusion {
	t.Helper()
	f, err := NewFusion(normative, DefaultParams())
	require.NoError(t, err)
	return f
}

func TestNewFusionRejectsEmptyNormative(t *testing.T) {
	t.Parallel()

	_, err := NewFusion(nil, DefaultParams())
	assert.ErrorIs(t, err, ErrEmptyNormative)

	_, err = NewFusion([]float64{1}, Params{StartWeight: 0.4, MinWeight: 0.6})
	assert.Error(t, err)
}

func TestWeights(t *testing.T) {
	t.Parallel()
	f := newFusion(t, constant(10, 0))

	tests := []struct {
		name        string
		reliability float64
		patient     float64
	}{
		{"zero reliability keeps start weight", 0, 0.9},
		{"negative treated as zero", -3, 0.9},
		{"midpoint", 0.5, 0.5 + 0.4*math.Exp(-1)},
		{"saturated", 10, 0.5 + 0.4*math.Exp(-2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.Weights(tt.reliability)
			assert.InDelta(t, tt.patient, w.Patient, 1e-6)
			assert.InDelta(t, 1.0, w.Patient+w.Normative, 1e-12)
		})
	}
}

func TestWeightsStayInBounds(t *testing.T) {
	t.Parallel()
	f := newFusion(t, constant(10, 0))
	p := f.Params()

	for r := 0.0; r < 5; r += 0.05 {
		w := f.Weights(r)
		assert.GreaterOrEqual(t, w.Patient, p.MinWeight)
		assert.LessOrEqual(t, w.Patient, p.StartWeight)
		assert.InDelta(t, 1.0, w.Patient+w.Normative, 1e-12)
	}
}

func TestFusedColdStart(t *testing.T) {
	t.Parallel()
	norm := DefaultNormative(100)
	f := newFusion(t, norm)

	fused, w := f.Fused(fakeSource{})
	assert.Equal(t, norm, fused)
	assert.Equal(t, Weights{Patient: 0, Normative: 1}, w)

	fused[0] = 999
	assert.NotEqual(t, 999.0, f.Normative()[0], "fused template must not alias the normative one")
}

func TestFusedBlendsResampledPatientTemplate(t *testing.T) {
	t.Parallel()
	f := newFusion(t, constant(5, 100))

	fused, w := f.Fused(fakeSource{template: []float64{0, 10, 20}})
	assert.InDelta(t, 0.9, w.Patient, 1e-12)

	want := []float64{10, 14.5, 19, 23.5, 28}
	require.Len(t, fused, len(want))
	for i := range want {
		assert.InDelta(t, want[i], fused[i], 1e-9, "index %d", i)
	}
}

func TestFusedWithDatabase(t *testing.T) {
	t.Parallel()
	db, err := gaitdb.New(gaitdb.DefaultParams(), nil)
	require.NoError(t, err)
	f := newFusion(t, constant(50, 0))

	_, w := f.Fused(db)
	assert.Equal(t, 1.0, w.Normative)

	n := 40
	theta := make([]float64, n)
	ts := make([]float64, n)
	for i := range theta {
		ts[i] = float64(i) / 50
		theta[i] = 20
	}
	require.True(t, db.TryAdd(theta, ts))

	fused, w := f.Fused(db)
	require.Len(t, fused, 50)
	// A single exemplar has zero reliability: start weight applies.
	assert.InDelta(t, 0.9, w.Patient, 1e-12)
	assert.InDelta(t, 18, fused[25], 1e-9)
}

func TestNormality(t *testing.T) {
	t.Parallel()
	target := DefaultNormative(100)

	assert.InDelta(t, 1.0, Normality(target, target), 1e-12)

	shifted := append([]float64(nil), target...)
	for i := range shifted {
		shifted[i] += 10
	}
	assert.InDelta(t, 0.5, Normality(shifted, target), 1e-9)

	// Different lengths are resampled onto the target.
	assert.InDelta(t, 1.0, Normality(constant(7, 3), constant(100, 3)), 1e-12)

	s := Normality([]float64{0, 50, -20}, target)
	assert.Greater(t, s, 0.0)
	assert.Less(t, s, 1.0)
}

func TestDefaultNormativeShape(t *testing.T) {
	t.Parallel()
	n := DefaultNormative(101)
	require.Len(t, n, 101)

	assert.InDelta(t, n[0], n[100], 1e-9, "curve is periodic over the stride")
	assert.Greater(t, n[0], 20.0)

	lo := 0
	for i, v := range n {
		if v < n[lo] {
			lo = i
		}
	}
	assert.Less(t, n[lo], 0.0, "thigh extends behind vertical in late stance")
	assert.InDelta(t, 58, lo, 5)
}

func TestLoadNormative(t *testing.T) {
	t.Parallel()

	got, err := LoadNormative(strings.NewReader("angle_deg\n# comment\n1.5\n\n2\n-3.25,ignored\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2, -3.25}, got)

	_, err = LoadNormative(strings.NewReader("angle\n"))
	assert.ErrorIs(t, err, ErrEmptyNormative)

	_, err = LoadNormative(strings.NewReader("1\nabc\n"))
	assert.Error(t, err)
}

func TestLoadNormativeFileDefault(t *testing.T) {
	t.Parallel()

	got, err := LoadNormativeFile("", 64)
	require.NoError(t, err)
	assert.Len(t, got, 64)

	_, err = LoadNormativeFile("/nonexistent/normative.csv", 64)
	assert.Error(t, err)
}
