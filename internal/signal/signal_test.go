package signal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, fs, freq, amp, offset float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = offset + amp*math.Sin(2*math.Pi*freq*float64(i)/fs)
	}
	return out
}

func TestButterworthMatchesReference(t *testing.T) {
	t.Parallel()

	// 4th order, cutoff at 0.2 of Nyquist
	c, err := Butterworth(4, 10, 100)
	require.NoError(t, err)

	wantB := []float64{0.00482434, 0.01929737, 0.02894606, 0.01929737, 0.00482434}
	wantA := []float64{1, -2.36951301, 2.31398841, -1.05466541, 0.18737949}
	require.Len(t, c.B, 5)
	require.Len(t, c.A, 5)
	for i := range wantB {
		assert.InDelta(t, wantB[i], c.B[i], 1e-6, "b[%d]", i)
		assert.InDelta(t, wantA[i], c.A[i], 1e-6, "a[%d]", i)
	}

	var sb, sa float64
	for i := range c.B {
		sb += c.B[i]
		sa += c.A[i]
	}
	assert.InDelta(t, 1.0, sb/sa, 1e-9, "unity DC gain")
}

func TestButterworthRejectsBadDesign(t *testing.T) {
	t.Parallel()

	_, err := Butterworth(0, 5, 50)
	assert.Error(t, err)
	_, err = Butterworth(4, 5, 0)
	assert.Error(t, err)
	_, err = Butterworth(4, 30, 50)
	assert.Error(t, err, "cutoff above Nyquist")
}

func TestFiltFiltPreservesConstant(t *testing.T) {
	t.Parallel()

	x := make([]float64, 100)
	for i := range x {
		x[i] = 12.5
	}
	y, err := Smooth(x, 5, 50)
	require.NoError(t, err)
	require.Len(t, y, len(x))
	for i := range y {
		assert.InDelta(t, 12.5, y[i], 1e-9)
	}
}

func TestFiltFiltRemovesNoiseWithoutLag(t *testing.T) {
	t.Parallel()

	const fs = 50.0
	clean := sine(500, fs, 1, 10, 0)
	noise := sine(500, fs, 20, 2, 0)
	x := make([]float64, len(clean))
	for i := range x {
		x[i] = clean[i] + noise[i]
	}

	y, err := Smooth(x, 5, fs)
	require.NoError(t, err)
	for i := 50; i < 450; i++ {
		assert.InDelta(t, clean[i], y[i], 0.1, "sample %d", i)
	}
}

func TestFiltFiltShortInput(t *testing.T) {
	t.Parallel()

	y, err := Smooth([]float64{1, 2, 3}, 5, 50)
	require.NoError(t, err)
	assert.Len(t, y, 3)

	y, err = Smooth([]float64{4}, 5, 50)
	require.NoError(t, err)
	assert.Equal(t, []float64{4}, y)
}

func TestCausalFilterAndStreamAgree(t *testing.T) {
	t.Parallel()

	c, err := Butterworth(4, 5, 50)
	require.NoError(t, err)

	x := sine(200, 50, 2, 5, 3)
	batch, err := c.Filter(x)
	require.NoError(t, err)

	s, err := NewStream(c)
	require.NoError(t, err)
	for i, v := range x {
		assert.InDelta(t, batch[i], s.Step(v), 1e-12)
	}

	t.Run("constant passes without transient", func(t *testing.T) {
		s.Reset()
		for i := 0; i < 20; i++ {
			assert.InDelta(t, -7.0, s.Step(-7), 1e-9)
		}
	})
}

func TestFindPeaks(t *testing.T) {
	t.Parallel()

	t.Run("all local maxima", func(t *testing.T) {
		x := []float64{0, 1, 0, 2, 0, 3, 0}
		assert.Equal(t, []int{1, 3, 5}, FindPeaks(x, 0, 0))
	})

	t.Run("distance keeps the higher peak", func(t *testing.T) {
		x := []float64{0, 1, 0, 2, 0, 3, 0}
		assert.Equal(t, []int{1, 5}, FindPeaks(x, 0, 3))
	})

	t.Run("prominence", func(t *testing.T) {
		x := []float64{0, 5, 4, 6, 0}
		assert.InDelta(t, 1.0, Prominence(x, 1), 1e-12)
		assert.InDelta(t, 6.0, Prominence(x, 3), 1e-12)
		assert.Equal(t, []int{3}, FindPeaks(x, 2, 0))
	})

	t.Run("plateau reports middle", func(t *testing.T) {
		assert.Equal(t, []int{2}, FindPeaks([]float64{0, 2, 2, 2, 0}, 0, 0))
	})

	t.Run("edges are never peaks", func(t *testing.T) {
		assert.Empty(t, FindPeaks([]float64{5, 1, 0, 1, 5}, 0, 0))
	})
}

func TestDetectHeelStrikes(t *testing.T) {
	t.Parallel()

	const fs = 50.0
	theta := make([]float64, 250)
	for i := range theta {
		theta[i] = 15 - 20*math.Cos(2*math.Pi*float64(i)/fs)
	}

	assert.Equal(t, []int{50, 100, 150, 200}, DetectHeelStrikes(theta, DefaultProminence, DefaultMinGap))
	assert.Empty(t, DetectHeelStrikes(theta, 100, DefaultMinGap), "prominence above swing amplitude")
}

func TestSegment(t *testing.T) {
	t.Parallel()

	n := 60
	theta := make([]float64, n)
	ts := make([]float64, n)
	for i := range theta {
		theta[i] = float64(i)
		ts[i] = float64(i) / 50
	}

	cycles := Segment(theta, ts, []int{0, 3, 20, 40, 45, 51})
	require.Len(t, cycles, 3, "(0,3) and (40,45) span <= 5 samples")

	c := cycles[0]
	assert.Equal(t, 3, c.Start)
	assert.Equal(t, 20, c.End)
	assert.Equal(t, 17, c.Len())
	assert.Equal(t, 0, c.HeelStrikeIdx)
	assert.Equal(t, 8, c.ToeOffIdx)
	assert.Equal(t, 3.0, c.Theta[0])
	assert.InDelta(t, 19.0/50, c.EndTime(), 1e-12)

	assert.Equal(t, 45, cycles[2].Start)
	assert.Equal(t, 6, cycles[2].Len(), "span of exactly 6 is kept")

	c.Theta[0] = -1
	assert.Equal(t, 3.0, theta[3], "cycles own their samples")
}

func TestSegmentDetectsWhenStrikesNil(t *testing.T) {
	t.Parallel()

	const fs = 50.0
	theta := make([]float64, 250)
	ts := make([]float64, 250)
	for i := range theta {
		ts[i] = float64(i) / fs
		theta[i] = 15 - 20*math.Cos(2*math.Pi*ts[i])
	}

	cycles := Segment(theta, ts, nil)
	require.Len(t, cycles, 3)
	for _, c := range cycles {
		assert.Equal(t, 50, c.Len())
	}
}

func TestInterpAndResample(t *testing.T) {
	t.Parallel()

	xp := []float64{0, 1, 2}
	fp := []float64{0, 10, 0}
	assert.Equal(t, []float64{0, 0, 5, 10, 5, 0, 0}, Interp([]float64{-1, 0, 0.5, 1, 1.5, 2, 3}, xp, fp))

	r := Resample([]float64{0, 10}, 5)
	require.Len(t, r, 5)
	assert.InDeltaSlice(t, []float64{0, 2.5, 5, 7.5, 10}, r, 1e-12)

	assert.Equal(t, []float64{0}, Linspace(0, 1, 1))
	assert.Nil(t, Linspace(0, 1, 0))
}

func TestResampleByTime(t *testing.T) {
	t.Parallel()

	t.Run("uneven time axis", func(t *testing.T) {
		v := []float64{0, 1, 2}
		ts := []float64{0, 0.1, 1.0}
		r := ResampleByTime(v, ts, 3)
		assert.InDelta(t, 0.0, r[0], 1e-9)
		assert.InDelta(t, 1+(0.5-0.1)/0.9, r[1], 1e-6)
		assert.InDelta(t, 2.0, r[2], 1e-9)
	})

	t.Run("zero duration stays finite", func(t *testing.T) {
		r := ResampleByTime([]float64{3, 4, 5}, []float64{2, 2, 2}, 10)
		require.Len(t, r, 10)
		for _, v := range r {
			assert.False(t, math.IsNaN(v))
			assert.False(t, math.IsInf(v, 0))
		}
	})
}

func TestGradient(t *testing.T) {
	t.Parallel()

	x := []float64{0, 0.1, 0.3, 0.35, 1}
	y := make([]float64, len(x))
	for i := range x {
		y[i] = 3 * x[i]
	}
	assert.InDeltaSlice(t, []float64{3, 3, 3, 3, 3}, Gradient(y, x), 1e-9)

	ux := []float64{0, 1, 2, 3}
	uy := []float64{0, 1, 4, 9}
	g := Gradient(uy, ux)
	assert.InDelta(t, 2.0, g[1], 1e-12)
	assert.InDelta(t, 4.0, g[2], 1e-12)
	assert.InDelta(t, 1.0, g[0], 1e-12)
	assert.InDelta(t, 5.0, g[3], 1e-12)

	assert.Nil(t, Gradient([]float64{1}, []float64{0}))
}
