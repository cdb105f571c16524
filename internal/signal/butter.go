// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package signal

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// DefaultOrder is the Butterworth order used by Smooth.
const DefaultOrder = 4

// Coeffs are IIR transfer function coefficients, A[0] == 1.
type Coeffs struct {
	B []float64
	A []float64
}

// Butterworth designs a digital low-pass Butterworth filter of the given
// order with its -3 dB point at cutoff Hz for a signal sampled at fs Hz.
//
// Design follows the analog prototype → frequency warp → bilinear transform
// route with the cutoff prewarped, normalised to unity gain at DC.
func Butterworth(order int, cutoff, fs float64) (Coeffs, error) {
	if order < 1 {
		return Coeffs{}, fmt.Errorf("butterworth: order must be >= 1, got %d", order)
	}
	if fs <= 0 {
		return Coeffs{}, fmt.Errorf("butterworth: sampling rate must be > 0, got %g", fs)
	}
	wn := cutoff / (fs / 2)
	if wn <= 0 || wn >= 1 {
		return Coeffs{}, fmt.Errorf("butterworth: cutoff %g Hz must lie in (0, %g) Hz", cutoff, fs/2)
	}

	// Bilinear transform is done at a normalised rate of 2 (Nyquist = 1).
	const fs2 = 4.0
	warped := fs2 * math.Tan(math.Pi*wn/2)

	zPoles := make([]complex128, order)
	den := complex(1, 0)
	for k := 0; k < order; k++ {
		m := float64(-order + 1 + 2*k)
		p := -cmplx.Exp(complex(0, math.Pi*m/float64(2*order))) * complex(warped, 0)
		zPoles[k] = (fs2 + p) / (fs2 - p)
		den *= fs2 - p
	}
	gain := math.Pow(warped, float64(order)) * real(1/den)

	zeros := make([]complex128, order)
	for i := range zeros {
		zeros[i] = -1
	}

	b := realPoly(zeros)
	for i := range b {
		b[i] *= gain
	}
	return Coeffs{B: b, A: realPoly(zPoles)}, nil
}

// realPoly expands prod(z - r) and returns the real parts of its
// coefficients, highest power first.
func realPoly(roots []complex128) []float64 {
	c := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(c)+1)
		for i, v := range c {
			next[i] += v
			next[i+1] -= v * r
		}
		c = next
	}
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = real(v)
	}
	return out
}

// normalized returns b and a of equal length scaled so that a[0] == 1.
func (c Coeffs) normalized() (b, a []float64) {
	n := len(c.A)
	if len(c.B) > n {
		n = len(c.B)
	}
	b = make([]float64, n)
	a = make([]float64, n)
	copy(b, c.B)
	copy(a, c.A)
	a0 := a[0]
	for i := range a {
		a[i] /= a0
		b[i] /= a0
	}
	return b, a
}

// SteadyState returns the initial conditions of the direct-form-II
// transposed state that correspond to a unit step having been applied
// forever.
func (c Coeffs) SteadyState() ([]float64, error) {
	b, a := c.normalized()
	m := len(a) - 1
	if m < 1 {
		return nil, nil
	}

	// (I - companion(a)^T) zi = b[1:] - a[1:]*b[0]
	iMinusA := mat.NewDense(m, m, nil)
	for i := 0; i < m; i++ {
		iMinusA.Set(i, i, 1)
		iMinusA.Set(i, 0, iMinusA.At(i, 0)+a[i+1])
		if i > 0 {
			iMinusA.Set(i-1, i, iMinusA.At(i-1, i)-1)
		}
	}
	rhs := mat.NewVecDense(m, nil)
	for i := 0; i < m; i++ {
		rhs.SetVec(i, b[i+1]-a[i+1]*b[0])
	}

	var zi mat.VecDense
	if err := zi.SolveVec(iMinusA, rhs); err != nil {
		return nil, fmt.Errorf("steady state: %w", err)
	}
	return mat.Col(nil, 0, &zi), nil
}

// lfilter runs a direct-form-II transposed pass over x starting from state
// zi (len(a)-1 values, may be nil for a zero state).
func lfilter(b, a, x, zi []float64) []float64 {
	n := len(a)
	z := make([]float64, n-1)
	copy(z, zi)

	y := make([]float64, len(x))
	for i, xi := range x {
		yi := b[0]*xi + z[0]
		for j := 1; j < n-1; j++ {
			z[j-1] = b[j]*xi + z[j] - a[j]*yi
		}
		z[n-2] = b[n-1]*xi - a[n-1]*yi
		y[i] = yi
	}
	return y
}

func scaled(v []float64, k float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = v[i] * k
	}
	return out
}

// Filter runs the filter causally over x. The state is initialised to the
// steady state of x[0] so a constant input passes through without a
// start-up transient.
func (c Coeffs) Filter(x []float64) ([]float64, error) {
	if len(x) == 0 {
		return nil, nil
	}
	zi, err := c.SteadyState()
	if err != nil {
		return nil, err
	}
	b, a := c.normalized()
	return lfilter(b, a, x, scaled(zi, x[0])), nil
}

// FiltFilt applies the filter forward and backward for zero phase
// distortion, with odd extension at both ends. It needs the whole
// sequence in memory. Sequences shorter than the default pad length of
// 3*len(a) are padded with len(x)-1 samples instead.
func (c Coeffs) FiltFilt(x []float64) ([]float64, error) {
	n := len(x)
	if n < 2 {
		return append([]float64(nil), x...), nil
	}
	b, a := c.normalized()
	zi, err := c.SteadyState()
	if err != nil {
		return nil, err
	}

	edge := 3 * len(a)
	if edge > n-1 {
		edge = n - 1
	}

	ext := make([]float64, 0, n+2*edge)
	for i := edge; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := n - 2; i >= n-1-edge; i-- {
		ext = append(ext, 2*x[n-1]-x[i])
	}

	y := lfilter(b, a, ext, scaled(zi, ext[0]))
	reverse(y)
	y = lfilter(b, a, y, scaled(zi, y[0]))
	reverse(y)

	out := make([]float64, n)
	copy(out, y[edge:edge+n])
	return out, nil
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}

// Smooth is a zero-phase order-4 Butterworth low-pass of a fully buffered
// signal. It is non-causal.
func Smooth(x []float64, cutoff, fs float64) ([]float64, error) {
	return SmoothOrder(x, cutoff, fs, DefaultOrder)
}

// SmoothOrder is Smooth with an explicit filter order.
func SmoothOrder(x []float64, cutoff, fs float64, order int) ([]float64, error) {
	c, err := Butterworth(order, cutoff, fs)
	if err != nil {
		return nil, err
	}
	return c.FiltFilt(x)
}

// Stream is a causal, sample-at-a-time instance of a filter. It is the
// real-time substitute for Smooth.
type Stream struct {
	b, a  []float64
	zi    []float64
	z     []float64
	ready bool
}

// NewStream prepares a streaming filter.
func NewStream(c Coeffs) (*Stream, error) {
	zi, err := c.SteadyState()
	if err != nil {
		return nil, err
	}
	b, a := c.normalized()
	return &Stream{b: b, a: a, zi: zi, z: make([]float64, len(a)-1)}, nil
}

// Step filters one sample. The first sample primes the state to its own
// steady state.
func (s *Stream) Step(x float64) float64 {
	if !s.ready {
		for i := range s.z {
			s.z[i] = s.zi[i] * x
		}
		s.ready = true
	}
	n := len(s.a)
	y := s.b[0]*x + s.z[0]
	for j := 1; j < n-1; j++ {
		s.z[j-1] = s.b[j]*x + s.z[j] - s.a[j]*y
	}
	s.z[n-2] = s.b[n-1]*x - s.a[n-1]*y
	return y
}

// Reset clears the filter state.
func (s *Stream) Reset() {
	s.ready = false
	for i := range s.z {
		s.z[i] = 0
	}
}
