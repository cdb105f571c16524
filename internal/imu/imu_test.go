package imu

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawScale(t *testing.T) {
	t.Parallel()

	r := Raw{Ax: 0, Ay: 0, Az: 16384, Gx: 0, Gy: 131 * 10, Gz: -131}
	s := r.Scale(1.5, 0, 0, nil)

	assert.Equal(t, 1.5, s.T)
	assert.InDelta(t, 1.0, s.Acc.Z, 1e-12)
	assert.InDelta(t, 10.0, s.Gyro.Y, 1e-12)
	assert.InDelta(t, -1.0, s.Gyro.Z, 1e-12)

	t.Run("range codes halve sensitivity", func(t *testing.T) {
		assert.Equal(t, 8192.0, AccelSensitivity(1))
		assert.Equal(t, 16.375, GyroSensitivity(3))
		assert.Equal(t, GyroSensitivity(3), GyroSensitivity(9))
	})

	t.Run("calibration bias removed", func(t *testing.T) {
		cal := &Calibration{GyroBias: Vec3{Y: 131}}
		s := Raw{Gy: 262}.Scale(0, 0, 0, cal)
		assert.InDelta(t, 1.0, s.Gyro.Y, 1e-12)
	})
}

func TestReadCSV(t *testing.T) {
	t.Parallel()

	in := strings.Join([]string{
		"t,ax,ay,az,gx,gy,gz",
		"# walking trial",
		"0.00,0,0,1,0,0,0",
		"0.02, -0.1, 0, 0.99, 0, 5, 0",
		"",
		"0.04,-0.2,0,0.98,0,10,0",
	}, "\n")

	samples, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 0.02, samples[1].T)
	assert.Equal(t, -0.1, samples[1].Acc.X)
	assert.Equal(t, 10.0, samples[2].Gyro.Y)
	assert.Equal(t, []float64{0, 0.02, 0.04}, Times(samples))
}

func TestReadCSVErrors(t *testing.T) {
	t.Parallel()

	t.Run("short record", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("0,1,2\n"))
		assert.ErrorIs(t, err, ErrShortRecord)
	})

	t.Run("bad number", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("0,x,0,1,0,0,0\n"))
		assert.Error(t, err)
	})

	t.Run("non monotonic", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("0.1,0,0,1,0,0,0\n0.1,0,0,1,0,0,0\n"))
		assert.Error(t, err)
	})
}

func TestWriteCSVRoundTrip(t *testing.T) {
	t.Parallel()

	in := []Sample{
		{T: 0, Acc: Vec3{Z: 1}},
		{T: 0.02, Acc: Vec3{X: -0.25, Z: 0.97}, Gyro: Vec3{Y: 12.5}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in))

	out, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCalibrationFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cal.json")

	cal, err := LoadCalibration(path)
	require.NoError(t, err)
	assert.Nil(t, cal, "missing file means uncalibrated")

	want := &Calibration{SchemaVersion: 1, GyroBias: Vec3{X: 1, Y: -2, Z: 3}, Confidence: 0.8}
	require.NoError(t, want.Save(path))

	got, err := LoadCalibration(path)
	require.NoError(t, err)
	assert.Equal(t, want.GyroBias, got.GyroBias)
	assert.Equal(t, 0.8, got.Confidence)
}
