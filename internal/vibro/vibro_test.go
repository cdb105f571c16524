package vibro

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fs = 50.0

// strides returns k strides of 1 s: a 100°/s rise from 0 to 30° over the
// first 0.3 s, then a slow return to 0.
func strides(k int) (theta, t []float64) {
	n := k * int(fs)
	theta = make([]float64, n)
	t = make([]float64, n)
	for i := range theta {
		t[i] = float64(i) / fs
		tau := float64(i%int(fs)) / fs
		if tau <= 0.3 {
			theta[i] = 100 * tau
		} else {
			theta[i] = 30 - 30*(tau-0.3)/0.7
		}
	}
	return theta, t
}

func newController(t *testing.T) *Controller {
	t.Helper()
	c, err := NewController(DefaultParams())
	require.NoError(t, err)
	return c
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode("SpaVib")
	require.NoError(t, err)
	assert.Equal(t, ModeSpaVib, m)

	m, err = ParseMode("Const")
	require.NoError(t, err)
	assert.Equal(t, ModeConst, m)

	_, err = ParseMode("spavib")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestNewCommandInvariants(t *testing.T) {
	t.Parallel()

	_, err := NewCommand(0, 1, nil, 1, 40, ModeSpaVib)
	assert.ErrorIs(t, err, ErrEmptyChannels)

	_, err = NewCommand(1, 0.5, []int{1}, 1, 40, ModeSpaVib)
	assert.Error(t, err)

	_, err = NewCommand(0, 1, []int{1}, 1.5, 40, ModeSpaVib)
	assert.Error(t, err)

	_, err = NewCommand(0, 1, []int{17}, 1, 40, ModeSpaVib)
	assert.Error(t, err)

	chs := []int{2, 3}
	c, err := NewCommand(0, 0, chs, 0.5, 20, ModeConst)
	require.NoError(t, err)
	chs[0] = 9
	assert.Equal(t, []int{2, 3}, c.Channels)
	assert.Equal(t, 0.0, c.Duration())
}

func TestGenerateSpaVibOnePulsePerRise(t *testing.T) {
	t.Parallel()
	c := newController(t)
	theta, ts := strides(3)

	cmds := c.Generate(theta, ts, ModeSpaVib)
	require.Len(t, cmds, 3)
	for k, cmd := range cmds {
		assert.InDelta(t, float64(k)+0.16, cmd.Start, 1e-9)
		assert.InDelta(t, 0.2, cmd.Duration(), 1e-9)
		assert.Equal(t, []int{1, 2, 3, 4}, cmd.Channels)
		assert.Equal(t, 40.0, cmd.Frequency)
		assert.Equal(t, 1.0, cmd.Amplitude)
		assert.Equal(t, ModeSpaVib, cmd.Mode)
	}
}

func TestGenerateRespectsRefractory(t *testing.T) {
	t.Parallel()
	c := newController(t)

	// Every sample qualifies: 20° and rising at 100°/s.
	n := 200
	theta := make([]float64, n)
	ts := make([]float64, n)
	for i := range theta {
		ts[i] = float64(i) / fs
		theta[i] = 20 + 100*ts[i]
	}

	cmds := c.Generate(theta, ts, ModeSpaVib)
	require.NotEmpty(t, cmds)
	assert.InDelta(t, 0.02, cmds[0].Start, 1e-12, "the first sample is never evaluated")
	for i := 1; i < len(cmds); i++ {
		assert.GreaterOrEqual(t, cmds[i].Start-cmds[i-1].Start, c.Params().Refractory-1e-9)
	}
}

func TestGenerateConst(t *testing.T) {
	t.Parallel()
	c := newController(t)
	theta, ts := strides(2)

	cmds := c.Generate(theta, ts, ModeConst)
	require.Len(t, cmds, 1)
	assert.Equal(t, ts[0], cmds[0].Start)
	assert.Equal(t, ts[len(ts)-1], cmds[0].End)
	assert.Equal(t, ModeConst, cmds[0].Mode)
}

func TestGenerateUnknownModeAndShortInput(t *testing.T) {
	t.Parallel()
	c := newController(t)
	theta, ts := strides(2)

	assert.Empty(t, c.Generate(theta, ts, Mode("Pulse")))
	assert.Empty(t, c.Generate([]float64{20}, []float64{0}, ModeSpaVib))
	assert.Empty(t, c.Generate(nil, nil, ModeConst))
}

func TestTriggerMatchesBatchOnStrides(t *testing.T) {
	t.Parallel()
	c := newController(t)
	theta, ts := strides(4)

	tr := c.NewTrigger(ModeSpaVib)
	var live []Command
	for i := range theta {
		if cmd, ok := tr.Step(theta[i], ts[i]); ok {
			live = append(live, cmd)
		}
	}
	batch := c.Generate(theta, ts, ModeSpaVib)
	require.Len(t, live, len(batch))
	for i := range live {
		assert.InDelta(t, batch[i].Start, live[i].Start, 1e-12)
	}

	tr.Reset()
	_, ok := tr.Step(25, 100)
	assert.False(t, ok, "first sample after reset has no slope")
}

func TestTriggerConstAndUnknown(t *testing.T) {
	t.Parallel()
	p := DefaultParams()
	p.ConstDuration = 5
	c, err := NewController(p)
	require.NoError(t, err)

	tr := c.NewTrigger(ModeConst)
	cmd, ok := tr.Step(0, 2)
	require.True(t, ok)
	assert.Equal(t, 2.0, cmd.Start)
	assert.Equal(t, 7.0, cmd.End)
	_, ok = tr.Step(20, 2.02)
	assert.False(t, ok)

	tr = c.NewTrigger(Mode("other"))
	theta, ts := strides(2)
	for i := range theta {
		_, ok := tr.Step(theta[i], ts[i])
		assert.False(t, ok)
	}
}

func TestToPacketsMask(t *testing.T) {
	t.Parallel()

	cmds := []Command{
		{Start: 1, End: 1.2, Channels: []int{1, 2, 3, 4}, Amplitude: 1, Frequency: 40, Mode: ModeSpaVib},
		{Start: 2, End: 2.2, Channels: []int{16, 1}, Amplitude: 0.5, Frequency: 20, Mode: ModeConst},
	}
	pkts := ToPackets(cmds)
	require.Len(t, pkts, 2)
	assert.Equal(t, uint16(0x000F), pkts[0].ChannelMask)
	assert.Equal(t, uint16(0x8001), pkts[1].ChannelMask)
	assert.Equal(t, []int{1, 16}, pkts[1].Channels())
	assert.Equal(t, 2.0, pkts[1].TStart)
	assert.Equal(t, ModeConst, pkts[1].Mode)

	b, err := json.Marshal(pkts[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"t_start":1,"t_end":1.2,"channel_mask":15,"amplitude":1,"frequency":40,"mode":"SpaVib"}`, string(b))
}

func TestPacketBinaryFrame(t *testing.T) {
	t.Parallel()

	p := Packet{TStart: 12.34, TEnd: 12.54, ChannelMask: 0x000F, Amplitude: 0.75, Frequency: 40, Mode: ModeSpaVib}
	frame, err := p.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, frame, PacketSize)
	assert.Equal(t, []byte{0xA5, 0x5A, 1, 0x0F, 0x00}, frame[:5])

	var got Packet
	require.NoError(t, got.UnmarshalBinary(frame))
	assert.Equal(t, p, got)

	t.Run("corrupt checksum", func(t *testing.T) {
		bad := append([]byte(nil), frame...)
		bad[10] ^= 0xFF
		assert.ErrorIs(t, new(Packet).UnmarshalBinary(bad), ErrBadFrame)
	})
	t.Run("short frame", func(t *testing.T) {
		assert.ErrorIs(t, new(Packet).UnmarshalBinary(frame[:20]), ErrBadFrame)
	})
	t.Run("unknown mode", func(t *testing.T) {
		_, err := Packet{ChannelMask: 1, Mode: "x"}.MarshalBinary()
		assert.ErrorIs(t, err, ErrUnknownMode)
	})
	t.Run("empty mask", func(t *testing.T) {
		_, err := Packet{Mode: ModeConst}.MarshalBinary()
		assert.ErrorIs(t, err, ErrEmptyChannels)
	})
}
