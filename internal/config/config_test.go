package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gait_feedback/internal/export"
	"github.com/relabs-tech/gait_feedback/internal/vibro"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	require.NoError(t, Default().validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(strings.NewReader(`
# broker
MQTT_BROKER = tcp://pi.local:1883
TOPIC_ANGLE=rehab/angle
IMU_MOCK=false
IMU_GYRO_RANGE=3
SAMPLING_RATE=100
VAR_WINDOW_S=0.3
FEEDBACK_MODE=Const
VIBRO_CHANNELS=1, 3,5
EXPORT_FORMAT=csv
HS_MIN_GAP=60
LOG_LEVEL=debug
`))
	require.NoError(t, err)

	assert.Equal(t, "tcp://pi.local:1883", cfg.MQTTBroker)
	assert.Equal(t, "rehab/angle", cfg.TopicAngle)
	assert.Equal(t, "gait/imu", cfg.TopicIMU, "unset keys keep defaults")
	assert.False(t, cfg.IMUMock)
	assert.Equal(t, byte(3), cfg.IMUGyroRange)
	assert.Equal(t, vibro.ModeConst, cfg.FeedbackMode)
	assert.Equal(t, []int{1, 3, 5}, cfg.VibroChannels)
	assert.Equal(t, export.FormatCSV, cfg.ExportFormat)

	fp := cfg.FilterParams()
	assert.Equal(t, 100.0, fp.SampleRate)
	assert.Equal(t, 30, fp.WindowSize())

	pc, err := cfg.PipelineConfig()
	require.NoError(t, err)
	assert.Equal(t, 60, pc.HeelStrikeMinGap)
	assert.Len(t, pc.Normative, 100)
	assert.Equal(t, []int{1, 3, 5}, pc.Vibro.Channels)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown key":       "NOPE=1",
		"missing equals":    "MQTT_BROKER",
		"bad float":         "SAMPLING_RATE=fast",
		"range out of band": "IMU_ACCEL_RANGE=4",
		"bad mode":          "FEEDBACK_MODE=Buzz",
		"bad channel":       "VIBRO_CHANNELS=1,x",
		"channel too high":  "VIBRO_CHANNELS=1,17",
		"zero rate":         "SAMPLING_RATE=0",
		"empty broker":      "MQTT_BROKER=",
		"inverted weights":  "PATIENT_WEIGHT_MIN=0.95",
		"bad log level":     "LOG_LEVEL=loud",
		"bad log format":    "LOG_FORMAT=xml",
		"zero decay":        "DECAY_RATE=0",
		"hardware no spi":   "IMU_MOCK=false\nIMU_SPI_DEVICE=",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(body))
			assert.Error(t, err)
		})
	}
}

func TestParseUnknownKeyIsSentinel(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader("LOG_COLOR=red"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.Contains(t, err.Error(), "LOG_COLOR")

	_, err = Parse(strings.NewReader("LOG_FORMAT=json"))
	assert.NoError(t, err)
}

func TestLoadAndPipelineNormativeFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	normPath := filepath.Join(dir, "normative.csv")
	require.NoError(t, os.WriteFile(normPath, []byte("angle\n1\n2\n3\n"), 0o644))
	cfgPath := filepath.Join(dir, "gait_config.txt")
	require.NoError(t, os.WriteFile(cfgPath, []byte("NORMATIVE_TEMPLATE_PATH="+normPath+"\n"), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	pc, err := cfg.PipelineConfig()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, pc.Normative)

	_, err = Load(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}
