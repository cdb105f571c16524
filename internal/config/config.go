// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/relabs-tech/gait_feedback/internal/export"
	"github.com/relabs-tech/gait_feedback/internal/gaitdb"
	"github.com/relabs-tech/gait_feedback/internal/logging"
	"github.com/relabs-tech/gait_feedback/internal/orientation"
	"github.com/relabs-tech/gait_feedback/internal/pipeline"
	"github.com/relabs-tech/gait_feedback/internal/template"
	"github.com/relabs-tech/gait_feedback/internal/vibro"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDFeedback string
	MQTTClientIDWeb      string
	MQTTClientIDConsole  string

	// Topics
	TopicIMU       string
	TopicAngle     string
	TopicActuation string
	TopicCycle     string

	// IMU hardware
	IMUSPIDevice string
	IMUCSPin     string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange      byte
	IMUSampleInterval int // milliseconds
	IMUMock           bool
	CalibrationPath   string

	// Phase-adaptive filter
	SamplingRate    float64
	StanceAlpha     float64
	SwingAlpha      float64
	TransitionAlpha float64
	VarWindowS      float64
	AccVarThreshold float64
	LPCutoffHz      float64
	LPOrder         int

	// Segmentation
	HSProminence float64
	HSMinGap     int

	// Gait database
	ResamplePoints int
	DecayRate      float64

	// Template fusion
	PatientWeightStart    float64
	PatientWeightMin      float64
	ReliabilityMid        float64
	NormativeTemplatePath string

	// Feedback
	FeedbackMode     vibro.Mode
	VibroFreqHz      float64
	VibroAmplitude   float64
	VibroChannels    []int
	TriggerAngleDeg  float64
	TriggerSlopeDegS float64
	PulseDurationS   float64
	RefractoryS      float64
	ConstDurationS   float64

	// Actuator link
	ActuatorSerialPort string
	ActuatorBaudRate   int

	// Persistence and reporting
	DBPath       string
	PatientID    string
	ExportDir    string
	ExportFormat export.Format

	// Web server
	WebServerPort int

	// Logging
	LogLevel  string
	LogFormat string
}

// ErrUnknownKey is returned for a key the configuration does not define.
var ErrUnknownKey = errors.New("unknown config key")

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a configuration usable without a file: mock IMU, local
// broker, default algorithm parameters.
func Default() *Config {
	fp := orientation.DefaultParams()
	dp := gaitdb.DefaultParams()
	tp := template.DefaultParams()
	vp := vibro.DefaultParams()
	return &Config{
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDProducer: "gait-imu-producer",
		MQTTClientIDFeedback: "gait-feedback",
		MQTTClientIDWeb:      "gait-web",
		MQTTClientIDConsole:  "gait-console",

		TopicIMU:       "gait/imu",
		TopicAngle:     "gait/angle",
		TopicActuation: "gait/actuation",
		TopicCycle:     "gait/cycle",

		IMUSPIDevice:      "/dev/spidev0.0",
		IMUCSPin:          "GPIO8",
		IMUAccelRange:     1,
		IMUGyroRange:      2,
		IMUSampleInterval: 20,
		IMUMock:           true,

		SamplingRate:    fp.SampleRate,
		StanceAlpha:     fp.StanceAlpha,
		SwingAlpha:      fp.SwingAlpha,
		TransitionAlpha: fp.TransitionAlpha,
		VarWindowS:      fp.VarWindow,
		AccVarThreshold: fp.AccVarThreshold,
		LPCutoffHz:      fp.LPCutoff,
		LPOrder:         fp.LPOrder,

		HSProminence: pipeline.DefaultConfig().HeelStrikeProminence,
		HSMinGap:     pipeline.DefaultConfig().HeelStrikeMinGap,

		ResamplePoints: dp.ResamplePoints,
		DecayRate:      dp.DecayRate,

		PatientWeightStart: tp.StartWeight,
		PatientWeightMin:   tp.MinWeight,
		ReliabilityMid:     tp.ReliabilityMid,

		FeedbackMode:     vibro.ModeSpaVib,
		VibroFreqHz:      vp.FreqHz,
		VibroAmplitude:   vp.Amplitude,
		VibroChannels:    vp.Channels,
		TriggerAngleDeg:  vp.TriggerAngle,
		TriggerSlopeDegS: vp.TriggerSlope,
		PulseDurationS:   vp.PulseDuration,
		RefractoryS:      vp.Refractory,
		ConstDurationS:   vp.ConstDuration,

		ActuatorBaudRate: 115200,

		DBPath:       "gait.db",
		ExportDir:    "out",
		ExportFormat: export.FormatParquet,

		WebServerPort: 8080,

		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load reads a KEY=VALUE file on top of Default.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of Default. Blank lines and lines
// starting with '#' are ignored; unknown keys are errors.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}
		if err := cfg.setValue(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseFloat(key, value string, dst *float64) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func parseInt(key, value string, dst *int) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func parseRange(key, value, legend string, dst *byte) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < 0 || v > 3 {
		return fmt.Errorf("%s must be 0-3 (%s), got %d", key, legend, v)
	}
	*dst = byte(v)
	return nil
}

// parseChannels reads a comma-separated channel list such as "1,2,3,4".
func parseChannels(value string) ([]int, error) {
	var chs []int
	for _, f := range strings.Split(value, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		ch, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid VIBRO_CHANNELS entry %q: %w", f, err)
		}
		chs = append(chs, ch)
	}
	return chs, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_FEEDBACK":
		c.MQTTClientIDFeedback = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_IMU":
		c.TopicIMU = value
	case "TOPIC_ANGLE":
		c.TopicAngle = value
	case "TOPIC_ACTUATION":
		c.TopicActuation = value
	case "TOPIC_CYCLE":
		c.TopicCycle = value

	// IMU hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		return parseRange(key, value, "0=±2g, 1=±4g, 2=±8g, 3=±16g", &c.IMUAccelRange)
	case "IMU_GYRO_RANGE":
		return parseRange(key, value, "0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s", &c.IMUGyroRange)
	case "IMU_SAMPLE_INTERVAL":
		return parseInt(key, value, &c.IMUSampleInterval)
	case "IMU_MOCK":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_MOCK %q: %w", value, err)
		}
		c.IMUMock = v
	case "CALIBRATION_PATH":
		c.CalibrationPath = value

	// Phase-adaptive filter
	case "SAMPLING_RATE":
		return parseFloat(key, value, &c.SamplingRate)
	case "STANCE_ALPHA":
		return parseFloat(key, value, &c.StanceAlpha)
	case "SWING_ALPHA":
		return parseFloat(key, value, &c.SwingAlpha)
	case "TRANSITION_ALPHA":
		return parseFloat(key, value, &c.TransitionAlpha)
	case "VAR_WINDOW_S":
		return parseFloat(key, value, &c.VarWindowS)
	case "ACC_VAR_THRESHOLD":
		return parseFloat(key, value, &c.AccVarThreshold)
	case "LP_CUTOFF_HZ":
		return parseFloat(key, value, &c.LPCutoffHz)
	case "LP_ORDER":
		return parseInt(key, value, &c.LPOrder)

	// Segmentation
	case "HS_PROMINENCE":
		return parseFloat(key, value, &c.HSProminence)
	case "HS_MIN_GAP":
		return parseInt(key, value, &c.HSMinGap)

	// Gait database
	case "RESAMPLE_POINTS":
		return parseInt(key, value, &c.ResamplePoints)
	case "DECAY_RATE":
		return parseFloat(key, value, &c.DecayRate)

	// Template fusion
	case "PATIENT_WEIGHT_START":
		return parseFloat(key, value, &c.PatientWeightStart)
	case "PATIENT_WEIGHT_MIN":
		return parseFloat(key, value, &c.PatientWeightMin)
	case "RELIABILITY_MID":
		return parseFloat(key, value, &c.ReliabilityMid)
	case "NORMATIVE_TEMPLATE_PATH":
		c.NormativeTemplatePath = value

	// Feedback
	case "FEEDBACK_MODE":
		m, err := vibro.ParseMode(value)
		if err != nil {
			return err
		}
		c.FeedbackMode = m
	case "VIBRO_FREQ_HZ":
		return parseFloat(key, value, &c.VibroFreqHz)
	case "VIBRO_AMPLITUDE":
		return parseFloat(key, value, &c.VibroAmplitude)
	case "VIBRO_CHANNELS":
		chs, err := parseChannels(value)
		if err != nil {
			return err
		}
		c.VibroChannels = chs
	case "TRIGGER_ANGLE_DEG":
		return parseFloat(key, value, &c.TriggerAngleDeg)
	case "TRIGGER_SLOPE_DEG_S":
		return parseFloat(key, value, &c.TriggerSlopeDegS)
	case "PULSE_DURATION_S":
		return parseFloat(key, value, &c.PulseDurationS)
	case "REFRACTORY_S":
		return parseFloat(key, value, &c.RefractoryS)
	case "CONST_DURATION_S":
		return parseFloat(key, value, &c.ConstDurationS)

	// Actuator link
	case "ACTUATOR_SERIAL_PORT":
		c.ActuatorSerialPort = value
	case "ACTUATOR_BAUD_RATE":
		return parseInt(key, value, &c.ActuatorBaudRate)

	// Persistence and reporting
	case "DB_PATH":
		c.DBPath = value
	case "PATIENT_ID":
		c.PatientID = value
	case "EXPORT_DIR":
		c.ExportDir = value
	case "EXPORT_FORMAT":
		f, err := export.ParseFormat(value)
		if err != nil {
			return err
		}
		c.ExportFormat = f

	// Web server
	case "WEB_SERVER_PORT":
		return parseInt(key, value, &c.WebServerPort)

	// Logging
	case "LOG_LEVEL":
		if _, err := logging.ParseLevel(value); err != nil {
			return err
		}
		c.LogLevel = value
	case "LOG_FORMAT":
		if err := logging.CheckFormat(value); err != nil {
			return err
		}
		c.LogFormat = value

	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	return nil
}

// validate checks required fields and every stage's parameters.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.IMUSampleInterval <= 0 {
		return fmt.Errorf("IMU_SAMPLE_INTERVAL must be > 0, got %d", c.IMUSampleInterval)
	}
	if !c.IMUMock && c.IMUSPIDevice == "" {
		return fmt.Errorf("IMU_SPI_DEVICE is required unless IMU_MOCK=true")
	}
	if c.HSMinGap < 1 {
		return fmt.Errorf("HS_MIN_GAP must be >= 1, got %d", c.HSMinGap)
	}
	if err := c.FilterParams().Validate(); err != nil {
		return err
	}
	if err := c.DatabaseParams().Validate(); err != nil {
		return err
	}
	if err := c.FusionParams().Validate(); err != nil {
		return err
	}
	if err := c.VibroParams().Validate(); err != nil {
		return fmt.Errorf("feedback: %w", err)
	}
	return nil
}

// FilterParams returns the phase-adaptive filter parameters.
func (c *Config) FilterParams() orientation.Params {
	return orientation.Params{
		SampleRate:      c.SamplingRate,
		StanceAlpha:     c.StanceAlpha,
		SwingAlpha:      c.SwingAlpha,
		TransitionAlpha: c.TransitionAlpha,
		VarWindow:       c.VarWindowS,
		AccVarThreshold: c.AccVarThreshold,
		LPCutoff:        c.LPCutoffHz,
		LPOrder:         c.LPOrder,
	}
}

func (c *Config) DatabaseParams() gaitdb.Params {
	return gaitdb.Params{ResamplePoints: c.ResamplePoints, DecayRate: c.DecayRate}
}

func (c *Config) FusionParams() template.Params {
	return template.Params{
		StartWeight:    c.PatientWeightStart,
		MinWeight:      c.PatientWeightMin,
		ReliabilityMid: c.ReliabilityMid,
	}
}

func (c *Config) VibroParams() vibro.Params {
	return vibro.Params{
		FreqHz:        c.VibroFreqHz,
		Amplitude:     c.VibroAmplitude,
		TriggerAngle:  c.TriggerAngleDeg,
		TriggerSlope:  c.TriggerSlopeDegS,
		PulseDuration: c.PulseDurationS,
		Refractory:    c.RefractoryS,
		Channels:      append([]int(nil), c.VibroChannels...),
		ConstDuration: c.ConstDurationS,
	}
}

// PipelineConfig assembles the session configuration, loading the
// normative template from NORMATIVE_TEMPLATE_PATH when set.
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	normative, err := template.LoadNormativeFile(c.NormativeTemplatePath, c.ResamplePoints)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Filter:               c.FilterParams(),
		Database:             c.DatabaseParams(),
		Fusion:               c.FusionParams(),
		Vibro:                c.VibroParams(),
		Mode:                 c.FeedbackMode,
		Normative:            normative,
		HeelStrikeProminence: c.HSProminence,
		HeelStrikeMinGap:     c.HSMinGap,
	}, nil
}

// InitGlobal loads the global configuration. Only the first call does any
// work; later calls return nil.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration, nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
