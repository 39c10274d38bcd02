package perch_arm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

func registryTestConfig(t *testing.T, port string) *Config {
	t.Helper()
	cfg := &Config{Port: port, Logger: logging.NewTestLogger(t)}
	_, _, err := cfg.Validate("")
	require.NoError(t, err)
	return cfg
}

func TestRegistryStartsEmpty(t *testing.T) {
	r := NewArmRegistry()
	require.NotNil(t, r)
	assert.Equal(t, 0, r.Users("/dev/ttyUSB0"))
}

func TestRegistryCachesCreationError(t *testing.T) {
	r := NewArmRegistry()
	cfg := registryTestConfig(t, "/nonexistent/serial/port")

	_, err := r.GetArm(cfg)
	require.Error(t, err)
	assert.Equal(t, 0, r.Users(cfg.Port))

	// A second attempt reports the original failure without reopening.
	_, err = r.GetArm(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cached arm creation error")
}

func TestRegistryReleaseUnknownPort(t *testing.T) {
	r := NewArmRegistry()
	r.Release("/dev/never-opened")
	assert.Equal(t, 0, r.Users("/dev/never-opened"))
}

func TestConfigsCompatible(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:            "/dev/ttyUSB0",
			Baudrate:        DefaultBaudrate,
			PanServoID:      1,
			TiltServoID:     2,
			GripperServoID:  3,
			PanJoint:        "pan_motor",
			TiltJoint:       "tilt_motor",
			GripperJoint:    "gripper_motor",
			GoalTimeout:     DefaultGoalTimeout,
			WatchdogTimeout: DefaultWatchdog,
			PollInterval:    DefaultPollInterval,
		}
	}

	assert.True(t, configsCompatible(base(), base()))
	assert.True(t, configsCompatible(nil, nil))
	assert.False(t, configsCompatible(base(), nil))

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"baudrate", func(c *Config) { c.Baudrate = 115200 }},
		{"servo ID", func(c *Config) { c.TiltServoID = 9 }},
		{"joint name", func(c *Config) { c.GripperJoint = "claw" }},
		{"goal timeout", func(c *Config) { c.GoalTimeout = time.Second }},
		{"watchdog", func(c *Config) { c.WatchdogTimeout = time.Second }},
		{"poll interval", func(c *Config) { c.PollInterval = time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			other := base()
			tc.mutate(other)
			assert.False(t, configsCompatible(base(), other))
		})
	}

	// Tolerances are mutable at runtime, so they do not affect sharing.
	tolerant := base()
	tolerant.TolPan = 3
	assert.True(t, configsCompatible(base(), tolerant))
}

func TestRegistrySharingRequiresHardware(t *testing.T) {
	t.Skip("requires a connected serial bus")

	r := NewArmRegistry()
	cfg := registryTestConfig(t, "/dev/ttyUSB0")

	first, err := r.GetArm(cfg)
	require.NoError(t, err)
	second, err := r.GetArm(cfg)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 2, r.Users(cfg.Port))

	r.Release(cfg.Port)
	assert.Equal(t, 1, r.Users(cfg.Port))
	r.Release(cfg.Port)
	assert.Equal(t, 0, r.Users(cfg.Port))
}
