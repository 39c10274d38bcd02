package perch_arm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidateRequiresPort(t *testing.T) {
	cfg := &Config{}
	_, _, err := cfg.Validate("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestConfigValidateAppliesDefaults(t *testing.T) {
	cfg := &Config{Port: "/dev/ttyUSB0"}
	_, _, err := cfg.Validate("")
	require.NoError(t, err)

	assert.Equal(t, DefaultBaudrate, cfg.Baudrate)
	assert.Equal(t, 1, cfg.PanServoID)
	assert.Equal(t, 2, cfg.TiltServoID)
	assert.Equal(t, 3, cfg.GripperServoID)
	assert.Equal(t, "pan_motor", cfg.PanJoint)
	assert.Equal(t, "tilt_motor", cfg.TiltJoint)
	assert.Equal(t, "gripper_motor", cfg.GripperJoint)
	assert.Equal(t, defaultTolPan, cfg.TolPan)
	assert.Equal(t, defaultTolTilt, cfg.TolTilt)
	assert.Equal(t, defaultTolGripper, cfg.TolGripper)
	assert.Equal(t, DefaultGoalTimeout, cfg.GoalTimeout)
	assert.Equal(t, DefaultWatchdog, cfg.WatchdogTimeout)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
}

func TestConfigValidateKeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Port:            "/dev/ttyUSB1",
		Baudrate:        115200,
		PanServoID:      4,
		TiltServoID:     5,
		GripperServoID:  6,
		PanJoint:        "base",
		TolGripper:      2.5,
		GoalTimeout:     10 * time.Second,
		WatchdogTimeout: time.Second,
	}
	_, _, err := cfg.Validate("")
	require.NoError(t, err)

	assert.Equal(t, 115200, cfg.Baudrate)
	assert.Equal(t, 4, cfg.PanServoID)
	assert.Equal(t, "base", cfg.PanJoint)
	assert.Equal(t, "tilt_motor", cfg.TiltJoint)
	assert.Equal(t, 2.5, cfg.TolGripper)
	assert.Equal(t, 10*time.Second, cfg.GoalTimeout)
	assert.Equal(t, time.Second, cfg.WatchdogTimeout)
}

func TestConfigValidateRejectsBadServoIDs(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"duplicate IDs", Config{Port: "p", PanServoID: 7, TiltServoID: 7}},
		{"ID too low", Config{Port: "p", PanServoID: -1}},
		{"ID too high", Config{Port: "p", GripperServoID: 254}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := tc.cfg.Validate("")
			assert.Error(t, err)
		})
	}
}

func TestConfigValidateRejectsNegativeTolerance(t *testing.T) {
	cfg := &Config{Port: "p", TolTilt: -0.5}
	_, _, err := cfg.Validate("")
	assert.Error(t, err)
}
