package perch_arm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testJointConfig() *Config {
	return &Config{
		PanJoint:     "pan_motor",
		TiltJoint:    "tilt_motor",
		GripperJoint: "gripper_motor",
		TolPan:       1.0,
		TolTilt:      1.0,
		TolGripper:   5.0,
	}
}

func TestNewJointRegistry(t *testing.T) {
	t.Run("builds all three joints", func(t *testing.T) {
		r, err := newJointRegistry(testJointConfig())
		assert.NoError(t, err)

		for _, jt := range []JointType{JointPan, JointTilt, JointGripper} {
			j := r.Joint(jt)
			assert.NotNil(t, j)
			assert.NotZero(t, j.Scale)
		}

		jt, ok := r.ByName("tilt_motor")
		assert.True(t, ok)
		assert.Equal(t, JointTilt, jt)

		_, ok = r.ByName("elbow_motor")
		assert.False(t, ok)
	})

	t.Run("rejects missing joint name", func(t *testing.T) {
		cfg := testJointConfig()
		cfg.TiltJoint = ""
		_, err := newJointRegistry(cfg)
		assert.Error(t, err)
	})
}

func TestUnitConversion(t *testing.T) {
	r, err := newJointRegistry(testJointConfig())
	assert.NoError(t, err)

	t.Run("pan and tilt convert radians to degrees with offset", func(t *testing.T) {
		assert.InDelta(t, 0.0, r.ToHuman(JointPan, 0), 1e-9)
		assert.InDelta(t, 90.0, r.ToHuman(JointPan, math.Pi/2), 1e-9)
		assert.InDelta(t, 90.0, r.ToHuman(JointTilt, 0), 1e-9)
		assert.InDelta(t, 180.0, r.ToHuman(JointTilt, math.Pi/2), 1e-9)
	})

	t.Run("gripper converts percent travel to opening", func(t *testing.T) {
		assert.InDelta(t, gripperClose, r.ToHuman(JointGripper, 0), 1e-9)
		assert.InDelta(t, gripperOpen, r.ToHuman(JointGripper, 100), 1e-9)
	})

	t.Run("gripper sentinel bypasses conversion", func(t *testing.T) {
		assert.Equal(t, gripperCal, r.ToHuman(JointGripper, gripperCal))
	})

	t.Run("ToDriver inverts ToHuman", func(t *testing.T) {
		for _, jt := range []JointType{JointPan, JointTilt, JointGripper} {
			for _, v := range []float64{-0.5, 0, 0.25, 1.5} {
				assert.InDelta(t, v, r.ToDriver(jt, r.ToHuman(jt, v)), 1e-9, jt.String())
			}
		}
	})
}

func TestAtTargetWraparound(t *testing.T) {
	r, err := newJointRegistry(testJointConfig())
	assert.NoError(t, err)
	pan := r.Joint(JointPan)
	pan.Tolerance = 3.0

	t.Run("wraps across 180", func(t *testing.T) {
		pan.Value = 179
		assert.True(t, r.AtTarget(JointPan, -179))
	})

	t.Run("symmetric in value and target", func(t *testing.T) {
		pan.Value = -179
		assert.True(t, r.AtTarget(JointPan, 179))
	})

	t.Run("plain closeness", func(t *testing.T) {
		pan.Value = 10
		assert.True(t, r.AtTarget(JointPan, 12))
		assert.False(t, r.AtTarget(JointPan, 14))
	})

	t.Run("exact tolerance is not at target", func(t *testing.T) {
		pan.Value = 0
		assert.False(t, r.AtTarget(JointPan, 3))
	})
}

func TestAngularDistance(t *testing.T) {
	cases := []struct {
		a, b, want float64
	}{
		{0, 0, 0},
		{359, 1, 2},
		{179, -179, 2},
		{90, -90, 180},
		{10, 350, 20},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, angularDistance(tc.a, tc.b), 1e-9)
		assert.InDelta(t, tc.want, angularDistance(tc.b, tc.a), 1e-9)
	}
}

func TestIsStowed(t *testing.T) {
	r, err := newJointRegistry(testJointConfig())
	assert.NoError(t, err)

	r.Joint(JointPan).Value = panStow
	r.Joint(JointTilt).Value = tiltStow
	assert.True(t, r.IsStowed())

	r.Joint(JointTilt).Value = tiltDeploy
	assert.False(t, r.IsStowed())

	r.Joint(JointTilt).Value = tiltStow
	r.Joint(JointPan).Value = 30
	assert.False(t, r.IsStowed())
}

func TestRequiresClosing(t *testing.T) {
	r, err := newJointRegistry(testJointConfig())
	assert.NoError(t, err)
	gripper := r.Joint(JointGripper)

	t.Run("uncalibrated gripper never requires closing", func(t *testing.T) {
		gripper.Value = gripperCal
		assert.False(t, r.RequiresClosing())
	})

	t.Run("already at stow position", func(t *testing.T) {
		gripper.Value = gripperStow
		assert.False(t, r.RequiresClosing())
	})

	t.Run("open gripper requires closing", func(t *testing.T) {
		gripper.Value = gripperOpen
		assert.True(t, r.RequiresClosing())
	})
}

func TestSnapGoals(t *testing.T) {
	r, err := newJointRegistry(testJointConfig())
	assert.NoError(t, err)

	r.Joint(JointPan).Value = 12
	r.Joint(JointPan).Goal = 80
	r.Joint(JointTilt).Value = 45
	r.Joint(JointTilt).Goal = 170
	r.Joint(JointGripper).Value = 30
	r.Joint(JointGripper).Goal = 45

	r.snapGoals()

	assert.Equal(t, 12.0, r.Joint(JointPan).Goal)
	assert.Equal(t, 45.0, r.Joint(JointTilt).Goal)
	assert.Equal(t, 30.0, r.Joint(JointGripper).Goal)
}
