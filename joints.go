package perch_arm

import (
	"math"

	"github.com/pkg/errors"
)

// JointType identifies one of the three actuated joints.
type JointType int

const (
	JointPan JointType = iota
	JointTilt
	JointGripper
)

func (t JointType) String() string {
	switch t {
	case JointPan:
		return "pan"
	case JointTilt:
		return "tilt"
	case JointGripper:
		return "gripper"
	}
	return "invalid"
}

// Compiled-in pose and bound constants, human units (degrees for pan/tilt,
// percent-open for the gripper).
const (
	panOffset = 0.0
	panMin    = -90.0
	panMax    = 90.0
	panStow   = 0.0
	panDeploy = 0.0

	tiltOffset = 90.0
	tiltMin    = -20.0
	tiltMax    = 180.0
	tiltStow   = 180.0
	tiltDeploy = 0.0

	// Tilting past tiltSafe with the pan axis away from the stow position
	// would drive the gripper into the arm housing.
	tiltSafe      = 90.0
	panStowMargin = 0.1

	gripperStow   = 20.0
	gripperDeploy = 20.0
	gripperOpen   = 45.0
	gripperClose  = 20.0

	// gripperCal is the reserved gripper position signaling "position
	// unknown, calibration required". It survives unit conversion.
	gripperCal = -100.0

	radToDeg = 180.0 / math.Pi
)

// JointInfo holds calibration and tracking data for one joint, where
// human = Scale*driver + Offset.
type JointInfo struct {
	LowLevelName string  // joint name used by the downstream driver
	GenericName  string  // operator-facing name
	Value        float64 // last observed position, human units
	Goal         float64 // desired position, human units
	Tolerance    float64 // completion tolerance, human units
	Offset       float64 // driver -> human offset
	Scale        float64 // driver -> human scale, never zero
}

// JointRegistry maps the three joint types to their calibration data and
// supports reverse lookup by low-level name for telemetry demultiplexing.
type JointRegistry struct {
	joints map[JointType]*JointInfo
	byName map[string]JointType
}

func newJointRegistry(cfg *Config) (*JointRegistry, error) {
	names := map[JointType]string{
		JointPan:     cfg.PanJoint,
		JointTilt:    cfg.TiltJoint,
		JointGripper: cfg.GripperJoint,
	}
	for t, name := range names {
		if name == "" {
			return nil, errors.Errorf("no low-level name configured for %s joint", t)
		}
	}

	r := &JointRegistry{
		joints: map[JointType]*JointInfo{
			JointPan: {
				LowLevelName: cfg.PanJoint,
				GenericName:  "pan",
				Tolerance:    cfg.TolPan,
				Offset:       panOffset,
				Scale:        radToDeg,
			},
			JointTilt: {
				LowLevelName: cfg.TiltJoint,
				GenericName:  "tilt",
				Tolerance:    cfg.TolTilt,
				Offset:       tiltOffset,
				Scale:        radToDeg,
			},
			JointGripper: {
				LowLevelName: cfg.GripperJoint,
				GenericName:  "gripper",
				Tolerance:    cfg.TolGripper,
				Offset:       gripperClose,
				Scale:        (gripperOpen - gripperClose) / 100.0,
			},
		},
		byName: make(map[string]JointType, 3),
	}
	for t, j := range r.joints {
		r.byName[j.LowLevelName] = t
	}
	return r, nil
}

// Joint returns the info for t, or nil if t is not a registered joint.
func (r *JointRegistry) Joint(t JointType) *JointInfo {
	return r.joints[t]
}

// ByName resolves a low-level joint name to its joint type.
func (r *JointRegistry) ByName(name string) (JointType, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// ToHuman converts a driver-space position to human units. An uncalibrated
// gripper reports the calibration sentinel, which must pass through
// unconverted so the flag survives telemetry updates.
func (r *JointRegistry) ToHuman(t JointType, driverValue float64) float64 {
	j := r.joints[t]
	if t == JointGripper && driverValue == gripperCal {
		return gripperCal
	}
	return j.Scale*driverValue + j.Offset
}

// ToDriver converts a human-unit position to driver space.
func (r *JointRegistry) ToDriver(t JointType, humanValue float64) float64 {
	j := r.joints[t]
	return (humanValue - j.Offset) / j.Scale
}

// angularDistance is the distance between two angles modulo 360 degrees, so
// that 359 and 1 are two degrees apart.
func angularDistance(a, b float64) float64 {
	return 180.0 - math.Abs(math.Abs(a-b)-180.0)
}

// AtTarget reports whether the joint's last observed value is within
// tolerance of target, comparing angles with wraparound.
func (r *JointRegistry) AtTarget(t JointType, target float64) bool {
	j := r.joints[t]
	return angularDistance(j.Value, target) < j.Tolerance
}

// IsStowed reports whether the pan and tilt axes are at the stow pose.
func (r *JointRegistry) IsStowed() bool {
	if !r.AtTarget(JointPan, panStow) {
		return false
	}
	return r.AtTarget(JointTilt, tiltStow)
}

// RequiresClosing reports whether the gripper must be driven to the stow
// position before stowing. An uncalibrated gripper never requires closing.
func (r *JointRegistry) RequiresClosing() bool {
	if r.AtTarget(JointGripper, gripperCal) {
		return false
	}
	return !r.AtTarget(JointGripper, gripperStow)
}

// snapGoals freezes every joint's goal at its current value. Re-sending the
// frozen goals is the only stop primitive a position-controlled driver has.
func (r *JointRegistry) snapGoals() {
	for _, j := range r.joints {
		j.Goal = j.Value
	}
}
