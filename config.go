package perch_arm

import (
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// Defaults applied by Validate.
const (
	DefaultBaudrate     = 1000000
	DefaultGoalTimeout  = 30 * time.Second
	DefaultWatchdog     = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond

	defaultTolPan     = 1.0
	defaultTolTilt    = 1.0
	defaultTolGripper = 5.0
)

// Config holds everything needed to run the arm: the serial bus, the servo
// IDs, the joint names reported by the driver, and the timing and tolerance
// parameters of the control core. Offsets, scales and pose constants are
// compiled in.
type Config struct {
	Port     string `json:"port"`
	Baudrate int    `json:"baudrate,omitempty"`

	PanServoID     int `json:"pan_servo_id,omitempty"`
	TiltServoID    int `json:"tilt_servo_id,omitempty"`
	GripperServoID int `json:"gripper_servo_id,omitempty"`

	// CalibrationFile, when set, persists the gripper travel range across
	// restarts. Missing or unreadable files mean calibrating again.
	CalibrationFile string `json:"calibration_file,omitempty"`

	// Low-level joint names used in driver commands and telemetry.
	PanJoint     string `json:"pan_joint,omitempty"`
	TiltJoint    string `json:"tilt_joint,omitempty"`
	GripperJoint string `json:"gripper_joint,omitempty"`

	// Completion tolerances, human units.
	TolPan     float64 `json:"tol_pan,omitempty"`
	TolTilt    float64 `json:"tol_tilt,omitempty"`
	TolGripper float64 `json:"tol_gripper,omitempty"`

	// GoalTimeout bounds one sub-action; WatchdogTimeout bounds silence
	// from telemetry before declaring link loss.
	GoalTimeout     time.Duration `json:"goal_timeout,omitempty"`
	WatchdogTimeout time.Duration `json:"watchdog_timeout,omitempty"`
	PollInterval    time.Duration `json:"poll_interval,omitempty"`

	// Not serialized
	Logger logging.Logger `json:"-"`
}

// Validate ensures all parts of the config are valid and fills defaults.
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.Port == "" {
		return nil, nil, errors.New("must specify port for serial communication")
	}
	if cfg.Baudrate == 0 {
		cfg.Baudrate = DefaultBaudrate
	}

	if cfg.PanServoID == 0 {
		cfg.PanServoID = 1
	}
	if cfg.TiltServoID == 0 {
		cfg.TiltServoID = 2
	}
	if cfg.GripperServoID == 0 {
		cfg.GripperServoID = 3
	}
	ids := map[int]string{}
	for id, name := range map[int]string{
		cfg.PanServoID:     "pan",
		cfg.TiltServoID:    "tilt",
		cfg.GripperServoID: "gripper",
	} {
		if id < 1 || id > 253 {
			return nil, nil, errors.Errorf("%s servo ID %d out of range", name, id)
		}
		ids[id] = name
	}
	if len(ids) != 3 {
		return nil, nil, errors.New("servo IDs must be distinct")
	}

	if cfg.PanJoint == "" {
		cfg.PanJoint = "pan_motor"
	}
	if cfg.TiltJoint == "" {
		cfg.TiltJoint = "tilt_motor"
	}
	if cfg.GripperJoint == "" {
		cfg.GripperJoint = "gripper_motor"
	}

	if cfg.TolPan == 0 {
		cfg.TolPan = defaultTolPan
	}
	if cfg.TolTilt == 0 {
		cfg.TolTilt = defaultTolTilt
	}
	if cfg.TolGripper == 0 {
		cfg.TolGripper = defaultTolGripper
	}
	for name, tol := range map[string]float64{
		"tol_pan": cfg.TolPan, "tol_tilt": cfg.TolTilt, "tol_gripper": cfg.TolGripper,
	} {
		if tol < 0 {
			return nil, nil, errors.Errorf("%s must be positive", name)
		}
	}

	if cfg.GoalTimeout == 0 {
		cfg.GoalTimeout = DefaultGoalTimeout
	}
	if cfg.WatchdogTimeout == 0 {
		cfg.WatchdogTimeout = DefaultWatchdog
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return nil, nil, nil
}
