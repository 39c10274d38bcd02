package perch_arm

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// GripperCalibration is the persisted gripper travel range in servo counts,
// established by the range sweep. With it on disk the gripper comes up
// calibrated after a restart instead of reporting the sentinel.
type GripperCalibration struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Valid reports whether the range is usable for position control.
func (c GripperCalibration) Valid() bool {
	return c.Max-c.Min >= calMinRange
}

// LoadGripperCalibration reads a saved calibration. The returned bool
// reports whether a usable calibration was loaded; failures are logged and
// fall back to the uncalibrated state rather than erroring.
func LoadGripperCalibration(filePath string, logger logging.Logger) (GripperCalibration, bool) {
	var cal GripperCalibration
	if filePath == "" {
		return cal, false
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		logger.Warnw("failed to read gripper calibration file", "file", filePath, "error", err)
		return cal, false
	}
	if err := json.Unmarshal(data, &cal); err != nil {
		logger.Warnw("failed to parse gripper calibration file", "file", filePath, "error", err)
		return GripperCalibration{}, false
	}
	if !cal.Valid() {
		logger.Warnw("gripper calibration file has unusable range",
			"file", filePath, "min", cal.Min, "max", cal.Max)
		return GripperCalibration{}, false
	}
	return cal, true
}

// SaveGripperCalibration writes the calibration as JSON.
func SaveGripperCalibration(filePath string, cal GripperCalibration) error {
	if !cal.Valid() {
		return errors.Errorf("refusing to save unusable range [%d, %d]", cal.Min, cal.Max)
	}
	data, err := json.MarshalIndent(cal, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling gripper calibration")
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return errors.Wrapf(err, "writing gripper calibration to %s", filePath)
	}
	return nil
}
