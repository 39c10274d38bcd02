package perch_arm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

func TestGripperCalibrationRoundTrip(t *testing.T) {
	logger := logging.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "gripper.json")

	saved := GripperCalibration{Min: 1100, Max: 2900}
	require.NoError(t, SaveGripperCalibration(path, saved))

	loaded, ok := LoadGripperCalibration(path, logger)
	assert.True(t, ok)
	assert.Equal(t, saved, loaded)
}

func TestLoadGripperCalibrationFallbacks(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("no file configured", func(t *testing.T) {
		_, ok := LoadGripperCalibration("", logger)
		assert.False(t, ok)
	})

	t.Run("file missing", func(t *testing.T) {
		_, ok := LoadGripperCalibration("/nonexistent/gripper.json", logger)
		assert.False(t, ok)
	})

	t.Run("file corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "gripper.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
		_, ok := LoadGripperCalibration(path, logger)
		assert.False(t, ok)
	})

	t.Run("range too small", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "gripper.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"min": 1000, "max": 1050}`), 0644))
		_, ok := LoadGripperCalibration(path, logger)
		assert.False(t, ok)
	})
}

func TestSaveGripperCalibrationRejectsBadRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gripper.json")
	err := SaveGripperCalibration(path, GripperCalibration{Min: 2000, Max: 2010})
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
