package perch_arm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestEmptyBatch(t *testing.T) {
	c, _ := newTestController(t, testControllerConfig())

	c.OnTelemetry(nil)
	c.OnTelemetry([]JointSample{})
	assert.Equal(t, StateInitializing, c.State())
}

func TestIngestUnknownJointsOnly(t *testing.T) {
	c, _ := newTestController(t, testControllerConfig())
	var published [][]HumanSample
	c.OnSamples(func(s []HumanSample) { published = append(published, s) })

	// Garbage joint names must not wake the machine or count as liveness.
	c.OnTelemetry([]JointSample{
		{Name: "elbow_motor", Position: 1},
		{Name: "wrist_motor", Position: 2},
	})
	assert.Equal(t, StateInitializing, c.State())
	assert.Empty(t, published)
}

func TestIngestSkipsUnknownJointsInMixedBatch(t *testing.T) {
	c, _ := newTestController(t, testControllerConfig())
	var published [][]HumanSample
	c.OnSamples(func(s []HumanSample) { published = append(published, s) })

	c.OnTelemetry([]JointSample{
		{Name: "elbow_motor", Position: 1},
		{Name: "pan_motor", Position: 0.5, Velocity: 0.1, Effort: 0.2},
	})
	assert.Equal(t, StateUnknown, c.State())
	require.Len(t, published, 1)
	require.Len(t, published[0], 1)
	got := published[0][0]
	assert.Equal(t, "pan", got.Joint)
	assert.InDelta(t, 0.5*radToDeg, got.Position, 1e-9)
	assert.Equal(t, 0.1, got.Velocity)
	assert.Equal(t, 0.2, got.Current)
}

func TestSamplesPublishedInHumanUnits(t *testing.T) {
	c, _ := newTestController(t, testControllerConfig())
	var last []HumanSample
	c.OnSamples(func(s []HumanSample) { last = s })

	feed(c, drvPanStow, drvTiltStow, drvGripOpen)
	require.Len(t, last, 3)
	byJoint := map[string]float64{}
	for _, s := range last {
		byJoint[s.Joint] = s.Position
	}
	assert.InDelta(t, 0, byJoint["pan"], 1e-9)
	assert.InDelta(t, 180, byJoint["tilt"], 1e-9)
	assert.InDelta(t, 45, byJoint["gripper"], 1e-9)
}

func TestFeedbackOnlyDuringActions(t *testing.T) {
	c, _ := newTestController(t, testControllerConfig())
	var feedbacks []Feedback
	c.OnFeedback(func(fb Feedback) { feedbacks = append(feedbacks, fb) })

	toDeployed(t, c, drvGripClosed)
	assert.Empty(t, feedbacks)

	ch := c.Submit(Command{Kind: CommandMove, Pan: 40, Tilt: 0})
	require.Equal(t, StatePanning, c.State())

	// Mid-motion: progress is streamed.
	feed(c, 20.0/radToDeg, drvTiltDeploy, drvGripClosed)
	require.Len(t, feedbacks, 1)
	assert.Equal(t, StatePanning, feedbacks[0].State)
	assert.InDelta(t, 20, feedbacks[0].Pan, 1e-9)

	// The pan leg completes; the batch still reports in-flight progress
	// for the tilt leg it chains into.
	feed(c, 40.0/radToDeg, drvTiltDeploy, drvGripClosed)
	require.Len(t, feedbacks, 2)
	assert.Equal(t, StateTilting, feedbacks[1].State)

	// The final batch resolves the action, so no feedback follows it.
	feed(c, 40.0/radToDeg, drvTiltDeploy, drvGripClosed)
	assert.Equal(t, ResultSuccess, awaitResult(t, ch))
	assert.Len(t, feedbacks, 2)
	assert.Equal(t, StateDeployed, c.State())
}

func TestWholeBatchAppliedBeforeCompletionCheck(t *testing.T) {
	c, _ := newTestController(t, testControllerConfig())
	toDeployed(t, c, drvGripClosed)

	ch := c.Submit(Command{Kind: CommandPan, Pan: 40})
	require.Equal(t, StatePanning, c.State())

	// The pan sample arrives last in the batch; completion must still see
	// it because positions are applied before any check runs.
	c.OnTelemetry([]JointSample{
		{Name: "tilt_motor", Position: drvTiltDeploy},
		{Name: "gripper_motor", Position: drvGripClosed},
		{Name: "pan_motor", Position: 40.0 / radToDeg},
	})
	require.Equal(t, StateTilting, c.State())

	feed(c, 40.0/radToDeg, drvTiltDeploy, drvGripClosed)
	assert.Equal(t, ResultSuccess, awaitResult(t, ch))
}

func TestSentinelSurvivesConversion(t *testing.T) {
	c, _ := newTestController(t, testControllerConfig())
	var last []HumanSample
	c.OnSamples(func(s []HumanSample) { last = s })

	feed(c, drvPanStow, drvTiltDeploy, gripperCal)
	for _, s := range last {
		if s.Joint == "gripper" {
			assert.Equal(t, gripperCal, s.Position)
		}
	}
	assert.Equal(t, gripperCal, c.joints.Joint(JointGripper).Value)
}
