package perch_arm

import (
	"sync"
	"time"

	"go.viam.com/rdk/logging"
)

// JointSample is one raw reading from the low-level driver: driver-space
// position plus SI velocity and motor current.
type JointSample struct {
	Name     string
	Position float64
	Velocity float64
	Effort   float64
}

// HumanSample is the derived operator-facing reading published after each
// recognized telemetry batch.
type HumanSample struct {
	Joint    string
	Position float64 // human units
	Velocity float64
	Current  float64
}

// Feedback is the progress snapshot streamed to the caller while an action
// is in flight.
type Feedback struct {
	State   ArmState
	Pan     float64
	Tilt    float64
	Gripper float64
}

// telemetryIngestor converts raw driver feedback into human units, keeps the
// registry's observed values fresh, and raises completion events. It also
// owns the liveness watchdog: onSilence fires after the configured duration
// without any recognized telemetry.
type telemetryIngestor struct {
	joints    *JointRegistry
	machine   *stateMachine
	gateway   *actuationGateway
	timeout   time.Duration
	onSilence func()
	logger    logging.Logger

	publishSamples  func([]HumanSample)
	publishFeedback func(Feedback)

	timerMu       sync.Mutex
	watchdogTimer *time.Timer
}

func newTelemetryIngestor(joints *JointRegistry, machine *stateMachine, gateway *actuationGateway,
	timeout time.Duration, onSilence func(), logger logging.Logger,
) *telemetryIngestor {
	return &telemetryIngestor{
		joints:    joints,
		machine:   machine,
		gateway:   gateway,
		timeout:   timeout,
		onSilence: onSilence,
		logger:    logger,
	}
}

// ingest processes one telemetry batch. Samples with unrecognized names are
// skipped; a batch with no recognized samples is a complete no-op so that
// garbage telemetry cannot keep the liveness watchdog alive. Positions are
// applied for the whole batch before any completion check runs, so a batch
// covering several joints is evaluated once against its final values.
func (ti *telemetryIngestor) ingest(batch []JointSample) {
	samples := make([]HumanSample, 0, len(batch))
	for _, s := range batch {
		t, ok := ti.joints.ByName(s.Name)
		if !ok {
			continue
		}
		j := ti.joints.Joint(t)
		j.Value = ti.joints.ToHuman(t, s.Position)
		samples = append(samples, HumanSample{
			Joint:    j.GenericName,
			Position: j.Value,
			Velocity: s.Velocity,
			Current:  s.Effort,
		})
	}
	if len(samples) == 0 {
		return
	}

	ti.rearmWatchdog()

	switch ti.machine.State() {
	case StateInitializing:
		ti.machine.Update(EventReady)
	case StateUnknown:
		if ti.joints.IsStowed() {
			ti.machine.Update(EventStowed)
		} else {
			ti.machine.Update(EventDeployed)
		}
	case StateStowed:
		// Catch a manual deploy.
		if !ti.joints.IsStowed() {
			ti.machine.Update(EventDeployed)
		}
	case StateDeployed:
		// Catch a manual stow.
		if ti.joints.IsStowed() {
			ti.machine.Update(EventStowed)
		}
	case StatePanning, StateStowingPanning, StateDeployingPanning:
		if ti.joints.AtTarget(JointPan, ti.joints.Joint(JointPan).Goal) {
			ti.gateway.cancelGoalTimer()
			ti.machine.Update(EventPanComplete)
		}
	case StateTilting, StateStowingTilting, StateDeployingTilting:
		if ti.joints.AtTarget(JointTilt, ti.joints.Joint(JointTilt).Goal) {
			ti.gateway.cancelGoalTimer()
			ti.machine.Update(EventTiltComplete)
		}
	case StateSetting, StateStowingSetting:
		if ti.joints.AtTarget(JointGripper, ti.joints.Joint(JointGripper).Goal) {
			ti.gateway.cancelGoalTimer()
			ti.machine.Update(EventGripperComplete)
		}
	case StateCalibrating:
		// Calibration is done once the gripper reports a real position
		// instead of the sentinel.
		if !ti.joints.AtTarget(JointGripper, gripperCal) {
			ti.gateway.cancelGoalTimer()
			ti.machine.Update(EventCalibrateComplete)
		}
	}

	if ti.publishSamples != nil {
		ti.publishSamples(samples)
	}

	if state := ti.machine.State(); state.isAction() && ti.publishFeedback != nil {
		ti.publishFeedback(Feedback{
			State:   state,
			Pan:     ti.joints.Joint(JointPan).Value,
			Tilt:    ti.joints.Joint(JointTilt).Value,
			Gripper: ti.joints.Joint(JointGripper).Value,
		})
	}
}

func (ti *telemetryIngestor) rearmWatchdog() {
	ti.timerMu.Lock()
	defer ti.timerMu.Unlock()
	if ti.watchdogTimer != nil {
		ti.watchdogTimer.Stop()
	}
	ti.watchdogTimer = time.AfterFunc(ti.timeout, ti.onSilence)
}

func (ti *telemetryIngestor) stopWatchdog() {
	ti.timerMu.Lock()
	defer ti.timerMu.Unlock()
	if ti.watchdogTimer != nil {
		ti.watchdogTimer.Stop()
		ti.watchdogTimer = nil
	}
}
