package perch_arm

import (
	"sync"
	"time"

	"go.viam.com/rdk/logging"
)

// JointCommander is the downstream position-command sink. Commands carry
// one joint at a time; completion is observed via telemetry, never awaited.
type JointCommander interface {
	CommandJoint(lowLevelName string, driverPosition float64) error
}

// actuationGateway issues single-joint goals and owns the one-shot goal
// timer bounding how long a sub-action may take to reach tolerance.
type actuationGateway struct {
	joints    *JointRegistry
	sink      JointCommander
	timeout   time.Duration
	onTimeout func()
	logger    logging.Logger

	timerMu   sync.Mutex
	goalTimer *time.Timer
}

func newActuationGateway(joints *JointRegistry, sink JointCommander, timeout time.Duration, onTimeout func(), logger logging.Logger) *actuationGateway {
	return &actuationGateway{
		joints:    joints,
		sink:      sink,
		timeout:   timeout,
		onTimeout: onTimeout,
		logger:    logger,
	}
}

// Arm sends the joint's current goal downstream in driver units and re-arms
// the goal timer. A false return means the sub-action could not even start.
// One joint per call; goals are never batched.
func (g *actuationGateway) Arm(t JointType) bool {
	j := g.joints.Joint(t)
	if j == nil {
		g.logger.Warnw("not a valid control goal", "joint", t)
		return false
	}
	if err := g.sink.CommandJoint(j.LowLevelName, g.joints.ToDriver(t, j.Goal)); err != nil {
		g.logger.Warnw("joint command failed", "joint", j.GenericName, "error", err)
		return false
	}
	g.rearmGoalTimer()
	return true
}

// Hold re-sends every joint's current goal without touching the goal timer.
// Called on sub-action resolution after goals have been snapped to values,
// so no joint is left mid-motion under a stale target. Errors are logged
// only: during a communication loss the commands are expected to fail.
func (g *actuationGateway) Hold() {
	for _, t := range []JointType{JointPan, JointTilt, JointGripper} {
		j := g.joints.Joint(t)
		if err := g.sink.CommandJoint(j.LowLevelName, g.joints.ToDriver(t, j.Goal)); err != nil {
			g.logger.Debugw("hold command failed", "joint", j.GenericName, "error", err)
		}
	}
}

// rearmGoalTimer cancels any pending goal timer and starts a fresh one, so
// the timer never fires twice for one sub-action.
func (g *actuationGateway) rearmGoalTimer() {
	g.timerMu.Lock()
	defer g.timerMu.Unlock()
	if g.goalTimer != nil {
		g.goalTimer.Stop()
	}
	g.goalTimer = time.AfterFunc(g.timeout, g.onTimeout)
}

func (g *actuationGateway) cancelGoalTimer() {
	g.timerMu.Lock()
	defer g.timerMu.Unlock()
	if g.goalTimer != nil {
		g.goalTimer.Stop()
		g.goalTimer = nil
	}
}
