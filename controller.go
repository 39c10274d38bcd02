package perch_arm

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// CommandKind enumerates the external command surface.
type CommandKind int

const (
	CommandStop CommandKind = iota + 1
	CommandDeploy
	CommandStow
	CommandPan
	CommandTilt
	CommandMove
	CommandGripperSet
	CommandGripperOpen
	CommandGripperClose
	CommandGripperCalibrate
)

func (k CommandKind) String() string {
	switch k {
	case CommandStop:
		return "stop"
	case CommandDeploy:
		return "deploy"
	case CommandStow:
		return "stow"
	case CommandPan:
		return "pan"
	case CommandTilt:
		return "tilt"
	case CommandMove:
		return "move"
	case CommandGripperSet:
		return "gripper_set"
	case CommandGripperOpen:
		return "gripper_open"
	case CommandGripperClose:
		return "gripper_close"
	case CommandGripperCalibrate:
		return "gripper_calibrate"
	}
	return "invalid"
}

// Command is one external request. Pan and Tilt are degrees; Gripper is the
// requested opening in human gripper units. Fields not relevant to the kind
// are ignored.
type Command struct {
	Kind    CommandKind
	Pan     float64
	Tilt    float64
	Gripper float64
}

// Status is the snapshot published to the status hook on every state
// transition.
type Status struct {
	State        ArmState
	Event        Event
	JointState   JointState
	GripperState GripperState
	Pan          float64
	Tilt         float64
	Gripper      float64
	PanGoal      float64
	TiltGoal     float64
	GripperGoal  float64
}

// Controller is the arm's decision core. It validates external commands,
// sequences joint sub-actions through the state machine, and arbitrates
// completion, failure and timeout from telemetry and timers. One command
// may be outstanding at a time; submitting another preempts the first.
//
// All event sources (commands, telemetry, both timers) are serialized
// through a single mutex, so at most one table transition is in flight and
// a transition's side effect can never reenter the machine.
type Controller struct {
	mu        sync.Mutex
	logger    logging.Logger
	joints    *JointRegistry
	machine   *stateMachine
	gateway   *actuationGateway
	telemetry *telemetryIngestor

	// pending is the result channel of the in-flight action, nil when idle.
	pending chan ResultCode
	closed  bool

	statusFn   func(Status)
	samplesFn  func([]HumanSample)
	feedbackFn func(Feedback)
}

// NewController builds a controller around the given command sink. The
// controller starts in Initializing and leaves it on first telemetry.
func NewController(cfg *Config, sink JointCommander, logger logging.Logger) (*Controller, error) {
	joints, err := newJointRegistry(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "building joint registry")
	}

	c := &Controller{
		logger: logger,
		joints: joints,
	}
	c.machine = newStateMachine(StateInitializing, c.notifyStatus)
	c.gateway = newActuationGateway(joints, sink, cfg.GoalTimeout, c.onGoalTimeout, logger)
	c.telemetry = newTelemetryIngestor(joints, c.machine, c.gateway, cfg.WatchdogTimeout, c.onWatchdog, logger)
	c.telemetry.publishSamples = func(samples []HumanSample) {
		if c.samplesFn != nil {
			c.samplesFn(samples)
		}
	}
	c.telemetry.publishFeedback = func(fb Feedback) {
		if c.feedbackFn != nil {
			c.feedbackFn(fb)
		}
	}
	c.installTransitions()
	return c, nil
}

// OnStatus registers a hook fired synchronously on every state transition.
// The hook runs with the controller locked and must not call back into it.
func (c *Controller) OnStatus(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusFn = fn
}

// OnSamples registers a hook for derived joint samples, fired on every
// recognized telemetry batch. Same reentrancy rule as OnStatus.
func (c *Controller) OnSamples(fn func([]HumanSample)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samplesFn = fn
}

// OnFeedback registers a hook for in-flight action progress snapshots.
// Same reentrancy rule as OnStatus.
func (c *Controller) OnFeedback(fn func(Feedback)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feedbackFn = fn
}

// installTransitions builds the full transition table. Handlers that arm a
// joint short-circuit to the matching failure result when the command could
// not be issued.
func (c *Controller) installTransitions() {
	add := func(states []ArmState, events []Event, h transitionHandler) {
		c.machine.add(states, events, h)
	}
	one := func(s ArmState, e Event, h transitionHandler) {
		add([]ArmState{s}, []Event{e}, h)
	}
	cancels := []Event{EventTimeout, EventGoalCancel}

	one(StateInitializing, EventReady, func(Event) ArmState {
		return StateUnknown
	})
	one(StateUnknown, EventStowed, func(Event) ArmState {
		return StateStowed
	})
	one(StateUnknown, EventDeployed, func(Event) ArmState {
		return StateDeployed
	})
	one(StateStowed, EventDeployed, func(Event) ArmState {
		return StateDeployed
	})
	one(StateDeployed, EventStowed, func(Event) ArmState {
		return StateStowed
	})

	// Deploy: pan to the deploy position, then tilt.
	one(StateStowed, EventGoalDeploy, func(Event) ArmState {
		if !c.gateway.Arm(JointPan) {
			return c.resolve(ResultPanFailed)
		}
		return StateDeployingPanning
	})
	one(StateDeployingPanning, EventPanComplete, func(Event) ArmState {
		if !c.gateway.Arm(JointTilt) {
			return c.resolve(ResultTiltFailed)
		}
		return StateDeployingTilting
	})
	one(StateDeployingTilting, EventTiltComplete, func(Event) ArmState {
		return c.resolve(ResultSuccess)
	})

	// Stow: close the gripper first if it needs closing, then pan, then
	// tilt back over the body.
	one(StateDeployed, EventGoalStow, func(Event) ArmState {
		if c.joints.RequiresClosing() {
			if !c.gateway.Arm(JointGripper) {
				return c.resolve(ResultGripperFailed)
			}
			return StateStowingSetting
		}
		if !c.gateway.Arm(JointPan) {
			return c.resolve(ResultPanFailed)
		}
		return StateStowingPanning
	})
	one(StateStowingSetting, EventGripperComplete, func(Event) ArmState {
		if !c.gateway.Arm(JointPan) {
			return c.resolve(ResultPanFailed)
		}
		return StateStowingPanning
	})
	add([]ArmState{StateStowingSetting}, cancels, func(Event) ArmState {
		return c.resolve(ResultGripperFailed)
	})
	one(StateStowingPanning, EventPanComplete, func(Event) ArmState {
		if !c.gateway.Arm(JointTilt) {
			return c.resolve(ResultTiltFailed)
		}
		return StateStowingTilting
	})
	add([]ArmState{StateStowingPanning}, cancels, func(Event) ArmState {
		return c.resolve(ResultPanFailed)
	})
	one(StateStowingTilting, EventTiltComplete, func(Event) ArmState {
		return c.resolve(ResultSuccess)
	})
	add([]ArmState{StateStowingTilting}, cancels, func(Event) ArmState {
		return c.resolve(ResultTiltFailed)
	})

	// Move: pan then tilt, from either resting pose.
	add([]ArmState{StateStowed, StateDeployed}, []Event{EventGoalMove}, func(Event) ArmState {
		if !c.gateway.Arm(JointPan) {
			return c.resolve(ResultPanFailed)
		}
		return StatePanning
	})
	one(StatePanning, EventPanComplete, func(Event) ArmState {
		if !c.gateway.Arm(JointTilt) {
			return c.resolve(ResultTiltFailed)
		}
		return StateTilting
	})
	add([]ArmState{StatePanning}, cancels, func(Event) ArmState {
		return c.resolve(ResultPanFailed)
	})
	one(StateTilting, EventTiltComplete, func(Event) ArmState {
		return c.resolve(ResultSuccess)
	})
	add([]ArmState{StateTilting}, cancels, func(Event) ArmState {
		return c.resolve(ResultTiltFailed)
	})

	// Gripper set.
	one(StateDeployed, EventGoalSet, func(Event) ArmState {
		if !c.gateway.Arm(JointGripper) {
			return c.resolve(ResultGripperFailed)
		}
		return StateSetting
	})
	one(StateSetting, EventGripperComplete, func(Event) ArmState {
		return c.resolve(ResultSuccess)
	})
	add([]ArmState{StateSetting}, cancels, func(Event) ArmState {
		return c.resolve(ResultGripperFailed)
	})

	// Gripper calibration.
	one(StateDeployed, EventGoalCalibrate, func(Event) ArmState {
		if !c.gateway.Arm(JointGripper) {
			return c.resolve(ResultCalibrateFailed)
		}
		return StateCalibrating
	})
	one(StateCalibrating, EventCalibrateComplete, func(Event) ArmState {
		return c.resolve(ResultSuccess)
	})
	add([]ArmState{StateCalibrating}, cancels, func(Event) ArmState {
		return c.resolve(ResultCalibrateFailed)
	})
}

// resolve concludes the in-flight sub-action with code and returns the
// resting state to settle into. Goals are snapped to current values and
// re-sent as hold commands so nothing is left mid-motion under a stale
// target. A communication error always resolves to Initializing to force a
// full re-synchronization; otherwise the pose decides Stowed vs Deployed.
//
// Called from transition handlers, so the machine still reports the state
// being left.
func (c *Controller) resolve(code ResultCode) ArmState {
	c.joints.snapGoals()
	c.gateway.cancelGoalTimer()
	c.gateway.Hold()
	if c.pending != nil {
		c.pending <- code
		c.pending = nil
	}
	if code == ResultCommunicationError {
		return StateInitializing
	}
	if c.joints.IsStowed() {
		return StateStowed
	}
	return StateDeployed
}

// Submit validates and starts cmd. The returned channel delivers exactly
// one terminal ResultCode: immediately for rejections and stops, otherwise
// when the action completes, fails, times out, or is preempted by a later
// command. The channel is buffered, so the result may be discarded.
func (c *Controller) Submit(cmd Command) <-chan ResultCode {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return deliveredResult(ResultNotAllowed)
	}

	// Stop freezes all goals where the joints are now and cancels whatever
	// is in flight. It always succeeds.
	if cmd.Kind == CommandStop {
		c.joints.snapGoals()
		c.machine.Update(EventGoalCancel)
		return deliveredResult(ResultSuccess)
	}

	// Preempt an in-flight action before screening the new command. If the
	// cancellation is ignored by the table, fail the old action directly.
	if c.pending != nil {
		c.machine.Update(EventGoalCancel)
		if c.pending != nil {
			c.pending <- ResultPreempted
			c.pending = nil
		}
	}

	event, code := c.screen(cmd)
	if event == 0 {
		c.logger.Debugw("command rejected", "command", cmd.Kind, "result", code)
		return deliveredResult(code)
	}

	result := make(chan ResultCode, 1)
	c.pending = result
	c.machine.Update(event)
	return result
}

// screen validates cmd against the current state and bounds. On acceptance
// it writes the new goals into the registry and returns the event to raise;
// on rejection it returns a zero event and the rejection code, leaving all
// goals untouched.
func (c *Controller) screen(cmd Command) (Event, ResultCode) {
	state := c.machine.State()
	pan := c.joints.Joint(JointPan)
	tilt := c.joints.Joint(JointTilt)
	gripper := c.joints.Joint(JointGripper)

	switch cmd.Kind {
	case CommandDeploy:
		if state != StateStowed {
			return 0, ResultNotAllowed
		}
		pan.Goal = panDeploy
		tilt.Goal = tiltDeploy
		gripper.Goal = gripperDeploy
		return EventGoalDeploy, 0

	case CommandStow:
		if state != StateDeployed {
			return 0, ResultNotAllowed
		}
		pan.Goal = panStow
		tilt.Goal = tiltStow
		gripper.Goal = gripperStow
		return EventGoalStow, 0

	case CommandPan, CommandTilt, CommandMove:
		if state != StateStowed && state != StateDeployed {
			return 0, ResultNotAllowed
		}
		// The unspecified axis falls back to its current goal.
		newPan := pan.Goal
		if cmd.Kind == CommandPan || cmd.Kind == CommandMove {
			newPan = cmd.Pan
		}
		newTilt := tilt.Goal
		if cmd.Kind == CommandTilt || cmd.Kind == CommandMove {
			newTilt = cmd.Tilt
		}
		if newTilt < tiltMin || newTilt > tiltMax {
			return 0, ResultBadTiltValue
		}
		if newPan < panMin || newPan > panMax {
			return 0, ResultBadPanValue
		}
		if newTilt > tiltSafe && math.Abs(newPan-panStow) > panStowMargin {
			return 0, ResultCollisionAvoided
		}
		pan.Goal = newPan
		tilt.Goal = newTilt
		return EventGoalMove, 0

	case CommandGripperCalibrate:
		if state != StateDeployed {
			return 0, ResultNotAllowed
		}
		gripper.Goal = gripperCal
		return EventGoalCalibrate, 0

	case CommandGripperSet:
		if gripper.Value < 0 {
			return 0, ResultNeedToCalibrate
		}
		if state != StateDeployed {
			return 0, ResultNotAllowed
		}
		if cmd.Gripper < gripperClose || cmd.Gripper > gripperOpen {
			return 0, ResultBadGripperValue
		}
		gripper.Goal = cmd.Gripper
		return EventGoalSet, 0

	case CommandGripperOpen:
		if gripper.Value < 0 {
			return 0, ResultNeedToCalibrate
		}
		if state != StateDeployed {
			return 0, ResultNotAllowed
		}
		gripper.Goal = gripperOpen
		return EventGoalSet, 0

	case CommandGripperClose:
		if gripper.Value < 0 {
			return 0, ResultNeedToCalibrate
		}
		if state != StateDeployed {
			return 0, ResultNotAllowed
		}
		gripper.Goal = gripperClose
		return EventGoalSet, 0
	}

	return 0, ResultInvalidCommand
}

// OnTelemetry feeds one raw feedback batch from the driver.
func (c *Controller) OnTelemetry(batch []JointSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.telemetry.ingest(batch)
}

// onGoalTimeout fires when a sub-action failed to reach tolerance in time.
func (c *Controller) onGoalTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.machine.Update(EventTimeout)
}

// onWatchdog fires after the configured silence from telemetry. Link loss
// outranks any in-flight action: the action fails with CommunicationError
// and the machine returns to Initializing until telemetry reappears.
func (c *Controller) onWatchdog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.logger.Warnw("no telemetry within watchdog period, assuming link loss")
	c.machine.Force(c.resolve(ResultCommunicationError))
}

// SetState forces the machine into s, bypassing the transition table. For
// recovery and testing only; consistency with joint positions is not
// checked.
func (c *Controller) SetState(s ArmState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.machine.Force(s)
}

// SetTolerances updates the completion tolerances. Only permitted while no
// action is in flight, so a pending completion check never changes its
// criterion mid-action.
func (c *Controller) SetTolerances(pan, tilt, gripper float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pan <= 0 || tilt <= 0 || gripper <= 0 {
		return errors.New("tolerances must be positive")
	}
	switch c.machine.State() {
	case StateUnknown, StateStowed, StateDeployed:
	default:
		return errors.Errorf("cannot change tolerances in state %s", c.machine.State())
	}
	c.joints.Joint(JointPan).Tolerance = pan
	c.joints.Joint(JointTilt).Tolerance = tilt
	c.joints.Joint(JointGripper).Tolerance = gripper
	return nil
}

// State returns the current machine state.
func (c *Controller) State() ArmState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.State()
}

// Snapshot returns the current status without waiting for a transition.
func (c *Controller) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status(c.machine.State(), Event(0))
}

func (c *Controller) status(state ArmState, event Event) Status {
	pan := c.joints.Joint(JointPan)
	tilt := c.joints.Joint(JointTilt)
	gripper := c.joints.Joint(JointGripper)
	return Status{
		State:        state,
		Event:        event,
		JointState:   jointDisplayState(state),
		GripperState: gripperDisplayState(state, gripper.Value, gripper.Tolerance),
		Pan:          pan.Value,
		Tilt:         tilt.Value,
		Gripper:      gripper.Value,
		PanGoal:      pan.Goal,
		TiltGoal:     tilt.Goal,
		GripperGoal:  gripper.Goal,
	}
}

// notifyStatus runs synchronously on every machine transition, with c.mu
// already held by whichever event source applied it.
func (c *Controller) notifyStatus(state ArmState, event Event) {
	c.logger.Debugw("state changed", "state", state, "event", event)
	if c.statusFn != nil {
		c.statusFn(c.status(state, event))
	}
}

// Close stops both timers and fails any in-flight action as preempted.
// The controller accepts no commands or telemetry afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.gateway.cancelGoalTimer()
	c.telemetry.stopWatchdog()
	if c.pending != nil {
		c.pending <- ResultPreempted
		c.pending = nil
	}
}

func deliveredResult(code ResultCode) <-chan ResultCode {
	ch := make(chan ResultCode, 1)
	ch <- code
	return ch
}
