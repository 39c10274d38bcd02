package perch_arm

import "math"

// ArmState is the full behavior state of the arm. Exactly one state is
// current at any time. Deployed, Stowed and Unknown are resting states
// between actions; the remaining states track an in-flight sub-action.
type ArmState int

const (
	StateInitializing ArmState = iota
	StateUnknown
	StateStowed
	StateDeployed
	StatePanning
	StateTilting
	StateSetting
	StateCalibrating
	StateStowingSetting
	StateStowingPanning
	StateStowingTilting
	StateDeployingPanning
	StateDeployingTilting
)

func (s ArmState) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateUnknown:
		return "UNKNOWN"
	case StateStowed:
		return "STOWED"
	case StateDeployed:
		return "DEPLOYED"
	case StatePanning:
		return "PANNING"
	case StateTilting:
		return "TILTING"
	case StateSetting:
		return "SETTING"
	case StateCalibrating:
		return "CALIBRATING"
	case StateStowingSetting:
		return "STOWING_SETTING"
	case StateStowingPanning:
		return "STOWING_PANNING"
	case StateStowingTilting:
		return "STOWING_TILTING"
	case StateDeployingPanning:
		return "DEPLOYING_PANNING"
	case StateDeployingTilting:
		return "DEPLOYING_TILTING"
	}
	return "INVALID"
}

// isAction reports whether the state tracks an in-flight goal, meaning a
// caller is waiting on a result and feedback should be streamed.
func (s ArmState) isAction() bool {
	switch s {
	case StatePanning, StateTilting, StateSetting, StateCalibrating,
		StateStowingSetting, StateStowingPanning, StateStowingTilting,
		StateDeployingPanning, StateDeployingTilting:
		return true
	}
	return false
}

// Event drives the state machine. The zero value is reserved so that a
// forced state change (manual override) can be reported without a cause.
type Event int

const (
	EventReady Event = iota + 1
	EventDeployed
	EventStowed
	EventGoalDeploy
	EventGoalStow
	EventGoalMove
	EventGoalCalibrate
	EventGoalSet
	EventGoalCancel
	EventPanComplete
	EventTiltComplete
	EventGripperComplete
	EventCalibrateComplete
	EventTimeout
)

func (e Event) String() string {
	switch e {
	case EventReady:
		return "READY"
	case EventDeployed:
		return "DEPLOYED"
	case EventStowed:
		return "STOWED"
	case EventGoalDeploy:
		return "GOAL_DEPLOY"
	case EventGoalStow:
		return "GOAL_STOW"
	case EventGoalMove:
		return "GOAL_MOVE"
	case EventGoalCalibrate:
		return "GOAL_CALIBRATE"
	case EventGoalSet:
		return "GOAL_SET"
	case EventGoalCancel:
		return "GOAL_CANCEL"
	case EventPanComplete:
		return "PAN_COMPLETE"
	case EventTiltComplete:
		return "TILT_COMPLETE"
	case EventGripperComplete:
		return "GRIPPER_COMPLETE"
	case EventCalibrateComplete:
		return "CALIBRATE_COMPLETE"
	case EventTimeout:
		return "TIMEOUT"
	}
	return "NONE"
}

// ResultCode is the terminal outcome of one command. Positive codes are
// successes, negative codes are failures or rejections.
type ResultCode int

const (
	ResultSuccess            ResultCode = 1
	ResultPreempted          ResultCode = 0
	ResultPanFailed          ResultCode = -1
	ResultTiltFailed         ResultCode = -2
	ResultGripperFailed      ResultCode = -3
	ResultCalibrateFailed    ResultCode = -4
	ResultBadPanValue        ResultCode = -5
	ResultBadTiltValue       ResultCode = -6
	ResultBadGripperValue    ResultCode = -7
	ResultCollisionAvoided   ResultCode = -8
	ResultNeedToCalibrate    ResultCode = -9
	ResultInvalidCommand     ResultCode = -10
	ResultNotAllowed         ResultCode = -11
	ResultCommunicationError ResultCode = -12
)

// Succeeded reports whether the code is a successful outcome.
func (r ResultCode) Succeeded() bool {
	return r > 0
}

func (r ResultCode) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultPreempted:
		return "PREEMPTED"
	case ResultPanFailed:
		return "PAN_FAILED"
	case ResultTiltFailed:
		return "TILT_FAILED"
	case ResultGripperFailed:
		return "GRIPPER_FAILED"
	case ResultCalibrateFailed:
		return "CALIBRATE_FAILED"
	case ResultBadPanValue:
		return "BAD_PAN_VALUE"
	case ResultBadTiltValue:
		return "BAD_TILT_VALUE"
	case ResultBadGripperValue:
		return "BAD_GRIPPER_VALUE"
	case ResultCollisionAvoided:
		return "COLLISION_AVOIDED"
	case ResultNeedToCalibrate:
		return "NEED_TO_CALIBRATE"
	case ResultInvalidCommand:
		return "INVALID_COMMAND"
	case ResultNotAllowed:
		return "NOT_ALLOWED"
	case ResultCommunicationError:
		return "COMMUNICATION_ERROR"
	}
	return "UNKNOWN"
}

// GripperState is the simplified gripper state for status consumers.
type GripperState int

const (
	GripperUncalibrated GripperState = iota
	GripperClosed
	GripperOpen
	GripperCalibrating
)

func (g GripperState) String() string {
	switch g {
	case GripperUncalibrated:
		return "UNCALIBRATED"
	case GripperClosed:
		return "CLOSED"
	case GripperOpen:
		return "OPEN"
	case GripperCalibrating:
		return "CALIBRATING"
	}
	return "UNKNOWN"
}

// JointState is the simplified pan/tilt motion state for status consumers.
type JointState int

const (
	JointsUnknown JointState = iota
	JointsDeploying
	JointsStopped
	JointsMoving
	JointsStowing
	JointsStowed
)

func (j JointState) String() string {
	switch j {
	case JointsUnknown:
		return "UNKNOWN"
	case JointsDeploying:
		return "DEPLOYING"
	case JointsStopped:
		return "STOPPED"
	case JointsMoving:
		return "MOVING"
	case JointsStowing:
		return "STOWING"
	case JointsStowed:
		return "STOWED"
	}
	return "UNKNOWN"
}

// gripperDisplayState derives the simplified gripper state from the full
// state and the last observed gripper value. A negative value is the
// uncalibrated sentinel.
func gripperDisplayState(state ArmState, value, tolerance float64) GripperState {
	if state == StateCalibrating {
		return GripperCalibrating
	}
	if value < 0 {
		return GripperUncalibrated
	}
	if math.Abs(value-gripperClose) < tolerance {
		return GripperClosed
	}
	return GripperOpen
}

// jointDisplayState derives the simplified pan/tilt motion state from the
// full state.
func jointDisplayState(state ArmState) JointState {
	switch state {
	case StateDeployingPanning, StateDeployingTilting:
		return JointsDeploying
	case StateDeployed, StateSetting, StateCalibrating:
		return JointsStopped
	case StatePanning, StateTilting:
		return JointsMoving
	case StateStowingSetting, StateStowingPanning, StateStowingTilting:
		return JointsStowing
	case StateStowed:
		return JointsStowed
	}
	return JointsUnknown
}
