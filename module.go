package perch_arm

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

// ArmModel is the command-facing component: deploy, stow, move, gripper and
// recovery commands over DoCommand.
var ArmModel = resource.NewModel("perch", "arm", "controller")

func init() {
	resource.RegisterComponent(generic.API, ArmModel,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newArmComponent,
		},
	)
}

type armComponent struct {
	resource.Named
	resource.AlwaysRebuild

	logger logging.Logger
	port   string

	mu         sync.Mutex
	controller *Controller
	closed     bool
}

func newArmComponent(
	ctx context.Context,
	deps resource.Dependencies,
	rawConf resource.Config,
	logger logging.Logger,
) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}
	conf.Logger = logger

	controller, err := sharedRegistry.GetArm(conf)
	if err != nil {
		return nil, errors.Wrap(err, "getting shared arm")
	}

	return &armComponent{
		Named:      rawConf.ResourceName().AsNamed(),
		logger:     logger,
		port:       conf.Port,
		controller: controller,
	}, nil
}

// DoCommand dispatches arm commands. Motion commands block until the action
// concludes and return its result; "state" returns a snapshot without
// commanding anything.
func (a *armComponent) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, errors.New("arm component is closed")
	}
	controller := a.controller
	a.mu.Unlock()

	name, _ := cmd["command"].(string)
	switch name {
	case "state":
		return statusToMap(controller.Snapshot()), nil

	case "set_state":
		stateName, ok := cmd["state"].(string)
		if !ok {
			return nil, errors.New("set_state requires a state name")
		}
		state, err := parseArmState(stateName)
		if err != nil {
			return nil, err
		}
		controller.SetState(state)
		return map[string]interface{}{"state": state.String()}, nil

	case "set_tolerances":
		pan, tilt, gripper, err := toleranceArgs(cmd)
		if err != nil {
			return nil, err
		}
		if err := controller.SetTolerances(pan, tilt, gripper); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "tolerances updated"}, nil
	}

	command, err := parseCommand(name, cmd)
	if err != nil {
		return nil, err
	}

	select {
	case code := <-controller.Submit(command):
		return map[string]interface{}{
			"result":    code.String(),
			"succeeded": code.Succeeded(),
			"state":     controller.State().String(),
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func parseCommand(name string, cmd map[string]interface{}) (Command, error) {
	num := func(key string) (float64, error) {
		v, ok := cmd[key].(float64)
		if !ok {
			return 0, errors.Errorf("%s requires a numeric %q", name, key)
		}
		return v, nil
	}

	switch name {
	case "stop":
		return Command{Kind: CommandStop}, nil
	case "deploy":
		return Command{Kind: CommandDeploy}, nil
	case "stow":
		return Command{Kind: CommandStow}, nil
	case "pan":
		v, err := num("angle")
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CommandPan, Pan: v}, nil
	case "tilt":
		v, err := num("angle")
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CommandTilt, Tilt: v}, nil
	case "move":
		pan, err := num("pan")
		if err != nil {
			return Command{}, err
		}
		tilt, err := num("tilt")
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CommandMove, Pan: pan, Tilt: tilt}, nil
	case "gripper_set":
		v, err := num("value")
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CommandGripperSet, Gripper: v}, nil
	case "gripper_open":
		return Command{Kind: CommandGripperOpen}, nil
	case "gripper_close":
		return Command{Kind: CommandGripperClose}, nil
	case "gripper_calibrate":
		return Command{Kind: CommandGripperCalibrate}, nil
	}
	return Command{}, errors.Errorf("unknown command %q", name)
}

func toleranceArgs(cmd map[string]interface{}) (float64, float64, float64, error) {
	vals := make(map[string]float64, 3)
	for _, key := range []string{"pan", "tilt", "gripper"} {
		v, ok := cmd[key].(float64)
		if !ok {
			return 0, 0, 0, errors.Errorf("set_tolerances requires numeric %q", key)
		}
		vals[key] = v
	}
	return vals["pan"], vals["tilt"], vals["gripper"], nil
}

// parseArmState resolves a state name as printed by ArmState.String.
func parseArmState(name string) (ArmState, error) {
	for s := StateInitializing; s <= StateDeployingTilting; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, errors.Errorf("unknown state %q", name)
}

func statusToMap(st Status) map[string]interface{} {
	return map[string]interface{}{
		"state":         st.State.String(),
		"joint_state":   st.JointState.String(),
		"gripper_state": st.GripperState.String(),
		"pan":           st.Pan,
		"tilt":          st.Tilt,
		"gripper":       st.Gripper,
		"pan_goal":      st.PanGoal,
		"tilt_goal":     st.TiltGoal,
		"gripper_goal":  st.GripperGoal,
	}
}

func (a *armComponent) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	sharedRegistry.Release(a.port)
	return nil
}
