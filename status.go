package perch_arm

import (
	"context"
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

// StatusSensorModel exposes the arm's state, joint values and pointing
// direction as sensor readings, sharing the controller with ArmModel.
var StatusSensorModel = resource.NewModel("perch", "arm", "status")

func init() {
	resource.RegisterComponent(sensor.API, StatusSensorModel,
		resource.Registration[sensor.Sensor, *Config]{
			Constructor: newStatusSensor,
		},
	)
}

type statusSensor struct {
	resource.Named
	resource.AlwaysRebuild

	logger logging.Logger
	port   string

	mu         sync.Mutex
	controller *Controller
	closed     bool
}

func newStatusSensor(
	ctx context.Context,
	deps resource.Dependencies,
	rawConf resource.Config,
	logger logging.Logger,
) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}
	conf.Logger = logger

	controller, err := sharedRegistry.GetArm(conf)
	if err != nil {
		return nil, errors.Wrap(err, "getting shared arm")
	}

	return &statusSensor{
		Named:      rawConf.ResourceName().AsNamed(),
		logger:     logger,
		port:       conf.Port,
		controller: controller,
	}, nil
}

func (s *statusSensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("status sensor is closed")
	}

	st := s.controller.Snapshot()
	readings := statusToMap(st)
	point := pointingVector(st.Pan, st.Tilt)
	readings["point_x"] = point.X
	readings["point_y"] = point.Y
	readings["point_z"] = point.Z
	return readings, nil
}

func (s *statusSensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, resource.ErrDoUnimplemented
}

func (s *statusSensor) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	sharedRegistry.Release(s.port)
	return nil
}

// pointingVector is the unit vector the gripper faces for a given pan and
// tilt in degrees: tilt 0 points along the body's up axis, tilt 180 folds
// back down over the stow pose, pan rotates about that axis.
func pointingVector(panDeg, tiltDeg float64) r3.Vector {
	pan := panDeg * math.Pi / 180
	tilt := tiltDeg * math.Pi / 180
	return r3.Vector{
		X: math.Sin(tilt) * math.Cos(pan),
		Y: math.Sin(tilt) * math.Sin(pan),
		Z: math.Cos(tilt),
	}
}
