package perch_arm

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
)

// Servo position space for STS-series servos: 4096 counts per revolution,
// centered on 2048.
const (
	countsPerRev = 4096
	countCenter  = 2048

	busTimeout = 100 * time.Millisecond

	// Gripper calibration sweep parameters. The gripper is driven in steps
	// toward each mechanical stop; a read that barely moves means we hit it.
	calSweepStep      = 150
	calSettle         = 300 * time.Millisecond
	calStallThreshold = 20
	calMinRange       = 200
)

// FeetechDriver runs the serial bus: it translates joint commands into servo
// positions, polls positions into telemetry batches, and owns gripper range
// calibration. Pan and tilt use radians in driver space; the gripper uses
// percent of its calibrated travel, reporting the calibration sentinel until
// a calibration has established that travel.
type FeetechDriver struct {
	logger logging.Logger
	bus     *feetech.Bus
	group   *feetech.ServoGroup
	poll    time.Duration
	calFile string

	// busMu serializes all bus I/O: the poll loop, joint commands and the
	// calibration sweep share one serial line.
	busMu sync.Mutex

	mu       sync.Mutex
	idByName map[string]int
	servoIDs []int

	gripperID         int
	gripperCalibrated bool
	gripperMin        int
	gripperMax        int
	calibrating       bool

	lastCounts map[int]int
	lastAt     time.Time

	closed  bool
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// NewFeetechDriver opens the serial bus and builds the servo group. It does
// not start polling; call Start once a telemetry sink is wired.
func NewFeetechDriver(cfg *Config, logger logging.Logger) (*FeetechDriver, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.Baudrate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  busTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening bus on %s", cfg.Port)
	}

	ids := []int{cfg.PanServoID, cfg.TiltServoID, cfg.GripperServoID}
	d := &FeetechDriver{
		logger:  logger,
		bus:     bus,
		group:   feetech.NewServoGroupByIDs(bus, ids...),
		poll:    cfg.PollInterval,
		calFile: cfg.CalibrationFile,
		idByName: map[string]int{
			cfg.PanJoint:     cfg.PanServoID,
			cfg.TiltJoint:    cfg.TiltServoID,
			cfg.GripperJoint: cfg.GripperServoID,
		},
		servoIDs:   ids,
		gripperID:  cfg.GripperServoID,
		lastCounts: make(map[int]int, 3),
	}
	if cal, ok := LoadGripperCalibration(cfg.CalibrationFile, logger); ok {
		d.gripperMin = cal.Min
		d.gripperMax = cal.Max
		d.gripperCalibrated = true
		logger.Infow("gripper calibration loaded", "file", cfg.CalibrationFile,
			"min", cal.Min, "max", cal.Max)
	}
	return d, nil
}

// Start begins polling servo positions, delivering one telemetry batch per
// poll to sink. The sink runs on the polling goroutine.
func (d *FeetechDriver) Start(sink func([]JointSample)) {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.workers.Add(1)
	goutils.PanicCapturingGo(func() {
		defer d.workers.Done()
		ticker := time.NewTicker(d.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			batch, err := d.sample(ctx)
			if err != nil {
				// A missed poll is not fatal; persistent silence is the
				// watchdog's call.
				d.logger.Debugw("telemetry poll failed", "error", err)
				continue
			}
			sink(batch)
		}
	})
}

// sample reads all servo positions and converts them into driver-space
// joint samples with finite-difference velocities.
func (d *FeetechDriver) sample(ctx context.Context) ([]JointSample, error) {
	d.busMu.Lock()
	counts, err := d.group.Positions(ctx)
	d.busMu.Unlock()
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	dt := now.Sub(d.lastAt).Seconds()
	batch := make([]JointSample, 0, len(d.idByName))
	for name, id := range d.idByName {
		raw, ok := counts[id]
		if !ok {
			continue
		}
		pos := d.toDriverUnits(id, raw)
		var vel float64
		if last, ok := d.lastCounts[id]; ok && dt > 0 {
			vel = (pos - d.toDriverUnits(id, last)) / dt
		}
		batch = append(batch, JointSample{Name: name, Position: pos, Velocity: vel})
		d.lastCounts[id] = raw
	}
	d.lastAt = now
	return batch, nil
}

// toDriverUnits converts raw servo counts into the driver's command space:
// radians from center for pan and tilt, percent of calibrated travel for the
// gripper. An uncalibrated gripper reports the calibration sentinel.
func (d *FeetechDriver) toDriverUnits(id, raw int) float64 {
	if id != d.gripperID {
		return float64(raw-countCenter) * (2 * math.Pi / countsPerRev)
	}
	if !d.gripperCalibrated || d.calibrating {
		return gripperCal
	}
	pct := 100 * float64(raw-d.gripperMin) / float64(d.gripperMax-d.gripperMin)
	return math.Min(100, math.Max(0, pct))
}

// CommandJoint issues one position command. A negative gripper target is the
// calibration request: it starts a range sweep instead of a motion.
func (d *FeetechDriver) CommandJoint(lowLevelName string, driverPosition float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("driver is closed")
	}
	id, ok := d.idByName[lowLevelName]
	if !ok {
		return errors.Errorf("unknown joint %q", lowLevelName)
	}

	var counts int
	switch {
	case id == d.gripperID && driverPosition < 0:
		d.startCalibrationLocked()
		return nil
	case id == d.gripperID:
		if !d.gripperCalibrated {
			return errors.New("gripper is not calibrated")
		}
		span := float64(d.gripperMax - d.gripperMin)
		counts = d.gripperMin + int(math.Round(driverPosition/100*span))
		counts = clampInt(counts, d.gripperMin, d.gripperMax)
	default:
		counts = countCenter + int(math.Round(driverPosition*countsPerRev/(2*math.Pi)))
		counts = clampInt(counts, 0, countsPerRev-1)
	}

	if err := d.setPosition(id, counts); err != nil {
		return errors.Wrapf(err, "commanding servo %d", id)
	}
	return nil
}

func (d *FeetechDriver) setPosition(id, counts int) error {
	ctx, cancel := context.WithTimeout(context.Background(), busTimeout)
	defer cancel()
	d.busMu.Lock()
	defer d.busMu.Unlock()
	return d.group.SetPositions(ctx, feetech.PositionMap{id: counts})
}

// startCalibrationLocked kicks off the gripper range sweep. While it runs
// the gripper keeps reporting the calibration sentinel; telemetry picks up
// the first real position once the range is established, which is how the
// controller detects completion.
func (d *FeetechDriver) startCalibrationLocked() {
	if d.calibrating {
		return
	}
	d.calibrating = true
	d.gripperCalibrated = false

	d.workers.Add(1)
	goutils.PanicCapturingGo(func() {
		defer d.workers.Done()
		min, max, err := d.sweepGripper()
		d.mu.Lock()
		defer d.mu.Unlock()
		d.calibrating = false
		if err != nil {
			// Leave the gripper uncalibrated; the goal timer fails the
			// calibration action upstream.
			d.logger.Warnw("gripper calibration failed", "error", err)
			return
		}
		d.gripperMin = min
		d.gripperMax = max
		d.gripperCalibrated = true
		d.logger.Infow("gripper calibrated", "min", min, "max", max)
		if d.calFile != "" {
			if err := SaveGripperCalibration(d.calFile, GripperCalibration{Min: min, Max: max}); err != nil {
				d.logger.Warnw("failed to persist gripper calibration", "error", err)
			}
		}
	})
}

// sweepGripper drives the gripper into both mechanical stops and returns the
// count range between them.
func (d *FeetechDriver) sweepGripper() (int, int, error) {
	min, err := d.driveToStop(-calSweepStep)
	if err != nil {
		return 0, 0, errors.Wrap(err, "sweeping to closed stop")
	}
	max, err := d.driveToStop(calSweepStep)
	if err != nil {
		return 0, 0, errors.Wrap(err, "sweeping to open stop")
	}
	if max-min < calMinRange {
		return 0, 0, errors.Errorf("gripper travel too small: %d counts", max-min)
	}

	// Finish closed so the arm is in a known grip state.
	if err := d.setPosition(d.gripperID, min); err != nil {
		return 0, 0, errors.Wrap(err, "returning to closed position")
	}
	return min, max, nil
}

// driveToStop steps the gripper in one direction until a commanded step no
// longer moves it, then reports where it stalled.
func (d *FeetechDriver) driveToStop(step int) (int, error) {
	readPos := func() (int, error) {
		ctx, cancel := context.WithTimeout(context.Background(), busTimeout)
		defer cancel()
		d.busMu.Lock()
		counts, err := d.group.Positions(ctx)
		d.busMu.Unlock()
		if err != nil {
			return 0, err
		}
		raw, ok := counts[d.gripperID]
		if !ok {
			return 0, errors.New("no gripper position in response")
		}
		return raw, nil
	}

	pos, err := readPos()
	if err != nil {
		return 0, err
	}
	for i := 0; i < countsPerRev/calSweepStep; i++ {
		target := clampInt(pos+step, 0, countsPerRev-1)
		if err := d.setPosition(d.gripperID, target); err != nil {
			return 0, err
		}
		time.Sleep(calSettle)
		next, err := readPos()
		if err != nil {
			return 0, err
		}
		if abs(next-pos) < calStallThreshold {
			return next, nil
		}
		pos = next
	}
	return 0, errors.New("gripper never stalled against a stop")
}

// Close stops polling and releases the bus.
func (d *FeetechDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}
	d.workers.Wait()
	return d.bus.Close()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
