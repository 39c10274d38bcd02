package perch_arm

import (
	"sync"

	"github.com/pkg/errors"
)

// armEntry is one shared arm: a driver on a serial port plus the controller
// built on top of it, handed out to every component configured against the
// same port.
type armEntry struct {
	controller *Controller
	driver     *FeetechDriver
	cfg        *Config
	refCount   int
	lastError  error
}

// ArmRegistry shares one controller per serial port between components. The
// generic command component and the status sensor both resolve to the same
// entry, so there is a single decision core per physical arm.
type ArmRegistry struct {
	mu      sync.Mutex
	entries map[string]*armEntry
}

func NewArmRegistry() *ArmRegistry {
	return &ArmRegistry{entries: make(map[string]*armEntry)}
}

// sharedRegistry is the process-wide registry used by the module components.
var sharedRegistry = NewArmRegistry()

// GetArm returns the controller for cfg.Port, creating the driver and
// controller on first use. Later callers must present a compatible config.
func (r *ArmRegistry) GetArm(cfg *Config) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[cfg.Port]; ok {
		if entry.controller == nil {
			if entry.lastError != nil {
				return nil, errors.Wrap(entry.lastError, "cached arm creation error")
			}
			return nil, errors.Errorf("arm not available for port %s", cfg.Port)
		}
		if !configsCompatible(entry.cfg, cfg) {
			return nil, errors.Errorf("conflict: port %s already in use with a different config (%d users)",
				cfg.Port, entry.refCount)
		}
		entry.refCount++
		return entry.controller, nil
	}

	entry := &armEntry{cfg: cfg}
	r.entries[cfg.Port] = entry

	driver, err := NewFeetechDriver(cfg, cfg.Logger)
	if err != nil {
		entry.lastError = err
		return nil, err
	}
	controller, err := NewController(cfg, driver, cfg.Logger)
	if err != nil {
		entry.lastError = err
		if closeErr := driver.Close(); closeErr != nil {
			cfg.Logger.Warnw("closing driver after failed arm creation", "error", closeErr)
		}
		return nil, err
	}
	driver.Start(controller.OnTelemetry)

	entry.driver = driver
	entry.controller = controller
	entry.refCount = 1
	return controller, nil
}

// Release drops one reference to the port's arm, tearing it down when the
// last user is gone.
func (r *ArmRegistry) Release(port string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[port]
	if !ok {
		return
	}
	entry.refCount--
	if entry.refCount > 0 {
		return
	}
	delete(r.entries, port)
	if entry.controller != nil {
		entry.controller.Close()
	}
	if entry.driver != nil {
		if err := entry.driver.Close(); err != nil && entry.cfg.Logger != nil {
			entry.cfg.Logger.Warnw("error closing shared driver", "port", port, "error", err)
		}
	}
}

// Users reports how many components currently share the port's arm.
func (r *ArmRegistry) Users(port string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[port]; ok {
		return entry.refCount
	}
	return 0
}

// configsCompatible reports whether two configs can share one arm. Timing
// and tolerance parameters belong to the controller, so they must agree too.
func configsCompatible(a, b *Config) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Port == b.Port &&
		a.Baudrate == b.Baudrate &&
		a.PanServoID == b.PanServoID &&
		a.TiltServoID == b.TiltServoID &&
		a.GripperServoID == b.GripperServoID &&
		a.PanJoint == b.PanJoint &&
		a.TiltJoint == b.TiltJoint &&
		a.GripperJoint == b.GripperJoint &&
		a.GoalTimeout == b.GoalTimeout &&
		a.WatchdogTimeout == b.WatchdogTimeout &&
		a.PollInterval == b.PollInterval
}
