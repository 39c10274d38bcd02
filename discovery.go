package perch_arm

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial/enumerator"
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"
)

var DiscoveryModel = resource.NewModel("perch", "arm", "discovery")

func init() {
	resource.RegisterService(
		discovery.API,
		DiscoveryModel,
		resource.Registration[discovery.Service, *DiscoveryConfig]{
			Constructor: newArmDiscovery,
		})
}

// DiscoveryConfig configures the scan. All fields are optional.
type DiscoveryConfig struct {
	Baudrate int `json:"baudrate,omitempty"`
}

func (cfg *DiscoveryConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Baudrate == 0 {
		cfg.Baudrate = DefaultBaudrate
	}
	return nil, nil, nil
}

type armDiscovery struct {
	resource.Named
	resource.AlwaysRebuild
	resource.TriviallyCloseable

	baudrate int
	logger   logging.Logger
}

func newArmDiscovery(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (discovery.Service, error) {
	cfg, err := resource.NativeConfig[*DiscoveryConfig](conf)
	if err != nil {
		return nil, err
	}

	return &armDiscovery{
		Named:    conf.ResourceName().AsNamed(),
		baudrate: cfg.Baudrate,
		logger:   logger,
	}, nil
}

// DiscoverResources scans serial ports for a three-servo arm and suggests
// one controller and one status sensor config per port that has it.
func (dis *armDiscovery) DiscoverResources(ctx context.Context, extra map[string]any) ([]resource.Config, error) {
	allPorts := enumerateSerialPorts()
	candidates := filterCandidatePorts(allPorts)
	dis.logger.Debugw("scanning candidate ports", "total", len(allPorts), "candidates", len(candidates))

	var configs []resource.Config
	for _, portPath := range candidates {
		select {
		case <-ctx.Done():
			return configs, ctx.Err()
		default:
		}
		if !dis.probePort(ctx, portPath) {
			continue
		}
		dis.logger.Infow("found arm", "port", portPath)
		suffix := portSuffix(portPath)
		configs = append(configs,
			resource.Config{
				Name:       "arm-" + suffix,
				API:        generic.API,
				Model:      ArmModel,
				Attributes: map[string]interface{}{"port": portPath},
			},
			resource.Config{
				Name:       "arm-status-" + suffix,
				API:        sensor.API,
				Model:      StatusSensorModel,
				Attributes: map[string]interface{}{"port": portPath},
			},
		)
	}

	if len(configs) == 0 {
		dis.logger.Info("no arms discovered")
	}
	return configs, nil
}

// probePort reports whether the port carries all three arm servos.
func (dis *armDiscovery) probePort(ctx context.Context, portPath string) bool {
	scanCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     portPath,
		BaudRate: dis.baudrate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		dis.logger.Debugw("failed to open port", "port", portPath, "error", err)
		return false
	}
	defer bus.Close()

	servos, err := bus.Scan(scanCtx, 1, 3)
	if err != nil {
		dis.logger.Debugw("scan failed", "port", portPath, "error", err)
		return false
	}
	return len(servos) == 3
}

// filterCandidatePorts keeps ports matching USB serial naming patterns.
func filterCandidatePorts(ports []string) []string {
	candidates := []string{}
	for _, port := range ports {
		if isCandidatePort(port) {
			candidates = append(candidates, port)
		}
	}
	return candidates
}

func isCandidatePort(port string) bool {
	// Linux
	if strings.HasPrefix(port, "/dev/ttyUSB") || strings.HasPrefix(port, "/dev/ttyACM") {
		return true
	}
	// macOS
	if strings.HasPrefix(port, "/dev/tty.usbmodem") || strings.HasPrefix(port, "/dev/tty.usbserial") ||
		strings.HasPrefix(port, "/dev/cu.usbmodem") || strings.HasPrefix(port, "/dev/cu.usbserial") {
		return true
	}
	// Windows
	return strings.HasPrefix(port, "COM")
}

// portSuffix derives a friendly name suffix from a port path, e.g.
// /dev/ttyUSB0 -> "ttyUSB0", /dev/tty.usbmodem123 -> "usbmodem123".
func portSuffix(portPath string) string {
	base := filepath.Base(portPath)
	if strings.HasPrefix(base, "tty.usb") {
		return strings.TrimPrefix(base, "tty.")
	}
	if strings.HasPrefix(base, "cu.usb") {
		return strings.TrimPrefix(base, "cu.")
	}
	return base
}

func enumerateSerialPorts() []string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return []string{}
	}
	var portPaths []string
	for _, port := range ports {
		portPaths = append(portPaths, port.Name)
	}
	return portPaths
}
