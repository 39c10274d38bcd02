package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.viam.com/rdk/logging"

	perch "perch_arm"
)

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func realMain() error {
	port := flag.String("port", "/dev/ttyUSB0", "serial port the arm is connected to")
	baudrate := flag.Int("baudrate", perch.DefaultBaudrate, "serial baudrate")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return fmt.Errorf("no command given")
	}

	logger := logging.NewLogger("perch-arm-cli")
	if *debug {
		logger.SetLevel(logging.DEBUG)
	}

	cfg := &perch.Config{Port: *port, Baudrate: *baudrate, Logger: logger}
	if _, _, err := cfg.Validate(""); err != nil {
		return err
	}

	driver, err := perch.NewFeetechDriver(cfg, logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	controller, err := perch.NewController(cfg, driver, logger)
	if err != nil {
		return err
	}
	defer controller.Close()

	controller.OnFeedback(func(fb perch.Feedback) {
		logger.Infof("%s pan=%.1f tilt=%.1f gripper=%.1f", fb.State, fb.Pan, fb.Tilt, fb.Gripper)
	})
	driver.Start(controller.OnTelemetry)

	// Commands are rejected until telemetry has classified the resting
	// pose, so give the first polls a moment to land.
	deadline := time.Now().Add(3 * time.Second)
	for {
		if s := controller.State(); s == perch.StateStowed || s == perch.StateDeployed {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("arm never reported a resting state (now %s)", controller.State())
		}
		time.Sleep(50 * time.Millisecond)
	}

	cmd, err := parseArgs(args)
	if err != nil {
		return err
	}

	if args[0] == "status" {
		st := controller.Snapshot()
		fmt.Printf("state=%s joints=%s gripper=%s pan=%.1f tilt=%.1f grip=%.1f\n",
			st.State, st.JointState, st.GripperState, st.Pan, st.Tilt, st.Gripper)
		return nil
	}

	code := <-controller.Submit(cmd)
	fmt.Printf("result: %s\n", code)
	if !code.Succeeded() {
		return fmt.Errorf("command failed with %s", code)
	}
	return nil
}

func parseArgs(args []string) (perch.Command, error) {
	angle := func() (float64, error) {
		if len(args) < 2 {
			return 0, fmt.Errorf("%s requires a value", args[0])
		}
		return strconv.ParseFloat(args[1], 64)
	}

	switch args[0] {
	case "status":
		return perch.Command{}, nil
	case "stop":
		return perch.Command{Kind: perch.CommandStop}, nil
	case "deploy":
		return perch.Command{Kind: perch.CommandDeploy}, nil
	case "stow":
		return perch.Command{Kind: perch.CommandStow}, nil
	case "pan":
		v, err := angle()
		if err != nil {
			return perch.Command{}, err
		}
		return perch.Command{Kind: perch.CommandPan, Pan: v}, nil
	case "tilt":
		v, err := angle()
		if err != nil {
			return perch.Command{}, err
		}
		return perch.Command{Kind: perch.CommandTilt, Tilt: v}, nil
	case "move":
		if len(args) < 3 {
			return perch.Command{}, fmt.Errorf("move requires pan and tilt")
		}
		pan, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return perch.Command{}, err
		}
		tilt, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return perch.Command{}, err
		}
		return perch.Command{Kind: perch.CommandMove, Pan: pan, Tilt: tilt}, nil
	case "grip":
		v, err := angle()
		if err != nil {
			return perch.Command{}, err
		}
		return perch.Command{Kind: perch.CommandGripperSet, Gripper: v}, nil
	case "open":
		return perch.Command{Kind: perch.CommandGripperOpen}, nil
	case "close":
		return perch.Command{Kind: perch.CommandGripperClose}, nil
	case "calibrate":
		return perch.Command{Kind: perch.CommandGripperCalibrate}, nil
	}
	return perch.Command{}, fmt.Errorf("unknown command %q", args[0])
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: %s [flags] <command> [args]

commands:
  status               print the current arm status
  deploy               deploy the arm
  stow                 stow the arm
  pan <deg>            pan to an angle
  tilt <deg>           tilt to an angle
  move <pan> <tilt>    pan and tilt in one action
  grip <value>         set the gripper opening
  open | close         open or close the gripper
  calibrate            calibrate the gripper range
  stop                 freeze all joints in place

flags:
`, os.Args[0])
	flag.PrintDefaults()
}
