package main

import (
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"

	perch "perch_arm"
)

func main() {
	module.ModularMain(
		resource.APIModel{API: generic.API, Model: perch.ArmModel},
		resource.APIModel{API: sensor.API, Model: perch.StatusSensorModel},
		resource.APIModel{API: discovery.API, Model: perch.DiscoveryModel},
	)
}
