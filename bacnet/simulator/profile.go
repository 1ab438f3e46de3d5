// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package simulator

import (
	"github.com/edgeo/drivers/bacnetsim/bacnet"
)

// DeviceProfile is the kind of equipment a simulated device stands for
type DeviceProfile string

const (
	ProfileController          DeviceProfile = "controller"
	ProfileRouter              DeviceProfile = "router"
	ProfileGateway             DeviceProfile = "gateway"
	ProfileWorkstation         DeviceProfile = "workstation"
	ProfileSensor              DeviceProfile = "sensor"
	ProfileActuator            DeviceProfile = "actuator"
	ProfileMeter               DeviceProfile = "meter"
	ProfileApplicationSpecific DeviceProfile = "application-specific"
	ProfileLightingController  DeviceProfile = "lighting-controller"
	ProfileFireAlarmPanel      DeviceProfile = "fire-alarm-panel"
	ProfileAccessControl       DeviceProfile = "access-control"
	ProfileSmartSensor         DeviceProfile = "smart-sensor"
	ProfileSmartActuator       DeviceProfile = "smart-actuator"
)

// deviceProfiles is the cycle ProfileFor walks through
var deviceProfiles = []DeviceProfile{
	ProfileController,
	ProfileRouter,
	ProfileGateway,
	ProfileWorkstation,
	ProfileSensor,
	ProfileActuator,
	ProfileMeter,
	ProfileApplicationSpecific,
	ProfileLightingController,
	ProfileFireAlarmPanel,
	ProfileAccessControl,
	ProfileSmartSensor,
	ProfileSmartActuator,
}

// ProfileFor returns the profile of a device. Profiles cycle with the
// device instance.
func ProfileFor(instance uint32) DeviceProfile {
	return deviceProfiles[instance%uint32(len(deviceProfiles))]
}

func analog(base, step float32) func(uint) bacnet.Value {
	return func(i uint) bacnet.Value { return bacnet.Real(base + step*float32(i)) }
}

// alternating is active on odd indexes, or on even ones when inverted
func alternating(inverted bool) func(uint) bacnet.Value {
	return func(i uint) bacnet.Value { return bacnet.Boolean((i%2 == 1) != inverted) }
}

var (
	controllerObjects = []objectTemplate{
		{bacnet.ObjectTypeAnalogInput, "AI", analog(20, 1)},
		{bacnet.ObjectTypeAnalogOutput, "AO", analog(10, 1)},
		{bacnet.ObjectTypeBinaryInput, "BI", alternating(false)},
		{bacnet.ObjectTypeBinaryOutput, "BO", alternating(true)},
	}
	sensorObjects = []objectTemplate{
		{bacnet.ObjectTypeAnalogInput, "TempSensor", analog(22.5, 1)},
		{bacnet.ObjectTypeAnalogInput, "HumiditySensor", analog(50, 1)},
	}
	actuatorObjects = []objectTemplate{
		{bacnet.ObjectTypeBinaryOutput, "Valve", alternating(false)},
		{bacnet.ObjectTypeAnalogOutput, "Damper", analog(5, 1)},
	}
)

// profileObjects lists the objects each profile carries per index. Routers,
// gateways and workstations only have their device object: the devices
// behind them are reached through the network layer, not as local objects.
var profileObjects = map[DeviceProfile][]objectTemplate{
	ProfileController:          controllerObjects,
	ProfileApplicationSpecific: controllerObjects,
	ProfileSensor:              sensorObjects,
	ProfileSmartSensor:         sensorObjects,
	ProfileActuator:            actuatorObjects,
	ProfileSmartActuator:       actuatorObjects,
	ProfileMeter: {
		{bacnet.ObjectTypeAnalogInput, "Energy", analog(1000, 100)},
		{bacnet.ObjectTypeAnalogInput, "Water", analog(200, 10)},
	},
	ProfileLightingController: {
		{bacnet.ObjectTypeBinaryOutput, "Light", alternating(false)},
	},
	ProfileFireAlarmPanel: {
		{bacnet.ObjectTypeBinaryInput, "Smoke", alternating(false)},
		{bacnet.ObjectTypeBinaryInput, "Heat", alternating(true)},
	},
	ProfileAccessControl: {
		{bacnet.ObjectTypeBinaryInput, "Door", alternating(false)},
		{bacnet.ObjectTypeBinaryOutput, "Lock", alternating(true)},
	},
}
