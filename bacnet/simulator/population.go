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
	"fmt"

	"github.com/edgeo/drivers/bacnetsim/bacnet"
)

// objectTemplate describes an object family a device carries
type objectTemplate struct {
	objectType bacnet.ObjectType
	prefix     string
	value      func(i uint) bacnet.Value
}

// objectTemplates are the nine standard families of a device without profile
var objectTemplates = []objectTemplate{
	{bacnet.ObjectTypeAnalogInput, "AI", func(i uint) bacnet.Value { return bacnet.Real(20 + float32(i)) }},
	{bacnet.ObjectTypeAnalogOutput, "AO", func(i uint) bacnet.Value { return bacnet.Real(10 + float32(i)) }},
	{bacnet.ObjectTypeAnalogValue, "AV", func(i uint) bacnet.Value { return bacnet.Real(5 + float32(i)) }},
	{bacnet.ObjectTypeBinaryInput, "BI", func(uint) bacnet.Value { return bacnet.Boolean(true) }},
	{bacnet.ObjectTypeBinaryOutput, "BO", func(uint) bacnet.Value { return bacnet.Boolean(false) }},
	{bacnet.ObjectTypeBinaryValue, "BV", func(uint) bacnet.Value { return bacnet.Boolean(true) }},
	{bacnet.ObjectTypeMultiStateInput, "MSI", func(uint) bacnet.Value { return bacnet.Unsigned(1) }},
	{bacnet.ObjectTypeMultiStateOutput, "MSO", func(uint) bacnet.Value { return bacnet.Unsigned(2) }},
	{bacnet.ObjectTypeMultiStateValue, "MSV", func(uint) bacnet.Value { return bacnet.Unsigned(3) }},
}

// populate adds perType objects of every template to d. Objects are grouped
// by index: AI0, AO0, ... MSV0, AI1, ... Instances are numbered per object
// type, so two templates of the same type share one sequence.
func populate(d *bacnet.Device, templates []objectTemplate, perType uint) error {
	next := make(map[bacnet.ObjectType]uint32, len(templates))
	for i := uint(0); i < perType; i++ {
		for _, tmpl := range templates {
			instance := next[tmpl.objectType]
			next[tmpl.objectType]++
			obj, err := bacnet.NewObject(tmpl.objectType, instance, fmt.Sprintf("%s%d", tmpl.prefix, i), tmpl.value(i))
			if err != nil {
				return err
			}
			if err := d.AddObject(obj); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildRegistry creates every device of cfg with its address and objects.
// All addresses are allocated before any device is registered. With
// profiles enabled the profile of every device is returned as well.
func buildRegistry(cfg Config) (*bacnet.Registry, map[uint32]DeviceProfile, error) {
	addrs := make([]bacnet.Address, 0, min(cfg.DeviceCount, 256))
	for i := uint(0); i < cfg.DeviceCount; i++ {
		addr, err := cfg.AddressPlan.allocate(cfg.BaseAddress, i)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %d devices from %s (%s): %w",
				bacnet.ErrInvalidConfiguration, cfg.DeviceCount, cfg.BaseAddress, cfg.AddressPlan, err)
		}
		addrs = append(addrs, addr)
	}

	registry := bacnet.NewRegistry()
	var profiles map[uint32]DeviceProfile
	if cfg.Profiles {
		profiles = make(map[uint32]DeviceProfile, len(addrs))
	}
	for i, addr := range addrs {
		instance := cfg.FirstInstance + uint32(i)
		d, err := registry.NewDevice(
			instance,
			fmt.Sprintf("%s%d", cfg.NamePrefix, instance),
			cfg.VendorID,
			cfg.MaxAPDULength,
			cfg.Segmentation,
			addr,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: device %d: %w", bacnet.ErrInvalidConfiguration, instance, err)
		}

		templates := objectTemplates
		if profiles != nil {
			profile := ProfileFor(instance)
			profiles[instance] = profile
			templates = profileObjects[profile]
		}
		if err := populate(d, templates, cfg.ObjectsPerType); err != nil {
			return nil, nil, fmt.Errorf("%w: device %d: %w", bacnet.ErrInvalidConfiguration, instance, err)
		}
	}
	return registry, profiles, nil
}
