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

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeo/drivers/bacnetsim/bacnet"
	"github.com/edgeo/drivers/bacnetsim/bacnet/simulator"
)

var devicesShowObjects bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices a simulation would create",
	Long: `Devices builds the simulation from the current configuration and prints
every device with its address and objects. No sockets are opened.

Examples:
  # Table of devices
  edgeo-bacnet-sim devices

  # Devices with their objects
  edgeo-bacnet-sim devices --objects

  # Full listing as YAML
  edgeo-bacnet-sim devices -n 5 -o yaml

  # Typed devices sharing one IP on consecutive ports
  edgeo-bacnet-sim devices -n 13 --profiles --address-plan ports -b 127.0.0.1/8:47808`,

	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().BoolVar(&devicesShowObjects, "objects", false, "Include objects in table output")
}

// DeviceView is the printable form of a simulated device
type DeviceView struct {
	Instance      uint32       `json:"instance" yaml:"instance"`
	Name          string       `json:"name" yaml:"name"`
	Type          string       `json:"type,omitempty" yaml:"type,omitempty"`
	Address       string       `json:"address" yaml:"address"`
	VendorID      uint16       `json:"vendor_id" yaml:"vendor_id"`
	MaxAPDULength uint16       `json:"max_apdu" yaml:"max_apdu"`
	Segmentation  string       `json:"segmentation" yaml:"segmentation"`
	Objects       []ObjectView `json:"objects" yaml:"objects"`
}

// ObjectView is the printable form of a device object
type ObjectView struct {
	Object       string      `json:"object" yaml:"object"`
	Name         string      `json:"name" yaml:"name"`
	PresentValue interface{} `json:"present_value" yaml:"present_value"`
}

func newDeviceView(d *bacnet.Device, profile simulator.DeviceProfile) DeviceView {
	view := DeviceView{
		Instance:      d.Instance(),
		Name:          d.Name(),
		Type:          string(profile),
		Address:       d.Address().String(),
		VendorID:      d.VendorID(),
		MaxAPDULength: d.MaxAPDULength(),
		Segmentation:  d.Segmentation().String(),
	}
	for _, obj := range d.Objects() {
		view.Objects = append(view.Objects, ObjectView{
			Object:       obj.Identifier().String(),
			Name:         obj.Name(),
			PresentValue: obj.PresentValue().Interface(),
		})
	}
	return view
}

func runDevices(cmd *cobra.Command, args []string) error {
	format, err := ParseOutputFormat(viper.GetString("output"))
	if err != nil {
		return err
	}

	sim, err := buildSimulation()
	if err != nil {
		return err
	}

	views := make([]DeviceView, 0, len(sim.Devices()))
	for _, d := range sim.Devices() {
		views = append(views, newDeviceView(d, sim.Profile(d.Instance())))
	}

	out := NewFormatter(format)
	if format != FormatTable {
		return out.PrintStructured(views)
	}

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		typ := v.Type
		if typ == "" {
			typ = "-"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", v.Instance),
			v.Name,
			typ,
			v.Address,
			fmt.Sprintf("%d", v.VendorID),
			v.Segmentation,
			fmt.Sprintf("%d", v.MaxAPDULength),
			fmt.Sprintf("%d", len(v.Objects)),
		})
	}
	out.PrintTable([]string{"DEVICE ID", "NAME", "TYPE", "ADDRESS", "VENDOR", "SEGMENTATION", "MAX APDU", "OBJECTS"}, rows)

	if devicesShowObjects {
		for _, v := range views {
			out.Printf("\nDevice %d (%s)\n", v.Instance, v.Name)
			objRows := make([][]string, 0, len(v.Objects))
			for _, o := range v.Objects {
				objRows = append(objRows, []string{o.Object, o.Name, fmt.Sprintf("%v", o.PresentValue)})
			}
			out.PrintTable([]string{"OBJECT", "NAME", "PRESENT VALUE"}, objRows)
		}
	}

	out.Printf("\n%d device(s)\n", len(views))
	return nil
}
