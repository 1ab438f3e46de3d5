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
	"net/netip"
	"strings"
	"time"

	"github.com/edgeo/drivers/bacnetsim/bacnet"
)

// Defaults for a simulation run
const (
	DefaultDeviceCount    = 3
	DefaultObjectsPerType = 2
	DefaultVendorID       = 15
	DefaultFirstInstance  = 1234
	DefaultMaxAPDULength  = 1024
	DefaultStartupDelay   = 2 * time.Second
	DefaultNamePrefix     = "BACnetStimDevice"
)

// minAPDULength is the smallest max-APDU a device may advertise
const minAPDULength = 50

// AddressPlan selects how device addresses are derived from the base address
type AddressPlan int

const (
	// PlanHosts raises the last octet of the base IP by the device index
	PlanHosts AddressPlan = iota
	// PlanPorts keeps the base IP and raises the UDP port by the device index
	PlanPorts
	// PlanHostsAndPorts raises both the last octet and the port
	PlanHostsAndPorts
)

func (p AddressPlan) String() string {
	switch p {
	case PlanHosts:
		return "hosts"
	case PlanPorts:
		return "ports"
	case PlanHostsAndPorts:
		return "hosts+ports"
	default:
		return fmt.Sprintf("address-plan(%d)", int(p))
	}
}

// ParseAddressPlan parses "hosts", "ports" or "hosts+ports"
func ParseAddressPlan(s string) (AddressPlan, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hosts", "":
		return PlanHosts, true
	case "ports":
		return PlanPorts, true
	case "hosts+ports", "both":
		return PlanHostsAndPorts, true
	}
	return 0, false
}

// allocate returns the address of the device at position index
func (p AddressPlan) allocate(base bacnet.Address, index uint) (bacnet.Address, error) {
	switch p {
	case PlanPorts:
		return bacnet.AllocatePort(base, index)
	case PlanHostsAndPorts:
		addr, err := bacnet.Allocate(base, index)
		if err != nil {
			return bacnet.Address{}, err
		}
		return bacnet.AllocatePort(addr, index)
	default:
		return bacnet.Allocate(base, index)
	}
}

// Config describes the devices of one simulation
type Config struct {
	// DeviceCount is the number of simulated devices
	DeviceCount uint
	// ObjectsPerType is how many objects of each of the nine types every
	// device carries
	ObjectsPerType uint
	// BaseAddress is the address of the first device; device i gets the
	// last octet incremented by i
	BaseAddress bacnet.Address
	VendorID    uint16
	// StartupDelay is the wait between Start and the Who-Is broadcast
	StartupDelay time.Duration

	// FirstInstance is the instance of the first device; the others follow
	FirstInstance uint32
	MaxAPDULength uint16
	Segmentation  bacnet.Segmentation
	NamePrefix    string
	// UnicastIAm answers Who-Is with a unicast I-Am to the requester
	// instead of a broadcast
	UnicastIAm bool

	// AddressPlan selects how device addresses follow the base address
	AddressPlan AddressPlan
	// Profiles gives every device an equipment profile (see ProfileFor)
	// with a matching object set instead of the nine standard families
	Profiles bool
}

// DefaultConfig returns the configuration of the stock three-device segment
func DefaultConfig() Config {
	return Config{
		DeviceCount:    DefaultDeviceCount,
		ObjectsPerType: DefaultObjectsPerType,
		BaseAddress:    bacnet.NewAddress(netip.MustParseAddr("192.168.1.10"), bacnet.DefaultMaskBits, bacnet.DefaultPort),
		VendorID:       DefaultVendorID,
		StartupDelay:   DefaultStartupDelay,
		FirstInstance:  DefaultFirstInstance,
		MaxAPDULength:  DefaultMaxAPDULength,
		Segmentation:   bacnet.SegmentationBoth,
		NamePrefix:     DefaultNamePrefix,
	}
}

// Validate checks the configuration. Every error wraps
// bacnet.ErrInvalidConfiguration.
func (c Config) Validate() error {
	if c.DeviceCount == 0 {
		return fmt.Errorf("%w: device count must be at least 1", bacnet.ErrInvalidConfiguration)
	}
	if c.StartupDelay < 0 {
		return fmt.Errorf("%w: negative startup delay %s", bacnet.ErrInvalidConfiguration, c.StartupDelay)
	}
	if c.MaxAPDULength < minAPDULength || c.MaxAPDULength > bacnet.MaxAPDULength {
		return fmt.Errorf("%w: max APDU length %d not in [%d, %d]",
			bacnet.ErrInvalidConfiguration, c.MaxAPDULength, minAPDULength, bacnet.MaxAPDULength)
	}
	if c.Segmentation > bacnet.SegmentationNone {
		return fmt.Errorf("%w: %s", bacnet.ErrInvalidConfiguration, c.Segmentation)
	}
	if c.AddressPlan < PlanHosts || c.AddressPlan > PlanHostsAndPorts {
		return fmt.Errorf("%w: %s", bacnet.ErrInvalidConfiguration, c.AddressPlan)
	}
	if uint64(c.FirstInstance)+uint64(c.DeviceCount) > bacnet.MaxInstance {
		return fmt.Errorf("%w: %w: device instances %d..%d",
			bacnet.ErrInvalidConfiguration, bacnet.ErrInvalidInstance,
			c.FirstInstance, uint64(c.FirstInstance)+uint64(c.DeviceCount)-1)
	}
	if c.ObjectsPerType > bacnet.MaxInstance+1 {
		return fmt.Errorf("%w: %w: %d objects per type",
			bacnet.ErrInvalidConfiguration, bacnet.ErrInvalidInstance, c.ObjectsPerType)
	}
	if _, err := bacnet.Allocate(c.BaseAddress, 0); err != nil {
		return fmt.Errorf("%w: base address: %w", bacnet.ErrInvalidConfiguration, err)
	}
	if c.BaseAddress.Port == 0 {
		return fmt.Errorf("%w: base address needs a UDP port", bacnet.ErrInvalidConfiguration)
	}
	return nil
}
