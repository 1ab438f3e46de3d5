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

package bacnet

import (
	"fmt"
	"net/netip"
)

// Device is a simulated BACnet device and the objects it owns
type Device struct {
	instance      uint32
	name          string
	vendorID      uint16
	maxAPDULength uint16
	segmentation  Segmentation
	address       Address

	objects []*Object
	index   map[ObjectIdentifier]int
}

// Instance returns the device instance number
func (d *Device) Instance() uint32 { return d.instance }

// Identifier returns the device object identifier
func (d *Device) Identifier() ObjectIdentifier {
	return NewObjectIdentifier(ObjectTypeDevice, d.instance)
}

// Name returns the device object name
func (d *Device) Name() string { return d.name }

// VendorID returns the vendor identifier
func (d *Device) VendorID() uint16 { return d.vendorID }

// MaxAPDULength returns the max APDU length accepted
func (d *Device) MaxAPDULength() uint16 { return d.maxAPDULength }

// Segmentation returns the advertised segmentation capability
func (d *Device) Segmentation() Segmentation { return d.segmentation }

// Address returns the device's BACnet/IP address
func (d *Device) Address() Address { return d.address }

// AddObject appends an object. Identifiers are unique within a device,
// including the device object itself.
func (d *Device) AddObject(obj *Object) error {
	id := obj.Identifier()
	if id == d.Identifier() {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, id)
	}
	if _, exists := d.index[id]; exists {
		return fmt.Errorf("%w: %s on device %d", ErrDuplicateIdentifier, id, d.instance)
	}
	d.index[id] = len(d.objects)
	d.objects = append(d.objects, obj)
	return nil
}

// Object looks up an object by identifier
func (d *Device) Object(id ObjectIdentifier) (*Object, bool) {
	i, ok := d.index[id]
	if !ok {
		return nil, false
	}
	return d.objects[i], true
}

// Objects returns the objects in insertion order
func (d *Device) Objects() []*Object {
	out := make([]*Object, len(d.objects))
	copy(out, d.objects)
	return out
}

// ObjectList returns the device's object-list: the device object first,
// then every object in insertion order.
func (d *Device) ObjectList() []ObjectIdentifier {
	list := make([]ObjectIdentifier, 0, len(d.objects)+1)
	list = append(list, d.Identifier())
	for _, obj := range d.objects {
		list = append(list, obj.Identifier())
	}
	return list
}

// IAm returns the device's I-Am parameters
func (d *Device) IAm() IAm {
	return IAm{
		Device:        d.Identifier(),
		MaxAPDULength: d.maxAPDULength,
		Segmentation:  d.segmentation,
		VendorID:      d.vendorID,
	}
}

// Registry holds the devices of one simulation run and enforces unique
// instances and addresses. It is not safe for concurrent use; it is filled
// before any device goes on the wire.
type Registry struct {
	devices    []*Device
	byInstance map[uint32]*Device
	byAddress  map[netip.AddrPort]*Device
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byInstance: make(map[uint32]*Device),
		byAddress:  make(map[netip.AddrPort]*Device),
	}
}

// NewDevice creates a device and registers it
func (r *Registry) NewDevice(instance uint32, name string, vendorID, maxAPDULength uint16, segmentation Segmentation, addr Address) (*Device, error) {
	if instance >= MaxInstance {
		// 4194303 is reserved as the "unconfigured" device instance
		return nil, fmt.Errorf("%w: device instance %d", ErrInvalidInstance, instance)
	}
	if err := addr.validate(); err != nil {
		return nil, err
	}
	if addr.Port == 0 || !addr.IsHostAddress() {
		return nil, fmt.Errorf("%w: %s is not a host endpoint", ErrInvalidAddress, addr)
	}
	if other, exists := r.byAddress[addr.AddrPort()]; exists {
		return nil, fmt.Errorf("%w: %s already used by device %d", ErrInvalidAddress, addr, other.instance)
	}
	if _, exists := r.byInstance[instance]; exists {
		return nil, fmt.Errorf("%w: device instance %d", ErrDuplicateIdentifier, instance)
	}

	d := &Device{
		instance:      instance,
		name:          name,
		vendorID:      vendorID,
		maxAPDULength: maxAPDULength,
		segmentation:  segmentation,
		address:       addr,
		index:         make(map[ObjectIdentifier]int),
	}
	r.devices = append(r.devices, d)
	r.byInstance[instance] = d
	r.byAddress[addr.AddrPort()] = d
	return d, nil
}

// Devices returns the registered devices in registration order
func (r *Registry) Devices() []*Device {
	out := make([]*Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Lookup finds a device by instance number
func (r *Registry) Lookup(instance uint32) (*Device, bool) {
	d, ok := r.byInstance[instance]
	return d, ok
}

// Len returns the number of registered devices
func (r *Registry) Len() int { return len(r.devices) }
