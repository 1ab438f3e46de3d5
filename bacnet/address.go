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
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// DefaultMaskBits is the subnet used when an address omits its prefix length
const DefaultMaskBits = 24

// Address represents a BACnet/IP address: network number, IPv4 host,
// subnet mask length and UDP port.
type Address struct {
	Net      uint16
	IP       netip.Addr
	MaskBits int
	Port     uint16
}

// NewAddress creates a local-network Address
func NewAddress(ip netip.Addr, maskBits int, port uint16) Address {
	return Address{
		IP:       ip.Unmap(),
		MaskBits: maskBits,
		Port:     port,
	}
}

// ParseAddress parses "ip[/bits][:port]". Missing parts default to /24
// and the standard BACnet/IP port.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	port := uint16(DefaultPort)
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		p, err := strconv.ParseUint(s[i+1:], 10, 16)
		if err != nil {
			return Address{}, fmt.Errorf("%w: port %q", ErrInvalidAddress, s[i+1:])
		}
		port = uint16(p)
		s = s[:i]
	}

	bits := DefaultMaskBits
	if i := strings.IndexByte(s, '/'); i >= 0 {
		b, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return Address{}, fmt.Errorf("%w: prefix %q", ErrInvalidAddress, s[i+1:])
		}
		bits = b
		s = s[:i]
	}

	ip, err := netip.ParseAddr(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	addr := NewAddress(ip, bits, port)
	if err := addr.validate(); err != nil {
		return Address{}, err
	}
	return addr, nil
}

func (a Address) validate() error {
	if !a.IP.IsValid() || !a.IP.Is4() {
		return fmt.Errorf("%w: %s is not an IPv4 address", ErrInvalidAddress, a.IP)
	}
	if a.MaskBits < 0 || a.MaskBits > 32 {
		return fmt.Errorf("%w: prefix length %d", ErrInvalidAddress, a.MaskBits)
	}
	return nil
}

// AddrPort returns the IP and port as a netip.AddrPort
func (a Address) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(a.IP, a.Port)
}

// Prefix returns the subnet the address belongs to
func (a Address) Prefix() netip.Prefix {
	p, err := a.IP.Prefix(a.MaskBits)
	if err != nil {
		return netip.Prefix{}
	}
	return p
}

// Broadcast returns the directed broadcast address of the subnet
func (a Address) Broadcast() netip.Addr {
	if !a.IP.Is4() {
		return netip.Addr{}
	}
	b := a.IP.As4()
	v := binary.BigEndian.Uint32(b[:])
	v |= ^uint32(0) >> uint(a.MaskBits)
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// BroadcastAddrPort returns the broadcast destination for this endpoint
func (a Address) BroadcastAddrPort() netip.AddrPort {
	return netip.AddrPortFrom(a.Broadcast(), a.Port)
}

// IsHostAddress reports whether the address names a host rather than the
// subnet itself or its broadcast address.
func (a Address) IsHostAddress() bool {
	if a.MaskBits >= 31 {
		return true
	}
	network := a.Prefix().Addr()
	return a.IP != network && a.IP != a.Broadcast()
}

// Bytes returns the 6-octet B/IP MAC address (IP followed by port)
func (a Address) Bytes() []byte {
	buf := make([]byte, 6)
	ip := a.IP.As4()
	copy(buf, ip[:])
	binary.BigEndian.PutUint16(buf[4:], a.Port)
	return buf
}

func (a Address) String() string {
	if a.Net != 0 {
		return fmt.Sprintf("%d:%s", a.Net, a.AddrPort())
	}
	return a.AddrPort().String()
}

// Allocate derives the address of the device at position index by adding
// index to the last octet of base. Port, mask and network number are kept.
// It fails with ErrAddressSpaceExhausted when the octet would pass 255.
func Allocate(base Address, index uint) (Address, error) {
	if err := base.validate(); err != nil {
		return Address{}, err
	}
	octets := base.IP.As4()
	last := uint(octets[3]) + index
	if index > 255 || last > 255 {
		return Address{}, fmt.Errorf("%w: %s + %d", ErrAddressSpaceExhausted, base.IP, index)
	}
	octets[3] = byte(last)

	addr := base
	addr.IP = netip.AddrFrom4(octets)
	return addr, nil
}

// AllocatePort derives the address of the device at position index by adding
// index to the UDP port of base. IP, mask and network number are kept.
func AllocatePort(base Address, index uint) (Address, error) {
	if err := base.validate(); err != nil {
		return Address{}, err
	}
	port := uint(base.Port) + index
	if index > 0xFFFF || port > 0xFFFF {
		return Address{}, fmt.Errorf("%w: port %d + %d", ErrAddressSpaceExhausted, base.Port, index)
	}

	addr := base
	addr.Port = uint16(port)
	return addr, nil
}
