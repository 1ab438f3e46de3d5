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

// Package transport provides the link layer for simulated BACnet/IP devices
package transport

import (
	"context"
	"errors"

	"github.com/edgeo/drivers/bacnetsim/bacnet"
)

// ErrClosed is returned by operations on a closed endpoint
var ErrClosed = errors.New("transport: endpoint closed")

// maxDatagram is large enough for any BACnet/IP frame (MTU sized)
const maxDatagram = 1500

// Network binds endpoints on a link
type Network interface {
	// Bind opens an endpoint for addr. It fails with bacnet.ErrAddressInUse
	// when the ip:port is already taken.
	Bind(addr bacnet.Address) (Conn, error)
}

// Conn is one bound BACnet/IP endpoint. Receive is meant for a single
// consumer; Broadcast and Send may be called concurrently with it.
type Conn interface {
	// LocalAddress returns the address the endpoint was bound to
	LocalAddress() bacnet.Address

	// Broadcast sends data to the directed broadcast address of the
	// endpoint's subnet, on the endpoint's own port
	Broadcast(ctx context.Context, data []byte) error

	// BroadcastPort is Broadcast to another UDP port of the same subnet
	BroadcastPort(ctx context.Context, port uint16, data []byte) error

	// Send sends data to a single endpoint
	Send(ctx context.Context, to bacnet.Address, data []byte) error

	// Receive blocks until a datagram arrives, ctx is done or the endpoint
	// is closed, in which case it returns ErrClosed.
	Receive(ctx context.Context) ([]byte, bacnet.Address, error)

	// Close releases the endpoint. It is idempotent.
	Close() error
}

type datagram struct {
	data []byte
	from bacnet.Address
	err  error
}
