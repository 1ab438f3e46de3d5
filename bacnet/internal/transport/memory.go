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

package transport

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/edgeo/drivers/bacnetsim/bacnet"
)

// Link is an in-process BACnet/IP segment. Datagrams behave like UDP on a
// LAN: broadcasts reach every endpoint of the sender's subnet bound to the
// target port (the sender included when it is bound there), unicasts reach
// one exact ip:port, and anything that does not fit a receiver's queue is
// dropped.
type Link struct {
	mu        sync.RWMutex
	endpoints map[netip.AddrPort]*memConn
	queueSize int
	dropped   atomic.Int64
}

// NewLink creates an empty virtual link
func NewLink() *Link {
	return &Link{
		endpoints: make(map[netip.AddrPort]*memConn),
		queueSize: 64,
	}
}

// Bind attaches an endpoint to the link
func (l *Link) Bind(addr bacnet.Address) (Conn, error) {
	if !addr.IP.Is4() || addr.Port == 0 {
		return nil, fmt.Errorf("%w: %s", bacnet.ErrInvalidAddress, addr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := addr.AddrPort()
	if _, exists := l.endpoints[key]; exists {
		return nil, fmt.Errorf("%w: %s", bacnet.ErrAddressInUse, addr)
	}
	c := &memConn{
		link:  l,
		addr:  addr,
		inbox: make(chan datagram, l.queueSize),
		done:  make(chan struct{}),
	}
	l.endpoints[key] = c
	return c, nil
}

// Len returns the number of bound endpoints
func (l *Link) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.endpoints)
}

// Dropped returns how many datagrams were discarded on full queues
func (l *Link) Dropped() int64 {
	return l.dropped.Load()
}

func (l *Link) unbind(c *memConn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.endpoints[c.addr.AddrPort()] == c {
		delete(l.endpoints, c.addr.AddrPort())
	}
}

func (l *Link) broadcast(from bacnet.Address, port uint16, data []byte) {
	subnet := from.Prefix()

	l.mu.RLock()
	defer l.mu.RUnlock()
	for key, c := range l.endpoints {
		if key.Port() == port && subnet.Contains(key.Addr()) {
			l.push(c, from, data)
		}
	}
}

func (l *Link) unicast(from bacnet.Address, to netip.AddrPort, data []byte) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if c, ok := l.endpoints[to]; ok {
		l.push(c, from, data)
	}
}

func (l *Link) push(c *memConn, from bacnet.Address, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	src := from
	src.MaskBits = c.addr.MaskBits

	select {
	case c.inbox <- datagram{data: buf, from: src}:
	default:
		l.dropped.Add(1)
	}
}

type memConn struct {
	link  *Link
	addr  bacnet.Address
	inbox chan datagram
	done  chan struct{}
	once  sync.Once
}

func (c *memConn) LocalAddress() bacnet.Address {
	return c.addr
}

func (c *memConn) Broadcast(ctx context.Context, data []byte) error {
	return c.BroadcastPort(ctx, c.addr.Port, data)
}

func (c *memConn) BroadcastPort(ctx context.Context, port uint16, data []byte) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.link.broadcast(c.addr, port, data)
	return nil
}

func (c *memConn) Send(ctx context.Context, to bacnet.Address, data []byte) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.link.unicast(c.addr, to.AddrPort(), data)
	return nil
}

func (c *memConn) check(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return ctx.Err()
}

func (c *memConn) Receive(ctx context.Context) ([]byte, bacnet.Address, error) {
	select {
	case <-c.done:
		return nil, bacnet.Address{}, ErrClosed
	default:
	}

	select {
	case dg := <-c.inbox:
		return dg.data, dg.from, nil
	case <-ctx.Done():
		return nil, bacnet.Address{}, ctx.Err()
	case <-c.done:
		return nil, bacnet.Address{}, ErrClosed
	}
}

func (c *memConn) Close() error {
	c.once.Do(func() {
		c.link.unbind(c)
		close(c.done)
	})
	return nil
}
