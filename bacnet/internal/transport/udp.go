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
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/edgeo/drivers/bacnetsim/bacnet"
)

// UDPNetwork binds real BACnet/IP endpoints. Every simulated IP must be
// assigned to a local interface (an alias is enough).
type UDPNetwork struct {
	writeTimeout time.Duration
	queueSize    int
}

// NewUDPNetwork creates a UDP network with default timeouts
func NewUDPNetwork() *UDPNetwork {
	return &UDPNetwork{
		writeTimeout: 3 * time.Second,
		queueSize:    64,
	}
}

// SetWriteTimeout sets the write timeout used when ctx has no deadline
func (n *UDPNetwork) SetWriteTimeout(d time.Duration) {
	n.writeTimeout = d
}

// Bind opens the unicast socket on addr and, unless the subnet has no
// broadcast address distinct from the host, a second socket on the directed
// broadcast address shared with the other devices of the subnet.
func (n *UDPNetwork) Bind(addr bacnet.Address) (Conn, error) {
	ulc := net.ListenConfig{Control: broadcastControl}
	upc, err := ulc.ListenPacket(context.Background(), "udp4", addr.AddrPort().String())
	if err != nil {
		if isAddrInUse(err) {
			return nil, fmt.Errorf("%w: %s", bacnet.ErrAddressInUse, addr)
		}
		return nil, fmt.Errorf("listen UDP: %w", err)
	}
	unicast := upc.(*net.UDPConn)

	bound := addr
	if local, ok := unicast.LocalAddr().(*net.UDPAddr); ok {
		bound.Port = uint16(local.Port)
	}

	c := &UDPConn{
		addr:         bound,
		unicast:      unicast,
		writeTimeout: n.writeTimeout,
		inbox:        make(chan datagram, n.queueSize),
		done:         make(chan struct{}),
	}

	if bcast := bound.Broadcast(); bcast != bound.IP {
		lc := net.ListenConfig{Control: reuseControl}
		pc, err := lc.ListenPacket(context.Background(), "udp4", netip.AddrPortFrom(bcast, bound.Port).String())
		if err != nil {
			unicast.Close()
			return nil, fmt.Errorf("listen broadcast %s: %w", bcast, err)
		}
		c.broadcast = pc.(*net.UDPConn)
	}

	c.start()
	return c, nil
}

// UDPConn is a BACnet/IP endpoint over UDP
type UDPConn struct {
	addr         bacnet.Address
	unicast      *net.UDPConn
	broadcast    *net.UDPConn
	writeTimeout time.Duration

	inbox     chan datagram
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

func (c *UDPConn) start() {
	c.wg.Add(1)
	go c.readLoop(c.unicast)
	if c.broadcast != nil {
		c.wg.Add(1)
		go c.readLoop(c.broadcast)
	}
}

func (c *UDPConn) readLoop(conn *net.UDPConn) {
	defer c.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case c.inbox <- datagram{err: fmt.Errorf("read UDP: %w", err)}:
			case <-c.done:
			}
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		src := bacnet.Address{
			IP:       from.Addr().Unmap(),
			MaskBits: c.addr.MaskBits,
			Port:     from.Port(),
		}

		select {
		case c.inbox <- datagram{data: data, from: src}:
		case <-c.done:
			return
		}
	}
}

// LocalAddress returns the bound address, with the port resolved
func (c *UDPConn) LocalAddress() bacnet.Address {
	return c.addr
}

// Broadcast sends data to the subnet's directed broadcast address
func (c *UDPConn) Broadcast(ctx context.Context, data []byte) error {
	return c.write(ctx, c.addr.BroadcastAddrPort(), data)
}

// BroadcastPort sends data to the subnet's directed broadcast address on port
func (c *UDPConn) BroadcastPort(ctx context.Context, port uint16, data []byte) error {
	return c.write(ctx, netip.AddrPortFrom(c.addr.Broadcast(), port), data)
}

// Send sends data to a specific address
func (c *UDPConn) Send(ctx context.Context, to bacnet.Address, data []byte) error {
	return c.write(ctx, to.AddrPort(), data)
}

func (c *UDPConn) write(ctx context.Context, to netip.AddrPort, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	// Set deadline from context or default timeout
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if err := c.unicast.SetWriteDeadline(deadline); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("set write deadline: %w", err)
	}

	n, err := c.unicast.WriteToUDPAddrPort(data, to)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("write UDP: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("partial write: %d of %d bytes", n, len(data))
	}
	return nil
}

// Receive returns the next datagram from either socket
func (c *UDPConn) Receive(ctx context.Context) ([]byte, bacnet.Address, error) {
	select {
	case <-c.done:
		return nil, bacnet.Address{}, ErrClosed
	default:
	}

	select {
	case dg := <-c.inbox:
		return dg.data, dg.from, dg.err
	case <-ctx.Done():
		return nil, bacnet.Address{}, ctx.Err()
	case <-c.done:
		return nil, bacnet.Address{}, ErrClosed
	}
}

// Close closes both sockets and waits for the readers to exit
func (c *UDPConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		err := c.unicast.Close()
		if c.broadcast != nil {
			err = errors.Join(err, c.broadcast.Close())
		}
		c.wg.Wait()
		c.closeErr = err
	})
	return c.closeErr
}
