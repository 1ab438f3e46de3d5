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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/edgeo/drivers/bacnetsim/bacnet"
	"github.com/edgeo/drivers/bacnetsim/bacnet/internal/transport"
)

// ErrAnnounceInProgress is returned when a Who-Is is triggered while the
// previous one from the same device is still being sent
var ErrAnnounceInProgress = errors.New("simulator: who-is already in progress")

// DiscoveryState is the state of a device's discovery engine
type DiscoveryState int32

const (
	StateIdle DiscoveryState = iota
	StateAnnouncing
)

func (s DiscoveryState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnnouncing:
		return "announcing"
	default:
		return fmt.Sprintf("state(%d)", s)
	}
}

// Observation is an I-Am heard by a simulated device
type Observation struct {
	// Receiver is the instance of the simulated device that heard the I-Am
	Receiver      uint32
	Sender        bacnet.Address
	Device        bacnet.ObjectIdentifier
	VendorID      uint16
	MaxAPDULength uint16
	Segmentation  bacnet.Segmentation
}

// ObserverFunc receives discovery observations
type ObserverFunc func(Observation)

// EngineConfig holds the collaborators of an Engine
type EngineConfig struct {
	Logger     *slog.Logger
	Metrics    *Metrics
	Observer   ObserverFunc
	UnicastIAm bool
	// BroadcastPorts lists the UDP ports broadcasts are sent to. Empty
	// means the port of the device's own endpoint.
	BroadcastPorts []uint16
}

// Engine runs the Who-Is / I-Am protocol for one device over its endpoint
type Engine struct {
	device     *bacnet.Device
	conn       transport.Conn
	local      bacnet.Address
	logger     *slog.Logger
	metrics    *Metrics
	observer   ObserverFunc
	unicastIAm bool
	ports      []uint16

	state atomic.Int32
}

// NewEngine creates a discovery engine. The engine owns conn for reading;
// closing it is left to the caller.
func NewEngine(device *bacnet.Device, conn transport.Conn, cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	local := conn.LocalAddress()

	return &Engine{
		device:     device,
		conn:       conn,
		local:      local,
		logger:     logger.With(slog.Uint64("device", uint64(device.Instance())), slog.String("address", local.String())),
		metrics:    metrics,
		observer:   cfg.Observer,
		unicastIAm: cfg.UnicastIAm,
		ports:      append([]uint16(nil), cfg.BroadcastPorts...),
	}
}

// Device returns the simulated device
func (e *Engine) Device() *bacnet.Device {
	return e.device
}

// State returns the current discovery state
func (e *Engine) State() DiscoveryState {
	return DiscoveryState(e.state.Load())
}

// TriggerWhoIs broadcasts a Who-Is addressed to every device
func (e *Engine) TriggerWhoIs(ctx context.Context) error {
	return e.WhoIs(ctx, nil)
}

// WhoIs broadcasts a Who-Is limited to rng; a nil range reaches all devices
func (e *Engine) WhoIs(ctx context.Context, rng *bacnet.InstanceRange) error {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateAnnouncing)) {
		return ErrAnnounceInProgress
	}
	defer e.state.Store(int32(StateIdle))

	frame := bacnet.NewWhoIsFrame(rng)
	data, err := bacnet.Encode(frame)
	if err != nil {
		return err
	}
	if err := e.broadcast(ctx, data); err != nil {
		e.metrics.SendFailures.Inc()
		return fmt.Errorf("device %d: broadcast who-is: %w", e.device.Instance(), err)
	}

	e.metrics.WhoIsSent.Inc()
	e.logger.Debug("who-is sent", slog.String("frame", frame.String()))
	return nil
}

// Run reads and answers frames until ctx is done or the endpoint is closed.
// Frames are handled one at a time in arrival order. Malformed frames are
// logged and dropped; only a failing endpoint ends the loop with an error.
func (e *Engine) Run(ctx context.Context) error {
	e.metrics.ActiveLoops.Inc()
	defer e.metrics.ActiveLoops.Dec()

	e.logger.Debug("receive loop started")
	defer e.logger.Debug("receive loop stopped")

	for {
		data, from, err := e.conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("device %d: receive: %w", e.device.Instance(), err)
		}
		e.handle(ctx, data, from)
	}
}

func (e *Engine) handle(ctx context.Context, data []byte, from bacnet.Address) {
	start := time.Now()
	defer func() {
		e.metrics.HandleLatency.Record(time.Since(start))
	}()

	e.metrics.FramesReceived.Inc()
	e.metrics.BytesReceived.Add(int64(len(data)))
	e.metrics.RecordActivity()

	// our own broadcasts come back on a shared segment
	if e.isLocal(from) {
		return
	}

	frame, err := bacnet.Decode(data)
	if err != nil {
		e.metrics.MalformedFrames.Inc()
		e.logger.Warn("dropping malformed frame",
			slog.String("from", from.String()),
			slog.Int("length", len(data)),
			slog.String("error", err.Error()),
		)
		return
	}

	sender := from
	if frame.Originator.IsValid() {
		sender.IP = frame.Originator.Addr()
		sender.Port = frame.Originator.Port()
		if e.isLocal(sender) {
			return
		}
	}

	switch frame.Kind {
	case bacnet.FrameWhoIs:
		e.handleWhoIs(ctx, frame.WhoIs, sender)
	case bacnet.FrameIAm:
		e.handleIAm(frame.IAm, sender)
	default:
		e.metrics.UnsupportedFrames.Inc()
		e.logger.Debug("ignoring frame",
			slog.String("from", sender.String()),
			slog.String("frame", frame.String()),
		)
	}
}

func (e *Engine) isLocal(addr bacnet.Address) bool {
	return addr.AddrPort() == e.local.AddrPort()
}

func (e *Engine) handleWhoIs(ctx context.Context, w *bacnet.WhoIs, sender bacnet.Address) {
	e.metrics.WhoIsReceived.Inc()

	if !w.Range.Contains(e.device.Instance()) {
		e.logger.Debug("who-is out of range", slog.String("from", sender.String()))
		return
	}

	frame := bacnet.NewIAmFrame(e.device.IAm())
	if e.unicastIAm {
		frame.Function = bacnet.BVLCOriginalUnicastNPDU
	}
	data, err := bacnet.Encode(frame)
	if err != nil {
		e.logger.Error("failed to encode i-am", slog.String("error", err.Error()))
		return
	}

	if e.unicastIAm {
		if err = e.conn.Send(ctx, sender, data); err == nil {
			e.countSent(data)
		}
	} else {
		err = e.broadcast(ctx, data)
	}
	if err != nil {
		e.metrics.SendFailures.Inc()
		if !errors.Is(err, transport.ErrClosed) {
			e.logger.Warn("failed to send i-am", slog.String("to", sender.String()), slog.String("error", err.Error()))
		}
		return
	}

	e.metrics.IAmSent.Inc()
	e.logger.Debug("i-am sent", slog.String("requester", sender.String()))
}

func (e *Engine) handleIAm(iam *bacnet.IAm, sender bacnet.Address) {
	e.metrics.IAmReceived.Inc()

	e.logger.Info("device discovered",
		slog.String("from", sender.String()),
		slog.String("object", iam.Device.String()),
		slog.Uint64("vendor_id", uint64(iam.VendorID)),
	)

	if e.observer != nil {
		e.observer(Observation{
			Receiver:      e.device.Instance(),
			Sender:        sender,
			Device:        iam.Device,
			VendorID:      iam.VendorID,
			MaxAPDULength: iam.MaxAPDULength,
			Segmentation:  iam.Segmentation,
		})
	}
}

// broadcast sends data to the segment once per broadcast port. Every
// datagram that leaves is counted even when another port fails.
func (e *Engine) broadcast(ctx context.Context, data []byte) error {
	if len(e.ports) == 0 {
		if err := e.conn.Broadcast(ctx, data); err != nil {
			return err
		}
		e.countSent(data)
		return nil
	}

	var errs error
	for _, port := range e.ports {
		if err := e.conn.BroadcastPort(ctx, port, data); err != nil {
			errs = errors.Join(errs, fmt.Errorf("port %d: %w", port, err))
			continue
		}
		e.countSent(data)
	}
	return errs
}

func (e *Engine) countSent(data []byte) {
	e.metrics.FramesSent.Inc()
	e.metrics.BytesSent.Add(int64(len(data)))
	e.metrics.RecordActivity()
}
