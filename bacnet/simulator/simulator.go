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

// Package simulator runs a segment of simulated BACnet/IP devices that take
// part in Who-Is / I-Am discovery.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgeo/drivers/bacnetsim/bacnet"
	"github.com/edgeo/drivers/bacnetsim/bacnet/internal/transport"
)

type runState int

const (
	stateIdle runState = iota
	stateRunning
	stateStopped
)

// Controller owns the devices, endpoints and engines of one simulation
type Controller struct {
	cfg      Config
	opts     *simOptions
	logger   *slog.Logger
	registry *bacnet.Registry
	profiles map[uint32]DeviceProfile
	ports    []uint16
	metrics  *Metrics

	mu      sync.Mutex
	state   runState
	conns   []transport.Conn
	engines []*Engine
	cancel  context.CancelFunc
	group   *errgroup.Group
	done    chan struct{}
	stopErr error
}

// BuildSimulation validates cfg and creates every device with its address
// and objects. Nothing is bound until Start.
func BuildSimulation(cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	registry, profiles, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:      cfg,
		opts:     o,
		logger:   o.logger.With(slog.String("run_id", o.runID)),
		registry: registry,
		profiles: profiles,
		ports:    broadcastPorts(cfg.AddressPlan, registry.Devices()),
		metrics:  NewMetrics(),
		done:     make(chan struct{}),
	}

	c.logger.Info("simulation built",
		slog.Int("devices", registry.Len()),
		slog.Uint64("objects_per_type", uint64(cfg.ObjectsPerType)),
		slog.String("base_address", cfg.BaseAddress.String()),
		slog.String("address_plan", cfg.AddressPlan.String()),
		slog.Bool("profiles", cfg.Profiles),
	)
	return c, nil
}

// broadcastPorts returns the distinct device ports when devices do not all
// share one port, nil otherwise
func broadcastPorts(plan AddressPlan, devices []*bacnet.Device) []uint16 {
	if plan == PlanHosts {
		return nil
	}
	ports := make([]uint16, 0, len(devices))
	for _, d := range devices {
		ports = append(ports, d.Address().Port)
	}
	slices.Sort(ports)
	ports = slices.Compact(ports)
	if len(ports) < 2 {
		return nil
	}
	return ports
}

// ID returns the run identifier
func (c *Controller) ID() string {
	return c.opts.runID
}

// Config returns the configuration the simulation was built from
func (c *Controller) Config() Config {
	return c.cfg
}

// Devices returns the simulated devices in registration order
func (c *Controller) Devices() []*bacnet.Device {
	return c.registry.Devices()
}

// Profile returns the profile of a device. It is empty when the simulation
// runs without profiles or the device is unknown.
func (c *Controller) Profile(instance uint32) DeviceProfile {
	return c.profiles[instance]
}

// Metrics returns the traffic metrics of all devices
func (c *Controller) Metrics() *Metrics {
	return c.metrics
}

// Engine returns the running engine of a device
func (c *Controller) Engine(instance uint32) (*Engine, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.engines {
		if e.Device().Instance() == instance {
			return e, true
		}
	}
	return nil, false
}

// Start binds an endpoint per device, starts every receive loop and
// schedules the startup Who-Is. If any bind fails, the endpoints already
// bound are released and the simulation stays startable. The loops run
// until Stop or until ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateRunning:
		return bacnet.ErrAlreadyRunning
	case stateStopped:
		return bacnet.ErrStopped
	}

	devices := c.registry.Devices()
	conns := make([]transport.Conn, 0, len(devices))
	for _, d := range devices {
		conn, err := c.opts.network.Bind(d.Address())
		if err != nil {
			for _, bound := range conns {
				bound.Close()
			}
			return fmt.Errorf("device %d: %w", d.Instance(), err)
		}
		conns = append(conns, conn)
	}

	runCtx, cancel := context.WithCancel(ctx)
	group := new(errgroup.Group)

	engines := make([]*Engine, len(devices))
	for i, d := range devices {
		e := NewEngine(d, conns[i], EngineConfig{
			Logger:         c.logger,
			Metrics:        c.metrics,
			Observer:       c.opts.observer,
			UnicastIAm:     c.cfg.UnicastIAm,
			BroadcastPorts: c.ports,
		})
		engines[i] = e
		group.Go(func() error {
			return e.Run(runCtx)
		})
	}
	group.Go(func() error {
		c.announceAfter(runCtx, engines)
		return nil
	})

	c.conns = conns
	c.engines = engines
	c.cancel = cancel
	c.group = group
	c.state = stateRunning

	c.logger.Info("simulation started",
		slog.Int("devices", len(devices)),
		slog.Duration("startup_delay", c.cfg.StartupDelay),
	)
	return nil
}

// announceAfter is the scheduled startup broadcast. It is dropped if the
// simulation stops before the delay elapses.
func (c *Controller) announceAfter(ctx context.Context, engines []*Engine) {
	timer := time.NewTimer(c.cfg.StartupDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.logger.Debug("startup who-is cancelled")
		return
	case <-timer.C:
	}

	c.logger.Info("sending who-is broadcast from all devices")
	for _, e := range engines {
		if err := e.TriggerWhoIs(ctx); err != nil {
			c.logger.Warn("who-is broadcast failed",
				slog.Uint64("device", uint64(e.Device().Instance())),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Stop cancels the receive loops and the pending startup broadcast, closes
// every endpoint and waits for all loops to exit. It is safe to call from
// any goroutine and more than once; later calls wait for the first one and
// return its result. A stopped simulation cannot be restarted.
func (c *Controller) Stop() error {
	c.mu.Lock()
	switch c.state {
	case stateIdle:
		c.state = stateStopped
		close(c.done)
		c.mu.Unlock()
		return nil
	case stateStopped:
		c.mu.Unlock()
		<-c.done
		return c.stopErr
	}

	c.state = stateStopped
	cancel, conns, group := c.cancel, c.conns, c.group
	c.mu.Unlock()

	cancel()
	var closeErr error
	for _, conn := range conns {
		closeErr = errors.Join(closeErr, conn.Close())
	}
	loopErr := group.Wait()

	c.stopErr = errors.Join(loopErr, closeErr)
	close(c.done)

	c.logger.Info("simulation stopped")
	return c.stopErr
}

// Done is closed once the simulation has fully stopped
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Run starts the simulation and stops it when ctx is done or Stop is
// called elsewhere.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-c.done:
	}
	return c.Stop()
}
