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
	"log/slog"

	"github.com/google/uuid"

	"github.com/edgeo/drivers/bacnetsim/bacnet/internal/transport"
)

// simOptions holds the runtime collaborators of a simulation
type simOptions struct {
	// Link layer
	network transport.Network

	// Discovery output
	observer ObserverFunc

	// Identification
	runID string

	// Logging
	logger *slog.Logger
}

// defaultOptions returns the default simulation options
func defaultOptions() *simOptions {
	return &simOptions{
		network: transport.NewUDPNetwork(),
		logger:  slog.Default(),
		runID:   uuid.NewString(),
	}
}

// Option is a functional option for configuring the simulation
type Option func(*simOptions)

// WithLogger sets the logger for the controller and its engines
func WithLogger(logger *slog.Logger) Option {
	return func(o *simOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver sets the sink that receives every I-Am heard by a simulated
// device. It is called from the receive loops and must be safe for
// concurrent use.
func WithObserver(fn ObserverFunc) Option {
	return func(o *simOptions) {
		o.observer = fn
	}
}

// WithNetwork sets the link the devices bind to
func WithNetwork(network transport.Network) Option {
	return func(o *simOptions) {
		if network != nil {
			o.network = network
		}
	}
}

// WithVirtualLink runs every device on a private in-memory segment instead
// of real UDP sockets
func WithVirtualLink() Option {
	return func(o *simOptions) {
		o.network = transport.NewLink()
	}
}

// WithRunID overrides the generated run identifier attached to log lines
func WithRunID(id string) Option {
	return func(o *simOptions) {
		if id != "" {
			o.runID = id
		}
	}
}
