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
	"errors"
)

// Sentinel errors
var (
	// Object model and registry
	ErrInvalidValueKind    = errors.New("bacnet: value kind does not match object type")
	ErrInvalidObjectType   = errors.New("bacnet: unsupported object type")
	ErrInvalidInstance     = errors.New("bacnet: instance number out of range")
	ErrDuplicateIdentifier = errors.New("bacnet: duplicate object identifier")

	// Addressing
	ErrInvalidAddress        = errors.New("bacnet: invalid address")
	ErrAddressSpaceExhausted = errors.New("bacnet: address space exhausted")
	ErrAddressInUse          = errors.New("bacnet: address in use")

	// Codec
	ErrMalformedFrame = errors.New("bacnet: malformed frame")
	// ErrUnsupportedService is informational: the frame is well formed but
	// carries something other than Who-Is or I-Am.
	ErrUnsupportedService = errors.New("bacnet: unsupported service")

	// Simulation lifecycle
	ErrAlreadyRunning       = errors.New("bacnet: simulation already running")
	ErrStopped              = errors.New("bacnet: simulation stopped")
	ErrInvalidConfiguration = errors.New("bacnet: invalid configuration")
)

// IsMalformed returns true if the error reports a structurally invalid frame
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedFrame)
}
