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
	"strconv"
)

// ValueKind is the primitive carried by a present value
type ValueKind uint8

const (
	ValueReal ValueKind = iota
	ValueBoolean
	ValueUnsigned
)

func (k ValueKind) String() string {
	switch k {
	case ValueReal:
		return "real"
	case ValueBoolean:
		return "boolean"
	case ValueUnsigned:
		return "unsigned"
	default:
		return fmt.Sprintf("value-kind(%d)", k)
	}
}

// Value is a present value. Binary objects hold BACnet enumeration 0/1
// (inactive/active) as a boolean.
type Value struct {
	kind     ValueKind
	real     float32
	boolean  bool
	unsigned uint32
}

// Real creates an analog present value
func Real(v float32) Value { return Value{kind: ValueReal, real: v} }

// Boolean creates a binary present value
func Boolean(v bool) Value { return Value{kind: ValueBoolean, boolean: v} }

// Unsigned creates a multi-state present value
func Unsigned(v uint32) Value { return Value{kind: ValueUnsigned, unsigned: v} }

// Kind returns the value kind
func (v Value) Kind() ValueKind { return v.kind }

// Real returns the analog value; ok is false for other kinds
func (v Value) Real() (float32, bool) { return v.real, v.kind == ValueReal }

// Boolean returns the binary value; ok is false for other kinds
func (v Value) Boolean() (bool, bool) { return v.boolean, v.kind == ValueBoolean }

// Unsigned returns the multi-state value; ok is false for other kinds
func (v Value) Unsigned() (uint32, bool) { return v.unsigned, v.kind == ValueUnsigned }

// Interface returns the value as a plain Go value for output encoders
func (v Value) Interface() interface{} {
	switch v.kind {
	case ValueReal:
		return v.real
	case ValueBoolean:
		return v.boolean
	default:
		return v.unsigned
	}
}

func (v Value) String() string {
	switch v.kind {
	case ValueReal:
		return strconv.FormatFloat(float64(v.real), 'f', -1, 32)
	case ValueBoolean:
		if v.boolean {
			return "active"
		}
		return "inactive"
	default:
		return strconv.FormatUint(uint64(v.unsigned), 10)
	}
}

// ValueKindFor returns the present-value kind of an object type family
func ValueKindFor(t ObjectType) (ValueKind, bool) {
	switch t {
	case ObjectTypeAnalogInput, ObjectTypeAnalogOutput, ObjectTypeAnalogValue:
		return ValueReal, true
	case ObjectTypeBinaryInput, ObjectTypeBinaryOutput, ObjectTypeBinaryValue:
		return ValueBoolean, true
	case ObjectTypeMultiStateInput, ObjectTypeMultiStateOutput, ObjectTypeMultiStateValue:
		return ValueUnsigned, true
	}
	return 0, false
}

// Object is a simulated BACnet object. Its present value is fixed at
// construction.
type Object struct {
	id    ObjectIdentifier
	name  string
	value Value
}

// NewObject creates an object, checking the value kind against the type
func NewObject(objectType ObjectType, instance uint32, name string, value Value) (*Object, error) {
	want, ok := ValueKindFor(objectType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidObjectType, objectType)
	}
	if instance > MaxInstance {
		return nil, fmt.Errorf("%w: %d", ErrInvalidInstance, instance)
	}
	if value.Kind() != want {
		return nil, fmt.Errorf("%w: %s needs %s, got %s", ErrInvalidValueKind, objectType, want, value.Kind())
	}
	return &Object{
		id:    NewObjectIdentifier(objectType, instance),
		name:  name,
		value: value,
	}, nil
}

// Identifier returns the object identifier
func (o *Object) Identifier() ObjectIdentifier { return o.id }

// Name returns the object name
func (o *Object) Name() string { return o.name }

// PresentValue returns the present value
func (o *Object) PresentValue() Value { return o.value }
