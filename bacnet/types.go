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

// Package bacnet provides the BACnet/IP object model and the Who-Is / I-Am
// frame codec used to simulate field devices.
package bacnet

import (
	"fmt"
	"strings"
)

// DefaultPort is the standard BACnet/IP UDP port
const DefaultPort = 47808

// MaxAPDULength is the maximum APDU length for BACnet/IP
const MaxAPDULength = 1476

// MaxInstance is the largest object instance number (22 bits)
const MaxInstance = 0x3FFFFF

// BVLC Types (BACnet Virtual Link Control)
type BVLCType uint8

const (
	BVLCTypeBACnetIP BVLCType = 0x81
)

// BVLC Functions
type BVLCFunction uint8

const (
	BVLCResult                            BVLCFunction = 0x00
	BVLCWriteBroadcastDistributionTable   BVLCFunction = 0x01
	BVLCReadBroadcastDistributionTable    BVLCFunction = 0x02
	BVLCReadBroadcastDistributionTableAck BVLCFunction = 0x03
	BVLCForwardedNPDU                     BVLCFunction = 0x04
	BVLCRegisterForeignDevice             BVLCFunction = 0x05
	BVLCReadForeignDeviceTable            BVLCFunction = 0x06
	BVLCReadForeignDeviceTableAck         BVLCFunction = 0x07
	BVLCDeleteForeignDeviceTableEntry     BVLCFunction = 0x08
	BVLCDistributeBroadcastToNetwork      BVLCFunction = 0x09
	BVLCOriginalUnicastNPDU               BVLCFunction = 0x0A
	BVLCOriginalBroadcastNPDU             BVLCFunction = 0x0B
	BVLCSecureBVLL                        BVLCFunction = 0x0C
)

func (f BVLCFunction) String() string {
	switch f {
	case BVLCResult:
		return "BVLC-Result"
	case BVLCForwardedNPDU:
		return "Forwarded-NPDU"
	case BVLCDistributeBroadcastToNetwork:
		return "Distribute-Broadcast-To-Network"
	case BVLCOriginalUnicastNPDU:
		return "Original-Unicast-NPDU"
	case BVLCOriginalBroadcastNPDU:
		return "Original-Broadcast-NPDU"
	default:
		return fmt.Sprintf("bvlc-function(0x%02x)", uint8(f))
	}
}

// carriesNPDU reports whether a BVLC function encapsulates an NPDU
func (f BVLCFunction) carriesNPDU() bool {
	switch f {
	case BVLCForwardedNPDU, BVLCDistributeBroadcastToNetwork,
		BVLCOriginalUnicastNPDU, BVLCOriginalBroadcastNPDU:
		return true
	}
	return false
}

// NPDU Network Layer Protocol Control Information
type NPDUControl uint8

const (
	NPDUControlNetworkLayerMessage NPDUControl = 0x80
	NPDUControlDestSpecifier       NPDUControl = 0x20
	NPDUControlSourceSpecifier     NPDUControl = 0x08
	NPDUControlExpectingReply      NPDUControl = 0x04
	NPDUControlPriorityNormal      NPDUControl = 0x00
)

// NPDUVersion is the only BACnet protocol version on the wire
const NPDUVersion = 0x01

// PDU Types (Application Layer)
type PDUType uint8

const (
	PDUTypeConfirmedRequest   PDUType = 0x00
	PDUTypeUnconfirmedRequest PDUType = 0x10
	PDUTypeSimpleAck          PDUType = 0x20
	PDUTypeComplexAck         PDUType = 0x30
	PDUTypeSegmentAck         PDUType = 0x40
	PDUTypeError              PDUType = 0x50
	PDUTypeReject             PDUType = 0x60
	PDUTypeAbort              PDUType = 0x70
)

// Unconfirmed Service Choices
type UnconfirmedServiceChoice uint8

const (
	ServiceIAm                          UnconfirmedServiceChoice = 0
	ServiceIHave                        UnconfirmedServiceChoice = 1
	ServiceUnconfirmedCOVNotification   UnconfirmedServiceChoice = 2
	ServiceUnconfirmedEventNotification UnconfirmedServiceChoice = 3
	ServiceUnconfirmedPrivateTransfer   UnconfirmedServiceChoice = 4
	ServiceUnconfirmedTextMessage       UnconfirmedServiceChoice = 5
	ServiceTimeSynchronization          UnconfirmedServiceChoice = 6
	ServiceWhoHas                       UnconfirmedServiceChoice = 7
	ServiceWhoIs                        UnconfirmedServiceChoice = 8
	ServiceUTCTimeSynchronization       UnconfirmedServiceChoice = 9
	ServiceWriteGroup                   UnconfirmedServiceChoice = 10
)

func (s UnconfirmedServiceChoice) String() string {
	names := map[UnconfirmedServiceChoice]string{
		ServiceIAm:                          "I-Am",
		ServiceIHave:                        "I-Have",
		ServiceUnconfirmedCOVNotification:   "UnconfirmedCOVNotification",
		ServiceUnconfirmedEventNotification: "UnconfirmedEventNotification",
		ServiceUnconfirmedPrivateTransfer:   "UnconfirmedPrivateTransfer",
		ServiceUnconfirmedTextMessage:       "UnconfirmedTextMessage",
		ServiceTimeSynchronization:          "TimeSynchronization",
		ServiceWhoHas:                       "Who-Has",
		ServiceWhoIs:                        "Who-Is",
		ServiceUTCTimeSynchronization:       "UTCTimeSynchronization",
		ServiceWriteGroup:                   "WriteGroup",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", s)
}

// ObjectType represents BACnet object types
type ObjectType uint16

const (
	ObjectTypeAnalogInput      ObjectType = 0
	ObjectTypeAnalogOutput     ObjectType = 1
	ObjectTypeAnalogValue      ObjectType = 2
	ObjectTypeBinaryInput      ObjectType = 3
	ObjectTypeBinaryOutput     ObjectType = 4
	ObjectTypeBinaryValue      ObjectType = 5
	ObjectTypeDevice           ObjectType = 8
	ObjectTypeMultiStateInput  ObjectType = 13
	ObjectTypeMultiStateOutput ObjectType = 14
	ObjectTypeMultiStateValue  ObjectType = 19
)

var objectTypeNames = map[ObjectType]string{
	ObjectTypeAnalogInput:      "analog-input",
	ObjectTypeAnalogOutput:     "analog-output",
	ObjectTypeAnalogValue:      "analog-value",
	ObjectTypeBinaryInput:      "binary-input",
	ObjectTypeBinaryOutput:     "binary-output",
	ObjectTypeBinaryValue:      "binary-value",
	ObjectTypeDevice:           "device",
	ObjectTypeMultiStateInput:  "multi-state-input",
	ObjectTypeMultiStateOutput: "multi-state-output",
	ObjectTypeMultiStateValue:  "multi-state-value",
}

func (o ObjectType) String() string {
	if name, ok := objectTypeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("object-type(%d)", o)
}

// ParseObjectType parses a string to ObjectType
func ParseObjectType(s string) (ObjectType, bool) {
	types := map[string]ObjectType{
		"ai":  ObjectTypeAnalogInput,
		"ao":  ObjectTypeAnalogOutput,
		"av":  ObjectTypeAnalogValue,
		"bi":  ObjectTypeBinaryInput,
		"bo":  ObjectTypeBinaryOutput,
		"bv":  ObjectTypeBinaryValue,
		"dev": ObjectTypeDevice,
		"msi": ObjectTypeMultiStateInput,
		"mso": ObjectTypeMultiStateOutput,
		"msv": ObjectTypeMultiStateValue,
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if t, ok := types[s]; ok {
		return t, true
	}
	for t, name := range objectTypeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// ObjectIdentifier represents a BACnet object identifier (type + instance)
type ObjectIdentifier struct {
	Type     ObjectType
	Instance uint32
}

// NewObjectIdentifier creates a new ObjectIdentifier
func NewObjectIdentifier(objectType ObjectType, instance uint32) ObjectIdentifier {
	return ObjectIdentifier{
		Type:     objectType,
		Instance: instance,
	}
}

// Encode encodes the object identifier to a 4-byte value
func (o ObjectIdentifier) Encode() uint32 {
	return (uint32(o.Type) << 22) | (o.Instance & MaxInstance)
}

// DecodeObjectIdentifier decodes a 4-byte value to an ObjectIdentifier
func DecodeObjectIdentifier(value uint32) ObjectIdentifier {
	return ObjectIdentifier{
		Type:     ObjectType((value >> 22) & 0x3FF),
		Instance: value & MaxInstance,
	}
}

func (o ObjectIdentifier) String() string {
	return fmt.Sprintf("%s:%d", o.Type.String(), o.Instance)
}

// Segmentation represents the BACnet segmentation capability
type Segmentation uint8

const (
	SegmentationBoth     Segmentation = 0
	SegmentationTransmit Segmentation = 1
	SegmentationReceive  Segmentation = 2
	SegmentationNone     Segmentation = 3
)

func (s Segmentation) String() string {
	names := map[Segmentation]string{
		SegmentationBoth:     "segmented-both",
		SegmentationTransmit: "segmented-transmit",
		SegmentationReceive:  "segmented-receive",
		SegmentationNone:     "no-segmentation",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("segmentation(%d)", s)
}

// ParseSegmentation accepts both the short CLI spellings ("both", "none")
// and the standard names ("segmented-both", "no-segmentation").
func ParseSegmentation(s string) (Segmentation, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "both", "segmented-both":
		return SegmentationBoth, true
	case "transmit", "segmented-transmit":
		return SegmentationTransmit, true
	case "receive", "segmented-receive":
		return SegmentationReceive, true
	case "none", "no-segmentation":
		return SegmentationNone, true
	}
	return 0, false
}

// Tag types for BACnet encoding
type TagClass uint8

const (
	TagClassApplication TagClass = 0
	TagClassContext     TagClass = 1
)

type ApplicationTag uint8

const (
	TagNull            ApplicationTag = 0
	TagBoolean         ApplicationTag = 1
	TagUnsignedInt     ApplicationTag = 2
	TagSignedInt       ApplicationTag = 3
	TagReal            ApplicationTag = 4
	TagDouble          ApplicationTag = 5
	TagOctetString     ApplicationTag = 6
	TagCharacterString ApplicationTag = 7
	TagBitString       ApplicationTag = 8
	TagEnumerated      ApplicationTag = 9
	TagDate            ApplicationTag = 10
	TagTime            ApplicationTag = 11
	TagObjectID        ApplicationTag = 12
)
