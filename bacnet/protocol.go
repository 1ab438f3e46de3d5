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
)

// BVLCHeaderLength is the size of the BACnet/IP BVLC header
const BVLCHeaderLength = 4

// BVLC Header (BACnet Virtual Link Control)
type BVLCHeader struct {
	Type     BVLCType
	Function BVLCFunction
	Length   uint16
}

// EncodeBVLC encodes a BVLC header
func EncodeBVLC(function BVLCFunction, npduLength int) []byte {
	totalLength := BVLCHeaderLength + npduLength
	buf := make([]byte, BVLCHeaderLength)
	buf[0] = byte(BVLCTypeBACnetIP)
	buf[1] = byte(function)
	binary.BigEndian.PutUint16(buf[2:], uint16(totalLength))
	return buf
}

// DecodeBVLC decodes a BVLC header and checks it against the datagram size
func DecodeBVLC(data []byte) (*BVLCHeader, error) {
	if len(data) < BVLCHeaderLength {
		return nil, fmt.Errorf("%w: bvlc header truncated (%d bytes)", ErrMalformedFrame, len(data))
	}
	h := &BVLCHeader{
		Type:     BVLCType(data[0]),
		Function: BVLCFunction(data[1]),
		Length:   binary.BigEndian.Uint16(data[2:4]),
	}
	if h.Type != BVLCTypeBACnetIP {
		return nil, fmt.Errorf("%w: bvlc type 0x%02x", ErrMalformedFrame, uint8(h.Type))
	}
	if h.Function > BVLCSecureBVLL {
		return nil, fmt.Errorf("%w: unknown bvlc function 0x%02x", ErrMalformedFrame, uint8(h.Function))
	}
	if int(h.Length) != len(data) {
		return nil, fmt.Errorf("%w: bvlc length %d, datagram %d", ErrMalformedFrame, h.Length, len(data))
	}
	return h, nil
}

// NPDU (Network Protocol Data Unit)
type NPDU struct {
	Version      uint8
	Control      NPDUControl
	DestNet      uint16
	DestAddr     []byte
	DestHopCount uint8
	SrcNet       uint16
	SrcAddr      []byte
	MessageType  uint8
	Data         []byte
}

// EncodeNPDU encodes an NPDU for a local segment without routing
func EncodeNPDU(expectingReply bool, priority NPDUControl) []byte {
	control := priority
	if expectingReply {
		control |= NPDUControlExpectingReply
	}
	return []byte{
		NPDUVersion,
		byte(control),
	}
}

// DecodeNPDU decodes an NPDU and returns the offset of the APDU
func DecodeNPDU(data []byte) (*NPDU, int, error) {
	if len(data) < 2 {
		return nil, 0, fmt.Errorf("%w: npdu truncated", ErrMalformedFrame)
	}

	npdu := &NPDU{
		Version: data[0],
		Control: NPDUControl(data[1]),
	}

	if npdu.Version != NPDUVersion {
		return nil, 0, fmt.Errorf("%w: unsupported npdu version %d", ErrMalformedFrame, npdu.Version)
	}

	offset := 2

	// Destination specifier
	if npdu.Control&NPDUControlDestSpecifier != 0 {
		if len(data) < offset+3 {
			return nil, 0, fmt.Errorf("%w: npdu destination truncated", ErrMalformedFrame)
		}
		npdu.DestNet = binary.BigEndian.Uint16(data[offset:])
		offset += 2

		addrLen := int(data[offset])
		offset++

		if len(data) < offset+addrLen {
			return nil, 0, fmt.Errorf("%w: npdu destination address truncated", ErrMalformedFrame)
		}
		npdu.DestAddr = make([]byte, addrLen)
		copy(npdu.DestAddr, data[offset:offset+addrLen])
		offset += addrLen
	}

	// Source specifier
	if npdu.Control&NPDUControlSourceSpecifier != 0 {
		if len(data) < offset+3 {
			return nil, 0, fmt.Errorf("%w: npdu source truncated", ErrMalformedFrame)
		}
		npdu.SrcNet = binary.BigEndian.Uint16(data[offset:])
		offset += 2

		addrLen := int(data[offset])
		offset++

		if len(data) < offset+addrLen {
			return nil, 0, fmt.Errorf("%w: npdu source address truncated", ErrMalformedFrame)
		}
		npdu.SrcAddr = make([]byte, addrLen)
		copy(npdu.SrcAddr, data[offset:offset+addrLen])
		offset += addrLen
	}

	// Hop count follows the source fields when a destination is present
	if npdu.Control&NPDUControlDestSpecifier != 0 {
		if len(data) < offset+1 {
			return nil, 0, fmt.Errorf("%w: npdu hop count missing", ErrMalformedFrame)
		}
		npdu.DestHopCount = data[offset]
		offset++
	}

	// Network layer message
	if npdu.Control&NPDUControlNetworkLayerMessage != 0 {
		if len(data) < offset+1 {
			return nil, 0, fmt.Errorf("%w: network message type missing", ErrMalformedFrame)
		}
		npdu.MessageType = data[offset]
		offset++
	}

	npdu.Data = data[offset:]
	return npdu, offset, nil
}

// APDU is the subset of an application PDU the simulator inspects
type APDU struct {
	Type    PDUType
	Service uint8
	Data    []byte
}

// EncodeUnconfirmedRequest encodes an unconfirmed service request APDU
func EncodeUnconfirmedRequest(service UnconfirmedServiceChoice, data []byte) []byte {
	buf := make([]byte, 0, 2+len(data))
	buf = append(buf, byte(PDUTypeUnconfirmedRequest))
	buf = append(buf, byte(service))
	buf = append(buf, data...)
	return buf
}

// DecodeAPDU decodes an APDU. Only unconfirmed requests are split into
// service choice and parameters; other PDU types keep their raw payload.
func DecodeAPDU(data []byte) (*APDU, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty apdu", ErrMalformedFrame)
	}

	apdu := &APDU{
		Type: PDUType(data[0] & 0xF0),
	}

	switch apdu.Type {
	case PDUTypeUnconfirmedRequest:
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: unconfirmed request truncated", ErrMalformedFrame)
		}
		apdu.Service = data[1]
		apdu.Data = data[2:]
		return apdu, nil
	case PDUTypeConfirmedRequest, PDUTypeSimpleAck, PDUTypeComplexAck,
		PDUTypeSegmentAck, PDUTypeError, PDUTypeReject, PDUTypeAbort:
		apdu.Data = data[1:]
		return apdu, nil
	default:
		return nil, fmt.Errorf("%w: unknown PDU type %02x", ErrMalformedFrame, uint8(apdu.Type))
	}
}

// Tag encoding/decoding helpers

// EncodeTag encodes a BACnet tag
func EncodeTag(tagNum uint8, class TagClass, length int) []byte {
	if length < 5 && tagNum < 15 {
		// Short form
		tag := (tagNum << 4) | (uint8(class) << 3) | uint8(length)
		return []byte{tag}
	}

	buf := make([]byte, 0, 6)

	// Extended tag number
	if tagNum >= 15 {
		lv := uint8(0x05)
		if length < 5 {
			lv = uint8(length)
		}
		buf = append(buf, 0xF0|(uint8(class)<<3)|lv)
		buf = append(buf, tagNum)
	} else {
		buf = append(buf, (tagNum<<4)|(uint8(class)<<3)|0x05)
	}

	// Extended length
	if length >= 5 {
		if length < 254 {
			buf = append(buf, byte(length))
		} else if length < 65536 {
			buf = append(buf, 254)
			buf = append(buf, byte(length>>8), byte(length))
		} else {
			buf = append(buf, 255)
			buf = append(buf, byte(length>>24), byte(length>>16), byte(length>>8), byte(length))
		}
	}

	return buf
}

// EncodeContextTag encodes a context-specific tag
func EncodeContextTag(tagNum uint8, data []byte) []byte {
	tag := EncodeTag(tagNum, TagClassContext, len(data))
	return append(tag, data...)
}

// EncodeUnsigned encodes an unsigned integer in the fewest octets
func EncodeUnsigned(value uint32) []byte {
	if value < 0x100 {
		return []byte{byte(value)}
	} else if value < 0x10000 {
		return []byte{byte(value >> 8), byte(value)}
	} else if value < 0x1000000 {
		return []byte{byte(value >> 16), byte(value >> 8), byte(value)}
	}
	return []byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}
}

// EncodeUnsignedTag encodes an unsigned integer with application tag
func EncodeUnsignedTag(value uint32) []byte {
	data := EncodeUnsigned(value)
	tag := EncodeTag(uint8(TagUnsignedInt), TagClassApplication, len(data))
	return append(tag, data...)
}

// EncodeContextUnsigned encodes an unsigned integer with context tag
func EncodeContextUnsigned(tagNum uint8, value uint32) []byte {
	data := EncodeUnsigned(value)
	return EncodeContextTag(tagNum, data)
}

// EncodeEnumeratedTag encodes an enumerated value with application tag
func EncodeEnumeratedTag(value uint32) []byte {
	data := EncodeUnsigned(value)
	tag := EncodeTag(uint8(TagEnumerated), TagClassApplication, len(data))
	return append(tag, data...)
}

// EncodeObjectIdentifierTag encodes an object identifier with application tag
func EncodeObjectIdentifierTag(oid ObjectIdentifier) []byte {
	buf := EncodeTag(uint8(TagObjectID), TagClassApplication, 4)
	return binary.BigEndian.AppendUint32(buf, oid.Encode())
}

// Tag is a decoded tag header
type Tag struct {
	Number    uint8
	Class     TagClass
	Length    int
	HeaderLen int
	Opening   bool
	Closing   bool
}

// DecodeTag decodes a tag header from data
func DecodeTag(data []byte) (Tag, error) {
	if len(data) < 1 {
		return Tag{}, fmt.Errorf("%w: tag missing", ErrMalformedFrame)
	}

	t := Tag{
		Number:    (data[0] >> 4) & 0x0F,
		Class:     TagClass((data[0] >> 3) & 0x01),
		Length:    int(data[0] & 0x07),
		HeaderLen: 1,
	}

	// Extended tag number
	if t.Number == 0x0F {
		if len(data) < 2 {
			return Tag{}, fmt.Errorf("%w: extended tag truncated", ErrMalformedFrame)
		}
		t.Number = data[1]
		t.HeaderLen = 2
	}

	if t.Class == TagClassContext && t.Length == 0x06 {
		t.Opening, t.Length = true, 0
		return t, nil
	}
	if t.Class == TagClassContext && t.Length == 0x07 {
		t.Closing, t.Length = true, 0
		return t, nil
	}

	// Extended length
	if t.Length == 5 {
		if len(data) < t.HeaderLen+1 {
			return Tag{}, fmt.Errorf("%w: tag length truncated", ErrMalformedFrame)
		}
		switch ext := data[t.HeaderLen]; {
		case ext < 254:
			t.Length = int(ext)
			t.HeaderLen++
		case ext == 254:
			if len(data) < t.HeaderLen+3 {
				return Tag{}, fmt.Errorf("%w: tag length truncated", ErrMalformedFrame)
			}
			t.Length = int(binary.BigEndian.Uint16(data[t.HeaderLen+1:]))
			t.HeaderLen += 3
		default:
			if len(data) < t.HeaderLen+5 {
				return Tag{}, fmt.Errorf("%w: tag length truncated", ErrMalformedFrame)
			}
			t.Length = int(binary.BigEndian.Uint32(data[t.HeaderLen+1:]))
			t.HeaderLen += 5
		}
	}

	if t.Length < 0 || len(data) < t.HeaderLen+t.Length {
		return Tag{}, fmt.Errorf("%w: tag value truncated", ErrMalformedFrame)
	}
	return t, nil
}

// DecodeUnsigned decodes a 1 to 4 octet unsigned integer
func DecodeUnsigned(data []byte) (uint32, error) {
	switch len(data) {
	case 1:
		return uint32(data[0]), nil
	case 2:
		return uint32(binary.BigEndian.Uint16(data)), nil
	case 3:
		return uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2]), nil
	case 4:
		return binary.BigEndian.Uint32(data), nil
	default:
		return 0, fmt.Errorf("%w: unsigned of %d octets", ErrMalformedFrame, len(data))
	}
}
