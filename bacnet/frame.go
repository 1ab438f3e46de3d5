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
	"net/netip"
)

// FrameKind tells which service a decoded frame carries
type FrameKind uint8

const (
	FrameUnsupported FrameKind = iota
	FrameWhoIs
	FrameIAm
)

func (k FrameKind) String() string {
	switch k {
	case FrameWhoIs:
		return "who-is"
	case FrameIAm:
		return "i-am"
	default:
		return "unsupported"
	}
}

// InstanceRange bounds the device instances a Who-Is is addressed to
type InstanceRange struct {
	Low  uint32
	High uint32
}

// Contains reports whether instance falls inside the range. A nil range
// targets every device.
func (r *InstanceRange) Contains(instance uint32) bool {
	if r == nil {
		return true
	}
	return instance >= r.Low && instance <= r.High
}

// WhoIs holds the Who-Is service parameters
type WhoIs struct {
	Range *InstanceRange
}

// IAm holds the I-Am service parameters
type IAm struct {
	Device        ObjectIdentifier
	MaxAPDULength uint16
	Segmentation  Segmentation
	VendorID      uint16
}

// Frame is one BVLL+NPDU+APDU unit. Exactly one of WhoIs and IAm is set
// for supported frames; unsupported frames only carry the header fields
// needed to describe them.
type Frame struct {
	Function BVLCFunction
	Kind     FrameKind
	PDUType  PDUType
	Service  uint8

	// Originator is the B/IP address carried by a Forwarded-NPDU
	Originator netip.AddrPort

	WhoIs *WhoIs
	IAm   *IAm
}

// NewWhoIsFrame builds a broadcast Who-Is. rng may be nil.
func NewWhoIsFrame(rng *InstanceRange) *Frame {
	return &Frame{
		Function: BVLCOriginalBroadcastNPDU,
		Kind:     FrameWhoIs,
		PDUType:  PDUTypeUnconfirmedRequest,
		Service:  uint8(ServiceWhoIs),
		WhoIs:    &WhoIs{Range: rng},
	}
}

// NewIAmFrame builds a broadcast I-Am
func NewIAmFrame(iam IAm) *Frame {
	return &Frame{
		Function: BVLCOriginalBroadcastNPDU,
		Kind:     FrameIAm,
		PDUType:  PDUTypeUnconfirmedRequest,
		Service:  uint8(ServiceIAm),
		IAm:      &iam,
	}
}

func (f *Frame) String() string {
	switch f.Kind {
	case FrameWhoIs:
		if f.WhoIs != nil && f.WhoIs.Range != nil {
			return fmt.Sprintf("Who-Is [%d..%d]", f.WhoIs.Range.Low, f.WhoIs.Range.High)
		}
		return "Who-Is"
	case FrameIAm:
		if f.IAm != nil {
			return fmt.Sprintf("I-Am %s vendor=%d", f.IAm.Device, f.IAm.VendorID)
		}
		return "I-Am"
	default:
		return fmt.Sprintf("unsupported (%s pdu=0x%02x service=%d)", f.Function, uint8(f.PDUType), f.Service)
	}
}

// Encode serializes a Who-Is or I-Am frame
func Encode(f *Frame) ([]byte, error) {
	if f.Function != BVLCOriginalBroadcastNPDU && f.Function != BVLCOriginalUnicastNPDU {
		return nil, fmt.Errorf("%w: cannot originate %s", ErrUnsupportedService, f.Function)
	}

	var (
		service UnconfirmedServiceChoice
		params  []byte
		err     error
	)
	switch f.Kind {
	case FrameWhoIs:
		service = ServiceWhoIs
		params, err = encodeWhoIs(f.WhoIs)
	case FrameIAm:
		service = ServiceIAm
		params, err = encodeIAm(f.IAm)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedService, f.Kind)
	}
	if err != nil {
		return nil, err
	}

	apdu := EncodeUnconfirmedRequest(service, params)
	npdu := EncodeNPDU(false, NPDUControlPriorityNormal)
	bvlc := EncodeBVLC(f.Function, len(npdu)+len(apdu))

	packet := make([]byte, 0, len(bvlc)+len(npdu)+len(apdu))
	packet = append(packet, bvlc...)
	packet = append(packet, npdu...)
	packet = append(packet, apdu...)
	return packet, nil
}

func encodeWhoIs(w *WhoIs) ([]byte, error) {
	if w == nil || w.Range == nil {
		return nil, nil
	}
	r := w.Range
	if r.Low > MaxInstance || r.High > MaxInstance || r.Low > r.High {
		return nil, fmt.Errorf("%w: who-is range %d..%d", ErrMalformedFrame, r.Low, r.High)
	}
	data := EncodeContextUnsigned(0, r.Low)
	data = append(data, EncodeContextUnsigned(1, r.High)...)
	return data, nil
}

func encodeIAm(iam *IAm) ([]byte, error) {
	if iam == nil {
		return nil, fmt.Errorf("%w: i-am without parameters", ErrMalformedFrame)
	}
	if iam.Device.Type != ObjectTypeDevice || iam.Device.Instance > MaxInstance {
		return nil, fmt.Errorf("%w: i-am identifier %s", ErrMalformedFrame, iam.Device)
	}
	if iam.Segmentation > SegmentationNone {
		return nil, fmt.Errorf("%w: %s", ErrMalformedFrame, iam.Segmentation)
	}
	data := make([]byte, 0, 16)
	data = append(data, EncodeObjectIdentifierTag(iam.Device)...)
	data = append(data, EncodeUnsignedTag(uint32(iam.MaxAPDULength))...)
	data = append(data, EncodeEnumeratedTag(uint32(iam.Segmentation))...)
	data = append(data, EncodeUnsignedTag(uint32(iam.VendorID))...)
	return data, nil
}

// Decode parses a BACnet/IP datagram. Structural problems return an error
// wrapping ErrMalformedFrame; well-formed traffic that is not Who-Is or
// I-Am decodes to a Frame with Kind FrameUnsupported and a nil error.
func Decode(data []byte) (*Frame, error) {
	bvlc, err := DecodeBVLC(data)
	if err != nil {
		return nil, err
	}

	f := &Frame{Function: bvlc.Function}
	if !bvlc.Function.carriesNPDU() {
		return f, nil
	}

	npduData := data[BVLCHeaderLength:]
	if bvlc.Function == BVLCForwardedNPDU {
		if len(npduData) < 6 {
			return nil, fmt.Errorf("%w: forwarded-npdu originator truncated", ErrMalformedFrame)
		}
		ip := netip.AddrFrom4([4]byte(npduData[:4]))
		f.Originator = netip.AddrPortFrom(ip, binary.BigEndian.Uint16(npduData[4:6]))
		npduData = npduData[6:]
	}

	npdu, offset, err := DecodeNPDU(npduData)
	if err != nil {
		return nil, err
	}
	if npdu.Control&NPDUControlNetworkLayerMessage != 0 {
		return f, nil
	}

	apdu, err := DecodeAPDU(npduData[offset:])
	if err != nil {
		return nil, err
	}
	f.PDUType = apdu.Type
	f.Service = apdu.Service
	if apdu.Type != PDUTypeUnconfirmedRequest {
		return f, nil
	}

	switch UnconfirmedServiceChoice(apdu.Service) {
	case ServiceWhoIs:
		w, err := decodeWhoIs(apdu.Data)
		if err != nil {
			return nil, err
		}
		f.Kind, f.WhoIs = FrameWhoIs, w
	case ServiceIAm:
		iam, err := decodeIAm(apdu.Data)
		if err != nil {
			return nil, err
		}
		f.Kind, f.IAm = FrameIAm, iam
	}
	return f, nil
}

func decodeWhoIs(data []byte) (*WhoIs, error) {
	if len(data) == 0 {
		return &WhoIs{}, nil
	}

	low, n, err := decodeContextUnsigned(data, 0)
	if err != nil {
		return nil, fmt.Errorf("who-is low limit: %w", err)
	}
	high, m, err := decodeContextUnsigned(data[n:], 1)
	if err != nil {
		return nil, fmt.Errorf("who-is high limit: %w", err)
	}
	if n+m != len(data) {
		return nil, fmt.Errorf("%w: %d trailing octets after who-is", ErrMalformedFrame, len(data)-n-m)
	}
	if low > MaxInstance || high > MaxInstance || low > high {
		return nil, fmt.Errorf("%w: who-is range %d..%d", ErrMalformedFrame, low, high)
	}
	return &WhoIs{Range: &InstanceRange{Low: low, High: high}}, nil
}

func decodeIAm(data []byte) (*IAm, error) {
	offset := 0

	oidData, n, err := decodeApplication(data, TagObjectID)
	if err != nil {
		return nil, fmt.Errorf("i-am device identifier: %w", err)
	}
	if len(oidData) != 4 {
		return nil, fmt.Errorf("%w: object identifier of %d octets", ErrMalformedFrame, len(oidData))
	}
	oid := DecodeObjectIdentifier(binary.BigEndian.Uint32(oidData))
	if oid.Type != ObjectTypeDevice {
		return nil, fmt.Errorf("%w: i-am identifier %s", ErrMalformedFrame, oid)
	}
	offset += n

	maxAPDU, n, err := decodeApplicationUnsigned(data[offset:], TagUnsignedInt)
	if err != nil {
		return nil, fmt.Errorf("i-am max apdu: %w", err)
	}
	offset += n

	seg, n, err := decodeApplicationUnsigned(data[offset:], TagEnumerated)
	if err != nil {
		return nil, fmt.Errorf("i-am segmentation: %w", err)
	}
	offset += n

	vendor, n, err := decodeApplicationUnsigned(data[offset:], TagUnsignedInt)
	if err != nil {
		return nil, fmt.Errorf("i-am vendor id: %w", err)
	}
	offset += n

	if offset != len(data) {
		return nil, fmt.Errorf("%w: %d trailing octets after i-am", ErrMalformedFrame, len(data)-offset)
	}
	if maxAPDU > 0xFFFF || vendor > 0xFFFF || seg > uint32(SegmentationNone) {
		return nil, fmt.Errorf("%w: i-am field out of range", ErrMalformedFrame)
	}

	return &IAm{
		Device:        oid,
		MaxAPDULength: uint16(maxAPDU),
		Segmentation:  Segmentation(seg),
		VendorID:      uint16(vendor),
	}, nil
}

// decodeApplication reads one application-tagged primitive and returns its
// value octets together with the total number of octets consumed.
func decodeApplication(data []byte, want ApplicationTag) ([]byte, int, error) {
	tag, err := DecodeTag(data)
	if err != nil {
		return nil, 0, err
	}
	if tag.Class != TagClassApplication || ApplicationTag(tag.Number) != want {
		return nil, 0, fmt.Errorf("%w: expected application tag %d, got class=%d tag=%d",
			ErrMalformedFrame, want, tag.Class, tag.Number)
	}
	end := tag.HeaderLen + tag.Length
	return data[tag.HeaderLen:end], end, nil
}

func decodeApplicationUnsigned(data []byte, want ApplicationTag) (uint32, int, error) {
	raw, n, err := decodeApplication(data, want)
	if err != nil {
		return 0, 0, err
	}
	v, err := DecodeUnsigned(raw)
	return v, n, err
}

func decodeContextUnsigned(data []byte, want uint8) (uint32, int, error) {
	tag, err := DecodeTag(data)
	if err != nil {
		return 0, 0, err
	}
	if tag.Class != TagClassContext || tag.Number != want || tag.Opening || tag.Closing {
		return 0, 0, fmt.Errorf("%w: expected context tag %d", ErrMalformedFrame, want)
	}
	end := tag.HeaderLen + tag.Length
	v, err := DecodeUnsigned(data[tag.HeaderLen:end])
	return v, end, err
}
