package bacnet

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	whoIsUnbounded = []byte{0x81, 0x0B, 0x00, 0x08, 0x01, 0x00, 0x10, 0x08}

	whoIsRanged = []byte{
		0x81, 0x0B, 0x00, 0x0C,
		0x01, 0x00,
		0x10, 0x08,
		0x09, 0x64, // low 100
		0x19, 0xC8, // high 200
	}

	// device 1234, max APDU 1024, segmented-both, vendor 260
	iAm1234 = []byte{
		0x81, 0x0B, 0x00, 0x15,
		0x01, 0x00,
		0x10, 0x00,
		0xC4, 0x02, 0x00, 0x04, 0xD2,
		0x22, 0x04, 0x00,
		0x91, 0x00,
		0x22, 0x01, 0x04,
	}
)

func TestEncodeWhoIs(t *testing.T) {
	data, err := Encode(NewWhoIsFrame(nil))
	require.NoError(t, err)
	assert.Equal(t, whoIsUnbounded, data)

	data, err = Encode(NewWhoIsFrame(&InstanceRange{Low: 100, High: 200}))
	require.NoError(t, err)
	assert.Equal(t, whoIsRanged, data)
}

func TestEncodeIAm(t *testing.T) {
	data, err := Encode(NewIAmFrame(IAm{
		Device:        NewObjectIdentifier(ObjectTypeDevice, 1234),
		MaxAPDULength: 1024,
		Segmentation:  SegmentationBoth,
		VendorID:      260,
	}))
	require.NoError(t, err)
	assert.Equal(t, iAm1234, data)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frames := []*Frame{
		NewWhoIsFrame(nil),
		NewWhoIsFrame(&InstanceRange{Low: 0, High: 0}),
		NewWhoIsFrame(&InstanceRange{Low: 100, High: 200}),
		NewWhoIsFrame(&InstanceRange{Low: 70000, High: MaxInstance}),
		NewIAmFrame(IAm{Device: NewObjectIdentifier(ObjectTypeDevice, 0), MaxAPDULength: 50, Segmentation: SegmentationNone, VendorID: 0}),
		NewIAmFrame(IAm{Device: NewObjectIdentifier(ObjectTypeDevice, 1234), MaxAPDULength: 1024, Segmentation: SegmentationBoth, VendorID: 15}),
		NewIAmFrame(IAm{Device: NewObjectIdentifier(ObjectTypeDevice, MaxInstance - 1), MaxAPDULength: MaxAPDULength, Segmentation: SegmentationReceive, VendorID: 0xFFFF}),
	}

	unicast := NewIAmFrame(IAm{Device: NewObjectIdentifier(ObjectTypeDevice, 99), MaxAPDULength: 480, Segmentation: SegmentationTransmit, VendorID: 7})
	unicast.Function = BVLCOriginalUnicastNPDU
	frames = append(frames, unicast)

	for _, f := range frames {
		t.Run(f.String(), func(t *testing.T) {
			data, err := Encode(f)
			require.NoError(t, err)

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, f, got)
		})
	}
}

func TestEncodeRejects(t *testing.T) {
	_, err := Encode(NewWhoIsFrame(&InstanceRange{Low: 10, High: 5}))
	require.ErrorIs(t, err, ErrMalformedFrame)

	_, err = Encode(NewWhoIsFrame(&InstanceRange{Low: 0, High: MaxInstance + 1}))
	require.ErrorIs(t, err, ErrMalformedFrame)

	_, err = Encode(NewIAmFrame(IAm{Device: NewObjectIdentifier(ObjectTypeAnalogInput, 1)}))
	require.ErrorIs(t, err, ErrMalformedFrame)

	_, err = Encode(NewIAmFrame(IAm{Device: NewObjectIdentifier(ObjectTypeDevice, 1), Segmentation: Segmentation(9)}))
	require.ErrorIs(t, err, ErrMalformedFrame)

	fwd := NewWhoIsFrame(nil)
	fwd.Function = BVLCForwardedNPDU
	_, err = Encode(fwd)
	require.ErrorIs(t, err, ErrUnsupportedService)

	_, err = Encode(&Frame{Function: BVLCOriginalBroadcastNPDU, Kind: FrameUnsupported})
	require.ErrorIs(t, err, ErrUnsupportedService)
}

func TestDecodeTruncated(t *testing.T) {
	for _, valid := range [][]byte{whoIsUnbounded, whoIsRanged, iAm1234} {
		for n := 0; n < len(valid); n++ {
			_, err := Decode(valid[:n])
			require.ErrorIs(t, err, ErrMalformedFrame, "prefix of %d bytes", n)
		}
	}
}

func TestDecodeTruncatedPayloadWithFixedLength(t *testing.T) {
	// The BVLC length agrees with the datagram but the I-Am parameters stop
	// in the middle of the object identifier.
	data := []byte{0x81, 0x0B, 0x00, 0x0B, 0x01, 0x00, 0x10, 0x00, 0xC4, 0x02, 0x00}
	_, err := Decode(data)
	require.ErrorIs(t, err, ErrMalformedFrame)
	assert.True(t, IsMalformed(err))
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"wrong bvlc type", []byte{0x82, 0x0B, 0x00, 0x08, 0x01, 0x00, 0x10, 0x08}},
		{"unknown bvlc function", []byte{0x81, 0x20, 0x00, 0x08, 0x01, 0x00, 0x10, 0x08}},
		{"length mismatch", []byte{0x81, 0x0B, 0x00, 0x09, 0x01, 0x00, 0x10, 0x08}},
		{"npdu version", []byte{0x81, 0x0B, 0x00, 0x08, 0x02, 0x00, 0x10, 0x08}},
		{"unknown pdu type", []byte{0x81, 0x0B, 0x00, 0x08, 0x01, 0x00, 0x90, 0x08}},
		{"who-is single limit", []byte{0x81, 0x0B, 0x00, 0x0A, 0x01, 0x00, 0x10, 0x08, 0x09, 0x64}},
		{"who-is low above high", []byte{0x81, 0x0B, 0x00, 0x0C, 0x01, 0x00, 0x10, 0x08, 0x09, 0xC8, 0x19, 0x64}},
		{"who-is wrong tag", []byte{0x81, 0x0B, 0x00, 0x0C, 0x01, 0x00, 0x10, 0x08, 0x19, 0x64, 0x09, 0xC8}},
		{"who-is trailing", []byte{0x81, 0x0B, 0x00, 0x0D, 0x01, 0x00, 0x10, 0x08, 0x09, 0x64, 0x19, 0xC8, 0x00}},
		{"i-am not a device", []byte{
			0x81, 0x0B, 0x00, 0x15, 0x01, 0x00, 0x10, 0x00,
			0xC4, 0x00, 0x00, 0x04, 0xD2, 0x22, 0x04, 0x00, 0x91, 0x00, 0x22, 0x01, 0x04,
		}},
		{"i-am segmentation out of range", []byte{
			0x81, 0x0B, 0x00, 0x15, 0x01, 0x00, 0x10, 0x00,
			0xC4, 0x02, 0x00, 0x04, 0xD2, 0x22, 0x04, 0x00, 0x91, 0x07, 0x22, 0x01, 0x04,
		}},
		{"i-am vendor as enumerated", []byte{
			0x81, 0x0B, 0x00, 0x15, 0x01, 0x00, 0x10, 0x00,
			0xC4, 0x02, 0x00, 0x04, 0xD2, 0x22, 0x04, 0x00, 0x91, 0x00, 0x92, 0x01, 0x04,
		}},
		{"i-am missing vendor", []byte{
			0x81, 0x0B, 0x00, 0x12, 0x01, 0x00, 0x10, 0x00,
			0xC4, 0x02, 0x00, 0x04, 0xD2, 0x22, 0x04, 0x00, 0x91, 0x00,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode(tt.data)
			require.ErrorIs(t, err, ErrMalformedFrame)
			assert.Nil(t, f)
		})
	}
}

func TestDecodeUnsupported(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		function BVLCFunction
		pduType  PDUType
		service  uint8
	}{
		{
			name:     "bvlc result",
			data:     []byte{0x81, 0x00, 0x00, 0x06, 0x00, 0x00},
			function: BVLCResult,
		},
		{
			name:     "register foreign device",
			data:     []byte{0x81, 0x05, 0x00, 0x06, 0x00, 0x3C},
			function: BVLCRegisterForeignDevice,
		},
		{
			name:     "who-has",
			data:     []byte{0x81, 0x0B, 0x00, 0x0A, 0x01, 0x00, 0x10, 0x07, 0x3D, 0x00},
			function: BVLCOriginalBroadcastNPDU,
			pduType:  PDUTypeUnconfirmedRequest,
			service:  uint8(ServiceWhoHas),
		},
		{
			name:     "confirmed read-property",
			data:     []byte{0x81, 0x0A, 0x00, 0x11, 0x01, 0x04, 0x00, 0x05, 0x01, 0x0C, 0x0C, 0x02, 0x00, 0x04, 0xD2, 0x19, 0x4D},
			function: BVLCOriginalUnicastNPDU,
			pduType:  PDUTypeConfirmedRequest,
		},
		{
			name:     "network layer message",
			data:     []byte{0x81, 0x0B, 0x00, 0x07, 0x01, 0x80, 0x00},
			function: BVLCOriginalBroadcastNPDU,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode(tt.data)
			require.NoError(t, err)
			assert.Equal(t, FrameUnsupported, f.Kind)
			assert.Equal(t, tt.function, f.Function)
			assert.Equal(t, tt.pduType, f.PDUType)
			assert.Equal(t, tt.service, f.Service)
			assert.Nil(t, f.WhoIs)
			assert.Nil(t, f.IAm)
		})
	}
}

func TestDecodeForwardedNPDU(t *testing.T) {
	data := []byte{
		0x81, 0x04, 0x00, 0x0E,
		10, 0, 0, 9, 0xBA, 0xC0,
		0x01, 0x00,
		0x10, 0x08,
	}

	f, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, FrameWhoIs, f.Kind)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.9:47808"), f.Originator)
	require.NotNil(t, f.WhoIs)
	assert.Nil(t, f.WhoIs.Range)

	_, err = Decode([]byte{0x81, 0x04, 0x00, 0x08, 10, 0, 0, 9})
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeRoutedNPDU(t *testing.T) {
	// DNET 0xFFFF global broadcast, SNET 5 with a 6-byte SADR, hop count 255
	data := []byte{
		0x81, 0x0B, 0x00, 0x19,
		0x01, 0x28,
		0xFF, 0xFF, 0x00,
		0x00, 0x05, 0x06, 192, 168, 2, 20, 0xBA, 0xC0,
		0xFF,
		0x10, 0x08,
		0x09, 0x01,
		0x19, 0x0A,
	}
	f, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, FrameWhoIs, f.Kind)
	assert.Equal(t, &InstanceRange{Low: 1, High: 10}, f.WhoIs.Range)
}

func TestInstanceRangeContains(t *testing.T) {
	var all *InstanceRange
	assert.True(t, all.Contains(0))
	assert.True(t, all.Contains(MaxInstance))

	r := &InstanceRange{Low: 100, High: 200}
	assert.False(t, r.Contains(50))
	assert.True(t, r.Contains(100))
	assert.True(t, r.Contains(150))
	assert.True(t, r.Contains(200))
	assert.False(t, r.Contains(201))
}

func TestDecodeTagExtended(t *testing.T) {
	tag := EncodeTag(20, TagClassContext, 300)
	got, err := DecodeTag(append(tag, make([]byte, 300)...))
	require.NoError(t, err)
	assert.Equal(t, uint8(20), got.Number)
	assert.Equal(t, TagClassContext, got.Class)
	assert.Equal(t, 300, got.Length)
	assert.Equal(t, len(tag), got.HeaderLen)

	_, err = DecodeTag(tag)
	require.ErrorIs(t, err, ErrMalformedFrame)
}
