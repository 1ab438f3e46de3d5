package main

import (
	"bytes"
	"encoding/json"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/edgeo/drivers/bacnetsim/bacnet"
	"github.com/edgeo/drivers/bacnetsim/bacnet/simulator"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"csv", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatterPrintTable(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(FormatTable)
	f.SetWriter(&buf)

	f.PrintTable([]string{"ID", "NAME"}, [][]string{{"1234", "dev"}, {"7", "longer-name"}})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ID   NAME        ", lines[0])
	assert.Equal(t, "---- ----------- ", lines[1])
	assert.Equal(t, "1234 dev         ", lines[2])
	assert.Equal(t, "7    longer-name ", lines[3])
}

func testDevice(t *testing.T) *bacnet.Device {
	t.Helper()
	addr := bacnet.NewAddress(netip.MustParseAddr("192.168.1.10"), 24, bacnet.DefaultPort)
	d, err := bacnet.NewRegistry().NewDevice(1234, "BACnetStimDevice1234", 15, 1024, bacnet.SegmentationBoth, addr)
	require.NoError(t, err)

	ai, err := bacnet.NewObject(bacnet.ObjectTypeAnalogInput, 0, "AI0", bacnet.Real(20))
	require.NoError(t, err)
	require.NoError(t, d.AddObject(ai))
	bi, err := bacnet.NewObject(bacnet.ObjectTypeBinaryInput, 0, "BI0", bacnet.Boolean(true))
	require.NoError(t, err)
	require.NoError(t, d.AddObject(bi))
	return d
}

func TestNewDeviceView(t *testing.T) {
	view := newDeviceView(testDevice(t), "")

	assert.Equal(t, uint32(1234), view.Instance)
	assert.Equal(t, "BACnetStimDevice1234", view.Name)
	assert.Equal(t, uint16(15), view.VendorID)
	assert.Equal(t, "segmented-both", view.Segmentation)
	assert.Empty(t, view.Type)
	require.Len(t, view.Objects, 2)
	assert.Equal(t, "AI0", view.Objects[0].Name)
	assert.Equal(t, float32(20), view.Objects[0].PresentValue)
	assert.Equal(t, true, view.Objects[1].PresentValue)
}

func TestFormatterPrintStructured(t *testing.T) {
	views := []DeviceView{newDeviceView(testDevice(t), simulator.ProfileSmartActuator)}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		f := NewFormatter(FormatJSON)
		f.SetWriter(&buf)
		require.NoError(t, f.PrintStructured(views))

		var decoded []map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 1)
		assert.Equal(t, float64(1234), decoded[0]["instance"])
		assert.Equal(t, "BACnetStimDevice1234", decoded[0]["name"])
		assert.Equal(t, "smart-actuator", decoded[0]["type"])
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		f := NewFormatter(FormatYAML)
		f.SetWriter(&buf)
		require.NoError(t, f.PrintStructured(views))

		var decoded []DeviceView
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 1)
		assert.Equal(t, uint32(1234), decoded[0].Instance)
		assert.Equal(t, "smart-actuator", decoded[0].Type)
		assert.Equal(t, "AI0", decoded[0].Objects[0].Name)
		assert.Equal(t, "analog-input:0", decoded[0].Objects[0].Object)
	})
}
