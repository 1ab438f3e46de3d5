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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeo/drivers/bacnetsim/bacnet/simulator"
)

var (
	runDuration time.Duration
	runQuiet    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulated devices",
	Long: `Run binds every simulated device to its address, broadcasts a Who-Is
from each device after the startup delay and answers discovery traffic until
interrupted. Every I-Am heard by a simulated device is printed.

Binding real addresses requires them to be configured on a local interface.
Use --virtual to run the devices on a private in-memory segment instead.

Examples:
  # Run until Ctrl+C
  edgeo-bacnet-sim run

  # Run on loopback with a short startup delay
  edgeo-bacnet-sim run -b 127.0.0.10/8 --startup-delay 100ms

  # Run a virtual segment for ten seconds and print JSON
  edgeo-bacnet-sim run --virtual --duration 10s -o json`,

	RunE: runSimulation,
}

func init() {
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "Stop after this long (0 = until interrupted)")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Do not print discovery observations")
}

// ObservationView is the printable form of a discovery observation
type ObservationView struct {
	Time          time.Time `json:"time" yaml:"time"`
	Receiver      uint32    `json:"receiver" yaml:"receiver"`
	Device        uint32    `json:"device" yaml:"device"`
	Sender        string    `json:"sender" yaml:"sender"`
	VendorID      uint16    `json:"vendor_id" yaml:"vendor_id"`
	MaxAPDULength uint16    `json:"max_apdu" yaml:"max_apdu"`
	Segmentation  string    `json:"segmentation" yaml:"segmentation"`
}

// observationPrinter writes observations as they arrive from the receive
// loops
type observationPrinter struct {
	mu  sync.Mutex
	out *Formatter
}

func (p *observationPrinter) observe(o simulator.Observation) {
	view := ObservationView{
		Time:          time.Now(),
		Receiver:      o.Receiver,
		Device:        o.Device.Instance,
		Sender:        o.Sender.String(),
		VendorID:      o.VendorID,
		MaxAPDULength: o.MaxAPDULength,
		Segmentation:  o.Segmentation.String(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.out.Format() {
	case FormatTable:
		p.out.Printf("%s  device %-8d heard I-Am from device %-8d at %-22s vendor=%d max-apdu=%d %s\n",
			view.Time.Format("15:04:05.000"),
			view.Receiver,
			view.Device,
			view.Sender,
			view.VendorID,
			view.MaxAPDULength,
			view.Segmentation,
		)
	default:
		if err := p.out.PrintStructured(view); err != nil {
			logger.Warn("failed to print observation", slog.String("error", err.Error()))
		}
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	format, err := ParseOutputFormat(viper.GetString("output"))
	if err != nil {
		return err
	}
	out := NewFormatter(format)

	var opts []simulator.Option
	if !runQuiet {
		printer := &observationPrinter{out: out}
		opts = append(opts, simulator.WithObserver(printer.observe))
	}

	sim, err := buildSimulation(opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	if err := sim.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Simulating %d device(s), run %s\n", len(sim.Devices()), sim.ID())
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop")

	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "\nStopping simulation...")

	stopErr := sim.Stop()
	printSummary(out, sim.Metrics().Snapshot())
	return stopErr
}

func printSummary(out *Formatter, snap simulator.MetricsSnapshot) {
	if out.Format() != FormatTable {
		if err := out.PrintStructured(snap); err != nil {
			logger.Warn("failed to print metrics", slog.String("error", err.Error()))
		}
		return
	}

	out.Println()
	out.PrintKeyValue(map[string]interface{}{
		"Uptime":             snap.Uptime.Round(time.Millisecond),
		"Frames received":    snap.FramesReceived,
		"Frames sent":        snap.FramesSent,
		"Who-Is sent":        snap.WhoIsSent,
		"Who-Is received":    snap.WhoIsReceived,
		"I-Am sent":          snap.IAmSent,
		"I-Am received":      snap.IAmReceived,
		"Malformed frames":   snap.MalformedFrames,
		"Unsupported frames": snap.UnsupportedFrames,
		"Send failures":      snap.SendFailures,
		"Avg handling time":  snap.LatencyStats.Avg,
	}, []string{
		"Uptime",
		"Frames received",
		"Frames sent",
		"Who-Is sent",
		"Who-Is received",
		"I-Am sent",
		"I-Am received",
		"Malformed frames",
		"Unsupported frames",
		"Send failures",
		"Avg handling time",
	})
}
