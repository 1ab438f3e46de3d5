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
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeo/drivers/bacnetsim/bacnet"
	"github.com/edgeo/drivers/bacnetsim/bacnet/simulator"
)

var (
	cfgFile string
	verbose bool

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "edgeo-bacnet-sim",
	Short: "Simulate a segment of BACnet/IP devices",
	Long: `edgeo-bacnet-sim runs a set of simulated BACnet/IP devices that announce
themselves with Who-Is / I-Am discovery on a shared network segment.

Every device carries analog, binary and multi-state input, output and value
objects, or with --profiles the objects of its equipment type. The devices
broadcast a Who-Is shortly after startup and answer the Who-Is of any other
device in range.

Examples:
  # Run the default three devices from 192.168.1.10
  edgeo-bacnet-sim run

  # Run ten devices on a private in-memory segment
  edgeo-bacnet-sim run --devices 10 --virtual

  # List the devices a run would create
  edgeo-bacnet-sim devices -o yaml`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := slog.LevelInfo
		if viper.GetBool("verbose") {
			logLevel = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))

		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.edgeo-bacnet-sim.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	addSimulationFlags(rootCmd, viper.GetViper())

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(versionCmd)
}

// addSimulationFlags declares the simulation flags on cmd and binds them to v
func addSimulationFlags(cmd *cobra.Command, v *viper.Viper) {
	defaults := simulator.DefaultConfig()

	flags := cmd.PersistentFlags()
	flags.UintP("devices", "n", defaults.DeviceCount, "Number of simulated devices")
	flags.Uint("objects-per-type", defaults.ObjectsPerType, "Objects of each type per device")
	flags.StringP("base-address", "b", "192.168.1.10/24", "Address of the first device (ip[/bits][:port])")
	flags.Uint16P("port", "p", bacnet.DefaultPort, "BACnet/IP port, overrides the port of --base-address")
	flags.String("address-plan", "hosts", "How device addresses follow the base address (hosts, ports, hosts+ports)")
	flags.Bool("profiles", false, "Give every device an equipment profile with its own objects")
	flags.Uint16("vendor-id", defaults.VendorID, "Vendor identifier announced in I-Am")
	flags.Uint32("first-instance", defaults.FirstInstance, "Device instance of the first device")
	flags.Uint16("max-apdu", defaults.MaxAPDULength, "Max APDU length accepted")
	flags.String("segmentation", "both", "Segmentation support (both, transmit, receive, none)")
	flags.Duration("startup-delay", defaults.StartupDelay, "Delay before the startup Who-Is")
	flags.Bool("virtual", false, "Use an in-memory segment instead of UDP sockets")
	flags.Bool("unicast-iam", false, "Answer Who-Is with a unicast I-Am")

	for _, key := range []string{
		"devices", "objects-per-type", "base-address", "port", "address-plan",
		"profiles", "vendor-id", "first-instance", "max-apdu", "segmentation",
		"startup-delay", "virtual", "unicast-iam",
	} {
		v.BindPFlag(key, flags.Lookup(key))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".edgeo-bacnet-sim")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BACNETSIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// loadConfig builds the simulation config from flags, environment and the
// config file. An explicitly set port wins over the port of the base
// address; the base address port wins over the default.
func loadConfig(v *viper.Viper) (simulator.Config, error) {
	cfg := simulator.DefaultConfig()

	base, err := bacnet.ParseAddress(v.GetString("base-address"))
	if err != nil {
		return cfg, fmt.Errorf("base address: %w", err)
	}
	if v.IsSet("port") {
		base.Port = uint16(v.GetUint("port"))
	}

	seg, ok := bacnet.ParseSegmentation(v.GetString("segmentation"))
	if !ok {
		return cfg, fmt.Errorf("%w: unknown segmentation %q", bacnet.ErrInvalidConfiguration, v.GetString("segmentation"))
	}
	plan, ok := simulator.ParseAddressPlan(v.GetString("address-plan"))
	if !ok {
		return cfg, fmt.Errorf("%w: unknown address plan %q", bacnet.ErrInvalidConfiguration, v.GetString("address-plan"))
	}

	cfg.DeviceCount = v.GetUint("devices")
	cfg.ObjectsPerType = v.GetUint("objects-per-type")
	cfg.BaseAddress = base
	cfg.AddressPlan = plan
	cfg.Profiles = v.GetBool("profiles")
	cfg.VendorID = uint16(v.GetUint("vendor-id"))
	cfg.FirstInstance = v.GetUint32("first-instance")
	cfg.MaxAPDULength = uint16(v.GetUint("max-apdu"))
	cfg.Segmentation = seg
	cfg.StartupDelay = v.GetDuration("startup-delay")
	cfg.UnicastIAm = v.GetBool("unicast-iam")

	return cfg, cfg.Validate()
}

// buildSimulation creates a controller with the current configuration
func buildSimulation(opts ...simulator.Option) (*simulator.Controller, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}

	opts = append([]simulator.Option{simulator.WithLogger(logger)}, opts...)
	if viper.GetBool("virtual") {
		opts = append(opts, simulator.WithVirtualLink())
	}
	return simulator.BuildSimulation(cfg, opts...)
}

const version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("edgeo-bacnet-sim version %s\n", version)
	},
}
