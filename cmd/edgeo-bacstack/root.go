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
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeo/drivers/bacstack/bacnet"
)

var (
	cfgFile string
	logger  = slog.Default()

	// BACSTACK_BBMD_TTL for --bbmd-ttl
	envKeys = strings.NewReplacer("-", "_")
)

var rootCmd = &cobra.Command{
	Use:   "edgeo-bacstack",
	Short: "BACnet device server and client",
	Long: `edgeo-bacstack serves a BACnet device described in YAML and talks to other
BACnet devices over BACnet/IP.

Examples:
  # Serve the objects in plant.yaml with Prometheus metrics
  edgeo-bacstack serve --objects plant.yaml --metrics :9108

  # Discover devices on the network
  edgeo-bacstack scan

  # Read a property from a device
  edgeo-bacstack read -d 1234 -O analog-input:1 -P present-value

  # Decode a capture file
  edgeo-bacstack pcap site.pcapng`,
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if viper.GetBool("verbose") {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.edgeo-bacstack.yaml)")
	pf.StringP("local", "l", "", "Local BACnet/IP address (default every interface, port 47808)")
	pf.String("broadcast", "", "Broadcast IP used for Who-Is and I-Am")
	pf.Uint32P("device", "d", 0, "Target device instance")
	pf.DurationP("timeout", "t", 3*time.Second, "APDU timeout")
	pf.Int("retries", 3, "Retries before a request fails")
	pf.StringP("output", "o", "table", "Output format (table, json, csv, yaml)")
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	pf.String("bbmd", "", "BBMD address for foreign device registration (host:port)")
	pf.Duration("bbmd-ttl", 60*time.Second, "Foreign device registration TTL")

	if err := viper.BindPFlags(pf); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(dccCmd)
	rootCmd.AddCommand(reinitCmd)
	rootCmd.AddCommand(interactiveCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(pcapCmd)
	rootCmd.AddCommand(versionCmd)
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
		viper.SetConfigName(".edgeo-bacstack")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BACSTACK")
	viper.SetEnvKeyReplacer(envKeys)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// openBIP opens the BACnet/IP datalink configured by the global flags
func openBIP(ctx context.Context) (*bacnet.BIP, error) {
	opts := []bacnet.BIPOption{bacnet.WithBIPLogger(logger)}
	if ip := viper.GetString("broadcast"); ip != "" {
		opts = append(opts, bacnet.WithBroadcastIP(ip))
	}
	if bbmd := viper.GetString("bbmd"); bbmd != "" {
		opts = append(opts, bacnet.WithForeignDevice(bbmd, viper.GetDuration("bbmd-ttl")))
	}
	link, err := bacnet.NewBIP(viper.GetString("local"), opts...)
	if err != nil {
		return nil, err
	}
	if err := link.Open(ctx); err != nil {
		return nil, fmt.Errorf("open BACnet/IP: %w", err)
	}
	return link, nil
}

// session is a running client stack
type session struct {
	client *bacnet.Client
	stack  *bacnet.Stack
	cancel context.CancelFunc
	done   chan error
}

// connect starts a client stack on BACnet/IP
func connect(ctx context.Context) (*session, error) {
	link, err := openBIP(ctx)
	if err != nil {
		return nil, err
	}
	stack := bacnet.NewStack(link,
		bacnet.WithAPDUTimeout(viper.GetDuration("timeout")),
		bacnet.WithRetries(viper.GetInt("retries")),
		bacnet.WithLogger(logger))

	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		client: bacnet.NewClient(stack),
		stack:  stack,
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() {
		s.done <- stack.Run(runCtx)
	}()
	return s, nil
}

// Close stops the stack and releases the datalink
func (s *session) Close() {
	s.cancel()
	<-s.done
	s.stack.Close()
}

// targetDevice returns the --device instance
func targetDevice() (uint32, error) {
	if !viper.IsSet("device") {
		return 0, fmt.Errorf("device instance is required (-d or --device)")
	}
	id := viper.GetUint32("device")
	if id >= bacnet.UnconfiguredDeviceID {
		return 0, fmt.Errorf("device instance %d out of range", id)
	}
	return id, nil
}

// requestTimeout bounds a command issuing n requests
func requestTimeout(n int) time.Duration {
	per := viper.GetDuration("timeout") * time.Duration(viper.GetInt("retries")+1)
	return per * time.Duration(n)
}

var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("edgeo-bacstack version %s\n", version)
	},
}
