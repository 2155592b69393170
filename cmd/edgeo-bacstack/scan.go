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
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/bacstack/bacnet"
	"github.com/edgeo/drivers/bacstack/internal/mqttpub"
)

var (
	scanTimeout   time.Duration
	scanLowLimit  uint32
	scanHighLimit uint32
	scanNetwork   uint16
	scanMQTT      string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BACnet devices on the network",
	Long: `Scan discovers BACnet devices by broadcasting Who-Is and collecting I-Am
replies.

Examples:
  # Discover all devices
  edgeo-bacstack scan

  # Discover devices with instances 1-100
  edgeo-bacstack scan --low 1 --high 100

  # Publish what was found to an MQTT broker
  edgeo-bacstack scan --mqtt tcp://broker:1883`,

	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", 5*time.Second, "Discovery timeout")
	scanCmd.Flags().Uint32Var(&scanLowLimit, "low", 0, "Low limit of the device instance range")
	scanCmd.Flags().Uint32Var(&scanHighLimit, "high", 0, "High limit of the device instance range (0 = no limit)")
	scanCmd.Flags().Uint16Var(&scanNetwork, "network", 0, "Target network number (0 = local)")
	scanCmd.Flags().StringVar(&scanMQTT, "mqtt", "", "MQTT broker URI to publish devices to")
}

func runScan(cmd *cobra.Command, args []string) error {
	s, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout+time.Second)
	defer cancel()

	fmt.Fprintln(os.Stderr, "Scanning for BACnet devices...")

	opts := []bacnet.DiscoverOption{bacnet.WithDiscoveryTimeout(scanTimeout)}
	if scanLowLimit > 0 || scanHighLimit > 0 {
		high := scanHighLimit
		if high == 0 {
			high = bacnet.UnconfiguredDeviceID
		}
		opts = append(opts, bacnet.WithDeviceRange(scanLowLimit, high))
	}
	if scanNetwork > 0 {
		opts = append(opts, bacnet.WithTargetNetwork(scanNetwork))
	}

	devices, err := s.client.WhoIs(ctx, opts...)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	if scanMQTT != "" {
		if err := publishDevices(devices); err != nil {
			return err
		}
	}
	if len(devices) == 0 {
		fmt.Fprintln(os.Stderr, "No devices found")
		return nil
	}
	return printDevices(NewFormatter(), devices)
}

func publishDevices(devices []*bacnet.DeviceInfo) error {
	uri, err := url.Parse(scanMQTT)
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	pub, err := mqttpub.Dial(uri, "edgeo-bacstack-scan", "bacstack", logger)
	if err != nil {
		return err
	}
	defer pub.Close()
	for _, dev := range devices {
		if err := pub.PublishDevice(dev); err != nil {
			return err
		}
	}
	return nil
}

type deviceRecord struct {
	Instance     uint32 `json:"instance" yaml:"instance"`
	Address      string `json:"address" yaml:"address"`
	VendorID     uint16 `json:"vendor_id" yaml:"vendor_id"`
	Segmentation string `json:"segmentation" yaml:"segmentation"`
	MaxAPDU      uint32 `json:"max_apdu" yaml:"max_apdu"`
}

func printDevices(f *Formatter, devices []*bacnet.DeviceInfo) error {
	if f.Structured() {
		records := make([]deviceRecord, len(devices))
		for i, dev := range devices {
			records[i] = deviceRecord{
				Instance:     dev.ObjectID.Instance,
				Address:      dev.Address.String(),
				VendorID:     dev.VendorID,
				Segmentation: dev.Segmentation.String(),
				MaxAPDU:      dev.MaxAPDULength,
			}
		}
		return f.Encode(records)
	}

	rows := make([][]string, len(devices))
	for i, dev := range devices {
		rows[i] = []string{
			strconv.FormatUint(uint64(dev.ObjectID.Instance), 10),
			dev.Address.String(),
			strconv.FormatUint(uint64(dev.VendorID), 10),
			dev.Segmentation.String(),
			strconv.FormatUint(uint64(dev.MaxAPDULength), 10),
		}
	}
	if err := f.Table([]string{"DEVICE ID", "ADDRESS", "VENDOR", "SEGMENTATION", "MAX APDU"}, rows); err != nil {
		return err
	}
	if f.format == FormatTable {
		fmt.Printf("\nFound %d device(s)\n", len(devices))
	}
	return nil
}
