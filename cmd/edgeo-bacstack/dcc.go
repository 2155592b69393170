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
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/bacstack/bacnet"
)

var (
	dccDuration time.Duration
	dccPassword string
)

var dccCmd = &cobra.Command{
	Use:   "dcc <enable|disable|disable-initiation>",
	Short: "Send DeviceCommunicationControl to a device",
	Long: `Dcc enables or disables communication on a device. A disabled device
answers only DeviceCommunicationControl and ReinitializeDevice.

Examples:
  # Silence a device for 10 minutes
  edgeo-bacstack dcc disable -d 1234 --duration 10m --password filister

  # Enable it again
  edgeo-bacstack dcc enable -d 1234 --password filister`,
	Args: cobra.ExactArgs(1),

	RunE: runDCC,
}

func init() {
	dccCmd.Flags().DurationVar(&dccDuration, "duration", 0, "Time before the device enables itself again (0 = indefinitely)")
	dccCmd.Flags().StringVar(&dccPassword, "password", "", "Device password")
}

func runDCC(cmd *cobra.Command, args []string) error {
	deviceID, err := targetDevice()
	if err != nil {
		return err
	}
	state, ok := bacnet.ParseCommunicationState(strings.ToLower(args[0]))
	if !ok {
		return fmt.Errorf("unknown communication state %q", args[0])
	}
	if len(dccPassword) > bacnet.MaxPasswordLength {
		return fmt.Errorf("password longer than %d characters", bacnet.MaxPasswordLength)
	}

	s, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout(2))
	defer cancel()

	if err := s.client.DeviceCommunicationControl(ctx, deviceID, state, dccDuration, dccPassword); err != nil {
		return fmt.Errorf("device communication control: %w", err)
	}
	fmt.Printf("Device %d: communication %s\n", deviceID, state)
	return nil
}

var reinitPassword string

var reinitCmd = &cobra.Command{
	Use:   "reinit <coldstart|warmstart|start-backup|end-backup|start-restore|end-restore|abort-restore|activate-changes>",
	Short: "Send ReinitializeDevice to a device",
	Long: `Reinit asks a device to restart or to enter a backup or restore procedure.

Examples:
  edgeo-bacstack reinit warmstart -d 1234 --password filister`,
	Args: cobra.ExactArgs(1),

	RunE: runReinit,
}

func init() {
	reinitCmd.Flags().StringVar(&reinitPassword, "password", "", "Device password")
}

func runReinit(cmd *cobra.Command, args []string) error {
	deviceID, err := targetDevice()
	if err != nil {
		return err
	}
	state, ok := bacnet.ParseReinitializedState(strings.ToLower(args[0]))
	if !ok {
		return fmt.Errorf("unknown reinitialized state %q", args[0])
	}
	if len(reinitPassword) > bacnet.MaxPasswordLength {
		return fmt.Errorf("password longer than %d characters", bacnet.MaxPasswordLength)
	}

	s, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout(2))
	defer cancel()

	if err := s.client.ReinitializeDevice(ctx, deviceID, state, reinitPassword); err != nil {
		return fmt.Errorf("reinitialize device: %w", err)
	}
	fmt.Printf("Device %d: %s accepted\n", deviceID, state)
	return nil
}
