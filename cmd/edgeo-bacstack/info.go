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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/bacstack/bacnet"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display device information",
	Long: `Info reads the descriptive properties of a device object.

Examples:
  edgeo-bacstack info -d 1234
  edgeo-bacstack info -d 1234 -o json`,

	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	deviceID, err := targetDevice()
	if err != nil {
		return err
	}
	s, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout(4))
	defer cancel()

	dev, err := s.client.ReadDeviceInfo(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("read device info: %w", err)
	}
	pairs := [][2]string{
		{"Device", dev.ObjectID.String()},
		{"Address", dev.Address.String()},
		{"Vendor ID", strconv.FormatUint(uint64(dev.VendorID), 10)},
		{"Vendor Name", dev.VendorName},
		{"Model Name", dev.ModelName},
		{"Firmware Revision", dev.FirmwareRevision},
		{"Application Software", dev.ApplicationSoftware},
		{"Description", dev.Description},
		{"Location", dev.Location},
		{"Max APDU Length", strconv.FormatUint(uint64(dev.MaxAPDULength), 10)},
		{"Segmentation", dev.Segmentation.String()},
	}

	// Not every device supports reading the length of its object list
	n, err := s.client.ReadProperty(ctx, deviceID, dev.ObjectID, bacnet.PropertyObjectList, bacnet.WithArrayIndex(0))
	if err == nil {
		pairs = append(pairs, [2]string{"Object Count", formatValue(n)})
	}
	return NewFormatter().KeyValue(pairs)
}
