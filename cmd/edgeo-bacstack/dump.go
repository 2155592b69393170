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
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/bacstack/bacnet"
)

var (
	dumpFile       string
	dumpProperties []string
	dumpObjects    []string
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the objects and properties of a device",
	Long: `Dump reads the object list of a device and then the selected properties of
every object with ReadPropertyMultiple.

Examples:
  # Dump all objects to stdout
  edgeo-bacstack dump -d 1234

  # Dump to a YAML file
  edgeo-bacstack dump -d 1234 -f device.yaml -o yaml

  # Dump analog inputs and outputs only
  edgeo-bacstack dump -d 1234 --objects analog-input,analog-output`,

	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpFile, "file", "f", "", "Output file (default: stdout)")
	dumpCmd.Flags().StringSliceVar(&dumpProperties, "props", []string{"object-name", "present-value", "description", "units", "status-flags"}, "Properties to read")
	dumpCmd.Flags().StringSliceVar(&dumpObjects, "objects", nil, "Object types to include (default: all)")
}

type dumpObject struct {
	Object     string                 `json:"object" yaml:"object"`
	Properties map[string]interface{} `json:"properties" yaml:"properties"`
	Errors     map[string]string      `json:"errors,omitempty" yaml:"errors,omitempty"`
}

type dumpResult struct {
	Device    uint32       `json:"device" yaml:"device"`
	Timestamp time.Time    `json:"timestamp" yaml:"timestamp"`
	Objects   []dumpObject `json:"objects" yaml:"objects"`
}

func runDump(cmd *cobra.Command, args []string) error {
	deviceID, err := targetDevice()
	if err != nil {
		return err
	}
	props, err := parseProperties(dumpProperties)
	if err != nil {
		return err
	}
	types := make(map[bacnet.ObjectType]bool)
	for _, s := range dumpObjects {
		t, ok := bacnet.ParseObjectType(s)
		if !ok {
			return fmt.Errorf("unknown object type: %s", s)
		}
		types[t] = true
	}

	s, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout(2))
	objects, err := s.client.GetObjectList(ctx, deviceID)
	cancel()
	if err != nil {
		return fmt.Errorf("read object list: %w", err)
	}

	result := dumpResult{Device: deviceID, Timestamp: time.Now()}
	for _, oid := range objects {
		if len(types) > 0 && !types[oid.Type] {
			continue
		}
		reqs := make([]bacnet.ReadPropertyRequest, len(props))
		for i, p := range props {
			reqs[i] = bacnet.ReadPropertyRequest{ObjectID: oid, PropertyID: p}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout(1))
		values, err := s.client.ReadPropertyMultiple(ctx, deviceID, reqs)
		cancel()
		if err != nil {
			logger.Warn("object not read", "object", oid.String(), "error", err)
			continue
		}

		obj := dumpObject{Object: oid.String(), Properties: make(map[string]interface{})}
		for _, pv := range values {
			if pv.Err != nil {
				if obj.Errors == nil {
					obj.Errors = make(map[string]string)
				}
				obj.Errors[pv.PropertyID.String()] = pv.Err.Error()
				continue
			}
			obj.Properties[pv.PropertyID.String()] = jsonValue(pv.Value)
		}
		result.Objects = append(result.Objects, obj)
	}

	f := NewFormatter()
	if dumpFile != "" {
		file, err := os.Create(dumpFile)
		if err != nil {
			return err
		}
		defer file.Close()
		f.writer = file
	}
	if !f.Structured() {
		f.format = FormatJSON
	}
	if err := f.Encode(result); err != nil {
		return err
	}
	if dumpFile != "" {
		fmt.Fprintf(os.Stderr, "Dumped %d objects to %s\n", len(result.Objects), dumpFile)
	}
	return nil
}
