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

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/bacstack/bacnet"
)

var (
	readObject     string
	readProperties []string
	readArrayIndex int
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read properties from a BACnet object",
	Long: `Read retrieves property values from a BACnet object. One property is read
with ReadProperty; several are read in one ReadPropertyMultiple request.

Object types can be specified by name, short form or number:
  analog-input, ai, 0
  analog-output, ao, 1
  analog-value, av, 2
  binary-input, bi, 3
  binary-output, bo, 4
  binary-value, bv, 5
  device, dev, 8
  multi-state-input, msi, 13
  multi-state-output, mso, 14
  multi-state-value, msv, 19

Properties can be specified by name, short form or number:
  present-value, pv, 85
  object-name, name, 77
  description, desc, 28
  status-flags, sf, 111
  units, 117
  out-of-service, oos, 81

Examples:
  # Read present value from analog input 1
  edgeo-bacstack read -d 1234 -O analog-input:1 -P present-value

  # Read several properties at once
  edgeo-bacstack read -d 1234 -O ai:1 -P pv,name,units,sf

  # Read one element of the object list
  edgeo-bacstack read -d 1234 -O device:1234 -P object-list --index 1`,

	RunE: runRead,
}

func init() {
	readCmd.Flags().StringVarP(&readObject, "object", "O", "", "Object type and instance (e.g., analog-input:1 or ai:1)")
	readCmd.Flags().StringSliceVarP(&readProperties, "property", "P", []string{"present-value"}, "Property identifiers")
	readCmd.Flags().IntVar(&readArrayIndex, "index", -1, "Array index (-1 for no index)")

	readCmd.MarkFlagRequired("object")
}

func runRead(cmd *cobra.Command, args []string) error {
	deviceID, err := targetDevice()
	if err != nil {
		return err
	}
	objectID, err := bacnet.ParseObjectIdentifier(readObject)
	if err != nil {
		return fmt.Errorf("invalid object: %w", err)
	}
	props, err := parseProperties(readProperties)
	if err != nil {
		return err
	}

	s, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout(2))
	defer cancel()

	var index *uint32
	if readArrayIndex >= 0 {
		i := uint32(readArrayIndex)
		index = &i
	}

	var values []bacnet.PropertyValue
	if len(props) == 1 {
		var opts []bacnet.ReadOption
		if index != nil {
			opts = append(opts, bacnet.WithArrayIndex(*index))
		}
		v, err := s.client.ReadProperty(ctx, deviceID, objectID, props[0], opts...)
		if err != nil {
			return fmt.Errorf("read property: %w", err)
		}
		values = []bacnet.PropertyValue{{ObjectID: objectID, PropertyID: props[0], ArrayIndex: index, Value: v}}
	} else {
		reqs := make([]bacnet.ReadPropertyRequest, len(props))
		for i, p := range props {
			reqs[i] = bacnet.ReadPropertyRequest{ObjectID: objectID, PropertyID: p, ArrayIndex: index}
		}
		values, err = s.client.ReadPropertyMultiple(ctx, deviceID, reqs)
		if err != nil {
			return fmt.Errorf("read property multiple: %w", err)
		}
	}
	return printValues(NewFormatter(), values)
}

type valueRecord struct {
	Object   string      `json:"object" yaml:"object"`
	Property string      `json:"property" yaml:"property"`
	Index    *uint32     `json:"index,omitempty" yaml:"index,omitempty"`
	Value    interface{} `json:"value" yaml:"value"`
	Error    string      `json:"error,omitempty" yaml:"error,omitempty"`
}

func printValues(f *Formatter, values []bacnet.PropertyValue) error {
	if f.Structured() {
		records := make([]valueRecord, len(values))
		for i, pv := range values {
			records[i] = valueRecord{
				Object:   pv.ObjectID.String(),
				Property: pv.PropertyID.String(),
				Index:    pv.ArrayIndex,
				Value:    jsonValue(pv.Value),
			}
			if pv.Err != nil {
				records[i].Value = nil
				records[i].Error = pv.Err.Error()
			}
		}
		return f.Encode(records)
	}

	rows := make([][]string, len(values))
	for i, pv := range values {
		v := formatValue(pv.Value)
		if pv.Err != nil {
			v = "error: " + pv.Err.Error()
		}
		prop := pv.PropertyID.String()
		if pv.ArrayIndex != nil {
			prop = fmt.Sprintf("%s[%d]", prop, *pv.ArrayIndex)
		}
		rows[i] = []string{pv.ObjectID.String(), prop, v}
	}
	return f.Table([]string{"OBJECT", "PROPERTY", "VALUE"}, rows)
}
