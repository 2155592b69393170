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

// Package objectdb serves a BACnet device object table described in YAML.
package objectdb

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/edgeo/drivers/bacstack/bacnet"
	"github.com/edgeo/drivers/bacstack/bacnet/tag"
)

// Config is the YAML document describing a device and its objects
type Config struct {
	Device  DeviceConfig   `yaml:"device"`
	Objects []ObjectConfig `yaml:"objects"`
}

// DeviceConfig describes the device object
type DeviceConfig struct {
	Instance         uint32           `yaml:"instance"`
	Name             string           `yaml:"name"`
	Description      string           `yaml:"description,omitempty"`
	Location         string           `yaml:"location,omitempty"`
	VendorID         uint16           `yaml:"vendor-id"`
	VendorName       string           `yaml:"vendor-name"`
	ModelName        string           `yaml:"model-name"`
	FirmwareRevision string           `yaml:"firmware-revision,omitempty"`
	SoftwareVersion  string           `yaml:"application-software-version,omitempty"`
	Password         string           `yaml:"password,omitempty"` // DeviceCommunicationControl and ReinitializeDevice
	Properties       map[string]Value `yaml:"properties,omitempty"`
}

// ObjectConfig describes one object
type ObjectConfig struct {
	ID                string           `yaml:"id"` // type:instance, e.g. analog-input:1
	Name              string           `yaml:"name"`
	Description       string           `yaml:"description,omitempty"`
	Units             string           `yaml:"units,omitempty"`
	PresentValue      *Value           `yaml:"present-value,omitempty"`
	Commandable       bool             `yaml:"commandable,omitempty"`
	RelinquishDefault *Value           `yaml:"relinquish-default,omitempty"`
	Writable          []string         `yaml:"writable,omitempty"`
	Properties        map[string]Value `yaml:"properties,omitempty"`
}

// Load reads and validates the object table at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("objectdb: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("objectdb: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates an object table
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks identifiers, names and value shapes
func (c *Config) Validate() error {
	if c.Device.Instance > tag.MaxInstance {
		return fmt.Errorf("device instance %d out of range", c.Device.Instance)
	}
	if c.Device.Name == "" {
		return fmt.Errorf("device name is required")
	}
	if len(c.Device.Password) > bacnet.MaxPasswordLength {
		return fmt.Errorf("device password longer than %d characters", bacnet.MaxPasswordLength)
	}

	ids := make(map[bacnet.ObjectIdentifier]bool)
	names := map[string]bool{c.Device.Name: true}
	for i, o := range c.Objects {
		oid, err := bacnet.ParseObjectIdentifier(o.ID)
		if err != nil {
			return fmt.Errorf("objects[%d]: %w", i, err)
		}
		if oid.Type == bacnet.ObjectTypeDevice {
			return fmt.Errorf("objects[%d]: the device object is configured under device", i)
		}
		if ids[oid] {
			return fmt.Errorf("objects[%d]: duplicate object %s", i, oid)
		}
		ids[oid] = true

		if o.Name == "" {
			return fmt.Errorf("objects[%d]: %s has no name", i, oid)
		}
		if names[o.Name] {
			return fmt.Errorf("objects[%d]: duplicate object name %q", i, o.Name)
		}
		names[o.Name] = true

		if o.PresentValue != nil && o.PresentValue.Array {
			return fmt.Errorf("objects[%d]: present-value must be a single value", i)
		}
		if o.Commandable && o.PresentValue == nil && o.RelinquishDefault == nil {
			return fmt.Errorf("objects[%d]: commandable object needs present-value or relinquish-default", i)
		}
		if o.RelinquishDefault != nil && (o.RelinquishDefault.Array || !o.Commandable) {
			return fmt.Errorf("objects[%d]: relinquish-default needs a single value on a commandable object", i)
		}
	}
	return nil
}
