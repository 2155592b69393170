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

package objectdb

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edgeo/drivers/bacstack/bacnet"
	"github.com/edgeo/drivers/bacstack/bacnet/tag"
)

// Value is a property value read from YAML. A sequence is a BACnet array.
//
// Plain scalars map to the obvious application type: floats are REAL,
// non-negative integers Unsigned, negative integers Signed, strings
// CharacterString. A single-key mapping selects the type explicitly:
//
//	{enumerated: 3}  {double: 1.5}  {octets: "0a0b"}  {bits: "0110"}
//	{date: "2025-03-01"}  {time: "12:30:00"}  {object: "analog-input:1"}
type Value struct {
	Values []tag.Value
	Array  bool
}

// UnmarshalYAML implements yaml.Unmarshaler
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		v.Array = true
		v.Values = make([]tag.Value, 0, len(node.Content))
		for _, n := range node.Content {
			tv, err := decodeNode(n)
			if err != nil {
				return err
			}
			v.Values = append(v.Values, tv)
		}
		return nil
	}
	tv, err := decodeNode(node)
	if err != nil {
		return err
	}
	v.Values = []tag.Value{tv}
	return nil
}

func decodeNode(node *yaml.Node) (tag.Value, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return decodeScalar(node)
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return tag.Value{}, fmt.Errorf("line %d: typed value needs exactly one key", node.Line)
		}
		typ, val := node.Content[0].Value, node.Content[1]
		if val.Kind != yaml.ScalarNode {
			return tag.Value{}, fmt.Errorf("line %d: %s value must be a scalar", val.Line, typ)
		}
		tv, err := ParseTyped(typ, val.Value)
		if err != nil {
			return tag.Value{}, fmt.Errorf("line %d: %w", val.Line, err)
		}
		return tv, nil
	}
	return tag.Value{}, fmt.Errorf("line %d: unsupported value", node.Line)
}

func decodeScalar(node *yaml.Node) (tag.Value, error) {
	switch node.ShortTag() {
	case "!!null":
		return tag.NullValue(), nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return tag.Value{}, err
		}
		return tag.BooleanValue(b), nil
	case "!!int":
		var n int64
		if err := node.Decode(&n); err != nil {
			return tag.Value{}, err
		}
		return integerValue(n, node.Line)
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return tag.Value{}, err
		}
		return tag.RealValue(float32(f)), nil
	}
	return tag.TextValue(node.Value), nil
}

func integerValue(n int64, line int) (tag.Value, error) {
	switch {
	case n >= 0 && n <= 0xFFFFFFFF:
		return tag.UnsignedValue(uint32(n)), nil
	case n < 0 && n >= -1<<31:
		return tag.SignedValue(int32(n)), nil
	}
	return tag.Value{}, fmt.Errorf("line %d: integer %d out of range", line, n)
}

// ParseTyped parses s as the named application type. The names are the
// ones accepted in YAML typed values.
func ParseTyped(typ, s string) (tag.Value, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(typ) {
	case "null":
		return tag.NullValue(), nil
	case "boolean", "bool":
		b, err := strconv.ParseBool(s)
		if err != nil {
			return tag.Value{}, fmt.Errorf("boolean %q: %w", s, err)
		}
		return tag.BooleanValue(b), nil
	case "unsigned":
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return tag.Value{}, fmt.Errorf("unsigned %q: %w", s, err)
		}
		return tag.UnsignedValue(uint32(n)), nil
	case "signed":
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return tag.Value{}, fmt.Errorf("signed %q: %w", s, err)
		}
		return tag.SignedValue(int32(n)), nil
	case "real":
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return tag.Value{}, fmt.Errorf("real %q: %w", s, err)
		}
		return tag.RealValue(float32(f)), nil
	case "double":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return tag.Value{}, fmt.Errorf("double %q: %w", s, err)
		}
		return tag.DoubleValue(f), nil
	case "text", "string":
		return tag.TextValue(s), nil
	case "octets":
		b, err := hex.DecodeString(s)
		if err != nil {
			return tag.Value{}, fmt.Errorf("octets %q: %w", s, err)
		}
		return tag.OctetStringValue(b), nil
	case "bits":
		bits := make([]bool, len(s))
		for i, c := range s {
			switch c {
			case '1':
				bits[i] = true
			case '0':
			default:
				return tag.Value{}, fmt.Errorf("bits %q: want 0 and 1 only", s)
			}
		}
		return tag.BitStringValue(tag.BitStringOf(bits...)), nil
	case "enumerated":
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return tag.Value{}, fmt.Errorf("enumerated %q: %w", s, err)
		}
		return tag.EnumeratedValue(uint32(n)), nil
	case "date":
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return tag.Value{}, fmt.Errorf("date %q: %w", s, err)
		}
		return tag.DateValue(tag.DateOf(t)), nil
	case "time":
		t, err := time.Parse(time.TimeOnly, s)
		if err != nil {
			return tag.Value{}, fmt.Errorf("time %q: %w", s, err)
		}
		return tag.TimeValue(tag.TimeOf(t)), nil
	case "object":
		oid, err := bacnet.ParseObjectIdentifier(s)
		if err != nil {
			return tag.Value{}, err
		}
		return tag.ObjectIDValue(oid.Wire()), nil
	}
	return tag.Value{}, fmt.Errorf("unknown value type %q", typ)
}
