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
	"strconv"
	"strings"

	"github.com/edgeo/drivers/bacstack/bacnet"
	"github.com/edgeo/drivers/bacstack/internal/objectdb"
)

func parseProperty(s string) (bacnet.PropertyIdentifier, error) {
	p, ok := bacnet.ParsePropertyIdentifier(s)
	if !ok {
		return 0, fmt.Errorf("unknown property: %s", s)
	}
	return p, nil
}

func parseProperties(list []string) ([]bacnet.PropertyIdentifier, error) {
	props := make([]bacnet.PropertyIdentifier, 0, len(list))
	for _, s := range list {
		p, err := parseProperty(s)
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, nil
}

// parseValue converts a command line value. With typ set the value is
// encoded with that application tag (see objectdb.ParseTyped); otherwise
// the type is guessed.
func parseValue(s, typ string) (interface{}, error) {
	if typ != "" {
		v, err := objectdb.ParseTyped(typ, s)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	s = strings.TrimSpace(s)

	switch strings.ToLower(s) {
	case "null":
		return nil, nil
	case "true", "active", "on":
		return true, nil
	case "false", "inactive", "off":
		return false, nil
	}

	// Quoted string
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1], nil
	}

	if strings.ContainsAny(s, ".eE") {
		if f, err := strconv.ParseFloat(s, 32); err == nil {
			return float32(f), nil
		}
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		if i < 0 {
			if i < -1<<31 {
				return nil, fmt.Errorf("%s is out of range", s)
			}
			return int32(i), nil
		}
		if i > 1<<32-1 {
			return nil, fmt.Errorf("%s is out of range", s)
		}
		return uint32(i), nil
	}
	return s, nil
}
