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

//go:build linux

package serial

import (
	"path/filepath"
	"testing"
)

func TestSupported(t *testing.T) {
	for _, baud := range []int{9600, 19200, 38400, 57600, 115200} {
		if !Supported(baud) {
			t.Errorf("Supported(%d) = false", baud)
		}
	}
	if Supported(1200) {
		t.Error("Supported(1200) = true")
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := Open("/dev/null", 300); err == nil {
		t.Error("Open accepted 300 baud")
	}
	if _, err := Open(filepath.Join(t.TempDir(), "ttyMISSING"), 38400); err == nil {
		t.Error("Open accepted a missing device")
	}
	// /dev/null is not a terminal
	if _, err := Open("/dev/null", 38400); err == nil {
		t.Error("Open configured /dev/null")
	}
}
