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

//go:build !linux

package serial

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("serial: MS/TP serial ports are only supported on linux")

// Open is not supported on this platform
func Open(path string, baud int) (*os.File, error) {
	return nil, errUnsupported
}

// Supported reports false on this platform
func Supported(baud int) bool { return false }
