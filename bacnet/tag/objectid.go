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

package tag

import "fmt"

// Object identifier limits.
const (
	MaxObjectType = 0x3FF
	MaxInstance   = 0x3FFFFF
)

// ObjectID is a packed object identifier: 10 bits of type, 22 bits of
// instance.
type ObjectID struct {
	Type     uint16
	Instance uint32
}

// Pack returns the 32-bit wire form.
func (o ObjectID) Pack() uint32 {
	return uint32(o.Type&MaxObjectType)<<22 | o.Instance&MaxInstance
}

// Valid reports whether both fields fit their bit widths.
func (o ObjectID) Valid() bool {
	return o.Type <= MaxObjectType && o.Instance <= MaxInstance
}

func (o ObjectID) String() string {
	return fmt.Sprintf("%d:%d", o.Type, o.Instance)
}

// UnpackObjectID splits the 32-bit wire form.
func UnpackObjectID(v uint32) ObjectID {
	return ObjectID{
		Type:     uint16(v >> 22),
		Instance: v & MaxInstance,
	}
}
