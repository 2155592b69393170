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

package npdu

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Network numbers with special meaning.
const (
	LocalNetwork     uint16 = 0
	GlobalBroadcast  uint16 = 0xFFFF
	MaxAddressLength        = 7
)

// Address is a BACnet device address. MAC is the datalink address of the
// station, or of the router when Net names a remote network. Adr is the
// station's address on network Net. An empty MAC on the local network and
// an empty Adr on a remote network both denote a broadcast.
type Address struct {
	MAC []byte
	Net uint16
	Adr []byte
}

// LocalBroadcast returns the local broadcast address.
func LocalBroadcast() Address { return Address{} }

// GlobalBroadcastAddress returns the global broadcast address.
func GlobalBroadcastAddress() Address { return Address{Net: GlobalBroadcast} }

// IsBroadcast reports whether a addresses more than one station.
func (a Address) IsBroadcast() bool {
	switch a.Net {
	case GlobalBroadcast:
		return true
	case LocalNetwork:
		return len(a.MAC) == 0
	}
	return len(a.Adr) == 0
}

// IsRemote reports whether a is on another network.
func (a Address) IsRemote() bool {
	return a.Net != LocalNetwork && a.Net != GlobalBroadcast
}

// Equal reports whether a and b address the same station.
func (a Address) Equal(b Address) bool {
	return a.Net == b.Net && bytes.Equal(a.MAC, b.MAC) && bytes.Equal(a.Adr, b.Adr)
}

// Clone returns a deep copy.
func (a Address) Clone() Address {
	return Address{
		MAC: bytes.Clone(a.MAC),
		Net: a.Net,
		Adr: bytes.Clone(a.Adr),
	}
}

// Valid reports whether both address fields fit in an NPDU.
func (a Address) Valid() bool {
	return len(a.MAC) <= MaxAddressLength && len(a.Adr) <= MaxAddressLength
}

func (a Address) String() string {
	switch {
	case a.Net == GlobalBroadcast:
		return "global-broadcast"
	case a.Net == LocalNetwork && len(a.MAC) == 0:
		return "local-broadcast"
	case a.Net == LocalNetwork:
		return hex.EncodeToString(a.MAC)
	case len(a.Adr) == 0:
		return fmt.Sprintf("%d:broadcast", a.Net)
	}
	return fmt.Sprintf("%d:%s@%s", a.Net, hex.EncodeToString(a.Adr), hex.EncodeToString(a.MAC))
}
