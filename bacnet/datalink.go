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

package bacnet

import (
	"time"

	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
)

// Frame is one NPDU received from the datalink.
type Frame struct {
	Source npdu.Address
	Data   []byte
}

// Datalink moves NPDUs between the stack and a physical network.
//
// ReceivePDU waits up to timeout and reports ok=false when nothing
// arrived. Only MAC is meaningful in the addresses a datalink handles;
// the network layer fills in Net and Adr.
type Datalink interface {
	SendPDU(dest npdu.Address, pdu []byte) (int, error)
	ReceivePDU(timeout time.Duration) (frame Frame, ok bool, err error)
	BroadcastAddress() npdu.Address
	MyAddress() npdu.Address
	Close() error
}
