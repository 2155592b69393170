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
	"encoding/binary"
	"fmt"
)

// MessageType is a network layer message type.
type MessageType uint8

const (
	WhoIsRouterToNetwork         MessageType = 0x00
	IAmRouterToNetwork           MessageType = 0x01
	ICouldBeRouterToNetwork      MessageType = 0x02
	RejectMessageToNetwork       MessageType = 0x03
	RouterBusyToNetwork          MessageType = 0x04
	RouterAvailableToNetwork     MessageType = 0x05
	InitializeRoutingTable       MessageType = 0x06
	InitializeRoutingTableAck    MessageType = 0x07
	EstablishConnectionToNetwork MessageType = 0x08
	DisconnectConnectionToNet    MessageType = 0x09
	WhatIsNetworkNumber          MessageType = 0x12
	NetworkNumberIs              MessageType = 0x13
)

var messageTypeNames = map[MessageType]string{
	WhoIsRouterToNetwork:         "Who-Is-Router-To-Network",
	IAmRouterToNetwork:           "I-Am-Router-To-Network",
	ICouldBeRouterToNetwork:      "I-Could-Be-Router-To-Network",
	RejectMessageToNetwork:       "Reject-Message-To-Network",
	RouterBusyToNetwork:          "Router-Busy-To-Network",
	RouterAvailableToNetwork:     "Router-Available-To-Network",
	InitializeRoutingTable:       "Initialize-Routing-Table",
	InitializeRoutingTableAck:    "Initialize-Routing-Table-Ack",
	EstablishConnectionToNetwork: "Establish-Connection-To-Network",
	DisconnectConnectionToNet:    "Disconnect-Connection-To-Network",
	WhatIsNetworkNumber:          "What-Is-Network-Number",
	NetworkNumberIs:              "Network-Number-Is",
}

// IsProprietary reports whether a vendor ID follows the type octet.
func (m MessageType) IsProprietary() bool { return m >= 0x80 }

func (m MessageType) String() string {
	if name, ok := messageTypeNames[m]; ok {
		return name
	}
	if m.IsProprietary() {
		return fmt.Sprintf("Proprietary(0x%02X)", uint8(m))
	}
	return fmt.Sprintf("MessageType(0x%02X)", uint8(m))
}

// Network-Number-Is status values.
const (
	NetworkNumberLearned    uint8 = 0
	NetworkNumberConfigured uint8 = 1
)

// EncodeNetworkNumberIs builds a complete Network-Number-Is NPDU for the
// local network.
func EncodeNetworkNumberIs(net uint16, configured bool) []byte {
	status := NetworkNumberLearned
	if configured {
		status = NetworkNumberConfigured
	}
	h := Header{NetworkMessage: true, MessageType: NetworkNumberIs}
	payload := make([]byte, 3)
	binary.BigEndian.PutUint16(payload, net)
	payload[2] = status
	return Encode(h, payload)
}

// EncodeWhatIsNetworkNumber builds a What-Is-Network-Number NPDU.
func EncodeWhatIsNetworkNumber() []byte {
	return Encode(Header{NetworkMessage: true, MessageType: WhatIsNetworkNumber}, nil)
}

// DecodeNetworkNumberIs decodes the body of a Network-Number-Is message.
func DecodeNetworkNumberIs(payload []byte) (net uint16, status uint8, err error) {
	if len(payload) < 3 {
		return 0, 0, ErrTruncated
	}
	return binary.BigEndian.Uint16(payload), payload[2], nil
}
