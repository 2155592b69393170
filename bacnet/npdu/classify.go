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

// Message is an inbound NPDU that a non-routing device must process.
type Message struct {
	Header Header
	// Payload is the APDU, or the network message body.
	Payload []byte
}

// IsNetworkMessage reports whether Payload is a network message body.
func (m Message) IsNetworkMessage() bool { return m.Header.NetworkMessage }

// Classify decodes b and decides whether it is for this device. Any
// returned error means the NPDU is dropped without reply.
func Classify(b []byte) (Message, error) {
	if len(b) == 0 {
		return Message{}, ErrTruncated
	}
	h, off, err := Decode(b)
	if err != nil {
		return Message{}, err
	}
	remote := h.Dest != nil && h.Dest.Net != GlobalBroadcast

	if h.NetworkMessage {
		if remote {
			return Message{}, ErrRouted
		}
		return Message{Header: h, Payload: b[off:]}, nil
	}
	if off >= len(b) {
		return Message{}, ErrNoAPDU
	}
	if remote {
		return Message{}, ErrRouted
	}
	payload := b[off:]
	if h.Dest != nil && payload[0]>>4 == 0 {
		return Message{}, ErrConfirmedBroadcast
	}
	return Message{Header: h, Payload: payload}, nil
}
