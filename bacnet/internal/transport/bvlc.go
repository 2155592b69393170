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

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// DefaultPort is the standard BACnet/IP UDP port
const DefaultPort = 47808

// BVLCTypeBACnetIP is the only BVLC type octet defined for IPv4
const BVLCTypeBACnetIP = 0x81

// HeaderLength is the size of the fixed BVLC header
const HeaderLength = 4

// Errors
var (
	ErrInvalidBVLC = errors.New("transport: invalid BVLC header")
	ErrNotOpen     = errors.New("transport: not open")
)

// Function is a BVLC function code
type Function uint8

const (
	FunctionResult                            Function = 0x00
	FunctionWriteBroadcastDistributionTable   Function = 0x01
	FunctionReadBroadcastDistributionTable    Function = 0x02
	FunctionReadBroadcastDistributionTableAck Function = 0x03
	FunctionForwardedNPDU                     Function = 0x04
	FunctionRegisterForeignDevice             Function = 0x05
	FunctionReadForeignDeviceTable            Function = 0x06
	FunctionReadForeignDeviceTableAck         Function = 0x07
	FunctionDeleteForeignDeviceTableEntry     Function = 0x08
	FunctionDistributeBroadcastToNetwork      Function = 0x09
	FunctionOriginalUnicastNPDU               Function = 0x0A
	FunctionOriginalBroadcastNPDU             Function = 0x0B
	FunctionSecureBVLL                        Function = 0x0C
)

var functionNames = map[Function]string{
	FunctionResult:                            "BVLC-Result",
	FunctionWriteBroadcastDistributionTable:   "Write-Broadcast-Distribution-Table",
	FunctionReadBroadcastDistributionTable:    "Read-Broadcast-Distribution-Table",
	FunctionReadBroadcastDistributionTableAck: "Read-Broadcast-Distribution-Table-Ack",
	FunctionForwardedNPDU:                     "Forwarded-NPDU",
	FunctionRegisterForeignDevice:             "Register-Foreign-Device",
	FunctionReadForeignDeviceTable:            "Read-Foreign-Device-Table",
	FunctionReadForeignDeviceTableAck:         "Read-Foreign-Device-Table-Ack",
	FunctionDeleteForeignDeviceTableEntry:     "Delete-Foreign-Device-Table-Entry",
	FunctionDistributeBroadcastToNetwork:      "Distribute-Broadcast-To-Network",
	FunctionOriginalUnicastNPDU:               "Original-Unicast-NPDU",
	FunctionOriginalBroadcastNPDU:             "Original-Broadcast-NPDU",
	FunctionSecureBVLL:                        "Secure-BVLL",
}

func (f Function) String() string {
	if name, ok := functionNames[f]; ok {
		return name
	}
	return fmt.Sprintf("BVLC(0x%02X)", uint8(f))
}

// Result codes carried by a BVLC-Result
const (
	ResultSuccessful                      uint16 = 0x0000
	ResultWriteBDTNAK                     uint16 = 0x0010
	ResultReadBDTNAK                      uint16 = 0x0020
	ResultRegisterForeignDeviceNAK        uint16 = 0x0030
	ResultReadFDTNAK                      uint16 = 0x0040
	ResultDeleteFDTEntryNAK               uint16 = 0x0050
	ResultDistributeBroadcastToNetworkNAK uint16 = 0x0060
)

// Message is a decoded BVLL message.
type Message struct {
	Function Function

	// Origin is the original source of a Forwarded-NPDU.
	Origin *net.UDPAddr

	// Result is set for BVLC-Result, TTL for Register-Foreign-Device.
	Result uint16
	TTL    uint16

	// NPDU is set for the functions that carry one.
	NPDU []byte
}

// HasNPDU reports whether the message carries an NPDU for the network layer.
func (m *Message) HasNPDU() bool {
	switch m.Function {
	case FunctionForwardedNPDU, FunctionOriginalUnicastNPDU,
		FunctionOriginalBroadcastNPDU, FunctionDistributeBroadcastToNetwork:
		return true
	}
	return false
}

// Encode builds a BVLL frame carrying npdu with function f.
func Encode(f Function, npdu []byte) []byte {
	buf := make([]byte, HeaderLength+len(npdu))
	buf[0] = BVLCTypeBACnetIP
	buf[1] = byte(f)
	binary.BigEndian.PutUint16(buf[2:], uint16(len(buf)))
	copy(buf[HeaderLength:], npdu)
	return buf
}

// EncodeForwarded builds a Forwarded-NPDU carrying the original source.
func EncodeForwarded(origin *net.UDPAddr, npdu []byte) []byte {
	buf := make([]byte, HeaderLength+6+len(npdu))
	buf[0] = BVLCTypeBACnetIP
	buf[1] = byte(FunctionForwardedNPDU)
	binary.BigEndian.PutUint16(buf[2:], uint16(len(buf)))
	copy(buf[4:8], origin.IP.To4())
	binary.BigEndian.PutUint16(buf[8:], uint16(origin.Port))
	copy(buf[10:], npdu)
	return buf
}

// EncodeRegisterForeignDevice builds a Register-Foreign-Device request.
func EncodeRegisterForeignDevice(ttl uint16) []byte {
	buf := make([]byte, 6)
	buf[0] = BVLCTypeBACnetIP
	buf[1] = byte(FunctionRegisterForeignDevice)
	binary.BigEndian.PutUint16(buf[2:], 6)
	binary.BigEndian.PutUint16(buf[4:], ttl)
	return buf
}

// EncodeResult builds a BVLC-Result.
func EncodeResult(code uint16) []byte {
	buf := make([]byte, 6)
	buf[0] = BVLCTypeBACnetIP
	buf[1] = byte(FunctionResult)
	binary.BigEndian.PutUint16(buf[2:], 6)
	binary.BigEndian.PutUint16(buf[4:], code)
	return buf
}

// Decode parses one BVLL frame. The length field must match the datagram.
func Decode(data []byte) (*Message, error) {
	if len(data) < HeaderLength {
		return nil, fmt.Errorf("%w: %d octets", ErrInvalidBVLC, len(data))
	}
	if data[0] != BVLCTypeBACnetIP {
		return nil, fmt.Errorf("%w: type 0x%02X", ErrInvalidBVLC, data[0])
	}
	length := int(binary.BigEndian.Uint16(data[2:]))
	if length != len(data) {
		return nil, fmt.Errorf("%w: length %d, datagram %d", ErrInvalidBVLC, length, len(data))
	}

	m := &Message{Function: Function(data[1])}
	body := data[HeaderLength:]
	switch m.Function {
	case FunctionResult:
		if len(body) < 2 {
			return nil, fmt.Errorf("%w: short result", ErrInvalidBVLC)
		}
		m.Result = binary.BigEndian.Uint16(body)
	case FunctionRegisterForeignDevice:
		if len(body) < 2 {
			return nil, fmt.Errorf("%w: short registration", ErrInvalidBVLC)
		}
		m.TTL = binary.BigEndian.Uint16(body)
	case FunctionForwardedNPDU:
		if len(body) < 6 {
			return nil, fmt.Errorf("%w: short forwarded NPDU", ErrInvalidBVLC)
		}
		m.Origin = &net.UDPAddr{
			IP:   net.IPv4(body[0], body[1], body[2], body[3]),
			Port: int(binary.BigEndian.Uint16(body[4:])),
		}
		m.NPDU = body[6:]
	case FunctionOriginalUnicastNPDU, FunctionOriginalBroadcastNPDU, FunctionDistributeBroadcastToNetwork:
		m.NPDU = body
	}
	return m, nil
}

// AddrToMAC returns the 6-octet BACnet/IP MAC for addr.
func AddrToMAC(addr *net.UDPAddr) []byte {
	mac := make([]byte, 6)
	copy(mac, addr.IP.To4())
	binary.BigEndian.PutUint16(mac[4:], uint16(addr.Port))
	return mac
}

// MACToAddr is the inverse of AddrToMAC.
func MACToAddr(mac []byte) (*net.UDPAddr, error) {
	if len(mac) != 6 {
		return nil, fmt.Errorf("transport: BACnet/IP MAC must be 6 octets, got %d", len(mac))
	}
	return &net.UDPAddr{
		IP:   net.IPv4(mac[0], mac[1], mac[2], mac[3]),
		Port: int(binary.BigEndian.Uint16(mac[4:])),
	}, nil
}
