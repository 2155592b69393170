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

// Package tag implements the BACnet tagged encoding of primitive values
// (ASHRAE 135 clause 20.2).
//
// Decoders never read past the slice they are given: a short buffer yields
// ErrTruncated and an inconsistent header yields ErrMalformedTag. Encoders
// write through a Writer, which can also run in measure-only mode.
package tag

import (
	"encoding/binary"
	"fmt"
)

// Class is the tag class bit.
type Class uint8

const (
	ClassApplication Class = 0
	ClassContext     Class = 1
)

func (c Class) String() string {
	if c == ClassContext {
		return "context"
	}
	return "application"
}

// ApplicationTag is the tag number of an application-class tag.
type ApplicationTag uint8

const (
	AppNull            ApplicationTag = 0
	AppBoolean         ApplicationTag = 1
	AppUnsigned        ApplicationTag = 2
	AppSigned          ApplicationTag = 3
	AppReal            ApplicationTag = 4
	AppDouble          ApplicationTag = 5
	AppOctetString     ApplicationTag = 6
	AppCharacterString ApplicationTag = 7
	AppBitString       ApplicationTag = 8
	AppEnumerated      ApplicationTag = 9
	AppDate            ApplicationTag = 10
	AppTime            ApplicationTag = 11
	AppObjectID        ApplicationTag = 12
)

var applicationTagNames = map[ApplicationTag]string{
	AppNull:            "null",
	AppBoolean:         "boolean",
	AppUnsigned:        "unsigned",
	AppSigned:          "signed",
	AppReal:            "real",
	AppDouble:          "double",
	AppOctetString:     "octet-string",
	AppCharacterString: "character-string",
	AppBitString:       "bit-string",
	AppEnumerated:      "enumerated",
	AppDate:            "date",
	AppTime:            "time",
	AppObjectID:        "object-identifier",
}

func (t ApplicationTag) String() string {
	if name, ok := applicationTagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("application-tag(%d)", uint8(t))
}

const (
	lvtExtended = 5
	lvtOpening  = 6
	lvtClosing  = 7

	extendedNumber = 0x0F
	reservedNumber = 0xFF
	extended16     = 254
	extended32     = 255
)

// Tag is a decoded tag header.
type Tag struct {
	Number  uint8
	Class   Class
	Opening bool
	Closing bool
	// Length is the content length in octets. For an application
	// boolean it carries the value itself and no content follows.
	Length uint32
}

// IsApplication reports whether t is an application tag of the given type.
func (t Tag) IsApplication(a ApplicationTag) bool {
	return t.Class == ClassApplication && t.Number == uint8(a)
}

// IsContext reports whether t is a primitive context tag with number n.
func (t Tag) IsContext(n uint8) bool {
	return t.Class == ClassContext && !t.Opening && !t.Closing && t.Number == n
}

// IsOpening reports whether t opens constructed context n.
func (t Tag) IsOpening(n uint8) bool {
	return t.Opening && t.Number == n
}

// IsClosing reports whether t closes constructed context n.
func (t Tag) IsClosing(n uint8) bool {
	return t.Closing && t.Number == n
}

// ContentLength is the number of octets following the header.
func (t Tag) ContentLength() uint32 {
	if t.Opening || t.Closing || t.IsApplication(AppBoolean) {
		return 0
	}
	return t.Length
}

func (t Tag) String() string {
	switch {
	case t.Opening:
		return fmt.Sprintf("opening[%d]", t.Number)
	case t.Closing:
		return fmt.Sprintf("closing[%d]", t.Number)
	case t.Class == ClassContext:
		return fmt.Sprintf("context[%d] len=%d", t.Number, t.Length)
	}
	return fmt.Sprintf("%s len=%d", ApplicationTag(t.Number), t.Length)
}

// DecodeTag decodes a tag header and returns it with the number of
// header octets consumed.
func DecodeTag(buf []byte) (Tag, int, error) {
	if len(buf) < 1 {
		return Tag{}, 0, ErrTruncated
	}

	b := buf[0]
	t := Tag{
		Number: b >> 4,
		Class:  Class((b >> 3) & 0x01),
	}
	lvt := b & 0x07
	n := 1

	if t.Number == extendedNumber {
		if len(buf) < 2 {
			return Tag{}, 0, ErrTruncated
		}
		if buf[1] == reservedNumber {
			return Tag{}, 0, fmt.Errorf("%w: reserved tag number 255", ErrMalformedTag)
		}
		t.Number = buf[1]
		n = 2
	}

	switch lvt {
	case lvtOpening, lvtClosing:
		if t.Class != ClassContext {
			return Tag{}, 0, fmt.Errorf("%w: application tag with lvt %d", ErrMalformedTag, lvt)
		}
		t.Opening = lvt == lvtOpening
		t.Closing = lvt == lvtClosing
		return t, n, nil

	case lvtExtended:
		if len(buf) < n+1 {
			return Tag{}, 0, ErrTruncated
		}
		switch ext := buf[n]; ext {
		case extended16:
			if len(buf) < n+3 {
				return Tag{}, 0, ErrTruncated
			}
			t.Length = uint32(binary.BigEndian.Uint16(buf[n+1:]))
			n += 3
		case extended32:
			if len(buf) < n+5 {
				return Tag{}, 0, ErrTruncated
			}
			t.Length = binary.BigEndian.Uint32(buf[n+1:])
			n += 5
		default:
			t.Length = uint32(ext)
			n++
		}
		if t.IsApplication(AppBoolean) {
			return Tag{}, 0, fmt.Errorf("%w: boolean with extended length", ErrMalformedTag)
		}

	default:
		t.Length = uint32(lvt)
		if t.IsApplication(AppBoolean) && lvt > 1 {
			return Tag{}, 0, fmt.Errorf("%w: boolean value %d", ErrMalformedTag, lvt)
		}
	}

	return t, n, nil
}
