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

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// Charset is the character set octet that prefixes a character string.
type Charset uint8

const (
	CharsetUTF8      Charset = 0
	CharsetDBCS      Charset = 1
	CharsetJIS       Charset = 2
	CharsetUCS4      Charset = 3
	CharsetUCS2      Charset = 4
	CharsetISO8859_1 Charset = 5
)

var charsetNames = map[Charset]string{
	CharsetUTF8:      "utf-8",
	CharsetDBCS:      "ibm-microsoft-dbcs",
	CharsetJIS:       "jis-x-0208",
	CharsetUCS4:      "ucs-4",
	CharsetUCS2:      "ucs-2",
	CharsetISO8859_1: "iso-8859-1",
}

func (c Charset) String() string {
	if name, ok := charsetNames[c]; ok {
		return name
	}
	return fmt.Sprintf("charset(%d)", uint8(c))
}

// CharString is a character string value. Value is always held as UTF-8;
// Charset selects the wire encoding.
type CharString struct {
	Charset Charset
	Value   string
}

// UTF8 returns a UTF-8 character string.
func UTF8(s string) CharString {
	return CharString{Charset: CharsetUTF8, Value: s}
}

func (c CharString) String() string { return c.Value }

func (c Charset) encoding() (encoding.Encoding, error) {
	switch c {
	case CharsetUTF8:
		return nil, nil
	case CharsetUCS4:
		return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM), nil
	case CharsetUCS2:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	case CharsetISO8859_1:
		return charmap.ISO8859_1, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrCharacterSet, c)
}

// wire returns the content octets, charset octet included.
func (c CharString) wire() ([]byte, error) {
	enc, err := c.Charset.encoding()
	if err != nil {
		return nil, err
	}
	if enc == nil {
		if !utf8.ValidString(c.Value) {
			return nil, fmt.Errorf("%w: invalid utf-8", ErrValueOutOfRange)
		}
		out := make([]byte, 0, 1+len(c.Value))
		out = append(out, byte(c.Charset))
		return append(out, c.Value...), nil
	}
	body, err := enc.NewEncoder().Bytes([]byte(c.Value))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrValueOutOfRange, c.Charset, err)
	}
	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(c.Charset))
	return append(out, body...), nil
}

func decodeCharString(b []byte) (CharString, error) {
	if len(b) < 1 {
		return CharString{}, fmt.Errorf("%w: empty character string", ErrMalformedTag)
	}
	cs := Charset(b[0])
	enc, err := cs.encoding()
	if err != nil {
		return CharString{}, err
	}
	if enc == nil {
		return CharString{Charset: cs, Value: string(b[1:])}, nil
	}
	out, err := enc.NewDecoder().Bytes(b[1:])
	if err != nil {
		return CharString{}, fmt.Errorf("%w: %s: %v", ErrMalformedTag, cs, err)
	}
	return CharString{Charset: cs, Value: string(out)}, nil
}
