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
	"time"
)

// Unspecified marks a date or time octet as "any".
const Unspecified = 0xFF

// AnyYear is the Year value whose wire octet is Unspecified.
const AnyYear = 1900 + Unspecified

// Date is a BACnet date. Weekday runs 1 (Monday) to 7 (Sunday).
type Date struct {
	Year    int
	Month   uint8
	Day     uint8
	Weekday uint8
}

// DateOf converts t to a Date.
func DateOf(t time.Time) Date {
	wd := uint8(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return Date{
		Year:    t.Year(),
		Month:   uint8(t.Month()),
		Day:     uint8(t.Day()),
		Weekday: wd,
	}
}

func (d Date) String() string {
	field := func(v uint8) string {
		if v == Unspecified {
			return "*"
		}
		return fmt.Sprintf("%02d", v)
	}
	year := "*"
	if d.Year != AnyYear {
		year = fmt.Sprintf("%04d", d.Year)
	}
	return fmt.Sprintf("%s-%s-%s", year, field(d.Month), field(d.Day))
}

// Time is a BACnet time of day.
type Time struct {
	Hour       uint8
	Minute     uint8
	Second     uint8
	Hundredths uint8
}

// TimeOf converts t to a Time.
func TimeOf(t time.Time) Time {
	return Time{
		Hour:       uint8(t.Hour()),
		Minute:     uint8(t.Minute()),
		Second:     uint8(t.Second()),
		Hundredths: uint8(t.Nanosecond() / int(10*time.Millisecond)),
	}
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d.%02d", t.Hour, t.Minute, t.Second, t.Hundredths)
}

func encodeDate(d Date) ([4]byte, error) {
	if d.Year < 1900 || d.Year > AnyYear {
		return [4]byte{}, fmt.Errorf("%w: year %d", ErrValueOutOfRange, d.Year)
	}
	return [4]byte{byte(d.Year - 1900), d.Month, d.Day, d.Weekday}, nil
}

func decodeDate(b []byte) Date {
	return Date{
		Year:    1900 + int(b[0]),
		Month:   b[1],
		Day:     b[2],
		Weekday: b[3],
	}
}
