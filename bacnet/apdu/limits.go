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

package apdu

// MaxAPDU is the largest APDU any datalink carries.
const MaxAPDU = 1476

// MoreThan64Segments is the decoded value of max-segments code 7.
const MoreThan64Segments = 65

var maxAPDUSizes = [...]int{50, 128, 206, 480, 1024, 1476}

var maxSegmentCounts = [...]int{0, 2, 4, 8, 16, 32, 64, MoreThan64Segments}

// DecodeMaxAPDU maps a 4-bit max-APDU code to octets. Reserved codes
// decode as the largest size.
func DecodeMaxAPDU(code byte) int {
	if int(code) < len(maxAPDUSizes) {
		return maxAPDUSizes[code]
	}
	return MaxAPDU
}

// EncodeMaxAPDU returns the largest code whose size does not exceed n.
// Anything below 128 encodes as 50.
func EncodeMaxAPDU(n int) byte {
	for code := len(maxAPDUSizes) - 1; code > 0; code-- {
		if n >= maxAPDUSizes[code] {
			return byte(code)
		}
	}
	return 0
}

// DecodeMaxSegments maps a 3-bit max-segments code to a segment count;
// 0 means unspecified.
func DecodeMaxSegments(code byte) int {
	return maxSegmentCounts[code&0x07]
}

// EncodeMaxSegments returns the code for n accepted segments.
func EncodeMaxSegments(n int) byte {
	switch {
	case n < 2:
		return 0
	case n < 4:
		return 1
	case n < 8:
		return 2
	case n < 16:
		return 3
	case n < 32:
		return 4
	case n < 64:
		return 5
	case n == 64:
		return 6
	}
	return 7
}
