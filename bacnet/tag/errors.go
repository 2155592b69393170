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

import "errors"

// Decode and encode errors
var (
	ErrTruncated         = errors.New("tag: truncated")
	ErrMalformedTag      = errors.New("tag: malformed tag")
	ErrStructureMismatch = errors.New("tag: structure mismatch")
	ErrBufferTooSmall    = errors.New("tag: buffer too small")
	ErrCharacterSet      = errors.New("tag: unsupported character set")
	ErrValueOutOfRange   = errors.New("tag: value out of range")
)
