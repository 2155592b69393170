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

package tsm

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrPoolExhausted           = errors.New("tsm: no free transaction slot")
	ErrInvalidInvokeID         = errors.New("tsm: invoke ID not reserved")
	ErrInvokeIDInUse           = errors.New("tsm: invoke ID still awaiting confirmation")
	ErrSegmentationUnsupported = errors.New("tsm: segmentation not enabled")
	ErrTooManySegments         = errors.New("tsm: message needs more segments than the peer accepts")
	ErrNoTransaction           = errors.New("tsm: no matching transaction")
)

// Abort reasons raised by the machine itself.
const (
	AbortOther                   uint8 = 0
	AbortBufferOverflow          uint8 = 1
	AbortInvalidAPDUInThisState  uint8 = 2
	AbortSegmentationUnsupported uint8 = 4
	AbortWindowSizeOutOfRange    uint8 = 7
	AbortTSMTimeout              uint8 = 10
	AbortAPDUTooLong             uint8 = 11
)

// AbortedError reports a transaction the machine aborted. The Abort PDU
// has already been sent to the peer.
type AbortedError struct {
	InvokeID uint8
	Reason   uint8
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("tsm: transaction %d aborted (reason %d)", e.InvokeID, e.Reason)
}
