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
	"fmt"
	"time"
)

// CommunicationState is the Device Communication Control state
type CommunicationState uint8

const (
	CommunicationEnabled            CommunicationState = 0
	CommunicationDisabled           CommunicationState = 1
	CommunicationDisabledInitiation CommunicationState = 2
)

var communicationStateNames = map[CommunicationState]string{
	CommunicationEnabled:            "enable",
	CommunicationDisabled:           "disable",
	CommunicationDisabledInitiation: "disable-initiation",
}

func (c CommunicationState) String() string {
	if name, ok := communicationStateNames[c]; ok {
		return name
	}
	return fmt.Sprintf("communication-state(%d)", uint8(c))
}

// ParseCommunicationState accepts the names printed by String.
func ParseCommunicationState(s string) (CommunicationState, bool) {
	for c, name := range communicationStateNames {
		if name == s {
			return c, true
		}
	}
	return 0, false
}

// dcc holds the communication state and the time left before it reverts
// to enabled. A zero remaining duration with a disabled state means
// indefinitely.
type dcc struct {
	state     CommunicationState
	remaining time.Duration
}

func (d *dcc) set(state CommunicationState, duration time.Duration) {
	d.state = state
	d.remaining = 0
	if state != CommunicationEnabled {
		d.remaining = duration
	}
}

// tick counts the timer down and reports whether communication was
// re-enabled.
func (d *dcc) tick(elapsed time.Duration) bool {
	if d.state == CommunicationEnabled || d.remaining == 0 {
		return false
	}
	if d.remaining > elapsed {
		d.remaining -= elapsed
		return false
	}
	d.state = CommunicationEnabled
	d.remaining = 0
	return true
}

// allowConfirmed reports whether a confirmed request for service may be
// processed.
func (d *dcc) allowConfirmed(service ConfirmedServiceChoice) bool {
	if d.state != CommunicationDisabled {
		return true
	}
	return service == ServiceDeviceCommunicationControl || service == ServiceReinitializeDevice
}

// allowUnconfirmed reports whether an unconfirmed request for service
// may be processed.
func (d *dcc) allowUnconfirmed(service UnconfirmedServiceChoice) bool {
	switch d.state {
	case CommunicationDisabled:
		return false
	case CommunicationDisabledInitiation:
		return service == ServiceWhoIs || service == ServiceWhoHas || service == ServiceWhoAmI
	}
	return true
}

// allowInitiate reports whether the device may send an unconfirmed
// request for service on its own.
func (d *dcc) allowInitiate(service UnconfirmedServiceChoice) bool {
	switch d.state {
	case CommunicationDisabled:
		return false
	case CommunicationDisabledInitiation:
		return service == ServiceIAm || service == ServiceIHave
	}
	return true
}
