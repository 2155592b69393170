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

import "fmt"

// EventState represents the BACnet event state
type EventState uint8

const (
	EventStateNormal          EventState = 0
	EventStateFault           EventState = 1
	EventStateOffNormal       EventState = 2
	EventStateHighLimit       EventState = 3
	EventStateLowLimit        EventState = 4
	EventStateLifeSafetyAlarm EventState = 5
)

var eventStateNames = map[EventState]string{
	EventStateNormal:          "normal",
	EventStateFault:           "fault",
	EventStateOffNormal:       "off-normal",
	EventStateHighLimit:       "high-limit",
	EventStateLowLimit:        "low-limit",
	EventStateLifeSafetyAlarm: "life-safety-alarm",
}

func (e EventState) String() string {
	if name, ok := eventStateNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event-state(%d)", e)
}

// Reliability represents the BACnet reliability
type Reliability uint8

const (
	ReliabilityNoFaultDetected               Reliability = 0
	ReliabilityNoSensor                      Reliability = 1
	ReliabilityOverRange                     Reliability = 2
	ReliabilityUnderRange                    Reliability = 3
	ReliabilityOpenLoop                      Reliability = 4
	ReliabilityShortedLoop                   Reliability = 5
	ReliabilityNoOutput                      Reliability = 6
	ReliabilityUnreliableOther               Reliability = 7
	ReliabilityProcessError                  Reliability = 8
	ReliabilityMultiStateFault               Reliability = 9
	ReliabilityConfigurationError            Reliability = 10
	ReliabilityCommunicationFailure          Reliability = 12
	ReliabilityMemberFault                   Reliability = 13
	ReliabilityMonitoredObjectFault          Reliability = 14
	ReliabilityTripped                       Reliability = 15
	ReliabilityLampFailure                   Reliability = 16
	ReliabilityActivationFailure             Reliability = 17
	ReliabilityRenewDhcpFailure              Reliability = 18
	ReliabilityRenewFdRegistrationFailure    Reliability = 19
	ReliabilityRestartAutoNegotiationFailure Reliability = 20
	ReliabilityRestartFailure                Reliability = 21
	ReliabilityProprietaryCommandFailure     Reliability = 22
	ReliabilityFaultsListed                  Reliability = 23
	ReliabilityReferencedObjectFault         Reliability = 24
)

var reliabilityNames = map[Reliability]string{
	ReliabilityNoFaultDetected:               "no-fault-detected",
	ReliabilityNoSensor:                      "no-sensor",
	ReliabilityOverRange:                     "over-range",
	ReliabilityUnderRange:                    "under-range",
	ReliabilityOpenLoop:                      "open-loop",
	ReliabilityShortedLoop:                   "shorted-loop",
	ReliabilityNoOutput:                      "no-output",
	ReliabilityUnreliableOther:               "unreliable-other",
	ReliabilityProcessError:                  "process-error",
	ReliabilityMultiStateFault:               "multi-state-fault",
	ReliabilityConfigurationError:            "configuration-error",
	ReliabilityCommunicationFailure:          "communication-failure",
	ReliabilityMemberFault:                   "member-fault",
	ReliabilityMonitoredObjectFault:          "monitored-object-fault",
	ReliabilityTripped:                       "tripped",
	ReliabilityLampFailure:                   "lamp-failure",
	ReliabilityActivationFailure:             "activation-failure",
	ReliabilityRenewDhcpFailure:              "renew-dhcp-failure",
	ReliabilityRenewFdRegistrationFailure:    "renew-fd-registration-failure",
	ReliabilityRestartAutoNegotiationFailure: "restart-auto-negotiation-failure",
	ReliabilityRestartFailure:                "restart-failure",
	ReliabilityProprietaryCommandFailure:     "proprietary-command-failure",
	ReliabilityFaultsListed:                  "faults-listed",
	ReliabilityReferencedObjectFault:         "referenced-object-fault",
}

func (r Reliability) String() string {
	if name, ok := reliabilityNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reliability(%d)", r)
}

// Segmentation represents the BACnet segmentation capability
type Segmentation uint8

const (
	SegmentationBoth     Segmentation = 0
	SegmentationTransmit Segmentation = 1
	SegmentationReceive  Segmentation = 2
	SegmentationNone     Segmentation = 3
)

var segmentationNames = map[Segmentation]string{
	SegmentationBoth:     "segmented-both",
	SegmentationTransmit: "segmented-transmit",
	SegmentationReceive:  "segmented-receive",
	SegmentationNone:     "no-segmentation",
}

func (s Segmentation) String() string {
	if name, ok := segmentationNames[s]; ok {
		return name
	}
	return fmt.Sprintf("segmentation(%d)", s)
}

// DeviceStatus represents the BACnet device status
type DeviceStatus uint8

const (
	DeviceStatusOperational         DeviceStatus = 0
	DeviceStatusOperationalReadOnly DeviceStatus = 1
	DeviceStatusDownloadRequired    DeviceStatus = 2
	DeviceStatusDownloadInProgress  DeviceStatus = 3
	DeviceStatusNonOperational      DeviceStatus = 4
	DeviceStatusBackupInProgress    DeviceStatus = 5
)

var deviceStatusNames = map[DeviceStatus]string{
	DeviceStatusOperational:         "operational",
	DeviceStatusOperationalReadOnly: "operational-read-only",
	DeviceStatusDownloadRequired:    "download-required",
	DeviceStatusDownloadInProgress:  "download-in-progress",
	DeviceStatusNonOperational:      "non-operational",
	DeviceStatusBackupInProgress:    "backup-in-progress",
}

func (d DeviceStatus) String() string {
	if name, ok := deviceStatusNames[d]; ok {
		return name
	}
	return fmt.Sprintf("device-status(%d)", d)
}

// CanTransmit reports whether segmented messages may be sent.
func (s Segmentation) CanTransmit() bool {
	return s == SegmentationBoth || s == SegmentationTransmit
}

// CanReceive reports whether segmented messages may be received.
func (s Segmentation) CanReceive() bool {
	return s == SegmentationBoth || s == SegmentationReceive
}
