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

// ConfirmedServiceChoice selects a confirmed service
type ConfirmedServiceChoice uint8

const (
	ServiceAcknowledgeAlarm           ConfirmedServiceChoice = 0
	ServiceConfirmedCOVNotification   ConfirmedServiceChoice = 1
	ServiceConfirmedEventNotification ConfirmedServiceChoice = 2
	ServiceGetAlarmSummary            ConfirmedServiceChoice = 3
	ServiceGetEnrollmentSummary       ConfirmedServiceChoice = 4
	ServiceSubscribeCOV               ConfirmedServiceChoice = 5
	ServiceAtomicReadFile             ConfirmedServiceChoice = 6
	ServiceAtomicWriteFile            ConfirmedServiceChoice = 7
	ServiceAddListElement             ConfirmedServiceChoice = 8
	ServiceRemoveListElement          ConfirmedServiceChoice = 9
	ServiceCreateObject               ConfirmedServiceChoice = 10
	ServiceDeleteObject               ConfirmedServiceChoice = 11
	ServiceReadProperty               ConfirmedServiceChoice = 12
	ServiceReadPropertyConditional    ConfirmedServiceChoice = 13
	ServiceReadPropertyMultiple       ConfirmedServiceChoice = 14
	ServiceWriteProperty              ConfirmedServiceChoice = 15
	ServiceWritePropertyMultiple      ConfirmedServiceChoice = 16
	ServiceDeviceCommunicationControl ConfirmedServiceChoice = 17
	ServiceConfirmedPrivateTransfer   ConfirmedServiceChoice = 18
	ServiceConfirmedTextMessage       ConfirmedServiceChoice = 19
	ServiceReinitializeDevice         ConfirmedServiceChoice = 20
	ServiceVTOpen                     ConfirmedServiceChoice = 21
	ServiceVTClose                    ConfirmedServiceChoice = 22
	ServiceVTData                     ConfirmedServiceChoice = 23
	ServiceAuthenticate               ConfirmedServiceChoice = 24
	ServiceRequestKey                 ConfirmedServiceChoice = 25
	ServiceReadRange                  ConfirmedServiceChoice = 26
	ServiceLifeSafetyOperation        ConfirmedServiceChoice = 27
	ServiceSubscribeCOVProperty       ConfirmedServiceChoice = 28
	ServiceGetEventInformation        ConfirmedServiceChoice = 29
)

var confirmedServiceNames = map[ConfirmedServiceChoice]string{
	ServiceAcknowledgeAlarm:           "AcknowledgeAlarm",
	ServiceConfirmedCOVNotification:   "ConfirmedCOVNotification",
	ServiceConfirmedEventNotification: "ConfirmedEventNotification",
	ServiceGetAlarmSummary:            "GetAlarmSummary",
	ServiceGetEnrollmentSummary:       "GetEnrollmentSummary",
	ServiceSubscribeCOV:               "SubscribeCOV",
	ServiceAtomicReadFile:             "AtomicReadFile",
	ServiceAtomicWriteFile:            "AtomicWriteFile",
	ServiceAddListElement:             "AddListElement",
	ServiceRemoveListElement:          "RemoveListElement",
	ServiceCreateObject:               "CreateObject",
	ServiceDeleteObject:               "DeleteObject",
	ServiceReadProperty:               "ReadProperty",
	ServiceReadPropertyConditional:    "ReadPropertyConditional",
	ServiceReadPropertyMultiple:       "ReadPropertyMultiple",
	ServiceWriteProperty:              "WriteProperty",
	ServiceWritePropertyMultiple:      "WritePropertyMultiple",
	ServiceDeviceCommunicationControl: "DeviceCommunicationControl",
	ServiceConfirmedPrivateTransfer:   "ConfirmedPrivateTransfer",
	ServiceConfirmedTextMessage:       "ConfirmedTextMessage",
	ServiceReinitializeDevice:         "ReinitializeDevice",
	ServiceVTOpen:                     "VTOpen",
	ServiceVTClose:                    "VTClose",
	ServiceVTData:                     "VTData",
	ServiceAuthenticate:               "Authenticate",
	ServiceRequestKey:                 "RequestKey",
	ServiceReadRange:                  "ReadRange",
	ServiceLifeSafetyOperation:        "LifeSafetyOperation",
	ServiceSubscribeCOVProperty:       "SubscribeCOVProperty",
	ServiceGetEventInformation:        "GetEventInformation",
}

func (s ConfirmedServiceChoice) String() string {
	if name, ok := confirmedServiceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", s)
}

// UnconfirmedServiceChoice selects an unconfirmed service
type UnconfirmedServiceChoice uint8

const (
	ServiceIAm                                UnconfirmedServiceChoice = 0
	ServiceIHave                              UnconfirmedServiceChoice = 1
	ServiceUnconfirmedCOVNotification         UnconfirmedServiceChoice = 2
	ServiceUnconfirmedEventNotification       UnconfirmedServiceChoice = 3
	ServiceUnconfirmedPrivateTransfer         UnconfirmedServiceChoice = 4
	ServiceUnconfirmedTextMessage             UnconfirmedServiceChoice = 5
	ServiceTimeSynchronization                UnconfirmedServiceChoice = 6
	ServiceWhoHas                             UnconfirmedServiceChoice = 7
	ServiceWhoIs                              UnconfirmedServiceChoice = 8
	ServiceUTCTimeSynchronization             UnconfirmedServiceChoice = 9
	ServiceWriteGroup                         UnconfirmedServiceChoice = 10
	ServiceUnconfirmedCOVNotificationMultiple UnconfirmedServiceChoice = 11
	ServiceUnconfirmedAuditNotification       UnconfirmedServiceChoice = 12
	ServiceWhoAmI                             UnconfirmedServiceChoice = 13
	ServiceYouAre                             UnconfirmedServiceChoice = 14
)

var unconfirmedServiceNames = map[UnconfirmedServiceChoice]string{
	ServiceIAm:                                "I-Am",
	ServiceIHave:                              "I-Have",
	ServiceUnconfirmedCOVNotification:         "UnconfirmedCOVNotification",
	ServiceUnconfirmedEventNotification:       "UnconfirmedEventNotification",
	ServiceUnconfirmedPrivateTransfer:         "UnconfirmedPrivateTransfer",
	ServiceUnconfirmedTextMessage:             "UnconfirmedTextMessage",
	ServiceTimeSynchronization:                "TimeSynchronization",
	ServiceWhoHas:                             "Who-Has",
	ServiceWhoIs:                              "Who-Is",
	ServiceUTCTimeSynchronization:             "UTCTimeSynchronization",
	ServiceWriteGroup:                         "WriteGroup",
	ServiceUnconfirmedCOVNotificationMultiple: "UnconfirmedCOVNotificationMultiple",
	ServiceUnconfirmedAuditNotification:       "UnconfirmedAuditNotification",
	ServiceWhoAmI:                             "Who-Am-I",
	ServiceYouAre:                             "You-Are",
}

func (s UnconfirmedServiceChoice) String() string {
	if name, ok := unconfirmedServiceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", s)
}
