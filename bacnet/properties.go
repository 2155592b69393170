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
	"strconv"
	"strings"
)

// PropertyIdentifier represents BACnet property identifiers
type PropertyIdentifier uint32

const (
	PropertyAckedTransitions               PropertyIdentifier = 0
	PropertyAckRequired                    PropertyIdentifier = 1
	PropertyAction                         PropertyIdentifier = 2
	PropertyActionText                     PropertyIdentifier = 3
	PropertyActiveText                     PropertyIdentifier = 4
	PropertyActiveVtSessions               PropertyIdentifier = 5
	PropertyAlarmValue                     PropertyIdentifier = 6
	PropertyAlarmValues                    PropertyIdentifier = 7
	PropertyAll                            PropertyIdentifier = 8
	PropertyAllWritesSuccessful            PropertyIdentifier = 9
	PropertyApduSegmentTimeout             PropertyIdentifier = 10
	PropertyApduTimeout                    PropertyIdentifier = 11
	PropertyApplicationSoftwareVersion     PropertyIdentifier = 12
	PropertyArchive                        PropertyIdentifier = 13
	PropertyBias                           PropertyIdentifier = 14
	PropertyChangeOfStateCount             PropertyIdentifier = 15
	PropertyChangeOfStateTime              PropertyIdentifier = 16
	PropertyNotificationClass              PropertyIdentifier = 17
	PropertyControlledVariableReference    PropertyIdentifier = 19
	PropertyControlledVariableUnits        PropertyIdentifier = 20
	PropertyControlledVariableValue        PropertyIdentifier = 21
	PropertyCOVIncrement                   PropertyIdentifier = 22
	PropertyDateList                       PropertyIdentifier = 23
	PropertyDaylightSavingsStatus          PropertyIdentifier = 24
	PropertyDeadband                       PropertyIdentifier = 25
	PropertyDerivativeConstant             PropertyIdentifier = 26
	PropertyDerivativeConstantUnits        PropertyIdentifier = 27
	PropertyDescription                    PropertyIdentifier = 28
	PropertyDescriptionOfHalt              PropertyIdentifier = 29
	PropertyDeviceAddressBinding           PropertyIdentifier = 30
	PropertyDeviceType                     PropertyIdentifier = 31
	PropertyEffectivePeriod                PropertyIdentifier = 32
	PropertyElapsedActiveTime              PropertyIdentifier = 33
	PropertyErrorLimit                     PropertyIdentifier = 34
	PropertyEventEnable                    PropertyIdentifier = 35
	PropertyEventState                     PropertyIdentifier = 36
	PropertyEventType                      PropertyIdentifier = 37
	PropertyExceptionSchedule              PropertyIdentifier = 38
	PropertyFaultValues                    PropertyIdentifier = 39
	PropertyFeedbackValue                  PropertyIdentifier = 40
	PropertyFileAccessMethod               PropertyIdentifier = 41
	PropertyFileSize                       PropertyIdentifier = 42
	PropertyFileType                       PropertyIdentifier = 43
	PropertyFirmwareRevision               PropertyIdentifier = 44
	PropertyHighLimit                      PropertyIdentifier = 45
	PropertyInactiveText                   PropertyIdentifier = 46
	PropertyInProcess                      PropertyIdentifier = 47
	PropertyInstanceOf                     PropertyIdentifier = 48
	PropertyIntegralConstant               PropertyIdentifier = 49
	PropertyIntegralConstantUnits          PropertyIdentifier = 50
	PropertyLimitEnable                    PropertyIdentifier = 52
	PropertyListOfGroupMembers             PropertyIdentifier = 53
	PropertyListOfObjectPropertyReferences PropertyIdentifier = 54
	PropertyLocalDate                      PropertyIdentifier = 56
	PropertyLocalTime                      PropertyIdentifier = 57
	PropertyLocation                       PropertyIdentifier = 58
	PropertyLowLimit                       PropertyIdentifier = 59
	PropertyManipulatedVariableReference   PropertyIdentifier = 60
	PropertyMaximumOutput                  PropertyIdentifier = 61
	PropertyMaxApduLengthAccepted          PropertyIdentifier = 62
	PropertyMaxInfoFrames                  PropertyIdentifier = 63
	PropertyMaxMaster                      PropertyIdentifier = 64
	PropertyMaxPresValue                   PropertyIdentifier = 65
	PropertyMinimumOffTime                 PropertyIdentifier = 66
	PropertyMinimumOnTime                  PropertyIdentifier = 67
	PropertyMinimumOutput                  PropertyIdentifier = 68
	PropertyMinPresValue                   PropertyIdentifier = 69
	PropertyModelName                      PropertyIdentifier = 70
	PropertyModificationDate               PropertyIdentifier = 71
	PropertyNotifyType                     PropertyIdentifier = 72
	PropertyNumberOfApduRetries            PropertyIdentifier = 73
	PropertyNumberOfStates                 PropertyIdentifier = 74
	PropertyObjectIdentifier               PropertyIdentifier = 75
	PropertyObjectList                     PropertyIdentifier = 76
	PropertyObjectName                     PropertyIdentifier = 77
	PropertyObjectPropertyReference        PropertyIdentifier = 78
	PropertyObjectType                     PropertyIdentifier = 79
	PropertyOptional                       PropertyIdentifier = 80
	PropertyOutOfService                   PropertyIdentifier = 81
	PropertyOutputUnits                    PropertyIdentifier = 82
	PropertyEventParameters                PropertyIdentifier = 83
	PropertyPolarity                       PropertyIdentifier = 84
	PropertyPresentValue                   PropertyIdentifier = 85
	PropertyPriority                       PropertyIdentifier = 86
	PropertyPriorityArray                  PropertyIdentifier = 87
	PropertyPriorityForWriting             PropertyIdentifier = 88
	PropertyProcessIdentifier              PropertyIdentifier = 89
	PropertyProgramChange                  PropertyIdentifier = 90
	PropertyProgramLocation                PropertyIdentifier = 91
	PropertyProgramState                   PropertyIdentifier = 92
	PropertyProportionalConstant           PropertyIdentifier = 93
	PropertyProportionalConstantUnits      PropertyIdentifier = 94
	PropertyProtocolObjectTypesSupported   PropertyIdentifier = 96
	PropertyProtocolServicesSupported      PropertyIdentifier = 97
	PropertyProtocolVersion                PropertyIdentifier = 98
	PropertyReadOnly                       PropertyIdentifier = 99
	PropertyReasonForHalt                  PropertyIdentifier = 100
	PropertyRecipientList                  PropertyIdentifier = 102
	PropertyReliability                    PropertyIdentifier = 103
	PropertyRelinquishDefault              PropertyIdentifier = 104
	PropertyRequired                       PropertyIdentifier = 105
	PropertyResolution                     PropertyIdentifier = 106
	PropertySegmentationSupported          PropertyIdentifier = 107
	PropertySetpoint                       PropertyIdentifier = 108
	PropertySetpointReference              PropertyIdentifier = 109
	PropertyStateText                      PropertyIdentifier = 110
	PropertyStatusFlags                    PropertyIdentifier = 111
	PropertySystemStatus                   PropertyIdentifier = 112
	PropertyTimeDelay                      PropertyIdentifier = 113
	PropertyTimeOfActiveTimeReset          PropertyIdentifier = 114
	PropertyTimeOfStateCountReset          PropertyIdentifier = 115
	PropertyTimeSynchronizationRecipients  PropertyIdentifier = 116
	PropertyUnits                          PropertyIdentifier = 117
	PropertyUpdateInterval                 PropertyIdentifier = 118
	PropertyUtcOffset                      PropertyIdentifier = 119
	PropertyVendorIdentifier               PropertyIdentifier = 120
	PropertyVendorName                     PropertyIdentifier = 121
	PropertyVtClassesSupported             PropertyIdentifier = 122
	PropertyWeeklySchedule                 PropertyIdentifier = 123
	PropertyAttemptedSamples               PropertyIdentifier = 124
	PropertyAverageValue                   PropertyIdentifier = 125
	PropertyBufferSize                     PropertyIdentifier = 126
	PropertyClientCovIncrement             PropertyIdentifier = 127
	PropertyCOVResubscriptionInterval      PropertyIdentifier = 128
	PropertyEventTimeStamps                PropertyIdentifier = 130
	PropertyLogBuffer                      PropertyIdentifier = 131
	PropertyLogDeviceObjectProperty        PropertyIdentifier = 132
	PropertyLogEnable                      PropertyIdentifier = 133
	PropertyLogInterval                    PropertyIdentifier = 134
	PropertyMaximumValue                   PropertyIdentifier = 135
	PropertyMinimumValue                   PropertyIdentifier = 136
	PropertyNotificationThreshold          PropertyIdentifier = 137
	PropertyPreviousNotifyRecord           PropertyIdentifier = 138
	PropertyProtocolRevision               PropertyIdentifier = 139
	PropertyRecordsSinceNotification       PropertyIdentifier = 140
	PropertyRecordCount                    PropertyIdentifier = 141
	PropertyStartTime                      PropertyIdentifier = 142
	PropertyStopTime                       PropertyIdentifier = 143
	PropertyStopWhenFull                   PropertyIdentifier = 144
	PropertyTotalRecordCount               PropertyIdentifier = 145
	PropertyValidSamples                   PropertyIdentifier = 146
	PropertyWindowInterval                 PropertyIdentifier = 147
	PropertyWindowSamples                  PropertyIdentifier = 148
	PropertyMaximumValueTimestamp          PropertyIdentifier = 149
	PropertyMinimumValueTimestamp          PropertyIdentifier = 150
	PropertyVarianceValue                  PropertyIdentifier = 151
	PropertyActiveCOVSubscriptions         PropertyIdentifier = 152
	PropertyBackupFailureTimeout           PropertyIdentifier = 153
	PropertyConfigurationFiles             PropertyIdentifier = 154
	PropertyDatabaseRevision               PropertyIdentifier = 155
	PropertyDirectReading                  PropertyIdentifier = 156
	PropertyLastRestoreTime                PropertyIdentifier = 157
	PropertyMaintenanceRequired            PropertyIdentifier = 158
	PropertyMemberOf                       PropertyIdentifier = 159
	PropertyMode                           PropertyIdentifier = 160
	PropertyOperationExpected              PropertyIdentifier = 161
	PropertySetting                        PropertyIdentifier = 162
	PropertySilenced                       PropertyIdentifier = 163
	PropertyTrackingValue                  PropertyIdentifier = 164
	PropertyZoneMembers                    PropertyIdentifier = 165
	PropertyLifeSafetyAlarmValues          PropertyIdentifier = 166
	PropertyMaxSegmentsAccepted            PropertyIdentifier = 167
	PropertyProfileName                    PropertyIdentifier = 168
	PropertyPropertyList                   PropertyIdentifier = 371
)

var propertyNames = map[PropertyIdentifier]string{
	PropertyAckedTransitions:               "acked-transitions",
	PropertyAckRequired:                    "ack-required",
	PropertyAction:                         "action",
	PropertyActionText:                     "action-text",
	PropertyActiveText:                     "active-text",
	PropertyActiveVtSessions:               "active-vt-sessions",
	PropertyAlarmValue:                     "alarm-value",
	PropertyAlarmValues:                    "alarm-values",
	PropertyAll:                            "all",
	PropertyAllWritesSuccessful:            "all-writes-successful",
	PropertyApduSegmentTimeout:             "apdu-segment-timeout",
	PropertyApduTimeout:                    "apdu-timeout",
	PropertyApplicationSoftwareVersion:     "application-software-version",
	PropertyArchive:                        "archive",
	PropertyBias:                           "bias",
	PropertyChangeOfStateCount:             "change-of-state-count",
	PropertyChangeOfStateTime:              "change-of-state-time",
	PropertyNotificationClass:              "notification-class",
	PropertyControlledVariableReference:    "controlled-variable-reference",
	PropertyControlledVariableUnits:        "controlled-variable-units",
	PropertyControlledVariableValue:        "controlled-variable-value",
	PropertyCOVIncrement:                   "cov-increment",
	PropertyDateList:                       "date-list",
	PropertyDaylightSavingsStatus:          "daylight-savings-status",
	PropertyDeadband:                       "deadband",
	PropertyDerivativeConstant:             "derivative-constant",
	PropertyDerivativeConstantUnits:        "derivative-constant-units",
	PropertyDescription:                    "description",
	PropertyDescriptionOfHalt:              "description-of-halt",
	PropertyDeviceAddressBinding:           "device-address-binding",
	PropertyDeviceType:                     "device-type",
	PropertyEffectivePeriod:                "effective-period",
	PropertyElapsedActiveTime:              "elapsed-active-time",
	PropertyErrorLimit:                     "error-limit",
	PropertyEventEnable:                    "event-enable",
	PropertyEventState:                     "event-state",
	PropertyEventType:                      "event-type",
	PropertyExceptionSchedule:              "exception-schedule",
	PropertyFaultValues:                    "fault-values",
	PropertyFeedbackValue:                  "feedback-value",
	PropertyFileAccessMethod:               "file-access-method",
	PropertyFileSize:                       "file-size",
	PropertyFileType:                       "file-type",
	PropertyFirmwareRevision:               "firmware-revision",
	PropertyHighLimit:                      "high-limit",
	PropertyInactiveText:                   "inactive-text",
	PropertyInProcess:                      "in-process",
	PropertyInstanceOf:                     "instance-of",
	PropertyIntegralConstant:               "integral-constant",
	PropertyIntegralConstantUnits:          "integral-constant-units",
	PropertyLimitEnable:                    "limit-enable",
	PropertyListOfGroupMembers:             "list-of-group-members",
	PropertyListOfObjectPropertyReferences: "list-of-object-property-references",
	PropertyLocalDate:                      "local-date",
	PropertyLocalTime:                      "local-time",
	PropertyLocation:                       "location",
	PropertyLowLimit:                       "low-limit",
	PropertyManipulatedVariableReference:   "manipulated-variable-reference",
	PropertyMaximumOutput:                  "maximum-output",
	PropertyMaxApduLengthAccepted:          "max-apdu-length-accepted",
	PropertyMaxInfoFrames:                  "max-info-frames",
	PropertyMaxMaster:                      "max-master",
	PropertyMaxPresValue:                   "max-pres-value",
	PropertyMinimumOffTime:                 "minimum-off-time",
	PropertyMinimumOnTime:                  "minimum-on-time",
	PropertyMinimumOutput:                  "minimum-output",
	PropertyMinPresValue:                   "min-pres-value",
	PropertyModelName:                      "model-name",
	PropertyModificationDate:               "modification-date",
	PropertyNotifyType:                     "notify-type",
	PropertyNumberOfApduRetries:            "number-of-apdu-retries",
	PropertyNumberOfStates:                 "number-of-states",
	PropertyObjectIdentifier:               "object-identifier",
	PropertyObjectList:                     "object-list",
	PropertyObjectName:                     "object-name",
	PropertyObjectPropertyReference:        "object-property-reference",
	PropertyObjectType:                     "object-type",
	PropertyOptional:                       "optional",
	PropertyOutOfService:                   "out-of-service",
	PropertyOutputUnits:                    "output-units",
	PropertyEventParameters:                "event-parameters",
	PropertyPolarity:                       "polarity",
	PropertyPresentValue:                   "present-value",
	PropertyPriority:                       "priority",
	PropertyPriorityArray:                  "priority-array",
	PropertyPriorityForWriting:             "priority-for-writing",
	PropertyProcessIdentifier:              "process-identifier",
	PropertyProgramChange:                  "program-change",
	PropertyProgramLocation:                "program-location",
	PropertyProgramState:                   "program-state",
	PropertyProportionalConstant:           "proportional-constant",
	PropertyProportionalConstantUnits:      "proportional-constant-units",
	PropertyProtocolObjectTypesSupported:   "protocol-object-types-supported",
	PropertyProtocolServicesSupported:      "protocol-services-supported",
	PropertyProtocolVersion:                "protocol-version",
	PropertyReadOnly:                       "read-only",
	PropertyReasonForHalt:                  "reason-for-halt",
	PropertyRecipientList:                  "recipient-list",
	PropertyReliability:                    "reliability",
	PropertyRelinquishDefault:              "relinquish-default",
	PropertyRequired:                       "required",
	PropertyResolution:                     "resolution",
	PropertySegmentationSupported:          "segmentation-supported",
	PropertySetpoint:                       "setpoint",
	PropertySetpointReference:              "setpoint-reference",
	PropertyStateText:                      "state-text",
	PropertyStatusFlags:                    "status-flags",
	PropertySystemStatus:                   "system-status",
	PropertyTimeDelay:                      "time-delay",
	PropertyTimeOfActiveTimeReset:          "time-of-active-time-reset",
	PropertyTimeOfStateCountReset:          "time-of-state-count-reset",
	PropertyTimeSynchronizationRecipients:  "time-synchronization-recipients",
	PropertyUnits:                          "units",
	PropertyUpdateInterval:                 "update-interval",
	PropertyUtcOffset:                      "utc-offset",
	PropertyVendorIdentifier:               "vendor-identifier",
	PropertyVendorName:                     "vendor-name",
	PropertyVtClassesSupported:             "vt-classes-supported",
	PropertyWeeklySchedule:                 "weekly-schedule",
	PropertyAttemptedSamples:               "attempted-samples",
	PropertyAverageValue:                   "average-value",
	PropertyBufferSize:                     "buffer-size",
	PropertyClientCovIncrement:             "client-cov-increment",
	PropertyCOVResubscriptionInterval:      "cov-resubscription-interval",
	PropertyEventTimeStamps:                "event-time-stamps",
	PropertyLogBuffer:                      "log-buffer",
	PropertyLogDeviceObjectProperty:        "log-device-object-property",
	PropertyLogEnable:                      "log-enable",
	PropertyLogInterval:                    "log-interval",
	PropertyMaximumValue:                   "maximum-value",
	PropertyMinimumValue:                   "minimum-value",
	PropertyNotificationThreshold:          "notification-threshold",
	PropertyPreviousNotifyRecord:           "previous-notify-record",
	PropertyProtocolRevision:               "protocol-revision",
	PropertyRecordsSinceNotification:       "records-since-notification",
	PropertyRecordCount:                    "record-count",
	PropertyStartTime:                      "start-time",
	PropertyStopTime:                       "stop-time",
	PropertyStopWhenFull:                   "stop-when-full",
	PropertyTotalRecordCount:               "total-record-count",
	PropertyValidSamples:                   "valid-samples",
	PropertyWindowInterval:                 "window-interval",
	PropertyWindowSamples:                  "window-samples",
	PropertyMaximumValueTimestamp:          "maximum-value-timestamp",
	PropertyMinimumValueTimestamp:          "minimum-value-timestamp",
	PropertyVarianceValue:                  "variance-value",
	PropertyActiveCOVSubscriptions:         "active-cov-subscriptions",
	PropertyBackupFailureTimeout:           "backup-failure-timeout",
	PropertyConfigurationFiles:             "configuration-files",
	PropertyDatabaseRevision:               "database-revision",
	PropertyDirectReading:                  "direct-reading",
	PropertyLastRestoreTime:                "last-restore-time",
	PropertyMaintenanceRequired:            "maintenance-required",
	PropertyMemberOf:                       "member-of",
	PropertyMode:                           "mode",
	PropertyOperationExpected:              "operation-expected",
	PropertySetting:                        "setting",
	PropertySilenced:                       "silenced",
	PropertyTrackingValue:                  "tracking-value",
	PropertyZoneMembers:                    "zone-members",
	PropertyLifeSafetyAlarmValues:          "life-safety-alarm-values",
	PropertyMaxSegmentsAccepted:            "max-segments-accepted",
	PropertyProfileName:                    "profile-name",
	PropertyPropertyList:                   "property-list",
}

var propertyShortNames = map[string]PropertyIdentifier{
	"oid":  PropertyObjectIdentifier,
	"name": PropertyObjectName,
	"type": PropertyObjectType,
	"pv":   PropertyPresentValue,
	"desc": PropertyDescription,
	"sf":   PropertyStatusFlags,
	"oos":  PropertyOutOfService,
	"pa":   PropertyPriorityArray,
	"rd":   PropertyRelinquishDefault,
}

func (p PropertyIdentifier) String() string {
	if name, ok := propertyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("property(%d)", uint32(p))
}

// ParsePropertyIdentifier accepts a hyphenated name, a short form such as
// "pv", or a number.
func ParsePropertyIdentifier(s string) (PropertyIdentifier, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if p, ok := propertyShortNames[s]; ok {
		return p, true
	}
	for p, name := range propertyNames {
		if name == s {
			return p, true
		}
	}
	if n, err := strconv.ParseUint(s, 10, 22); err == nil {
		return PropertyIdentifier(n), true
	}
	return 0, false
}
