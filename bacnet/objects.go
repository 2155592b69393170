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

	"github.com/edgeo/drivers/bacstack/bacnet/tag"
)

// ObjectType represents BACnet object types
type ObjectType uint16

const (
	ObjectTypeAnalogInput           ObjectType = 0
	ObjectTypeAnalogOutput          ObjectType = 1
	ObjectTypeAnalogValue           ObjectType = 2
	ObjectTypeBinaryInput           ObjectType = 3
	ObjectTypeBinaryOutput          ObjectType = 4
	ObjectTypeBinaryValue           ObjectType = 5
	ObjectTypeCalendar              ObjectType = 6
	ObjectTypeCommand               ObjectType = 7
	ObjectTypeDevice                ObjectType = 8
	ObjectTypeEventEnrollment       ObjectType = 9
	ObjectTypeFile                  ObjectType = 10
	ObjectTypeGroup                 ObjectType = 11
	ObjectTypeLoop                  ObjectType = 12
	ObjectTypeMultiStateInput       ObjectType = 13
	ObjectTypeMultiStateOutput      ObjectType = 14
	ObjectTypeNotificationClass     ObjectType = 15
	ObjectTypeProgram               ObjectType = 16
	ObjectTypeSchedule              ObjectType = 17
	ObjectTypeAveraging             ObjectType = 18
	ObjectTypeMultiStateValue       ObjectType = 19
	ObjectTypeTrendLog              ObjectType = 20
	ObjectTypeLifeSafetyPoint       ObjectType = 21
	ObjectTypeLifeSafetyZone        ObjectType = 22
	ObjectTypeAccumulator           ObjectType = 23
	ObjectTypePulseConverter        ObjectType = 24
	ObjectTypeEventLog              ObjectType = 25
	ObjectTypeGlobalGroup           ObjectType = 26
	ObjectTypeTrendLogMultiple      ObjectType = 27
	ObjectTypeLoadControl           ObjectType = 28
	ObjectTypeStructuredView        ObjectType = 29
	ObjectTypeAccessDoor            ObjectType = 30
	ObjectTypeTimer                 ObjectType = 31
	ObjectTypeAccessCredential      ObjectType = 32
	ObjectTypeAccessPoint           ObjectType = 33
	ObjectTypeAccessRights          ObjectType = 34
	ObjectTypeAccessUser            ObjectType = 35
	ObjectTypeAccessZone            ObjectType = 36
	ObjectTypeCredentialDataInput   ObjectType = 37
	ObjectTypeNetworkSecurity       ObjectType = 38
	ObjectTypeBitStringValue        ObjectType = 39
	ObjectTypeCharacterStringValue  ObjectType = 40
	ObjectTypeDatePatternValue      ObjectType = 41
	ObjectTypeDateValue             ObjectType = 42
	ObjectTypeDateTimePatternValue  ObjectType = 43
	ObjectTypeDateTimeValue         ObjectType = 44
	ObjectTypeIntegerValue          ObjectType = 45
	ObjectTypeLargeAnalogValue      ObjectType = 46
	ObjectTypeOctetStringValue      ObjectType = 47
	ObjectTypePositiveIntegerValue  ObjectType = 48
	ObjectTypeTimePatternValue      ObjectType = 49
	ObjectTypeTimeValue             ObjectType = 50
	ObjectTypeNotificationForwarder ObjectType = 51
	ObjectTypeAlertEnrollment       ObjectType = 52
	ObjectTypeChannel               ObjectType = 53
	ObjectTypeLightingOutput        ObjectType = 54
	ObjectTypeBinaryLightingOutput  ObjectType = 55
	ObjectTypeNetworkPort           ObjectType = 56
	ObjectTypeElevatorGroup         ObjectType = 57
	ObjectTypeEscalator             ObjectType = 58
	ObjectTypeLift                  ObjectType = 59
)

var objectTypeNames = map[ObjectType]string{
	ObjectTypeAnalogInput:           "analog-input",
	ObjectTypeAnalogOutput:          "analog-output",
	ObjectTypeAnalogValue:           "analog-value",
	ObjectTypeBinaryInput:           "binary-input",
	ObjectTypeBinaryOutput:          "binary-output",
	ObjectTypeBinaryValue:           "binary-value",
	ObjectTypeCalendar:              "calendar",
	ObjectTypeCommand:               "command",
	ObjectTypeDevice:                "device",
	ObjectTypeEventEnrollment:       "event-enrollment",
	ObjectTypeFile:                  "file",
	ObjectTypeGroup:                 "group",
	ObjectTypeLoop:                  "loop",
	ObjectTypeMultiStateInput:       "multi-state-input",
	ObjectTypeMultiStateOutput:      "multi-state-output",
	ObjectTypeNotificationClass:     "notification-class",
	ObjectTypeProgram:               "program",
	ObjectTypeSchedule:              "schedule",
	ObjectTypeAveraging:             "averaging",
	ObjectTypeMultiStateValue:       "multi-state-value",
	ObjectTypeTrendLog:              "trend-log",
	ObjectTypeLifeSafetyPoint:       "life-safety-point",
	ObjectTypeLifeSafetyZone:        "life-safety-zone",
	ObjectTypeAccumulator:           "accumulator",
	ObjectTypePulseConverter:        "pulse-converter",
	ObjectTypeEventLog:              "event-log",
	ObjectTypeGlobalGroup:           "global-group",
	ObjectTypeTrendLogMultiple:      "trend-log-multiple",
	ObjectTypeLoadControl:           "load-control",
	ObjectTypeStructuredView:        "structured-view",
	ObjectTypeAccessDoor:            "access-door",
	ObjectTypeTimer:                 "timer",
	ObjectTypeAccessCredential:      "access-credential",
	ObjectTypeAccessPoint:           "access-point",
	ObjectTypeAccessRights:          "access-rights",
	ObjectTypeAccessUser:            "access-user",
	ObjectTypeAccessZone:            "access-zone",
	ObjectTypeCredentialDataInput:   "credential-data-input",
	ObjectTypeNetworkSecurity:       "network-security",
	ObjectTypeBitStringValue:        "bitstring-value",
	ObjectTypeCharacterStringValue:  "characterstring-value",
	ObjectTypeDatePatternValue:      "date-pattern-value",
	ObjectTypeDateValue:             "date-value",
	ObjectTypeDateTimePatternValue:  "datetime-pattern-value",
	ObjectTypeDateTimeValue:         "datetime-value",
	ObjectTypeIntegerValue:          "integer-value",
	ObjectTypeLargeAnalogValue:      "large-analog-value",
	ObjectTypeOctetStringValue:      "octetstring-value",
	ObjectTypePositiveIntegerValue:  "positive-integer-value",
	ObjectTypeTimePatternValue:      "time-pattern-value",
	ObjectTypeTimeValue:             "time-value",
	ObjectTypeNotificationForwarder: "notification-forwarder",
	ObjectTypeAlertEnrollment:       "alert-enrollment",
	ObjectTypeChannel:               "channel",
	ObjectTypeLightingOutput:        "lighting-output",
	ObjectTypeBinaryLightingOutput:  "binary-lighting-output",
	ObjectTypeNetworkPort:           "network-port",
	ObjectTypeElevatorGroup:         "elevator-group",
	ObjectTypeEscalator:             "escalator",
	ObjectTypeLift:                  "lift",
}

var objectTypeAbbreviations = map[string]ObjectType{
	"ai":  ObjectTypeAnalogInput,
	"ao":  ObjectTypeAnalogOutput,
	"av":  ObjectTypeAnalogValue,
	"bi":  ObjectTypeBinaryInput,
	"bo":  ObjectTypeBinaryOutput,
	"bv":  ObjectTypeBinaryValue,
	"dev": ObjectTypeDevice,
	"msi": ObjectTypeMultiStateInput,
	"mso": ObjectTypeMultiStateOutput,
	"msv": ObjectTypeMultiStateValue,
	"sch": ObjectTypeSchedule,
	"tl":  ObjectTypeTrendLog,
	"cal": ObjectTypeCalendar,
	"nc":  ObjectTypeNotificationClass,
	"prg": ObjectTypeProgram,
}

func (o ObjectType) String() string {
	if name, ok := objectTypeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("vendor-specific(%d)", uint16(o))
}

// ParseObjectType accepts a hyphenated name, a short form such as "ai", or
// a number.
func ParseObjectType(s string) (ObjectType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if t, ok := objectTypeAbbreviations[s]; ok {
		return t, true
	}
	for t, name := range objectTypeNames {
		if name == s {
			return t, true
		}
	}
	if n, err := strconv.ParseUint(s, 10, 16); err == nil && n <= tag.MaxObjectType {
		return ObjectType(n), true
	}
	return 0, false
}

// ObjectIdentifier represents a BACnet object identifier (type + instance)
type ObjectIdentifier struct {
	Type     ObjectType
	Instance uint32
}

// NewObjectIdentifier creates a new ObjectIdentifier
func NewObjectIdentifier(objectType ObjectType, instance uint32) ObjectIdentifier {
	return ObjectIdentifier{Type: objectType, Instance: instance}
}

// ObjectIdentifierOf converts a wire object identifier.
func ObjectIdentifierOf(id tag.ObjectID) ObjectIdentifier {
	return ObjectIdentifier{Type: ObjectType(id.Type), Instance: id.Instance}
}

// Wire returns the identifier in its encodable form.
func (o ObjectIdentifier) Wire() tag.ObjectID {
	return tag.ObjectID{Type: uint16(o.Type), Instance: o.Instance}
}

// Valid reports whether both fields fit their wire widths.
func (o ObjectIdentifier) Valid() bool {
	return o.Wire().Valid()
}

func (o ObjectIdentifier) String() string {
	return fmt.Sprintf("%s:%d", o.Type, o.Instance)
}

// ParseObjectIdentifier parses "type:instance", for example
// "analog-input:1" or "ai:1".
func ParseObjectIdentifier(s string) (ObjectIdentifier, error) {
	typ, inst, ok := strings.Cut(s, ":")
	if !ok {
		return ObjectIdentifier{}, fmt.Errorf("bacnet: object identifier %q: want type:instance", s)
	}
	t, ok := ParseObjectType(typ)
	if !ok {
		return ObjectIdentifier{}, fmt.Errorf("bacnet: unknown object type %q", typ)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(inst), 10, 32)
	if err != nil || n > tag.MaxInstance {
		return ObjectIdentifier{}, fmt.Errorf("bacnet: invalid instance %q", inst)
	}
	return ObjectIdentifier{Type: t, Instance: uint32(n)}, nil
}

// StatusFlags represents the BACnet status flags
type StatusFlags struct {
	InAlarm      bool
	Fault        bool
	Overridden   bool
	OutOfService bool
}

// StatusFlagsOf reads the four flags from a bit string.
func StatusFlagsOf(b tag.BitString) StatusFlags {
	return StatusFlags{
		InAlarm:      b.Bit(0),
		Fault:        b.Bit(1),
		Overridden:   b.Bit(2),
		OutOfService: b.Bit(3),
	}
}

// BitString encodes the flags in wire order.
func (s StatusFlags) BitString() tag.BitString {
	return tag.BitStringOf(s.InAlarm, s.Fault, s.Overridden, s.OutOfService)
}

func (s StatusFlags) String() string {
	return fmt.Sprintf("{in-alarm:%v, fault:%v, overridden:%v, out-of-service:%v}",
		s.InAlarm, s.Fault, s.Overridden, s.OutOfService)
}
