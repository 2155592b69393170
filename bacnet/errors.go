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
	"errors"
	"fmt"

	"github.com/edgeo/drivers/bacstack/bacnet/tag"
	"github.com/edgeo/drivers/bacstack/bacnet/tsm"
)

// Sentinel errors
var (
	ErrTruncated         = tag.ErrTruncated
	ErrMalformedTag      = tag.ErrMalformedTag
	ErrStructureMismatch = tag.ErrStructureMismatch
	ErrPoolExhausted     = tsm.ErrPoolExhausted

	ErrUnrecognizedService      = errors.New("bacnet: unrecognized service")
	ErrTimeout                  = errors.New("bacnet: request timeout")
	ErrDCCBlocked               = errors.New("bacnet: communication disabled by DCC")
	ErrAPDUTooLong              = errors.New("bacnet: APDU exceeds the peer's maximum")
	ErrSegmentationNotSupported = errors.New("bacnet: segmentation not supported")
	ErrBroadcastDestination     = errors.New("bacnet: confirmed request to a broadcast address")
	ErrStackClosed              = errors.New("bacnet: stack closed")
	ErrAlreadyRunning           = errors.New("bacnet: stack already running")
	ErrInvalidResponse          = errors.New("bacnet: invalid response")
	ErrDeviceNotFound           = errors.New("bacnet: device not found")
	ErrPropertyNotFound         = errors.New("bacnet: property not found")
	ErrUnknownObject            = errors.New("bacnet: unknown object")
	ErrTrailingData             = errors.New("bacnet: data after the last service parameter")
)

// ErrorClass represents BACnet error classes
type ErrorClass uint16

const (
	ErrorClassDevice        ErrorClass = 0
	ErrorClassObject        ErrorClass = 1
	ErrorClassProperty      ErrorClass = 2
	ErrorClassResources     ErrorClass = 3
	ErrorClassSecurity      ErrorClass = 4
	ErrorClassServices      ErrorClass = 5
	ErrorClassVT            ErrorClass = 6
	ErrorClassCommunication ErrorClass = 7
)

var errorClassNames = map[ErrorClass]string{
	ErrorClassDevice:        "device",
	ErrorClassObject:        "object",
	ErrorClassProperty:      "property",
	ErrorClassResources:     "resources",
	ErrorClassSecurity:      "security",
	ErrorClassServices:      "services",
	ErrorClassVT:            "vt",
	ErrorClassCommunication: "communication",
}

func (e ErrorClass) String() string {
	if name, ok := errorClassNames[e]; ok {
		return name
	}
	return fmt.Sprintf("error-class(%d)", uint16(e))
}

// ErrorCode represents BACnet error codes
type ErrorCode uint16

const (
	ErrorCodeOther                              ErrorCode = 0
	ErrorCodeAuthenticationFailed               ErrorCode = 1
	ErrorCodeConfigurationInProgress            ErrorCode = 2
	ErrorCodeDeviceBusy                         ErrorCode = 3
	ErrorCodeDynamicCreationNotSupported        ErrorCode = 4
	ErrorCodeFileAccessDenied                   ErrorCode = 5
	ErrorCodeIncompatibleSecurityLevels         ErrorCode = 6
	ErrorCodeInconsistentParameters             ErrorCode = 7
	ErrorCodeInconsistentSelectionCriterion     ErrorCode = 8
	ErrorCodeInvalidDataType                    ErrorCode = 9
	ErrorCodeInvalidFileAccessMethod            ErrorCode = 10
	ErrorCodeInvalidFileStartPosition           ErrorCode = 11
	ErrorCodeInvalidOperatorName                ErrorCode = 12
	ErrorCodeInvalidParameterDataType           ErrorCode = 13
	ErrorCodeInvalidTimeStamp                   ErrorCode = 14
	ErrorCodeKeyGenerationError                 ErrorCode = 15
	ErrorCodeMissingRequiredParameter           ErrorCode = 16
	ErrorCodeNoObjectsOfSpecifiedType           ErrorCode = 17
	ErrorCodeNoSpaceForObject                   ErrorCode = 18
	ErrorCodeNoSpaceToAddListElement            ErrorCode = 19
	ErrorCodeNoSpaceToWriteProperty             ErrorCode = 20
	ErrorCodeNoVTSessionsAvailable              ErrorCode = 21
	ErrorCodePropertyIsNotAList                 ErrorCode = 22
	ErrorCodeObjectDeletionNotPermitted         ErrorCode = 23
	ErrorCodeObjectIdentifierAlreadyExists      ErrorCode = 24
	ErrorCodeOperationalProblem                 ErrorCode = 25
	ErrorCodePasswordFailure                    ErrorCode = 26
	ErrorCodeReadAccessDenied                   ErrorCode = 27
	ErrorCodeSecurityNotSupported               ErrorCode = 28
	ErrorCodeServiceRequestDenied               ErrorCode = 29
	ErrorCodeTimeout                            ErrorCode = 30
	ErrorCodeUnknownObject                      ErrorCode = 31
	ErrorCodeUnknownProperty                    ErrorCode = 32
	ErrorCodeUnknownVTClass                     ErrorCode = 34
	ErrorCodeUnknownVTSession                   ErrorCode = 35
	ErrorCodeUnsupportedObjectType              ErrorCode = 36
	ErrorCodeValueOutOfRange                    ErrorCode = 37
	ErrorCodeVTSessionAlreadyClosed             ErrorCode = 38
	ErrorCodeVTSessionTerminationFailure        ErrorCode = 39
	ErrorCodeWriteAccessDenied                  ErrorCode = 40
	ErrorCodeCharacterSetNotSupported           ErrorCode = 41
	ErrorCodeInvalidArrayIndex                  ErrorCode = 42
	ErrorCodeCOVSubscriptionFailed              ErrorCode = 43
	ErrorCodeNotCOVProperty                     ErrorCode = 44
	ErrorCodeOptionalFunctionalityNotSupported  ErrorCode = 45
	ErrorCodeInvalidConfigurationData           ErrorCode = 46
	ErrorCodeDatatypeNotSupported               ErrorCode = 47
	ErrorCodeDuplicateName                      ErrorCode = 48
	ErrorCodeDuplicateObjectID                  ErrorCode = 49
	ErrorCodePropertyIsNotAnArray               ErrorCode = 50
	ErrorCodeAbortBufferOverflow                ErrorCode = 51
	ErrorCodeAbortInvalidAPDUInThisState        ErrorCode = 52
	ErrorCodeAbortPreemptedByHigherPriorityTask ErrorCode = 53
	ErrorCodeAbortSegmentationNotSupported      ErrorCode = 54
	ErrorCodeAbortProprietary                   ErrorCode = 55
	ErrorCodeAbortOther                         ErrorCode = 56
	ErrorCodeInvalidTag                         ErrorCode = 57
	ErrorCodeNetworkDown                        ErrorCode = 58
	ErrorCodeRejectBufferOverflow               ErrorCode = 59
	ErrorCodeRejectInconsistentParameters       ErrorCode = 60
	ErrorCodeRejectInvalidParameterDataType     ErrorCode = 61
	ErrorCodeRejectInvalidTag                   ErrorCode = 62
	ErrorCodeRejectMissingRequiredParameter     ErrorCode = 63
	ErrorCodeRejectParameterOutOfRange          ErrorCode = 64
	ErrorCodeRejectTooManyArguments             ErrorCode = 65
	ErrorCodeRejectUndefinedEnumeration         ErrorCode = 66
	ErrorCodeRejectUnrecognizedService          ErrorCode = 67
	ErrorCodeRejectProprietary                  ErrorCode = 68
	ErrorCodeRejectOther                        ErrorCode = 69
	ErrorCodeUnknownDevice                      ErrorCode = 70
	ErrorCodeUnknownRoute                       ErrorCode = 71
	ErrorCodeValueNotInitialized                ErrorCode = 72
	ErrorCodeInvalidEventState                  ErrorCode = 73
	ErrorCodeNoAlarmConfigured                  ErrorCode = 74
	ErrorCodeLogBufferFull                      ErrorCode = 75
	ErrorCodeLoggedValuePurged                  ErrorCode = 76
	ErrorCodeNoPropertySpecified                ErrorCode = 77
	ErrorCodeNotConfiguredForTriggeredLogging   ErrorCode = 78
	ErrorCodeUnknownSubscription                ErrorCode = 79
	ErrorCodeParameterOutOfRange                ErrorCode = 80
	ErrorCodeListElementNotFound                ErrorCode = 81
	ErrorCodeBusy                               ErrorCode = 82
	ErrorCodeCommunicationDisabled              ErrorCode = 83
	ErrorCodeAbortAPDUTooLong                   ErrorCode = 123
	ErrorCodeAbortApplicationExceededReplyTime  ErrorCode = 124
	ErrorCodeAbortOutOfResources                ErrorCode = 125
	ErrorCodeAbortTSMTimeout                    ErrorCode = 126
	ErrorCodeAbortWindowSizeOutOfRange          ErrorCode = 127
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCodeOther:                              "other",
	ErrorCodeAuthenticationFailed:               "authentication-failed",
	ErrorCodeConfigurationInProgress:            "configuration-in-progress",
	ErrorCodeDeviceBusy:                         "device-busy",
	ErrorCodeDynamicCreationNotSupported:        "dynamic-creation-not-supported",
	ErrorCodeFileAccessDenied:                   "file-access-denied",
	ErrorCodeIncompatibleSecurityLevels:         "incompatible-security-levels",
	ErrorCodeInconsistentParameters:             "inconsistent-parameters",
	ErrorCodeInconsistentSelectionCriterion:     "inconsistent-selection-criterion",
	ErrorCodeInvalidDataType:                    "invalid-data-type",
	ErrorCodeInvalidFileAccessMethod:            "invalid-file-access-method",
	ErrorCodeInvalidFileStartPosition:           "invalid-file-start-position",
	ErrorCodeInvalidOperatorName:                "invalid-operator-name",
	ErrorCodeInvalidParameterDataType:           "invalid-parameter-data-type",
	ErrorCodeInvalidTimeStamp:                   "invalid-time-stamp",
	ErrorCodeKeyGenerationError:                 "key-generation-error",
	ErrorCodeMissingRequiredParameter:           "missing-required-parameter",
	ErrorCodeNoObjectsOfSpecifiedType:           "no-objects-of-specified-type",
	ErrorCodeNoSpaceForObject:                   "no-space-for-object",
	ErrorCodeNoSpaceToAddListElement:            "no-space-to-add-list-element",
	ErrorCodeNoSpaceToWriteProperty:             "no-space-to-write-property",
	ErrorCodeNoVTSessionsAvailable:              "no-vt-sessions-available",
	ErrorCodePropertyIsNotAList:                 "property-is-not-a-list",
	ErrorCodeObjectDeletionNotPermitted:         "object-deletion-not-permitted",
	ErrorCodeObjectIdentifierAlreadyExists:      "object-identifier-already-exists",
	ErrorCodeOperationalProblem:                 "operational-problem",
	ErrorCodePasswordFailure:                    "password-failure",
	ErrorCodeReadAccessDenied:                   "read-access-denied",
	ErrorCodeSecurityNotSupported:               "security-not-supported",
	ErrorCodeServiceRequestDenied:               "service-request-denied",
	ErrorCodeTimeout:                            "timeout",
	ErrorCodeUnknownObject:                      "unknown-object",
	ErrorCodeUnknownProperty:                    "unknown-property",
	ErrorCodeUnknownVTClass:                     "unknown-vt-class",
	ErrorCodeUnknownVTSession:                   "unknown-vt-session",
	ErrorCodeUnsupportedObjectType:              "unsupported-object-type",
	ErrorCodeValueOutOfRange:                    "value-out-of-range",
	ErrorCodeVTSessionAlreadyClosed:             "vt-session-already-closed",
	ErrorCodeVTSessionTerminationFailure:        "vt-session-termination-failure",
	ErrorCodeWriteAccessDenied:                  "write-access-denied",
	ErrorCodeCharacterSetNotSupported:           "character-set-not-supported",
	ErrorCodeInvalidArrayIndex:                  "invalid-array-index",
	ErrorCodeCOVSubscriptionFailed:              "cov-subscription-failed",
	ErrorCodeNotCOVProperty:                     "not-cov-property",
	ErrorCodeOptionalFunctionalityNotSupported:  "optional-functionality-not-supported",
	ErrorCodeInvalidConfigurationData:           "invalid-configuration-data",
	ErrorCodeDatatypeNotSupported:               "datatype-not-supported",
	ErrorCodeDuplicateName:                      "duplicate-name",
	ErrorCodeDuplicateObjectID:                  "duplicate-object-id",
	ErrorCodePropertyIsNotAnArray:               "property-is-not-an-array",
	ErrorCodeAbortBufferOverflow:                "abort-buffer-overflow",
	ErrorCodeAbortInvalidAPDUInThisState:        "abort-invalid-apdu-in-this-state",
	ErrorCodeAbortPreemptedByHigherPriorityTask: "abort-preempted-by-higher-priority-task",
	ErrorCodeAbortSegmentationNotSupported:      "abort-segmentation-not-supported",
	ErrorCodeAbortProprietary:                   "abort-proprietary",
	ErrorCodeAbortOther:                         "abort-other",
	ErrorCodeInvalidTag:                         "invalid-tag",
	ErrorCodeNetworkDown:                        "network-down",
	ErrorCodeRejectBufferOverflow:               "reject-buffer-overflow",
	ErrorCodeRejectInconsistentParameters:       "reject-inconsistent-parameters",
	ErrorCodeRejectInvalidParameterDataType:     "reject-invalid-parameter-data-type",
	ErrorCodeRejectInvalidTag:                   "reject-invalid-tag",
	ErrorCodeRejectMissingRequiredParameter:     "reject-missing-required-parameter",
	ErrorCodeRejectParameterOutOfRange:          "reject-parameter-out-of-range",
	ErrorCodeRejectTooManyArguments:             "reject-too-many-arguments",
	ErrorCodeRejectUndefinedEnumeration:         "reject-undefined-enumeration",
	ErrorCodeRejectUnrecognizedService:          "reject-unrecognized-service",
	ErrorCodeRejectProprietary:                  "reject-proprietary",
	ErrorCodeRejectOther:                        "reject-other",
	ErrorCodeUnknownDevice:                      "unknown-device",
	ErrorCodeUnknownRoute:                       "unknown-route",
	ErrorCodeValueNotInitialized:                "value-not-initialized",
	ErrorCodeInvalidEventState:                  "invalid-event-state",
	ErrorCodeNoAlarmConfigured:                  "no-alarm-configured",
	ErrorCodeLogBufferFull:                      "log-buffer-full",
	ErrorCodeLoggedValuePurged:                  "logged-value-purged",
	ErrorCodeNoPropertySpecified:                "no-property-specified",
	ErrorCodeNotConfiguredForTriggeredLogging:   "not-configured-for-triggered-logging",
	ErrorCodeUnknownSubscription:                "unknown-subscription",
	ErrorCodeParameterOutOfRange:                "parameter-out-of-range",
	ErrorCodeListElementNotFound:                "list-element-not-found",
	ErrorCodeBusy:                               "busy",
	ErrorCodeCommunicationDisabled:              "communication-disabled",
	ErrorCodeAbortAPDUTooLong:                   "abort-apdu-too-long",
	ErrorCodeAbortApplicationExceededReplyTime:  "abort-application-exceeded-reply-time",
	ErrorCodeAbortOutOfResources:                "abort-out-of-resources",
	ErrorCodeAbortTSMTimeout:                    "abort-tsm-timeout",
	ErrorCodeAbortWindowSizeOutOfRange:          "abort-window-size-out-of-range",
}

func (e ErrorCode) String() string {
	if name, ok := errorCodeNames[e]; ok {
		return name
	}
	return fmt.Sprintf("error-code(%d)", uint16(e))
}

// BACnetError is an error class and code pair carried by an Error PDU
type BACnetError struct {
	Class ErrorClass
	Code  ErrorCode

	// Detail holds the encoded parameters that follow the error in the
	// complex error forms, such as the first failed write of a
	// WritePropertyMultiple.
	Detail []byte
}

func (e *BACnetError) Error() string {
	return fmt.Sprintf("bacnet error: class=%s, code=%s", e.Class, e.Code)
}

func (e *BACnetError) Is(target error) bool {
	t, ok := target.(*BACnetError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewBACnetError creates a new BACnet error
func NewBACnetError(class ErrorClass, code ErrorCode) *BACnetError {
	return &BACnetError{
		Class: class,
		Code:  code,
	}
}

// RejectReason represents BACnet reject reasons
type RejectReason uint8

const (
	RejectReasonOther                    RejectReason = 0
	RejectReasonBufferOverflow           RejectReason = 1
	RejectReasonInconsistentParameters   RejectReason = 2
	RejectReasonInvalidParameterDataType RejectReason = 3
	RejectReasonInvalidTag               RejectReason = 4
	RejectReasonMissingRequiredParameter RejectReason = 5
	RejectReasonParameterOutOfRange      RejectReason = 6
	RejectReasonTooManyArguments         RejectReason = 7
	RejectReasonUndefinedEnumeration     RejectReason = 8
	RejectReasonUnrecognizedService      RejectReason = 9
)

var rejectReasonNames = map[RejectReason]string{
	RejectReasonOther:                    "other",
	RejectReasonBufferOverflow:           "buffer-overflow",
	RejectReasonInconsistentParameters:   "inconsistent-parameters",
	RejectReasonInvalidParameterDataType: "invalid-parameter-data-type",
	RejectReasonInvalidTag:               "invalid-tag",
	RejectReasonMissingRequiredParameter: "missing-required-parameter",
	RejectReasonParameterOutOfRange:      "parameter-out-of-range",
	RejectReasonTooManyArguments:         "too-many-arguments",
	RejectReasonUndefinedEnumeration:     "undefined-enumeration",
	RejectReasonUnrecognizedService:      "unrecognized-service",
}

func (r RejectReason) String() string {
	if name, ok := rejectReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reject-reason(%d)", uint8(r))
}

// RejectError represents a BACnet reject response
type RejectError struct {
	InvokeID uint8
	Reason   RejectReason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("bacnet reject: invoke-id=%d, reason=%s", e.InvokeID, e.Reason)
}

// AbortReason represents BACnet abort reasons
type AbortReason uint8

const (
	AbortReasonOther                         AbortReason = 0
	AbortReasonBufferOverflow                AbortReason = 1
	AbortReasonInvalidAPDUInThisState        AbortReason = 2
	AbortReasonPreemptedByHigherPriorityTask AbortReason = 3
	AbortReasonSegmentationNotSupported      AbortReason = 4
	AbortReasonSecurityError                 AbortReason = 5
	AbortReasonInsufficientSecurity          AbortReason = 6
	AbortReasonWindowSizeOutOfRange          AbortReason = 7
	AbortReasonApplicationExceededReplyTime  AbortReason = 8
	AbortReasonOutOfResources                AbortReason = 9
	AbortReasonTSMTimeout                    AbortReason = 10
	AbortReasonAPDUTooLong                   AbortReason = 11
)

var abortReasonNames = map[AbortReason]string{
	AbortReasonOther:                         "other",
	AbortReasonBufferOverflow:                "buffer-overflow",
	AbortReasonInvalidAPDUInThisState:        "invalid-apdu-in-this-state",
	AbortReasonPreemptedByHigherPriorityTask: "preempted-by-higher-priority-task",
	AbortReasonSegmentationNotSupported:      "segmentation-not-supported",
	AbortReasonSecurityError:                 "security-error",
	AbortReasonInsufficientSecurity:          "insufficient-security",
	AbortReasonWindowSizeOutOfRange:          "window-size-out-of-range",
	AbortReasonApplicationExceededReplyTime:  "application-exceeded-reply-time",
	AbortReasonOutOfResources:                "out-of-resources",
	AbortReasonTSMTimeout:                    "tsm-timeout",
	AbortReasonAPDUTooLong:                   "apdu-too-long",
}

func (a AbortReason) String() string {
	if name, ok := abortReasonNames[a]; ok {
		return name
	}
	return fmt.Sprintf("abort-reason(%d)", uint8(a))
}

// AbortError represents a BACnet abort, sent by either side
type AbortError struct {
	InvokeID uint8
	Server   bool
	Reason   AbortReason
}

func (e *AbortError) Error() string {
	origin := "client"
	if e.Server {
		origin = "server"
	}
	return fmt.Sprintf("bacnet abort: invoke-id=%d, origin=%s, reason=%s", e.InvokeID, origin, e.Reason)
}

// IsTimeout returns true if the error is a timeout error, including a
// transaction the local state machine gave up on
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var abortErr *AbortError
	return errors.As(err, &abortErr) && abortErr.Reason == AbortReasonTSMTimeout
}

// IsDeviceNotFound returns true if the error indicates device not found
func IsDeviceNotFound(err error) bool {
	if errors.Is(err, ErrDeviceNotFound) {
		return true
	}
	var bacnetErr *BACnetError
	if errors.As(err, &bacnetErr) {
		return bacnetErr.Code == ErrorCodeUnknownDevice || bacnetErr.Code == ErrorCodeUnknownObject
	}
	return false
}

// IsPropertyNotFound returns true if the error indicates property not found
func IsPropertyNotFound(err error) bool {
	if errors.Is(err, ErrPropertyNotFound) {
		return true
	}
	var bacnetErr *BACnetError
	if errors.As(err, &bacnetErr) {
		return bacnetErr.Code == ErrorCodeUnknownProperty
	}
	return false
}

// IsAccessDenied returns true if the error indicates access denied
func IsAccessDenied(err error) bool {
	var bacnetErr *BACnetError
	if errors.As(err, &bacnetErr) {
		return bacnetErr.Code == ErrorCodeReadAccessDenied || bacnetErr.Code == ErrorCodeWriteAccessDenied
	}
	return false
}

// IsDecodeError reports whether err came from decoding malformed or
// truncated service data
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrTruncated) || errors.Is(err, ErrMalformedTag) ||
		errors.Is(err, ErrStructureMismatch) || errors.Is(err, ErrTrailingData)
}
