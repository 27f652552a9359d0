package printer

import "errors"

// Failure taxonomy. Every Manager and Transmitter error wraps exactly one of
// the first six; the platform cause stays reachable through errors.Is.
var (
	ErrNoTransport      = errors.New("bluetooth unavailable")
	ErrPairingCancelled = errors.New("printer selection cancelled")
	ErrLinkFailure      = errors.New("printer link failed")
	ErrProtocolFailure  = errors.New("printer protocol failure")
	ErrTransmission     = errors.New("transmission failed")
	ErrBusy             = errors.New("printer busy")
)

// Conditions reported by platforms or by reconnect
var (
	ErrNotPaired            = errors.New("no paired printer")
	ErrReconnectUnsupported = errors.New("reconnect without picker not supported")
	ErrNotSupported         = errors.New("operation not supported on this platform")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrNetwork              = errors.New("device unreachable")
	ErrLinkDropped          = errors.New("printer link dropped")
	ErrEmptyPayload         = errors.New("nothing to print")
)

// FailureKind classifies an error for the operator
type FailureKind string

const (
	KindNone         FailureKind = ""
	KindNoTransport  FailureKind = "no_transport"
	KindCancelled    FailureKind = "pairing_cancelled"
	KindNotPaired    FailureKind = "not_paired"
	KindLinkFailure  FailureKind = "link_failure"
	KindProtocol     FailureKind = "protocol_failure"
	KindTransmission FailureKind = "transmission_failure"
	KindBusy         FailureKind = "busy"
	KindEmpty        FailureKind = "empty"
	KindUnknown      FailureKind = "unknown"
)

// Kind classifies err. The most specific condition wins: a busy printer is
// reported as busy even if a reconnect attempt also failed on the way.
func Kind(err error) FailureKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrEmptyPayload):
		return KindEmpty
	case errors.Is(err, ErrNoTransport):
		return KindNoTransport
	case errors.Is(err, ErrPairingCancelled):
		return KindCancelled
	case errors.Is(err, ErrTransmission):
		return KindTransmission
	case errors.Is(err, ErrProtocolFailure):
		return KindProtocol
	case errors.Is(err, ErrLinkFailure), errors.Is(err, ErrLinkDropped):
		return KindLinkFailure
	case errors.Is(err, ErrNotPaired), errors.Is(err, ErrReconnectUnsupported):
		return KindNotPaired
	default:
		return KindUnknown
	}
}

var userMessages = map[FailureKind]string{
	KindNoTransport:  "Bluetooth is off or not available. Turn Bluetooth on and print again.",
	KindCancelled:    "No printer was selected. Press Connect Printer and pick the receipt printer.",
	KindNotPaired:    "Printer is not paired. Press Connect Printer to pair it.",
	KindLinkFailure:  "Printer connection dropped. Check the printer is on and nearby, then print again.",
	KindProtocol:     "The selected device is not a supported receipt printer. Pair the receipt printer instead.",
	KindTransmission: "Printing was interrupted mid-receipt. Print the whole receipt again.",
	KindBusy:         "Printer is busy with another receipt. Wait for it to finish, then print again.",
	KindEmpty:        "There is nothing to print for this order.",
	KindUnknown:      "Printing failed because of an unexpected printer error. Print again.",
}

// UserMessage returns the operator-facing explanation of err
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return userMessages[Kind(err)]
}
