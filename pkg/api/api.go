// Package api defines the wire API between the coordinator and its clients.
//
// Each call is a JSON-encoded packet of the following structure:
//
//	id - (optional) a packet id for request tracking;
//	 t - (required) one of the predefined packet types;
//	 p - (optional) packet payload.
//
// Packets differentiate by type, and the type decides the concrete payload
// structure the raw p field unwraps into (two-pass unmarshal). Packets with
// a type outside the predefined set are logged and dropped by the receiver.
package api

import (
	"fmt"

	"github.com/goccy/go-json"
)

type PT uint8

type In struct {
	Id      string          `json:"id,omitempty"`
	T       PT              `json:"t"`
	Payload json.RawMessage `json:"p,omitempty"` // should be json.RawMessage for 2-pass unmarshal
}

type Out struct {
	Id      string `json:"id,omitempty"`
	T       PT     `json:"t"`
	Payload any    `json:"p,omitempty"`
}

// Packet codes:
//
//	1xx - registry and queue
//	2xx - addressed relay
const (
	Join              PT = 100
	ModeratorConnect  PT = 101
	RegistrySnapshot  PT = 102
	InspectionStart   PT = 110
	InspectionStarted PT = 111
	InspectionReady   PT = 112
	Admit             PT = 113
	Remove            PT = 114
	CancelInspection  PT = 115
	Admitted          PT = 116
	Removed           PT = 117
	Cancelled         PT = 118
	NextWaiting       PT = 119

	Offer            PT = 200
	Answer           PT = 201
	IceCandidate     PT = 202
	DeviceListShare  PT = 210
	DeviceSuggestion PT = 211
	MuteStatus       PT = 212
	MuteRequest      PT = 213
	ParticipantMeta  PT = 214
)

func (p PT) String() string {
	switch p {
	case Join:
		return "Join"
	case ModeratorConnect:
		return "ModeratorConnect"
	case RegistrySnapshot:
		return "RegistrySnapshot"
	case InspectionStart:
		return "InspectionStart"
	case InspectionStarted:
		return "InspectionStarted"
	case InspectionReady:
		return "InspectionReady"
	case Admit:
		return "Admit"
	case Remove:
		return "Remove"
	case CancelInspection:
		return "CancelInspection"
	case Admitted:
		return "Admitted"
	case Removed:
		return "Removed"
	case Cancelled:
		return "Cancelled"
	case NextWaiting:
		return "NextWaiting"
	case Offer:
		return "Offer"
	case Answer:
		return "Answer"
	case IceCandidate:
		return "IceCandidate"
	case DeviceListShare:
		return "DeviceListShare"
	case DeviceSuggestion:
		return "DeviceSuggestion"
	case MuteStatus:
		return "MuteStatus"
	case MuteRequest:
		return "MuteRequest"
	case ParticipantMeta:
		return "ParticipantMeta"
	default:
		return "Unknown"
	}
}

// IsRelay tells whether the packet kind is an addressed relay payload,
// forwarded verbatim between two peers.
func (p PT) IsRelay() bool { return p >= Offer && p <= ParticipantMeta }

var ErrMalformed = fmt.Errorf("malformed")

// Unwrap unpacks a raw payload into a concrete packet struct.
func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}
