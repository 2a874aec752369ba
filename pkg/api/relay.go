package api

// Addressed is the envelope shared by all relayed payloads.
// Senders fill To; the coordinator stamps From on delivery and
// forwards the rest of the payload verbatim.
type Addressed struct {
	To   string `json:"to,omitempty"`
	From string `json:"from,omitempty"`
}

// SDP and ICE values are base64-encoded JSON blobs, opaque to the relay.
type (
	OfferPayload struct {
		Addressed
		Sdp string `json:"sdp"`
	}
	AnswerPayload struct {
		Addressed
		Sdp string `json:"sdp"`
	}
	IceCandidatePayload struct {
		Addressed
		Candidate string `json:"candidate"`
	}
)

// Device describes one local capture device of a participant.
type Device struct {
	Id    string `json:"id"`
	Kind  string `json:"kind"` // audio | video
	Label string `json:"label"`
}

type DeviceListPayload struct {
	Addressed
	Devices []Device `json:"devices"`
}

// DeviceSuggestionPayload is addressed by participant identity:
// the coordinator resolves the identity to a transport address on relay.
type DeviceSuggestionPayload struct {
	Identity string `json:"identity"`
	From     string `json:"from,omitempty"`
	DeviceId string `json:"device_id"`
	Label    string `json:"label,omitempty"`
}

type MuteStatusPayload struct {
	Addressed
	Muted bool `json:"muted"`
}

type MuteRequestPayload struct {
	Addressed
	Mute bool `json:"mute"`
}

type ParticipantMetaPayload struct {
	Addressed
	Name string `json:"name,omitempty"`
	ClientMeta
}
