package api

// Status is the queue lifecycle state of a participant record.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInspecting Status = "inspecting"
	StatusAdmitted   Status = "admitted"
	StatusRemoved    Status = "removed"
)

// Terminal tells whether the status ends the record's lifecycle.
func (s Status) Terminal() bool { return s == StatusAdmitted || s == StatusRemoved }

// ClientMeta is the descriptive metadata a participant self-reports on join.
type ClientMeta struct {
	Browser string `json:"browser,omitempty"`
	Os      string `json:"os,omitempty"`
	Device  string `json:"device,omitempty"`
}

type JoinRequest struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	ClientMeta
}

// Identified references a participant by its stable identity.
type Identified struct {
	Identity string `json:"identity"`
}

type (
	InspectionStartRequest  = Identified
	AdmitRequest            = Identified
	RemoveRequest           = Identified
	CancelInspectionRequest = Identified
)

// ParticipantInfo is one row of a registry snapshot.
type ParticipantInfo struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	ClientMeta
	Status Status `json:"status"`
}

type RegistrySnapshotNotice struct {
	Participants []ParticipantInfo `json:"participants"`
}

// InspectionStartedNotice carries the moderator's transport address
// so the participant side can address its negotiation messages.
type InspectionStartedNotice struct {
	Moderator string `json:"moderator"`
}

// InspectionReadyNotice carries the participant's transport address,
// the mirror of InspectionStartedNotice for the moderator side.
type InspectionReadyNotice struct {
	Participant string `json:"participant"`
}

// NextWaitingNotice names the earliest remaining waiting participant
// after an admit/remove, or nobody when the queue drained.
type NextWaitingNotice struct {
	Identity string `json:"identity,omitempty"`
}
