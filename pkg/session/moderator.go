package session

import (
	"sync"

	"github.com/greenroomhq/greenroom/pkg/api"
	"github.com/greenroomhq/greenroom/pkg/logger"
)

// Moderator is the client-local controller of the inspecting side.
// It consumes registry snapshots, runs at most one inspection at a
// time, and auto-advances through the waiting queue.
type Moderator struct {
	mu  sync.Mutex
	log *logger.Logger
	sig Signaler

	newEngine EngineFactory

	snapshot []api.ParticipantInfo

	// current inspection, zero values when idle
	inspecting  string
	participant string // transport address of the inspected peer
	engine      Negotiator

	devices map[string][]api.Device
	metas   map[string]api.ParticipantMetaPayload
	muted   bool

	autoAdvance bool

	onSnapshot func(participants []api.ParticipantInfo)
	onReady    func(identity string)
	onDevices  func(identity string, devices []api.Device)
	onMute     func(muted bool)
	onIdle     func()
}

type ModeratorOpts struct {
	// AutoAdvance starts the next inspection as soon as the current
	// one ends with admit or remove
	AutoAdvance bool

	OnSnapshot func(participants []api.ParticipantInfo)
	OnReady    func(identity string)
	OnDevices  func(identity string, devices []api.Device)
	OnMute     func(muted bool)
	OnIdle     func()
}

func NewModerator(opts ModeratorOpts, sig Signaler, engines EngineFactory, log *logger.Logger) *Moderator {
	return &Moderator{
		log:         log,
		sig:         sig,
		newEngine:   engines,
		devices:     make(map[string][]api.Device),
		metas:       make(map[string]api.ParticipantMetaPayload),
		autoAdvance: opts.AutoAdvance,
		onSnapshot:  opts.OnSnapshot,
		onReady:     opts.OnReady,
		onDevices:   opts.OnDevices,
		onMute:      opts.OnMute,
		onIdle:      opts.OnIdle,
	}
}

// Connect registers this endpoint as a moderator and requests the
// initial registry snapshot.
func (m *Moderator) Connect() { m.sig.Notify(api.ModeratorConnect, nil) }

// Inspect asks the coordinator to move a waiting participant into
// inspection. The pairing starts when InspectionReady comes back.
func (m *Moderator) Inspect(identity string) {
	m.mu.Lock()
	m.inspecting = identity
	m.mu.Unlock()
	m.sig.Notify(api.InspectionStart, api.InspectionStartRequest{Identity: identity})
}

// Admit ends the current inspection with admission.
func (m *Moderator) Admit() { m.finishWith(api.Admit) }

// Remove ends the current inspection with removal.
func (m *Moderator) Remove() { m.finishWith(api.Remove) }

func (m *Moderator) finishWith(t api.PT) {
	m.mu.Lock()
	identity := m.inspecting
	m.mu.Unlock()
	if identity == "" {
		m.log.Warn().Msgf("%v with no active inspection", t)
		return
	}
	m.sig.Notify(t, api.Identified{Identity: identity})
}

// Cancel returns the inspected participant to the queue and tears the
// pairing down.
func (m *Moderator) Cancel() {
	m.mu.Lock()
	identity := m.inspecting
	m.teardownLocked()
	m.mu.Unlock()
	if identity == "" {
		return
	}
	m.sig.Notify(api.CancelInspection, api.CancelInspectionRequest{Identity: identity})
}

// RequestMute asks the inspected participant to mute or unmute its
// microphone; the confirmed state comes back as MuteStatus.
func (m *Moderator) RequestMute(mute bool) {
	m.mu.Lock()
	addr := m.participant
	m.mu.Unlock()
	if addr == "" {
		return
	}
	m.sig.Notify(api.MuteRequest, api.MuteRequestPayload{Addressed: api.Addressed{To: addr}, Mute: mute})
}

// SuggestDevice proposes a different capture device to a participant,
// addressed by identity so the suggestion survives reconnects.
func (m *Moderator) SuggestDevice(identity, deviceId, label string) {
	m.sig.Notify(api.DeviceSuggestion, api.DeviceSuggestionPayload{
		Identity: identity, DeviceId: deviceId, Label: label,
	})
}

// Inspecting reports the identity under inspection, empty when idle.
func (m *Moderator) Inspecting() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inspecting
}

// Snapshot returns the last received registry state.
func (m *Moderator) Snapshot() []api.ParticipantInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]api.ParticipantInfo, len(m.snapshot))
	copy(out, m.snapshot)
	return out
}

// Devices returns the shared device inventory of a participant.
func (m *Moderator) Devices(identity string) []api.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices[identity]
}

// Meta returns the self-reported metadata of a participant.
func (m *Moderator) Meta(identity string) (api.ParticipantMetaPayload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.metas[identity]
	return meta, ok
}

// Muted reports the last confirmed microphone state of the inspected
// participant.
func (m *Moderator) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// HandlePacket routes one coordinator packet into the controller.
func (m *Moderator) HandlePacket(in api.In) {
	switch in.T {
	case api.RegistrySnapshot:
		if rq := api.Unwrap[api.RegistrySnapshotNotice](in.Payload); rq != nil {
			m.handleSnapshot(*rq)
		}
	case api.InspectionReady:
		if rq := api.Unwrap[api.InspectionReadyNotice](in.Payload); rq != nil {
			m.startPairing(rq.Participant)
		}
	case api.Answer:
		if rq := api.Unwrap[api.AnswerPayload](in.Payload); rq != nil {
			m.handleAnswer(*rq)
		}
	case api.IceCandidate:
		if rq := api.Unwrap[api.IceCandidatePayload](in.Payload); rq != nil {
			m.handleCandidate(*rq)
		}
	case api.DeviceListShare:
		if rq := api.Unwrap[api.DeviceListPayload](in.Payload); rq != nil {
			m.handleDevices(*rq)
		}
	case api.ParticipantMeta:
		if rq := api.Unwrap[api.ParticipantMetaPayload](in.Payload); rq != nil {
			m.handleMeta(*rq)
		}
	case api.MuteStatus:
		if rq := api.Unwrap[api.MuteStatusPayload](in.Payload); rq != nil {
			m.handleMuteStatus(*rq)
		}
	case api.NextWaiting:
		if rq := api.Unwrap[api.NextWaitingNotice](in.Payload); rq != nil {
			m.handleNext(*rq)
		}
	default:
		m.log.Debug().Msgf("ignored %v", in.T)
	}
}

func (m *Moderator) handleSnapshot(rq api.RegistrySnapshotNotice) {
	m.mu.Lock()
	m.snapshot = rq.Participants
	cb := m.onSnapshot
	m.mu.Unlock()
	if cb != nil {
		cb(rq.Participants)
	}
}

// startPairing opens the negotiation with the now inspecting
// participant: this side always offers, receive-only.
func (m *Moderator) startPairing(addr string) {
	m.mu.Lock()
	if m.engine != nil {
		// stale pairing from a previous inspection
		m.engine.Close()
		m.engine = nil
	}
	m.participant = addr
	m.muted = false
	identity := m.inspecting

	engine, err := m.newEngine()
	if err != nil {
		m.mu.Unlock()
		m.log.Error().Err(err).Msg("engine create fail")
		return
	}
	m.engine = engine
	m.mu.Unlock()

	engine.OnCandidate(func(candidate string) {
		m.sig.Notify(api.IceCandidate, api.IceCandidatePayload{
			Addressed: api.Addressed{To: addr}, Candidate: candidate,
		})
	})
	offer, err := engine.CreateOffer()
	if err != nil {
		m.log.Error().Err(err).Msg("offer fail")
		return
	}
	m.sig.Notify(api.Offer, api.OfferPayload{Addressed: api.Addressed{To: addr}, Sdp: offer})
	if m.onReady != nil {
		m.onReady(identity)
	}
}

func (m *Moderator) handleAnswer(rq api.AnswerPayload) {
	m.mu.Lock()
	engine := m.engine
	m.mu.Unlock()
	if engine == nil {
		m.log.Warn().Msg("answer with no active pairing")
		return
	}
	if err := engine.HandleAnswer(rq.Sdp); err != nil {
		m.log.Error().Err(err).Msg("answer fail")
	}
}

func (m *Moderator) handleCandidate(rq api.IceCandidatePayload) {
	m.mu.Lock()
	engine := m.engine
	m.mu.Unlock()
	if engine == nil {
		return
	}
	if err := engine.AddCandidate(rq.Candidate); err != nil {
		m.log.Error().Err(err).Msg("ICE candidate fail")
	}
}

func (m *Moderator) handleDevices(rq api.DeviceListPayload) {
	m.mu.Lock()
	identity := m.inspecting
	if identity == "" {
		// the share outlived its inspection
		m.mu.Unlock()
		return
	}
	m.devices[identity] = rq.Devices
	cb := m.onDevices
	m.mu.Unlock()
	if cb != nil {
		cb(identity, rq.Devices)
	}
}

func (m *Moderator) handleMeta(rq api.ParticipantMetaPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inspecting == "" {
		return
	}
	m.metas[m.inspecting] = rq
}

func (m *Moderator) handleMuteStatus(rq api.MuteStatusPayload) {
	m.mu.Lock()
	m.muted = rq.Muted
	cb := m.onMute
	m.mu.Unlock()
	if cb != nil {
		cb(rq.Muted)
	}
}

// handleNext closes the finished pairing and either advances to the
// named waiting participant or goes idle.
func (m *Moderator) handleNext(rq api.NextWaitingNotice) {
	m.mu.Lock()
	m.teardownLocked()
	advance := m.autoAdvance && rq.Identity != ""
	m.mu.Unlock()
	if advance {
		m.Inspect(rq.Identity)
		return
	}
	if m.onIdle != nil {
		m.onIdle()
	}
}

// Close tears the current pairing down immediately.
func (m *Moderator) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

func (m *Moderator) teardownLocked() {
	if m.engine != nil {
		m.engine.Close()
		m.engine = nil
	}
	m.inspecting = ""
	m.participant = ""
	m.muted = false
}
