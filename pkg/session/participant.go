package session

import (
	"sync"
	"time"

	"github.com/greenroomhq/greenroom/pkg/api"
	"github.com/greenroomhq/greenroom/pkg/logger"
)

// Participant is the client-local lifecycle controller of the waiting
// side. It mirrors the relayed registry events into role state and
// drives the negotiation engine of the current pairing.
type Participant struct {
	mu  sync.Mutex
	log *logger.Logger
	sig Signaler

	identity string
	name     string
	meta     api.ClientMeta

	capturer  Capturer
	newEngine EngineFactory

	status    api.Status
	moderator string

	engine Negotiator
	audio  *Capture
	video  *Capture

	teardownDelay time.Duration

	// onSuggestion decides accept/decline of a moderator device
	// suggestion; nil accepts everything
	onSuggestion func(device api.Device) bool
	onStatus     func(status api.Status)
	onMediaError func(err *MediaError)
}

type ParticipantOpts struct {
	Identity string
	Name     string
	Meta     api.ClientMeta
	// delay between a terminal event and the engine teardown,
	// keeps the final media frames around for user feedback
	TeardownDelay time.Duration

	OnSuggestion func(device api.Device) bool
	OnStatus     func(status api.Status)
	OnMediaError func(err *MediaError)
}

func NewParticipant(opts ParticipantOpts, sig Signaler, capturer Capturer, engines EngineFactory, log *logger.Logger) *Participant {
	if opts.TeardownDelay == 0 {
		opts.TeardownDelay = 3 * time.Second
	}
	return &Participant{
		log:           log,
		sig:           sig,
		identity:      opts.Identity,
		name:          opts.Name,
		meta:          opts.Meta,
		capturer:      capturer,
		newEngine:     engines,
		status:        api.StatusWaiting,
		teardownDelay: opts.TeardownDelay,
		onSuggestion:  opts.OnSuggestion,
		onStatus:      opts.OnStatus,
		onMediaError:  opts.OnMediaError,
	}
}

// Join announces the participant to the coordinator queue.
func (p *Participant) Join() {
	p.sig.Notify(api.Join, api.JoinRequest{Identity: p.identity, Name: p.name, ClientMeta: p.meta})
}

func (p *Participant) Status() api.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// HandlePacket routes one coordinator packet into the controller.
func (p *Participant) HandlePacket(in api.In) {
	switch in.T {
	case api.InspectionStarted:
		if rq := api.Unwrap[api.InspectionStartedNotice](in.Payload); rq != nil {
			p.startInspection(rq.Moderator)
		}
	case api.Offer:
		if rq := api.Unwrap[api.OfferPayload](in.Payload); rq != nil {
			p.handleOffer(*rq)
		}
	case api.IceCandidate:
		if rq := api.Unwrap[api.IceCandidatePayload](in.Payload); rq != nil {
			p.handleCandidate(*rq)
		}
	case api.MuteRequest:
		if rq := api.Unwrap[api.MuteRequestPayload](in.Payload); rq != nil {
			p.handleMuteRequest(*rq)
		}
	case api.DeviceSuggestion:
		if rq := api.Unwrap[api.DeviceSuggestionPayload](in.Payload); rq != nil {
			p.handleSuggestion(*rq)
		}
	case api.Admitted:
		p.finish(api.StatusAdmitted)
	case api.Removed:
		p.finish(api.StatusRemoved)
	case api.Cancelled:
		p.cancel()
	default:
		p.log.Debug().Msgf("ignored %v", in.T)
	}
}

// startInspection prepares the pairing: a fresh engine with the local
// tracks attached, and a one-time share of the device inventory and
// metadata with the moderator.
func (p *Participant) startInspection(moderator string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == api.StatusInspecting && p.moderator == moderator {
		return // re-delivery
	}
	p.teardownLocked()
	p.status = api.StatusInspecting
	p.moderator = moderator

	engine, err := p.newEngine()
	if err != nil {
		p.log.Error().Err(err).Msg("engine create fail")
		return
	}
	p.engine = engine
	engine.OnCandidate(func(candidate string) {
		p.sig.Notify(api.IceCandidate, api.IceCandidatePayload{
			Addressed: api.Addressed{To: moderator}, Candidate: candidate,
		})
	})

	p.audio = p.captureLocked(KindAudio)
	p.video = p.captureLocked(KindVideo)
	for _, c := range []*Capture{p.audio, p.video} {
		if c == nil {
			continue
		}
		if err := engine.AddTrack(c.Track()); err != nil {
			p.log.Error().Err(err).Msgf("%v track attach fail", c.Device.Kind)
		}
	}

	// shared once per inspection, the guard above absorbs re-delivery
	p.sig.Notify(api.DeviceListShare, api.DeviceListPayload{
		Addressed: api.Addressed{To: moderator}, Devices: p.capturer.Devices(),
	})
	p.sig.Notify(api.ParticipantMeta, api.ParticipantMetaPayload{
		Addressed: api.Addressed{To: moderator}, Name: p.name, ClientMeta: p.meta,
	})
	p.notifyStatus(api.StatusInspecting)
}

func (p *Participant) captureLocked(kind string) *Capture {
	type defaulter interface{ Default(kind string) *api.Device }
	var id string
	if d, ok := p.capturer.(defaulter); ok {
		if dev := d.Default(kind); dev != nil {
			id = dev.Id
		}
	} else {
		for _, dev := range p.capturer.Devices() {
			if dev.Kind == kind {
				id = dev.Id
				break
			}
		}
	}
	if id == "" {
		p.surface(&MediaError{Reason: MediaNoDevice, Err: errNoKind(kind)})
		return nil
	}
	c, err := p.capturer.Capture(id)
	if err != nil {
		if me := AsMediaError(err); me != nil {
			p.surface(me)
		} else {
			p.surface(&MediaError{Reason: MediaFailure, Err: err})
		}
		return nil
	}
	return c
}

func (p *Participant) handleOffer(rq api.OfferPayload) {
	p.mu.Lock()
	engine := p.engine
	p.mu.Unlock()
	if engine == nil {
		p.log.Warn().Msg("offer with no active pairing")
		return
	}
	answer, err := engine.HandleOffer(rq.Sdp)
	if err != nil {
		p.log.Error().Err(err).Msg("offer fail")
		return
	}
	p.sig.Notify(api.Answer, api.AnswerPayload{Addressed: api.Addressed{To: rq.From}, Sdp: answer})
}

func (p *Participant) handleCandidate(rq api.IceCandidatePayload) {
	p.mu.Lock()
	engine := p.engine
	p.mu.Unlock()
	if engine == nil {
		return
	}
	if err := engine.AddCandidate(rq.Candidate); err != nil {
		p.log.Error().Err(err).Msg("ICE candidate fail")
	}
}

// handleMuteRequest applies the requested mute to the outgoing audio
// and reports the resulting status back.
func (p *Participant) handleMuteRequest(rq api.MuteRequestPayload) {
	p.mu.Lock()
	muted := rq.Mute
	if p.audio != nil {
		p.audio.SetMuted(rq.Mute)
		muted = p.audio.Muted()
	}
	p.mu.Unlock()
	p.sig.Notify(api.MuteStatus, api.MuteStatusPayload{Addressed: api.Addressed{To: rq.From}, Muted: muted})
}

// handleSuggestion surfaces a moderator device suggestion; an accepted
// one re-captures and swaps the outgoing track of the affected kind
// only, without renegotiation.
func (p *Participant) handleSuggestion(rq api.DeviceSuggestionPayload) {
	var suggested *api.Device
	for _, dev := range p.capturer.Devices() {
		if dev.Id == rq.DeviceId {
			d := dev
			suggested = &d
			break
		}
	}
	if suggested == nil {
		p.log.Warn().Msgf("suggested unknown device %q", rq.DeviceId)
		return
	}
	if p.onSuggestion != nil && !p.onSuggestion(*suggested) {
		p.log.Info().Msgf("declined device %q", suggested.Label)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine == nil {
		return
	}
	capture, err := p.capturer.Capture(suggested.Id)
	if err != nil {
		if me := AsMediaError(err); me != nil {
			p.surface(me)
		}
		return
	}
	if err := p.engine.ReplaceTrack(capture.Track()); err != nil {
		p.log.Error().Err(err).Msg("track replace fail")
		capture.Stop()
		return
	}
	switch suggested.Kind {
	case KindAudio:
		if p.audio != nil {
			capture.SetMuted(p.audio.Muted())
			p.audio.Stop()
		}
		p.audio = capture
	case KindVideo:
		if p.video != nil {
			p.video.Stop()
		}
		p.video = capture
	}
}

func (p *Participant) finish(status api.Status) {
	p.mu.Lock()
	p.status = status
	p.moderator = ""
	engine, audio, video := p.engine, p.audio, p.video
	p.engine, p.audio, p.video = nil, nil, nil
	p.mu.Unlock()
	p.notifyStatus(status)
	// keep the pairing around briefly so the last frames and the
	// outcome can still reach the user
	time.AfterFunc(p.teardownDelay, func() { teardown(engine, audio, video) })
}

func (p *Participant) cancel() {
	p.mu.Lock()
	p.status = api.StatusWaiting
	p.moderator = ""
	p.teardownLocked()
	p.mu.Unlock()
	p.notifyStatus(api.StatusWaiting)
}

// Close tears the current pairing down immediately.
func (p *Participant) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardownLocked()
}

func (p *Participant) teardownLocked() {
	teardown(p.engine, p.audio, p.video)
	p.engine, p.audio, p.video = nil, nil, nil
}

// teardown synchronously stops the local captures and closes the
// pairing, in that order.
func teardown(engine Negotiator, audio, video *Capture) {
	if audio != nil {
		audio.Stop()
	}
	if video != nil {
		video.Stop()
	}
	if engine != nil {
		engine.Close()
	}
}

func (p *Participant) notifyStatus(status api.Status) {
	if p.onStatus != nil {
		p.onStatus(status)
	}
}

func (p *Participant) surface(err *MediaError) {
	p.log.Error().Err(err).Msgf("media acquisition fail (%v)", err.Reason)
	if p.onMediaError != nil {
		p.onMediaError(err)
	}
}

type errNoKind string

func (e errNoKind) Error() string { return "no capture device of kind " + string(e) }
