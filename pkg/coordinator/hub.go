package coordinator

import (
	"github.com/greenroomhq/greenroom/pkg/api"
	"github.com/greenroomhq/greenroom/pkg/com"
	"github.com/greenroomhq/greenroom/pkg/logger"
)

// Endpoint is one addressable duplex channel of a connected client.
type Endpoint interface {
	Id() com.Uid
	Notify(t api.PT, payload any)
}

// Hub owns the registry and the set of moderator observers, and relays
// negotiation payloads between endpoints. All inbound events funnel
// through one dispatch goroutine, so registry updates are linearizable
// without locking.
type Hub struct {
	log      *logger.Logger
	registry *Registry

	// all connected endpoints by transport address
	endpoints com.Map[com.Uid, Endpoint]
	// fan-out targets for registry snapshots
	moderators com.Map[com.Uid, Endpoint]

	ops  chan func()
	done chan struct{}
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:        log,
		registry:   NewRegistry(log),
		endpoints:  com.NewMap[com.Uid, Endpoint](),
		moderators: com.NewMap[com.Uid, Endpoint](),
		ops:        make(chan func(), 128),
		done:       make(chan struct{}),
	}
}

// Run drains the event queue until Stop. Blocking.
func (h *Hub) Run() {
	for {
		select {
		case op := <-h.ops:
			op()
		case <-h.done:
			return
		}
	}
}

func (h *Hub) Stop() { close(h.done) }

// post schedules fn onto the dispatch goroutine.
func (h *Hub) post(fn func()) {
	select {
	case h.ops <- fn:
	case <-h.done:
	}
}

// Connect attaches an endpoint of either role.
func (h *Hub) Connect(ep Endpoint) {
	h.post(func() { h.endpoints.Put(ep.Id(), ep) })
}

// Disconnect purges whatever the endpoint was: the participant record
// bound to this transport (any status) or a moderator observer, and
// tells the moderators.
func (h *Hub) Disconnect(ep Endpoint) {
	h.post(func() { h.disconnect(ep) })
}

// HandlePacket routes one inbound packet on the dispatch goroutine.
func (h *Hub) HandlePacket(ep Endpoint, in api.In) {
	h.post(func() { h.dispatch(ep, in) })
}

func (h *Hub) dispatch(ep Endpoint, in api.In) {
	if in.T.IsRelay() {
		h.relay(ep, in)
		return
	}
	switch in.T {
	case api.Join:
		if rq := api.Unwrap[api.JoinRequest](in.Payload); rq != nil && rq.Identity != "" {
			h.handleJoin(ep, *rq)
		} else {
			h.log.Error().Msgf("malformed join from %v", ep.Id().Short())
		}
	case api.ModeratorConnect:
		h.handleModeratorConnect(ep)
	case api.InspectionStart:
		if rq := api.Unwrap[api.InspectionStartRequest](in.Payload); rq != nil {
			h.handleInspectionStart(ep, rq.Identity)
		}
	case api.Admit:
		if rq := api.Unwrap[api.AdmitRequest](in.Payload); rq != nil {
			h.handleFinish(ep, rq.Identity, api.StatusAdmitted, api.Admitted)
		}
	case api.Remove:
		if rq := api.Unwrap[api.RemoveRequest](in.Payload); rq != nil {
			h.handleFinish(ep, rq.Identity, api.StatusRemoved, api.Removed)
		}
	case api.CancelInspection:
		if rq := api.Unwrap[api.CancelInspectionRequest](in.Payload); rq != nil {
			h.handleCancel(rq.Identity)
		}
	default:
		h.log.Warn().Msgf("unknown packet type %v from %v", uint8(in.T), ep.Id().Short())
	}
}

func (h *Hub) handleJoin(ep Endpoint, rq api.JoinRequest) {
	p := h.registry.Register(rq, ep.Id())
	h.log.Info().Msgf("join %v (%v)", p.Identity, p.Addr.Short())
	h.broadcastSnapshot()
}

func (h *Hub) handleModeratorConnect(ep Endpoint) {
	// idempotent, never touches participant records
	h.moderators.Put(ep.Id(), ep)
	h.log.Info().Msgf("moderator %v", ep.Id().Short())
	metrics.Moderators.Set(float64(h.moderators.Len()))
	ep.Notify(api.RegistrySnapshot, api.RegistrySnapshotNotice{Participants: h.registry.Snapshot()})
}

func (h *Hub) handleInspectionStart(mod Endpoint, identity string) {
	if !h.isModerator(mod) {
		h.log.Warn().Msgf("inspection-start from a non-moderator %v", mod.Id().Short())
		return
	}
	p, err := h.registry.StartInspection(identity, mod.Id())
	if err != nil {
		// absent or taken identities are a recoverable race, not an error
		h.log.Debug().Err(err).Msgf("no inspection of %q", identity)
		return
	}
	// mutual addressing: each side learns where to send negotiation
	// messages without any media passing through the coordinator
	h.notifyAddr(p.Addr, api.InspectionStarted, api.InspectionStartedNotice{Moderator: mod.Id().String()})
	mod.Notify(api.InspectionReady, api.InspectionReadyNotice{Participant: p.Addr.String()})
	h.broadcastSnapshot()
}

func (h *Hub) handleFinish(mod Endpoint, identity string, status api.Status, event api.PT) {
	if !h.isModerator(mod) {
		h.log.Warn().Msgf("%v from a non-moderator %v", event, mod.Id().Short())
		return
	}
	p, err := h.registry.Finish(identity, status)
	if err != nil {
		h.log.Debug().Err(err).Msgf("no %v of %q", event, identity)
		return
	}
	h.log.Info().Msgf("%v %v", status, p.Identity)
	h.notifyAddr(p.Addr, event, nil)
	next := api.NextWaitingNotice{}
	if n := h.registry.NextWaiting(); n != nil {
		next.Identity = n.Identity
	}
	mod.Notify(api.NextWaiting, next)
	h.broadcastSnapshot()
}

func (h *Hub) handleCancel(identity string) {
	p, err := h.registry.CancelInspection(identity)
	if err != nil {
		h.log.Debug().Err(err).Msgf("no cancel of %q", identity)
		return
	}
	h.notifyAddr(p.Addr, api.Cancelled, nil)
	h.broadcastSnapshot()
}

func (h *Hub) disconnect(ep Endpoint) {
	h.endpoints.RemoveByKey(ep.Id())
	if h.moderators.Has(ep.Id()) {
		h.moderators.RemoveByKey(ep.Id())
		metrics.Moderators.Set(float64(h.moderators.Len()))
		// a dropped moderator frees its inspected participant
		if p := h.registry.FindByInspector(ep.Id()); p != nil {
			h.handleCancel(p.Identity)
		}
		return
	}
	if p := h.registry.RemoveByTransport(ep.Id()); p != nil {
		h.log.Info().Msgf("purge %v (%v, was %v)", p.Identity, p.Addr.Short(), p.Status)
		h.broadcastSnapshot()
	}
}

func (h *Hub) isModerator(ep Endpoint) bool { return h.moderators.Has(ep.Id()) }

func (h *Hub) notifyAddr(addr com.Uid, t api.PT, payload any) {
	if ep, err := h.endpoints.Find(addr); err == nil {
		ep.Notify(t, payload)
		return
	}
	metrics.DroppedRelays.Inc()
	h.log.Debug().Msgf("drop %v for a gone %v", t, addr.Short())
}

func (h *Hub) broadcastSnapshot() {
	metrics.Waiting.Set(float64(h.registry.Count(api.StatusWaiting)))
	metrics.Inspecting.Set(float64(h.registry.Count(api.StatusInspecting)))
	if h.moderators.IsEmpty() {
		return
	}
	snap := api.RegistrySnapshotNotice{Participants: h.registry.Snapshot()}
	h.moderators.ForEach(func(m Endpoint) { m.Notify(api.RegistrySnapshot, snap) })
}
