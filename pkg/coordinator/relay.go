package coordinator

import (
	"github.com/greenroomhq/greenroom/pkg/api"
	"github.com/greenroomhq/greenroom/pkg/com"
)

// relay forwards an addressed payload verbatim to the target transport,
// stamped with the sender address. No buffering and no acknowledgement:
// when the target is gone the message is dropped (at-most-once), and
// ordering holds only as far as the underlying channel guarantees it.
func (h *Hub) relay(from Endpoint, in api.In) {
	sender := from.Id().String()
	switch in.T {
	case api.Offer:
		if p := api.Unwrap[api.OfferPayload](in.Payload); p != nil {
			h.forward(in.T, p.To, sender, api.OfferPayload{Addressed: stamp(sender), Sdp: p.Sdp})
			return
		}
	case api.Answer:
		if p := api.Unwrap[api.AnswerPayload](in.Payload); p != nil {
			h.forward(in.T, p.To, sender, api.AnswerPayload{Addressed: stamp(sender), Sdp: p.Sdp})
			return
		}
	case api.IceCandidate:
		if p := api.Unwrap[api.IceCandidatePayload](in.Payload); p != nil {
			h.forward(in.T, p.To, sender, api.IceCandidatePayload{Addressed: stamp(sender), Candidate: p.Candidate})
			return
		}
	case api.DeviceListShare:
		if p := api.Unwrap[api.DeviceListPayload](in.Payload); p != nil {
			h.forward(in.T, p.To, sender, api.DeviceListPayload{Addressed: stamp(sender), Devices: p.Devices})
			return
		}
	case api.DeviceSuggestion:
		// addressed by identity, resolved to the transport here
		if p := api.Unwrap[api.DeviceSuggestionPayload](in.Payload); p != nil {
			target := h.registry.Lookup(p.Identity)
			if target == nil {
				metrics.DroppedRelays.Inc()
				h.log.Debug().Msgf("drop %v for an absent %q", in.T, p.Identity)
				return
			}
			out := *p
			out.From = sender
			h.forward(in.T, target.Addr.String(), sender, out)
			return
		}
	case api.MuteStatus:
		if p := api.Unwrap[api.MuteStatusPayload](in.Payload); p != nil {
			h.forward(in.T, p.To, sender, api.MuteStatusPayload{Addressed: stamp(sender), Muted: p.Muted})
			return
		}
	case api.MuteRequest:
		if p := api.Unwrap[api.MuteRequestPayload](in.Payload); p != nil {
			h.forward(in.T, p.To, sender, api.MuteRequestPayload{Addressed: stamp(sender), Mute: p.Mute})
			return
		}
	case api.ParticipantMeta:
		if p := api.Unwrap[api.ParticipantMetaPayload](in.Payload); p != nil {
			h.forward(in.T, p.To, sender, api.ParticipantMetaPayload{Addressed: stamp(sender), Name: p.Name, ClientMeta: p.ClientMeta})
			return
		}
	}
	h.log.Error().Msgf("malformed %v relay from %v", in.T, from.Id().Short())
}

func stamp(sender string) api.Addressed { return api.Addressed{From: sender} }

func (h *Hub) forward(t api.PT, to string, sender string, payload any) {
	addr := com.UidFrom(to)
	if addr.IsEmpty() {
		metrics.DroppedRelays.Inc()
		h.log.Debug().Msgf("drop unaddressed %v from %v", t, sender)
		return
	}
	if ep, err := h.endpoints.Find(addr); err == nil {
		metrics.RelayedPackets.Inc()
		ep.Notify(t, payload)
		return
	}
	metrics.DroppedRelays.Inc()
	h.log.Debug().Msgf("drop %v for a gone %v", t, addr.Short())
}
