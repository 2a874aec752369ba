// Package session hosts the client-local side of an inspection: the
// lifecycle controllers of both roles and the local media sources they
// feed into the negotiation engine.
package session

import (
	"github.com/greenroomhq/greenroom/pkg/api"
	"github.com/greenroomhq/greenroom/pkg/webrtc"
	pion "github.com/pion/webrtc/v3"
)

// Signaler sends packets towards the coordinator. Satisfied by
// com.SocketClient; tests plug in recorders.
type Signaler interface {
	Notify(t api.PT, payload any)
}

// Negotiator is the per-pairing negotiation engine as the controllers
// see it. Satisfied by webrtc.Engine.
type Negotiator interface {
	AddTrack(track pion.TrackLocal) error
	CreateOffer() (string, error)
	HandleOffer(encoded string) (string, error)
	HandleAnswer(encoded string) error
	AddCandidate(encoded string) error
	ReplaceTrack(track pion.TrackLocal) error
	OnCandidate(fn func(candidate string))
	OnConnectionPhase(fn func(phase webrtc.ConnectionPhase))
	Close()
}

// EngineFactory builds a fresh Negotiator per pairing: a dead pairing
// is never reused, re-negotiation always starts from a new engine.
type EngineFactory func() (Negotiator, error)
