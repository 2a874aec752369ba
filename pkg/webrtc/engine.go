package webrtc

import (
	"errors"
	"sync"

	"github.com/greenroomhq/greenroom/pkg/logger"
	"github.com/pion/webrtc/v3"
)

// SignalingPhase tracks the offer/answer exchange of one pairing.
type SignalingPhase uint8

const (
	PhaseIdle SignalingPhase = iota
	PhaseHaveLocalOffer
	PhaseHaveRemoteOffer
	PhaseStable
)

func (p SignalingPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseHaveLocalOffer:
		return "have-local-offer"
	case PhaseHaveRemoteOffer:
		return "have-remote-offer"
	case PhaseStable:
		return "stable"
	}
	return "?"
}

// ConnectionPhase mirrors the transport state of the peer connection.
type ConnectionPhase uint8

const (
	ConnNew ConnectionPhase = iota
	ConnConnecting
	ConnConnected
	ConnDisconnected
	ConnFailed
	ConnClosed
)

func (p ConnectionPhase) String() string {
	switch p {
	case ConnNew:
		return "new"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnDisconnected:
		return "disconnected"
	case ConnFailed:
		return "failed"
	case ConnClosed:
		return "closed"
	}
	return "?"
}

// Dead tells whether the pairing is terminally lost and must be torn
// down before any re-negotiation.
func (p ConnectionPhase) Dead() bool {
	return p == ConnDisconnected || p == ConnFailed || p == ConnClosed
}

func phaseOf(s webrtc.PeerConnectionState) ConnectionPhase {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return ConnNew
	case webrtc.PeerConnectionStateConnecting:
		return ConnConnecting
	case webrtc.PeerConnectionStateConnected:
		return ConnConnected
	case webrtc.PeerConnectionStateDisconnected:
		return ConnDisconnected
	case webrtc.PeerConnectionStateFailed:
		return ConnFailed
	}
	return ConnClosed
}

var (
	ErrInvalidPhase = errors.New("invalid signaling phase")
	ErrClosed       = errors.New("engine is closed")
)

// Engine drives the SDP offer/answer and ICE exchange of exactly one
// pairing. Both peers run one independently. All mutating operations
// serialize on one mutex; without it concurrent offer handling would
// corrupt the signaling phase. There are no negotiation retries: a
// dead pairing is replaced with a fresh Engine.
type Engine struct {
	mu  sync.Mutex
	log *logger.Logger

	factory   *ApiFactory
	conn      *webrtc.PeerConnection
	phase     SignalingPhase
	connPhase ConnectionPhase

	// candidates arriving before the remote description, flushed in
	// arrival order once it lands
	pending   []webrtc.ICECandidateInit
	answering bool
	closed    bool

	// outgoing intent, replayed onto a replacement connection
	tracks   map[webrtc.RTPCodecType]webrtc.TrackLocal
	recvonly bool

	senders      map[webrtc.RTPCodecType]*webrtc.RTPSender
	remoteTracks map[webrtc.RTPCodecType]*webrtc.TrackRemote

	onCandidate   func(candidate string)
	onPhase       func(phase ConnectionPhase)
	onRemoteTrack func(track *webrtc.TrackRemote)
}

func NewEngine(f *ApiFactory, log *logger.Logger) (*Engine, error) {
	conn, err := f.NewPeer()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		log:          log,
		factory:      f,
		conn:         conn,
		tracks:       make(map[webrtc.RTPCodecType]webrtc.TrackLocal, 2),
		senders:      make(map[webrtc.RTPCodecType]*webrtc.RTPSender, 2),
		remoteTracks: make(map[webrtc.RTPCodecType]*webrtc.TrackRemote, 2),
	}
	e.wire(conn)
	return e, nil
}

// wire attaches the engine callbacks to conn. A connection replaced on
// glare keeps firing for a while; the conn identity check drops those
// late events.
func (e *Engine) wire(conn *webrtc.PeerConnection) {
	conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		encoded, err := Encode(c.ToJSON())
		if err != nil {
			e.log.Error().Err(err).Msg("ICE candidate encode fail")
			return
		}
		e.mu.Lock()
		stale := e.conn != conn || e.closed
		cb := e.onCandidate
		e.mu.Unlock()
		if stale || cb == nil {
			return
		}
		cb(encoded)
	})
	conn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		phase := phaseOf(state)
		e.mu.Lock()
		if e.conn != conn {
			e.mu.Unlock()
			return
		}
		e.connPhase = phase
		if phase.Dead() {
			// observers must see peer loss immediately
			e.remoteTracks = make(map[webrtc.RTPCodecType]*webrtc.TrackRemote, 2)
		}
		cb := e.onPhase
		e.mu.Unlock()
		e.log.Debug().Msgf("connection phase %v", phase)
		if cb != nil {
			cb(phase)
		}
	})
	conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.mu.Lock()
		if e.conn != conn {
			e.mu.Unlock()
			return
		}
		e.remoteTracks[track.Kind()] = track
		cb := e.onRemoteTrack
		e.mu.Unlock()
		e.log.Debug().Msgf("remote %v track %v", track.Kind(), track.ID())
		if cb != nil {
			cb(track)
		}
	})
}

// resetLocked replaces the peer connection with a fresh one carrying
// the same outgoing intent (tracks or receive-only declarations). The
// old connection is closed off the lock; its late callbacks are
// discarded by the identity checks in wire. Callers hold mu.
func (e *Engine) resetLocked() error {
	conn, err := e.factory.NewPeer()
	if err != nil {
		return err
	}
	e.wire(conn)
	senders := make(map[webrtc.RTPCodecType]*webrtc.RTPSender, len(e.tracks))
	for kind, track := range e.tracks {
		sender, err := conn.AddTrack(track)
		if err != nil {
			_ = conn.Close()
			return err
		}
		senders[kind] = sender
	}
	if e.recvonly {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := conn.AddTransceiverFromKind(kind,
				webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
				_ = conn.Close()
				return err
			}
		}
	}
	old := e.conn
	e.conn = conn
	e.senders = senders
	e.remoteTracks = make(map[webrtc.RTPCodecType]*webrtc.TrackRemote, 2)
	e.phase = PhaseIdle
	e.connPhase = ConnNew
	go func() { _ = old.Close() }()
	return nil
}

// OnCandidate sets the sink for locally gathered, already encoded
// ICE candidates.
func (e *Engine) OnCandidate(fn func(candidate string)) {
	e.mu.Lock()
	e.onCandidate = fn
	e.mu.Unlock()
}

// OnConnectionPhase subscribes to transport phase transitions.
func (e *Engine) OnConnectionPhase(fn func(phase ConnectionPhase)) {
	e.mu.Lock()
	e.onPhase = fn
	e.mu.Unlock()
}

func (e *Engine) OnRemoteTrack(fn func(track *webrtc.TrackRemote)) {
	e.mu.Lock()
	e.onRemoteTrack = fn
	e.mu.Unlock()
}

// AddTrack attaches an outgoing media track. Valid before the
// negotiation starts on this side.
func (e *Engine) AddTrack(track webrtc.TrackLocal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	sender, err := e.conn.AddTrack(track)
	if err != nil {
		return err
	}
	e.senders[track.Kind()] = sender
	e.tracks[track.Kind()] = track
	return nil
}

// CreateOffer produces and returns the encoded local description.
// Valid from idle only; a second offer while one is outstanding is an
// error for the caller to drop. Without any attached tracks the offer
// declares explicit receive-only intent for audio and video, which
// some remote ends require to produce a compatible answer.
func (e *Engine) CreateOffer() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", ErrClosed
	}
	if e.phase != PhaseIdle {
		e.log.Warn().Msgf("offer rejected in phase %v", e.phase)
		return "", ErrInvalidPhase
	}
	if len(e.senders) == 0 {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := e.conn.AddTransceiverFromKind(kind,
				webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
				return "", err
			}
		}
		e.recvonly = true
	}
	offer, err := e.conn.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err = e.conn.SetLocalDescription(offer); err != nil {
		return "", err
	}
	e.phase = PhaseHaveLocalOffer
	return Encode(offer)
}

// HandleOffer applies a remote offer and returns the encoded answer.
// Valid from idle, or from have-local-offer: on glare the incoming
// offer always wins and the local one is abandoned. A concurrent
// second offer is dropped.
func (e *Engine) HandleOffer(encoded string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", ErrClosed
	}
	if e.answering {
		e.log.Warn().Msg("concurrent offer dropped")
		return "", ErrInvalidPhase
	}
	if e.phase != PhaseIdle && e.phase != PhaseHaveLocalOffer {
		e.log.Warn().Msgf("offer ignored in phase %v", e.phase)
		return "", ErrInvalidPhase
	}
	e.answering = true
	defer func() { e.answering = false }()

	if e.phase == PhaseHaveLocalOffer {
		// the peer library refuses an explicit rollback description,
		// so the abandoned local offer is discarded together with its
		// whole connection and negotiation restarts on a fresh one
		if err := e.resetLocked(); err != nil {
			e.log.Error().Err(err).Msg("glare reset fail")
			return "", err
		}
	}
	var offer webrtc.SessionDescription
	if err := Decode(encoded, &offer); err != nil {
		return "", err
	}
	if err := e.conn.SetRemoteDescription(offer); err != nil {
		return "", err
	}
	e.phase = PhaseHaveRemoteOffer
	e.flushCandidates()

	answer, err := e.conn.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err = e.conn.SetLocalDescription(answer); err != nil {
		return "", err
	}
	e.phase = PhaseStable
	return Encode(answer)
}

// HandleAnswer applies a remote answer. Valid only while a local offer
// is outstanding; anything else is a recoverable invalid-state call.
func (e *Engine) HandleAnswer(encoded string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.phase != PhaseHaveLocalOffer {
		e.log.Warn().Msgf("answer ignored in phase %v", e.phase)
		return ErrInvalidPhase
	}
	var answer webrtc.SessionDescription
	if err := Decode(encoded, &answer); err != nil {
		return err
	}
	if err := e.conn.SetRemoteDescription(answer); err != nil {
		return err
	}
	e.phase = PhaseStable
	e.flushCandidates()
	return nil
}

// AddCandidate applies a remote ICE candidate, or buffers it until the
// remote description lands. Buffered candidates are never discarded.
func (e *Engine) AddCandidate(encoded string) error {
	var candidate webrtc.ICECandidateInit
	if err := Decode(encoded, &candidate); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.conn.RemoteDescription() == nil {
		e.pending = append(e.pending, candidate)
		return nil
	}
	return e.conn.AddICECandidate(candidate)
}

// flushCandidates applies the buffer in arrival order. Callers hold mu.
func (e *Engine) flushCandidates() {
	for _, c := range e.pending {
		if err := e.conn.AddICECandidate(c); err != nil {
			e.log.Error().Err(err).Msg("buffered ICE candidate fail")
		}
	}
	e.pending = nil
}

// ReplaceTrack swaps the source of the active outgoing channel of the
// given kind without renegotiation.
func (e *Engine) ReplaceTrack(track webrtc.TrackLocal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	sender, ok := e.senders[track.Kind()]
	if !ok {
		e.log.Warn().Msgf("no outgoing %v channel to replace", track.Kind())
		return nil
	}
	if err := sender.ReplaceTrack(track); err != nil {
		return err
	}
	e.tracks[track.Kind()] = track
	return nil
}

func (e *Engine) SignalingPhase() SignalingPhase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) ConnectionPhase() ConnectionPhase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connPhase
}

// RemoteTrack exposes the current inbound track of a kind, nil after
// peer loss.
func (e *Engine) RemoteTrack(kind webrtc.RTPCodecType) *webrtc.TrackRemote {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remoteTracks[kind]
}

// PendingCandidates reports the ICE buffer size.
func (e *Engine) PendingCandidates() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Close tears the pairing down. Idempotent; late answers and
// candidates against a closed engine are rejected with ErrClosed
// instead of touching a dead connection.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.pending = nil
	conn := e.conn
	e.mu.Unlock()
	if err := conn.Close(); err != nil {
		e.log.Error().Err(err).Msg("peer connection close fail")
	}
}
