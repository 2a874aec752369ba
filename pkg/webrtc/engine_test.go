package webrtc

import (
	"testing"
	"time"

	"github.com/greenroomhq/greenroom/pkg/config"
	"github.com/greenroomhq/greenroom/pkg/logger"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	f, err := NewApiFactory(config.Webrtc{}, logger.Default(), nil)
	if err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(f, logger.Default())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Close)
	return e
}

func waitPhase(t *testing.T, e *Engine, want ConnectionPhase) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if e.ConnectionPhase() == want {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("connection phase %v, want %v", e.ConnectionPhase(), want)
}

func TestEngineNegotiation(t *testing.T) {
	offerer := testEngine(t)
	answerer := testEngine(t)
	offerer.OnCandidate(func(candidate string) {
		if err := answerer.AddCandidate(candidate); err != nil {
			t.Errorf("candidate apply: %v", err)
		}
	})
	answerer.OnCandidate(func(candidate string) {
		if err := offerer.AddCandidate(candidate); err != nil {
			t.Errorf("candidate apply: %v", err)
		}
	})

	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	if got := offerer.SignalingPhase(); got != PhaseHaveLocalOffer {
		t.Fatalf("phase = %v, want have-local-offer", got)
	}

	answer, err := answerer.HandleOffer(offer)
	if err != nil {
		t.Fatal(err)
	}
	if got := answerer.SignalingPhase(); got != PhaseStable {
		t.Fatalf("phase = %v, want stable", got)
	}
	if err := offerer.HandleAnswer(answer); err != nil {
		t.Fatal(err)
	}
	if got := offerer.SignalingPhase(); got != PhaseStable {
		t.Fatalf("phase = %v, want stable", got)
	}

	waitPhase(t, offerer, ConnConnected)
	waitPhase(t, answerer, ConnConnected)
}

func TestEngineSecondOfferRejected(t *testing.T) {
	e := testEngine(t)
	if _, err := e.CreateOffer(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateOffer(); err != ErrInvalidPhase {
		t.Fatalf("err = %v, want ErrInvalidPhase", err)
	}
}

func TestEngineAnswerWithoutOffer(t *testing.T) {
	e := testEngine(t)
	other := testEngine(t)
	offer, err := other.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	answer, err := e.HandleOffer(offer)
	if err != nil {
		t.Fatal(err)
	}
	// never offered, so the answer has nowhere to land
	if err := e.HandleAnswer(answer); err != ErrInvalidPhase {
		t.Fatalf("err = %v, want ErrInvalidPhase", err)
	}
}

func TestEngineGlare(t *testing.T) {
	a := testEngine(t)
	b := testEngine(t)
	// candidates of the abandoned side are harmless noise for b, so
	// delivery errors are not asserted here
	a.OnCandidate(func(candidate string) { _ = b.AddCandidate(candidate) })
	b.OnCandidate(func(candidate string) { _ = a.AddCandidate(candidate) })

	if _, err := a.CreateOffer(); err != nil {
		t.Fatal(err)
	}
	offerB, err := b.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	// both sides offered; the incoming offer wins on this side
	answer, err := a.HandleOffer(offerB)
	if err != nil {
		t.Fatal(err)
	}
	if got := a.SignalingPhase(); got != PhaseStable {
		t.Fatalf("phase = %v, want stable after glare", got)
	}
	if err := b.HandleAnswer(answer); err != nil {
		t.Fatal(err)
	}
	if got := b.SignalingPhase(); got != PhaseStable {
		t.Fatalf("phase = %v, want stable", got)
	}

	// the restarted pairing still has to come up
	waitPhase(t, a, ConnConnected)
	waitPhase(t, b, ConnConnected)
}

func TestEngineGlareKeepsOutgoingTrack(t *testing.T) {
	a := testEngine(t)
	b := testEngine(t)
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "glare-mic")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.AddTrack(track); err != nil {
		t.Fatal(err)
	}

	if _, err := a.CreateOffer(); err != nil {
		t.Fatal(err)
	}
	offerB, err := b.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.HandleOffer(offerB); err != nil {
		t.Fatal(err)
	}

	a.mu.Lock()
	_, ok := a.senders[webrtc.RTPCodecTypeAudio]
	a.mu.Unlock()
	if !ok {
		t.Fatal("outgoing audio channel lost across glare")
	}
	swap, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "glare-mic-2")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.ReplaceTrack(swap); err != nil {
		t.Fatal(err)
	}
}

func TestEngineRemoteTrackClearedOnPeerLoss(t *testing.T) {
	offerer := testEngine(t)
	answerer := testEngine(t)
	offerer.OnCandidate(func(candidate string) {
		if err := answerer.AddCandidate(candidate); err != nil {
			t.Errorf("candidate apply: %v", err)
		}
	})
	answerer.OnCandidate(func(candidate string) {
		if err := offerer.AddCandidate(candidate); err != nil {
			t.Errorf("candidate apply: %v", err)
		}
	})

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "feed")
	if err != nil {
		t.Fatal(err)
	}
	if err := offerer.AddTrack(track); err != nil {
		t.Fatal(err)
	}

	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	answer, err := answerer.HandleOffer(offer)
	if err != nil {
		t.Fatal(err)
	}
	if err := offerer.HandleAnswer(answer); err != nil {
		t.Fatal(err)
	}
	waitPhase(t, answerer, ConnConnected)

	// the remote track surfaces only once media actually flows
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(20 * time.Millisecond):
				_ = track.WriteSample(media.Sample{Data: []byte{0xf8, 0xff, 0xfe}, Duration: 20 * time.Millisecond})
			}
		}
	}()
	deadline := time.Now().Add(10 * time.Second)
	for answerer.RemoteTrack(webrtc.RTPCodecTypeAudio) == nil {
		if time.Now().After(deadline) {
			t.Fatal("no remote track surfaced")
		}
		time.Sleep(50 * time.Millisecond)
	}

	cleared := make(chan bool, 1)
	answerer.OnConnectionPhase(func(phase ConnectionPhase) {
		if !phase.Dead() {
			return
		}
		select {
		case cleared <- answerer.RemoteTrack(webrtc.RTPCodecTypeAudio) == nil:
		default:
		}
	})
	answerer.Close()

	select {
	case wasCleared := <-cleared:
		if !wasCleared {
			t.Fatal("remote track still exposed after peer loss")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no dead phase observed")
	}
}

func TestEngineCandidateBuffering(t *testing.T) {
	offerer := testEngine(t)
	answerer := testEngine(t)

	early, err := Encode(webrtc.ICECandidateInit{
		Candidate: "candidate:1 1 udp 2130706433 127.0.0.1 54321 typ host",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := answerer.AddCandidate(early); err != nil {
		t.Fatal(err)
	}
	if err := answerer.AddCandidate(early); err != nil {
		t.Fatal(err)
	}
	if got := answerer.PendingCandidates(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}

	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := answerer.HandleOffer(offer); err != nil {
		t.Fatal(err)
	}
	if got := answerer.PendingCandidates(); got != 0 {
		t.Fatalf("pending = %d, want 0 after flush", got)
	}
}

func TestEngineClosedRejectsEverything(t *testing.T) {
	e := testEngine(t)
	e.Close()
	e.Close() // idempotent

	if _, err := e.CreateOffer(); err != ErrClosed {
		t.Fatalf("offer err = %v, want ErrClosed", err)
	}
	if _, err := e.HandleOffer("x"); err != ErrClosed {
		t.Fatalf("handle-offer err = %v, want ErrClosed", err)
	}
	if err := e.HandleAnswer("x"); err != ErrClosed {
		t.Fatalf("answer err = %v, want ErrClosed", err)
	}
	candidate, err := Encode(webrtc.ICECandidateInit{Candidate: "candidate:x"})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.AddCandidate(candidate); err != ErrClosed {
		t.Fatalf("candidate err = %v, want ErrClosed", err)
	}
}
