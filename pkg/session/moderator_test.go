package session

import (
	"testing"

	"github.com/greenroomhq/greenroom/pkg/api"
	"github.com/greenroomhq/greenroom/pkg/logger"
)

type moderatorFixture struct {
	m       *Moderator
	sig     *fakeSignaler
	engines []*fakeNegotiator
}

func newModeratorFixture(t *testing.T, opts ModeratorOpts) *moderatorFixture {
	t.Helper()
	fx := &moderatorFixture{sig: &fakeSignaler{}}
	engines := func() (Negotiator, error) {
		e := &fakeNegotiator{}
		fx.engines = append(fx.engines, e)
		return e, nil
	}
	fx.m = NewModerator(opts, fx.sig, engines, logger.Default())
	t.Cleanup(fx.m.Close)
	return fx
}

func (fx *moderatorFixture) engine(t *testing.T) *fakeNegotiator {
	t.Helper()
	if len(fx.engines) == 0 {
		t.Fatal("no engine created")
	}
	return fx.engines[len(fx.engines)-1]
}

func (fx *moderatorFixture) startInspection(t *testing.T, identity, addr string) {
	t.Helper()
	fx.m.Inspect(identity)
	fx.m.HandlePacket(pkt(t, api.InspectionReady, api.InspectionReadyNotice{Participant: addr}))
}

func TestModeratorConnect(t *testing.T) {
	fx := newModeratorFixture(t, ModeratorOpts{})
	fx.m.Connect()
	if fx.sig.lastOf(api.ModeratorConnect) == nil {
		t.Fatal("no connect sent")
	}
}

func TestModeratorSnapshot(t *testing.T) {
	var seen []api.ParticipantInfo
	fx := newModeratorFixture(t, ModeratorOpts{
		OnSnapshot: func(p []api.ParticipantInfo) { seen = p },
	})

	fx.m.HandlePacket(pkt(t, api.RegistrySnapshot, api.RegistrySnapshotNotice{
		Participants: []api.ParticipantInfo{{Identity: "alice", Status: api.StatusWaiting}},
	}))

	if len(seen) != 1 || seen[0].Identity != "alice" {
		t.Fatalf("callback snapshot = %v", seen)
	}
	if got := fx.m.Snapshot(); len(got) != 1 || got[0].Identity != "alice" {
		t.Fatalf("stored snapshot = %v", got)
	}
}

func TestModeratorInspectionOffer(t *testing.T) {
	var ready string
	fx := newModeratorFixture(t, ModeratorOpts{
		OnReady: func(identity string) { ready = identity },
	})
	fx.startInspection(t, "alice", "alice-addr")

	start := fx.sig.lastOf(api.InspectionStart)
	if start == nil {
		t.Fatal("no inspection start sent")
	}
	if rq := start.p.(api.InspectionStartRequest); rq.Identity != "alice" {
		t.Fatalf("start = %+v", rq)
	}
	offer := fx.sig.lastOf(api.Offer)
	if offer == nil {
		t.Fatal("no offer sent")
	}
	if o := offer.p.(api.OfferPayload); o.To != "alice-addr" || o.Sdp != "offer-blob" {
		t.Fatalf("offer = %+v", o)
	}
	if ready != "alice" {
		t.Fatalf("ready = %q, want alice", ready)
	}

	// local candidates go to the participant address
	fx.engine(t).onCand("local-c")
	cand := fx.sig.lastOf(api.IceCandidate)
	if cand == nil {
		t.Fatal("local candidate not sent")
	}
	if c := cand.p.(api.IceCandidatePayload); c.To != "alice-addr" {
		t.Fatalf("candidate = %+v", c)
	}
}

func TestModeratorAppliesAnswerAndCandidates(t *testing.T) {
	fx := newModeratorFixture(t, ModeratorOpts{})
	fx.startInspection(t, "alice", "alice-addr")

	fx.m.HandlePacket(pkt(t, api.Answer, api.AnswerPayload{
		Addressed: api.Addressed{From: "alice-addr"}, Sdp: "answer-sdp",
	}))
	fx.m.HandlePacket(pkt(t, api.IceCandidate, api.IceCandidatePayload{Candidate: "remote-c"}))

	e := fx.engine(t)
	if len(e.answers) != 1 || e.answers[0] != "answer-sdp" {
		t.Fatalf("answers = %v", e.answers)
	}
	if len(e.candidates) != 1 || e.candidates[0] != "remote-c" {
		t.Fatalf("candidates = %v", e.candidates)
	}
}

func TestModeratorCachesDevicesAndMute(t *testing.T) {
	var mutes []bool
	fx := newModeratorFixture(t, ModeratorOpts{
		OnMute: func(muted bool) { mutes = append(mutes, muted) },
	})
	fx.startInspection(t, "alice", "alice-addr")

	fx.m.HandlePacket(pkt(t, api.DeviceListShare, api.DeviceListPayload{
		Devices: []api.Device{{Id: "mic-0", Kind: KindAudio, Label: "Mic"}},
	}))
	if got := fx.m.Devices("alice"); len(got) != 1 || got[0].Id != "mic-0" {
		t.Fatalf("devices = %v", got)
	}

	fx.m.HandlePacket(pkt(t, api.ParticipantMeta, api.ParticipantMetaPayload{Name: "Alice"}))
	if meta, ok := fx.m.Meta("alice"); !ok || meta.Name != "Alice" {
		t.Fatalf("meta = %+v, %v", meta, ok)
	}

	fx.m.HandlePacket(pkt(t, api.MuteStatus, api.MuteStatusPayload{Muted: true}))
	if !fx.m.Muted() {
		t.Fatal("mute status not stored")
	}
	if len(mutes) != 1 || !mutes[0] {
		t.Fatalf("mute callbacks = %v", mutes)
	}
}

func TestModeratorLateShareAfterCancelDropped(t *testing.T) {
	var shares int
	fx := newModeratorFixture(t, ModeratorOpts{
		OnDevices: func(string, []api.Device) { shares++ },
	})
	fx.startInspection(t, "alice", "alice-addr")
	fx.m.Cancel()

	// relayed packets can still arrive after the teardown cleared the
	// inspection; they belong to nobody and must not be cached
	fx.m.HandlePacket(pkt(t, api.DeviceListShare, api.DeviceListPayload{
		Devices: []api.Device{{Id: "mic-0", Kind: KindAudio, Label: "Mic"}},
	}))
	fx.m.HandlePacket(pkt(t, api.ParticipantMeta, api.ParticipantMetaPayload{Name: "Alice"}))

	if got := fx.m.Devices(""); got != nil {
		t.Fatalf("devices cached under empty identity: %v", got)
	}
	if got := fx.m.Devices("alice"); got != nil {
		t.Fatalf("devices cached after cancel: %v", got)
	}
	if _, ok := fx.m.Meta(""); ok {
		t.Fatal("meta cached under empty identity")
	}
	if shares != 0 {
		t.Fatalf("device callbacks = %d, want none", shares)
	}
}

func TestModeratorAdmitAndAdvance(t *testing.T) {
	fx := newModeratorFixture(t, ModeratorOpts{AutoAdvance: true})
	fx.startInspection(t, "alice", "alice-addr")
	first := fx.engine(t)

	fx.m.Admit()
	admit := fx.sig.lastOf(api.Admit)
	if admit == nil {
		t.Fatal("no admit sent")
	}
	if rq := admit.p.(api.Identified); rq.Identity != "alice" {
		t.Fatalf("admit = %+v", rq)
	}

	fx.m.HandlePacket(pkt(t, api.NextWaiting, api.NextWaitingNotice{Identity: "bob"}))
	if !first.isClosed() {
		t.Fatal("finished pairing kept alive")
	}
	start := fx.sig.lastOf(api.InspectionStart)
	if rq := start.p.(api.InspectionStartRequest); rq.Identity != "bob" {
		t.Fatalf("advance = %+v, want bob", rq)
	}
}

func TestModeratorIdleOnDrainedQueue(t *testing.T) {
	idle := false
	fx := newModeratorFixture(t, ModeratorOpts{
		AutoAdvance: true,
		OnIdle:      func() { idle = true },
	})
	fx.startInspection(t, "alice", "alice-addr")

	fx.m.Remove()
	if fx.sig.lastOf(api.Remove) == nil {
		t.Fatal("no remove sent")
	}
	fx.m.HandlePacket(pkt(t, api.NextWaiting, api.NextWaitingNotice{}))

	if !idle {
		t.Fatal("no idle callback on a drained queue")
	}
	if got := fx.m.Inspecting(); got != "" {
		t.Fatalf("inspecting = %q, want idle", got)
	}
}

func TestModeratorFinishWithoutInspection(t *testing.T) {
	fx := newModeratorFixture(t, ModeratorOpts{})
	fx.m.Admit()
	if fx.sig.lastOf(api.Admit) != nil {
		t.Fatal("admit sent with no inspection")
	}
}

func TestModeratorCancel(t *testing.T) {
	fx := newModeratorFixture(t, ModeratorOpts{})
	fx.startInspection(t, "alice", "alice-addr")
	e := fx.engine(t)

	fx.m.Cancel()

	cancel := fx.sig.lastOf(api.CancelInspection)
	if cancel == nil {
		t.Fatal("no cancel sent")
	}
	if rq := cancel.p.(api.CancelInspectionRequest); rq.Identity != "alice" {
		t.Fatalf("cancel = %+v", rq)
	}
	if !e.isClosed() {
		t.Fatal("pairing kept alive after cancel")
	}
	if got := fx.m.Inspecting(); got != "" {
		t.Fatalf("inspecting = %q, want idle", got)
	}
}

func TestModeratorMuteRequest(t *testing.T) {
	fx := newModeratorFixture(t, ModeratorOpts{})
	fx.m.RequestMute(true) // no active pairing, nothing sent
	if fx.sig.lastOf(api.MuteRequest) != nil {
		t.Fatal("mute request sent with no pairing")
	}

	fx.startInspection(t, "alice", "alice-addr")
	fx.m.RequestMute(true)
	got := fx.sig.lastOf(api.MuteRequest)
	if got == nil {
		t.Fatal("no mute request sent")
	}
	if rq := got.p.(api.MuteRequestPayload); rq.To != "alice-addr" || !rq.Mute {
		t.Fatalf("request = %+v", rq)
	}
}

func TestModeratorSuggestDevice(t *testing.T) {
	fx := newModeratorFixture(t, ModeratorOpts{})
	fx.m.SuggestDevice("alice", "mic-1", "Headset")

	got := fx.sig.lastOf(api.DeviceSuggestion)
	if got == nil {
		t.Fatal("no suggestion sent")
	}
	rq := got.p.(api.DeviceSuggestionPayload)
	if rq.Identity != "alice" || rq.DeviceId != "mic-1" || rq.Label != "Headset" {
		t.Fatalf("suggestion = %+v", rq)
	}
}
