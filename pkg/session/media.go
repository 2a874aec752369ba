package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/greenroomhq/greenroom/pkg/api"
	pion "github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// MediaErrorReason classifies local capture failures so consumers can
// distinguish a denied permission from a missing device.
type MediaErrorReason uint8

const (
	MediaFailure MediaErrorReason = iota
	MediaPermissionDenied
	MediaNoDevice
)

func (r MediaErrorReason) String() string {
	switch r {
	case MediaPermissionDenied:
		return "permission-denied"
	case MediaNoDevice:
		return "no-device"
	}
	return "failure"
}

type MediaError struct {
	Reason MediaErrorReason
	Err    error
}

func (e *MediaError) Error() string { return fmt.Sprintf("media %s: %v", e.Reason, e.Err) }
func (e *MediaError) Unwrap() error { return e.Err }

// AsMediaError extracts the typed capture failure, when there is one.
func AsMediaError(err error) *MediaError {
	var me *MediaError
	if errors.As(err, &me) {
		return me
	}
	return nil
}

const (
	KindAudio = "audio"
	KindVideo = "video"
)

// Capturer enumerates local devices and opens live captures on them.
type Capturer interface {
	Devices() []api.Device
	Capture(deviceId string) (*Capture, error)
}

// Capture is one running local media feed bound to an outgoing track.
type Capture struct {
	Device api.Device

	track *pion.TrackLocalStaticSample

	mu    sync.Mutex
	muted bool
	done  chan struct{}
	once  sync.Once
}

func (c *Capture) Track() pion.TrackLocal { return c.track }

// SetMuted pauses/resumes the outgoing samples without touching the
// negotiated channel.
func (c *Capture) SetMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
}

func (c *Capture) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Stop synchronously ends the feed. Idempotent.
func (c *Capture) Stop() { c.once.Do(func() { close(c.done) }) }

// opus silence frame
var silence = []byte{0xf8, 0xff, 0xfe}

// solid-color keyframe stand-in
var blankFrame = make([]byte, 640)

// SyntheticCapturer produces silent audio and blank video feeds. It
// stands in for real device capture on headless agents and in tests.
type SyntheticCapturer struct {
	devices []api.Device
	// denied marks device ids failing with permission-denied
	denied map[string]struct{}
}

func NewSyntheticCapturer(devices ...api.Device) *SyntheticCapturer {
	if len(devices) == 0 {
		devices = []api.Device{
			{Id: "mic-0", Kind: KindAudio, Label: "Synthetic Microphone"},
			{Id: "cam-0", Kind: KindVideo, Label: "Synthetic Camera"},
		}
	}
	return &SyntheticCapturer{devices: devices, denied: map[string]struct{}{}}
}

// Deny makes subsequent captures of the device fail with
// permission-denied.
func (s *SyntheticCapturer) Deny(deviceId string) { s.denied[deviceId] = struct{}{} }

func (s *SyntheticCapturer) Devices() []api.Device { return s.devices }

// Default returns the first device of a kind, or nil.
func (s *SyntheticCapturer) Default(kind string) *api.Device {
	for i := range s.devices {
		if s.devices[i].Kind == kind {
			return &s.devices[i]
		}
	}
	return nil
}

func (s *SyntheticCapturer) Capture(deviceId string) (*Capture, error) {
	var dev *api.Device
	for i := range s.devices {
		if s.devices[i].Id == deviceId {
			dev = &s.devices[i]
			break
		}
	}
	if dev == nil {
		return nil, &MediaError{Reason: MediaNoDevice, Err: fmt.Errorf("unknown device %q", deviceId)}
	}
	if _, ok := s.denied[deviceId]; ok {
		return nil, &MediaError{Reason: MediaPermissionDenied, Err: fmt.Errorf("capture of %q denied", deviceId)}
	}

	codec := pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}
	interval := 20 * time.Millisecond
	payload := silence
	if dev.Kind == KindVideo {
		codec = pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8}
		interval = 33 * time.Millisecond
		payload = blankFrame
	}
	track, err := pion.NewTrackLocalStaticSample(codec, dev.Kind, "greenroom-"+dev.Id)
	if err != nil {
		return nil, &MediaError{Reason: MediaFailure, Err: err}
	}
	c := &Capture{Device: *dev, track: track, done: make(chan struct{})}
	go c.feed(payload, interval)
	return c, nil
}

// feed pumps samples into the track until Stop. Mute drops samples,
// the pacing keeps running.
func (c *Capture) feed(payload []byte, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.Muted() {
				continue
			}
			// write errors just mean the track is not bound yet or already gone
			_ = c.track.WriteSample(media.Sample{Data: payload, Duration: interval})
		}
	}
}
