package webrtc

import (
	"testing"

	"github.com/pion/webrtc/v3"
)

func TestEncodeDecode(t *testing.T) {
	in := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	blob, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	var out webrtc.SessionDescription
	if err := Decode(blob, &out); err != nil {
		t.Fatal(err)
	}
	if out.Type != in.Type || out.SDP != in.SDP {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestDecodeGarbage(t *testing.T) {
	var out webrtc.SessionDescription
	if err := Decode("not base64!", &out); err == nil {
		t.Fatal("expected a decode error")
	}
	if err := Decode("bm90IGpzb24=", &out); err == nil {
		t.Fatal("expected an unmarshal error")
	}
}
