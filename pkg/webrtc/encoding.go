package webrtc

import (
	"encoding/base64"

	"github.com/goccy/go-json"
)

// Encode packs SDPs and ICE candidates into base64 JSON blobs,
// opaque to the relay in between.
func Encode(obj any) (string, error) {
	b, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func Decode(in string, obj any) error {
	b, err := base64.StdEncoding.DecodeString(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, obj)
}
