package generation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// mediaObject is the object layout of a provider output entry.
type mediaObject struct {
	AudioURL string `json:"audio_url"`
	VideoURL string `json:"video_url"`
	URL      string `json:"url"`
}

func (m mediaObject) first() string {
	switch {
	case m.AudioURL != "":
		return m.AudioURL
	case m.VideoURL != "":
		return m.VideoURL
	default:
		return m.URL
	}
}

// decodeOutput extracts the result URL from a task output, which providers
// return as an object, an array of strings or objects, or a bare string.
func decodeOutput(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: empty output", ErrUnrecognizedResponseShape)
	}

	var resultURL string
	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &resultURL); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnrecognizedResponseShape, err)
		}
	case '{':
		var obj mediaObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnrecognizedResponseShape, err)
		}
		resultURL = obj.first()
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnrecognizedResponseShape, err)
		}
		if len(items) == 0 {
			return "", fmt.Errorf("%w: empty output array", ErrUnrecognizedResponseShape)
		}
		first := bytes.TrimSpace(items[0])
		if len(first) > 0 && first[0] == '[' {
			return "", fmt.Errorf("%w: nested array", ErrUnrecognizedResponseShape)
		}
		return decodeOutput(first)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnrecognizedResponseShape, truncateBody(raw))
	}

	if resultURL == "" {
		return "", fmt.Errorf("%w: no url in output", ErrUnrecognizedResponseShape)
	}
	return resultURL, nil
}
