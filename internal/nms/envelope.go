package nms

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnexpectedShape indicates a response that matched none of the known
// payload envelopes. Callers treat it as an empty result, not a failure.
var ErrUnexpectedShape = errors.New("nms: unexpected response shape")

// envelopeKeys are the generic wrapper keys the NMS is known to use, tried
// in priority order before the resource-specific key.
var envelopeKeys = []string{"data", "content", "items"}

// decodeEnvelope extracts the item list from a response body. The NMS
// returns either a bare JSON array or an envelope object whose payload sits
// under one of several known keys. The envelope return value reports which
// variant was seen; bare arrays carry no pagination metadata and are treated
// as single-page by callers.
func decodeEnvelope(body []byte, resourceKey string) (items []json.RawMessage, envelope bool, err error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, false, ErrUnexpectedShape
	}
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
		}
		return items, false, nil
	case '{':
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, true, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
		}
		keys := append(append([]string{}, envelopeKeys...), resourceKey)
		for _, key := range keys {
			raw, ok := wrapper[key]
			if !ok {
				continue
			}
			raw = bytes.TrimSpace(raw)
			if len(raw) == 0 || raw[0] != '[' {
				continue
			}
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, true, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
			}
			return items, true, nil
		}
		return nil, true, ErrUnexpectedShape
	default:
		return nil, false, ErrUnexpectedShape
	}
}
