// Package connect provides the Connect RPC queue service, its client and interceptors.
package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// jsonCodec marshals plain Go message structs. It replaces the built-in
// protobuf JSON codec, which only accepts generated messages.
type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(data, msg), "failed to unmarshal message")
}
