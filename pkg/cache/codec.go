package cache

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes cache entries into the store's native representation.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// JSONCodec encodes entries as JSON. This is the default: payloads stay
// inspectable with redis-cli, which matters during cache debugging.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

// MsgpackCodec encodes entries as MessagePack, trading inspectability for a
// smaller wire size on large merged listings.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (MsgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (MsgpackCodec) Name() string                       { return "msgpack" }

// CodecByName returns the codec for a configuration value, defaulting to
// JSON for unknown names.
func CodecByName(name string) Codec {
	if name == "msgpack" {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}
