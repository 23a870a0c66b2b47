package respond

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"

	"github.com/searchktools/archive-server/core/http"
)

var (
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// Codec encodes and decodes message bodies.
type Codec interface {
	// Encode encodes a value to bytes
	Encode(v any) ([]byte, error)

	// Decode decodes bytes to a value
	Decode(data []byte, v any) error

	// Name returns the codec name
	Name() string

	// ContentType returns the media type of encoded bodies
	ContentType() string
}

// CodecFor returns a codec by name: "json", "msgpack" or "protobuf".
func CodecFor(name string) (Codec, error) {
	switch name {
	case "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgPackCodec{}, nil
	case "protobuf":
		return ProtobufCodec{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, name)
}

// JSONCodec implements JSON encoding/decoding
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error)    { return json.Marshal(v) }
func (JSONCodec) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                    { return "json" }
func (JSONCodec) ContentType() string             { return "application/json" }

// MsgPackCodec implements MessagePack encoding/decoding
type MsgPackCodec struct{}

func (MsgPackCodec) Encode(v any) ([]byte, error)    { return msgpack.Marshal(v) }
func (MsgPackCodec) Decode(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (MsgPackCodec) Name() string                    { return "msgpack" }
func (MsgPackCodec) ContentType() string             { return "application/msgpack" }

// ProtobufCodec implements Protocol Buffers encoding/decoding
type ProtobufCodec struct{}

func (ProtobufCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("value must implement proto.Message interface, got %T", v)
	}
	return proto.Marshal(msg)
}

func (ProtobufCodec) Decode(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("value must implement proto.Message interface, got %T", v)
	}
	return proto.Unmarshal(data, msg)
}

func (ProtobufCodec) Name() string        { return "protobuf" }
func (ProtobufCodec) ContentType() string { return "application/x-protobuf" }

// Encoded is a 200 response whose body is v encoded with codec. An encoding
// failure yields a 500.
func Encoded(codec Codec, v any) Responder {
	return Func(func() *http.Response {
		data, err := codec.Encode(v)
		if err != nil {
			return Error(http.StatusInternalServerError, codec.Name()+" encode error").Respond()
		}
		return body(codec.ContentType(), data)
	})
}

// JSON encodes v as JSON.
func JSON(v any) Responder { return Encoded(JSONCodec{}, v) }

// MsgPack encodes v as MessagePack.
func MsgPack(v any) Responder { return Encoded(MsgPackCodec{}, v) }

// Protobuf encodes msg with Protocol Buffers.
func Protobuf(msg proto.Message) Responder { return Encoded(ProtobufCodec{}, msg) }
