package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Websocket subprotocols understood by the server. A client that offers
// none of them is spoken to in JSON.
const (
	SubprotocolJSON    = "camrelay.v1.json"
	SubprotocolMsgpack = "camrelay.v1.msgpack"
)

// Subprotocols lists the supported subprotocols in server preference order.
var Subprotocols = []string{SubprotocolJSON, SubprotocolMsgpack}

// Codec converts messages to and from websocket frames.
type Codec interface {
	Subprotocol() string
	FrameType() int
	Encode(msg *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

// CodecFor returns the codec for a negotiated subprotocol.
func CodecFor(subprotocol string) Codec {
	if subprotocol == SubprotocolMsgpack {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

// JSONCodec speaks text frames. Numbers in a signal are kept as json.Number
// and strings are written without HTML escaping, so a relayed signal
// reaches its target with the same values it was sent with.
type JSONCodec struct{}

func (JSONCodec) Subprotocol() string { return SubprotocolJSON }

func (JSONCodec) FrameType() int { return websocket.TextMessage }

func (JSONCodec) Encode(msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return nil, fmt.Errorf("encode json message: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (JSONCodec) Decode(data []byte) (*Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode json message: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode json message: trailing data after message")
	}
	return &msg, nil
}

// MsgpackCodec reuses the json struct tags so both codecs produce the same
// field names and a JSON peer can read a signal sent by a msgpack peer.
type MsgpackCodec struct{}

func (MsgpackCodec) Subprotocol() string { return SubprotocolMsgpack }

func (MsgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (MsgpackCodec) Encode(msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if msg.Signal != nil {
		out := *msg
		out.Signal = packable(msg.Signal)
		msg = &out
	}
	if err := enc.Encode(msg); err != nil {
		return nil, fmt.Errorf("encode msgpack message: %w", err)
	}
	return buf.Bytes(), nil
}

func (MsgpackCodec) Decode(data []byte) (*Message, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode msgpack message: %w", err)
	}
	return &msg, nil
}

// packable rewrites the json.Number values a JSON peer's signal carries into
// msgpack integers or floats. Everything else is returned as is.
func packable(v any) any {
	switch v := v.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(v.String(), 10, 64); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = packable(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = packable(e)
		}
		return out
	default:
		return v
	}
}
