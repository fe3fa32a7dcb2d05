package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Websocket subprotocols a client may request. Browsers that request none
// get JSON.
const (
	SubprotocolJSON    = "watchparty.json"
	SubprotocolMsgpack = "watchparty.msgpack"
)

// Codec turns messages into websocket frames and back.
type Codec interface {
	// Subprotocol is the websocket subprotocol that selects this codec.
	Subprotocol() string
	// Binary reports whether frames are sent as binary rather than text.
	Binary() bool
	Encode(m *Message) ([]byte, error)
	Decode(frame []byte) (*Message, error)
}

var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

// Subprotocols lists the subprotocols the relay offers, preferred first.
func Subprotocols() []string {
	return []string{SubprotocolMsgpack, SubprotocolJSON}
}

// CodecFor returns the codec negotiated for subprotocol, defaulting to JSON.
func CodecFor(subprotocol string) Codec {
	if subprotocol == SubprotocolMsgpack {
		return Msgpack
	}
	return JSON
}

type jsonCodec struct{}

func (jsonCodec) Subprotocol() string { return SubprotocolJSON }
func (jsonCodec) Binary() bool        { return false }

func (jsonCodec) Encode(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

func (jsonCodec) Decode(frame []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &m, nil
}

// msgpackCodec carries Data as the raw JSON bytes of the blob, so a
// message can cross between JSON and msgpack connections unchanged.
type msgpackCodec struct{}

func (msgpackCodec) Subprotocol() string { return SubprotocolMsgpack }
func (msgpackCodec) Binary() bool        { return true }

func (msgpackCodec) Encode(m *Message) ([]byte, error) {
	return msgpack.Marshal(m)
}

func (msgpackCodec) Decode(frame []byte) (*Message, error) {
	var m Message
	if err := msgpack.Unmarshal(frame, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	// Data must stay forwardable to JSON peers.
	if len(m.Data) > 0 && !json.Valid(m.Data) {
		return nil, fmt.Errorf("%w: data is not valid JSON", ErrMalformed)
	}
	return &m, nil
}
