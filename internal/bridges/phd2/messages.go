package phd2

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// RPC methods issued by the bridge. Both are sent once per connection,
// immediately after the socket is established.
const (
	methodGetAppState   = "get_app_state"
	methodGetPixelScale = "get_pixel_scale"
)

// Server event names the bridge acts on. All other events are ignored.
const (
	EventGuideStep = "GuideStep"
	EventStarLost  = "StarLost"
)

// MessageKind identifies the decoded variant of a protocol line.
type MessageKind int

const (
	// KindRPCResponse is a response to a client request (has "result" and "id").
	KindRPCResponse MessageKind = iota + 1

	// KindEvent is a server-initiated event (has "Event", no "id"/"result").
	KindEvent
)

// Message is the tagged union produced by DecodeMessage. Exactly one of
// Response and Event is non-nil, matching Kind.
type Message struct {
	Kind     MessageKind
	Response *RPCResponse
	Event    *ServerEvent
}

// RPCResponse is a decoded response to one of the bridge's RPC requests,
// matched against the pending-request table by ID.
type RPCResponse struct {
	ID     int
	Result json.RawMessage
}

// NumericResult interprets the result as a plain JSON number.
//
// Returns:
//   - float64: The numeric value
//   - error: ErrInvalidPixelScale-compatible decode failure if the result
//     is not a number (string, object, null, ...)
func (r *RPCResponse) NumericResult() (float64, error) {
	var v float64
	if err := json.Unmarshal(r.Result, &v); err != nil {
		return 0, fmt.Errorf("non-numeric result %s: %w", string(r.Result), err)
	}
	return v, nil
}

// ServerEvent is a decoded server-initiated event. Optional fields are
// pointers: nil means the field was absent from the wire, which is distinct
// from zero.
type ServerEvent struct {
	Name string

	// Timestamp is Unix epoch seconds (fractional), when present.
	Timestamp *float64

	// GuideStep fields. RADistanceRaw/DECDistanceRaw are pixel-domain
	// tracking errors; dx/dy are pixel offsets of the star image.
	RADistanceRaw  *float64
	DECDistanceRaw *float64
	DX             *float64
	DY             *float64
	SNR            *float64
	AvgDist        *float64
}

// GuideSample is the ephemeral record derived from one GuideStep event.
// It is consumed immediately by the tracker; nothing retains it.
type GuideSample struct {
	// Time is derived from the event's Timestamp field. Nil when the event
	// carried no timestamp; never defaulted to "now".
	Time *time.Time

	RARaw   *float64
	DecRaw  *float64
	DX      *float64
	DY      *float64
	SNR     *float64
	AvgDist *float64
}

// GuideSample converts the event's fields into a GuideSample.
func (e *ServerEvent) GuideSample() GuideSample {
	s := GuideSample{
		RARaw:   e.RADistanceRaw,
		DecRaw:  e.DECDistanceRaw,
		DX:      e.DX,
		DY:      e.DY,
		SNR:     e.SNR,
		AvgDist: e.AvgDist,
	}
	if e.Timestamp != nil {
		sec := int64(*e.Timestamp)
		nsec := int64((*e.Timestamp - float64(sec)) * float64(time.Second))
		t := time.Unix(sec, nsec)
		s.Time = &t
	}
	return s
}

// wireMessage is the decode probe for one protocol line. Field presence
// decides classification, so everything optional is a pointer.
type wireMessage struct {
	Event          string          `json:"Event"`
	ID             *int            `json:"id"`
	Result         json.RawMessage `json:"result"`
	Timestamp      *float64        `json:"Timestamp"`
	RADistanceRaw  *float64        `json:"RADistanceRaw"`
	DECDistanceRaw *float64        `json:"DECDistanceRaw"`
	DX             *float64        `json:"dx"`
	DY             *float64        `json:"dy"`
	SNR            *float64        `json:"SNR"`
	AvgDist        *float64        `json:"AvgDist"`
}

// DecodeMessage decodes one protocol line into its message variant.
//
// Classification rules:
//   - both "result" and "id" present → RPC response
//   - "Event" present (and not an RPC response) → server event
//   - anything else → ErrUnrecognizedMessage
//
// Malformed UTF-8 or malformed JSON returns ErrMalformedMessage. Either
// way the caller logs and skips the line; a bad line never drops the
// connection.
//
// Parameters:
//   - line: One newline-delimited record, without the trailing newline
//
// Returns:
//   - Message: Decoded tagged union
//   - error: ErrMalformedMessage or ErrUnrecognizedMessage
func DecodeMessage(line []byte) (Message, error) {
	if !utf8.Valid(line) {
		return Message{}, fmt.Errorf("%w: invalid UTF-8", ErrMalformedMessage)
	}

	var wire wireMessage
	if err := json.Unmarshal(line, &wire); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	if wire.Result != nil && wire.ID != nil {
		return Message{
			Kind: KindRPCResponse,
			Response: &RPCResponse{
				ID:     *wire.ID,
				Result: wire.Result,
			},
		}, nil
	}

	if wire.Event != "" {
		return Message{
			Kind: KindEvent,
			Event: &ServerEvent{
				Name:           wire.Event,
				Timestamp:      wire.Timestamp,
				RADistanceRaw:  wire.RADistanceRaw,
				DECDistanceRaw: wire.DECDistanceRaw,
				DX:             wire.DX,
				DY:             wire.DY,
				SNR:            wire.SNR,
				AvgDist:        wire.AvgDist,
			},
		}, nil
	}

	return Message{}, ErrUnrecognizedMessage
}

// rpcRequest is a client→server RPC call.
type rpcRequest struct {
	Method string `json:"method"`
	ID     int    `json:"id"`
}

// encodeRequest serialises an RPC request as one newline-terminated line.
func encodeRequest(method string, id int) ([]byte, error) {
	data, err := json.Marshal(rpcRequest{Method: method, ID: id})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}
	return append(data, '\n'), nil
}
