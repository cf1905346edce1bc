// Package stream pushes broker messages to a single WebSocket peer as framed
// binary records.
package stream

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/jetgate/jetgate/internal/broker"
)

// ControlType distinguishes the three control-frame variants.
type ControlType int32

const (
	ControlSubscribeAck ControlType = 0
	ControlError        ControlType = 1
	ControlKeepalive    ControlType = 2
)

// Outer envelope field numbers (frame.proto StreamFrame.payload oneof).
const (
	fieldFrameData    = 1
	fieldFrameControl = 2
)

// DataFrame field numbers (frame.proto DataFrame).
const (
	fieldDataSubject  = 1
	fieldDataSeq      = 2
	fieldDataTime     = 3
	fieldDataPayload  = 4
	fieldDataSize     = 5
)

// ControlFrame field numbers (frame.proto ControlFrame).
const (
	fieldControlType    = 1
	fieldControlMessage = 2
)

// DataFrame carries one Message.
type DataFrame struct {
	Subject        string
	StreamSequence uint64
	Timestamp      time.Time
	Payload        []byte
}

// ControlFrame carries a SubscribeAck, Error, or Keepalive signal.
type ControlFrame struct {
	Type    ControlType
	Message string
}

// FromMessage projects a broker.Message onto the wire DataFrame shape.
func FromMessage(m broker.Message) DataFrame {
	return DataFrame{Subject: m.Subject, StreamSequence: m.Sequence, Timestamp: m.Timestamp, Payload: m.Data}
}

// EncodeData encodes a data frame as the outer StreamFrame envelope.
func EncodeData(f DataFrame) []byte {
	return appendTag(nil, fieldFrameData, encodeDataFrame(f))
}

// EncodeControl encodes a control frame as the outer StreamFrame envelope.
func EncodeControl(f ControlFrame) []byte {
	return appendTag(nil, fieldFrameControl, encodeControlFrame(f))
}

func encodeDataFrame(f DataFrame) []byte {
	var buf []byte
	buf = appendString(buf, fieldDataSubject, f.Subject)
	buf = appendVarint(buf, fieldDataSeq, f.StreamSequence)
	buf = appendString(buf, fieldDataTime, f.Timestamp.UTC().Format(time.RFC3339Nano))
	buf = appendBytes(buf, fieldDataPayload, f.Payload)
	buf = appendVarint(buf, fieldDataSize, uint64(len(f.Payload)))
	return buf
}

func encodeControlFrame(f ControlFrame) []byte {
	var buf []byte
	buf = appendVarint(buf, fieldControlType, uint64(f.Type))
	buf = appendString(buf, fieldControlMessage, f.Message)
	return buf
}

func appendVarint(buf []byte, field protowire.Number, v uint64) []byte {
	buf = protowire.AppendTag(buf, field, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

func appendString(buf []byte, field protowire.Number, s string) []byte {
	buf = protowire.AppendTag(buf, field, protowire.BytesType)
	return protowire.AppendBytes(buf, []byte(s))
}

func appendBytes(buf []byte, field protowire.Number, b []byte) []byte {
	buf = protowire.AppendTag(buf, field, protowire.BytesType)
	return protowire.AppendBytes(buf, b)
}

func appendTag(buf []byte, field protowire.Number, inner []byte) []byte {
	buf = protowire.AppendTag(buf, field, protowire.BytesType)
	return protowire.AppendBytes(buf, inner)
}

// DecodeAll parses a byte stream of concatenated envelopes - each one
// self-delimited by its own tag/length prefix the same way repeated embedded
// messages are in ordinary protobuf - used by the binary fetch endpoint to
// return more than one message in a single HTTP response body.
func DecodeAll(raw []byte) ([]DataFrame, []ControlFrame, error) {
	var data []DataFrame
	var control []ControlFrame

	for len(raw) > 0 {
		df, cf, rest, err := decodeOne(raw)
		if err != nil {
			return nil, nil, err
		}
		if df != nil {
			data = append(data, *df)
		}
		if cf != nil {
			control = append(control, *cf)
		}
		raw = rest
	}
	return data, control, nil
}

// Decode parses exactly one wire envelope into either a DataFrame or a
// ControlFrame, ignoring any trailing bytes - used for the WebSocket
// transport, where each socket frame carries exactly one envelope.
func Decode(raw []byte) (*DataFrame, *ControlFrame, error) {
	df, cf, _, err := decodeOne(raw)
	return df, cf, err
}

func decodeOne(raw []byte) (*DataFrame, *ControlFrame, []byte, error) {
	for len(raw) > 0 {
		field, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return nil, nil, nil, fmt.Errorf("stream frame: malformed tag: %w", protowire.ParseError(n))
		}
		raw = raw[n:]

		if typ != protowire.BytesType {
			return nil, nil, nil, fmt.Errorf("stream frame: unexpected wire type %d for field %d", typ, field)
		}
		inner, n := protowire.ConsumeBytes(raw)
		if n < 0 {
			return nil, nil, nil, fmt.Errorf("stream frame: malformed length-delimited field: %w", protowire.ParseError(n))
		}
		raw = raw[n:]

		switch field {
		case fieldFrameData:
			df, err := decodeDataFrame(inner)
			if err != nil {
				return nil, nil, nil, err
			}
			return &df, nil, raw, nil
		case fieldFrameControl:
			cf, err := decodeControlFrame(inner)
			if err != nil {
				return nil, nil, nil, err
			}
			return nil, &cf, raw, nil
		default:
			// Unknown top-level field: skip, preserving forward compatibility
			// with future schema additions (frame.proto field numbering is additive).
			continue
		}
	}
	return nil, nil, nil, fmt.Errorf("stream frame: empty envelope")
}

func decodeDataFrame(raw []byte) (DataFrame, error) {
	var f DataFrame
	for len(raw) > 0 {
		field, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return f, fmt.Errorf("stream frame: malformed data field tag: %w", protowire.ParseError(n))
		}
		raw = raw[n:]

		switch field {
		case fieldDataSubject:
			s, n, err := consumeString(typ, raw)
			if err != nil {
				return f, err
			}
			f.Subject = s
			raw = raw[n:]
		case fieldDataSeq:
			v, n, err := consumeVarint(typ, raw)
			if err != nil {
				return f, err
			}
			f.StreamSequence = v
			raw = raw[n:]
		case fieldDataTime:
			s, n, err := consumeString(typ, raw)
			if err != nil {
				return f, err
			}
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				f.Timestamp = ts
			}
			raw = raw[n:]
		case fieldDataPayload:
			b, n, err := consumeBytes(typ, raw)
			if err != nil {
				return f, err
			}
			f.Payload = b
			raw = raw[n:]
		case fieldDataSize:
			// Informational only; len(f.Payload) is authoritative.
			_, n, err := consumeVarint(typ, raw)
			if err != nil {
				return f, err
			}
			raw = raw[n:]
		default:
			n, err := skipField(typ, raw)
			if err != nil {
				return f, err
			}
			raw = raw[n:]
		}
	}
	return f, nil
}

func decodeControlFrame(raw []byte) (ControlFrame, error) {
	var f ControlFrame
	for len(raw) > 0 {
		field, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return f, fmt.Errorf("stream frame: malformed control field tag: %w", protowire.ParseError(n))
		}
		raw = raw[n:]

		switch field {
		case fieldControlType:
			v, n, err := consumeVarint(typ, raw)
			if err != nil {
				return f, err
			}
			f.Type = ControlType(v)
			raw = raw[n:]
		case fieldControlMessage:
			s, n, err := consumeString(typ, raw)
			if err != nil {
				return f, err
			}
			f.Message = s
			raw = raw[n:]
		default:
			n, err := skipField(typ, raw)
			if err != nil {
				return f, err
			}
			raw = raw[n:]
		}
	}
	return f, nil
}

func consumeVarint(typ protowire.Type, raw []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("stream frame: expected varint, got wire type %d", typ)
	}
	v, n := protowire.ConsumeVarint(raw)
	if n < 0 {
		return 0, 0, fmt.Errorf("stream frame: malformed varint: %w", protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeString(typ protowire.Type, raw []byte) (string, int, error) {
	b, n, err := consumeBytes(typ, raw)
	return string(b), n, err
}

func consumeBytes(typ protowire.Type, raw []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("stream frame: expected length-delimited field, got wire type %d", typ)
	}
	b, n := protowire.ConsumeBytes(raw)
	if n < 0 {
		return nil, 0, fmt.Errorf("stream frame: malformed bytes field: %w", protowire.ParseError(n))
	}
	return b, n, nil
}

func skipField(typ protowire.Type, raw []byte) (int, error) {
	n := protowire.ConsumeFieldValue(0, typ, raw)
	if n < 0 {
		return 0, fmt.Errorf("stream frame: malformed unknown field: %w", protowire.ParseError(n))
	}
	return n, nil
}
