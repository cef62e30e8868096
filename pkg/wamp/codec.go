package wamp

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrUnsupportedMessage is returned by Decode for message types outside the RPC subset.
var ErrUnsupportedMessage = errors.New("unsupported message type")

// Encode renders a message as its wire array. Nested Dict and List values are converted to
// plain maps and slices so any JSON or protobuf Struct encoder can consume the result.
func Encode(msg Message) List {
	switch m := msg.(type) {
	case *Hello:
		return List{int(HELLO), string(m.Realm), plainDict(m.Details)}
	case *Welcome:
		return List{int(WELCOME), uint64(m.Session), plainDict(m.Details)}
	case *Abort:
		return List{int(ABORT), plainDict(m.Details), string(m.Reason)}
	case *Goodbye:
		return List{int(GOODBYE), plainDict(m.Details), string(m.Reason)}
	case *Error:
		out := List{int(ERROR), int(m.Type), uint64(m.Request), plainDict(m.Details), string(m.Error)}
		return appendPayload(out, m.Args, m.Kwargs)
	case *Register:
		return List{int(REGISTER), uint64(m.Request), plainDict(m.Options), string(m.Procedure)}
	case *Registered:
		return List{int(REGISTERED), uint64(m.Request), uint64(m.Registration)}
	case *Unregister:
		return List{int(UNREGISTER), uint64(m.Request), uint64(m.Registration)}
	case *Unregistered:
		return List{int(UNREGISTERED), uint64(m.Request)}
	case *Call:
		out := List{int(CALL), uint64(m.Request), plainDict(m.Options), string(m.Procedure)}
		return appendPayload(out, m.Args, m.Kwargs)
	case *Result:
		out := List{int(RESULT), uint64(m.Request), plainDict(m.Details)}
		return appendPayload(out, m.Args, m.Kwargs)
	case *Invocation:
		out := List{int(INVOCATION), uint64(m.Request), uint64(m.Registration), plainDict(m.Details)}
		return appendPayload(out, m.Args, m.Kwargs)
	case *Yield:
		out := List{int(YIELD), uint64(m.Request), plainDict(m.Options)}
		return appendPayload(out, m.Args, m.Kwargs)
	default:
		panic(fmt.Sprintf("wamp: cannot encode %T", msg))
	}
}

// Decode parses a wire array into a message.
func Decode(raw List) (Message, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty message")
	}
	code, ok := asInt(raw[0])
	if !ok {
		return nil, fmt.Errorf("message type must be an integer, got %T", raw[0])
	}
	d := decoder{raw: raw, typ: MessageType(code)}

	var msg Message
	switch d.typ {
	case HELLO:
		d.need(3)
		msg = &Hello{Realm: d.uri(1), Details: d.dict(2)}
	case WELCOME:
		d.need(3)
		msg = &Welcome{Session: d.id(1), Details: d.dict(2)}
	case ABORT:
		d.need(3)
		msg = &Abort{Details: d.dict(1), Reason: d.uri(2)}
	case GOODBYE:
		d.need(3)
		msg = &Goodbye{Details: d.dict(1), Reason: d.uri(2)}
	case ERROR:
		d.need(5)
		typ, _ := asInt(d.at(1))
		msg = &Error{
			Type:    MessageType(typ),
			Request: d.id(2),
			Details: d.dict(3),
			Error:   d.uri(4),
			Args:    d.optList(5),
			Kwargs:  d.optDict(6),
		}
	case REGISTER:
		d.need(4)
		msg = &Register{Request: d.id(1), Options: d.dict(2), Procedure: d.uri(3)}
	case REGISTERED:
		d.need(3)
		msg = &Registered{Request: d.id(1), Registration: d.id(2)}
	case UNREGISTER:
		d.need(3)
		msg = &Unregister{Request: d.id(1), Registration: d.id(2)}
	case UNREGISTERED:
		d.need(2)
		msg = &Unregistered{Request: d.id(1)}
	case CALL:
		d.need(4)
		msg = &Call{
			Request:   d.id(1),
			Options:   d.dict(2),
			Procedure: d.uri(3),
			Args:      d.optList(4),
			Kwargs:    d.optDict(5),
		}
	case RESULT:
		d.need(3)
		msg = &Result{Request: d.id(1), Details: d.dict(2), Args: d.optList(3), Kwargs: d.optDict(4)}
	case INVOCATION:
		d.need(4)
		msg = &Invocation{
			Request:      d.id(1),
			Registration: d.id(2),
			Details:      d.dict(3),
			Args:         d.optList(4),
			Kwargs:       d.optDict(5),
		}
	case YIELD:
		d.need(3)
		msg = &Yield{Request: d.id(1), Options: d.dict(2), Args: d.optList(3), Kwargs: d.optDict(4)}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedMessage, code)
	}
	if d.err != nil {
		return nil, d.err
	}
	return msg, nil
}

// MarshalJSON encodes a message with the wamp.2.json serializer.
func MarshalJSON(msg Message) ([]byte, error) {
	return json.Marshal(Encode(msg))
}

// UnmarshalJSON decodes a wamp.2.json frame.
func UnmarshalJSON(data []byte) (Message, error) {
	var raw List
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid json frame: %w", err)
	}
	return Decode(raw)
}

// AsID converts a decoded number into an ID.
func AsID(v any) (ID, bool) {
	switch n := v.(type) {
	case ID:
		return n, true
	case uint64:
		return ID(n), n <= uint64(MaxID)
	case int:
		return ID(n), n >= 0 && uint64(n) <= uint64(MaxID)
	case int64:
		return ID(n), n >= 0 && uint64(n) <= uint64(MaxID)
	case uint32:
		return ID(n), true
	case float64:
		if n < 0 || n > float64(MaxID) || n != math.Trunc(n) {
			return 0, false
		}
		return ID(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil || i < 0 || uint64(i) > uint64(MaxID) {
			return 0, false
		}
		return ID(i), true
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	id, ok := AsID(v)
	if !ok || id > math.MaxInt32 {
		return 0, false
	}
	return int(id), true
}

func appendPayload(out List, args List, kwargs Dict) List {
	if len(kwargs) > 0 {
		if args == nil {
			args = List{}
		}
		return append(out, plainList(args), plainDict(kwargs))
	}
	if len(args) > 0 {
		return append(out, plainList(args))
	}
	return out
}

func plainDict(d Dict) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = plain(v)
	}
	return out
}

func plainList(l List) []any {
	out := make([]any, len(l))
	for i, v := range l {
		out[i] = plain(v)
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case Dict:
		return plainDict(t)
	case map[string]any:
		return plainDict(Dict(t))
	case List:
		return plainList(t)
	case []any:
		return plainList(List(t))
	case ID:
		return uint64(t)
	case URI:
		return string(t)
	default:
		return v
	}
}

type decoder struct {
	raw List
	typ MessageType
	err error
}

func (d *decoder) need(n int) {
	if len(d.raw) < n && d.err == nil {
		d.err = fmt.Errorf("%s needs at least %d elements, got %d", d.typ, n, len(d.raw))
	}
}

func (d *decoder) at(i int) any {
	if i >= len(d.raw) {
		return nil
	}
	return d.raw[i]
}

func (d *decoder) fail(i int, what string) {
	if d.err == nil {
		d.err = fmt.Errorf("%s element %d: expected %s, got %T", d.typ, i, what, d.at(i))
	}
}

func (d *decoder) id(i int) ID {
	id, ok := AsID(d.at(i))
	if !ok {
		d.fail(i, "id")
	}
	return id
}

func (d *decoder) uri(i int) URI {
	s, ok := d.at(i).(string)
	if !ok {
		d.fail(i, "uri")
	}
	return URI(s)
}

func (d *decoder) dict(i int) Dict {
	switch v := d.at(i).(type) {
	case map[string]any:
		return Dict(v)
	case Dict:
		return v
	}
	d.fail(i, "dict")
	return nil
}

func (d *decoder) optList(i int) List {
	switch v := d.at(i).(type) {
	case nil:
		return nil
	case []any:
		return List(v)
	case List:
		return v
	}
	d.fail(i, "list")
	return nil
}

func (d *decoder) optDict(i int) Dict {
	if d.at(i) == nil {
		return nil
	}
	return d.dict(i)
}
