package p2p

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/uhyunpark/tokenex/pkg/app/core/events"
)

func init() {
	gob.Register(EventWire{})
}

// EventWire is the gossip envelope. The payload is the event's JSON form so
// peers and Kafka consumers see identical bodies.
type EventWire struct {
	Seq     uint64
	Kind    string
	Payload []byte
}

func encodeEvent(ev events.Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return gobEncode(EventWire{Seq: ev.Seq, Kind: string(ev.Kind), Payload: payload})
}

func decodeEvent(b []byte) (events.Event, error) {
	var w EventWire
	if err := gobDecode(b, &w); err != nil {
		return events.Event{}, err
	}
	var ev events.Event
	if err := json.Unmarshal(w.Payload, &ev); err != nil {
		return events.Event{}, err
	}
	if ev.Seq != w.Seq || string(ev.Kind) != w.Kind {
		return events.Event{}, fmt.Errorf("envelope mismatch: seq %d/%d kind %s/%s", w.Seq, ev.Seq, w.Kind, ev.Kind)
	}
	return ev, nil
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
