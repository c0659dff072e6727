// Package sensor holds the records exchanged between devices, the server and
// display clients.
package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind is the sensor_type tag of an Event.
type Kind string

const (
	KindDHT22 Kind = "DHT22"
	KindMQ135 Kind = "MQ135"
	KindPM    Kind = "pmValue"
)

// Kinds lists the recognized tags in display order.
var Kinds = []Kind{KindDHT22, KindMQ135, KindPM}

// Known reports whether k is one of the recognized tags.
func (k Kind) Known() bool {
	switch k {
	case KindDHT22, KindMQ135, KindPM:
		return true
	}
	return false
}

// ParseKind maps a tag to a Kind. It is case-sensitive like the wire format.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Known() {
		return "", fmt.Errorf("unknown sensor_type %q", s)
	}
	return k, nil
}

var ErrMissingField = errors.New("missing field")

// DHT22 is a temperature (°C) and relative humidity (%) reading.
type DHT22 struct {
	TempC    float64 `json:"temC"`
	Humidity float64 `json:"humi"`
}

// MQ135 is a gas concentration proxy with its qualitative label.
type MQ135 struct {
	Value   float64 `json:"value"`
	Quality string  `json:"quality"`
}

// PM holds particulate mass concentrations and a qualitative label.
type PM struct {
	PM1p0   float64 `json:"PM_1p0"`
	PM2p5   float64 `json:"PM_2p5"`
	PM4p0   float64 `json:"PM_4p0"`
	PM10p0  float64 `json:"PM_10p0"`
	Quality string  `json:"quality"`
}

// Event is one decoded sensor reading. Exactly one of DHT22, MQ135 and PM is
// set for a known Kind; for any other Kind all three are nil and Raw keeps
// the undecoded value.
type Event struct {
	Kind      Kind
	Timestamp time.Time

	DHT22 *DHT22
	MQ135 *MQ135
	PM    *PM

	Raw json.RawMessage
}

type envelope struct {
	SensorType Kind            `json:"sensor_type"`
	Value      json.RawMessage `json:"value"`
	Timestamp  string          `json:"timestamp,omitempty"`
}

// NewDHT22Event, NewMQ135Event and NewPMEvent build events the way the
// server broadcasts them.
func NewDHT22Event(v DHT22, ts time.Time) Event {
	return Event{Kind: KindDHT22, Timestamp: ts, DHT22: &v}
}

func NewMQ135Event(v MQ135, ts time.Time) Event {
	return Event{Kind: KindMQ135, Timestamp: ts, MQ135: &v}
}

func NewPMEvent(v PM, ts time.Time) Event {
	return Event{Kind: KindPM, Timestamp: ts, PM: &v}
}

// Decode parses a serialized event record.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (e *Event) UnmarshalJSON(data []byte) error {
	env, err := decodeEnvelope(data)
	if err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	out := Event{Kind: env.SensorType}
	if env.Timestamp != "" {
		ts, err := parseTimestamp(env.Timestamp)
		if err != nil {
			return fmt.Errorf("decode event timestamp: %w", err)
		}
		out.Timestamp = ts
	}

	switch env.SensorType {
	case KindDHT22:
		v, err := decodeDHT22(env.Value)
		if err != nil {
			return fmt.Errorf("decode %s value: %w", env.SensorType, err)
		}
		out.DHT22 = &v
	case KindMQ135:
		v, err := decodeMQ135(env.Value)
		if err != nil {
			return fmt.Errorf("decode %s value: %w", env.SensorType, err)
		}
		out.MQ135 = &v
	case KindPM:
		v, err := decodePM(env.Value)
		if err != nil {
			return fmt.Errorf("decode %s value: %w", env.SensorType, err)
		}
		out.PM = &v
	default:
		out.Raw = env.Value
	}

	*e = out
	return nil
}

// decodeEnvelope reads the envelope keys exactly as written.
func decodeEnvelope(data []byte) (envelope, error) {
	m, err := members(data)
	if err != nil {
		return envelope{}, err
	}
	kind, err := member[Kind](m, "sensor_type")
	if err != nil {
		return envelope{}, err
	}
	ts, err := member[string](m, "timestamp")
	if err != nil {
		return envelope{}, err
	}
	env := envelope{Value: m["value"]}
	if kind != nil {
		env.SensorType = *kind
	}
	if ts != nil {
		env.Timestamp = *ts
	}
	return env, nil
}

func (e Event) MarshalJSON() ([]byte, error) {
	env := envelope{SensorType: e.Kind}
	if !e.Timestamp.IsZero() {
		env.Timestamp = e.Timestamp.Format(time.RFC3339Nano)
	}

	var (
		value []byte
		err   error
	)
	switch {
	case e.DHT22 != nil:
		value, err = json.Marshal(e.DHT22)
	case e.MQ135 != nil:
		value, err = json.Marshal(e.MQ135)
	case e.PM != nil:
		value, err = json.Marshal(e.PM)
	case e.Raw != nil:
		value = e.Raw
	default:
		value = []byte("{}")
	}
	if err != nil {
		return nil, err
	}
	env.Value = value
	return json.Marshal(env)
}

// parseTimestamp accepts RFC 3339 and the offset-less ISO form that naive
// datetimes serialize to.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	t, err2 := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.Local)
	if err2 != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	return t, nil
}
