package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DeviceFrame is what a sensor board sends: any subset of the three sections,
// keyed by section name. The gas section arrives lowercase as "mq135".
type DeviceFrame struct {
	DHT22 json.RawMessage `json:"DHT22,omitempty"`
	MQ135 json.RawMessage `json:"mq135,omitempty"`
	PM    json.RawMessage `json:"pmValue,omitempty"`
}

// UnmarshalJSON picks the sections by exact key. Other keys, including
// differently cased section names, are ignored.
func (f *DeviceFrame) UnmarshalJSON(data []byte) error {
	m, err := members(data)
	if err != nil {
		return err
	}
	*f = DeviceFrame{DHT22: m["DHT22"], MQ135: m["mq135"], PM: m["pmValue"]}
	return nil
}

// DecodeFrame parses a device frame. The payload must be a JSON object.
func DecodeFrame(data []byte) (DeviceFrame, error) {
	var f DeviceFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return DeviceFrame{}, err
	}
	return f, nil
}

// Events converts the frame into events stamped with ts, in DHT22, MQ135, PM
// order. Sections with a missing field are skipped; a section that is not
// valid JSON for its shape fails the whole frame.
func (f DeviceFrame) Events(ts time.Time) ([]Event, error) {
	var out []Event

	if !isNull(f.DHT22) {
		v, err := decodeDHT22(f.DHT22)
		switch {
		case errors.Is(err, ErrMissingField):
		case err != nil:
			return nil, fmt.Errorf("DHT22: %w", err)
		default:
			out = append(out, NewDHT22Event(v, ts))
		}
	}

	if !isNull(f.MQ135) {
		v, err := decodeMQ135(f.MQ135)
		switch {
		case errors.Is(err, ErrMissingField):
		case err != nil:
			return nil, fmt.Errorf("mq135: %w", err)
		default:
			out = append(out, NewMQ135Event(v, ts))
		}
	}

	if !isNull(f.PM) {
		v, err := decodePM(f.PM)
		switch {
		case errors.Is(err, ErrMissingField):
		case err != nil:
			return nil, fmt.Errorf("pmValue: %w", err)
		default:
			out = append(out, NewPMEvent(v, ts))
		}
	}

	return out, nil
}
