package sensor

import (
	"encoding/json"
	"fmt"
)

// The raw payloads keep absent and null fields nil. Keys match exactly:
// encoding/json would accept "TEMC" for a "temC" tag.
type rawDHT22 struct {
	TempC    *float64
	Humidity *float64
}

type rawMQ135 struct {
	Value   *float64
	Quality *string
}

type rawPM struct {
	PM1p0   *float64
	PM2p5   *float64
	PM4p0   *float64
	PM10p0  *float64
	Quality *string
}

func (r *rawDHT22) UnmarshalJSON(data []byte) error {
	m, err := members(data)
	if err != nil {
		return err
	}
	if r.TempC, err = member[float64](m, "temC"); err != nil {
		return err
	}
	r.Humidity, err = member[float64](m, "humi")
	return err
}

func (r *rawMQ135) UnmarshalJSON(data []byte) error {
	m, err := members(data)
	if err != nil {
		return err
	}
	if r.Value, err = member[float64](m, "value"); err != nil {
		return err
	}
	r.Quality, err = member[string](m, "quality")
	return err
}

func (r *rawPM) UnmarshalJSON(data []byte) error {
	m, err := members(data)
	if err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		dst  **float64
	}{
		{"PM_1p0", &r.PM1p0},
		{"PM_2p5", &r.PM2p5},
		{"PM_4p0", &r.PM4p0},
		{"PM_10p0", &r.PM10p0},
	} {
		if *f.dst, err = member[float64](m, f.name); err != nil {
			return err
		}
	}
	r.Quality, err = member[string](m, "quality")
	return err
}

// members splits a JSON object into its members, keyed case-sensitively.
func members(data []byte) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// member decodes m[name]. Absent and null members return nil.
func member[T any](m map[string]json.RawMessage, name string) (*T, error) {
	raw, ok := m[name]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &v, nil
}

func (r rawDHT22) complete() (DHT22, error) {
	if r.TempC == nil {
		return DHT22{}, fmt.Errorf("temC: %w", ErrMissingField)
	}
	if r.Humidity == nil {
		return DHT22{}, fmt.Errorf("humi: %w", ErrMissingField)
	}
	return DHT22{TempC: *r.TempC, Humidity: *r.Humidity}, nil
}

func (r rawMQ135) complete() (MQ135, error) {
	if r.Value == nil {
		return MQ135{}, fmt.Errorf("value: %w", ErrMissingField)
	}
	if r.Quality == nil {
		return MQ135{}, fmt.Errorf("quality: %w", ErrMissingField)
	}
	return MQ135{Value: *r.Value, Quality: *r.Quality}, nil
}

func (r rawPM) complete() (PM, error) {
	fields := []struct {
		name string
		v    *float64
	}{
		{"PM_1p0", r.PM1p0},
		{"PM_2p5", r.PM2p5},
		{"PM_4p0", r.PM4p0},
		{"PM_10p0", r.PM10p0},
	}
	for _, f := range fields {
		if f.v == nil {
			return PM{}, fmt.Errorf("%s: %w", f.name, ErrMissingField)
		}
	}
	if r.Quality == nil {
		return PM{}, fmt.Errorf("quality: %w", ErrMissingField)
	}
	return PM{
		PM1p0:   *r.PM1p0,
		PM2p5:   *r.PM2p5,
		PM4p0:   *r.PM4p0,
		PM10p0:  *r.PM10p0,
		Quality: *r.Quality,
	}, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func decodeDHT22(raw json.RawMessage) (DHT22, error) {
	if isNull(raw) {
		return DHT22{}, fmt.Errorf("value: %w", ErrMissingField)
	}
	var r rawDHT22
	if err := json.Unmarshal(raw, &r); err != nil {
		return DHT22{}, err
	}
	return r.complete()
}

func decodeMQ135(raw json.RawMessage) (MQ135, error) {
	if isNull(raw) {
		return MQ135{}, fmt.Errorf("value: %w", ErrMissingField)
	}
	var r rawMQ135
	if err := json.Unmarshal(raw, &r); err != nil {
		return MQ135{}, err
	}
	return r.complete()
}

func decodePM(raw json.RawMessage) (PM, error) {
	if isNull(raw) {
		return PM{}, fmt.Errorf("value: %w", ErrMissingField)
	}
	var r rawPM
	if err := json.Unmarshal(raw, &r); err != nil {
		return PM{}, err
	}
	return r.complete()
}
