package sensor

import "encoding/json"

const (
	StatusNoData = "no_data"
	StatusError  = "error"
)

// Status is the non-reading frame the server sends to display clients.
type Status struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func NoDataStatus() Status {
	return Status{Status: StatusNoData, Message: "No data received from sensors."}
}

func ErrorStatus(msg string) Status {
	return Status{Status: StatusError, Message: msg}
}

// DecodeStatus reports whether data is a status frame and returns it.
func DecodeStatus(data []byte) (Status, bool) {
	var s Status
	if err := json.Unmarshal(data, &s); err != nil || s.Status == "" {
		return Status{}, false
	}
	return s, true
}
