package studio

import (
	"encoding/json"
	"fmt"
)

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StatusIdle
	case "loading":
		*s = StatusLoading
	case "success":
		*s = StatusSuccess
	case "error":
		*s = StatusError
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// State is the generation state of one style. It can only be built through
// the constructors below, so an image is present only on success and an
// error message only on failure.
type State struct {
	styleID  string
	status   Status
	imageURL string
	err      string
}

func idle(styleID string) State {
	return State{styleID: styleID, status: StatusIdle}
}

func loading(styleID string) State {
	return State{styleID: styleID, status: StatusLoading}
}

func succeeded(styleID, imageURL string) State {
	return State{styleID: styleID, status: StatusSuccess, imageURL: imageURL}
}

func failed(styleID, message string) State {
	return State{styleID: styleID, status: StatusError, err: message}
}

func (s State) StyleID() string { return s.styleID }

func (s State) Status() Status { return s.status }

func (s State) ImageURL() (string, bool) {
	return s.imageURL, s.status == StatusSuccess
}

func (s State) Error() (string, bool) {
	return s.err, s.status == StatusError
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		StyleID  string `json:"styleId"`
		Status   Status `json:"status"`
		ImageURL string `json:"imageUrl,omitempty"`
		Error    string `json:"error,omitempty"`
	}{
		StyleID:  s.styleID,
		Status:   s.status,
		ImageURL: s.imageURL,
		Error:    s.err,
	})
}

type Snapshot struct {
	// Source is empty when no image has been submitted since the last reset.
	Source string
	States []State
}

func (s Snapshot) HasSource() bool {
	return s.Source != ""
}

func (s Snapshot) State(styleID string) (State, bool) {
	for _, st := range s.States {
		if st.styleID == styleID {
			return st, true
		}
	}
	return State{}, false
}
