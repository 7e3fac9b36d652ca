package api

import (
	"encoding/json"
	"fmt"
)

// The update-race body carries a polymorphic "data" field: a timing object
// for the start/finish actions, an array of staged entries for
// submit-results. Custom codecs keep UpdateRaceRequest typed on both ends.

type updateRaceWire struct {
	RaceID      int64           `json:"raceId"`
	Action      string          `json:"action"`
	Data        json.RawMessage `json:"data"`
	SubmittedBy string          `json:"submittedBy,omitempty"`
	Checkpoint  string          `json:"checkpoint,omitempty"`
}

type startTimeData struct {
	StartTime int64 `json:"startTime"`
}

type finishTimeData struct {
	FinishTime int64 `json:"finishTime"`
}

func (r UpdateRaceRequest) MarshalJSON() ([]byte, error) {
	w := updateRaceWire{
		RaceID:      r.RaceID,
		Action:      r.Action,
		SubmittedBy: r.SubmittedBy,
		Checkpoint:  r.Checkpoint,
	}

	var (
		data []byte
		err  error
	)
	switch r.Action {
	case ActionUpdateStartTime:
		if r.StartTime == nil {
			return nil, fmt.Errorf("%s: startTime is required", r.Action)
		}
		data, err = json.Marshal(startTimeData{StartTime: *r.StartTime})
	case ActionUpdateFinishTime:
		if r.FinishTime == nil {
			return nil, fmt.Errorf("%s: finishTime is required", r.Action)
		}
		data, err = json.Marshal(finishTimeData{FinishTime: *r.FinishTime})
	case ActionSubmitResults:
		entries := r.Entries
		if entries == nil {
			entries = []SubmitEntry{}
		}
		data, err = json.Marshal(entries)
	default:
		return nil, fmt.Errorf("unknown update-race action %q", r.Action)
	}
	if err != nil {
		return nil, err
	}

	w.Data = data
	return json.Marshal(w)
}

func (r *UpdateRaceRequest) UnmarshalJSON(b []byte) error {
	var w updateRaceWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	*r = UpdateRaceRequest{
		RaceID:      w.RaceID,
		Action:      w.Action,
		SubmittedBy: w.SubmittedBy,
		Checkpoint:  w.Checkpoint,
	}

	switch w.Action {
	case ActionUpdateStartTime:
		var d startTimeData
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return fmt.Errorf("decoding %s data: %w", w.Action, err)
		}
		r.StartTime = &d.StartTime
	case ActionUpdateFinishTime:
		var d finishTimeData
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return fmt.Errorf("decoding %s data: %w", w.Action, err)
		}
		r.FinishTime = &d.FinishTime
	case ActionSubmitResults:
		if err := json.Unmarshal(w.Data, &r.Entries); err != nil {
			return fmt.Errorf("decoding %s data: %w", w.Action, err)
		}
	}
	// Unknown actions are left for the handler to reject with a 400.
	return nil
}
