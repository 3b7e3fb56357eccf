package strava

import (
	"encoding/json"
	"fmt"
	"time"
)

// activityTimeFormat is the timestamp format used by the Strava API.
const activityTimeFormat = time.RFC3339

// typedActivityFields are the summary fields lifted into the typed core of
// Activity. Everything else the API returns is preserved verbatim in Extra.
var typedActivityFields = []string{
	"id", "name", "type", "sport_type", "start_date",
	"distance", "moving_time", "elapsed_time", "total_elevation_gain",
}

// Activity is one activity summary from the paginated athlete collection.
// The typed core carries the fields the local store and index need; Extra
// holds all remaining remote fields so activity files round-trip the full
// API payload.
type Activity struct {
	ID                 int64
	Name               string
	Type               string
	SportType          string
	StartDate          time.Time
	Distance           float64
	MovingTime         int64
	ElapsedTime        int64
	TotalElevationGain float64

	Extra map[string]json.RawMessage
}

// UnmarshalJSON decodes the typed core and keeps unrecognized fields in Extra.
func (a *Activity) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["id"]; ok {
		if err := json.Unmarshal(v, &a.ID); err != nil {
			return fmt.Errorf("invalid activity id: %w", err)
		}
	}
	if v, ok := raw["name"]; ok {
		if err := json.Unmarshal(v, &a.Name); err != nil {
			return fmt.Errorf("invalid activity name: %w", err)
		}
	}
	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &a.Type); err != nil {
			return fmt.Errorf("invalid activity type: %w", err)
		}
	}
	if v, ok := raw["sport_type"]; ok {
		if err := json.Unmarshal(v, &a.SportType); err != nil {
			return fmt.Errorf("invalid sport type: %w", err)
		}
	}
	if v, ok := raw["start_date"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
		t, err := time.Parse(activityTimeFormat, s)
		if err != nil {
			return fmt.Errorf("invalid start date %q: %w", s, err)
		}
		a.StartDate = t
	}
	if v, ok := raw["distance"]; ok {
		if err := json.Unmarshal(v, &a.Distance); err != nil {
			return fmt.Errorf("invalid distance: %w", err)
		}
	}
	if v, ok := raw["moving_time"]; ok {
		if err := json.Unmarshal(v, &a.MovingTime); err != nil {
			return fmt.Errorf("invalid moving time: %w", err)
		}
	}
	if v, ok := raw["elapsed_time"]; ok {
		if err := json.Unmarshal(v, &a.ElapsedTime); err != nil {
			return fmt.Errorf("invalid elapsed time: %w", err)
		}
	}
	if v, ok := raw["total_elevation_gain"]; ok {
		if err := json.Unmarshal(v, &a.TotalElevationGain); err != nil {
			return fmt.Errorf("invalid elevation gain: %w", err)
		}
	}

	for _, key := range typedActivityFields {
		delete(raw, key)
	}
	if len(raw) > 0 {
		a.Extra = raw
	}

	return nil
}

// MarshalJSON re-assembles the original payload: typed core fields plus the
// opaque remainder.
func (a Activity) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(a.Extra)+len(typedActivityFields))
	for k, v := range a.Extra {
		out[k] = v
	}

	set := func(key string, value interface{}) error {
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		out[key] = data
		return nil
	}

	if err := set("id", a.ID); err != nil {
		return nil, err
	}
	if err := set("name", a.Name); err != nil {
		return nil, err
	}
	if err := set("type", a.Type); err != nil {
		return nil, err
	}
	if err := set("sport_type", a.SportType); err != nil {
		return nil, err
	}
	if err := set("start_date", a.StartDate.UTC().Format(activityTimeFormat)); err != nil {
		return nil, err
	}
	if err := set("distance", a.Distance); err != nil {
		return nil, err
	}
	if err := set("moving_time", a.MovingTime); err != nil {
		return nil, err
	}
	if err := set("elapsed_time", a.ElapsedTime); err != nil {
		return nil, err
	}
	if err := set("total_elevation_gain", a.TotalElevationGain); err != nil {
		return nil, err
	}

	return json.Marshal(out)
}

// Stream is one time-series sub-resource of an activity.
type Stream struct {
	Data         json.RawMessage `json:"data"`
	SeriesType   string          `json:"series_type"`
	OriginalSize int             `json:"original_size"`
	Resolution   string          `json:"resolution"`
}

// StreamSet maps stream type (time, distance, heartrate, ...) to its series,
// as returned by the streams endpoint with key_by_type=true.
type StreamSet map[string]Stream
