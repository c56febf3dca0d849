package models

// Envelope is the universal record shape shared by every entity type.
// ID is caller-generated and unique within (channel, entity type).
// Timestamp is the client-claimed time; ServerTimestamp is assigned at
// persistence or broadcast and is the only field that participates in
// last-write-wins decisions.
type Envelope struct {
	ID              string         `json:"id"`
	Channel         string         `json:"channel"`
	UserUUID        string         `json:"userUuid,omitempty"`
	Data            map[string]any `json:"data,omitempty"`
	Timestamp       int64          `json:"timestamp,omitempty"`
	ServerTimestamp int64          `json:"serverTimestamp,omitempty"`
}

// Order reads the numeric order value from Data. Ordered entity types
// keep a dense 0..n-1 sequence in this field; ok is false when the field
// is absent or non-numeric.
func (e *Envelope) Order() (int, bool) {
	if e.Data == nil {
		return 0, false
	}
	switch v := e.Data["order"].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

// SetOrder writes the order value into Data, allocating the map when the
// envelope carried no payload.
func (e *Envelope) SetOrder(n int) {
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	e.Data["order"] = n
}
