package models

// ChannelUser is one member of a channel roster.
type ChannelUser struct {
	UserUUID    string `json:"userUuid"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
	JoinedAt    int64  `json:"joinedAt"`
}

// InitState is the full cached snapshot sent to a joining connection:
// entity type name to the ordered list of persisted envelopes.
type InitState map[string][]Envelope

// StreamChunk is one increment of externally generated content relayed
// into a channel as an ephemeral draft. End marks the terminal chunk;
// no chunk for the same id follows it.
type StreamChunk struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Content string `json:"content,omitempty"`
	End     bool   `json:"end,omitempty"`
}
