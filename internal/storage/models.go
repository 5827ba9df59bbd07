package storage

import "time"

// Action classifies a history event.
type Action string

const (
	ActionConnect    Action = "CONNECT"
	ActionDisconnect Action = "DISCONNECT"
	ActionError      Action = "ERROR"
)

// ConnectionSnapshot is the state of the active connection at a point in time.
// GuildID is empty when the connection has no guild scope.
type ConnectionSnapshot struct {
	ChannelID   string
	GuildID     string
	ConnectedAt time.Time
	LastUpdated time.Time
}

// HistoryEvent is one immutable audit-trail entry. Rows are only ever
// appended; this package never updates or deletes them.
type HistoryEvent struct {
	ID           int64
	ChannelID    string
	GuildID      string
	Action       Action
	Timestamp    time.Time
	ErrorMessage string
}
