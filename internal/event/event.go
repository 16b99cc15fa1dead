// Package event defines the typed event stream produced by supervised
// servers and the fan-out bus that delivers it to independent consumers.
package event

import "time"

// Kind tags an Event. The set is closed; consumers switch on it.
type Kind string

const (
	KindStatusChanged Kind = "status_changed"
	KindPlayerJoin    Kind = "player_join"
	KindPlayerLeave   Kind = "player_leave"
	KindChat          Kind = "chat"
	KindAdvancement   Kind = "advancement"
	KindDeath         Kind = "death"
	KindCrashed       Kind = "crashed"
	KindLogLine       Kind = "log_line"
)

// Event is one occurrence on a managed server. Which payload fields are set
// depends on Kind:
//
//	status_changed: Status
//	player_join: Player, PlayerUUID (when the server announced it)
//	player_leave: Player
//	chat: Player, Message
//	advancement: Player, Message (advancement title)
//	death: Player, Message (full death phrase)
//	crashed: Message (failure reason), Status
//	log_line: Message (raw console line)
//
// Timestamps are monotonically non-decreasing per server.
type Event struct {
	ServerID  string    `json:"serverId"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	Status     string `json:"status,omitempty"`
	Player     string `json:"player,omitempty"`
	PlayerUUID string `json:"playerUuid,omitempty"`
	Message    string `json:"message,omitempty"`
}
