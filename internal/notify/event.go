package notify

import (
	"strings"
	"time"

	"github.com/park285/rps-room-server/internal/rps"
	"github.com/park285/rps-room-server/pkg/rpsdto"
)

// EventType names the room change being announced.
type EventType string

const (
	RoundTurnPlay      EventType = "ROUND_TURN_PLAY"
	NewGameCreated     EventType = "NEW_GAME_CREATED"
	InvitationAccepted EventType = "INVITATION_ACCEPTED"
)

// Payload carries the committed room projection and the acting player.
type Payload struct {
	Room     rpsdto.RoomDto `json:"RoomDto"`
	PlayerID string         `json:"PlayerId"`
}

// Event is the envelope delivered to subscribers of a room topic.
type Event struct {
	// Destination is the resolved topic; it travels beside the body, not in it.
	Destination string    `json:"-"`
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Data        Payload   `json:"data"`
	EventTime   time.Time `json:"eventTime"`
}

// Destination resolves a topic pattern such as "/topic/rooms/%s" for a room.
// Patterns without a verb get the room id appended as a path segment.
func Destination(pattern, roomID string) string {
	if strings.Contains(pattern, "%s") {
		return strings.Replace(pattern, "%s", roomID, 1)
	}
	return strings.TrimRight(pattern, "/") + "/" + roomID
}

// RoomEvent builds the event for a committed room state.
func RoomEvent(pattern string, typ EventType, room *rps.Room, playerID string, now time.Time) Event {
	return Event{
		Destination: Destination(pattern, room.ID),
		ID:          room.ID,
		Type:        typ,
		Data:        Payload{Room: rpsdto.FromRoom(room), PlayerID: playerID},
		EventTime:   now.UTC(),
	}
}

// Publisher accepts events for asynchronous delivery. Publish never blocks
// and reports whether the event was queued.
type Publisher interface {
	Publish(ev Event) bool
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) bool { return true }
