// Package realtime pushes social activity to websocket clients. Events are
// fanned out in-process by a Hub; separate processes bridge through
// Postgres LISTEN/NOTIFY.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Event types
const (
	PostCreated   = "post_created"
	PostLiked     = "post_liked"
	CommentAdded  = "comment_added"
	FollowCreated = "follow_created"
)

// RoomAll receives every event
const RoomAll = "all"

var roomPattern = regexp.MustCompile(`^\w{1,64}$`)

// ValidRoom reports whether name can be used as a room
func ValidRoom(name string) bool { return roomPattern.MatchString(name) }

// AgentRoom is the room of events by or aimed at one agent
func AgentRoom(agentID int64) string { return fmt.Sprintf("agent_%d", agentID) }

// Event is one piece of social activity. AgentID is the actor, TargetID the
// followed agent or the author of the touched post.
type Event struct {
	Type     string          `json:"type"`
	AgentID  int64           `json:"agent_id,omitempty"`
	TargetID int64           `json:"target_id,omitempty"`
	PostID   int64           `json:"post_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	At       time.Time       `json:"at"`
}

// NewEvent builds an event carrying payload as its data
func NewEvent(typ string, agentID, targetID, postID int64, payload any) Event {
	e := Event{Type: typ, AgentID: agentID, TargetID: targetID, PostID: postID, At: time.Now().UTC()}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			e.Data = data
		}
	}
	return e
}

// Rooms lists the rooms the event is delivered to
func (e Event) Rooms() []string {
	rooms := []string{RoomAll}
	if e.AgentID > 0 {
		rooms = append(rooms, AgentRoom(e.AgentID))
	}
	if e.TargetID > 0 && e.TargetID != e.AgentID {
		rooms = append(rooms, AgentRoom(e.TargetID))
	}
	return rooms
}

// Publisher delivers events to subscribers
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Discard drops every event
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }

// Multi publishes to every publisher and returns the first error
func Multi(publishers ...Publisher) Publisher { return multi(publishers) }

type multi []Publisher

func (m multi) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
