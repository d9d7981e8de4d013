package models

import "time"

// IntentType is the closed set of purposes an inbound message can resolve to.
type IntentType string

const (
	IntentChat      IntentType = "chat"
	IntentSong      IntentType = "song"
	IntentImageNew  IntentType = "image_new"
	IntentImageEdit IntentType = "image_edit"
	IntentVideo     IntentType = "video"
	IntentClarify   IntentType = "clarify"
)

// Generates reports whether the intent dispatches to a paid generation adapter.
func (t IntentType) Generates() bool {
	switch t {
	case IntentSong, IntentImageNew, IntentImageEdit, IntentVideo:
		return true
	default:
		return false
	}
}

// Valid reports whether t belongs to the closed intent set.
func (t IntentType) Valid() bool {
	return t.Generates() || t == IntentChat || t == IntentClarify
}

// MediaKind is the media message type accepted by the messaging platform.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

type User struct {
	ID                int64
	Phone             string
	Email             string
	SubscriptionStart *time.Time
	SubscriptionEnd   *time.Time
	FreeUses          int
	DailyUses         int

	// LastUse is the calendar day (YYYY-MM-DD) of the last counted usage, empty if none.
	LastUse   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsSubscribed reports whether now falls before the end of the subscription window.
func (u *User) IsSubscribed(now time.Time) bool {
	return u.SubscriptionEnd != nil && now.Before(*u.SubscriptionEnd)
}

type Creation struct {
	ID        int64
	UserID    int64
	Type      IntentType
	CreatedAt time.Time
}

// Decision is the router output for one inbound message. Prompt is set for
// generation intents, Reply for chat and clarify.
type Decision struct {
	Type   IntentType
	Prompt string
	Reply  string
}

// Role of a conversation turn, named the way chat-completion APIs name them.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
