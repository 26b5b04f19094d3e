package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Participant is one connection's view inside a channel. A user with two
// live connections in the same channel appears as two participants,
// distinguished by ConnectionId.
type Participant struct {
	ConnectionId  string `json:"connection_id"`
	UserId        int    `json:"user_id"`
	Username      string `json:"username"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	Muted         bool   `json:"muted"`
	VideoOff      bool   `json:"video_off"`
	ScreenSharing bool   `json:"screen_sharing"`
}

type Message struct {
	Id        int       `json:"id"`
	ChannelId string    `json:"channel_id"`
	UserId    int       `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	ParentId  int       `json:"parent_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
