package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Message struct {
	Id        int
	ChannelId string
	UserId    int
	Username  string
	Content   string
	ParentId  int
	CreatedAt time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
	AvatarURL    string
}

type CreateMessageParams struct {
	ChannelId string
	UserId    int
	Content   string
	ParentId  int
}
