package database

import (
	"database/sql"
	"time"
)

func (db *PgHuddleRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, avatar_url, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, username, email, avatar_url",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		params.AvatarURL,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.AvatarURL,
	)

	return u, err
}

func (db *PgHuddleRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, avatar_url, created_at, updated_at "+
			"FROM accounts WHERE id = $1 LIMIT 1",
		accountId,
	)

	return scanAccount(row)
}

func (db *PgHuddleRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, avatar_url, created_at, updated_at "+
			"FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	return scanAccount(row)
}

func scanAccount(row *sql.Row) (User, error) {
	var u User
	var updatedAt sql.NullTime
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.AvatarURL,
		&u.CreatedAt,
		&updatedAt,
	)
	u.UpdatedAt = updatedAt.Time

	return u, err
}

// CreateMessage persists a channel message and returns the durable copy,
// with the id and timestamp the broadcast to clients must carry.
func (db *PgHuddleRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (channel_id, account_id, content, parent_id, created_at) "+
			"VALUES ($1, $2, $3, NULLIF($4, 0), $5) RETURNING id, created_at",
		params.ChannelId,
		params.UserId,
		params.Content,
		params.ParentId,
		time.Now().UTC(),
	)

	msg := Message{
		ChannelId: params.ChannelId,
		UserId:    params.UserId,
		Content:   params.Content,
		ParentId:  params.ParentId,
	}
	err := res.Scan(&msg.Id, &msg.CreatedAt)

	return msg, err
}

// GetMessages returns up to limit messages for a channel, newest first,
// keyset-paginated by message id. A zero before starts from the newest.
func (db *PgHuddleRepository) GetMessages(channelId string, before, limit int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT m.id, m.channel_id, m.account_id, a.username, m.content, COALESCE(m.parent_id, 0), m.created_at "+
			"FROM messages m JOIN accounts a ON a.id = m.account_id "+
			"WHERE m.channel_id = $1 AND ($2 = 0 OR m.id < $2) "+
			"ORDER BY m.id DESC LIMIT $3",
		channelId,
		before,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.Id,
			&m.ChannelId,
			&m.UserId,
			&m.Username,
			&m.Content,
			&m.ParentId,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
