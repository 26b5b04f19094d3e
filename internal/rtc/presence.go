package rtc

import (
	"time"

	"github.com/huddlehq/huddle/internal/types"
)

// typingTimeout is the inactivity window after which a typing entry expires.
// Clients refresh the entry on each keystroke.
const typingTimeout = 2 * time.Second

type typingEntry struct {
	user     types.User
	deadline time.Time
}

// typingTracker holds per-connection typing entries for one channel. It is
// owned by the channel's goroutine and must not be shared. An entry past its
// deadline is treated as absent even before it is swept.
type typingTracker struct {
	entries map[*Client]*typingEntry
	timeout time.Duration
}

func newTypingTracker(timeout time.Duration) *typingTracker {
	return &typingTracker{
		entries: make(map[*Client]*typingEntry),
		timeout: timeout,
	}
}

// start upserts an entry for c and reports whether it was fresh. Refreshing
// a live entry only extends the deadline; callers broadcast a typing
// notification only for fresh entries.
func (tt *typingTracker) start(c *Client, user types.User, now time.Time) bool {
	entry, ok := tt.entries[c]
	fresh := !ok || !entry.deadline.After(now)

	tt.entries[c] = &typingEntry{
		user:     user,
		deadline: now.Add(tt.timeout),
	}

	return fresh
}

// stop removes the entry for c and reports whether a live entry existed.
func (tt *typingTracker) stop(c *Client, now time.Time) (types.User, bool) {
	entry, ok := tt.entries[c]
	if !ok {
		return types.User{}, false
	}

	delete(tt.entries, c)
	return entry.user, entry.deadline.After(now)
}

// expire removes every entry whose deadline has passed and returns the
// affected users, one per expired connection.
func (tt *typingTracker) expire(now time.Time) []types.User {
	var expired []types.User
	for c, entry := range tt.entries {
		if !entry.deadline.After(now) {
			expired = append(expired, entry.user)
			delete(tt.entries, c)
		}
	}

	return expired
}

// nextDeadline returns the earliest live deadline, if any entries remain.
func (tt *typingTracker) nextDeadline() (time.Time, bool) {
	var next time.Time
	for _, entry := range tt.entries {
		if next.IsZero() || entry.deadline.Before(next) {
			next = entry.deadline
		}
	}

	return next, !next.IsZero()
}
