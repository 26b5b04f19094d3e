package rtc

import (
	"log"
	"sync"
	"time"

	"github.com/teris-io/shortid"

	"github.com/huddlehq/huddle/internal/database"
	"github.com/huddlehq/huddle/internal/types"
)

type roomKind int

const (
	kindText roomKind = iota
	kindCall
)

type exitReq struct {
	done chan string
}

// memberState is a participant's call state. Zero value on join; only ever
// mutated through the owning connection's own call_state frames.
type memberState struct {
	muted         bool
	videoOff      bool
	screenSharing bool
}

// Room owns one channel's member set, call state and typing tracker. All
// mutation happens on the room's goroutine; joins are delivered by the
// signal server, everything else comes straight from client read pumps.
type Room struct {
	channelId     string
	kind          roomKind
	srv           *SignalServer
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	clients       map[*Client]*memberState
	clientLock    sync.RWMutex
	typing        *typingTracker
	// typingTimer fires at the earliest typing-entry deadline
	typingTimer *time.Timer
	log         *log.Logger
	// exit is used to signal the room to exit
	exit chan exitReq
}

func newRoom(channelId string, kind roomKind, srv *SignalServer) *Room {
	return &Room{
		channelId:     channelId,
		kind:          kind,
		srv:           srv,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		clients:       make(map[*Client]*memberState),
		typing:        newTypingTracker(typingTimeout),
		log:           srv.log,
		exit:          make(chan exitReq),
	}
}

func (r *Room) run() {
	r.log.Printf("starting channel %q", r.channelId)
	r.typingTimer = time.NewTimer(typingTimeout)
	r.typingTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.clientMsgChan:
			switch {
			case msg.Typing != nil:
				r.handleTyping(msg)
			case msg.Publish != nil:
				r.persistAndBroadcast(msg)
			case msg.CallState != nil:
				r.handleCallState(msg)
			case msg.CallChat != nil:
				r.handleCallChat(msg)
			}
		case <-r.typingTimer.C:
			r.handleTypingExpiry()
		case e := <-r.exit:
			r.handleExit(e)
			return
		}
	}
}

func (r *Room) handleJoin(join *ClientMessage) {
	c := join.client

	if _, ok := r.getMember(c); ok {
		// re-join: no membership change, just re-send the snapshot
		c.queueMessage(NoErrOK(join.Id, nil))
		c.queueMessage(r.snapshotMessage(c))
		return
	}

	r.addMember(c)

	c.queueMessage(NoErrOK(join.Id, nil))
	c.queueMessage(r.snapshotMessage(c))

	r.broadcast(&ServerMessage{
		Notification: &Notification{
			Participant: &ParticipantNotification{
				ChannelId:   r.channelId,
				Event:       ParticipantJoined,
				Participant: c.participant(&memberState{}),
			},
		},
		SkipClient: c,
	})
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	c := leaveMsg.client

	if !r.removeMember(c) {
		r.log.Printf("client %q not found in channel %q", c.user.Username, r.channelId)
		if leaveMsg.Id != 0 {
			c.queueMessage(ErrNotAMember(leaveMsg.Id))
		}
		return
	}

	// a vanished connection stops typing exactly once
	if user, live := r.typing.stop(c, Now()); live {
		r.broadcastTyping(user, false, nil)
	}
	r.rearmTypingTimer()

	if leaveMsg.Id != 0 {
		// explicit leave from a client, acknowledge it
		c.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}

	r.broadcast(&ServerMessage{
		Notification: &Notification{
			Participant: &ParticipantNotification{
				ChannelId: r.channelId,
				Event:     ParticipantLeft,
				Participant: types.Participant{
					ConnectionId: c.id,
					UserId:       c.user.Id,
					Username:     c.user.Username,
				},
			},
		},
		SkipClient: c,
	})

	if r.isEmpty() {
		r.requestUnload()
	}
}

func (r *Room) handleTyping(msg *ClientMessage) {
	c := msg.client
	if _, ok := r.getMember(c); !ok {
		r.log.Printf("typing event from non-member %q for channel %q", c.user.Username, r.channelId)
		c.queueMessage(ErrNotAMember(msg.Id))
		return
	}

	now := Now()
	if msg.Typing.Started {
		if r.typing.start(c, c.user, now) {
			r.broadcastTyping(c.user, true, c)
		}
	} else {
		if user, live := r.typing.stop(c, now); live {
			r.broadcastTyping(user, false, c)
		}
	}

	r.rearmTypingTimer()
}

func (r *Room) handleTypingExpiry() {
	for _, user := range r.typing.expire(Now()) {
		r.broadcastTyping(user, false, nil)
	}

	r.rearmTypingTimer()
}

func (r *Room) broadcastTyping(user types.User, started bool, skip *Client) {
	r.broadcast(&ServerMessage{
		Notification: &Notification{
			Typing: &TypingNotification{
				ChannelId: r.channelId,
				UserId:    user.Id,
				Username:  user.Username,
				Started:   started,
			},
		},
		SkipClient: skip,
	})
}

func (r *Room) rearmTypingTimer() {
	if next, ok := r.typing.nextDeadline(); ok {
		r.typingTimer.Reset(time.Until(next))
	} else {
		r.typingTimer.Stop()
	}
}

// persistAndBroadcast relays a channel message: persist first, then fan out
// the canonical durable copy to every member including the sender. A failed
// persist is reported to the sender only and nothing is broadcast.
func (r *Room) persistAndBroadcast(msg *ClientMessage) {
	c := msg.client
	if _, ok := r.getMember(c); !ok {
		r.log.Printf("publish from non-member %q for channel %q", c.user.Username, r.channelId)
		c.queueMessage(ErrNotAMember(msg.Id))
		return
	}

	if r.kind != kindText {
		r.log.Printf("publish to video-call channel %q", r.channelId)
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	dbMsg, err := r.srv.db.CreateMessage(database.CreateMessageParams{
		ChannelId: r.channelId,
		UserId:    c.user.Id,
		Content:   msg.Publish.Content,
		ParentId:  msg.Publish.ParentId,
	})
	if err != nil {
		r.log.Println("error saving message:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	c.queueMessage(NoErrAccepted(msg.Id))
	r.srv.stats.Incr(StatMessagesPersisted)

	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Id:        msg.Id,
			Timestamp: dbMsg.CreatedAt,
		},
		Message: &types.Message{
			Id:        dbMsg.Id,
			ChannelId: r.channelId,
			UserId:    c.user.Id,
			Username:  c.user.Username,
			Content:   dbMsg.Content,
			ParentId:  dbMsg.ParentId,
			Timestamp: dbMsg.CreatedAt,
		},
	})
}

func (r *Room) handleCallState(msg *ClientMessage) {
	c := msg.client
	state, ok := r.getMember(c)
	if !ok {
		r.log.Printf("call state from non-member %q for channel %q", c.user.Username, r.channelId)
		c.queueMessage(ErrNotAMember(msg.Id))
		return
	}

	if r.kind != kindCall {
		r.log.Printf("call state for text channel %q", r.channelId)
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	cs := msg.CallState
	if cs.UserId != 0 && cs.UserId != c.user.Id {
		r.log.Printf("user %d attempted to update call state of user %d in channel %q",
			c.user.Id, cs.UserId, r.channelId)
		c.queueMessage(ErrNotOwnState(msg.Id))
		return
	}

	if cs.Muted != nil {
		state.muted = *cs.Muted
	}
	if cs.VideoOff != nil {
		state.videoOff = *cs.VideoOff
	}
	if cs.ScreenSharing != nil {
		state.screenSharing = *cs.ScreenSharing
	}

	c.queueMessage(NoErrOK(msg.Id, nil))

	// the sender already applied the change locally, so it is excluded
	r.broadcast(&ServerMessage{
		Notification: &Notification{
			Participant: &ParticipantNotification{
				ChannelId:   r.channelId,
				Event:       ParticipantUpdated,
				Participant: c.participant(state),
			},
		},
		SkipClient: c,
	})
}

// handleCallChat relays ephemeral in-call chat to every member including the
// sender. Unlike persistAndBroadcast this path never touches storage.
func (r *Room) handleCallChat(msg *ClientMessage) {
	c := msg.client
	if _, ok := r.getMember(c); !ok {
		r.log.Printf("call chat from non-member %q for channel %q", c.user.Username, r.channelId)
		c.queueMessage(ErrNotAMember(msg.Id))
		return
	}

	if r.kind != kindCall {
		r.log.Printf("call chat for text channel %q", r.channelId)
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	id, err := shortid.Generate()
	if err != nil {
		r.log.Println("error generating call chat id:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	r.broadcast(&ServerMessage{
		Notification: &Notification{
			CallChat: &CallChatNotification{
				Id:        id,
				ChannelId: r.channelId,
				UserId:    c.user.Id,
				Username:  c.user.Username,
				Content:   msg.CallChat.Content,
				Timestamp: Now(),
			},
		},
	})
}

func (r *Room) handleExit(e exitReq) {
	r.log.Printf("channel %q is exiting", r.channelId)

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.channelId)
	}
	r.clientLock.Unlock()

	// notify the signal server the room is done cleaning up
	if e.done != nil {
		e.done <- r.channelId
	}
}

func (r *Room) requestUnload() {
	select {
	case r.srv.unloadRoomChan <- unloadRoomRequest{channelId: r.channelId}:
	default:
		r.log.Printf("unload channel full, channel %q left in table", r.channelId)
	}
}

func (r *Room) addMember(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = &memberState{}
	c.addRoom(r)
}

func (r *Room) removeMember(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return false
	}

	delete(r.clients, c)
	c.delRoom(r.channelId)
	return true
}

func (r *Room) getMember(c *Client) (*memberState, bool) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	state, ok := r.clients[c]
	return state, ok
}

func (r *Room) isEmpty() bool {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	return len(r.clients) == 0
}

// snapshotMessage builds the current-participants notification for a joining
// connection, listing every member except the joiner itself.
func (r *Room) snapshotMessage(joiner *Client) *ServerMessage {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	participants := make([]types.Participant, 0, len(r.clients))
	for c, state := range r.clients {
		if c == joiner {
			continue
		}
		participants = append(participants, c.participant(state))
	}

	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Participants: &ParticipantsNotification{
				ChannelId:    r.channelId,
				Participants: participants,
			},
		},
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = Now()
	}

	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		if !client.queueMessage(msg) {
			r.srv.stats.Incr(StatDroppedEvents)
		}
	}
}
