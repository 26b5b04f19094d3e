package rtc

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/huddlehq/huddle/internal/database"
	"github.com/huddlehq/huddle/internal/stats"
	"github.com/huddlehq/huddle/internal/testutil"
)

func newTestSignalServer(t *testing.T, db database.HuddleRepository, su *stats.MockStatsUpdater) *SignalServer {
	t.Helper()

	su.On("RegisterMetric", mock.Anything).Return().Times(4)
	srv, err := NewSignalServer(testutil.TestLogger(t), db, su)
	if err != nil {
		t.Fatalf("NewSignalServer: %s", err)
	}

	return srv
}

// waitMessage blocks until the client has a queued frame, for tests that run
// the server and room goroutines.
func waitMessage(t *testing.T, c *Client) *ServerMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a queued message")
		return nil
	}
}

func TestNewSignalServer(t *testing.T) {
	db := &database.MockHuddleRepository{}
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	srv := newTestSignalServer(t, db, su)

	assert.NotNil(t, srv.log, "expected logger to be set")
	assert.Equal(t, db, srv.db, "expected repository to be set")
	assert.NotNil(t, srv.clients, "expected connection registry to be initialized")
	assert.NotNil(t, srv.rooms, "expected room table to be initialized")
	assert.NotNil(t, srv.joinChan, "expected join channel to be initialized")
	assert.NotNil(t, srv.unloadRoomChan, "expected unload channel to be initialized")
}

func Test_server_handleJoin(t *testing.T) {
	t.Run("empty channel id is rejected", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		srv := newTestSignalServer(t, &database.MockHuddleRepository{}, su)

		c := newTestClient(t, 1, "alice", "conn-1")
		srv.handleJoin(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1},
			Join:        &Join{},
			client:      c,
		})

		resp := recvMessage(t, c)
		assert.Equal(t, http.StatusBadRequest, resp.Response.ResponseCode, "expected 400 for empty channel id")
		assert.Empty(t, srv.rooms, "expected no room to be created")
	})

	t.Run("first join creates the room", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		srv := newTestSignalServer(t, &database.MockHuddleRepository{}, su)
		su.On("Incr", StatActiveRooms).Return().Once()

		c := newTestClient(t, 1, "alice", "conn-1")
		srv.handleJoin(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1},
			Join:        &Join{ChannelId: "chan-1", Call: true},
			client:      c,
		})

		room, ok := srv.rooms["chan-1"]
		assert.True(t, ok, "expected room in the table")
		assert.Equal(t, kindCall, room.kind, "expected kind fixed by the creating join")

		resp := waitMessage(t, c)
		assert.Equal(t, http.StatusOK, resp.Response.ResponseCode, "expected the room to process the join")
		snapshot := waitMessage(t, c)
		assert.NotNil(t, snapshot.Notification.Participants, "expected a snapshot after the ack")

		su.AssertExpectations(t)
		stopTestRoom(t, room)
	})

	t.Run("kind mismatch on existing room is rejected", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		srv := newTestSignalServer(t, &database.MockHuddleRepository{}, su)
		su.On("Incr", StatActiveRooms).Return().Once()

		c1 := newTestClient(t, 1, "alice", "conn-1")
		srv.handleJoin(&ClientMessage{
			Join:   &Join{ChannelId: "chan-1"},
			client: c1,
		})
		room := srv.rooms["chan-1"]
		waitMessage(t, c1) // ack
		waitMessage(t, c1) // snapshot

		c2 := newTestClient(t, 2, "bob", "conn-2")
		srv.handleJoin(&ClientMessage{
			BaseMessage: BaseMessage{Id: 4},
			Join:        &Join{ChannelId: "chan-1", Call: true},
			client:      c2,
		})

		resp := recvMessage(t, c2)
		assert.Equal(t, http.StatusBadRequest, resp.Response.ResponseCode, "expected 400 for kind mismatch")

		stopTestRoom(t, room)
	})

	t.Run("full room join queue is rejected", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		srv := newTestSignalServer(t, &database.MockHuddleRepository{}, su)

		room := newTestRoom(t, kindText, srv)
		room.joinChan = make(chan *ClientMessage)
		srv.rooms[room.channelId] = room

		c := newTestClient(t, 1, "alice", "conn-1")
		srv.handleJoin(&ClientMessage{
			BaseMessage: BaseMessage{Id: 2},
			Join:        &Join{ChannelId: room.channelId},
			client:      c,
		})

		resp := recvMessage(t, c)
		assert.Equal(t, http.StatusServiceUnavailable, resp.Response.ResponseCode, "expected 503 when room join queue is full")
	})
}

func stopTestRoom(t *testing.T, room *Room) {
	t.Helper()

	done := make(chan string, 1)
	select {
	case room.exit <- exitReq{done: done}:
		<-done
	case <-time.After(time.Second):
		t.Fatal("timed out stopping room")
	}
}

func Test_handleUnload(t *testing.T) {
	t.Run("missing channel is a no-op", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		srv := newTestSignalServer(t, &database.MockHuddleRepository{}, su)

		srv.handleUnload(unloadRoomRequest{channelId: "nope"})
		su.AssertExpectations(t)
	})

	t.Run("empty room is removed", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		srv := newTestSignalServer(t, &database.MockHuddleRepository{}, su)
		su.On("Decr", StatActiveRooms).Return().Once()

		room := newRoom("chan-1", kindText, srv)
		srv.rooms[room.channelId] = room
		go room.run()

		srv.handleUnload(unloadRoomRequest{channelId: "chan-1"})

		assert.NotContains(t, srv.rooms, "chan-1", "expected room removed from table")
		su.AssertExpectations(t)
	})

	t.Run("repopulated room is kept", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		srv := newTestSignalServer(t, &database.MockHuddleRepository{}, su)

		room := newTestRoom(t, kindText, srv)
		srv.rooms[room.channelId] = room
		room.addMember(newTestClient(t, 1, "alice", "conn-1"))

		srv.handleUnload(unloadRoomRequest{channelId: room.channelId})

		assert.Contains(t, srv.rooms, room.channelId, "expected repopulated room kept in table")
		su.AssertExpectations(t)
	})
}

func Test_addClient_removeClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	srv := newTestSignalServer(t, &database.MockHuddleRepository{}, su)

	c := newTestClient(t, 1, "alice", "conn-1")
	srv.addClient(c)
	assert.Contains(t, srv.clients, c, "expected connection in registry")

	srv.removeClient(c)
	assert.NotContains(t, srv.clients, c, "expected connection removed from registry")
}

func Test_Shutdown(t *testing.T) {
	t.Run("stops connections and drains rooms", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		srv := newTestSignalServer(t, &database.MockHuddleRepository{}, su)
		su.On("Incr", mock.Anything).Return()

		go srv.Run()

		c := newTestClient(t, 1, "alice", "conn-1")
		srv.addClient(c)

		room := newRoom("chan-1", kindText, srv)
		srv.rooms[room.channelId] = room
		go room.run()

		err := srv.Shutdown(context.Background())
		assert.NoError(t, err, "expected clean shutdown")

		select {
		case <-c.stop:
		default:
			t.Error("expected connection stop channel to be closed")
		}
		assert.Empty(t, srv.rooms, "expected room table to be drained")
	})

	t.Run("expired context", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		srv := newTestSignalServer(t, &database.MockHuddleRepository{}, su)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// no Run loop consuming the stop channel
		err := srv.Shutdown(ctx)
		assert.ErrorIs(t, err, context.Canceled, "expected context error")
	})
}

// TestDisconnectCompleteness drives a full server: one connection joins three
// channels, another joins the same three, then the first vanishes. The second
// must observe exactly one departure per shared channel.
func TestDisconnectCompleteness(t *testing.T) {
	db := &database.MockHuddleRepository{}
	su := &stats.MockStatsUpdater{}
	srv := newTestSignalServer(t, db, su)
	su.On("Incr", mock.Anything).Return()
	su.On("Decr", mock.Anything).Return()

	go srv.Run()

	c1 := newTestClient(t, 1, "alice", "conn-1")
	c1.srv = srv
	c2 := newTestClient(t, 2, "bob", "conn-2")
	c2.srv = srv

	channels := []string{"chan-a", "chan-b", "chan-c"}
	for _, id := range channels {
		srv.joinChan <- &ClientMessage{Join: &Join{ChannelId: id}, client: c1}
	}
	for i := 0; i < 2*len(channels); i++ {
		waitMessage(t, c1) // ack and snapshot per channel
	}

	for _, id := range channels {
		srv.joinChan <- &ClientMessage{Join: &Join{ChannelId: id}, client: c2}
	}
	for i := 0; i < 2*len(channels); i++ {
		waitMessage(t, c2)
	}
	for i := 0; i < len(channels); i++ {
		joined := waitMessage(t, c1)
		assert.Equal(t, ParticipantJoined, joined.Notification.Participant.Event, "expected joined notifications for c2")
	}

	// c1's transport dies; cleanup is the read pump's exit path
	c1.cleanup()

	left := map[string]bool{}
	for i := 0; i < len(channels); i++ {
		msg := waitMessage(t, c2)
		assert.NotNil(t, msg.Notification.Participant, "expected a participant notification")
		assert.Equal(t, ParticipantLeft, msg.Notification.Participant.Event, "expected left event")
		assert.Equal(t, "conn-1", msg.Notification.Participant.Participant.ConnectionId, "expected the dead connection")
		left[msg.Notification.Participant.ChannelId] = true
	}
	assert.Len(t, left, len(channels), "expected exactly one departure per channel")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx), "expected clean shutdown")
}
