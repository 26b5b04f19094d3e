package rtc

import (
	"context"
	"log"
	"sync"

	"github.com/huddlehq/huddle/internal/database"
	"github.com/huddlehq/huddle/internal/stats"
)

const (
	StatActiveConnections = "ActiveConnections"
	StatActiveRooms       = "ActiveRooms"
	StatMessagesPersisted = "MessagesPersisted"
	StatDroppedEvents     = "DroppedEvents"
)

type unloadRoomRequest struct {
	channelId string
}

type stopRequest struct {
	done chan struct{}
}

// SignalServer owns the room table and the connection registry. Its goroutine
// is the only one that creates or removes rooms, so a join and the unload of
// the room it targets can never interleave.
type SignalServer struct {
	log            *log.Logger
	db             database.HuddleRepository
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *ClientMessage
	registerChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan unloadRoomRequest
	rooms          map[string]*Room
	stop           chan stopRequest
}

func NewSignalServer(logger *log.Logger, db database.HuddleRepository, sp stats.StatsProvider) (*SignalServer, error) {
	s := &SignalServer{
		log:            logger,
		db:             db,
		stats:          sp,
		clients:        make(map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage, 256),
		registerChan:   make(chan *Client, 256),
		deRegisterChan: make(chan *Client, 256),
		unloadRoomChan: make(chan unloadRoomRequest, 256),
		rooms:          make(map[string]*Room),
		stop:           make(chan stopRequest),
	}

	sp.RegisterMetric(StatActiveConnections)
	sp.RegisterMetric(StatActiveRooms)
	sp.RegisterMetric(StatMessagesPersisted)
	sp.RegisterMetric(StatDroppedEvents)

	return s, nil
}

func (s *SignalServer) Run() {
	for {
		select {
		case joinMsg := <-s.joinChan:
			s.handleJoin(joinMsg)
		case client := <-s.registerChan:
			s.log.Printf("adding connection from %q", client.user.Username)
			s.addClient(client)
			s.stats.Incr(StatActiveConnections)
		case client := <-s.deRegisterChan:
			s.log.Printf("removing connection from %q", client.user.Username)
			s.removeClient(client)
			s.stats.Decr(StatActiveConnections)
		case req := <-s.unloadRoomChan:
			s.handleUnload(req)
		case req := <-s.stop:
			s.log.Println("shutting down channels")
			s.drainRooms()
			close(req.done)
			return
		}
	}
}

func (s *SignalServer) handleJoin(joinMsg *ClientMessage) {
	if joinMsg.Join.ChannelId == "" {
		joinMsg.client.queueMessage(ErrInvalidMessage(joinMsg.Id))
		return
	}

	kind := kindText
	if joinMsg.Join.Call {
		kind = kindCall
	}

	if room, ok := s.rooms[joinMsg.Join.ChannelId]; ok {
		if room.kind != kind {
			s.log.Printf("join kind mismatch for channel %q", room.channelId)
			joinMsg.client.queueMessage(ErrInvalidMessage(joinMsg.Id))
			return
		}

		select {
		case room.joinChan <- joinMsg:
		default:
			s.log.Printf("join channel full on channel %q", room.channelId)
			joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
		}
		return
	}

	// lazy creation on first join
	room := newRoom(joinMsg.Join.ChannelId, kind, s)
	s.rooms[room.channelId] = room
	s.stats.Incr(StatActiveRooms)
	room.joinChan <- joinMsg

	go room.run()
}

// handleUnload removes an emptied room from the table. The emptiness check
// is re-run here: a join may have been processed between the room's unload
// request and this point, in which case the request is stale.
func (s *SignalServer) handleUnload(req unloadRoomRequest) {
	room, ok := s.rooms[req.channelId]
	if !ok {
		return
	}

	if !room.isEmpty() {
		s.log.Printf("skipping unload of repopulated channel %q", req.channelId)
		return
	}

	s.log.Printf("removing channel %q", req.channelId)
	delete(s.rooms, req.channelId)
	s.stats.Decr(StatActiveRooms)

	done := make(chan string, 1)
	room.exit <- exitReq{done: done}
	<-done
}

func (s *SignalServer) drainRooms() {
	for _, room := range s.rooms {
		s.log.Printf("shutting down channel %q", room.channelId)
		done := make(chan string, 1)
		room.exit <- exitReq{done: done}
		<-done
	}

	s.rooms = make(map[string]*Room)
}

// RegisterClient hands a freshly upgraded connection to the server loop.
func (s *SignalServer) RegisterClient(c *Client) {
	s.registerChan <- c
}

func (s *SignalServer) addClient(c *Client) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	s.clients[c] = struct{}{}
}

func (s *SignalServer) removeClient(c *Client) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	delete(s.clients, c)
}

func (s *SignalServer) Shutdown(ctx context.Context) error {
	s.log.Println("received shutdown signal")

	s.clientsLock.Lock()
	for c := range s.clients {
		c.stopClient()
	}
	s.clientsLock.Unlock()

	req := stopRequest{done: make(chan struct{})}
	select {
	case s.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
