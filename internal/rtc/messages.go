package rtc

import (
	"net/http"
	"time"

	"github.com/huddlehq/huddle/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the inbound frame. Exactly one of the variant fields is
// set; frames with no recognized variant are dropped at the read pump.
type ClientMessage struct {
	BaseMessage
	Join      *Join      `json:"join,omitempty"`
	Leave     *Leave     `json:"leave,omitempty"`
	Typing    *Typing    `json:"typing,omitempty"`
	Publish   *Publish   `json:"publish,omitempty"`
	CallState *CallState `json:"call_state,omitempty"`
	CallChat  *CallChat  `json:"call_chat,omitempty"`
	UserId    int        `json:"-"`
	client    *Client
}

func (cm *ClientMessage) GetUserId() int {
	if cm.UserId != 0 {
		return cm.UserId
	}

	if cm.client != nil {
		return cm.client.user.Id
	}

	return 0
}

// channelId returns the channel the frame targets, regardless of variant.
func (cm *ClientMessage) channelId() string {
	switch {
	case cm.Join != nil:
		return cm.Join.ChannelId
	case cm.Leave != nil:
		return cm.Leave.ChannelId
	case cm.Typing != nil:
		return cm.Typing.ChannelId
	case cm.Publish != nil:
		return cm.Publish.ChannelId
	case cm.CallState != nil:
		return cm.CallState.ChannelId
	case cm.CallChat != nil:
		return cm.CallChat.ChannelId
	}

	return ""
}

type Join struct {
	ChannelId string `json:"channel_id"`
	// Call marks the join as a video-call join. The channel's kind is fixed
	// by the first join that creates it.
	Call bool `json:"call,omitempty"`
}

type Leave struct {
	ChannelId string `json:"channel_id"`
}

type Typing struct {
	ChannelId string `json:"channel_id"`
	Started   bool   `json:"started"`
}

type Publish struct {
	ChannelId string `json:"channel_id"`
	Content   string `json:"content"`
	ParentId  int    `json:"parent_id,omitempty"`
}

// CallState carries a partial update of the sender's own call state. Nil
// fields are left untouched. UserId, when set, must match the sender.
type CallState struct {
	ChannelId     string `json:"channel_id"`
	UserId        int    `json:"user_id,omitempty"`
	Muted         *bool  `json:"muted,omitempty"`
	VideoOff      *bool  `json:"video_off,omitempty"`
	ScreenSharing *bool  `json:"screen_sharing,omitempty"`
}

type CallChat struct {
	ChannelId string `json:"channel_id"`
	Content   string `json:"content"`
}

// ServerMessage is the outbound frame: a response correlated to a client
// frame, a canonical persisted message, or a notification.
type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	SkipClient   *Client        `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	Typing       *TypingNotification       `json:"typing,omitempty"`
	Participant  *ParticipantNotification  `json:"participant,omitempty"`
	Participants *ParticipantsNotification `json:"participants,omitempty"`
	CallChat     *CallChatNotification     `json:"call_chat,omitempty"`
}

type TypingNotification struct {
	ChannelId string `json:"channel_id"`
	UserId    int    `json:"user_id"`
	Username  string `json:"username"`
	Started   bool   `json:"started"`
}

const (
	ParticipantJoined  = "joined"
	ParticipantLeft    = "left"
	ParticipantUpdated = "updated"
)

type ParticipantNotification struct {
	ChannelId   string            `json:"channel_id"`
	Event       string            `json:"event"`
	Participant types.Participant `json:"participant"`
}

// ParticipantsNotification is the snapshot sent to a joining connection,
// listing the channel's other current participants.
type ParticipantsNotification struct {
	ChannelId    string              `json:"channel_id"`
	Participants []types.Participant `json:"participants"`
}

// CallChatNotification relays ephemeral in-call chat. It is never persisted;
// Id is assigned by the server for client-side de-duplication only.
type CallChatNotification struct {
	Id        string    `json:"id"`
	ChannelId string    `json:"channel_id"`
	UserId    int       `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrChannelNotFound(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "channel not found",
		},
	}
}

func ErrNotAMember(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "not a member of channel",
		},
	}
}

func ErrNotOwnState(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "cannot update another participant's state",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
