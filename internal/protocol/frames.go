// Package protocol defines the wire frames exchanged with chat clients and
// the classification of inbound frames into tagged variants. Classification
// is pure: no I/O happens here, so routing decisions can be tested in
// isolation from the transport and the stores.
package protocol

import (
	"encoding/json"
	"strings"

	"github.com/lanchat/relay/internal/chatlog"
)

// Frame type discriminators used on the wire.
const (
	TypeMessage      = "message"
	TypeHistory      = "history"
	TypeUserList     = "user_list"
	TypePrivateRoom  = "private_room"
	TypeAnnouncement = "announcement"
	TypeUpdateReadID = "update_read_id"
)

// Inbound is the decoded shape of a client frame before classification.
// Untagged frames (no Type) are classified by content prefix.
type Inbound struct {
	Type      string          `json:"type,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	Receiver  string          `json:"receiver,omitempty"`
	Username  string          `json:"username,omitempty"`
	Message   string          `json:"message,omitempty"`
	MessageID int64           `json:"message_id,omitempty"`
	Profile   string          `json:"profile,omitempty"`
	File      json.RawMessage `json:"file,omitempty"`
}

// Frame is one classified inbound frame. Exactly one concrete type is
// produced per raw payload; a nil Frame with nil error means the payload
// carried nothing actionable (blank text, no attachment).
type Frame interface{ frame() }

// PrivateFrame is a direct message between two users.
type PrivateFrame struct {
	Sender   string
	Receiver string
	Message  string
}

// ReadPositionFrame records the last message id a user has seen.
type ReadPositionFrame struct {
	Username  string
	MessageID int64
}

// AnnouncementFrame is a message addressed to the notice channel. Message has
// the leading marker already stripped; Raw preserves the original text for
// persistence.
type AnnouncementFrame struct {
	Message string
	Raw     string
}

// OracleFrame is a query for the reply oracle. Prompt has the marker
// stripped.
type OracleFrame struct {
	Prompt string
}

// PlainFrame is an ordinary chat message, broadcast to every chat connection.
type PlainFrame struct {
	Message string
	Profile string
	File    json.RawMessage
}

func (PrivateFrame) frame()      {}
func (ReadPositionFrame) frame() {}
func (AnnouncementFrame) frame() {}
func (OracleFrame) frame()       {}
func (PlainFrame) frame()        {}

// Prefixes that select special routing for otherwise-plain messages.
const (
	announcementPrefix = "@"
	oraclePrefix       = "#"
)

// Classify decodes raw and produces the tagged frame variant that drives the
// router. It returns (nil, nil) for frames that should be silently ignored
// and a non-nil error only for payloads that do not parse as JSON.
func Classify(raw []byte) (Frame, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}

	switch in.Type {
	case TypePrivateRoom:
		return PrivateFrame{Sender: in.Sender, Receiver: in.Receiver, Message: in.Message}, nil
	case TypeUpdateReadID:
		return ReadPositionFrame{Username: in.Username, MessageID: in.MessageID}, nil
	}

	if strings.HasPrefix(in.Message, announcementPrefix) {
		return AnnouncementFrame{
			Message: strings.TrimSpace(strings.TrimPrefix(in.Message, announcementPrefix)),
			Raw:     in.Message,
		}, nil
	}
	if strings.HasPrefix(in.Message, oraclePrefix) {
		return OracleFrame{
			Prompt: strings.TrimSpace(strings.ReplaceAll(in.Message, oraclePrefix, "")),
		}, nil
	}

	if strings.TrimSpace(in.Message) == "" && len(in.File) == 0 {
		return nil, nil
	}
	return PlainFrame{Message: in.Message, Profile: in.Profile, File: in.File}, nil
}

// Message is an outbound chat frame, used for broadcasts and oracle replies.
type Message struct {
	Type    string          `json:"type"`
	Sender  string          `json:"sender"`
	Message string          `json:"message"`
	Profile string          `json:"profile,omitempty"`
	ID      int64           `json:"id,omitempty"`
	File    json.RawMessage `json:"file,omitempty"`
	ReplyID string          `json:"reply_id,omitempty"`
}

// History carries the day's persisted messages and the user's read position.
// LastReadID is null when the user has never acknowledged a message.
type History struct {
	Type       string            `json:"type"`
	Messages   []chatlog.Message `json:"messages"`
	LastReadID *int64            `json:"last_read_id"`
}

// UserList carries the usernames currently attached to the chat registry.
type UserList struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// PrivateRoom is the outbound shape of a delivered direct message.
type PrivateRoom struct {
	Type     string `json:"type"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Message  string `json:"message"`
}

// Announcement is an outbound notice-channel frame.
type Announcement struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// Availability is the reply of the nickname-check endpoint. It deliberately
// carries no type discriminator.
type Availability struct {
	Available bool `json:"available"`
}

// NewHistory builds a history frame. lastRead is included only when known.
func NewHistory(messages []chatlog.Message, lastRead int64, known bool) History {
	h := History{Type: TypeHistory, Messages: messages}
	if h.Messages == nil {
		h.Messages = []chatlog.Message{}
	}
	if known {
		id := lastRead
		h.LastReadID = &id
	}
	return h
}

// NewUserList builds a user_list frame.
func NewUserList(users []string) UserList {
	if users == nil {
		users = []string{}
	}
	return UserList{Type: TypeUserList, Users: users}
}

// NewPrivateRoom builds an outbound private_room frame.
func NewPrivateRoom(sender, receiver, message string) PrivateRoom {
	return PrivateRoom{Type: TypePrivateRoom, Sender: sender, Receiver: receiver, Message: message}
}

// NewAnnouncement builds an outbound announcement frame.
func NewAnnouncement(sender, message string) Announcement {
	return Announcement{Type: TypeAnnouncement, Sender: sender, Message: message}
}
