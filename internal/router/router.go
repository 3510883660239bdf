// Package router implements the protocol state machine: it classifies each
// inbound frame and drives the message log, the read-position store, the
// reply oracle, and the connection registries to produce outbound frames.
package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lanchat/relay/internal/chatlog"
	"github.com/lanchat/relay/internal/observability"
	"github.com/lanchat/relay/internal/oracle"
	"github.com/lanchat/relay/internal/protocol"
	"github.com/lanchat/relay/internal/registry"
)

// OracleSender is the sender name stamped on reply-oracle frames.
const OracleSender = "GPT"

// oracleThinking is the placeholder text shown while an answer is generated.
// The client renders the blinking effect.
const oracleThinking = "Generating answer..."

// Store is the persistence surface the router and the session lifecycle
// depend on. *chatlog.Store satisfies it; tests substitute in-memory fakes.
type Store interface {
	Append(ctx context.Context, sender, text string) (int64, error)
	ListByDate(ctx context.Context, day time.Time) ([]chatlog.Message, error)
	LastReadID(ctx context.Context, username string) (int64, bool, error)
	SetLastReadID(ctx context.Context, username string, id int64) error
}

// Deps carries the collaborators a Router drives.
type Deps struct {
	Chat          *registry.Registry
	Notice        *registry.Registry
	Log           Store
	Oracle        oracle.Oracle
	OracleProfile string // optional base64 avatar stamped on oracle frames
	Logger        *slog.Logger
	Metrics       *observability.Metrics
}

// Router routes classified frames. All methods are safe for concurrent use;
// per-connection ordering is the caller's receive loop invoking Handle
// synchronously, one frame at a time.
type Router struct {
	chat          *registry.Registry
	notice        *registry.Registry
	log           Store
	oracle        oracle.Oracle
	oracleProfile string
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// New creates a router. If Logger is nil, slog.Default() is used.
func New(deps Deps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		chat:          deps.Chat,
		notice:        deps.Notice,
		log:           deps.Log,
		oracle:        deps.Oracle,
		oracleProfile: deps.OracleProfile,
		logger:        logger,
		metrics:       deps.Metrics,
	}
}

// pendingReply correlates an oracle placeholder frame with its eventual
// answer inside one requester's view. It is never broadcast and never
// persisted.
type pendingReply struct {
	id   string
	conn registry.Conn
}

// send delivers an oracle frame tagged with the correlation id to the
// requester only.
func (p pendingReply) send(r *Router, text string) error {
	return p.conn.Send(protocol.Message{
		Type:    protocol.TypeMessage,
		Sender:  OracleSender,
		Message: text,
		Profile: r.oracleProfile,
		ReplyID: p.id,
	})
}

// Handle processes one raw frame received from username's connection.
// It never returns an error: every failure mode is either logged and dropped
// or surfaced to the user as ordinary chat content.
func (r *Router) Handle(ctx context.Context, username string, conn registry.Conn, raw []byte) {
	frame, err := protocol.Classify(raw)
	if err != nil {
		r.countFrame("malformed")
		r.logger.Debug("dropping malformed frame", "username", username, "error", err)
		return
	}

	switch f := frame.(type) {
	case nil:
		r.countFrame("blank")
	case protocol.PrivateFrame:
		r.countFrame("private")
		r.handlePrivate(f)
	case protocol.ReadPositionFrame:
		r.countFrame("read_position")
		r.handleReadPosition(ctx, f)
	case protocol.AnnouncementFrame:
		r.countFrame("announcement")
		r.handleAnnouncement(ctx, username, f)
	case protocol.OracleFrame:
		r.countFrame("oracle")
		r.handleOracle(ctx, username, conn, f)
	case protocol.PlainFrame:
		r.countFrame("plain")
		r.handlePlain(ctx, username, f)
	}
}

// handlePrivate delivers a direct message to the receiver and echoes it to
// the sender. The two deliveries are independent; an absent or unreachable
// party is not an error.
func (r *Router) handlePrivate(f protocol.PrivateFrame) {
	out := protocol.NewPrivateRoom(f.Sender, f.Receiver, f.Message)
	for _, name := range []string{f.Receiver, f.Sender} {
		conn, ok := r.chat.Get(name)
		if !ok {
			continue
		}
		if err := conn.Send(out); err != nil {
			r.logger.Warn("private delivery failed", "to", name, "error", err)
		}
	}
}

// handleReadPosition persists the user's read position. A store failure is
// logged and does not affect the connection.
func (r *Router) handleReadPosition(ctx context.Context, f protocol.ReadPositionFrame) {
	if err := r.log.SetLastReadID(ctx, f.Username, f.MessageID); err != nil {
		r.countStoreError("set_read")
		r.logger.Error("failed to save read position",
			"username", f.Username, "message_id", f.MessageID, "error", err)
	}
}

// handleAnnouncement persists the original message and fans the stripped text
// out to every notice-registry entry. Recipients whose send fails are
// detached from the notice registry after the loop completes.
func (r *Router) handleAnnouncement(ctx context.Context, username string, f protocol.AnnouncementFrame) {
	if _, err := r.log.Append(ctx, username, f.Raw); err != nil {
		r.countStoreError("append")
		r.logger.Error("failed to persist announcement", "sender", username, "error", err)
	}

	out := protocol.NewAnnouncement(username, f.Message)
	var failed []registry.Entry
	for _, entry := range r.notice.All() {
		if err := entry.Conn.Send(out); err != nil {
			r.countDelivery("notice", "failed")
			r.logger.Warn("announcement delivery failed", "to", entry.Username, "error", err)
			failed = append(failed, entry)
			continue
		}
		r.countDelivery("notice", "sent")
	}
	// Prune by identity: the snapshot may be stale, and a username whose send
	// failed can already hold a fresh connection that must survive.
	for _, e := range failed {
		r.notice.DetachConn(e.Username, e.Conn)
	}
}

// handleOracle answers a reply-oracle query. The requester first receives a
// placeholder frame carrying a fresh correlation id, then the answer frame
// with the same id. Nothing is persisted and nothing reaches any other
// connection; oracle failures arrive as the answer text itself.
func (r *Router) handleOracle(ctx context.Context, username string, conn registry.Conn, f protocol.OracleFrame) {
	reply := pendingReply{
		id:   "gpt_" + uuid.NewString()[:8],
		conn: conn,
	}

	if err := reply.send(r, oracleThinking); err != nil {
		r.logger.Warn("oracle placeholder delivery failed", "username", username, "error", err)
		return
	}

	answer := r.oracle.Ask(ctx, f.Prompt)

	if err := reply.send(r, answer); err != nil {
		r.logger.Warn("oracle answer delivery failed",
			"username", username, "reply_id", reply.id, "error", err)
	}
}

// handlePlain persists the message and broadcasts it to every chat-registry
// entry, the sender included. Per-recipient failures never abort the loop.
func (r *Router) handlePlain(ctx context.Context, username string, f protocol.PlainFrame) {
	id, err := r.log.Append(ctx, username, f.Message)
	if err != nil {
		r.countStoreError("append")
		r.logger.Error("failed to persist message", "sender", username, "error", err)
		return
	}

	out := protocol.Message{
		Type:    protocol.TypeMessage,
		Sender:  username,
		Message: f.Message,
		Profile: f.Profile,
		ID:      id,
		File:    f.File,
	}
	for _, entry := range r.chat.All() {
		if err := entry.Conn.Send(out); err != nil {
			r.countDelivery("chat", "failed")
			r.logger.Warn("broadcast delivery failed", "to", entry.Username, "error", err)
			continue
		}
		r.countDelivery("chat", "sent")
	}
}

// BroadcastUserList sends the current chat membership to every chat
// connection. Recipients whose send fails are detached after the loop, so a
// dead transport is pruned at the latest on the next membership change.
func (r *Router) BroadcastUserList() {
	out := protocol.NewUserList(r.chat.Usernames())
	var failed []registry.Entry
	for _, entry := range r.chat.All() {
		if err := entry.Conn.Send(out); err != nil {
			r.countDelivery("chat", "failed")
			r.logger.Warn("user list delivery failed", "to", entry.Username, "error", err)
			failed = append(failed, entry)
			continue
		}
		r.countDelivery("chat", "sent")
	}
	for _, e := range failed {
		r.chat.DetachConn(e.Username, e.Conn)
	}
}

func (r *Router) countFrame(kind string) {
	if r.metrics != nil {
		r.metrics.FramesRouted.WithLabelValues(kind).Inc()
	}
}

func (r *Router) countDelivery(reg, status string) {
	if r.metrics != nil {
		r.metrics.BroadcastDeliveries.WithLabelValues(reg, status).Inc()
	}
}

func (r *Router) countStoreError(op string) {
	if r.metrics != nil {
		r.metrics.StoreErrors.WithLabelValues(op).Inc()
	}
}
