package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/scroll"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/session"
)

// inbound is one client command frame.
type inbound struct {
	Type          string          `json:"type"`
	SurfaceID     string          `json:"surface_id,omitempty"`
	Text          string          `json:"text,omitempty"`
	MessageID     string          `json:"message_id,omitempty"`
	Emoji         string          `json:"emoji,omitempty"`
	Peer          string          `json:"peer,omitempty"`
	Name          string          `json:"name,omitempty"`
	Mime          string          `json:"mime,omitempty"`
	Data          []byte          `json:"data,omitempty"`
	Metrics       *scroll.Metrics `json:"metrics,omitempty"`
	ContentHeight float64         `json:"content_height,omitempty"`
	Amount        int64           `json:"amount,omitempty"`
	Currency      string          `json:"currency,omitempty"`
}

type Client struct {
	id   string
	log  *zap.SugaredLogger
	conn *websocket.Conn
	hub  *Hub
	sess *session.Session
	send chan session.Event

	closeOnce sync.Once
	sendMu    sync.Mutex
	closed    bool
}

// NewClient builds the client and its session; the session's emit sink is the
// client's buffered send channel (frames are dropped rather than blocking the
// engine when the socket is slow).
func NewClient(log *zap.SugaredLogger, conn *websocket.Conn, hub *Hub, user string, deps session.Deps) *Client {
	c := &Client{
		id:   uuid.NewString(),
		log:  log.With("conn", user),
		conn: conn,
		hub:  hub,
		send: make(chan session.Event, 256),
	}
	c.sess = session.New(user, deps, c.emit)
	return c
}

func (c *Client) emit(ev session.Event) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- ev:
	default:
		c.log.Warnw("outbound frame dropped", "type", ev.Type)
	}
}

// Run services the connection until it closes. Called from the websocket
// handler goroutine.
func (c *Client) Run() {
	c.hub.Add(c)
	defer func() {
		c.hub.Remove(c)
		c.close()
	}()

	go c.writePump()

	ctx := context.Background()
	if err := c.sess.Start(ctx); err != nil {
		c.log.Errorw("session start", "err", err)
	}
	c.readPump(ctx)
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.sess.Close()
		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()
		_ = c.conn.Close()
	})
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(1 << 22) // attachments arrive base64-encoded inline
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		c.dispatch(ctx, in)
	}
}

func (c *Client) dispatch(ctx context.Context, in inbound) {
	var err error
	switch in.Type {
	case "select":
		err = c.sess.Select(ctx, in.SurfaceID)
	case "draft":
		c.sess.SetDraft(in.Text)
	case "send":
		err = c.sess.Send(ctx)
	case "attach":
		err = c.sess.Attach(in.Name, in.Mime, in.Data)
	case "clear_attachment":
		c.sess.ClearAttachment()
	case "voice":
		err = c.sess.SendVoice(ctx, in.Mime, in.Data)
	case "peer_payment":
		currency := in.Currency
		if currency == "" {
			currency = "MR"
		}
		err = c.sess.SendPeerPayment(ctx, in.Amount, currency)
	case "edit":
		err = c.sess.EditMessage(ctx, in.MessageID, in.Text)
	case "delete":
		err = c.sess.DeleteMessage(ctx, in.MessageID)
	case "reply":
		err = c.sess.SetReply(in.MessageID)
	case "clear_reply":
		c.sess.ClearReply()
	case "reaction":
		err = c.sess.ToggleReaction(ctx, in.MessageID, in.Emoji)
	case "scroll":
		if in.Metrics != nil {
			err = c.sess.ObserveScroll(ctx, *in.Metrics)
		}
	case "rendered":
		c.sess.Rendered(in.ContentHeight)
	case "start_conversation":
		err = c.sess.StartConversation(ctx, in.Peer)
	default:
		c.log.Debugw("unknown frame", "type", in.Type)
	}
	if err != nil {
		c.log.Debugw("client command failed", "type", in.Type, "err", err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
