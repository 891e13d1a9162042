// Package composer holds one surface's draft state and runs the send state
// machine: Idle -> Composing -> Sending -> Idle, falling back to Composing
// with the draft intact when a send fails.
package composer

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/apperr"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/chat"
)

type State int

const (
	Idle State = iota
	Composing
	Sending
)

// Attachment is a validated, not-yet-uploaded media file.
type Attachment struct {
	Name string
	Mime string
	Data []byte
}

// Draft is the send payload handed to the Sender. The attachment upload, the
// optimistic insert and the durable write all happen behind Send.
type Draft struct {
	SurfaceID  string
	Kind       chat.MessageKind
	Body       string
	Attachment *Attachment
	Reply      *chat.ReplySnapshot
	Gift       *chat.GiftMeta
}

type Sender interface {
	Send(ctx context.Context, d Draft) error
}

// CommandHandler receives slash-prefixed input instead of the persist path.
type CommandHandler interface {
	Handle(ctx context.Context, name, args string) error
}

// TypingSignaler broadcasts typing state. Both calls are best effort and are
// never awaited by the send path.
type TypingSignaler interface {
	Typing(surfaceID string)
	StoppedTyping(surfaceID string)
}

const typingSettle = 3 * time.Second

type Composer struct {
	log       *zap.SugaredLogger
	surfaceID string
	sender    Sender
	commands  CommandHandler
	signaler  TypingSignaler
	maxBytes  int64

	mu          sync.Mutex
	state       State
	text        string
	attachment  *Attachment
	reply       *chat.ReplySnapshot
	typingTimer *time.Timer
}

func New(log *zap.SugaredLogger, surfaceID string, sender Sender, commands CommandHandler, signaler TypingSignaler, maxAttachmentBytes int64) *Composer {
	return &Composer{
		log:       log,
		surfaceID: surfaceID,
		sender:    sender,
		commands:  commands,
		signaler:  signaler,
		maxBytes:  maxAttachmentBytes,
	}
}

// SetText replaces the draft text. Every call restarts the typing settle
// timer; when it fires, a stopped-typing signal goes out.
func (c *Composer) SetText(text string) {
	c.mu.Lock()
	wasSending := c.state == Sending
	if !wasSending {
		c.text = text
		c.refreshStateLocked()
	}
	c.restartTypingLocked()
	c.mu.Unlock()

	if c.signaler != nil {
		c.signaler.Typing(c.surfaceID)
	}
}

// Attach validates and stages a media file. Nothing is uploaded until Send.
func (c *Composer) Attach(name, mime string, data []byte) error {
	if int64(len(data)) > c.maxBytes {
		return apperr.ErrAttachmentTooLarge
	}
	if !strings.HasPrefix(mime, "image/") && !strings.HasPrefix(mime, "video/") {
		return apperr.ErrAttachmentType
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Sending {
		return apperr.ErrSendInFlight
	}
	c.attachment = &Attachment{Name: name, Mime: mime, Data: data}
	c.refreshStateLocked()
	return nil
}

func (c *Composer) ClearAttachment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Sending {
		return
	}
	c.attachment = nil
	c.refreshStateLocked()
}

func (c *Composer) SetReply(r chat.ReplySnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply = &r
}

func (c *Composer) ClearReply() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply = nil
}

// Send dispatches the draft. Slash-prefixed text goes to the command handler
// instead of being persisted. A second Send while one is in flight fails
// immediately; on any failure the draft is preserved and the state returns to
// Composing for a manual retry.
func (c *Composer) Send(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Sending {
		c.mu.Unlock()
		return apperr.ErrSendInFlight
	}
	text := strings.TrimSpace(c.text)
	att := c.attachment
	reply := c.reply
	if text == "" && att == nil {
		c.mu.Unlock()
		return apperr.ErrEmptyDraft
	}
	c.state = Sending
	c.mu.Unlock()

	c.stopTypingNow()

	var err error
	if att == nil && strings.HasPrefix(text, "/") {
		name, args := splitCommand(text)
		err = c.commands.Handle(ctx, name, args)
	} else {
		err = c.sender.Send(ctx, Draft{
			SurfaceID:  c.surfaceID,
			Kind:       draftKind(att),
			Body:       text,
			Attachment: att,
			Reply:      reply,
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = Composing
		return err
	}
	c.text = ""
	c.attachment = nil
	c.reply = nil
	c.state = Idle
	return nil
}

// SendVoice sends a recorded clip, bypassing the staged-attachment checks
// (voice is audio, produced by the recorder, not a user file pick).
func (c *Composer) SendVoice(ctx context.Context, mime string, data []byte) error {
	c.mu.Lock()
	if c.state == Sending {
		c.mu.Unlock()
		return apperr.ErrSendInFlight
	}
	if int64(len(data)) > c.maxBytes {
		c.mu.Unlock()
		return apperr.ErrAttachmentTooLarge
	}
	c.state = Sending
	c.mu.Unlock()

	err := c.sender.Send(ctx, Draft{
		SurfaceID:  c.surfaceID,
		Kind:       chat.KindVoice,
		Attachment: &Attachment{Name: "voice", Mime: mime, Data: data},
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = Composing
		return err
	}
	c.refreshStateLocked()
	return nil
}

// SendPeerPayment sends a peer-to-peer payment message. The transfer itself
// is the durable store's concern; the composer only emits the message.
func (c *Composer) SendPeerPayment(ctx context.Context, amount int64, currency string) error {
	c.mu.Lock()
	if c.state == Sending {
		c.mu.Unlock()
		return apperr.ErrSendInFlight
	}
	c.state = Sending
	c.mu.Unlock()

	err := c.sender.Send(ctx, Draft{
		SurfaceID: c.surfaceID,
		Kind:      chat.KindPeerPayment,
		Gift:      &chat.GiftMeta{Amount: amount, Currency: currency, Status: chat.GiftPending},
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = Composing
		return err
	}
	c.refreshStateLocked()
	return nil
}

func (c *Composer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

func (c *Composer) Reply() *chat.ReplySnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reply
}

// Close stops the typing timer. Pending signals are dropped, not flushed.
func (c *Composer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
}

// refreshStateLocked derives Idle/Composing from draft content. Caller holds
// mu and state is not Sending.
func (c *Composer) refreshStateLocked() {
	if c.text != "" || c.attachment != nil {
		c.state = Composing
	} else {
		c.state = Idle
	}
}

func (c *Composer) restartTypingLocked() {
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(typingSettle, func() {
		if c.signaler != nil {
			c.signaler.StoppedTyping(c.surfaceID)
		}
	})
}

func (c *Composer) stopTypingNow() {
	c.mu.Lock()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.mu.Unlock()
	if c.signaler != nil {
		c.signaler.StoppedTyping(c.surfaceID)
	}
}

func draftKind(att *Attachment) chat.MessageKind {
	if att == nil {
		return chat.KindText
	}
	if strings.HasPrefix(att.Mime, "video/") {
		return chat.KindVideo
	}
	return chat.KindImage
}

func splitCommand(text string) (string, string) {
	rest := strings.TrimPrefix(text, "/")
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		return rest[:i], strings.TrimSpace(rest[i+1:])
	}
	return rest, ""
}
