package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/apperr"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/backend"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/chat"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/composer"
)

// sender runs the full send pipeline for one surface view: optimistic insert
// first, then the media upload (when present), the durable write, and the
// event publish whose echo confirms the provisional entry.
type sender struct {
	s    *Session
	view *surfaceView
}

func (sn *sender) Send(ctx context.Context, d composer.Draft) error {
	if _, ok := sn.view.surface.(chat.Assistant); ok {
		return sn.sendAssistant(d)
	}

	optimistic := sn.view.msgs.InsertOptimistic(chat.Message{
		Body:    d.Body,
		Kind:    d.Kind,
		ReplyTo: d.Reply,
		Gift:    d.Gift,
	})
	dec := sn.view.scroll.OnAppend(true)
	sn.s.emit(Event{
		Type:       EvAppended,
		SurfaceID:  d.SurfaceID,
		Message:    &optimistic,
		AutoScroll: dec.AutoScroll,
	})

	media, err := sn.uploadMedia(ctx, d)
	if err != nil {
		sn.view.msgs.RemoveOptimistic(optimistic.ID)
		sn.s.emit(Event{Type: EvDeleted, SurfaceID: d.SurfaceID, MessageID: optimistic.ID})
		return err
	}

	persisted := &chat.Message{
		SurfaceID: d.SurfaceID,
		AuthorID:  sn.s.user,
		Body:      d.Body,
		Kind:      d.Kind,
		ReplyTo:   d.Reply,
		Media:     media,
		Gift:      d.Gift,
	}
	persisted, err = sn.s.deps.Store.InsertMessage(ctx, persisted)
	if err != nil {
		sn.view.msgs.RemoveOptimistic(optimistic.ID)
		sn.s.emit(Event{Type: EvDeleted, SurfaceID: d.SurfaceID, MessageID: optimistic.ID})
		return fmt.Errorf("persist message: %w", err)
	}

	sn.s.publishEvent(ctx, backend.Event{
		Op:        backend.OpMessageInserted,
		SurfaceID: d.SurfaceID,
		Message:   persisted,
	}, sn.view)
	return nil
}

func (sn *sender) uploadMedia(ctx context.Context, d composer.Draft) (*chat.MediaRef, error) {
	if d.Attachment == nil {
		return nil, nil
	}
	if sn.s.deps.Blobs == nil {
		return nil, apperr.ErrServiceUnavailable
	}
	att := d.Attachment
	key := fmt.Sprintf("%s/%s/%s-%s", d.SurfaceID, sn.s.user, uuid.NewString(), att.Name)
	url, err := sn.s.deps.Blobs.Upload(ctx, key, att.Mime, att.Data)
	if err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	ref := &chat.MediaRef{URL: url, Mime: att.Mime, Size: int64(len(att.Data))}
	if strings.HasPrefix(att.Mime, "image/") {
		if thumbURL, err := sn.s.uploadThumb(ctx, key, att.Data); err == nil {
			ref.ThumbURL = thumbURL
		} else {
			sn.s.log.Debugw("thumbnail skipped", "err", err)
		}
	}
	return ref, nil
}

// sendAssistant handles the non-persistent assistant surface: the user's
// message is confirmed locally and the reply is generated out of band.
func (sn *sender) sendAssistant(d composer.Draft) error {
	if d.Attachment != nil {
		return apperr.ErrAttachmentType
	}
	optimistic := sn.view.msgs.InsertOptimistic(chat.Message{Body: d.Body, Kind: chat.KindText})
	sn.s.emit(Event{Type: EvAppended, SurfaceID: d.SurfaceID, Message: &optimistic, AutoScroll: true})

	echo := chat.Message{
		ID:        "assistant-user-" + uuid.NewString(),
		SurfaceID: d.SurfaceID,
		AuthorID:  sn.s.user,
		Body:      d.Body,
		Kind:      chat.KindText,
		CreatedAt: time.Now().UTC(),
	}
	sn.view.msgs.ApplyLiveInsert(sn.view.ctx, echo)

	go func() {
		reply := "The assistant is unavailable right now."
		if sn.s.deps.Completer != nil {
			got, err := sn.s.deps.Completer.Complete(sn.view.ctx,
				"You are the bank's in-chat assistant. Answer briefly and plainly.",
				d.Body)
			if err != nil {
				sn.s.log.Debugw("assistant reply failed", "err", err)
			} else {
				reply = got
			}
		}
		m := chat.Message{
			ID:        "assistant-" + uuid.NewString(),
			SurfaceID: d.SurfaceID,
			AuthorID:  "assistant",
			Body:      reply,
			Kind:      chat.KindText,
			CreatedAt: time.Now().UTC(),
		}
		sn.view.msgs.ApplyLiveInsert(sn.view.ctx, m)
		dec := sn.view.scroll.OnAppend(false)
		sn.s.emit(Event{
			Type:       EvAppended,
			SurfaceID:  d.SurfaceID,
			Message:    &m,
			AutoScroll: dec.AutoScroll,
			NotifyNew:  dec.NotifyNew,
		})
	}()
	return nil
}

// uploadThumb stores the downscaled copy next to the original.
func (s *Session) uploadThumb(ctx context.Context, key string, data []byte) (string, error) {
	thumb, err := s.thumbnailer(data)
	if err != nil {
		return "", err
	}
	return s.deps.Blobs.Upload(ctx, key+".thumb.jpg", "image/jpeg", thumb)
}

// commands intercepts slash-prefixed composer input. Only the gift command is
// wired; anything else is rejected with a notice instead of being persisted.
type commands struct {
	s    *Session
	view *surfaceView
}

func (c *commands) Handle(ctx context.Context, name, args string) error {
	switch name {
	case "gift":
		amount, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
		if err != nil || amount <= 0 {
			return fmt.Errorf("gift amount %q: %w", args, apperr.ErrBadRequest)
		}
		sn := &sender{s: c.s, view: c.view}
		return sn.Send(ctx, composer.Draft{
			SurfaceID: c.view.surface.SurfaceID(),
			Kind:      chat.KindMoneyGift,
			Body:      args,
			Gift:      &chat.GiftMeta{Amount: amount, Currency: "MR", Status: chat.GiftPending},
		})
	default:
		return fmt.Errorf("command %q: %w", name, apperr.ErrBadRequest)
	}
}

// typingSignals bridges composer keystrokes to the broadcaster. Both legs are
// fire-and-forget; the send path never waits on them.
type typingSignals struct {
	s *Session
}

func (t *typingSignals) Typing(surfaceID string) {
	if t.s.deps.Broadcast == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := t.s.deps.Broadcast.MarkTyping(ctx, surfaceID, t.s.user, t.s.deps.TypingWindow); err != nil {
			t.s.log.Debugw("typing signal failed", "err", err)
		}
	}()
}

func (t *typingSignals) StoppedTyping(surfaceID string) {
	if t.s.deps.Broadcast == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := t.s.deps.Broadcast.ClearTyping(ctx, surfaceID, t.s.user); err != nil {
			t.s.log.Debugw("typing clear failed", "err", err)
		}
	}()
}
