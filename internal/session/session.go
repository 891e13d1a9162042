// Package session owns one connected client's view of the chat system: the
// surface directory, the active surface's message store, composer, scroll
// controller, typing tracker, and assist sidecar. All of them are constructed
// on surface selection and torn down on switch or disconnect; nothing lives
// at process scope.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/apperr"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/assist"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/backend"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/backend/s3store"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/chat"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/composer"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/engine"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/scroll"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/typing"
)

// EventBus is the durable event pipeline (kafka in production).
type EventBus interface {
	PublishEvent(ctx context.Context, ev backend.Event) error
	PublishAudit(ctx context.Context, key string, payload any) error
}

// TypingBroadcaster mirrors typing signals to peers (redis in production).
type TypingBroadcaster interface {
	MarkTyping(ctx context.Context, surfaceID, userID string, window time.Duration) error
	ClearTyping(ctx context.Context, surfaceID, userID string) error
}

type Deps struct {
	Log       *zap.SugaredLogger
	Store     backend.Store
	Feed      backend.Feed
	Blobs     backend.BlobStore
	Bus       EventBus
	Broadcast TypingBroadcaster
	Completer assist.Completer

	PageSize           int64
	RetentionCap       int
	SweepEvery         time.Duration
	TypingWindow       time.Duration
	MaxAttachmentBytes int64
	AssistOpts         assist.Options
}

// surfaceView bundles everything whose lifetime is one surface selection.
type surfaceView struct {
	surface   chat.Surface
	msgs      *engine.MessageStore
	reactions *engine.Reactions
	comp      *composer.Composer
	scroll    *scroll.Controller
	typing    *typing.Tracker
	sidecar   *assist.Sidecar

	ctx     context.Context
	cancel  context.CancelFunc
	release func()
}

type Session struct {
	log         *zap.SugaredLogger
	user        string
	deps        Deps
	dir         *engine.Directory
	emit        func(Event)
	thumbnailer func([]byte) ([]byte, error)

	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	cur *surfaceView
}

func New(user string, deps Deps, emit func(Event)) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	if emit == nil {
		emit = func(Event) {}
	}
	return &Session{
		log:         deps.Log.With("user", user),
		user:        user,
		deps:        deps,
		dir:         engine.NewDirectory(deps.Store, user),
		emit:        emit,
		thumbnailer: s3store.Thumbnail,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start loads the directory and pushes it to the client.
func (s *Session) Start(ctx context.Context) error {
	if err := s.dir.Load(ctx); err != nil {
		s.notice("could not load chats")
		return err
	}
	s.emitSurfaces()
	return nil
}

func (s *Session) emitSurfaces() {
	surfaces := s.dir.Surfaces()
	infos := make([]SurfaceInfo, len(surfaces))
	for i, sf := range surfaces {
		infos[i] = surfaceInfo(sf, s.user)
	}
	s.emit(Event{Type: EvSurfaces, Surfaces: infos})
}

// Select switches the active surface: the previous surface's in-flight work
// is canceled, its feed subscription released, and a fresh view is built with
// empty pagination state.
func (s *Session) Select(ctx context.Context, surfaceID string) error {
	surface, err := s.dir.Select(surfaceID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.cur
	s.cur = nil
	s.mu.Unlock()
	if prev != nil {
		prev.teardown()
	}

	view, err := s.buildView(surface)
	if err != nil {
		s.notice("could not open chat")
		return err
	}

	if err := view.msgs.LoadInitial(view.ctx); err != nil {
		view.teardown()
		s.notice("could not load messages")
		return err
	}
	if err := view.reactions.Load(view.ctx, view.msgs.MessageIDs()); err != nil {
		s.log.Warnw("reaction load failed", "surface", surfaceID, "err", err)
	}

	s.mu.Lock()
	s.cur = view
	s.mu.Unlock()

	s.emit(Event{
		Type:      EvSnapshot,
		SurfaceID: surfaceID,
		Messages:  view.msgs.Snapshot(),
		NoMore:    view.msgs.NoMoreHistory(),
	})
	return nil
}

func (s *Session) buildView(surface chat.Surface) (*surfaceView, error) {
	ctx, cancel := context.WithCancel(s.ctx)
	_, assistant := surface.(chat.Assistant)

	var rowStore backend.Store
	if !assistant {
		rowStore = s.deps.Store
	}
	msgs := engine.NewMessageStore(s.log, rowStore, surface.SurfaceID(), s.user, s.deps.PageSize, s.deps.RetentionCap)
	reactions := engine.NewReactions(rowStore, surface.SurfaceID(), s.user, msgs.ProfileName)

	view := &surfaceView{
		surface:   surface,
		msgs:      msgs,
		reactions: reactions,
		scroll:    scroll.NewController(0, 0),
		typing:    typing.NewTracker(s.deps.TypingWindow),
		ctx:       ctx,
		cancel:    cancel,
		release:   func() {},
	}
	view.comp = composer.New(s.log, surface.SurfaceID(), &sender{s: s, view: view}, &commands{s: s, view: view}, &typingSignals{s: s}, s.deps.MaxAttachmentBytes)
	view.sidecar = assist.New(s.log, s.deps.Completer, s.deps.AssistOpts, assist.Callbacks{
		OnSuggestions: func(texts []string) {
			s.emit(Event{Type: EvSuggestions, SurfaceID: surface.SurfaceID(), Suggestions: texts})
		},
		OnVerdict: func(v assist.Verdict) {
			s.emit(Event{Type: EvVerdict, SurfaceID: surface.SurfaceID(), Verdict: &v})
			if s.deps.Bus != nil && !v.Appropriate {
				_ = s.deps.Bus.PublishAudit(context.Background(), surface.SurfaceID(), map[string]any{
					"user": s.user, "surface": surface.SurfaceID(), "verdict": v,
				})
			}
		},
	})

	if !assistant && s.deps.Feed != nil {
		ch, release, err := s.deps.Feed.Subscribe(ctx, surface.SurfaceID())
		if err != nil {
			cancel()
			return nil, err
		}
		view.release = release
		go s.consumeFeed(view, ch)
	}
	go s.sweepLoop(view)
	return view, nil
}

func (v *surfaceView) teardown() {
	v.cancel()
	v.release()
	v.comp.Close()
	v.sidecar.Close()
}

// consumeFeed applies live events to the view that subscribed. A surface
// switch cancels the view's context and releases the subscription, so late
// events never reach the newly selected surface's list.
func (s *Session) consumeFeed(view *surfaceView, ch <-chan backend.Event) {
	for {
		select {
		case <-view.ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.applyLive(view, ev)
		}
	}
}

func (s *Session) applyLive(view *surfaceView, ev backend.Event) {
	switch ev.Op {
	case backend.OpMessageInserted:
		if ev.Message == nil {
			return
		}
		view.msgs.ApplyLiveInsert(view.ctx, *ev.Message)
		own := ev.Message.AuthorID == s.user
		d := view.scroll.OnAppend(own)
		s.emit(Event{
			Type:       EvAppended,
			SurfaceID:  ev.SurfaceID,
			Message:    ev.Message,
			AutoScroll: d.AutoScroll,
			NotifyNew:  d.NotifyNew,
		})
	case backend.OpMessageUpdated:
		if ev.Message == nil {
			return
		}
		view.msgs.ApplyLiveUpdate(*ev.Message)
		if m, ok := view.msgs.Lookup(ev.Message.ID); ok {
			s.emit(Event{Type: EvUpdated, SurfaceID: ev.SurfaceID, Message: &m})
		}
	case backend.OpMessageDeleted:
		view.msgs.ApplyLiveDelete(ev.MessageID)
		s.emit(Event{Type: EvDeleted, SurfaceID: ev.SurfaceID, MessageID: ev.MessageID})
	case backend.OpReactionAdded, backend.OpReactionRemoved:
		if ev.Reaction == nil {
			return
		}
		if err := view.msgs.EnsureProfiles(view.ctx, []string{ev.Reaction.UserID}); err != nil {
			s.log.Debugw("reactor profile lookup failed", "err", err)
		}
		view.reactions.ApplyLive(ev.Op, *ev.Reaction)
		s.emit(Event{
			Type:      EvReactions,
			SurfaceID: ev.SurfaceID,
			MessageID: ev.Reaction.MessageID,
			Reactions: view.reactions.Groups(ev.Reaction.MessageID),
		})
	case backend.OpTypingStarted:
		if ev.Typing == nil || ev.Typing.UserID == s.user {
			return
		}
		view.typing.Mark(ev.SurfaceID, ev.Typing.UserID)
		s.emit(Event{Type: EvTyping, SurfaceID: ev.SurfaceID, Typing: view.typing.Active(ev.SurfaceID)})
	case backend.OpTypingStopped:
		if ev.Typing == nil || ev.Typing.UserID == s.user {
			return
		}
		view.typing.Clear(ev.SurfaceID, ev.Typing.UserID)
		s.emit(Event{Type: EvTyping, SurfaceID: ev.SurfaceID, Typing: view.typing.Active(ev.SurfaceID)})
	}
}

// sweepLoop enforces the retention cap and drops stale typing entries.
func (s *Session) sweepLoop(view *surfaceView) {
	every := s.deps.SweepEvery
	if every <= 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-view.ctx.Done():
			return
		case <-ticker.C:
			view.typing.Sweep()
			if dropped := view.msgs.Sweep(); dropped > 0 {
				s.emit(Event{
					Type:      EvSnapshot,
					SurfaceID: view.surface.SurfaceID(),
					Messages:  view.msgs.Snapshot(),
					NoMore:    view.msgs.NoMoreHistory(),
				})
			}
		}
	}
}

// SetDraft updates the composer text and feeds the sidecar. The sidecar
// observes the draft independently; it never touches the send path.
func (s *Session) SetDraft(text string) {
	view := s.current()
	if view == nil {
		return
	}
	view.comp.SetText(text)
	view.sidecar.ObserveDraft(text, surfaceInfo(view.surface, s.user).Name)
}

func (s *Session) Send(ctx context.Context) error {
	view := s.current()
	if view == nil {
		return apperr.ErrNoSurface
	}
	if err := view.comp.Send(ctx); err != nil {
		if !errors.Is(err, apperr.ErrEmptyDraft) {
			s.notice("message not sent")
		}
		return err
	}
	return nil
}

func (s *Session) Attach(name, mime string, data []byte) error {
	view := s.current()
	if view == nil {
		return apperr.ErrNoSurface
	}
	if err := view.comp.Attach(name, mime, data); err != nil {
		s.notice("attachment rejected")
		return err
	}
	return nil
}

func (s *Session) ClearAttachment() {
	if view := s.current(); view != nil {
		view.comp.ClearAttachment()
	}
}

// SendVoice sends a recorded clip straight through, bypassing the staged
// draft.
func (s *Session) SendVoice(ctx context.Context, mime string, data []byte) error {
	view := s.current()
	if view == nil {
		return apperr.ErrNoSurface
	}
	if err := view.comp.SendVoice(ctx, mime, data); err != nil {
		s.notice("voice message not sent")
		return err
	}
	return nil
}

// SendPeerPayment emits a peer-payment message on the current surface.
func (s *Session) SendPeerPayment(ctx context.Context, amount int64, currency string) error {
	view := s.current()
	if view == nil {
		return apperr.ErrNoSurface
	}
	if amount <= 0 {
		return apperr.ErrBadRequest
	}
	if err := view.comp.SendPeerPayment(ctx, amount, currency); err != nil {
		s.notice("payment not sent")
		return err
	}
	return nil
}

// SetReply stages a reply target, denormalizing the snapshot from the held
// message so it survives the target scrolling out of the retained window.
func (s *Session) SetReply(messageID string) error {
	view := s.current()
	if view == nil {
		return apperr.ErrNoSurface
	}
	m, ok := view.msgs.Lookup(messageID)
	if !ok {
		return apperr.ErrNotFound
	}
	view.comp.SetReply(chat.ReplySnapshot{
		MessageID:  m.ID,
		AuthorID:   m.AuthorID,
		AuthorName: view.msgs.ProfileName(m.AuthorID),
		Body:       m.Body,
	})
	return nil
}

func (s *Session) ClearReply() {
	if view := s.current(); view != nil {
		view.comp.ClearReply()
	}
}

// EditMessage rewrites the body of the local user's own message. The edit
// reaches this session the same way it reaches everyone else: through the
// published update event.
func (s *Session) EditMessage(ctx context.Context, messageID, body string) error {
	view := s.current()
	if view == nil {
		return apperr.ErrNoSurface
	}
	if _, ok := view.surface.(chat.Assistant); ok {
		return apperr.ErrBadRequest
	}
	m, ok := view.msgs.Lookup(messageID)
	if !ok {
		return apperr.ErrNotFound
	}
	if m.AuthorID != s.user {
		return apperr.ErrUnauthorized
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return apperr.ErrEmptyDraft
	}
	editedAt := time.Now().UTC()
	if err := s.deps.Store.UpdateMessageBody(ctx, messageID, body, editedAt); err != nil {
		s.notice("edit failed")
		return err
	}
	m.Body = body
	m.EditedAt = &editedAt
	s.publishEvent(ctx, backend.Event{
		Op:        backend.OpMessageUpdated,
		SurfaceID: view.surface.SurfaceID(),
		Message:   &m,
	}, view)
	return nil
}

// DeleteMessage removes the local user's own message everywhere.
func (s *Session) DeleteMessage(ctx context.Context, messageID string) error {
	view := s.current()
	if view == nil {
		return apperr.ErrNoSurface
	}
	if _, ok := view.surface.(chat.Assistant); ok {
		return apperr.ErrBadRequest
	}
	if m, ok := view.msgs.Lookup(messageID); ok && m.AuthorID != s.user {
		return apperr.ErrUnauthorized
	}
	if err := s.deps.Store.DeleteMessage(ctx, messageID); err != nil {
		s.notice("delete failed")
		return err
	}
	s.publishEvent(ctx, backend.Event{
		Op:        backend.OpMessageDeleted,
		SurfaceID: view.surface.SurfaceID(),
		MessageID: messageID,
	}, view)
	return nil
}

// ToggleReaction flips the local user's reaction and publishes the change so
// other sessions converge via the feed.
func (s *Session) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	view := s.current()
	if view == nil {
		return apperr.ErrNoSurface
	}
	had := view.reactions.Has(messageID, emoji)
	if err := view.reactions.Toggle(ctx, messageID, emoji); err != nil {
		s.notice("reaction failed")
		return err
	}
	op := backend.OpReactionAdded
	if had {
		op = backend.OpReactionRemoved
	}
	s.publishEvent(ctx, backend.Event{
		Op:        op,
		SurfaceID: view.surface.SurfaceID(),
		Reaction: &chat.Reaction{
			MessageID: messageID,
			UserID:    s.user,
			Emoji:     emoji,
			SurfaceID: view.surface.SurfaceID(),
		},
	}, view)
	s.emit(Event{
		Type:      EvReactions,
		SurfaceID: view.surface.SurfaceID(),
		MessageID: messageID,
		Reactions: view.reactions.Groups(messageID),
	})
	return nil
}

// ObserveScroll folds in client viewport metrics and pages older history in
// when the reader nears the top. The prepend keeps the previously visible
// message anchored: the client reports its re-rendered height via Rendered
// and receives the corrected offset.
func (s *Session) ObserveScroll(ctx context.Context, m scroll.Metrics) error {
	view := s.current()
	if view == nil {
		return apperr.ErrNoSurface
	}
	if !view.scroll.Observe(m, !view.msgs.NoMoreHistory(), false) {
		return nil
	}
	view.scroll.BeforePrepend(m)
	if err := view.msgs.LoadOlder(view.ctx); err != nil {
		s.notice("could not load history")
		return err
	}
	if err := view.reactions.Load(view.ctx, view.msgs.MessageIDs()); err != nil {
		s.log.Warnw("reaction load failed", "err", err)
	}
	s.emit(Event{
		Type:      EvPrepended,
		SurfaceID: view.surface.SurfaceID(),
		Messages:  view.msgs.Snapshot(),
		NoMore:    view.msgs.NoMoreHistory(),
	})
	return nil
}

// Rendered completes a prepend: given the client's new content height, emits
// the offset that keeps the pre-prepend anchor in place.
func (s *Session) Rendered(contentHeight float64) {
	view := s.current()
	if view == nil {
		return
	}
	offset := view.scroll.AfterPrepend(contentHeight)
	s.emit(Event{Type: EvSetScroll, SurfaceID: view.surface.SurfaceID(), Offset: &offset})
}

// StartConversation opens (or finds) the direct conversation with peer and
// selects it.
func (s *Session) StartConversation(ctx context.Context, peer string) error {
	conv, err := s.dir.StartConversation(ctx, peer)
	if err != nil {
		s.notice("could not start conversation")
		return err
	}
	s.emitSurfaces()
	return s.Select(ctx, conv.ID)
}

// Close tears the whole session down: active view, subscriptions, timers.
func (s *Session) Close() {
	s.mu.Lock()
	view := s.cur
	s.cur = nil
	s.mu.Unlock()
	if view != nil {
		view.teardown()
	}
	s.cancel()
}

func (s *Session) current() *surfaceView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

func (s *Session) notice(msg string) {
	s.emit(Event{Type: EvNotice, Notice: msg})
}

// publishEvent hands a row change to the durable pipeline, falling back to a
// direct feed publish when the bus is unavailable so the local surface still
// converges.
func (s *Session) publishEvent(ctx context.Context, ev backend.Event, view *surfaceView) {
	if s.deps.Bus != nil {
		if err := s.deps.Bus.PublishEvent(ctx, ev); err == nil {
			return
		} else {
			s.log.Errorw("event publish failed, applying locally", "op", ev.Op, "err", err)
		}
	}
	if s.deps.Feed != nil {
		if err := s.deps.Feed.Publish(ctx, ev.SurfaceID, ev); err == nil {
			return
		}
	}
	// last resort: apply to the local view only
	s.applyLive(view, ev)
}
