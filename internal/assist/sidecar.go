// Package assist is the advisory sidecar: it observes composer drafts and
// produces up to three ranked continuation suggestions plus a content
// moderation verdict via an external completion service. It is never on the
// send path; every failure degrades to an empty or neutral result.
package assist

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	suggestMinChars  = 3
	suggestMaxChars  = 200
	moderateMinChars = 4
	moderateMaxChars = 500
	maxSuggestions   = 3
)

// Verdict is the moderation outcome. Neutral() is what callers see whenever
// the sidecar short-circuits or fails.
type Verdict struct {
	Appropriate bool    `json:"appropriate"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason,omitempty"`
}

func Neutral() Verdict {
	return Verdict{Appropriate: true, Confidence: 0.1}
}

// Callbacks deliver results. Nil callbacks are allowed.
type Callbacks struct {
	OnSuggestions func(texts []string)
	OnVerdict     func(v Verdict)
}

type Options struct {
	SuggestDebounce  time.Duration
	ModerateDebounce time.Duration
	CallSpacing      time.Duration
}

func (o *Options) defaults() {
	if o.SuggestDebounce <= 0 {
		o.SuggestDebounce = 500 * time.Millisecond
	}
	if o.ModerateDebounce <= 0 {
		o.ModerateDebounce = 800 * time.Millisecond
	}
	if o.CallSpacing <= 0 {
		o.CallSpacing = 200 * time.Millisecond
	}
}

type cacheKey struct {
	text    string
	context string
}

// Sidecar state is owned by the instance and discarded with it; one instance
// is constructed per session and torn down with Close.
type Sidecar struct {
	log       *zap.SugaredLogger
	completer Completer
	cb        Callbacks
	limiter   *rate.Limiter

	suggestDeb  *debouncer
	moderateDeb *debouncer

	mu       sync.Mutex
	sugCache map[cacheKey][]string
	modCache map[cacheKey]Verdict

	ctx    context.Context
	cancel context.CancelFunc
}

func New(log *zap.SugaredLogger, completer Completer, opts Options, cb Callbacks) *Sidecar {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Sidecar{
		log:         log,
		completer:   completer,
		cb:          cb,
		limiter:     rate.NewLimiter(rate.Every(opts.CallSpacing), 1),
		suggestDeb:  newDebouncer(opts.SuggestDebounce),
		moderateDeb: newDebouncer(opts.ModerateDebounce),
		sugCache:    make(map[cacheKey][]string),
		modCache:    make(map[cacheKey]Verdict),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ObserveDraft feeds both pipelines with the current draft text. surfaceHint
// is the context half of the cache key (surface name or peer), so the same
// text in a different surface is a distinct lookup.
func (s *Sidecar) ObserveDraft(text, surfaceHint string) {
	s.observeSuggest(text, surfaceHint)
	s.observeModerate(text, surfaceHint)
}

func (s *Sidecar) Close() {
	s.suggestDeb.cancel()
	s.moderateDeb.cancel()
	s.cancel()
}

func (s *Sidecar) observeSuggest(text, hint string) {
	n := len([]rune(text))
	if n < suggestMinChars || n > suggestMaxChars {
		s.suggestDeb.cancel()
		s.emitSuggestions(nil)
		return
	}
	key := cacheKey{text: text, context: hint}
	s.suggestDeb.schedule(func() {
		s.mu.Lock()
		cached, ok := s.sugCache[key]
		s.mu.Unlock()
		if ok {
			s.emitSuggestions(cached)
			return
		}
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
		texts := s.fetchSuggestions(key)
		s.mu.Lock()
		s.sugCache[key] = texts
		s.mu.Unlock()
		s.emitSuggestions(texts)
	})
}

func (s *Sidecar) observeModerate(text, hint string) {
	n := len([]rune(text))
	if n < moderateMinChars {
		s.moderateDeb.cancel()
		s.emitVerdict(Neutral())
		return
	}
	if n > moderateMaxChars {
		s.moderateDeb.cancel()
		s.emitVerdict(Verdict{Appropriate: true, Confidence: 0.2, Reason: "over length, assumed appropriate"})
		return
	}
	key := cacheKey{text: text, context: hint}
	s.moderateDeb.schedule(func() {
		s.mu.Lock()
		cached, ok := s.modCache[key]
		s.mu.Unlock()
		if ok {
			s.emitVerdict(cached)
			return
		}
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
		v := s.fetchVerdict(key)
		s.mu.Lock()
		s.modCache[key] = v
		s.mu.Unlock()
		s.emitVerdict(v)
	})
}

type suggestionPayload struct {
	Suggestions []string `json:"suggestions"`
}

func (s *Sidecar) fetchSuggestions(key cacheKey) []string {
	if s.completer == nil {
		return nil
	}
	const system = `You complete chat drafts. Reply with a JSON object: {"suggestions": ["...", "...", "..."]}, best continuation first, at most three, each a full replacement for the draft.`
	raw, err := s.completer.Complete(s.ctx, system, "Context: "+key.context+"\nDraft: "+key.text)
	if err != nil {
		s.log.Debugw("suggestion call failed", "err", err)
		return nil
	}
	var payload suggestionPayload
	if !decodeLoose(raw, &payload) {
		s.log.Debugw("suggestion payload unparseable")
		return nil
	}
	if len(payload.Suggestions) > maxSuggestions {
		payload.Suggestions = payload.Suggestions[:maxSuggestions]
	}
	return payload.Suggestions
}

func (s *Sidecar) fetchVerdict(key cacheKey) Verdict {
	if s.completer == nil {
		return Neutral()
	}
	const system = `You moderate chat messages. Reply with a JSON object: {"appropriate": bool, "confidence": 0..1, "reason": "..."}.`
	raw, err := s.completer.Complete(s.ctx, system, "Context: "+key.context+"\nMessage: "+key.text)
	if err != nil {
		s.log.Debugw("moderation call failed", "err", err)
		return Neutral()
	}
	var v Verdict
	if !decodeLoose(raw, &v) {
		s.log.Debugw("moderation payload unparseable")
		return Neutral()
	}
	return v
}

func (s *Sidecar) emitSuggestions(texts []string) {
	if s.cb.OnSuggestions != nil {
		s.cb.OnSuggestions(texts)
	}
}

func (s *Sidecar) emitVerdict(v Verdict) {
	if s.cb.OnVerdict != nil {
		s.cb.OnVerdict(v)
	}
}
