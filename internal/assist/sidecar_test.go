package assist

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

var testLog = zap.NewNop().Sugar()

type scriptedCompleter struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
}

func (c *scriptedCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.reply, c.err
}

func (c *scriptedCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type collector struct {
	mu          sync.Mutex
	suggestions [][]string
	verdicts    []Verdict
	notify      chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 64)}
}

func (c *collector) callbacks() Callbacks {
	return Callbacks{
		OnSuggestions: func(texts []string) {
			c.mu.Lock()
			c.suggestions = append(c.suggestions, texts)
			c.mu.Unlock()
			c.notify <- struct{}{}
		},
		OnVerdict: func(v Verdict) {
			c.mu.Lock()
			c.verdicts = append(c.verdicts, v)
			c.mu.Unlock()
			c.notify <- struct{}{}
		},
	}
}

func (c *collector) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.notify:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for callback %d of %d", i+1, n)
		}
	}
}

func (c *collector) lastSuggestions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.suggestions) == 0 {
		return nil
	}
	return c.suggestions[len(c.suggestions)-1]
}

func (c *collector) lastVerdict() (Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.verdicts) == 0 {
		return Verdict{}, false
	}
	return c.verdicts[len(c.verdicts)-1], true
}

func fastOpts() Options {
	return Options{
		SuggestDebounce:  10 * time.Millisecond,
		ModerateDebounce: 10 * time.Millisecond,
		CallSpacing:      time.Millisecond,
	}
}

func TestShortDraftClearsResults(t *testing.T) {
	completer := &scriptedCompleter{}
	col := newCollector()
	s := New(testLog, completer, fastOpts(), col.callbacks())
	defer s.Close()

	s.ObserveDraft("hi", "general") // under both minimums
	col.wait(t, 2)

	if got := col.lastSuggestions(); got != nil {
		t.Errorf("suggestions = %v for a short draft, want nil", got)
	}
	v, ok := col.lastVerdict()
	if !ok || v != Neutral() {
		t.Errorf("verdict = %+v, want Neutral", v)
	}
	if completer.callCount() != 0 {
		t.Errorf("completer called %d times for a short draft, want 0", completer.callCount())
	}
}

func TestOverlongDraftShortCircuits(t *testing.T) {
	completer := &scriptedCompleter{}
	col := newCollector()
	s := New(testLog, completer, fastOpts(), col.callbacks())
	defer s.Close()

	s.ObserveDraft(strings.Repeat("x", 600), "general")
	col.wait(t, 2)

	if got := col.lastSuggestions(); got != nil {
		t.Errorf("suggestions = %v over length, want nil", got)
	}
	v, _ := col.lastVerdict()
	if !v.Appropriate {
		t.Errorf("over-length verdict = %+v, want assumed appropriate", v)
	}
	if completer.callCount() != 0 {
		t.Errorf("completer called %d times, want 0", completer.callCount())
	}
}

func TestDebounceCoalescesKeystrokes(t *testing.T) {
	completer := &scriptedCompleter{reply: `{"suggestions":["hello there"],"appropriate":true,"confidence":0.9}`}
	col := newCollector()
	s := New(testLog, completer, fastOpts(), col.callbacks())
	defer s.Close()

	// a burst of keystrokes inside the settle window; the first is still
	// under the moderation minimum and clears the verdict immediately
	s.ObserveDraft("hel", "general")
	s.ObserveDraft("hell", "general")
	s.ObserveDraft("hello", "general")
	col.wait(t, 3)

	// one suggestion call, one moderation call
	if got := completer.callCount(); got != 2 {
		t.Errorf("completer calls = %d, want 2 (one per pipeline)", got)
	}
	if got := col.lastSuggestions(); len(got) != 1 || got[0] != "hello there" {
		t.Errorf("suggestions = %v", got)
	}
}

func TestCacheHitSkipsCompleter(t *testing.T) {
	completer := &scriptedCompleter{reply: `{"suggestions":["again"],"appropriate":true,"confidence":0.8}`}
	col := newCollector()
	s := New(testLog, completer, fastOpts(), col.callbacks())
	defer s.Close()

	s.ObserveDraft("hello", "general")
	col.wait(t, 2)
	calls := completer.callCount()

	// identical draft in the same surface: both results come from cache
	s.ObserveDraft("hello", "general")
	col.wait(t, 2)
	if got := completer.callCount(); got != calls {
		t.Errorf("completer calls after cache hit = %d, want %d", got, calls)
	}

	// same text, different surface: a distinct key
	s.ObserveDraft("hello", "random")
	col.wait(t, 2)
	if got := completer.callCount(); got != calls+2 {
		t.Errorf("completer calls after new surface = %d, want %d", got, calls+2)
	}
}

func TestCompleterFailureDegrades(t *testing.T) {
	completer := &scriptedCompleter{err: errors.New("upstream 500")}
	col := newCollector()
	s := New(testLog, completer, fastOpts(), col.callbacks())
	defer s.Close()

	s.ObserveDraft("hello there", "general")
	col.wait(t, 2)

	if got := col.lastSuggestions(); got != nil {
		t.Errorf("suggestions = %v on failure, want nil", got)
	}
	v, _ := col.lastVerdict()
	if v != Neutral() {
		t.Errorf("verdict = %+v on failure, want Neutral", v)
	}
}

func TestGarbageReplyDegrades(t *testing.T) {
	completer := &scriptedCompleter{reply: "I am not JSON at all"}
	col := newCollector()
	s := New(testLog, completer, fastOpts(), col.callbacks())
	defer s.Close()

	s.ObserveDraft("hello there", "general")
	col.wait(t, 2)

	if got := col.lastSuggestions(); got != nil {
		t.Errorf("suggestions = %v for garbage reply, want nil", got)
	}
	v, _ := col.lastVerdict()
	if v != Neutral() {
		t.Errorf("verdict = %+v for garbage reply, want Neutral", v)
	}
}

func TestSuggestionsCappedAtThree(t *testing.T) {
	completer := &scriptedCompleter{reply: `{"suggestions":["a","b","c","d","e"],"appropriate":true,"confidence":1}`}
	col := newCollector()
	s := New(testLog, completer, fastOpts(), col.callbacks())
	defer s.Close()

	s.ObserveDraft("hello", "general")
	col.wait(t, 2)

	if got := col.lastSuggestions(); len(got) != 3 {
		t.Errorf("suggestions = %v, want capped at 3", got)
	}
}
