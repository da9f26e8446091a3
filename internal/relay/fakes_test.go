package relay

import (
	"context"
	"sync"
	"time"
)

// fakeLog keeps events in append order; reads scan newest first.
type fakeLog struct {
	mu        sync.Mutex
	events    []ChatEvent
	nextID    int64
	clock     time.Time
	appendErr error
	readErr   error
	lastLimit int
}

func newFakeLog() *fakeLog {
	return &fakeLog{clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeLog) Append(_ context.Context, ev *ChatEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	ev.ID = f.nextID
	ev.CreatedAt = f.clock
	f.events = append(f.events, *ev)
	return nil
}

// seed appends without going through the router.
func (f *fakeLog) seed(sender Sender, sessionID, chatID string, messageID int64) {
	ev := &ChatEvent{Sender: sender, Message: "seeded", SessionID: sessionID}
	if chatID != "" {
		ev.ExternalChatID = &chatID
	}
	if messageID != 0 {
		ev.ExternalMessageID = &messageID
	}
	_ = f.Append(context.Background(), ev)
}

func (f *fakeLog) latest(match func(ChatEvent) bool) (*ChatEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	for i := len(f.events) - 1; i >= 0; i-- {
		ev := f.events[i]
		if ev.SessionID != "" && match(ev) {
			return &ev, nil
		}
	}
	return nil, nil
}

func (f *fakeLog) LatestByExternalChatID(_ context.Context, chatID string) (*ChatEvent, error) {
	return f.latest(func(ev ChatEvent) bool {
		return ev.ExternalChatID != nil && *ev.ExternalChatID == chatID
	})
}

func (f *fakeLog) LatestByExternalMessageID(_ context.Context, chatID string, messageID int64) (*ChatEvent, error) {
	return f.latest(func(ev ChatEvent) bool {
		return ev.ExternalChatID != nil && *ev.ExternalChatID == chatID &&
			ev.ExternalMessageID != nil && *ev.ExternalMessageID == messageID
	})
}

func (f *fakeLog) LatestBySender(_ context.Context, sender Sender) (*ChatEvent, error) {
	return f.latest(func(ev ChatEvent) bool { return ev.Sender == sender })
}

func (f *fakeLog) ListBySession(_ context.Context, sessionID string, limit int) ([]ChatEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	if f.readErr != nil {
		return nil, f.readErr
	}
	var out []ChatEvent
	for _, ev := range f.events {
		if ev.SessionID == sessionID {
			out = append(out, ev)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeLog) bySender(sender Sender) []ChatEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ChatEvent
	for _, ev := range f.events {
		if ev.Sender == sender {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeSink struct {
	mu           sync.Mutex
	calls        int
	destinations []string
	texts        []string
	chatID       string
	err          error
	panicWith    any
}

func newFakeSink() *fakeSink {
	return &fakeSink{chatID: "42"}
}

func (s *fakeSink) Send(_ context.Context, destination string, text string) (*Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	s.calls++
	s.destinations = append(s.destinations, destination)
	s.texts = append(s.texts, text)
	if s.err != nil {
		return nil, s.err
	}
	return &Delivery{ChatID: s.chatID, MessageID: int64(100 + s.calls)}, nil
}

type fakeDeduper struct {
	seen map[string]bool
	err  error
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: map[string]bool{}}
}

func (d *fakeDeduper) Claim(_ context.Context, key string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

type published struct {
	sessionID string
	data      []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) PublishChatEvent(sessionID string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{sessionID: sessionID, data: data})
	return p.err
}

type fakeLimiter struct {
	allow bool
	err   error
	ids   []string
}

func (l *fakeLimiter) Allow(_ context.Context, identifier string) (bool, error) {
	l.ids = append(l.ids, identifier)
	return l.allow, l.err
}
