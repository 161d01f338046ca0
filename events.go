package main

import (
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectProfilesChanged carries the user ID of a changed profile.
const SubjectProfilesChanged = "profiles.changed"

// ProfileEvents is the change feed the deck watcher subscribes to. Every
// successful profile write (and account deletion) publishes the affected
// user ID.
type ProfileEvents interface {
	PublishChanged(userID string) error
	SubscribeChanged(handler func(userID string)) error
	Close()
}

type natsEvents struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

// NewNATSEvents connects to the NATS server at url and returns the change
// feed backed by it.
func NewNATSEvents(url string) (ProfileEvents, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &natsEvents{conn: conn}, nil
}

func (e *natsEvents) PublishChanged(userID string) error {
	return e.conn.Publish(SubjectProfilesChanged, []byte(userID))
}

func (e *natsEvents) SubscribeChanged(handler func(userID string)) error {
	sub, err := e.conn.Subscribe(SubjectProfilesChanged, func(msg *nats.Msg) {
		handler(string(msg.Data))
	})
	if err != nil {
		return err
	}
	e.subs = append(e.subs, sub)
	return nil
}

func (e *natsEvents) Close() {
	for _, sub := range e.subs {
		_ = sub.Unsubscribe()
	}
	if err := e.conn.Drain(); err != nil {
		log.Println("NATS drain:", err)
	}
}

// localEvents is the in-process fallback used when no NATS URL is
// configured, and by tests. Handlers run synchronously on Publish.
type localEvents struct {
	mu       sync.RWMutex
	handlers []func(string)
}

func NewLocalEvents() ProfileEvents {
	return &localEvents{}
}

func (e *localEvents) PublishChanged(userID string) error {
	e.mu.RLock()
	handlers := e.handlers
	e.mu.RUnlock()
	for _, h := range handlers {
		h(userID)
	}
	return nil
}

func (e *localEvents) SubscribeChanged(handler func(userID string)) error {
	e.mu.Lock()
	e.handlers = append(e.handlers, handler)
	e.mu.Unlock()
	return nil
}

func (e *localEvents) Close() {}

// debouncer coalesces bursts of calls: fn runs once per quiet window
// instead of once per trigger. Trigger is safe for concurrent use.
type debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	wait  time.Duration
	fn    func()
}

func newDebouncer(wait time.Duration, fn func()) *debouncer {
	return &debouncer{wait: wait, fn: fn}
}

func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, d.fn)
}

func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}
