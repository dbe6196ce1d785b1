package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hsportal/portal/internal/identity"
	"github.com/hsportal/portal/internal/profile"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	fn      func()
	stopped bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, when: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// Advance moves time forward and fires due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due, pending []*fakeTimer
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.when.After(c.now):
			t.stopped = true
			due = append(due, t)
		default:
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].when.Before(due[j].when) })
	for _, t := range due {
		t.fn()
	}
}

// Pending counts armed timers.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type fakeProvider struct {
	mu           sync.Mutex
	user         identity.Identity
	getUserErr   error
	refreshErr   error
	signInErr    error
	block        chan struct{}
	getUserCalls int
	refreshCalls int
	signOuts     []identity.SignOutScope
	listeners    map[int]func(identity.Event)
	nextID       int
	started      chan struct{}
}

func newFakeProvider(user identity.Identity) *fakeProvider {
	return &fakeProvider{user: user, listeners: make(map[int]func(identity.Event)), started: make(chan struct{}, 64)}
}

func (p *fakeProvider) set(user identity.Identity, getUserErr, refreshErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user, p.getUserErr, p.refreshErr = user, getUserErr, refreshErr
}

// hang makes GetUser block until release is called or the context ends.
func (p *fakeProvider) hang() (release func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan struct{})
	p.block = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (p *fakeProvider) calls() (getUser, refresh int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getUserCalls, p.refreshCalls
}

func (p *fakeProvider) GetSession(context.Context) (identity.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return identity.Session{User: p.user}, nil
}

func (p *fakeProvider) GetUser(ctx context.Context) (identity.Identity, error) {
	p.mu.Lock()
	p.getUserCalls++
	block, user, err := p.block, p.user, p.getUserErr
	p.mu.Unlock()
	p.started <- struct{}{}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return identity.Identity{}, identity.ErrProviderUnavailable
		}
	}
	return user, err
}

func (p *fakeProvider) RefreshSession(context.Context) (identity.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshCalls++
	if p.refreshErr != nil {
		return identity.Session{}, p.refreshErr
	}
	return identity.Session{AccessToken: "new", User: p.user}, nil
}

func (p *fakeProvider) SignInWithOAuth(_ context.Context, provider, redirectTo string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signInErr != nil {
		return "", p.signInErr
	}
	return "https://auth.example/authorize?provider=" + provider + "&redirect_to=" + redirectTo, nil
}

func (p *fakeProvider) ExchangeCode(_ context.Context, code string) (identity.Session, error) {
	if code != "good" {
		return identity.Session{}, identity.ErrNoSession
	}
	p.mu.Lock()
	s := identity.Session{AccessToken: "a", User: p.user}
	p.mu.Unlock()
	p.emit(identity.Event{Type: identity.EventSignedIn, Session: &s})
	return s, nil
}

func (p *fakeProvider) SignOut(_ context.Context, scope identity.SignOutScope) error {
	p.mu.Lock()
	p.signOuts = append(p.signOuts, scope)
	p.mu.Unlock()
	p.emit(identity.Event{Type: identity.EventSignedOut})
	return nil
}

func (p *fakeProvider) Subscribe(fn func(identity.Event)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *fakeProvider) emit(ev identity.Event) {
	p.mu.Lock()
	fns := make([]func(identity.Event), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]profile.Profile
	err      error
	lookups  int
}

func newFakeProfiles(ps ...profile.Profile) *fakeProfiles {
	f := &fakeProfiles{profiles: make(map[string]profile.Profile)}
	for _, p := range ps {
		f.profiles[p.ID] = p
	}
	return f
}

func (f *fakeProfiles) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeProfiles) Get(_ context.Context, id string) (profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.err != nil {
		return profile.Profile{}, f.err
	}
	p, ok := f.profiles[id]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	return p, nil
}
