// Package session keeps a possibly-stale mirror of a browser's identity and
// profile, synchronized against the identity provider in the background.
//
// Each Cache runs one event loop. Requests, timer ticks, provider events and
// verification results are all delivered to that loop as events, so state
// transitions are serialized without locks. Provider calls run in their own
// goroutines and report back through the loop; duplicate verifications are
// allowed because every cache write is a full overwrite.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hsportal/portal/internal/identity"
	"github.com/hsportal/portal/internal/kv"
	"github.com/hsportal/portal/internal/profile"
)

var (
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("session: cache closed")
	// ErrNotSignedIn is returned when an operation needs a signed-in identity.
	ErrNotSignedIn = errors.New("session: not signed in")
)

type timerKind int

const (
	timerRefresh timerKind = iota
	timerRetry
	timerDeadline
	timerKinds
)

type armedTimer struct {
	timer Timer
	seq   uint64
}

type (
	resolveRequest struct {
		force bool
		reply chan Snapshot
	}
	snapshotRequest struct {
		reply chan Snapshot
	}
	verifyResult struct {
		epoch      int
		identity   identity.Identity
		hasProfile bool
		profile    *profile.Profile
		prompt     bool
		err        error
	}
	timerFired struct {
		kind timerKind
		seq  uint64
	}
	visibilityChanged struct {
		visible bool
	}
	providerEvent struct {
		event identity.Event
	}
	registrationDone struct {
		profile profile.Profile
		reply   chan error
	}
	signOutRequest struct {
		reply chan error
	}
	promptRaised struct{}
)

// Deps are the collaborators of a Cache.
type Deps struct {
	Store    kv.Store
	Provider identity.Provider
	Profiles ProfileLookup
	Clock    Clock
	Logger   *slog.Logger
	Observer Observer
}

// Cache is the session cache of one browser scope.
type Cache struct {
	store    kv.Store
	provider identity.Provider
	profiles ProfileLookup
	clock    Clock
	opts     Options
	logger   *slog.Logger
	observer Observer

	ctx     context.Context
	cancel  context.CancelFunc
	events  chan any
	done    chan struct{}
	stopped chan struct{}

	started     atomic.Bool
	startOnce   sync.Once
	closeOnce   sync.Once
	prompted    atomic.Bool
	unsubscribe func()

	subMu       sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSub     int

	// Everything below is owned by the event loop.
	state         State
	current       *Entry
	visible       bool
	attempts      int
	inflight      int
	epoch         int
	lastCheck     time.Time
	promptPending bool
	waiters       []chan Snapshot
	timers        [timerKinds]armedTimer
	timerSeq      uint64
}

// New builds a Cache. Call Start before using it.
func New(deps Deps, opts Options) *Cache {
	clock := deps.Clock
	if clock == nil {
		clock = RealClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		store:       deps.Store,
		provider:    deps.Provider,
		profiles:    deps.Profiles,
		clock:       clock,
		opts:        opts.withDefaults(),
		logger:      logger.With(slog.String("component", "session")),
		observer:    observer,
		ctx:         ctx,
		cancel:      cancel,
		events:      make(chan any, 32),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		subscribers: make(map[int]func(Snapshot)),
		state:       StateUnknown,
		visible:     true,
	}
}

// Start subscribes to provider events and runs the event loop until Close.
func (c *Cache) Start() {
	c.startOnce.Do(func() {
		c.started.Store(true)
		c.unsubscribe = c.provider.Subscribe(func(ev identity.Event) {
			c.post(providerEvent{event: ev})
		})
		go c.run()
	})
}

// Close stops every timer, drops the provider subscription and aborts
// in-flight provider calls. It is safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		if c.started.Load() {
			<-c.stopped
			if c.unsubscribe != nil {
				c.unsubscribe()
			}
		}
	})
}

// ReadCache returns the persisted entry if it exists and is younger than the
// expiry. Expired or undecodable entries are deleted.
func (c *Cache) ReadCache(ctx context.Context) (Entry, bool) {
	raw, err := c.store.Get(ctx, entryKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.logger.Warn("read session cache failed", slog.Any("error", err))
		}
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Identity.ID == "" || e.Timestamp.IsZero() {
		c.logger.Warn("discarding corrupt session cache entry")
		_ = c.store.Delete(ctx, entryKey)
		return Entry{}, false
	}
	if c.clock.Now().Sub(e.Timestamp) >= c.opts.Expiry {
		_ = c.store.Delete(ctx, entryKey)
		return Entry{}, false
	}
	return e, true
}

// WriteCache overwrites the persisted entry, stamped with the current time.
func (c *Cache) WriteCache(ctx context.Context, id identity.Identity, hasProfile bool, p *profile.Profile) error {
	_, err := c.write(ctx, id, hasProfile, p)
	return err
}

func (c *Cache) write(ctx context.Context, id identity.Identity, hasProfile bool, p *profile.Profile) (Entry, error) {
	e := Entry{Identity: id, HasProfile: hasProfile, Profile: p, Timestamp: c.clock.Now().UTC()}
	raw, err := json.Marshal(e)
	if err != nil {
		return e, err
	}
	if err := c.store.Set(ctx, entryKey, raw); err != nil {
		return e, fmt.Errorf("write session cache: %w", err)
	}
	return e, nil
}

// ClearCache removes the entry and the last-checked marker.
func (c *Cache) ClearCache(ctx context.Context) error {
	if err := c.store.Delete(ctx, entryKey, lastCheckKey); err != nil {
		return fmt.Errorf("clear session cache: %w", err)
	}
	return nil
}

// ResolveIdentity returns the best-known identity. Without force a cached
// identity is returned at once while verification continues in the
// background. With force the caller waits for verification, but never
// longer than VerifyTimeout; on timeout it gets whatever is cached.
func (c *Cache) ResolveIdentity(ctx context.Context, force bool) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := c.send(ctx, resolveRequest{force: force, reply: reply}); err != nil {
		return Snapshot{}, err
	}
	return c.await(ctx, reply)
}

// Current returns the in-memory snapshot without triggering verification.
func (c *Cache) Current(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := c.send(ctx, snapshotRequest{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	return c.await(ctx, reply)
}

// CheckProfileCompletion looks up the profile of id. A missing profile is
// authoritative and raises the registration prompt, at most once per Cache.
// Any other lookup failure falls back to the cached profile of the same
// identity.
func (c *Cache) CheckProfileCompletion(ctx context.Context, id identity.Identity) (bool, *profile.Profile) {
	has, p, prompt := c.checkProfile(ctx, id)
	if prompt {
		c.post(promptRaised{})
	}
	return has, p
}

// SetVisible reports a page visibility change.
func (c *Cache) SetVisible(visible bool) {
	c.post(visibilityChanged{visible: visible})
}

// CompleteRegistration records a freshly stored profile for the signed-in
// identity.
func (c *Cache) CompleteRegistration(ctx context.Context, p profile.Profile) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, registrationDone{profile: p, reply: reply}); err != nil {
		return err
	}
	return c.awaitErr(ctx, reply)
}

// SignOut revokes every session of the user at the provider and clears the
// cache. A failed remote revocation is logged; the local sign-out still
// happens.
func (c *Cache) SignOut(ctx context.Context) error {
	if err := c.provider.SignOut(ctx, identity.SignOutGlobal); err != nil {
		c.logger.Warn("remote sign-out failed", slog.Any("error", err))
	}
	reply := make(chan error, 1)
	if err := c.send(ctx, signOutRequest{reply: reply}); err != nil {
		return err
	}
	return c.awaitErr(ctx, reply)
}

// SignIn starts an OAuth sign-in and returns the provider URL the browser
// must visit.
func (c *Cache) SignIn(ctx context.Context, oauthProvider, redirectTo string) (string, error) {
	return c.provider.SignInWithOAuth(ctx, oauthProvider, redirectTo)
}

// ExchangeCode completes a sign-in. The provider's SIGNED_IN event moves the
// cache to verification.
func (c *Cache) ExchangeCode(ctx context.Context, code string) error {
	_, err := c.provider.ExchangeCode(ctx, code)
	return err
}

// Subscribe registers fn for every published snapshot. fn runs on the event
// loop and must not block or call back into the Cache.
func (c *Cache) Subscribe(fn func(Snapshot)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subscribers, id)
	}
}

func (c *Cache) send(ctx context.Context, ev any) error {
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Cache) post(ev any) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Cache) await(ctx context.Context, reply chan Snapshot) (Snapshot, error) {
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-c.done:
		return Snapshot{}, ErrClosed
	}
}

func (c *Cache) awaitErr(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Cache) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.done:
			for k := timerKind(0); k < timerKinds; k++ {
				c.disarm(k)
			}
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Cache) handle(ev any) {
	switch ev := ev.(type) {
	case resolveRequest:
		c.onResolve(ev)
	case snapshotRequest:
		ev.reply <- c.snapshot()
	case verifyResult:
		c.onVerified(ev)
	case timerFired:
		c.onTimer(ev)
	case visibilityChanged:
		c.onVisibility(ev.visible)
	case providerEvent:
		c.onProviderEvent(ev.event)
	case registrationDone:
		ev.reply <- c.onRegistration(ev.profile)
	case signOutRequest:
		err := c.signOutLocal()
		c.publish()
		ev.reply <- err
	case promptRaised:
		c.promptPending = true
		c.publish()
	}
}

func (c *Cache) onResolve(req resolveRequest) {
	if req.force {
		c.attempts = 0
	}

	switch c.state {
	case StateUnknown:
		c.lastCheck = c.readLastCheck()
		if entry, ok := c.ReadCache(c.ctx); ok {
			c.current = &entry
			c.setState(StateCacheHit)
			if !req.force {
				c.reply(req.reply)
				c.startVerify()
				return
			}
		} else {
			c.setState(StateVerifying)
		}
		c.wait(req.reply)
		c.startVerify()

	case StateVerifying:
		c.wait(req.reply)
		if req.force || c.inflight == 0 {
			c.startVerify()
		}

	default:
		if !req.force {
			c.reply(req.reply)
			return
		}
		c.wait(req.reply)
		c.startVerify()
	}
}

func (c *Cache) startVerify() {
	if c.current == nil && c.state != StateVerifying {
		c.setState(StateVerifying)
	}
	c.inflight++
	epoch := c.epoch
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.RequestTimeout)
		defer cancel()
		res := c.verify(ctx)
		res.epoch = epoch
		c.post(res)
	}()
}

// verify runs off the event loop: who-am-I, then one session refresh if that
// fails, then the profile lookup.
func (c *Cache) verify(ctx context.Context) verifyResult {
	id, err := c.provider.GetUser(ctx)
	if err != nil {
		c.logger.Debug("user lookup failed, refreshing session", slog.Any("error", err))
		s, rerr := c.provider.RefreshSession(ctx)
		if rerr != nil {
			return verifyResult{err: rerr}
		}
		id = s.User
		if id.ID == "" {
			if id, err = c.provider.GetUser(ctx); err != nil {
				return verifyResult{err: err}
			}
		}
	}
	has, p, prompt := c.checkProfile(ctx, id)
	return verifyResult{identity: id, hasProfile: has, profile: p, prompt: prompt}
}

func (c *Cache) checkProfile(ctx context.Context, id identity.Identity) (bool, *profile.Profile, bool) {
	p, err := c.profiles.Get(ctx, id.ID)
	switch {
	case err == nil:
		return true, &p, false
	case errors.Is(err, profile.ErrNotFound):
		return false, nil, c.prompted.CompareAndSwap(false, true)
	default:
		c.logger.Warn("profile lookup failed, using cached profile", slog.String("user_id", id.ID), slog.Any("error", err))
		if entry, ok := c.ReadCache(ctx); ok && entry.Identity.ID == id.ID {
			return entry.HasProfile, entry.Profile, false
		}
		return false, nil, false
	}
}

func (c *Cache) onVerified(res verifyResult) {
	if c.inflight > 0 {
		c.inflight--
	}
	if res.epoch != c.epoch {
		return
	}

	switch {
	case res.err == nil:
		c.observer.VerificationFinished("confirmed")
		entry, err := c.write(c.ctx, res.identity, res.hasProfile, res.profile)
		if err != nil {
			c.logger.Warn("persist session cache failed", slog.Any("error", err))
		}
		c.current = &entry
		c.attempts = 0
		c.disarm(timerRetry)
		if res.prompt {
			c.promptPending = true
		}
		c.markChecked()
		c.setState(StateConfirmed)
		c.armRefresh()

	case errors.Is(res.err, identity.ErrNoSession):
		c.observer.VerificationFinished("signed_out")
		if err := c.signOutLocal(); err != nil {
			c.logger.Warn("clear session cache failed", slog.Any("error", err))
		}

	default:
		c.observer.VerificationFinished("degraded")
		c.attempts++
		c.markChecked()
		c.setState(StateDegraded)
		if d, ok := c.opts.Retry.Delay(c.attempts); ok {
			c.arm(timerRetry, d)
		} else {
			c.logger.Info("verification retries exhausted", slog.Int("attempts", c.attempts))
		}
		c.armRefresh()
		c.logger.Debug("verification failed, keeping cached identity", slog.Any("error", res.err))
	}
	c.publish()
}

func (c *Cache) onTimer(ev timerFired) {
	if c.timers[ev.kind].timer == nil || c.timers[ev.kind].seq != ev.seq {
		return
	}
	c.timers[ev.kind] = armedTimer{}

	switch ev.kind {
	case timerDeadline:
		if len(c.waiters) == 0 {
			return
		}
		snap := c.snapshot()
		if snap.Identity == nil {
			snap.State = StateSignedOut
		}
		c.takePrompt(&snap)
		for _, w := range c.waiters {
			w <- snap
		}
		c.waiters = nil

	case timerRetry:
		if c.state == StateSignedOut {
			return
		}
		c.startVerify()

	case timerRefresh:
		c.arm(timerRefresh, c.opts.RefreshInterval)
		if !c.visible || c.state == StateSignedOut || c.inflight > 0 {
			return
		}
		c.attempts = 0
		c.startVerify()
	}
}

func (c *Cache) onVisibility(visible bool) {
	c.visible = visible
	if !visible || c.state == StateUnknown || c.inflight > 0 {
		return
	}
	if c.clock.Now().Sub(c.lastCheck) < c.opts.VisibilityRecheck {
		return
	}
	c.attempts = 0
	c.startVerify()
}

func (c *Cache) onProviderEvent(ev identity.Event) {
	switch ev.Type {
	case identity.EventSignedOut:
		if c.state == StateSignedOut {
			return
		}
		if err := c.signOutLocal(); err != nil {
			c.logger.Warn("clear session cache failed", slog.Any("error", err))
		}
		c.publish()

	case identity.EventSignedIn, identity.EventUserUpdated, identity.EventInitialSession:
		if ev.Session == nil || ev.Session.User.ID == "" {
			return
		}
		user := ev.Session.User
		if c.current == nil || c.current.Identity.ID != user.ID {
			if c.current != nil {
				c.prompted.Store(false)
			}
			c.current = nil
			c.setState(StateVerifying)
		}
		epoch := c.epoch
		c.inflight++
		go func() {
			ctx, cancel := context.WithTimeout(c.ctx, c.opts.RequestTimeout)
			defer cancel()
			has, p, prompt := c.checkProfile(ctx, user)
			c.post(verifyResult{epoch: epoch, identity: user, hasProfile: has, profile: p, prompt: prompt})
		}()
	}
}

func (c *Cache) onRegistration(p profile.Profile) error {
	if c.current == nil || c.current.Identity.ID != p.ID {
		return ErrNotSignedIn
	}
	entry, err := c.write(c.ctx, c.current.Identity, true, &p)
	if err != nil {
		return err
	}
	c.current = &entry
	c.promptPending = false
	c.publish()
	return nil
}

func (c *Cache) signOutLocal() error {
	c.epoch++
	c.current = nil
	c.attempts = 0
	c.promptPending = false
	c.prompted.Store(false)
	c.lastCheck = time.Time{}
	c.disarm(timerRefresh)
	c.disarm(timerRetry)
	c.setState(StateSignedOut)
	return c.ClearCache(c.ctx)
}

func (c *Cache) wait(reply chan Snapshot) {
	c.waiters = append(c.waiters, reply)
	if c.timers[timerDeadline].timer == nil {
		c.arm(timerDeadline, c.opts.VerifyTimeout)
	}
}

func (c *Cache) reply(ch chan Snapshot) {
	snap := c.snapshot()
	c.takePrompt(&snap)
	ch <- snap
}

// publish answers every waiting caller and notifies subscribers.
func (c *Cache) publish() {
	snap := c.snapshot()
	waiters := c.waiters
	c.waiters = nil
	if len(waiters) > 0 {
		c.disarm(timerDeadline)
	}

	c.subMu.Lock()
	subs := make([]func(Snapshot), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()

	if len(waiters) > 0 || len(subs) > 0 {
		c.takePrompt(&snap)
	}
	for _, w := range waiters {
		w <- snap
	}
	for _, fn := range subs {
		fn(snap)
	}
}

// takePrompt moves a pending registration prompt into snap so it is
// delivered exactly once.
func (c *Cache) takePrompt(snap *Snapshot) {
	if c.promptPending {
		snap.PromptRegistration = true
		c.promptPending = false
	}
}

func (c *Cache) snapshot() Snapshot {
	s := Snapshot{State: c.state, Pending: c.inflight > 0, CheckedAt: c.lastCheck}
	if c.current != nil {
		id := c.current.Identity
		s.Identity = &id
		s.HasProfile = c.current.HasProfile
		if c.current.Profile != nil {
			p := *c.current.Profile
			s.Profile = &p
		}
		s.Stale = c.state != StateConfirmed
	}
	return s
}

func (c *Cache) setState(to State) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	c.observer.StateChanged(from, to)
	c.logger.Debug("session state changed", slog.String("from", string(from)), slog.String("to", string(to)))
}

func (c *Cache) arm(kind timerKind, d time.Duration) {
	c.disarm(kind)
	c.timerSeq++
	seq := c.timerSeq
	c.timers[kind] = armedTimer{
		timer: c.clock.AfterFunc(d, func() { c.post(timerFired{kind: kind, seq: seq}) }),
		seq:   seq,
	}
}

func (c *Cache) armRefresh() {
	if c.timers[timerRefresh].timer == nil {
		c.arm(timerRefresh, c.opts.RefreshInterval)
	}
}

func (c *Cache) disarm(kind timerKind) {
	if t := c.timers[kind].timer; t != nil {
		t.Stop()
	}
	c.timers[kind] = armedTimer{}
}

func (c *Cache) markChecked() {
	c.lastCheck = c.clock.Now().UTC()
	raw, _ := c.lastCheck.MarshalText()
	if err := c.store.Set(c.ctx, lastCheckKey, raw); err != nil {
		c.logger.Warn("persist last check failed", slog.Any("error", err))
	}
}

func (c *Cache) readLastCheck() time.Time {
	raw, err := c.store.Get(c.ctx, lastCheckKey)
	if err != nil {
		return time.Time{}
	}
	var t time.Time
	if err := t.UnmarshalText(raw); err != nil {
		return time.Time{}
	}
	return t
}
