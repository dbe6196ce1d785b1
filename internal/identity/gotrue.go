package identity

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hsportal/portal/internal/kv"
)

const (
	sessionKey      = "auth_session"
	codeVerifierKey = "auth_code_verifier"
)

// ClientConfig configures a GoTrueClient.
type ClientConfig struct {
	BaseURL    string
	AnonKey    string
	HTTPClient *http.Client
	Now        func() time.Time
}

// GoTrueClient talks to a GoTrue-compatible auth server on behalf of one
// browser scope. Tokens and the PKCE verifier live in the scope's store.
type GoTrueClient struct {
	baseURL string
	anonKey string
	http    *http.Client
	store   kv.Store
	now     func() time.Time

	mu        sync.Mutex
	listeners map[int]func(Event)
	nextID    int
}

// NewGoTrueClient builds a client bound to store.
func NewGoTrueClient(cfg ClientConfig, store kv.Store) *GoTrueClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &GoTrueClient{
		baseURL:   cfg.BaseURL,
		anonKey:   cfg.AnonKey,
		http:      httpClient,
		store:     store,
		now:       now,
		listeners: make(map[int]func(Event)),
	}
}

type userResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		AvatarURL string `json:"avatar_url"`
		Picture   string `json:"picture"`
		FullName  string `json:"full_name"`
		Name      string `json:"name"`
	} `json:"user_metadata"`
}

func (u userResponse) identity() Identity {
	id := Identity{
		ID:        u.ID,
		Email:     u.Email,
		AvatarURL: u.UserMetadata.AvatarURL,
		FullName:  u.UserMetadata.FullName,
	}
	if id.AvatarURL == "" {
		id.AvatarURL = u.UserMetadata.Picture
	}
	if id.FullName == "" {
		id.FullName = u.UserMetadata.Name
	}
	return id
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         userResponse `json:"user"`
}

func (t tokenResponse) session(now time.Time) Session {
	s := Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		User:         t.User.identity(),
	}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0).UTC()
	case t.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	}
	return s
}

// GetSession returns the stored session.
func (c *GoTrueClient) GetSession(ctx context.Context) (Session, error) {
	raw, err := c.store.Get(ctx, sessionKey)
	if errors.Is(err, kv.ErrNotFound) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		_ = c.store.Delete(ctx, sessionKey)
		return Session{}, ErrNoSession
	}
	return s, nil
}

// GetUser validates the stored access token against the provider.
func (c *GoTrueClient) GetUser(ctx context.Context) (Identity, error) {
	s, err := c.GetSession(ctx)
	if err != nil {
		return Identity{}, err
	}
	var u userResponse
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, nil, s.AccessToken, &u); err != nil {
		return Identity{}, err
	}
	id := u.identity()
	if id != s.User {
		s.User = id
		if err := c.saveSession(ctx, s); err != nil {
			return Identity{}, err
		}
		c.emit(Event{Type: EventUserUpdated, Session: &s})
	}
	return id, nil
}

// RefreshSession rotates the token pair. A rejected refresh token clears the
// stored session and emits SIGNED_OUT.
func (c *GoTrueClient) RefreshSession(ctx context.Context) (Session, error) {
	s, err := c.GetSession(ctx)
	if err != nil {
		return Session{}, err
	}
	var tr tokenResponse
	q := url.Values{"grant_type": {"refresh_token"}}
	body := map[string]string{"refresh_token": s.RefreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", q, body, "", &tr); err != nil {
		if errors.Is(err, ErrNoSession) {
			_ = c.store.Delete(ctx, sessionKey)
			c.emit(Event{Type: EventSignedOut})
		}
		return Session{}, err
	}
	next := tr.session(c.now())
	if err := c.saveSession(ctx, next); err != nil {
		return Session{}, err
	}
	c.emit(Event{Type: EventTokenRefreshed, Session: &next})
	return next, nil
}

// SignInWithOAuth prepares a PKCE sign-in and returns the authorize URL.
func (c *GoTrueClient) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("%w: auth url not configured", ErrProviderUnavailable)
	}
	verifier, err := newCodeVerifier()
	if err != nil {
		return "", err
	}
	if err := c.store.Set(ctx, codeVerifierKey, []byte(verifier)); err != nil {
		return "", fmt.Errorf("store code verifier: %w", err)
	}
	sum := sha256.Sum256([]byte(verifier))
	q := url.Values{
		"provider":              {provider},
		"redirect_to":           {redirectTo},
		"code_challenge":        {base64.RawURLEncoding.EncodeToString(sum[:])},
		"code_challenge_method": {"s256"},
		"prompt":                {"select_account"},
		"access_type":           {"offline"},
	}
	return c.baseURL + "/auth/v1/authorize?" + q.Encode(), nil
}

// ExchangeCode trades an authorization code for a session and emits SIGNED_IN.
func (c *GoTrueClient) ExchangeCode(ctx context.Context, code string) (Session, error) {
	verifier, err := c.store.Get(ctx, codeVerifierKey)
	if errors.Is(err, kv.ErrNotFound) {
		return Session{}, fmt.Errorf("%w: no pending sign-in", ErrNoSession)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read code verifier: %w", err)
	}
	var tr tokenResponse
	q := url.Values{"grant_type": {"pkce"}}
	body := map[string]string{"auth_code": code, "code_verifier": string(verifier)}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", q, body, "", &tr); err != nil {
		return Session{}, err
	}
	_ = c.store.Delete(ctx, codeVerifierKey)
	s := tr.session(c.now())
	if err := c.saveSession(ctx, s); err != nil {
		return Session{}, err
	}
	c.emit(Event{Type: EventSignedIn, Session: &s})
	return s, nil
}

// SignOut revokes the session remotely and always forgets it locally. An
// already-invalid session is not an error.
func (c *GoTrueClient) SignOut(ctx context.Context, scope SignOutScope) error {
	s, err := c.GetSession(ctx)
	if errors.Is(err, ErrNoSession) {
		c.emit(Event{Type: EventSignedOut})
		return nil
	}
	if err != nil {
		return err
	}
	q := url.Values{"scope": {string(scope)}}
	remoteErr := c.do(ctx, http.MethodPost, "/auth/v1/logout", q, nil, s.AccessToken, nil)
	if err := c.store.Delete(ctx, sessionKey, codeVerifierKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	c.emit(Event{Type: EventSignedOut})
	if remoteErr != nil && !errors.Is(remoteErr, ErrNoSession) {
		return remoteErr
	}
	return nil
}

// Subscribe registers fn for auth events.
func (c *GoTrueClient) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *GoTrueClient) emit(ev Event) {
	c.mu.Lock()
	fns := make([]func(Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (c *GoTrueClient) saveSession(ctx context.Context, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, sessionKey, raw); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// do performs one provider call. 401/403, and 400 from the token endpoint,
// map to ErrNoSession; every other failure is ErrProviderUnavailable.
func (c *GoTrueClient) do(ctx context.Context, method, path string, q url.Values, body any, bearer string, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: auth url not configured", ErrProviderUnavailable)
	}
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	req.Header.Set("apikey", c.anonKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrNoSession
	case resp.StatusCode == http.StatusBadRequest && path == "/auth/v1/token":
		return ErrNoSession
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrProviderUnavailable, err)
	}
	return nil
}

func newCodeVerifier() (string, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
