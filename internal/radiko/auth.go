package radiko

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radikoarchive/radiko-archiver/internal/catalog"
)

// Header names used by the handshake.
const (
	HeaderApp        = "X-Radiko-App"
	HeaderAppVersion = "X-Radiko-App-Version"
	HeaderUser       = "X-Radiko-User"
	HeaderDevice     = "X-Radiko-Device"
	HeaderAuthToken  = "X-Radiko-AuthToken"
	HeaderKeyLength  = "X-Radiko-KeyLength"
	HeaderKeyOffset  = "X-Radiko-KeyOffset"
	HeaderPartialKey = "X-Radiko-Partialkey"
)

const (
	appName    = "pc_html5"
	appVersion = "0.0.1"
	userName   = "dummy_user"
	deviceName = "pc"

	// fullKey is the public key shipped with the HTML5 player.
	fullKey = "bcd151073c03b352e1ef2fd66c32209da9ca0afa"

	// tokenTTL is kept well under the upstream token lifetime.
	tokenTTL = 50 * time.Minute
)

// ErrHandshake is returned when the auth1/auth2 exchange yields unusable data.
var ErrHandshake = errors.New("radiko handshake failed")

// Authenticator performs the auth1/auth2 handshake and caches the token.
type Authenticator struct {
	endpoints Endpoints
	fetcher   catalog.Fetcher
	clock     catalog.Clock
	logger    *zap.Logger

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewAuthenticator wires an Authenticator.
func NewAuthenticator(endpoints Endpoints, fetcher catalog.Fetcher, clock catalog.Clock, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{
		endpoints: endpoints,
		fetcher:   fetcher,
		clock:     clock,
		logger:    logger.Named("auth"),
	}
}

// Token returns a cached token or performs a new handshake.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()
	if a.token != "" && now.Before(a.expires) {
		return a.token, nil
	}
	token, err := a.handshake(ctx)
	if err != nil {
		return "", err
	}
	a.token = token
	a.expires = now.Add(tokenTTL)
	return token, nil
}

// Invalidate drops the cached token so the next call re-authenticates.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	a.token = ""
	a.mu.Unlock()
}

func (a *Authenticator) handshake(ctx context.Context) (string, error) {
	h := http.Header{}
	h.Set(HeaderApp, appName)
	h.Set(HeaderAppVersion, appVersion)
	h.Set(HeaderUser, userName)
	h.Set(HeaderDevice, deviceName)
	resp, err := a.fetcher.Fetch(ctx, catalog.Request{URL: a.endpoints.Auth1(), Headers: h})
	if err != nil {
		return "", fmt.Errorf("auth1: %w", err)
	}
	token := resp.Headers.Get(HeaderAuthToken)
	if token == "" {
		return "", fmt.Errorf("%w: auth1 returned no token", ErrHandshake)
	}
	partial, err := PartialKey(resp.Headers.Get(HeaderKeyOffset), resp.Headers.Get(HeaderKeyLength))
	if err != nil {
		return "", err
	}

	h2 := http.Header{}
	h2.Set(HeaderAuthToken, token)
	h2.Set(HeaderPartialKey, partial)
	h2.Set(HeaderUser, userName)
	h2.Set(HeaderDevice, deviceName)
	resp, err = a.fetcher.Fetch(ctx, catalog.Request{URL: a.endpoints.Auth2(), Headers: h2})
	if err != nil {
		return "", fmt.Errorf("auth2: %w", err)
	}
	a.logger.Debug("authenticated", zap.ByteString("area", resp.Body))
	return token, nil
}

// PartialKey slices the player key at offset/length and base64-encodes it.
func PartialKey(offset, length string) (string, error) {
	off, err := strconv.Atoi(offset)
	if err != nil {
		return "", fmt.Errorf("%w: key offset %q", ErrHandshake, offset)
	}
	n, err := strconv.Atoi(length)
	if err != nil {
		return "", fmt.Errorf("%w: key length %q", ErrHandshake, length)
	}
	if off < 0 || n <= 0 || off+n > len(fullKey) {
		return "", fmt.Errorf("%w: key window %d+%d out of range", ErrHandshake, off, n)
	}
	return base64.StdEncoding.EncodeToString([]byte(fullKey[off : off+n])), nil
}
