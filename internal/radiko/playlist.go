package radiko

import (
	"context"
	"fmt"
	"net/http"

	"github.com/radikoarchive/radiko-archiver/internal/catalog"
)

// Source is a resolved capture target: the playlist URL plus the headers
// the media server requires.
type Source struct {
	URL     string
	Headers http.Header
}

// PlaylistResolver turns a program into an authenticated timefree Source.
type PlaylistResolver struct {
	endpoints Endpoints
	auth      *Authenticator
}

// NewPlaylistResolver wires a resolver.
func NewPlaylistResolver(endpoints Endpoints, auth *Authenticator) *PlaylistResolver {
	return &PlaylistResolver{endpoints: endpoints, auth: auth}
}

// Resolve returns the playlist for p with a valid auth token.
func (r *PlaylistResolver) Resolve(ctx context.Context, p catalog.Program) (Source, error) {
	if err := ctx.Err(); err != nil {
		return Source{}, err
	}
	token, err := r.auth.Token(ctx)
	if err != nil {
		return Source{}, fmt.Errorf("resolve playlist for program %d: %w", p.ID, err)
	}
	h := http.Header{}
	h.Set(HeaderAuthToken, token)
	return Source{URL: r.endpoints.Playlist(p), Headers: h}, nil
}
