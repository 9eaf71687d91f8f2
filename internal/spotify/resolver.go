// Package spotify resolves recommended tracks to Spotify catalog ids.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	libspotify "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// Searcher is the part of the Spotify client the resolver needs.
type Searcher interface {
	Search(ctx context.Context, query string, t libspotify.SearchType, opts ...libspotify.RequestOption) (*libspotify.SearchResult, error)
}

type Resolver struct {
	client Searcher
}

func NewResolver(client Searcher) *Resolver {
	return &Resolver{client: client}
}

// NewClientCredentialsClient builds an app-level client; no user token is
// involved in catalog search.
func NewClientCredentialsClient(ctx context.Context, clientID, clientSecret string, opts ...libspotify.ClientOption) *libspotify.Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return libspotify.New(cfg.Client(ctx), opts...)
}

// NewHTTPClient wraps a plain http client, for tests and proxies.
func NewHTTPClient(hc *http.Client, opts ...libspotify.ClientOption) *libspotify.Client {
	return libspotify.New(hc, opts...)
}

func searchQuery(artist, name string) string {
	q := fmt.Sprintf("track:%q", strings.TrimSpace(name))
	if a := strings.TrimSpace(artist); a != "" {
		q += fmt.Sprintf(" artist:%q", a)
	}
	return q
}

// ResolveTrackID returns the id of the best match, preferring a result whose
// name and first artist match case-insensitively. "" means no match.
func (r *Resolver) ResolveTrackID(ctx context.Context, artist, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	res, err := r.client.Search(ctx, searchQuery(artist, name), libspotify.SearchTypeTrack, libspotify.Limit(5))
	if err != nil {
		return "", fmt.Errorf("spotify search: %w", err)
	}
	if res == nil || res.Tracks == nil || len(res.Tracks.Tracks) == 0 {
		return "", nil
	}

	tracks := res.Tracks.Tracks
	for _, t := range tracks {
		if !strings.EqualFold(t.Name, strings.TrimSpace(name)) {
			continue
		}
		if artist == "" || (len(t.Artists) > 0 && strings.EqualFold(t.Artists[0].Name, strings.TrimSpace(artist))) {
			return t.ID.String(), nil
		}
	}
	return tracks[0].ID.String(), nil
}
