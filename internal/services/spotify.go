// Spotify Web API catalog adapter
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/plsync/internal/shared"
)

const (
	maxPlaylistLimit = 50
	maxTrackLimit    = 100
	maxFeatureIDs    = 100
	maxAddURIs       = 100

	trackFields = "next,total,items(track(id,name,is_playable,is_local,preview_url,artists(name),album(name)))"
)

// Requester performs calls against the API. It is implemented by [Client].
type Requester interface {
	Get(ctx context.Context, url string) (*APIResponse, error)
	Request(ctx context.Context, method, url string, body any) (*APIResponse, error)
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Product     string `json:"product"`
}

// SpotifyPlaylist is a simplified playlist object from the user's playlist listing.
type SpotifyPlaylist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SnapshotID string `json:"snapshot_id"`
	Tracks     struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	Name string `json:"name"`
}

// SpotifyTrack represents a Spotify track as returned with the tracks field filter.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	IsPlayable bool            `json:"is_playable"`
	IsLocal    bool            `json:"is_local"`
	PreviewURL string          `json:"preview_url"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      *SpotifyAlbum   `json:"album"`
}

// SpotifyPlaylistItem represents a track within a playlist. Track is nil for removed or unavailable tracks.
type SpotifyPlaylistItem struct {
	Track *SpotifyTrack `json:"track"`
}

// SpotifyAudioFeature is one entry of the audio-features response.
type SpotifyAudioFeature struct {
	ID            string   `json:"id"`
	Tempo         *float64 `json:"tempo"`
	TimeSignature int      `json:"time_signature"`
}

// AudioFeature is the tempo enrichment for one track.
type AudioFeature struct {
	Tempo         float64
	TimeSignature int
}

// NewPlaylist is the body of a create-playlist call.
type NewPlaylist struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Public        bool   `json:"public"`
	Collaborative bool   `json:"collaborative"`
}

type spotifyError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// page is the paging envelope shared by the listing endpoints.
type page[T any] struct {
	Items []*T          `json:"items"`
	Next  *string       `json:"next"`
	Total int           `json:"total"`
	Error *spotifyError `json:"error"`
}

// PlaylistPage is one page of the playlist listing. Next is empty on the last page.
type PlaylistPage struct {
	Items []*SpotifyPlaylist
	Next  string
	Total int
}

// TrackPage is one page of a playlist's tracks. Next is empty on the last page.
type TrackPage struct {
	Items []*SpotifyPlaylistItem
	Next  string
	Total int
}

// SpotifyService is the Spotify catalog adapter.
type SpotifyService struct {
	api           Requester
	playlistLimit int
	trackLimit    int
}

// NewSpotifyService creates a catalog adapter with the given page sizes, clamped to the API maximums.
func NewSpotifyService(api Requester, playlistLimit, trackLimit int) *SpotifyService {
	clamp := func(v, hi int) int {
		if v <= 0 || v > hi {
			return hi
		}
		return v
	}
	return &SpotifyService{
		api:           api,
		playlistLimit: clamp(playlistLimit, maxPlaylistLimit),
		trackLimit:    clamp(trackLimit, maxTrackLimit),
	}
}

// CurrentUser retrieves the current authenticated user's profile.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*SpotifyUser, error) {
	resp, err := s.api.Get(ctx, "/me")
	if err != nil {
		return nil, err
	}

	var user SpotifyUser
	if err := resp.Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: failed to decode user: %w", shared.ErrData, err)
	}
	return &user, nil
}

// Playlists fetches one page of the user's playlists. An empty next starts from the first page.
func (s *SpotifyService) Playlists(ctx context.Context, next string) (*PlaylistPage, error) {
	if next == "" {
		next = fmt.Sprintf("/me/playlists?limit=%d&offset=0", s.playlistLimit)
	}

	p, err := getPage[SpotifyPlaylist](ctx, s.api, next)
	if err != nil {
		return nil, err
	}
	return &PlaylistPage{Items: p.Items, Next: deref(p.Next), Total: p.Total}, nil
}

// PlaylistTracks fetches one page of a playlist's tracks. An empty next starts from the first page.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlistID, next string) (*TrackPage, error) {
	if next == "" {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(s.trackLimit))
		q.Set("offset", "0")
		q.Set("market", "from_token")
		q.Set("fields", trackFields)
		next = "/playlists/" + url.PathEscape(playlistID) + "/tracks?" + q.Encode()
	}

	p, err := getPage[SpotifyPlaylistItem](ctx, s.api, next)
	if err != nil {
		return nil, err
	}
	return &TrackPage{Items: p.Items, Next: deref(p.Next), Total: p.Total}, nil
}

// AudioFeatures fetches tempo and time signature for ids, keyed by track id.
//
// Tracks without features (null entries or no tempo) are absent from the result. More than 100 ids are
// split into several calls.
func (s *SpotifyService) AudioFeatures(ctx context.Context, ids []string) (map[string]AudioFeature, error) {
	features := make(map[string]AudioFeature, len(ids))

	for start := 0; start < len(ids); start += maxFeatureIDs {
		end := min(start+maxFeatureIDs, len(ids))

		resp, err := s.api.Get(ctx, "/audio-features?ids="+url.QueryEscape(strings.Join(ids[start:end], ",")))
		if err != nil {
			return nil, err
		}

		var body struct {
			AudioFeatures []*SpotifyAudioFeature `json:"audio_features"`
			Error         *spotifyError          `json:"error"`
		}
		if err := resp.Decode(&body); err != nil {
			return nil, fmt.Errorf("%w: failed to decode audio features: %w", shared.ErrData, err)
		}
		if body.Error != nil {
			return nil, shared.NetworkError(body.Error.Status, body.Error.Message)
		}

		for _, f := range body.AudioFeatures {
			if f == nil || f.ID == "" || f.Tempo == nil {
				continue
			}
			features[f.ID] = AudioFeature{Tempo: *f.Tempo, TimeSignature: f.TimeSignature}
		}
	}

	return features, nil
}

// CreatePlaylist creates a playlist owned by userID and returns it.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, userID string, playlist NewPlaylist) (*SpotifyPlaylist, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", shared.ErrInvalidInput)
	}

	resp, err := s.api.Request(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/playlists", playlist)
	if err != nil {
		return nil, err
	}

	var created SpotifyPlaylist
	if err := resp.Decode(&created); err != nil {
		return nil, fmt.Errorf("%w: failed to decode created playlist: %w", shared.ErrData, err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("%w: created playlist has no id", shared.ErrData)
	}
	return &created, nil
}

// AddTracks appends trackIDs to a playlist in order, 100 per call. It returns how many were added, which
// is less than len(trackIDs) when a call fails part way.
func (s *SpotifyService) AddTracks(ctx context.Context, playlistID string, trackIDs []string) (int, error) {
	path := "/playlists/" + url.PathEscape(playlistID) + "/tracks"

	for start := 0; start < len(trackIDs); start += maxAddURIs {
		end := min(start+maxAddURIs, len(trackIDs))

		uris := make([]string, 0, end-start)
		for _, id := range trackIDs[start:end] {
			uris = append(uris, "spotify:track:"+id)
		}

		if _, err := s.api.Request(ctx, http.MethodPost, path, map[string][]string{"uris": uris}); err != nil {
			return start, err
		}
	}
	return len(trackIDs), nil
}

func getPage[T any](ctx context.Context, api Requester, next string) (*page[T], error) {
	resp, err := api.Get(ctx, next)
	if err != nil {
		return nil, err
	}

	var p page[T]
	if err := resp.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: failed to decode page: %w", shared.ErrData, err)
	}
	if p.Error != nil {
		return nil, shared.NetworkError(p.Error.Status, p.Error.Message)
	}
	return &p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
