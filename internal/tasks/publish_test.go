package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
)

type fakePublisher struct {
	created   []services.NewPlaylist
	owner     string
	added     []string
	createErr error
	addErr    error
	addLimit  int // tracks accepted before addErr, when set
}

func (f *fakePublisher) CurrentUser(ctx context.Context) (*services.SpotifyUser, error) {
	return &services.SpotifyUser{ID: "u1"}, nil
}

func (f *fakePublisher) CreatePlaylist(ctx context.Context, userID string, p services.NewPlaylist) (*services.SpotifyPlaylist, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.owner = userID
	f.created = append(f.created, p)
	return &services.SpotifyPlaylist{ID: "new1", Name: p.Name}, nil
}

func (f *fakePublisher) AddTracks(ctx context.Context, playlistID string, ids []string) (int, error) {
	if f.addErr != nil {
		n := min(f.addLimit, len(ids))
		f.added = append(f.added, ids[:n]...)
		return n, f.addErr
	}
	f.added = append(f.added, ids...)
	return len(ids), nil
}

func sampleEntry() models.PlaylistEntry {
	return models.PlaylistEntry{
		ID:   "p1",
		Name: "Westie",
		Tracks: []models.TrackEntry{
			{ID: "t1", Name: "Cello", Artist: "beta", BPM: 120},
			{ID: "t2", Name: "apple", Artist: "Alpha", BPM: 0},
			{ID: "t3", Name: "Banjo", Artist: "alpha", BPM: 96},
			{ID: "", Name: "Home Recording", Artist: "Me", IsLocal: true, BPM: 80},
		},
	}
}

func trackIDs(tracks []models.TrackEntry) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}

func TestParseSortKey(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want SortKey
	}{
		{"bpm", SortBPM},
		{" BPM ", SortBPM},
		{"track", SortTrack},
		{"artist", SortArtist},
		{"none", SortNone},
		{"", SortNone},
	} {
		got, err := ParseSortKey(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseSortKey("tempo")
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestSortTracks(t *testing.T) {
	tracks := sampleEntry().Tracks

	t.Run("BPM Ascending With Unknown Last", func(t *testing.T) {
		assert.Equal(t, []string{"", "t3", "t1", "t2"}, trackIDs(SortTracks(tracks, SortBPM)))
	})

	t.Run("Track Name Ignores Case", func(t *testing.T) {
		assert.Equal(t, []string{"t2", "t3", "t1", ""}, trackIDs(SortTracks(tracks, SortTrack)))
	})

	t.Run("Artist Ties Keep Playlist Order", func(t *testing.T) {
		assert.Equal(t, []string{"t2", "t3", "t1", ""}, trackIDs(SortTracks(tracks, SortArtist)))
	})

	t.Run("None Keeps Order And Copies", func(t *testing.T) {
		got := SortTracks(tracks, SortNone)
		assert.Equal(t, trackIDs(tracks), trackIDs(got))

		got[0].Name = "changed"
		assert.Equal(t, "Cello", tracks[0].Name)
	})
}

func TestSavePlaylist(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates A Sorted Private Copy", func(t *testing.T) {
		pub := &fakePublisher{}
		engine := NewSyncEngine(newFakeCatalog(), openCache(t), WithPublisher(pub))
		progress := make(chan ProgressUpdate, 8)

		result, err := engine.SavePlaylist(ctx, sampleEntry(), SortBPM, progress)
		require.NoError(t, err)

		require.Len(t, pub.created, 1)
		assert.Equal(t, "u1", pub.owner)
		assert.Equal(t, "Westie - Sorted by BPM", pub.created[0].Name)
		assert.Equal(t, "Sorted playlist from Westie", pub.created[0].Description)
		assert.False(t, pub.created[0].Public)
		assert.False(t, pub.created[0].Collaborative)

		assert.Equal(t, []string{"t3", "t1", "t2"}, pub.added)
		assert.Equal(t, "new1", result.PlaylistID)
		assert.Equal(t, 3, result.Added)
		assert.Equal(t, 1, result.Skipped)
		assert.NotEmpty(t, result.Pass)
		assert.False(t, engine.Busy())

		close(progress)
		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
		}
		assert.Equal(t, []Phase{CreatePlaylist, AddTracks}, phases)
	})

	t.Run("Unsorted Name", func(t *testing.T) {
		pub := &fakePublisher{}
		engine := NewSyncEngine(newFakeCatalog(), openCache(t), WithPublisher(pub))

		_, err := engine.SavePlaylist(ctx, sampleEntry(), SortNone, nil)
		require.NoError(t, err)
		assert.Equal(t, "Westie - Sorted by None", pub.created[0].Name)
		assert.Equal(t, []string{"t1", "t2", "t3"}, pub.added)
	})

	t.Run("Without Publisher", func(t *testing.T) {
		engine := NewSyncEngine(newFakeCatalog(), openCache(t))

		_, err := engine.SavePlaylist(ctx, sampleEntry(), SortBPM, nil)
		assert.ErrorIs(t, err, shared.ErrNotImplemented)
	})

	t.Run("Create Failure Adds Nothing", func(t *testing.T) {
		pub := &fakePublisher{createErr: shared.NetworkError(403, "forbidden")}
		engine := NewSyncEngine(newFakeCatalog(), openCache(t), WithPublisher(pub))

		result, err := engine.SavePlaylist(ctx, sampleEntry(), SortBPM, nil)
		assert.ErrorIs(t, err, shared.ErrNetwork)
		assert.Empty(t, result.PlaylistID)
		assert.Empty(t, pub.added)
		assert.Equal(t, 1, engine.Errors().Len())
	})

	t.Run("Add Failure Reports Partial Playlist", func(t *testing.T) {
		pub := &fakePublisher{addErr: shared.RateLimitError("slow down", 0), addLimit: 2}
		engine := NewSyncEngine(newFakeCatalog(), openCache(t), WithPublisher(pub))

		result, err := engine.SavePlaylist(ctx, sampleEntry(), SortTrack, nil)
		assert.True(t, errors.Is(err, shared.ErrRateLimited))
		assert.Equal(t, "new1", result.PlaylistID)
		assert.Equal(t, 2, result.Added)
		assert.Equal(t, []string{"t2", "t3"}, pub.added)
	})

	t.Run("Leaves The Cache Untouched", func(t *testing.T) {
		c := openCache(t)
		engine := NewSyncEngine(newFakeCatalog(), c, WithPublisher(&fakePublisher{}))

		_, err := engine.SavePlaylist(ctx, sampleEntry(), SortArtist, nil)
		require.NoError(t, err)
		assert.True(t, c.Snapshot().Empty())
	})
}
