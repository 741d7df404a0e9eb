package progress

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readaloud/internal/config"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	file, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   file,
		"redis":  NewRedisStore(client, WithPrefix("test")),
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Load(ctx, "book", "ch1")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = store.Last(ctx)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Save(ctx, Record{BookID: "book", ChapterID: "ch1", Index: 4}))

			got, err := store.Load(ctx, "book", "ch1")
			require.NoError(t, err)
			assert.Equal(t, 4, got.Index)
			assert.False(t, got.SavedAt.IsZero(), "save stamps the record")

			last, err := store.Last(ctx)
			require.NoError(t, err)
			assert.Equal(t, "ch1", last.ChapterID)
		})
	}
}

func TestStore_LoadNewestChapterOfBook(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 2, 13, 20, 0, 0, 0, time.UTC)

			require.NoError(t, store.Save(ctx, Record{BookID: "book", ChapterID: "ch2", Index: 9, SavedAt: base.Add(time.Minute)}))
			require.NoError(t, store.Save(ctx, Record{BookID: "other", ChapterID: "x", Index: 1, SavedAt: base.Add(time.Hour)}))
			require.NoError(t, store.Save(ctx, Record{BookID: "book", ChapterID: "ch1", Index: 2, SavedAt: base.Add(2 * time.Minute)}))

			got, err := store.Load(ctx, "book", "")
			require.NoError(t, err)
			assert.Equal(t, "ch1", got.ChapterID)
			assert.Equal(t, 2, got.Index)

			last, err := store.Last(ctx)
			require.NoError(t, err)
			assert.Equal(t, "book", last.BookID, "last is the most recent write")

			_, err = store.Load(ctx, "missing", "")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_RejectsInvalidRecord(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.ErrorIs(t, store.Save(ctx, Record{ChapterID: "ch"}), ErrInvalidRecord)
			assert.ErrorIs(t, store.Save(ctx, Record{BookID: "b"}), ErrInvalidRecord)
			assert.ErrorIs(t, store.Save(ctx, Record{BookID: "b", ChapterID: "c", Index: -1}), ErrInvalidRecord)
		})
	}
}

func TestStore_Preferences(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.LoadPreferences(ctx)
			assert.ErrorIs(t, err, ErrNotFound)

			prefs := Preferences{VoiceID: "cmn-voice", Rate: 1.2, Volume: 0.8, Pitch: 1, Language: "zh-TW", SleepMinutes: 15}
			require.NoError(t, store.SavePreferences(ctx, prefs))

			got, err := store.LoadPreferences(ctx)
			require.NoError(t, err)
			assert.Equal(t, prefs, *got)
		})
	}
}

func TestFileStore_CorruptFileIsTreatedAsEmpty(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0644))

	ctx := context.Background()
	_, err = store.Last(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, Record{BookID: "b", ChapterID: "c", Index: 1}))
	got, err := store.Load(ctx, "b", "c")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Index)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, Record{BookID: "b", ChapterID: "c", Index: 7}))

	second, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := second.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Index)
}

func TestRedisStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, WithTTL(time.Hour))
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, Record{BookID: "b", ChapterID: "c", Index: 3}))

	assert.Equal(t, time.Hour, mr.TTL("readaloud:progress:b:c"))
	mr.FastForward(2 * time.Hour)

	_, err := store.Load(ctx, "b", "c")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	store, err := NewStore(ctx, config.ProgressConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = NewStore(ctx, config.ProgressConfig{Backend: "file", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	mr := miniredis.RunT(t)
	store, err = NewStore(ctx, config.ProgressConfig{
		Backend: "redis",
		Redis:   config.RedisConfig{Addr: mr.Addr(), Prefix: "p"},
	})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	require.NoError(t, store.Close())

	_, err = NewStore(ctx, config.ProgressConfig{Backend: "s3"})
	assert.Error(t, err)
}
