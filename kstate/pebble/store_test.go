package pebble

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kstreams-state/internal/storetest"
	"github.com/birdayz/kstreams-state/kprocessor"
	"github.com/birdayz/kstreams-state/kstate"
)

func newStore(name string) kstate.KeyValueBytesStore {
	return New(name)
}

func TestStore(t *testing.T) {
	storetest.RunKeyValueBytesStore(t, newStore)
}

func TestStoreSurvivesReopen(t *testing.T) {
	stateDir := t.TempDir()
	ctx := kprocessor.NewStoreContext(kprocessor.Config{
		ApplicationID: "app1",
		StateDir:      stateDir,
	}, kprocessor.TaskID{Subtopology: 0, Partition: 0})

	s := New("s")
	assert.True(t, s.Persistent())
	assert.NoError(t, s.Init(ctx))
	assert.Equal(t, filepath.Join(stateDir, "app1", "0_0", "s"), s.Dir())

	assert.NoError(t, s.Put(kstate.BytesOf("a"), []byte("1")))
	assert.NoError(t, s.Put(kstate.BytesOf("b"), []byte("2")))

	n, err := s.ApproximateNumEntries()
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)

	prev, err := s.Delete(kstate.BytesOf("a"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("1"), prev)

	n, err = s.ApproximateNumEntries()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.NoError(t, s.Close())

	assert.NoError(t, s.Init(ctx))
	defer s.Close()
	assert.Equal(t, []string{"b=2"}, storetest.All(t, s))
}

func TestDestroy(t *testing.T) {
	ctx := storetest.NewContext(t)
	s := New("s")
	assert.NoError(t, s.Init(ctx))
	assert.NoError(t, s.Put(kstate.BytesOf("a"), []byte("1")))

	assert.IsError(t, s.Destroy(), kstate.ErrStoreOpen)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Destroy())
	_, err := os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, s.Init(ctx))
	defer s.Close()
	n, err := s.ApproximateNumEntries()
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCloseReleasesOpenIterators(t *testing.T) {
	ctx := storetest.NewContext(t)
	s := New("s")
	assert.NoError(t, s.Init(ctx))
	assert.NoError(t, s.Put(kstate.BytesOf("a"), []byte("1")))

	it, err := s.All()
	assert.NoError(t, err)
	assert.True(t, it.Next())

	assert.NoError(t, s.Close())
	assert.False(t, it.Next())
	assert.NoError(t, it.Close())
}
