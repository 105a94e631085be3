package transferlog

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func testStore(t *testing.T, store Store) {
	t.Helper()

	started := time.Unix(1000, 0).UTC()

	entry1 := NewEntry("a.txt", "127.0.0.1:9000")
	entry1.Started = started
	entry1.Bytes = 600
	entry1.Datagrams = 3
	entry1.Finished = started.Add(time.Second)

	entry2 := NewEntry("b.txt", "127.0.0.1:9000")
	entry2.Started = started.Add(-time.Minute)
	entry2.Retransmissions = 10
	entry2.Timeouts = 1
	entry2.Error = "retransmission limit reached"
	entry2.Finished = started

	require.NoError(t, store.Record(entry1))
	require.NoError(t, store.Record(entry2))

	entry, err := store.Entry(entry1.ID)
	require.NoError(t, err)
	assert.Equal(t, entry1.File, entry.File)
	assert.Equal(t, uint64(600), entry.Bytes)
	assert.Equal(t, uint64(3), entry.Datagrams)
	assert.True(t, entry.Succeeded())
	assert.Equal(t, time.Second, entry.Duration())

	entry, err = store.Entry(entry2.ID)
	require.NoError(t, err)
	assert.False(t, entry.Succeeded())
	assert.Equal(t, uint64(10), entry.Retransmissions)

	_, err = store.Entry(uuid.New())
	assert.Equal(t, ErrNotFound, errors.Cause(err))

	entries, err := store.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entry2.ID, entries[0].ID)
	assert.Equal(t, entry1.ID, entries[1].ID)

	entry1.Error = "overwritten"
	require.NoError(t, store.Record(entry1))
	entry, err = store.Entry(entry1.ID)
	require.NoError(t, err)
	assert.Equal(t, "overwritten", entry.Error)

	assert.Error(t, store.Record(nil))
}

func TestInMemoryStore(t *testing.T) {
	store := InMemoryStore()
	testStore(t, store)
	assert.NoError(t, store.Close())
}

func TestBoltDBStore(t *testing.T) {
	dir, err := ioutil.TempDir("", "transferlog")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, os.RemoveAll(dir))
	}()

	path := filepath.Join(dir, "transfers.db")
	store, err := BoltDBStore(path)
	require.NoError(t, err)
	testStore(t, store)
	require.NoError(t, store.Close())

	store, err = BoltDBStore(path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, store.Close())
	}()

	entries, err := store.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestBoltDBStore_SkipsUnreadable(t *testing.T) {
	dir, err := ioutil.TempDir("", "transferlog")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, os.RemoveAll(dir))
	}()

	store, err := BoltDBStore(filepath.Join(dir, "transfers.db"))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, store.Close())
	}()

	require.NoError(t, store.Record(NewEntry("ok.txt", "localhost:1")))

	db := store.(*boltDBStore).db
	require.NoError(t, db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltDBBucket).Put([]byte("garbage"), []byte("{"))
	}))

	entries, err := store.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ok.txt", entries[0].File)
}

func TestEntry_Unfinished(t *testing.T) {
	e := NewEntry("f", "r")
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Zero(t, e.Duration())
	assert.False(t, e.Succeeded())
}
