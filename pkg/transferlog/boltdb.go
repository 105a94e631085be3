package transferlog

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"
	"go.etcd.io/bbolt"
)

var boltDBBucket = []byte("transfers")
var log = logging.MustGetLogger("transferlog")

type boltDBStore struct {
	db *bbolt.DB
}

// BoltDBStore constructs a Store persisted in the BoltDB file at path.
func BoltDBStore(path string) (Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltDBBucket); err != nil {
			return errors.Wrap(err, "failed to create bucket")
		}

		return nil
	})
	if err != nil {
		if cErr := db.Close(); cErr != nil {
			log.WithError(cErr).Warn("Failed to close transfer log")
		}
		return nil, err
	}

	return &boltDBStore{db: db}, nil
}

// Record stores entry under its ID, replacing any previous record.
func (s *boltDBStore) Record(entry *Entry) error {
	if entry == nil {
		return errors.New("nil entry")
	}

	v, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "json")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltDBBucket)
		return b.Put(entry.ID[:], v)
	})
}

// Entry returns the entry recorded under id.
func (s *boltDBStore) Entry(id uuid.UUID) (*Entry, error) {
	entry := &Entry{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltDBBucket)
		v := b.Get(id[:])
		if v == nil {
			return errors.Wrapf(ErrNotFound, "id %s", id)
		}

		return json.Unmarshal(v, entry)
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Entries returns every recorded entry ordered by start time.
func (s *boltDBStore) Entries() ([]*Entry, error) {
	var entries []*Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltDBBucket)
		return b.ForEach(func(k, v []byte) error {
			entry := &Entry{}
			if err := json.Unmarshal(v, entry); err != nil {
				log.WithError(err).Warnf("Skipping unreadable entry %x", k)
				return nil
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortEntries(entries)
	return entries, nil
}

func (s *boltDBStore) Close() error {
	return s.db.Close()
}
