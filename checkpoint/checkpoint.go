// Package checkpoint persists integration state between runs so an
// interrupted computation can resume instead of restarting.
package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// MAIN is the bucket name for all checkpoint records.
var MAIN = []byte("main")

// Saver reads and writes JSON-serialized values in a bolt database,
// one record per key, and throttles how often callers save. A nil
// Saver is valid and performs no I/O.
type Saver struct {
	db      *bolt.DB
	last    time.Time
	seconds float64
}

// NewSaver opens (or creates) a checkpoint database at the given
// path. The default save period is 30 seconds.
func NewSaver(filename string) (*Saver, error) {
	db, err := bolt.Open(filename, 0666, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	return &Saver{db: db, seconds: 30}, nil
}

// SetSavePeriod sets the minimal time between throttled saves.
func (s *Saver) SetSavePeriod(seconds float64) {
	if s == nil {
		return
	}
	s.seconds = seconds
}

// Save serializes v and stores it under key.
func (s *Saver) Save(key string, v interface{}) error {
	if s == nil {
		return nil
	}
	// Even if saving fails, we do not want to run this code too often.
	s.SetNow()
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("Error serializing checkpoint", err)
		return err
	}
	err = SaveData(s.db, []byte(key), data)
	if err != nil {
		log.Error("Error saving checkpoint", err)
	}
	return err
}

// Load reads the record under key into v. Missing keys leave v
// untouched and return found = false.
func (s *Saver) Load(key string, v interface{}) (found bool, err error) {
	if s == nil {
		return false, nil
	}
	b, err := LoadData(s.db, []byte(key))
	if err != nil || b == nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, err
	}
	return true, nil
}

// Old returns true if the last save happened longer than the save
// period ago.
func (s *Saver) Old() bool {
	if s == nil {
		return false
	}
	return time.Since(s.last).Seconds() > s.seconds
}

// SetNow sets the last save time to now.
func (s *Saver) SetNow() {
	if s == nil {
		return
	}
	s.last = time.Now()
}

// Close closes the underlying database.
func (s *Saver) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveData saves a raw value in a bolt database.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(MAIN)
		if err != nil {
			return err
		}

		err = b.Put(key, data)
		return err
	})
	return err
}

// LoadData loads a raw value from a bolt database.
func LoadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MAIN)
		if b == nil {
			return nil
		}

		v := b.Get(key)
		if v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
