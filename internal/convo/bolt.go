package convo

import (
	"encoding/json"
	"fmt"

	bbolt "go.etcd.io/bbolt"
)

var bucketContexts = []byte("contexts")

type BoltLibrary struct {
	db *bbolt.DB
}

func OpenBolt(path string) (*BoltLibrary, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("convo: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketContexts)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("convo: create bucket: %w", err)
	}
	return &BoltLibrary{db: db}, nil
}

func (l *BoltLibrary) Get(name string) (ConversationContext, error) {
	var c ConversationContext
	err := l.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketContexts).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrContextNotFound, name)
		}
		return json.Unmarshal(v, &c)
	})
	if err != nil {
		return ConversationContext{}, err
	}
	c.Name = name
	return c, nil
}

func (l *BoltLibrary) Put(c ConversationContext) error {
	if err := ValidName(c.Name); err != nil {
		return err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketContexts).Put([]byte(c.Name), b)
	})
}

func (l *BoltLibrary) Names() ([]string, error) {
	var out []string
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketContexts).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

func (l *BoltLibrary) Close() error {
	return l.db.Close()
}
