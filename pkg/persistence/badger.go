package persistence

import (
	"encoding/json"
	"errors"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerService Badger KV 持久化服务
type BadgerService struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger database at dir.
func OpenBadger(dir string) (*BadgerService, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("persistence: badger dir is required")
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &BadgerService{db: db}, nil
}

// OpenBadgerInMemory is used by tests and dry runs.
func OpenBadgerInMemory() (*BadgerService, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &BadgerService{db: db}, nil
}

func (s *BadgerService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerService) NewStore(prefix, id, tag string) Store {
	return &badgerStore{db: s.db, key: []byte(storeKey(prefix, id, tag))}
}

// Scan iterates keys under prefix:id: in byte order.
func (s *BadgerService) Scan(prefix, id string, fn func(tag string, raw []byte) error) error {
	head := []byte(storeKey(prefix, id, ""))
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = head
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(head); it.ValidForPrefix(head); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.Key()[len(head):]), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

type badgerStore struct {
	db  *badger.DB
	key []byte
}

func (s *badgerStore) Save(data any) error {
	persistLog.WithField("key", string(s.key)).Debug("save")
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, b)
	})
}

func (s *badgerStore) Load(data any) error {
	persistLog.WithField("key", string(s.key)).Debug("load")
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotExists
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, data)
}
