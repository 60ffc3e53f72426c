package blockstore

import (
	"encoding/binary"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// ColdStore persists encoded blocks and import-time segments in a
// badger database under the artifact directory.
type ColdStore struct {
	db *badger.DB
}

// ErrBlockNotFound indicates a requested block id with no cold copy.
var ErrBlockNotFound = fmt.Errorf("blockstore: block not found")

// Badger key spaces.
const (
	keyPrefixBlock   = 'b'
	keyPrefixSegment = 's'
	keyMeta          = "m"
)

// OpenColdStore opens (or creates) the block database at dir.
func OpenColdStore(dir string) (*ColdStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening block store: %w", err)
	}
	return &ColdStore{db: db}, nil
}

// Close closes the underlying database.
func (c *ColdStore) Close() error {
	return c.db.Close()
}

func blockKey(id uint32) []byte {
	k := make([]byte, 5)
	k[0] = keyPrefixBlock
	binary.BigEndian.PutUint32(k[1:], id)
	return k
}

func segmentKey(id uint32, seq uint64) []byte {
	k := make([]byte, 13)
	k[0] = keyPrefixSegment
	binary.BigEndian.PutUint32(k[1:], id)
	binary.BigEndian.PutUint64(k[5:], seq)
	return k
}

// PutMeta stores the block width so readers can partition node ids.
func (c *ColdStore) PutMeta(width uint32) error {
	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], width)
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyMeta), v[:])
	})
}

// Meta returns the stored block width.
func (c *ColdStore) Meta() (uint32, error) {
	var width uint32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyMeta))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			if len(v) != 4 {
				return fmt.Errorf("blockstore: bad meta record")
			}
			width = binary.LittleEndian.Uint32(v)
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("reading block meta: %w", err)
	}
	return width, nil
}

// PutBlock writes a block's encoded form.
func (c *ColdStore) PutBlock(b *Block) error {
	data := EncodeBlock(b)
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blockKey(b.ID), data)
	})
	if err != nil {
		return fmt.Errorf("writing block %d: %w", b.ID, err)
	}
	return nil
}

// GetBlock reads and decodes a block. Returns ErrBlockNotFound when no
// block with that id was persisted.
func (c *ColdStore) GetBlock(id uint32) (*Block, error) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("%w: id %d", ErrBlockNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading block %d: %w", id, err)
	}
	return DecodeBlock(data)
}

// AppendSegment persists one import-time record segment for a block.
func (c *ColdStore) AppendSegment(id uint32, seq uint64, data []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(segmentKey(id, seq), data)
	})
	if err != nil {
		return fmt.Errorf("writing segment %d/%d: %w", id, seq, err)
	}
	return nil
}

// Segments streams every persisted segment of a block in sequence
// order.
func (c *ColdStore) Segments(id uint32, fn func(data []byte) error) error {
	prefix := segmentKey(id, 0)[:5]
	return c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				return fn(v)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteSegments removes every segment of a block after it has been
// merged into its final form.
func (c *ColdStore) DeleteSegments(id uint32) error {
	prefix := segmentKey(id, 0)[:5]
	var keys [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
