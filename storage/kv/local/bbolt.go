package local

import (
	"time"

	"github.com/jrife/kvbackend/storage/kv"
	"github.com/jrife/kvbackend/storage/kv/keys"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var rootBucket = []byte("kv")

// OpenBBolt returns an engine persisted in the bbolt
// database file at path, creating it if needed.
func OpenBBolt(path string, opts ...Option) (*Engine, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})

	if err != nil {
		return nil, errors.Wrapf(err, "could not open bbolt store at %s", path)
	}

	if err := db.Update(func(txn *bolt.Tx) error {
		_, err := txn.CreateBucketIfNotExists(rootBucket)

		return err
	}); err != nil {
		db.Close()

		return nil, errors.Wrap(err, "could not ensure root bucket exists")
	}

	return newEngine(BBoltDriverName, &bboltBackend{db: db}, opts...), nil
}

type bboltBackend struct {
	db *bolt.DB
}

func (b *bboltBackend) view(fn func(ks keyspace) error) error {
	return b.translate(b.db.View(func(txn *bolt.Tx) error {
		return fn(&bboltKeyspace{bucket: txn.Bucket(rootBucket)})
	}))
}

func (b *bboltBackend) update(fn func(ks keyspace) error) error {
	return b.translate(b.db.Update(func(txn *bolt.Tx) error {
		return fn(&bboltKeyspace{bucket: txn.Bucket(rootBucket)})
	}))
}

func (b *bboltBackend) translate(err error) error {
	if err == bolt.ErrDatabaseNotOpen {
		return kv.ErrClosed
	}

	return err
}

func (b *bboltBackend) close() error {
	return b.db.Close()
}

type bboltKeyspace struct {
	bucket *bolt.Bucket
}

func (ks *bboltKeyspace) get(key string) (*value, error) {
	data := ks.bucket.Get([]byte(key))

	if data == nil {
		return nil, nil
	}

	v, err := decodeValue(data)

	if err != nil {
		return nil, errors.Wrapf(err, "could not decode value at %s", key)
	}

	return v, nil
}

func (ks *bboltKeyspace) put(key string, v *value) error {
	data, err := encodeValue(v)

	if err != nil {
		return errors.Wrapf(err, "could not encode value at %s", key)
	}

	return ks.bucket.Put([]byte(key), data)
}

func (ks *bboltKeyspace) del(key string) error {
	return ks.bucket.Delete([]byte(key))
}

func (ks *bboltKeyspace) scan(r keys.Range, fn func(key string) error) error {
	cursor := ks.bucket.Cursor()

	var k []byte

	if len(r.Min) == 0 {
		k, _ = cursor.First()
	} else {
		k, _ = cursor.Seek(r.Min)
	}

	for ; k != nil && !r.Past(k); k, _ = cursor.Next() {
		if err := fn(string(k)); err != nil {
			return err
		}
	}

	return nil
}
