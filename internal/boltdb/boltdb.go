// Package boltdb stores session records in a bbolt database.
package boltdb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	rip_stream "github.com/alanbriolat/rip-stream"
)

var Buckets = struct {
	Metadata []byte
	Sessions []byte
}{
	Metadata: []byte("__metadata__"),
	Sessions: []byte("sessions"),
}

var MetadataKeys = struct {
	Version []byte
}{
	Version: []byte("version"),
}

const currentVersion = 1

type Database interface {
	Close() error

	rip_stream.Store
}

type database struct {
	*bbolt.DB
}

// New opens (creating if needed) the database at path.
func New(path string) (_ Database, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) (err error) {
		var metadata *bbolt.Bucket
		if metadata, err = tx.CreateBucketIfNotExists(Buckets.Metadata); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(Buckets.Sessions); err != nil {
			return err
		}

		var version int
		if versionBytes := metadata.Get(MetadataKeys.Version); versionBytes == nil {
			version = 0
		} else if err = json.Unmarshal(versionBytes, &version); err != nil {
			return err
		}
		if version > currentVersion {
			return fmt.Errorf("state database version %d is newer than supported version %d", version, currentVersion)
		}

		if versionBytes, err := json.Marshal(currentVersion); err != nil {
			return err
		} else if err = metadata.Put(MetadataKeys.Version, versionBytes); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &database{db}, nil
}

func (d database) GetSession(name string) (record *rip_stream.SessionRecord, err error) {
	err = d.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(Buckets.Sessions).Get([]byte(name))
		if data == nil {
			return nil
		}
		record = &rip_stream.SessionRecord{}
		return json.Unmarshal(data, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (d database) ListSessions() (records []rip_stream.SessionRecord, err error) {
	err = d.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Sessions).ForEach(func(k, v []byte) error {
			var record rip_stream.SessionRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("session %q: %w", k, err)
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (d database) PutSession(record *rip_stream.SessionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return d.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Sessions).Put([]byte(record.OutputName), data)
	})
}

func (d database) DeleteSession(name string) error {
	return d.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Sessions).Delete([]byte(name))
	})
}
