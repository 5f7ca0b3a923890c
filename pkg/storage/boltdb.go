package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/attachctl/attachctl/pkg/shardstate"
	"github.com/attachctl/attachctl/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketNodes  = []byte("nodes")
	bucketShards = []byte("shards")
)

// BoltStore implements Store on top of a local bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "attachctl.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketNodes, bucketShards} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) SaveNode(node types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(node)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketNodes).Put([]byte(node.Id), data)
	})
}

func (s *BoltStore) ListNodes() ([]types.Node, error) {
	var nodes []types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var n types.Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			nodes = append(nodes, n)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) DeleteNode(id types.NodeId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).Delete([]byte(id))
	})
}

func (s *BoltStore) SaveShard(snap shardstate.Snapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketShards).Put([]byte(snap.TenantShardID.String()), data)
	})
}

func (s *BoltStore) ListShards() ([]shardstate.Snapshot, error) {
	var shards []shardstate.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketShards).ForEach(func(k, v []byte) error {
			var snap shardstate.Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return err
			}
			shards = append(shards, snap)
			return nil
		})
	})
	return shards, err
}

func (s *BoltStore) DeleteShard(id types.TenantShardId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketShards).Delete([]byte(id.String()))
	})
}
