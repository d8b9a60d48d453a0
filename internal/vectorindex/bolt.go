package vectorindex

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/xxxsen/docchat/internal/model"
)

var bucketChunks = []byte("chunks")

type boltConfig struct {
	Path string `json:"path"`
}

// boltRecord keeps the embedding, which model.Chunk hides from JSON.
type boltRecord struct {
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	Page      int       `json:"page"`
	Position  int       `json:"position"`
	Embedding []float32 `json:"embedding"`
}

type boltIndex struct {
	db *bbolt.DB
}

func init() {
	Register("bolt", func(args interface{}, deps Deps) (Index, error) {
		cfg := &boltConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, fmt.Errorf("bolt index path is required")
		}
		return NewBolt(cfg.Path)
	})
}

func NewBolt(path string) (Index, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketChunks)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &boltIndex{db: db}, nil
}

func (b *boltIndex) Type() string {
	return "bolt"
}

func (b *boltIndex) Clear(ctx context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketChunks); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketChunks)
		return err
	})
}

// UpsertAll rebuilds the bucket in one bolt transaction.
func (b *boltIndex) UpsertAll(ctx context.Context, chunks []model.Chunk) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketChunks); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		bucket, err := tx.CreateBucket(bucketChunks)
		if err != nil {
			return err
		}
		for _, c := range chunks {
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(boltRecord{
				Text:      c.Text,
				Source:    c.Source,
				Page:      c.Page,
				Position:  c.Position,
				Embedding: c.Embedding,
			})
			if err != nil {
				return err
			}
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, seq)
			if err := bucket.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *boltIndex) Search(ctx context.Context, vector []float32, k int) ([]model.ChunkMatch, error) {
	var chunks []model.Chunk
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketChunks)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			chunks = append(chunks, model.Chunk{
				Text:      rec.Text,
				Source:    rec.Source,
				Page:      rec.Page,
				Position:  rec.Position,
				Embedding: rec.Embedding,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return bruteForceTopK(chunks, vector, k)
}

func (b *boltIndex) Close() error {
	return b.db.Close()
}
