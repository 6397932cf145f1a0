// Package bolt persists the retrieval index snapshot in a bbolt file.
//
// Layout:
//
//	meta     model, dimensions, built_at, chunk count
//	chunks   position (big-endian uint32) -> chunk JSON
//	vectors  position -> little-endian float32 blob
//	idf      term -> float64 bits
//
// Save replaces every bucket inside one write transaction, so a reader never
// observes half a snapshot.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
)

// SnapshotFile is the file name inside the data directory.
const SnapshotFile = "index.bolt"

var (
	bucketMeta    = []byte("meta")
	bucketChunks  = []byte("chunks")
	bucketVectors = []byte("vectors")
	bucketIDF     = []byte("idf")

	keyModel      = []byte("embedding_model")
	keyDimensions = []byte("dimensions")
	keyBuiltAt    = []byte("built_at")
	keyCount      = []byte("chunk_count")
)

var _ driven.IndexSnapshotStore = (*SnapshotStore)(nil)

// SnapshotStore implements driven.IndexSnapshotStore.
type SnapshotStore struct {
	db *bbolt.DB
}

type chunkRecord struct {
	ID       string             `json:"id"`
	SourceID string             `json:"source_id"`
	Ordinal  int                `json:"ordinal"`
	Content  string             `json:"content"`
	Terms    map[string]float64 `json:"terms,omitempty"`
}

// NewSnapshotStore opens <dataDir>/index.bolt.
func NewSnapshotStore(dataDir string) (*SnapshotStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return Open(filepath.Join(dataDir, SnapshotFile))
}

// Open opens the bolt file at path.
func Open(path string) (*SnapshotStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// Save replaces the stored snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.IndexSnapshot) error {
	if snap == nil {
		return domain.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketChunks, bucketVectors, bucketIDF} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return fmt.Errorf("clear bucket %s: %w", name, err)
				}
			}
		}
		meta, err := tx.CreateBucket(bucketMeta)
		if err != nil {
			return err
		}
		chunks, err := tx.CreateBucket(bucketChunks)
		if err != nil {
			return err
		}
		vectors, err := tx.CreateBucket(bucketVectors)
		if err != nil {
			return err
		}
		idf, err := tx.CreateBucket(bucketIDF)
		if err != nil {
			return err
		}

		for i, c := range snap.Chunks {
			key := positionKey(i)
			data, err := json.Marshal(chunkRecord{
				ID: c.ID, SourceID: c.SourceID, Ordinal: c.Ordinal, Content: c.Content, Terms: c.Terms,
			})
			if err != nil {
				return fmt.Errorf("encode chunk %d: %w", i, err)
			}
			if err := chunks.Put(key, data); err != nil {
				return err
			}
			if len(c.Embedding) > 0 {
				if err := vectors.Put(key, encodeVector(c.Embedding)); err != nil {
					return err
				}
			}
		}

		for term, w := range snap.IDF {
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(w))
			if err := idf.Put([]byte(term), buf[:]); err != nil {
				return err
			}
		}

		puts := map[string]string{
			string(keyModel):      snap.EmbeddingModel,
			string(keyDimensions): strconv.Itoa(snap.Dimensions),
			string(keyBuiltAt):    snap.BuiltAt.UTC().Format(time.RFC3339Nano),
			string(keyCount):      strconv.Itoa(len(snap.Chunks)),
		}
		for k, v := range puts {
			if err := meta.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load returns the stored snapshot, or domain.ErrNotFound when none was saved.
func (s *SnapshotStore) Load(ctx context.Context) (*domain.IndexSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var snap *domain.IndexSnapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return domain.ErrNotFound
		}

		count, err := strconv.Atoi(string(meta.Get(keyCount)))
		if err != nil {
			return fmt.Errorf("corrupt snapshot: chunk count: %w", err)
		}
		dims, _ := strconv.Atoi(string(meta.Get(keyDimensions)))
		builtAt, _ := time.Parse(time.RFC3339Nano, string(meta.Get(keyBuiltAt)))

		out := &domain.IndexSnapshot{
			Chunks:         make([]domain.Chunk, count),
			IDF:            make(map[string]float64),
			EmbeddingModel: string(meta.Get(keyModel)),
			Dimensions:     dims,
			BuiltAt:        builtAt,
		}

		chunks := tx.Bucket(bucketChunks)
		vectors := tx.Bucket(bucketVectors)
		for i := 0; i < count; i++ {
			key := positionKey(i)
			data := chunks.Get(key)
			if data == nil {
				return fmt.Errorf("corrupt snapshot: chunk %d missing", i)
			}
			var rec chunkRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("corrupt snapshot: chunk %d: %w", i, err)
			}
			out.Chunks[i] = domain.Chunk{
				ID: rec.ID, SourceID: rec.SourceID, Ordinal: rec.Ordinal,
				Content: rec.Content, Terms: rec.Terms,
				Embedding: decodeVector(vectors.Get(key)),
			}
		}

		err = tx.Bucket(bucketIDF).ForEach(func(k, v []byte) error {
			if len(v) != 8 {
				return fmt.Errorf("corrupt snapshot: idf %q", k)
			}
			out.IDF[string(k)] = math.Float64frombits(binary.BigEndian.Uint64(v))
			return nil
		})
		if err != nil {
			return err
		}
		snap = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Close closes the bolt file.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// positionKey sorts chunks by index order under bbolt's byte ordering.
func positionKey(i int) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(i))
	return buf[:]
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector copies out of the bolt page, which is only valid inside the tx.
func decodeVector(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}
