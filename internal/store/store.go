package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

var (
	bucketDatasets    = []byte("datasets")
	bucketSamples     = []byte("samples")
	bucketDetections  = []byte("detections")
	bucketSuggestions = []byte("suggestions")
	bucketFeedback    = []byte("feedback")
	bucketModels      = []byte("models")
	bucketIterations  = []byte("iterations")
)

// Store wraps a bbolt database holding all engine state.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketDatasets, bucketSamples, bucketDetections,
			bucketSuggestions, bucketFeedback, bucketModels, bucketIterations,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("store opened")
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func putJSON(b *bbolt.Bucket, id uint64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return b.Put(itob(id), data)
}

func getJSON(b *bbolt.Bucket, id uint64, v any) error {
	data := b.Get(itob(id))
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

// forEach decodes every record in a bucket into a fresh T and passes it to
// fn. Iteration order is key order.
func forEach[T any](b *bbolt.Bucket, fn func(*T)) error {
	return b.ForEach(func(_, data []byte) error {
		var rec T
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		fn(&rec)
		return nil
	})
}

// --- datasets ---

func (s *Store) CreateDataset(d *Dataset) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDatasets)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		d.ID = id
		if d.CreatedAt.IsZero() {
			d.CreatedAt = time.Now().UTC()
		}
		return putJSON(b, id, d)
	})
}

func (s *Store) GetDataset(id uint64) (*Dataset, error) {
	var d Dataset
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx.Bucket(bucketDatasets), id, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) ListDatasets() ([]*Dataset, error) {
	var out []*Dataset
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(bucketDatasets), func(d *Dataset) {
			out = append(out, d)
		})
	})
	return out, err
}

// UpdateDataset rewrites an existing dataset record.
func (s *Store) UpdateDataset(d *Dataset) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDatasets)
		if b.Get(itob(d.ID)) == nil {
			return ErrNotFound
		}
		return putJSON(b, d.ID, d)
	})
}

// --- samples ---

// InsertSamples assigns IDs and writes all samples in one transaction.
func (s *Store) InsertSamples(samples []*Sample) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSamples)
		for _, sample := range samples {
			id, err := b.NextSequence()
			if err != nil {
				return err
			}
			sample.ID = id
			if err := putJSON(b, id, sample); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetSample(id uint64) (*Sample, error) {
	var sample Sample
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx.Bucket(bucketSamples), id, &sample)
	})
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

// SamplesByDataset returns the dataset's samples ordered by their original
// row position.
func (s *Store) SamplesByDataset(datasetID uint64) ([]*Sample, error) {
	var out []*Sample
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(bucketSamples), func(sample *Sample) {
			if sample.DatasetID == datasetID {
				out = append(out, sample)
			}
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SampleIndex < out[j].SampleIndex })
	return out, nil
}

// UpdateSamples rewrites the given samples atomically. Used by the
// correction applier so a batch either fully applies or not at all.
func (s *Store) UpdateSamples(samples []*Sample) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSamples)
		for _, sample := range samples {
			if b.Get(itob(sample.ID)) == nil {
				return fmt.Errorf("sample %d: %w", sample.ID, ErrNotFound)
			}
			if err := putJSON(b, sample.ID, sample); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- detections ---

// ReplaceDetections deletes the iteration's existing detections for the
// dataset and inserts the new set in the same transaction, so a rerun can
// never leave two detections for one sample.
func (s *Store) ReplaceDetections(datasetID uint64, iteration int, dets []*Detection) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDetections)

		var stale [][]byte
		err := b.ForEach(func(k, data []byte) error {
			var d Detection
			if err := json.Unmarshal(data, &d); err != nil {
				return err
			}
			if d.DatasetID == datasetID && d.Iteration == iteration {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		for _, d := range dets {
			id, err := b.NextSequence()
			if err != nil {
				return err
			}
			d.ID = id
			if d.CreatedAt.IsZero() {
				d.CreatedAt = time.Now().UTC()
			}
			if err := putJSON(b, id, d); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetDetection(id uint64) (*Detection, error) {
	var d Detection
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx.Bucket(bucketDetections), id, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DetectionsByDataset returns detections for a dataset. Pass iteration < 0
// for all iterations.
func (s *Store) DetectionsByDataset(datasetID uint64, iteration int) ([]*Detection, error) {
	var out []*Detection
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(bucketDetections), func(d *Detection) {
			if d.DatasetID == datasetID && (iteration < 0 || d.Iteration == iteration) {
				out = append(out, d)
			}
		})
	})
	return out, err
}

// --- suggestions ---

func (s *Store) CreateSuggestion(sug *Suggestion) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSuggestions)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		sug.ID = id
		if sug.CreatedAt.IsZero() {
			sug.CreatedAt = time.Now().UTC()
		}
		return putJSON(b, id, sug)
	})
}

func (s *Store) GetSuggestion(id uint64) (*Suggestion, error) {
	var sug Suggestion
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx.Bucket(bucketSuggestions), id, &sug)
	})
	if err != nil {
		return nil, err
	}
	return &sug, nil
}

// SuggestionsByDataset returns a dataset's suggestions, optionally
// filtered by status, ordered by priority descending.
func (s *Store) SuggestionsByDataset(datasetID uint64, status string) ([]*Suggestion, error) {
	var out []*Suggestion
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(bucketSuggestions), func(sug *Suggestion) {
			if sug.DatasetID == datasetID && (status == "" || sug.Status == status) {
				out = append(out, sug)
			}
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

// SuggestionExistsForDetection reports whether a suggestion was already
// materialized from the given detection.
func (s *Store) SuggestionExistsForDetection(detectionID uint64) (bool, error) {
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(bucketSuggestions), func(sug *Suggestion) {
			if sug.DetectionID == detectionID {
				found = true
			}
		})
	})
	return found, err
}

// ReviewSuggestion writes the reviewed suggestion and upserts its feedback
// entry in one transaction. The feedback row is keyed by suggestion: a
// re-review rewrites the existing row, preserving its ID and CreatedAt.
func (s *Store) ReviewSuggestion(sug *Suggestion, fb *Feedback) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		sb := tx.Bucket(bucketSuggestions)
		if sb.Get(itob(sug.ID)) == nil {
			return fmt.Errorf("suggestion %d: %w", sug.ID, ErrNotFound)
		}
		if err := putJSON(sb, sug.ID, sug); err != nil {
			return err
		}

		fbB := tx.Bucket(bucketFeedback)
		var existing *Feedback
		err := forEach(fbB, func(f *Feedback) {
			if f.SuggestionID == sug.ID {
				existing = f
			}
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if existing != nil {
			fb.ID = existing.ID
			fb.CreatedAt = existing.CreatedAt
		} else {
			id, err := fbB.NextSequence()
			if err != nil {
				return err
			}
			fb.ID = id
			fb.CreatedAt = now
		}
		fb.UpdatedAt = now
		return putJSON(fbB, fb.ID, fb)
	})
}

// --- feedback ---

func (s *Store) FeedbackBySuggestion(suggestionID uint64) (*Feedback, error) {
	var found *Feedback
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(bucketFeedback), func(f *Feedback) {
			if f.SuggestionID == suggestionID {
				found = f
			}
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// FeedbackByDataset returns a dataset's ledger entries. Pass iteration < 0
// for all iterations.
func (s *Store) FeedbackByDataset(datasetID uint64, iteration int) ([]*Feedback, error) {
	var out []*Feedback
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(bucketFeedback), func(f *Feedback) {
			if f.DatasetID == datasetID && (iteration < 0 || f.Iteration == iteration) {
				out = append(out, f)
			}
		})
	})
	return out, err
}

// --- models ---

func (s *Store) SaveModel(m *MLModel) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketModels)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		m.ID = id
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		return putJSON(b, id, m)
	})
}

// BaselineModel returns the dataset's baseline model, or ErrNotFound when
// no baseline was trained yet.
func (s *Store) BaselineModel(datasetID uint64) (*MLModel, error) {
	var found *MLModel
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(bucketModels), func(m *MLModel) {
			if m.DatasetID == datasetID && m.IsBaseline {
				found = m
			}
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *Store) ModelsByDataset(datasetID uint64) ([]*MLModel, error) {
	var out []*MLModel
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(bucketModels), func(m *MLModel) {
			if m.DatasetID == datasetID {
				out = append(out, m)
			}
		})
	})
	return out, err
}

// --- iterations ---

func (s *Store) SaveIteration(it *ModelIteration) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIterations)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		it.ID = id
		if it.CreatedAt.IsZero() {
			it.CreatedAt = time.Now().UTC()
		}
		return putJSON(b, id, it)
	})
}

func (s *Store) IterationsByDataset(datasetID uint64) ([]*ModelIteration, error) {
	var out []*ModelIteration
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(bucketIterations), func(it *ModelIteration) {
			if it.DatasetID == datasetID {
				out = append(out, it)
			}
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Iteration < out[j].Iteration })
	return out, nil
}

// LatestIteration returns the highest recorded retrain iteration for a
// dataset, zero when none exist.
func (s *Store) LatestIteration(datasetID uint64) (int, error) {
	latest := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(bucketIterations), func(it *ModelIteration) {
			if it.DatasetID == datasetID && it.Iteration > latest {
				latest = it.Iteration
			}
		})
	})
	return latest, err
}
