package record

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketTasks      = []byte("tasks")
	bucketEvents     = []byte("events")
	bucketExecutions = []byte("executions")
)

// BoltStore persists bus activity to a bbolt file. Each record is a JSON
// value keyed by its ID.
type BoltStore struct {
	db     *bolt.DB
	mu     sync.RWMutex
	closed bool
}

// NewBoltStore opens or creates a bbolt store at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketTasks, bucketEvents, bucketExecutions} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func putJSON(tx *bolt.Tx, bucket []byte, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", bucket, id, err)
	}
	return tx.Bucket(bucket).Put([]byte(id), data)
}

func getJSON(tx *bolt.Tx, bucket []byte, id string, v any) (bool, error) {
	data := tx.Bucket(bucket).Get([]byte(id))
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s/%s: %w", bucket, id, err)
	}
	return true, nil
}

func loadBucket[T any](tx *bolt.Tx, bucket []byte, into map[string]T) error {
	return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return fmt.Errorf("unmarshal %s/%s: %w", bucket, k, err)
		}
		into[string(k)] = item
		return nil
	})
}

// loadTx reads every bucket into a snapshot.
func loadTx(tx *bolt.Tx) (*snapshot, error) {
	snap := newSnapshot()
	if err := loadBucket(tx, bucketTasks, snap.tasks); err != nil {
		return nil, err
	}
	if err := loadBucket(tx, bucketEvents, snap.events); err != nil {
		return nil, err
	}
	if err := loadBucket(tx, bucketExecutions, snap.execs); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *BoltStore) update(fn func(tx *bolt.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(fn)
}

func (s *BoltStore) view() (*snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	var snap *snapshot
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		snap, err = loadTx(tx)
		return err
	})
	return snap, err
}

// SaveTask implements Store.
func (s *BoltStore) SaveTask(_ context.Context, task Task) error {
	task.Filters = normalizeMap(task.Filters)
	return s.update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketTasks, task.ID, task)
	})
}

// SaveEvent implements Store.
func (s *BoltStore) SaveEvent(_ context.Context, evt EventRecord) error {
	evt.Data = normalize(evt.Data)
	evt.Metadata = normalizeMap(evt.Metadata)
	return s.update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketEvents, evt.ID, evt)
	})
}

// StartExecution implements Store.
func (s *BoltStore) StartExecution(_ context.Context, exec Execution) error {
	exec.Status = StatusRunning
	exec.Context = normalizeMap(exec.Context)
	return s.update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketExecutions, exec.ID, exec)
	})
}

// CompleteExecution implements Store.
func (s *BoltStore) CompleteExecution(_ context.Context, id string, result any, errMsg string, at time.Time) error {
	return s.update(func(tx *bolt.Tx) error {
		snap := newSnapshot()

		var exec Execution
		found, err := getJSON(tx, bucketExecutions, id, &exec)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		snap.execs[id] = exec

		var task Task
		if found, err = getJSON(tx, bucketTasks, exec.TaskID, &task); err != nil {
			return err
		}
		if found {
			snap.tasks[task.ID] = task
		}

		exec, task, taskFound, err := snap.complete(id, result, errMsg, at)
		if err != nil {
			return err
		}
		if err := putJSON(tx, bucketExecutions, id, exec); err != nil {
			return err
		}
		if taskFound {
			return putJSON(tx, bucketTasks, task.ID, task)
		}
		return nil
	})
}

// ActiveTasks implements Store.
func (s *BoltStore) ActiveTasks(_ context.Context, eventName, namespace string) ([]Task, error) {
	snap, err := s.view()
	if err != nil {
		return nil, err
	}
	return snap.activeTasks(eventName, namespace), nil
}

// History implements Store.
func (s *BoltStore) History(_ context.Context, eventName string, limit int) ([]HistoryEntry, error) {
	snap, err := s.view()
	if err != nil {
		return nil, err
	}
	return snap.history(eventName, limit), nil
}

// Stats implements Store.
func (s *BoltStore) Stats(_ context.Context, since time.Time) (Stats, error) {
	snap, err := s.view()
	if err != nil {
		return Stats{}, err
	}
	return snap.stats(since, time.Now()), nil
}

// Cleanup implements Store.
func (s *BoltStore) Cleanup(_ context.Context, before time.Time) (CleanupResult, error) {
	var res CleanupResult
	err := s.update(func(tx *bolt.Tx) error {
		snap, err := loadTx(tx)
		if err != nil {
			return err
		}

		plan := snap.planCleanup(before)
		for bucket, ids := range map[string][]string{
			string(bucketExecutions): plan.execs,
			string(bucketEvents):     plan.events,
			string(bucketTasks):      plan.tasks,
		} {
			b := tx.Bucket([]byte(bucket))
			for _, id := range ids {
				if err := b.Delete([]byte(id)); err != nil {
					return fmt.Errorf("delete %s/%s: %w", bucket, id, err)
				}
			}
		}
		res = plan.result()
		return nil
	})
	return res, err
}

// Close implements Store.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
