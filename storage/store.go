package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Bucket names for the task store.
const (
	BucketTasks = "TASKINTAKE_TASKS"
	BucketMeta  = "TASKINTAKE_META"
)

// seqKey holds the last assigned task ID in the meta bucket.
const seqKey = "task_seq"

// Store provides task CRUD backed by NATS KV. Every operation is a single
// KV put or delete, so a crash can never leave a partially written record
// visible to readers.
//
// Initialize must be called before any other operation.
type Store struct {
	js    jetstream.JetStream
	tasks jetstream.KeyValue
	meta  jetstream.KeyValue
}

// NewStore creates a new Store with the given JetStream context.
func NewStore(js jetstream.JetStream) *Store {
	return &Store{js: js}
}

// Initialize idempotently ensures the KV buckets exist and upgrades
// records written under an older schema. Records that already carry the
// current schema version are left untouched, so running it repeatedly
// changes nothing.
func (s *Store) Initialize(ctx context.Context) error {
	tasks, err := s.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketTasks,
		Description: "Taskintake task records",
	})
	if err != nil {
		return fmt.Errorf("create tasks bucket: %w", err)
	}

	meta, err := s.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketMeta,
		Description: "Taskintake counters",
	})
	if err != nil {
		return fmt.Errorf("create meta bucket: %w", err)
	}

	s.tasks = tasks
	s.meta = meta

	return s.migrate(ctx)
}

// migrate performs the additive schema upgrade: records below the current
// version gain the optional fields as nulls. Records already at the
// current version are skipped, which is what makes Initialize idempotent.
func (s *Store) migrate(ctx context.Context) error {
	keys, err := s.tasks.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil
		}
		return fmt.Errorf("list task keys: %w", err)
	}

	for _, key := range keys {
		entry, err := s.tasks.Get(ctx, key)
		if err != nil {
			continue
		}

		var t Task
		if err := json.Unmarshal(entry.Value(), &t); err != nil {
			continue
		}
		if t.Schema >= SchemaVersion {
			continue
		}

		// Unmarshal already defaulted the missing optional fields to
		// null; only the version marker needs rewriting.
		t.Schema = SchemaVersion
		data, err := json.Marshal(&t)
		if err != nil {
			return fmt.Errorf("marshal migrated task %s: %w", key, err)
		}
		if _, err := s.tasks.Put(ctx, key, data); err != nil {
			return fmt.Errorf("rewrite migrated task %s: %w", key, err)
		}
	}

	return nil
}

// Create inserts a new task and returns the stored record. The creation
// timestamp is stamped here, not by the caller. IDs are unique, assigned
// in increasing order, and never reused.
func (s *Store) Create(ctx context.Context, text, submitter string, responsible, deadline *string) (*Task, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("task text must not be empty")
	}
	if strings.TrimSpace(submitter) == "" {
		return nil, fmt.Errorf("submitter must not be empty")
	}

	id, err := s.nextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("assign task ID: %w", err)
	}

	t := &Task{
		ID:          id,
		Schema:      SchemaVersion,
		Text:        text,
		Submitter:   submitter,
		Responsible: responsible,
		Deadline:    deadline,
		CreatedAt:   time.Now().UTC(),
	}

	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}

	if _, err := s.tasks.Create(ctx, taskKey(id), data); err != nil {
		return nil, fmt.Errorf("store task: %w", err)
	}

	return t, nil
}

// GetByID retrieves a task by ID. A missing task returns ErrNotFound,
// never a storage error.
func (s *Store) GetByID(ctx context.Context, id int64) (*Task, error) {
	entry, err := s.tasks.Get(ctx, taskKey(id))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}

	var t Task
	if err := json.Unmarshal(entry.Value(), &t); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}

	return &t, nil
}

// ListAll returns all tasks ordered by creation time descending, ties
// broken by insertion order. An empty store yields an empty slice.
func (s *Store) ListAll(ctx context.Context) ([]*Task, error) {
	keys, err := s.tasks.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []*Task{}, nil
		}
		return nil, fmt.Errorf("list task keys: %w", err)
	}

	tasks := make([]*Task, 0, len(keys))
	for _, key := range keys {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		entry, err := s.tasks.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}

		var t Task
		if err := json.Unmarshal(entry.Value(), &t); err != nil {
			continue
		}
		tasks = append(tasks, &t)
	}

	sortTasks(tasks)
	return tasks, nil
}

// Delete removes a task by ID. It reports whether a task existed, so a
// delete against an unknown ID comes back false rather than succeeding
// silently.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := s.tasks.Delete(ctx, taskKey(id)); err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}

	return true, nil
}

// nextID advances the sequence key with a revision-checked update,
// retrying on contention. The sequence only ever grows, so IDs are never
// reused even after deletes.
func (s *Store) nextID(ctx context.Context) (int64, error) {
	for {
		entry, err := s.meta.Get(ctx, seqKey)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				if _, cerr := s.meta.Create(ctx, seqKey, []byte("1")); cerr != nil {
					if errors.Is(cerr, jetstream.ErrKeyExists) {
						continue // Another writer claimed ID 1
					}
					return 0, fmt.Errorf("create sequence key: %w", cerr)
				}
				return 1, nil
			}
			return 0, fmt.Errorf("read sequence key: %w", err)
		}

		last, err := strconv.ParseInt(string(entry.Value()), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt sequence key %q: %w", entry.Value(), err)
		}

		next := last + 1
		if _, err := s.meta.Update(ctx, seqKey, []byte(strconv.FormatInt(next, 10)), entry.Revision()); err != nil {
			if isRevisionConflict(err) {
				continue
			}
			return 0, fmt.Errorf("advance sequence key: %w", err)
		}
		return next, nil
	}
}

// taskKey formats an ID as a fixed-width KV key.
func taskKey(id int64) string {
	return fmt.Sprintf("%012d", id)
}

// sortTasks orders tasks most recent first; equal timestamps fall back to
// insertion order (ascending ID).
func sortTasks(tasks []*Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// isRevisionConflict checks if an error indicates a lost KV update race.
func isRevisionConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "wrong last sequence")
}
