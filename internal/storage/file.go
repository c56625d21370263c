package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	logx "alarmd/pkg/logx"
)

// tailSize caps the outcomes kept in memory for RecentOutcomes.
const tailSize = 1000

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.outcomes.jsonl (append-only JSON Lines)
//
// Prune rewrites the file through a temp file + rename.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File
	tail []Outcome // oldest first
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "storage: mkdir")
	}
	path = filepath.Join(dir, base) + ".outcomes.jsonl"

	s := &fileStore{log: log, path: path}
	n, err := s.load()
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "storage: load %s", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "storage: open")
	}
	s.f = f
	log.Debug("outcome journal opened", logx.String("path", path), logx.Int("records", n))
	return s, nil
}

func (s *fileStore) load() (int, error) {
	n := 0
	err := scanOutcomes(s.path, func(o Outcome) {
		n++
		s.pushLocked(o)
	})
	return n, err
}

func (s *fileStore) pushLocked(o Outcome) {
	s.tail = append(s.tail, o)
	if len(s.tail) > tailSize {
		s.tail = s.tail[len(s.tail)-tailSize:]
	}
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendOutcome(_ context.Context, o Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("outcome journal closed")
	}
	if err := json.NewEncoder(s.f).Encode(o); err != nil {
		return errors.Wrap(err, "storage: append")
	}
	s.pushLocked(o)
	return nil
}

func (s *fileStore) RecentOutcomes(_ context.Context, limit int) ([]Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.tail) {
		limit = len(s.tail)
	}
	out := make([]Outcome, 0, limit)
	for i := len(s.tail) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.tail[i])
	}
	return out, nil
}

func (s *fileStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, errors.New("outcome journal closed")
	}

	var keep []Outcome
	dropped := 0
	if err := scanOutcomes(s.path, func(o Outcome) {
		if o.At.Before(cutoff) {
			dropped++
			return
		}
		keep = append(keep, o)
	}); err != nil {
		return 0, errors.Wrap(err, "storage: prune scan")
	}
	if dropped == 0 {
		return 0, nil
	}

	tmp := s.path + ".tmp"
	tf, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, errors.Wrap(err, "storage: prune")
	}
	enc := json.NewEncoder(tf)
	for _, o := range keep {
		if err := enc.Encode(o); err != nil {
			_ = tf.Close()
			return 0, errors.Wrap(err, "storage: prune write")
		}
	}
	if err := tf.Close(); err != nil {
		return 0, errors.Wrap(err, "storage: prune")
	}

	_ = s.f.Close()
	s.f = nil
	if err := os.Rename(tmp, s.path); err != nil {
		return 0, errors.Wrap(err, "storage: prune rename")
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, errors.Wrap(err, "storage: reopen")
	}
	s.f = f

	s.tail = s.tail[:0]
	for _, o := range keep {
		s.pushLocked(o)
	}
	return dropped, nil
}

func scanOutcomes(path string, fn func(Outcome)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var o Outcome
		if err := json.Unmarshal(sc.Bytes(), &o); err != nil || o.JobID == "" {
			continue
		}
		fn(o)
	}
	return sc.Err()
}
