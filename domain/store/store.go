package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pyama86/feedback-control/domain/model"
)

var (
	ErrNotReady      = errors.New("feedback store is not ready")
	ErrStaleResponse = errors.New("response time is older than the current response")
	errDuplicateID   = errors.New("duplicate feedback id")
)

type Loader interface {
	Load(ctx context.Context) ([]model.Feedback, error)
}

type LoaderFunc func(ctx context.Context) ([]model.Feedback, error)

func (f LoaderFunc) Load(ctx context.Context) ([]model.Feedback, error) {
	return f(ctx)
}

// 更新のたびに作り直す。一度公開した snapshot は変更しない
type snapshot struct {
	order []int
	byID  map[int]model.Feedback
}

func newSnapshot(records []model.Feedback) (*snapshot, error) {
	s := &snapshot{
		order: make([]int, 0, len(records)),
		byID:  make(map[int]model.Feedback, len(records)),
	}
	for _, f := range records {
		if _, ok := s.byID[f.ID]; ok {
			return nil, fmt.Errorf("%w: %d", errDuplicateID, f.ID)
		}
		s.order = append(s.order, f.ID)
		s.byID[f.ID] = f
	}
	return s, nil
}

func (s *snapshot) records() []model.Feedback {
	out := make([]model.Feedback, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// 対象の1件だけを差し替えた新しい snapshot を返す
func (s *snapshot) replace(f model.Feedback) *snapshot {
	byID := make(map[int]model.Feedback, len(s.byID))
	for k, v := range s.byID {
		byID[k] = v
	}
	byID[f.ID] = f
	return &snapshot{order: s.order, byID: byID}
}

// セッション中のフィードバック一覧を保持する
type Store struct {
	mu    sync.RWMutex
	state model.State
	snap  *snapshot
	rng   model.DateRange
}

func New() *Store {
	return &Store{
		state: model.State{Phase: model.PhaseLoading},
		snap:  &snapshot{byID: map[int]model.Feedback{}},
	}
}

// 読み込みは1セッションにつき1回。失敗したら一覧は空のまま Error になる
func (s *Store) Load(ctx context.Context, l Loader) error {
	s.mu.RLock()
	phase := s.state.Phase
	s.mu.RUnlock()
	if phase != model.PhaseLoading {
		return fmt.Errorf("load: %w: %s -> %s", model.ErrInvalidTransition, phase, model.PhaseReady)
	}
	return s.load(ctx, l)
}

// Error からの手動リトライ
func (s *Store) Reload(ctx context.Context, l Loader) error {
	s.mu.Lock()
	next, err := s.state.Retry()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("reload: %w", err)
	}
	s.state = next
	s.mu.Unlock()
	return s.load(ctx, l)
}

func (s *Store) load(ctx context.Context, l Loader) error {
	records, err := l.Load(ctx)
	var snap *snapshot
	if err == nil {
		snap, err = newSnapshot(records)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.snap = &snapshot{byID: map[int]model.Feedback{}}
		next, terr := s.state.Failed(err)
		if terr != nil {
			return terr
		}
		s.state = next
		return err
	}

	next, terr := s.state.Loaded()
	if terr != nil {
		return terr
	}
	s.snap = snap
	s.state = next
	return nil
}

func (s *Store) State() model.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snap.order)
}

// 読み込み順の一覧
func (s *Store) Records() []model.Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.records()
}

func (s *Store) Get(id int) (model.Feedback, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.snap.byID[id]
	return f, ok
}

// id に一致する1件に回答を反映し、更新後の一覧を返す。
// 存在しない id は何もしない
func (s *Store) SubmitResponse(id int, text string, status model.ResponseStatus, at time.Time) ([]model.Feedback, error) {
	if !status.Submittable() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidStatus, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase != model.PhaseReady {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, s.state.Phase)
	}

	cur, ok := s.snap.byID[id]
	if !ok {
		return s.snap.records(), nil
	}
	if cur.ResponseTime != nil && at.Before(*cur.ResponseTime) {
		return nil, fmt.Errorf("%w: id=%d", ErrStaleResponse, id)
	}

	updated, err := cur.WithResponse(text, status, at)
	if err != nil {
		return nil, err
	}
	s.snap = s.snap.replace(updated)
	return s.snap.records(), nil
}

func (s *Store) SetDateRange(start, end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = model.DateRange{Start: start, End: end}
}

func (s *Store) DateRange() model.DateRange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rng
}

// 表示用の一覧
func (s *Store) View() []model.Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.View(s.snap.records(), s.rng)
}
