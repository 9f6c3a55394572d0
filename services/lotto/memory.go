package lotto

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used for tests and development. It is
// interchangeable with the Postgres store.
type MemoryStore struct {
	mu     sync.RWMutex
	cfg    *Config
	rounds map[uint64]Round
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rounds: make(map[uint64]Round)}
}

func (s *MemoryStore) InitConfig(ctx context.Context, cfg Config) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg != nil {
		return Config{}, ErrConfigExists
	}
	c := cfg
	s.cfg = &c
	return c, nil
}

func (s *MemoryStore) GetConfig(ctx context.Context) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cfg == nil {
		return Config{}, ErrConfigNotFound
	}
	return *s.cfg, nil
}

func (s *MemoryStore) SetConfig(ctx context.Context, cfg Config) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg == nil {
		return Config{}, ErrConfigNotFound
	}
	cfg.RoundNonce = s.cfg.RoundNonce
	c := cfg
	s.cfg = &c
	return c, nil
}

func (s *MemoryStore) NextRoundID(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg == nil {
		return 0, ErrConfigNotFound
	}
	id := s.cfg.RoundNonce
	s.cfg.RoundNonce++
	return id, nil
}

func (s *MemoryStore) CreateRound(ctx context.Context, round Round) (Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rounds[round.ID] = cloneRound(round)
	return round, nil
}

func (s *MemoryStore) GetRound(ctx context.Context, roundID uint64) (Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	round, ok := s.rounds[roundID]
	if !ok {
		return Round{}, ErrRoundNotFound
	}
	return cloneRound(round), nil
}

func (s *MemoryStore) RecordPurchase(ctx context.Context, roundID uint64, buyer string, amount int64, at time.Time) (Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, ok := s.rounds[roundID]
	if !ok {
		return Round{}, ErrRoundNotFound
	}
	if round.Winners != nil {
		return Round{}, ErrRoundClosed
	}

	round.Balance += amount
	round.Participants = append(round.Participants, buyer)
	round.UpdatedAt = at
	s.rounds[roundID] = round
	return cloneRound(round), nil
}

func (s *MemoryStore) ListRounds(ctx context.Context, opts ListOptions) ([]Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uint64, 0, len(s.rounds))
	for id := range s.rounds {
		ids = append(ids, id)
	}
	if opts.Order == OrderDescending {
		sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	} else {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	result := make([]Round, 0, limit)
	for _, id := range ids {
		if opts.StartAfter != nil {
			if opts.Order == OrderDescending && id >= *opts.StartAfter {
				continue
			}
			if opts.Order != OrderDescending && id <= *opts.StartAfter {
				continue
			}
		}
		result = append(result, cloneRound(s.rounds[id]))
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) SettleRound(ctx context.Context, roundID uint64, winners []string, settledAt time.Time) (Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, ok := s.rounds[roundID]
	if !ok {
		return Round{}, ErrRoundNotFound
	}
	if round.Winners != nil {
		return Round{}, ErrAlreadySettled
	}

	round.Winners = append([]string{}, winners...)
	round.SettledAt = settledAt
	round.UpdatedAt = settledAt
	s.rounds[roundID] = round
	return cloneRound(round), nil
}

func cloneRound(round Round) Round {
	if round.Participants != nil {
		round.Participants = append([]string{}, round.Participants...)
	}
	if round.Winners != nil {
		round.Winners = append([]string{}, round.Winners...)
	}
	return round
}
