package lotto

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func seedRounds(t *testing.T, store *MemoryStore, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		id, err := store.NextRoundID(ctx)
		if err != nil {
			t.Fatalf("NextRoundID: %v", err)
		}
		_, err = store.CreateRound(ctx, Round{
			ID:           id,
			Creator:      creatorAddr,
			TicketPrice:  Coin{Denom: "token", Amount: 100},
			Participants: []string{},
			Expiration:   genesisTime.Add(time.Hour),
			CreatedAt:    genesisTime,
			UpdatedAt:    genesisTime,
		})
		if err != nil {
			t.Fatalf("CreateRound: %v", err)
		}
	}
}

func roundIDs(rounds []Round) []uint64 {
	ids := make([]uint64, len(rounds))
	for i, r := range rounds {
		ids[i] = r.ID
	}
	return ids
}

func TestMemoryStoreListRounds(t *testing.T) {
	ctx := context.Background()

	newSeeded := func(t *testing.T) *MemoryStore {
		store := NewMemoryStore()
		if _, err := store.InitConfig(ctx, Config{Manager: managerAddr}); err != nil {
			t.Fatalf("InitConfig: %v", err)
		}
		seedRounds(t, store, 5)
		return store
	}

	assertIDs := func(t *testing.T, got []Round, want ...uint64) {
		t.Helper()
		ids := roundIDs(got)
		if len(ids) != len(want) {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Fatalf("ids = %v, want %v", ids, want)
			}
		}
	}

	t.Run("ascending", func(t *testing.T) {
		store := newSeeded(t)
		rounds, err := store.ListRounds(ctx, ListOptions{Order: OrderAscending, Limit: 10})
		if err != nil {
			t.Fatalf("ListRounds: %v", err)
		}
		assertIDs(t, rounds, 0, 1, 2, 3, 4)
	})

	t.Run("descending", func(t *testing.T) {
		store := newSeeded(t)
		rounds, err := store.ListRounds(ctx, ListOptions{Order: OrderDescending, Limit: 10})
		if err != nil {
			t.Fatalf("ListRounds: %v", err)
		}
		assertIDs(t, rounds, 4, 3, 2, 1, 0)
	})

	t.Run("ascending cursor is exclusive", func(t *testing.T) {
		store := newSeeded(t)
		cursor := uint64(1)
		rounds, err := store.ListRounds(ctx, ListOptions{Order: OrderAscending, StartAfter: &cursor, Limit: 10})
		if err != nil {
			t.Fatalf("ListRounds: %v", err)
		}
		assertIDs(t, rounds, 2, 3, 4)
	})

	t.Run("descending cursor is exclusive", func(t *testing.T) {
		store := newSeeded(t)
		cursor := uint64(3)
		rounds, err := store.ListRounds(ctx, ListOptions{Order: OrderDescending, StartAfter: &cursor, Limit: 10})
		if err != nil {
			t.Fatalf("ListRounds: %v", err)
		}
		assertIDs(t, rounds, 2, 1, 0)
	})

	t.Run("limit truncates the page", func(t *testing.T) {
		store := newSeeded(t)
		rounds, err := store.ListRounds(ctx, ListOptions{Order: OrderAscending, Limit: 2})
		if err != nil {
			t.Fatalf("ListRounds: %v", err)
		}
		assertIDs(t, rounds, 0, 1)
	})

	t.Run("paging to the end terminates", func(t *testing.T) {
		store := newSeeded(t)
		cursor := uint64(4)
		rounds, err := store.ListRounds(ctx, ListOptions{Order: OrderAscending, StartAfter: &cursor, Limit: 10})
		if err != nil {
			t.Fatalf("ListRounds: %v", err)
		}
		if len(rounds) != 0 {
			t.Errorf("rounds past the last id = %v, want none", roundIDs(rounds))
		}
	})
}

func TestMemoryStoreRecordPurchase(t *testing.T) {
	ctx := context.Background()

	newSeeded := func(t *testing.T) *MemoryStore {
		store := NewMemoryStore()
		if _, err := store.InitConfig(ctx, Config{Manager: managerAddr}); err != nil {
			t.Fatalf("InitConfig: %v", err)
		}
		seedRounds(t, store, 1)
		return store
	}

	t.Run("credits balance and appends one entry", func(t *testing.T) {
		store := newSeeded(t)
		at := genesisTime.Add(time.Minute)

		round, err := store.RecordPurchase(ctx, 0, "addr-alice", 100, at)
		if err != nil {
			t.Fatalf("RecordPurchase: %v", err)
		}
		if round.Balance != 100 {
			t.Errorf("balance = %d, want 100", round.Balance)
		}
		if len(round.Participants) != 1 || round.Participants[0] != "addr-alice" {
			t.Errorf("participants = %v, want [addr-alice]", round.Participants)
		}
		if !round.UpdatedAt.Equal(at) {
			t.Errorf("updated at = %v, want %v", round.UpdatedAt, at)
		}
	})

	t.Run("concurrent purchases are all retained", func(t *testing.T) {
		store := newSeeded(t)

		const n = 16
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := store.RecordPurchase(ctx, 0, fmt.Sprintf("addr-buyer-%d", i), 100, genesisTime); err != nil {
					t.Errorf("RecordPurchase %d: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		round, err := store.GetRound(ctx, 0)
		if err != nil {
			t.Fatalf("GetRound: %v", err)
		}
		if round.Balance != n*100 {
			t.Errorf("balance = %d, want %d", round.Balance, n*100)
		}
		if len(round.Participants) != n {
			t.Errorf("participant entries = %d, want %d", len(round.Participants), n)
		}
	})

	t.Run("settled round is immutable", func(t *testing.T) {
		store := newSeeded(t)
		if _, err := store.SettleRound(ctx, 0, []string{"addr-w1"}, genesisTime.Add(time.Hour)); err != nil {
			t.Fatalf("SettleRound: %v", err)
		}

		if _, err := store.RecordPurchase(ctx, 0, "addr-late", 100, genesisTime); !errors.Is(err, ErrRoundClosed) {
			t.Errorf("error = %v, want ErrRoundClosed", err)
		}
		round, _ := store.GetRound(ctx, 0)
		if round.Balance != 0 || len(round.Participants) != 0 {
			t.Errorf("settled round mutated: balance = %d, participants = %d", round.Balance, len(round.Participants))
		}
	})

	t.Run("unknown round", func(t *testing.T) {
		store := newSeeded(t)
		if _, err := store.RecordPurchase(ctx, 99, "addr-alice", 100, genesisTime); !errors.Is(err, ErrRoundNotFound) {
			t.Errorf("error = %v, want ErrRoundNotFound", err)
		}
	})
}

func TestMemoryStoreSettleRound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.InitConfig(ctx, Config{Manager: managerAddr}); err != nil {
		t.Fatalf("InitConfig: %v", err)
	}
	seedRounds(t, store, 1)

	winners := []string{"addr-w1"}
	settledAt := genesisTime.Add(2 * time.Hour)

	settled, err := store.SettleRound(ctx, 0, winners, settledAt)
	if err != nil {
		t.Fatalf("SettleRound: %v", err)
	}
	if !settled.Settled() {
		t.Error("round should be settled")
	}
	if !settled.SettledAt.Equal(settledAt) {
		t.Errorf("settled at = %v, want %v", settled.SettledAt, settledAt)
	}

	if _, err := store.SettleRound(ctx, 0, winners, settledAt); !errors.Is(err, ErrAlreadySettled) {
		t.Errorf("second settle error = %v, want ErrAlreadySettled", err)
	}
	if _, err := store.SettleRound(ctx, 99, winners, settledAt); !errors.Is(err, ErrRoundNotFound) {
		t.Errorf("unknown round error = %v, want ErrRoundNotFound", err)
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.InitConfig(ctx, Config{Manager: managerAddr}); err != nil {
		t.Fatalf("InitConfig: %v", err)
	}
	seedRounds(t, store, 1)

	round, err := store.GetRound(ctx, 0)
	if err != nil {
		t.Fatalf("GetRound: %v", err)
	}
	round.Participants = append(round.Participants, "addr-mutant")
	round.Balance = 999999

	fresh, err := store.GetRound(ctx, 0)
	if err != nil {
		t.Fatalf("GetRound: %v", err)
	}
	if len(fresh.Participants) != 0 || fresh.Balance != 0 {
		t.Error("mutating a returned round leaked into the store")
	}
}

func TestMemoryStoreNextRoundID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.InitConfig(ctx, Config{Manager: managerAddr}); err != nil {
		t.Fatalf("InitConfig: %v", err)
	}

	for want := uint64(0); want < 3; want++ {
		got, err := store.NextRoundID(ctx)
		if err != nil {
			t.Fatalf("NextRoundID: %v", err)
		}
		if got != want {
			t.Errorf("NextRoundID = %d, want %d", got, want)
		}
	}

	// Allocated ids are consumed even if no round is created with them.
	cfg, err := store.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg.RoundNonce != 3 {
		t.Errorf("round nonce = %d, want 3", cfg.RoundNonce)
	}
}

func TestMemoryStoreSetConfigKeepsNonce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.InitConfig(ctx, Config{Manager: managerAddr}); err != nil {
		t.Fatalf("InitConfig: %v", err)
	}
	if _, err := store.NextRoundID(ctx); err != nil {
		t.Fatalf("NextRoundID: %v", err)
	}

	updated, err := store.SetConfig(ctx, Config{Manager: "addr-next", RoundNonce: 0})
	if err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if updated.RoundNonce != 1 {
		t.Errorf("round nonce = %d, want 1 preserved across updates", updated.RoundNonce)
	}
}
