package lotto

import (
	"context"
	"time"
)

// Store defines the persistence interface for the configuration record and
// the round registry.
type Store interface {
	// Config operations. InitConfig fails with ErrConfigExists once a
	// configuration record is present; GetConfig fails with
	// ErrConfigNotFound before initialization.
	InitConfig(ctx context.Context, cfg Config) (Config, error)
	GetConfig(ctx context.Context) (Config, error)
	SetConfig(ctx context.Context, cfg Config) (Config, error)

	// NextRoundID atomically allocates the next round id from the
	// configuration nonce. Allocated ids are never reused, even when the
	// enclosing operation later fails.
	NextRoundID(ctx context.Context) (uint64, error)

	// Round operations. Rounds are never deleted.
	CreateRound(ctx context.Context, round Round) (Round, error)
	GetRound(ctx context.Context, roundID uint64) (Round, error)
	ListRounds(ctx context.Context, opts ListOptions) ([]Round, error)

	// RecordPurchase atomically credits the balance and appends the buyer
	// as one participant entry. Concurrent purchases into the same round
	// must all be retained. It fails with ErrRoundClosed when winners are
	// already present; a round's balance and participants are immutable
	// after settlement.
	RecordPurchase(ctx context.Context, roundID uint64, buyer string, amount int64, at time.Time) (Round, error)

	// SettleRound sets the round's winners exactly once. It fails with
	// ErrAlreadySettled when winners are already present; this
	// compare-and-set is the engine's sole exactly-once mechanism.
	SettleRound(ctx context.Context, roundID uint64, winners []string, settledAt time.Time) (Round, error)
}

// Bank requests value transfers from the host ledger and reports the
// contract account's holdings. Transfers are requested by an operation and
// executed by the host.
type Bank interface {
	Send(ctx context.Context, transfers []Transfer) error
	Balance(ctx context.Context, denom string) (int64, error)
}

// RandomnessRequest is an outbound request to the randomness oracle. The
// randomness becomes available only after the After timestamp; the attached
// fee is forwarded to the oracle, not credited to any round.
type RandomnessRequest struct {
	JobID string
	After time.Time
	Fee   []Coin
}

// RandomnessRequester submits randomness requests to the configured oracle.
type RandomnessRequester interface {
	RequestRandomness(ctx context.Context, req RandomnessRequest) error
}
