// Package lotto implements the on-ledger lottery settlement engine: round
// lifecycle, ticket accounting, randomness-driven settlement, and the round
// registry.
package lotto

import "time"

// Coin is an amount of a named denomination in base units.
type Coin struct {
	Denom  string `json:"denom"`
	Amount int64  `json:"amount"`
}

// Config is the process-wide configuration record. It is created once at
// deployment and mutated only by the authority-gated update operation.
type Config struct {
	Manager                   string    `json:"manager"`
	OracleAddress             string    `json:"oracle_address"`
	CommunityPool             string    `json:"community_pool"`
	ProtocolCommissionPercent int       `json:"protocol_commission_percent"`
	CreatorCommissionPercent  int       `json:"creator_commission_percent"`
	RoundNonce                uint64    `json:"round_nonce"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// ConfigUpdate carries a partial configuration change. Nil fields retain the
// current value.
type ConfigUpdate struct {
	Manager                   *string `json:"manager,omitempty"`
	OracleAddress             *string `json:"oracle_address,omitempty"`
	CommunityPool             *string `json:"community_pool,omitempty"`
	ProtocolCommissionPercent *int    `json:"protocol_commission_percent,omitempty"`
	CreatorCommissionPercent  *int    `json:"creator_commission_percent,omitempty"`
}

// Round is one lottery instance. Participants holds one entry per accepted
// ticket, so an address buying N tickets appears N times and carries
// proportional odds. Winners is nil while the round is open and is set
// exactly once at settlement; its presence is the terminal-state marker.
//
// All percentages are snapshotted at creation; settlement never re-reads the
// live configuration.
type Round struct {
	ID                        uint64    `json:"id"`
	Creator                   string    `json:"creator"`
	TicketPrice               Coin      `json:"ticket_price"`
	Balance                   int64     `json:"balance"`
	Participants              []string  `json:"participants"`
	Expiration                time.Time `json:"expiration"`
	NumberOfWinners           int       `json:"number_of_winners"`
	CommunityPoolPercentage   int       `json:"community_pool_percentage"`
	ProtocolCommissionPercent int       `json:"protocol_commission_percent"`
	CreatorCommissionPercent  int       `json:"creator_commission_percent"`
	Winners                   []string  `json:"winners,omitempty"`
	SettledAt                 time.Time `json:"settled_at"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// Settled reports whether the round has reached its terminal state.
func (r *Round) Settled() bool {
	return r.Winners != nil
}

// Expired reports whether purchases are rejected relative to now. The
// deposit stage ends AT the expiration instant; the is_expired query flag
// flips strictly after it. The two predicates disagree only at that exact
// instant.
func (r *Round) Expired(now time.Time) bool {
	return !now.Before(r.Expiration)
}

// PastExpiration reports the strict is_expired query flag.
func (r *Round) PastExpiration(now time.Time) bool {
	return now.After(r.Expiration)
}

// RoundSnapshot is the query projection of a round with computed flags.
type RoundSnapshot struct {
	Round
	IsExpired bool `json:"is_expired"`
	IsSettled bool `json:"is_settled"`
}

// OpenRoundInput is the command input for opening a round.
type OpenRoundInput struct {
	TicketPrice             Coin   `json:"ticket_price"`
	DurationSeconds         int64  `json:"duration_seconds"`
	NumberOfWinners         int    `json:"number_of_winners"`
	CommunityPoolPercentage int    `json:"community_pool_percentage"`
	Funds                   []Coin `json:"funds,omitempty"`
}

// RandomnessCallback is the inbound oracle delivery.
type RandomnessCallback struct {
	JobID       string    `json:"job_id"`
	Randomness  []byte    `json:"randomness"`
	PublishedAt time.Time `json:"published_at"`
}

// Transfer is one outbound value-transfer instruction requested from the
// host ledger.
type Transfer struct {
	Recipient string `json:"recipient"`
	Denom     string `json:"denom"`
	Amount    int64  `json:"amount"`
}

// SettlementResult is the audit record of one settlement.
type SettlementResult struct {
	RoundID         uint64     `json:"round_id"`
	Winners         []string   `json:"winners"`
	AmountCreator   int64      `json:"amount_creator"`
	AmountProtocol  int64      `json:"amount_protocol"`
	AmountPool      int64      `json:"amount_pool"`
	PrizePool       int64      `json:"prize_pool"`
	AmountPerWinner int64      `json:"amount_per_winner"`
	Dust            int64      `json:"dust"`
	Transfers       []Transfer `json:"transfers"`
	SettledAt       time.Time  `json:"settled_at"`
}

// WithdrawalResult reports an executed treasury withdrawal.
type WithdrawalResult struct {
	Destination string `json:"destination"`
	Denom       string `json:"denom"`
	Amount      int64  `json:"amount"`
}

// Order selects the iteration direction of ListRounds.
type Order string

const (
	OrderAscending  Order = "asc"
	OrderDescending Order = "desc"
)

// ListOptions controls round-registry pagination. StartAfter is an exclusive
// cursor; Limit defaults to DefaultListLimit when zero and is otherwise
// honored as-is.
type ListOptions struct {
	Order      Order
	StartAfter *uint64
	Limit      int
}

// DefaultListLimit applies when a list query does not specify a limit.
const DefaultListLimit = 100

// RandomnessLen is the required length of an oracle randomness payload.
const RandomnessLen = 32
