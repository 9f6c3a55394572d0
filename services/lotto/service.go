package lotto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lottoledger/lotto-engine/internal/logging"
	"github.com/lottoledger/lotto-engine/internal/metrics"
)

// Service is the round lifecycle engine. Every operation runs to completion
// as a single step; the SettleRound compare-and-set in the store is the only
// cross-call concurrency mechanism the engine relies on.
type Service struct {
	store  Store
	bank   Bank
	oracle RandomnessRequester
	log    *logging.Logger
	now    func() time.Time
}

// New constructs the engine.
func New(store Store, bank Bank, oracle RandomnessRequester, log *logging.Logger) *Service {
	return &Service{
		store:  store,
		bank:   bank,
		oracle: oracle,
		log:    log,
		now:    time.Now,
	}
}

// WithClock overrides the engine clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// =============================================================================
// Configuration
// =============================================================================

// InitConfig creates the configuration record exactly once at deployment.
func (s *Service) InitConfig(ctx context.Context, cfg Config) (Config, error) {
	if cfg.Manager == "" || cfg.OracleAddress == "" || cfg.CommunityPool == "" {
		return Config{}, fmt.Errorf("%w: manager, oracle, and community pool addresses are required", ErrInvalidAddress)
	}
	if err := validatePercent(cfg.ProtocolCommissionPercent); err != nil {
		return Config{}, err
	}
	if err := validatePercent(cfg.CreatorCommissionPercent); err != nil {
		return Config{}, err
	}
	if cfg.ProtocolCommissionPercent+cfg.CreatorCommissionPercent >= 100 {
		return Config{}, ErrInvalidCommission
	}

	cfg.RoundNonce = 0
	cfg.UpdatedAt = s.now().UTC()
	created, err := s.store.InitConfig(ctx, cfg)
	if err != nil {
		return Config{}, fmt.Errorf("init config: %w", err)
	}

	s.log.WithField("manager", created.Manager).
		WithField("oracle_address", created.OracleAddress).
		Info("configuration initialized")
	return created, nil
}

// GetConfig returns the current configuration. No authorization is required.
func (s *Service) GetConfig(ctx context.Context) (Config, error) {
	return s.store.GetConfig(ctx)
}

// SetConfig applies a partial configuration update. Only the manager may
// call it; absent fields retain their current values. Rate changes apply
// only to rounds opened after the change, since every round snapshots its
// percentages at creation.
func (s *Service) SetConfig(ctx context.Context, caller string, upd ConfigUpdate) (Config, error) {
	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return Config{}, fmt.Errorf("get config: %w", err)
	}
	if caller != cfg.Manager {
		s.log.WithField("caller", caller).Warn("unauthorized configuration update rejected")
		return Config{}, ErrUnauthorized
	}

	if upd.Manager != nil {
		cfg.Manager = *upd.Manager
	}
	if upd.OracleAddress != nil {
		cfg.OracleAddress = *upd.OracleAddress
	}
	if upd.CommunityPool != nil {
		cfg.CommunityPool = *upd.CommunityPool
	}
	if upd.ProtocolCommissionPercent != nil {
		cfg.ProtocolCommissionPercent = *upd.ProtocolCommissionPercent
	}
	if upd.CreatorCommissionPercent != nil {
		cfg.CreatorCommissionPercent = *upd.CreatorCommissionPercent
	}

	if cfg.Manager == "" || cfg.OracleAddress == "" || cfg.CommunityPool == "" {
		return Config{}, fmt.Errorf("%w: addresses may not be cleared", ErrInvalidAddress)
	}
	if err := validatePercent(cfg.ProtocolCommissionPercent); err != nil {
		return Config{}, err
	}
	if err := validatePercent(cfg.CreatorCommissionPercent); err != nil {
		return Config{}, err
	}
	if cfg.ProtocolCommissionPercent+cfg.CreatorCommissionPercent >= 100 {
		return Config{}, ErrInvalidCommission
	}

	cfg.UpdatedAt = s.now().UTC()
	updated, err := s.store.SetConfig(ctx, cfg)
	if err != nil {
		return Config{}, fmt.Errorf("set config: %w", err)
	}

	s.log.WithField("manager", updated.Manager).Info("configuration updated")
	return updated, nil
}

// =============================================================================
// Round lifecycle
// =============================================================================

// OpenRound opens a new round. Any caller may open a round; the creator
// address is recorded for later commission payment. Attached funds are
// forwarded to the oracle request as its fee, never credited to the round.
func (s *Service) OpenRound(ctx context.Context, creator string, in OpenRoundInput) (Round, error) {
	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return Round{}, fmt.Errorf("get config: %w", err)
	}

	if in.TicketPrice.Denom == "" || in.TicketPrice.Amount <= 0 {
		return Round{}, fmt.Errorf("%w: ticket price must be a positive amount", ErrInvalidAmount)
	}
	if in.DurationSeconds <= 0 {
		return Round{}, fmt.Errorf("%w: duration must be positive", ErrInvalidAmount)
	}
	if in.NumberOfWinners <= 0 {
		return Round{}, fmt.Errorf("%w: number of winners must be positive", ErrInvalidAmount)
	}
	if err := validatePercent(in.CommunityPoolPercentage); err != nil {
		return Round{}, err
	}
	if cfg.ProtocolCommissionPercent+cfg.CreatorCommissionPercent+in.CommunityPoolPercentage >= 100 {
		return Round{}, ErrInvalidCommission
	}

	id, err := s.store.NextRoundID(ctx)
	if err != nil {
		return Round{}, fmt.Errorf("allocate round id: %w", err)
	}

	now := s.now().UTC()
	round := Round{
		ID:                        id,
		Creator:                   creator,
		TicketPrice:               in.TicketPrice,
		Balance:                   0,
		Participants:              []string{},
		Expiration:                now.Add(time.Duration(in.DurationSeconds) * time.Second),
		NumberOfWinners:           in.NumberOfWinners,
		CommunityPoolPercentage:   in.CommunityPoolPercentage,
		ProtocolCommissionPercent: cfg.ProtocolCommissionPercent,
		CreatorCommissionPercent:  cfg.CreatorCommissionPercent,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}

	created, err := s.store.CreateRound(ctx, round)
	if err != nil {
		return Round{}, fmt.Errorf("create round: %w", err)
	}

	if err := s.oracle.RequestRandomness(ctx, RandomnessRequest{
		JobID: EncodeJobID(created.ID),
		After: created.Expiration,
		Fee:   in.Funds,
	}); err != nil {
		// The round persists; the settlement sweeper re-requests
		// randomness for expired unsettled rounds.
		s.log.WithError(err).WithField("round_id", created.ID).Warn("randomness request failed")
		return created, fmt.Errorf("request randomness: %w", err)
	}

	s.log.WithField("round_id", created.ID).
		WithField("creator", creator).
		WithField("expiration", created.Expiration).
		Info("round opened")
	metrics.RecordRoundOpened()

	return created, nil
}

// BuyTicket records one ticket purchase into an open round. Each accepted
// call appends exactly one participant entry and increases the balance by
// exactly the ticket price.
func (s *Service) BuyTicket(ctx context.Context, buyer string, roundID uint64, funds []Coin) (Round, error) {
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return Round{}, err
	}

	if err := validatePayment(round.TicketPrice, funds); err != nil {
		return Round{}, err
	}

	now := s.now().UTC()
	if round.Expired(now) || round.Settled() {
		return Round{}, ErrRoundClosed
	}

	// The store write is atomic and re-checks the settled guard, so a
	// settlement racing this purchase cannot strand the buyer's funds and
	// concurrent buyers cannot overwrite each other.
	updated, err := s.store.RecordPurchase(ctx, roundID, buyer, round.TicketPrice.Amount, now)
	if err != nil {
		return Round{}, err
	}

	s.log.WithField("round_id", roundID).
		WithField("buyer", buyer).
		WithField("balance", updated.Balance).
		Info("ticket purchased")
	metrics.RecordTicketSold()

	return updated, nil
}

// validatePayment checks that the attached funds contain an entry exactly
// equal to the ticket price. Partial, excess, or wrong-denomination payments
// are rejected outright, not adjusted.
func validatePayment(price Coin, funds []Coin) error {
	if len(funds) == 0 {
		return ErrNoFunds
	}
	for _, fund := range funds {
		if fund == price {
			return nil
		}
	}
	return ErrInvalidPayment
}

// =============================================================================
// Settlement
// =============================================================================

// SettleCallback applies an authorized randomness delivery: it authenticates
// the caller, selects winners deterministically from the randomness, computes
// the commission split, persists the winners exactly once, and requests the
// outbound transfers.
func (s *Service) SettleCallback(ctx context.Context, caller string, cb RandomnessCallback) (SettlementResult, error) {
	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("get config: %w", err)
	}
	if caller != cfg.OracleAddress {
		s.log.WithField("caller", caller).
			WithField("job_id", cb.JobID).
			Warn("unauthorized randomness callback rejected")
		metrics.RecordCallbackRejected("unauthorized")
		return SettlementResult{}, ErrUnauthorizedCallback
	}

	if len(cb.Randomness) != RandomnessLen {
		metrics.RecordCallbackRejected("invalid_randomness")
		return SettlementResult{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidRandomness, RandomnessLen, len(cb.Randomness))
	}

	roundID, err := DecodeJobID(cb.JobID)
	if err != nil {
		metrics.RecordCallbackRejected("malformed_job_id")
		return SettlementResult{}, err
	}

	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return SettlementResult{}, err
	}
	if round.Settled() {
		metrics.RecordSettlement("already_settled")
		return SettlementResult{}, ErrAlreadySettled
	}
	if len(round.Participants) == 0 {
		// Settlement has not occurred; the oracle may safely retry.
		metrics.RecordSettlement("no_participants")
		return SettlementResult{}, ErrNoParticipants
	}

	winners := selectWinners(cb.Randomness, round.Participants, round.NumberOfWinners)
	split := computeSplit(round, winners, cfg.CommunityPool)

	settledAt := s.now().UTC()
	if _, err := s.store.SettleRound(ctx, roundID, winners, settledAt); err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			metrics.RecordSettlement("already_settled")
		} else {
			metrics.RecordSettlement("error")
		}
		return SettlementResult{}, err
	}

	if err := s.bank.Send(ctx, split.Transfers); err != nil {
		// The winners assignment is committed; surface the emission
		// failure for operator reconciliation rather than double-pay on
		// retry.
		s.log.WithError(err).WithField("round_id", roundID).Error("transfer emission failed after settlement")
		metrics.RecordSettlement("error")
		return SettlementResult{}, fmt.Errorf("emit transfers: %w", err)
	}

	split.SettledAt = settledAt
	s.log.WithField("round_id", roundID).
		WithField("winner_count", len(winners)).
		WithField("prize_pool", split.PrizePool).
		WithField("dust", split.Dust).
		Info("round settled")
	metrics.RecordSettlement("settled")
	metrics.RecordPayout("community_pool", split.AmountPool)
	metrics.RecordPayout("creator", split.AmountCreator)
	metrics.RecordPayout("winner", split.AmountPerWinner*int64(len(winners)))

	return split, nil
}

// computeSplit applies the commission arithmetic with floor division
// throughout. The protocol share and all truncation remainders stay in the
// contract's general balance; they are withdrawable only via WithdrawAll.
func computeSplit(round Round, winners []string, communityPool string) SettlementResult {
	balance := round.Balance
	amountCreator := balance * int64(round.CreatorCommissionPercent) / 100
	amountProtocol := balance * int64(round.ProtocolCommissionPercent) / 100
	amountPool := balance * int64(round.CommunityPoolPercentage) / 100
	prizePool := balance - (amountCreator + amountProtocol + amountPool)
	amountPerWinner := prizePool / int64(len(winners))

	denom := round.TicketPrice.Denom
	transfers := make([]Transfer, 0, len(winners)+2)
	if amountPool > 0 {
		transfers = append(transfers, Transfer{Recipient: communityPool, Denom: denom, Amount: amountPool})
	}
	if amountCreator > 0 {
		transfers = append(transfers, Transfer{Recipient: round.Creator, Denom: denom, Amount: amountCreator})
	}

	// One transfer per distinct winner address; an address holding several
	// selected positions receives one share per position in a single
	// transfer.
	shares := make(map[string]int64, len(winners))
	order := make([]string, 0, len(winners))
	for _, winner := range winners {
		if _, seen := shares[winner]; !seen {
			order = append(order, winner)
		}
		shares[winner] += amountPerWinner
	}
	for _, winner := range order {
		if shares[winner] > 0 {
			transfers = append(transfers, Transfer{Recipient: winner, Denom: denom, Amount: shares[winner]})
		}
	}

	return SettlementResult{
		RoundID:         round.ID,
		Winners:         winners,
		AmountCreator:   amountCreator,
		AmountProtocol:  amountProtocol,
		AmountPool:      amountPool,
		PrizePool:       prizePool,
		AmountPerWinner: amountPerWinner,
		Dust:            prizePool - amountPerWinner*int64(len(winners)),
		Transfers:       transfers,
	}
}

// =============================================================================
// Withdrawal
// =============================================================================

// WithdrawAll transfers the contract's entire holdings in one denomination
// to the destination. Manager only. It does not distinguish retained dust
// from funds of still-open rounds; withdrawing while rounds hold unsettled
// funds in the denomination is an operational hazard, not a code-level
// invariant.
func (s *Service) WithdrawAll(ctx context.Context, caller, destination, denom string) (WithdrawalResult, error) {
	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return WithdrawalResult{}, fmt.Errorf("get config: %w", err)
	}
	if caller != cfg.Manager {
		s.log.WithField("caller", caller).Warn("unauthorized withdrawal rejected")
		return WithdrawalResult{}, ErrUnauthorized
	}
	if destination == "" {
		return WithdrawalResult{}, fmt.Errorf("%w: destination is required", ErrInvalidAddress)
	}
	if denom == "" {
		return WithdrawalResult{}, fmt.Errorf("%w: denom is required", ErrInvalidAmount)
	}

	amount, err := s.bank.Balance(ctx, denom)
	if err != nil {
		return WithdrawalResult{}, fmt.Errorf("query balance: %w", err)
	}

	result := WithdrawalResult{Destination: destination, Denom: denom, Amount: amount}
	if amount == 0 {
		return result, nil
	}

	if err := s.bank.Send(ctx, []Transfer{{Recipient: destination, Denom: denom, Amount: amount}}); err != nil {
		return WithdrawalResult{}, fmt.Errorf("emit withdrawal transfer: %w", err)
	}

	s.log.WithField("destination", destination).
		WithField("denom", denom).
		WithField("amount", amount).
		Info("treasury withdrawal executed")
	metrics.RecordPayout("withdrawal", amount)

	return result, nil
}

// =============================================================================
// Queries
// =============================================================================

// GetRound returns a round snapshot with computed expiry and settlement
// flags.
func (s *Service) GetRound(ctx context.Context, roundID uint64) (RoundSnapshot, error) {
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return RoundSnapshot{}, err
	}
	now := s.now().UTC()
	return RoundSnapshot{
		Round:     round,
		IsExpired: round.PastExpiration(now),
		IsSettled: round.Settled(),
	}, nil
}

// ListRounds returns rounds in id order with cursor pagination. The
// client-specified limit is honored as-is.
func (s *Service) ListRounds(ctx context.Context, opts ListOptions) ([]Round, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Order == "" {
		opts.Order = OrderAscending
	}
	return s.store.ListRounds(ctx, opts)
}

func validatePercent(p int) error {
	if p < 0 || p >= 100 {
		return fmt.Errorf("%w: percentage %d outside [0,100)", ErrInvalidCommission, p)
	}
	return nil
}
