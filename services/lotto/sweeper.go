package lotto

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/lottoledger/lotto-engine/internal/logging"
)

// RequestPendingSettlements re-issues randomness requests for expired,
// unsettled rounds that hold participants. Expired rounds without
// participants are skipped; they can never settle and only WithdrawAll can
// reclaim their (zero) balance. Returns the number of requests issued.
func (s *Service) RequestPendingSettlements(ctx context.Context) (int, error) {
	now := s.now().UTC()
	requested := 0

	var cursor *uint64
	for {
		page, err := s.store.ListRounds(ctx, ListOptions{
			Order:      OrderAscending,
			StartAfter: cursor,
			Limit:      200,
		})
		if err != nil {
			return requested, fmt.Errorf("list rounds: %w", err)
		}
		if len(page) == 0 {
			return requested, nil
		}

		for _, round := range page {
			if round.Settled() || !round.Expired(now) || len(round.Participants) == 0 {
				continue
			}
			err := s.oracle.RequestRandomness(ctx, RandomnessRequest{
				JobID: EncodeJobID(round.ID),
				After: round.Expiration,
			})
			if err != nil {
				s.log.WithError(err).WithField("round_id", round.ID).Warn("settlement re-request failed")
				continue
			}
			requested++
		}

		last := page[len(page)-1].ID
		cursor = &last
	}
}

// Sweeper periodically re-requests randomness for rounds awaiting
// settlement, covering oracle deliveries lost between round expiration and
// callback.
type Sweeper struct {
	engine *Service
	log    *logging.Logger
	cron   *cron.Cron
}

// NewSweeper creates a sweeper running on the given cron schedule
// (e.g. "@every 5m").
func NewSweeper(engine *Service, schedule string, log *logging.Logger) (*Sweeper, error) {
	s := &Sweeper{
		engine: engine,
		log:    log,
		cron:   cron.New(),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("schedule sweeper: %w", err)
	}
	return s, nil
}

// Start begins the schedule.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() context.Context { return s.cron.Stop() }

func (s *Sweeper) run() {
	requested, err := s.engine.RequestPendingSettlements(context.Background())
	if err != nil {
		s.log.WithError(err).Warn("settlement sweep failed")
		return
	}
	if requested > 0 {
		s.log.WithField("requested", requested).Info("settlement sweep re-requested randomness")
	}
}
