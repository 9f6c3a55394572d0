// Package bank moves funds on the host ledger on behalf of the engine.
package bank

import (
	"context"
	"fmt"
	"sync"

	"github.com/lottoledger/lotto-engine/internal/httputil"
	"github.com/lottoledger/lotto-engine/internal/logging"
	"github.com/lottoledger/lotto-engine/services/lotto"
)

// LedgerClient issues transfers against the host ledger's HTTP API. It
// implements lotto.Bank.
type LedgerClient struct {
	client  *httputil.Client
	account string
	log     *logging.Logger
}

// Config configures a LedgerClient.
type Config struct {
	BaseURL   string
	AuthToken string
	// Account is the ledger account the engine spends from.
	Account string
}

// NewLedgerClient creates a client for the ledger at cfg.BaseURL.
func NewLedgerClient(cfg Config, log *logging.Logger) *LedgerClient {
	return &LedgerClient{
		client: httputil.NewClient(httputil.ClientConfig{
			BaseURL:   cfg.BaseURL,
			AuthToken: cfg.AuthToken,
		}),
		account: cfg.Account,
		log:     log.WithField("component", "bank"),
	}
}

type transferRequest struct {
	From      string `json:"from"`
	Recipient string `json:"recipient"`
	Denom     string `json:"denom"`
	Amount    int64  `json:"amount"`
}

type balanceResponse struct {
	Denom  string `json:"denom"`
	Amount int64  `json:"amount"`
}

// Send executes the transfers in order. A failed transfer aborts the batch
// and reports which recipient failed; earlier transfers in the batch are not
// rolled back, the ledger is the source of truth for replays.
func (c *LedgerClient) Send(ctx context.Context, transfers []lotto.Transfer) error {
	for _, t := range transfers {
		req := transferRequest{
			From:      c.account,
			Recipient: t.Recipient,
			Denom:     t.Denom,
			Amount:    t.Amount,
		}
		resp, err := c.client.Post(ctx, "/v1/transfers", req)
		if err != nil {
			return fmt.Errorf("transfer to %s: %w", t.Recipient, err)
		}
		if err := httputil.DecodeResponse(resp, nil); err != nil {
			return fmt.Errorf("transfer to %s: %w", t.Recipient, err)
		}
		c.log.WithField("recipient", t.Recipient).
			WithField("amount", t.Amount).
			Debug("transfer submitted")
	}
	return nil
}

// Balance reports the engine account's spendable balance in denom.
func (c *LedgerClient) Balance(ctx context.Context, denom string) (int64, error) {
	resp, err := c.client.Get(ctx, fmt.Sprintf("/v1/accounts/%s/balances/%s", c.account, denom))
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	var out balanceResponse
	if err := httputil.DecodeResponse(resp, &out); err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return out.Amount, nil
}

// MemoryBank is an in-process ledger for tests and local runs. Balances are
// tracked per denom for the engine account only; outbound transfers are
// recorded and deducted.
type MemoryBank struct {
	mu       sync.Mutex
	balances map[string]int64
	sent     []lotto.Transfer
	failNext error
}

// NewMemoryBank creates an empty in-process ledger.
func NewMemoryBank() *MemoryBank {
	return &MemoryBank{balances: make(map[string]int64)}
}

// Deposit credits the engine account.
func (b *MemoryBank) Deposit(denom string, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[denom] += amount
}

// FailNext makes the next Send return err without recording transfers.
func (b *MemoryBank) FailNext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = err
}

func (b *MemoryBank) Send(_ context.Context, transfers []lotto.Transfer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext != nil {
		err := b.failNext
		b.failNext = nil
		return err
	}
	for _, t := range transfers {
		if b.balances[t.Denom] < t.Amount {
			return fmt.Errorf("insufficient funds for %s: have %d, need %d",
				t.Recipient, b.balances[t.Denom], t.Amount)
		}
		b.balances[t.Denom] -= t.Amount
		b.sent = append(b.sent, t)
	}
	return nil
}

func (b *MemoryBank) Balance(_ context.Context, denom string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[denom], nil
}

// Sent returns a copy of all transfers executed so far.
func (b *MemoryBank) Sent() []lotto.Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]lotto.Transfer, len(b.sent))
	copy(out, b.sent)
	return out
}
