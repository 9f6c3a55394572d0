// Package oracle submits randomness requests to the drand-style beacon
// service that fulfils round settlements.
package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lottoledger/lotto-engine/internal/httputil"
	"github.com/lottoledger/lotto-engine/internal/logging"
	"github.com/lottoledger/lotto-engine/services/lotto"
)

// Client requests randomness over the oracle's HTTP API. It implements
// lotto.RandomnessRequester. The oracle delivers fulfilments back through
// the engine's randomness callback endpoint.
type Client struct {
	client      *httputil.Client
	callbackURL string
	log         *logging.Logger
}

// Config configures an oracle Client.
type Config struct {
	BaseURL   string
	AuthToken string
	// CallbackURL is the engine endpoint the oracle posts fulfilments to.
	CallbackURL string
}

// NewClient creates a client for the oracle at cfg.BaseURL.
func NewClient(cfg Config, log *logging.Logger) *Client {
	return &Client{
		client: httputil.NewClient(httputil.ClientConfig{
			BaseURL:   cfg.BaseURL,
			AuthToken: cfg.AuthToken,
		}),
		callbackURL: cfg.CallbackURL,
		log:         log.WithField("component", "oracle"),
	}
}

type feeCoin struct {
	Denom  string `json:"denom"`
	Amount int64  `json:"amount"`
}

type randomnessRequest struct {
	JobID       string    `json:"job_id"`
	After       time.Time `json:"after"`
	CallbackURL string    `json:"callback_url"`
	Fee         []feeCoin `json:"fee,omitempty"`
}

// RequestRandomness registers a beacon request for req.JobID. Requests are
// idempotent on job id at the oracle, so re-requesting an unfulfilled job
// is safe.
func (c *Client) RequestRandomness(ctx context.Context, req lotto.RandomnessRequest) error {
	body := randomnessRequest{
		JobID:       req.JobID,
		After:       req.After,
		CallbackURL: c.callbackURL,
	}
	for _, coin := range req.Fee {
		body.Fee = append(body.Fee, feeCoin{Denom: coin.Denom, Amount: coin.Amount})
	}

	resp, err := c.client.Post(ctx, "/v1/jobs", body)
	if err != nil {
		return fmt.Errorf("request randomness for %s: %w", req.JobID, err)
	}
	if err := httputil.DecodeResponse(resp, nil); err != nil {
		return fmt.Errorf("request randomness for %s: %w", req.JobID, err)
	}
	c.log.WithField("job_id", req.JobID).
		WithField("after", req.After).
		Debug("randomness requested")
	return nil
}

// Recorder is an in-process RandomnessRequester for tests. It records every
// request and can be primed to fail.
type Recorder struct {
	mu       sync.Mutex
	requests []lotto.RandomnessRequest
	failNext error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailNext makes the next RequestRandomness return err.
func (r *Recorder) FailNext(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

func (r *Recorder) RequestRandomness(_ context.Context, req lotto.RandomnessRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	r.requests = append(r.requests, req)
	return nil
}

// Requests returns a copy of all recorded requests.
func (r *Recorder) Requests() []lotto.RandomnessRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]lotto.RandomnessRequest, len(r.requests))
	copy(out, r.requests)
	return out
}
