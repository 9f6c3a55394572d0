package lotto

import (
	"fmt"
	"strconv"
	"strings"
)

// Oracle job identifiers deterministically encode the round id so the
// callback routes back to its round without an auxiliary lookup table.
const jobIDPrefix = "round-"

// EncodeJobID returns the oracle job identifier for a round.
func EncodeJobID(roundID uint64) string {
	return jobIDPrefix + strconv.FormatUint(roundID, 10)
}

// DecodeJobID parses a job identifier back into a round id. Anything that
// does not round-trip through EncodeJobID exactly is rejected with
// ErrMalformedCallback.
func DecodeJobID(jobID string) (uint64, error) {
	rest, ok := strings.CutPrefix(jobID, jobIDPrefix)
	if !ok || rest == "" {
		return 0, fmt.Errorf("%w: %q", ErrMalformedCallback, jobID)
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedCallback, jobID)
	}
	if EncodeJobID(id) != jobID {
		return 0, fmt.Errorf("%w: %q", ErrMalformedCallback, jobID)
	}
	return id, nil
}
