package generation

import (
	"fmt"
	"strconv"
	"strings"

	"CaseCurator/internal/domain"
)

const correlationSep = ":"

// Correlation is the decoded form of a request's correlation id.
type Correlation struct {
	RunID string
	Cell  domain.CellKey
	Seq   int
}

// EncodeCorrelation renders run, cell and sequence into a stable id.
func EncodeCorrelation(runID string, key domain.CellKey, seq int) (string, error) {
	for _, part := range []string{runID, string(key.Tier), key.Code, key.SubCode} {
		if strings.Contains(part, correlationSep) {
			return "", fmt.Errorf("correlation part %q contains %q", part, correlationSep)
		}
	}
	if runID == "" || key.Code == "" || !key.Tier.Valid() {
		return "", fmt.Errorf("correlation needs run id and a valid cell, got %q %s", runID, key)
	}
	if seq < 0 {
		return "", fmt.Errorf("negative correlation sequence %d", seq)
	}
	return strings.Join([]string{runID, string(key.Tier), key.Code, key.SubCode, fmt.Sprintf("%05d", seq)}, correlationSep), nil
}

// DecodeCorrelation is the inverse of EncodeCorrelation.
func DecodeCorrelation(id string) (Correlation, error) {
	parts := strings.Split(id, correlationSep)
	if len(parts) != 5 {
		return Correlation{}, fmt.Errorf("malformed correlation id %q", id)
	}
	tier, err := domain.ParseTier(parts[1])
	if err != nil {
		return Correlation{}, fmt.Errorf("correlation id %q: %w", id, err)
	}
	if parts[0] == "" || parts[2] == "" {
		return Correlation{}, fmt.Errorf("malformed correlation id %q", id)
	}
	seq, err := strconv.Atoi(parts[4])
	if err != nil || seq < 0 {
		return Correlation{}, fmt.Errorf("correlation id %q: bad sequence", id)
	}
	return Correlation{
		RunID: parts[0],
		Cell:  domain.CellKey{Tier: tier, Code: parts[2], SubCode: parts[3]},
		Seq:   seq,
	}, nil
}
