package dataset

import (
	"context"
	"fmt"
	"strings"
)

// Probe is a health probe over a dataset source: it verifies that every
// configured dataset identifier is currently reachable. A source that is
// missing or whose store is down makes the probe unhealthy.
type Probe struct {
	source Source
	ids    []string
}

// NewProbe creates a Probe checking the given dataset identifiers.
func NewProbe(source Source, ids []string) *Probe {
	return &Probe{source: source, ids: ids}
}

// Name identifies the probe in the health response.
func (p *Probe) Name() string {
	return "dataset-store"
}

// Check stats every configured dataset. The fingerprint call is cheap
// (stat locally, HEAD on S3) and never parses content.
func (p *Probe) Check(ctx context.Context) error {
	var failed []string
	for _, id := range p.ids {
		if _, err := p.source.Fingerprint(ctx, id); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", id, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("unreachable datasets: %s", strings.Join(failed, "; "))
	}
	return nil
}
