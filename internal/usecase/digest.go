package usecase

import (
	"fmt"
	"strings"
)

const maxDigestFailures = 5

func buildDigestMessage(title string, sum RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* `%s`\n", title, sum.RunID)
	if sum.JobID != "" {
		fmt.Fprintf(&b, "Job: `%s`\n", sum.JobID)
	}
	fmt.Fprintf(&b, "Ingested: %d/%d (failed %d)\n", sum.Ingest.Succeeded, sum.Ingest.Attempted, sum.Ingest.Failed)
	if sum.Synthetic > 0 {
		fmt.Fprintf(&b, "Synthetic seeds: %d\n", sum.Synthetic)
	}
	if sum.Satisfied {
		b.WriteString("Quota satisfied\n")
	}
	for _, p := range sum.Progress {
		fmt.Fprintf(&b, "- %s: %d/%d (deficit %d)\n", p.Tier, p.Current, p.Target, p.Deficit)
	}
	for i, f := range sum.Ingest.Failures {
		if i == maxDigestFailures {
			fmt.Fprintf(&b, "... and %d more failures\n", len(sum.Ingest.Failures)-maxDigestFailures)
			break
		}
		fmt.Fprintf(&b, "! %s: %s\n", f.CorrelationID, f.Reason)
	}
	return b.String()
}
