package seeds

import (
	"fmt"
	"strings"
)

const seedSystemPrompt = "You design distinct, concrete scenario seeds for reasoning test cases. Respond with JSON only."

// BuildSeedPrompt asks for batchSize seeds that avoid everything the tracker has seen.
func BuildSeedPrompt(batchSize int, tracker *Tracker, batchIndex int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %d: produce %d scenario seeds.\n", batchIndex+1, batchSize)
	b.WriteString(`Return {"seeds": [{"topic", "subdomain", "entities": [..], "timeframe", "triggering_event", "context"}]}.` + "\n")
	b.WriteString("Every seed must use a different subdomain and distinct named entities.\n")

	if tracker != nil {
		writeAvoid(&b, "subdomains", tracker.Subdomains())
		writeAvoid(&b, "entities", tracker.Entities())
		writeAvoid(&b, "topics", tracker.Topics())
	}
	return b.String()
}

func writeAvoid(b *strings.Builder, what string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "Avoid these %s: %s.\n", what, strings.Join(values, "; "))
}
