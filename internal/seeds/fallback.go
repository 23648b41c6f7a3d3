package seeds

import (
	"fmt"

	"CaseCurator/internal/domain"
)

var (
	fallbackSubdomains = []string{
		"public health", "labor economics", "education policy", "urban transport",
		"clinical trials", "agronomy", "consumer finance", "energy markets",
		"criminology", "software operations", "marketing analytics", "sports science",
	}
	fallbackEntities = []string{
		"Harbor County", "Northwind Clinic", "Aster Logistics", "Pinebrook School District",
		"Meridian Bank", "Solace Pharmaceuticals", "Redfield Farms", "Lumen Grid",
		"Kestrel Retail", "Orchard Transit", "Vantage Labs", "Cobalt Athletics",
	}
	fallbackTimeframes = []string{
		"over one fiscal quarter", "across two school years", "during a six-month pilot",
		"in the year after a policy change", "over a holiday season", "across three harvests",
	}
	fallbackEvents = []string{
		"a new subsidy program launches", "a supplier changes its pricing",
		"a regulation takes effect", "a competitor exits the market",
		"a staffing shortage begins", "an outage disrupts service",
		"a marketing campaign rolls out",
	}
)

// synthesize builds deterministic filler from rotation lists. n is a running counter
// so consecutive fillers never repeat a topic or entity within the run.
func synthesize(n int) domain.ScenarioSeed {
	sub := fallbackSubdomains[n%len(fallbackSubdomains)]
	event := fallbackEvents[n%len(fallbackEvents)]
	primary := fmt.Sprintf("%s %d", fallbackEntities[n%len(fallbackEntities)], n+1)
	secondary := fmt.Sprintf("%s %d", fallbackEntities[(n+5)%len(fallbackEntities)], n+1)
	return domain.ScenarioSeed{
		Topic:           fmt.Sprintf("%s after %s (case %d)", sub, event, n+1),
		Subdomain:       sub,
		Entities:        []string{primary, secondary},
		Timeframe:       fallbackTimeframes[n%len(fallbackTimeframes)],
		TriggeringEvent: event,
		Context:         fmt.Sprintf("%s and %s are observed %s.", primary, secondary, fallbackTimeframes[n%len(fallbackTimeframes)]),
		Synthetic:       true,
	}
}
