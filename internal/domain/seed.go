package domain

import (
	"fmt"
	"strings"
)

// ScenarioSeed is a one-shot scenario prompt ingredient.
type ScenarioSeed struct {
	ID              string   `json:"id"`
	Topic           string   `json:"topic"`
	Subdomain       string   `json:"subdomain"`
	Entities        []string `json:"entities"`
	Timeframe       string   `json:"timeframe"`
	TriggeringEvent string   `json:"triggering_event"`
	Context         string   `json:"context"`
	Synthetic       bool     `json:"-"`
}

// Validate checks the fields the request builder relies on.
func (s ScenarioSeed) Validate() error {
	if strings.TrimSpace(s.Topic) == "" {
		return fmt.Errorf("seed %s: topic is required", s.ID)
	}
	if strings.TrimSpace(s.Subdomain) == "" {
		return fmt.Errorf("seed %s: subdomain is required", s.ID)
	}
	if len(s.Entities) == 0 {
		return fmt.Errorf("seed %s: entities must not be empty", s.ID)
	}
	return nil
}
