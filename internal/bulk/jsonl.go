package bulk

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"CaseCurator/internal/domain"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestBody struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type inputLine struct {
	CustomID string      `json:"custom_id"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Body     requestBody `json:"body"`
}

// encodeRequests renders one JSONL line per request.
func encodeRequests(endpoint string, requests []domain.GenerationRequest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range requests {
		body := requestBody{Model: r.Prompt.Model, Temperature: r.Prompt.Temperature}
		if s := strings.TrimSpace(r.Prompt.System); s != "" {
			body.Messages = append(body.Messages, chatMessage{Role: "system", Content: s})
		}
		body.Messages = append(body.Messages, chatMessage{Role: "user", Content: r.Prompt.User})
		if r.Prompt.JSONOutput {
			body.ResponseFormat = map[string]string{"type": "json_object"}
		}
		if err := enc.Encode(inputLine{CustomID: r.CorrelationID, Method: "POST", URL: endpoint, Body: body}); err != nil {
			return nil, fmt.Errorf("encode request %s: %w", r.CorrelationID, err)
		}
	}
	return buf.Bytes(), nil
}

type outputLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int             `json:"status_code"`
		Body       json.RawMessage `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// result converts one output or error line into a RawResult.
func (l outputLine) result() domain.RawResult {
	r := domain.RawResult{CorrelationID: l.CustomID}
	switch {
	case l.Error != nil:
		r.Err = fmt.Sprintf("%s: %s", l.Error.Code, l.Error.Message)
	case l.Response == nil:
		r.Err = "empty response"
	case l.Response.StatusCode >= 400:
		r.Err = fmt.Sprintf("status %d: %s", l.Response.StatusCode, truncate(string(l.Response.Body), 200))
	default:
		r.Payload = l.Response.Body
	}
	return r
}

// decodeLines parses a JSONL file; malformed lines are reported, not fatal.
func decodeLines(raw []byte) ([]outputLine, []string) {
	var (
		out  []outputLine
		bad  []string
		scan = bufio.NewScanner(bytes.NewReader(raw))
	)
	scan.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for scan.Scan() {
		n++
		line := bytes.TrimSpace(scan.Bytes())
		if len(line) == 0 {
			continue
		}
		var l outputLine
		if err := json.Unmarshal(line, &l); err != nil || l.CustomID == "" {
			bad = append(bad, fmt.Sprintf("line %d", n))
			continue
		}
		out = append(out, l)
	}
	if err := scan.Err(); err != nil {
		bad = append(bad, err.Error())
	}
	return out, bad
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
