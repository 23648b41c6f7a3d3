// Package schema holds the JSON schemas structured completions are checked against.
package schema

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	//go:embed seed.json
	seedSource string
	//go:embed case.json
	caseSource string
	//go:embed judge.json
	judgeSource string
)

// Name identifies one of the embedded schemas.
type Name string

const (
	Seed  Name = "seed.json"
	Case  Name = "case.json"
	Judge Name = "judge.json"
)

var sources = map[Name]string{
	Seed:  seedSource,
	Case:  caseSource,
	Judge: judgeSource,
}

const baseURL = "https://schemas.casecurator.dev/"

var (
	compileOnce sync.Once
	compiled    map[Name]*jsonschema.Schema
	compileErr  error
)

func load() (map[Name]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		for name, src := range sources {
			if err := compiler.AddResource(baseURL+string(name), strings.NewReader(src)); err != nil {
				compileErr = fmt.Errorf("add schema resource %s: %w", name, err)
				return
			}
		}
		compiled = make(map[Name]*jsonschema.Schema, len(sources))
		for name := range sources {
			s, err := compiler.Compile(baseURL + string(name))
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiled[name] = s
		}
	})
	return compiled, compileErr
}

// Validate checks an already decoded JSON value against the named schema.
func Validate(name Name, value any) error {
	schemas, err := load()
	if err != nil {
		return err
	}
	s, ok := schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	return s.Validate(value)
}

// ValidateJSON decodes raw and validates it against the named schema.
func ValidateJSON(name Name, raw []byte) error {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return Validate(name, value)
}

// Field returns the instance path of the innermost schema violation, or "" if err
// is not a validation error.
func Field(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return ""
	}
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	return strings.TrimPrefix(strings.ReplaceAll(verr.InstanceLocation, "/", "."), ".")
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag, and trims the result. Unfenced input is only trimmed.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
