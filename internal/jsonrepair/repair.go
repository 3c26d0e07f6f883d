// Package jsonrepair recovers parseable JSON from near-JSON model output.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnrepairable is matched by errors.Is when every strategy fails.
var ErrUnrepairable = errors.New("jsonrepair: could not repair JSON")

// Error carries the last parse or acceptance error seen before giving up.
type Error struct {
	Last error
}

func (e *Error) Error() string {
	return "jsonrepair: could not repair JSON: " + e.Last.Error()
}

// Is reports whether target is ErrUnrepairable.
func (e *Error) Is(target error) bool { return target == ErrUnrepairable }

// Unwrap returns the last underlying error.
func (e *Error) Unwrap() error { return e.Last }

// Options tune Repair.
type Options struct {
	// ExpectedKeys are keys the repaired object must carry. Missing keys are
	// filled with null unless Strict is set.
	ExpectedKeys []string
	// Strict rejects a repaired candidate that lacks any expected key and
	// moves on to the next strategy.
	Strict bool
}

// Strategy is one textual repair heuristic.
type Strategy struct {
	Name  string
	Apply func(string) string
}

// Strategies returns the repair heuristics in the order Repair applies them.
func Strategies() []Strategy {
	return []Strategy{
		{Name: "trim_extra_text", Apply: TrimExtraText},
		{Name: "quote_keys", Apply: QuoteKeys},
		{Name: "trailing_commas", Apply: RemoveTrailingCommas},
		{Name: "single_quotes", Apply: ReplaceSingleQuotes},
		{Name: "unescaped_quotes", Apply: EscapeInnerQuotes},
		{Name: "code_block", Apply: ExtractCodeBlock},
		{Name: "bracket_balance", Apply: BalanceBrackets},
		{Name: "combined", Apply: Combined},
	}
}

// Result describes a successful repair.
type Result struct {
	Data any
	// Strategy names the heuristic that produced Data; empty when the input
	// parsed as-is.
	Strategy string
}

// Repair parses text, applying each strategy to the original text in turn
// until one produces a parseable value that satisfies opts. Valid input is
// returned unchanged without consulting opts.
func Repair(text string, opts Options) (*Result, error) {
	var data any
	if err := json.Unmarshal([]byte(text), &data); err == nil {
		return &Result{Data: data}, nil
	}

	var lastErr error
	for _, s := range Strategies() {
		candidate := s.Apply(text)
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
			lastErr = err
			continue
		}
		parsed, err := applyExpectedKeys(parsed, opts)
		if err != nil {
			lastErr = err
			continue
		}
		return &Result{Data: parsed, Strategy: s.Name}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no strategy produced output")
	}
	return nil, &Error{Last: lastErr}
}

func applyExpectedKeys(data any, opts Options) (any, error) {
	if len(opts.ExpectedKeys) == 0 {
		return data, nil
	}
	obj, ok := data.(map[string]any)
	if !ok {
		if opts.Strict {
			return nil, eris.New("jsonrepair: expected an object")
		}
		return data, nil
	}
	var missing []string
	for _, k := range opts.ExpectedKeys {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return obj, nil
	}
	if opts.Strict {
		return nil, eris.Errorf("jsonrepair: missing expected keys: %s", strings.Join(missing, ", "))
	}
	for _, k := range missing {
		obj[k] = nil
	}
	return obj, nil
}
