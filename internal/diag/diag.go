// Package diag implements the --verbose JSON projection used by the
// simulate/who-can/principal-can subcommands to let an operator drill into
// a result with a jq filter instead of dumping the whole document,
// adapted from pkg/utils/jq.go's gojq-based query runner.
package diag

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// Query runs a jq filter against v (any JSON-marshalable value) and
// returns every emitted result re-marshaled as indented JSON, one per
// element.
func Query(v any, filter string) ([]json.RawMessage, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("parse jq filter %q: %w", filter, err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value for jq projection: %w", err)
	}
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode value for jq projection: %w", err)
	}

	iter := query.Run(decoded)
	var results []json.RawMessage
	for {
		next, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := next.(error); ok {
			if haltErr, ok := err.(*gojq.HaltError); ok && haltErr.Value() == nil {
				break
			}
			return nil, fmt.Errorf("jq filter %q: %w", filter, err)
		}
		encoded, err := json.MarshalIndent(next, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal jq result: %w", err)
		}
		results = append(results, encoded)
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("jq filter %q produced no results", filter)
	}
	return results, nil
}
