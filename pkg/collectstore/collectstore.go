// Package collectstore is a minimal file-backed store.Client, reading a
// single JSONC snapshot file (the --collectConfigs target) shaped as
// resource/org/index maps keyed the same way pkg/store.Client's contract
// keys its lookups. The real iam-collect storage client is an external
// collaborator; this loader exists so the CLI can run end-to-end against
// a local snapshot without one.
package collectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Snapshot is the on-disk shape this loader understands.
type Snapshot struct {
	Resources map[string]json.RawMessage `json:"resources"`
	Org       map[string]json.RawMessage `json:"org"`
	Indexes   map[string][]string        `json:"indexes"`
}

// Client serves store.Client lookups out of an in-memory Snapshot.
type Client struct {
	snapshot Snapshot
}

// Load reads and parses a JSONC snapshot file from path, stripping `//`
// line comments before decoding (no pack example carries a JSONC decoder;
// this line-comment strip covers the --collectConfigs use case without
// pulling in a full JSON5/HuJSON parser for a single comment style).
func Load(path string) (*Client, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read collect config %s: %w", path, err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(stripLineComments(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("parse collect config %s: %w", path, err)
	}
	return &Client{snapshot: snapshot}, nil
}

// Merge combines multiple loaded snapshots into one Client, later paths
// overriding earlier ones on key collision — the repeatable
// --collectConfigs path list.
func Merge(clients ...*Client) *Client {
	merged := Snapshot{
		Resources: map[string]json.RawMessage{},
		Org:       map[string]json.RawMessage{},
		Indexes:   map[string][]string{},
	}
	for _, c := range clients {
		if c == nil {
			continue
		}
		for k, v := range c.snapshot.Resources {
			merged.Resources[k] = v
		}
		for k, v := range c.snapshot.Org {
			merged.Org[k] = v
		}
		for k, v := range c.snapshot.Indexes {
			merged.Indexes[k] = v
		}
	}
	return &Client{snapshot: merged}
}

func (c *Client) GetResource(_ context.Context, accountID, arn, metadataKey string) (json.RawMessage, bool, error) {
	v, ok := c.snapshot.Resources[accountID+"|"+arn+"|"+metadataKey]
	return v, ok, nil
}

func (c *Client) GetOrgMetadata(_ context.Context, orgID, key string) (json.RawMessage, bool, error) {
	v, ok := c.snapshot.Org[orgID+"|"+key]
	return v, ok, nil
}

func (c *Client) GetIndex(_ context.Context, indexName, key string) ([]string, error) {
	return c.snapshot.Indexes[indexName+"|"+key], nil
}

// stripLineComments removes "// ..." line comments outside of string
// literals.
func stripLineComments(data []byte) []byte {
	var out strings.Builder
	inString := false
	escaped := false
	for i := 0; i < len(data); i++ {
		b := data[i]
		if inString {
			out.WriteByte(b)
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		if b == '"' {
			inString = true
			out.WriteByte(b)
			continue
		}
		if b == '/' && i+1 < len(data) && data[i+1] == '/' {
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out.WriteByte('\n')
			}
			continue
		}
		out.WriteByte(b)
	}
	return []byte(out.String())
}
