// Package shrink implements the optional policy-shrinker collaborator
// invoked only with --shrinkActionLists: it collapses statements that
// already share an identical effect/resource/condition shape but were
// emitted separately (e.g. one from the identity allow set, one from a
// cross-account result) into a single statement with a merged,
// deduplicated action list.
package shrink

import (
	"encoding/json"
	"sort"

	"github.com/iamlens/iamlens/pkg/permset"
)

type shapeKey struct {
	effect       string
	notResource  bool
	resourceKey  string
	conditionKey string
}

// Statements merges statements sharing an identical (effect, resource
// shape, condition) into one statement per shape, with a deduplicated,
// sorted action list. Statement order follows first occurrence of each
// shape.
func Statements(statements []permset.Statement) []permset.Statement {
	groups := make(map[shapeKey]*group)
	var order []shapeKey

	for _, s := range statements {
		k := keyFor(s)
		g, ok := groups[k]
		if !ok {
			g = &group{template: s, actions: make(map[string]struct{})}
			groups[k] = g
			order = append(order, k)
		}
		for _, a := range decodeActions(s.Action) {
			g.actions[a] = struct{}{}
		}
	}

	out := make([]permset.Statement, 0, len(order))
	for _, k := range order {
		g := groups[k]
		stmt := g.template
		stmt.Action = encodeActions(g.actions)
		out = append(out, stmt)
	}
	return out
}

type group struct {
	template permset.Statement
	actions  map[string]struct{}
}

func keyFor(s permset.Statement) shapeKey {
	resKey := string(s.Resource)
	if s.NotResource != nil {
		resKey = string(s.NotResource)
	}
	condKey, _ := json.Marshal(s.Condition)
	return shapeKey{
		effect:       string(s.Effect),
		notResource:  s.NotResource != nil,
		resourceKey:  resKey,
		conditionKey: string(condKey),
	}
}

func decodeActions(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

func encodeActions(set map[string]struct{}) json.RawMessage {
	actions := make([]string, 0, len(set))
	for a := range set {
		actions = append(actions, a)
	}
	sort.Strings(actions)

	if len(actions) == 1 {
		b, _ := json.Marshal(actions[0])
		return b
	}
	b, _ := json.Marshal(actions)
	return b
}
