// Package permset implements PermissionSet: a mutable, same-effect bag of
// Permissions grouped by (service, action) and kept in canonical
// greedy-merged form.
package permset

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/iamlens/iamlens/pkg/condition"
	"github.com/iamlens/iamlens/pkg/pattern"
	"github.com/iamlens/iamlens/pkg/permission"
)

type bucketKey struct {
	service string
	action  string
}

// Set is a grouped bag of same-effect Permissions.
type Set struct {
	effect  permission.Effect
	buckets map[bucketKey][]permission.Permission
}

// New returns an empty Set fixed to effect.
func New(effect permission.Effect) *Set {
	return &Set{effect: effect, buckets: make(map[bucketKey][]permission.Permission)}
}

func (s *Set) Effect() permission.Effect { return s.effect }

func (s *Set) key(p permission.Permission) bucketKey {
	return bucketKey{service: strings.ToLower(p.Service()), action: strings.ToLower(p.Action())}
}

// AddPermission folds p into its (service, action) bucket: p is discarded
// if an existing member already includes it; otherwise each existing
// member is tried for a union collapse before p is appended.
func (s *Set) AddPermission(p permission.Permission) error {
	if p.Effect() != s.effect {
		return fmt.Errorf("%w: set is %s, permission is %s", permission.ErrEffectMismatch, s.effect, p.Effect())
	}

	k := s.key(p)
	bucket := s.buckets[k]

	for _, q := range bucket {
		if q.Includes(p) {
			return nil
		}
	}

	next := make([]permission.Permission, 0, len(bucket)+1)
	folded := p
	for _, q := range bucket {
		merged := folded.Union(q)
		if len(merged) == 1 {
			folded = merged[0]
			continue
		}
		next = append(next, q)
	}
	next = append(next, folded)
	s.buckets[k] = next
	return nil
}

// AddAll adds every Permission from other into s.
func (s *Set) AddAll(other *Set) error {
	if other == nil {
		return nil
	}
	if other.effect != s.effect {
		return fmt.Errorf("%w: set is %s, other is %s", permission.ErrEffectMismatch, s.effect, other.effect)
	}
	for _, k := range other.sortedKeys() {
		for _, p := range other.buckets[k] {
			if err := s.AddPermission(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddPermissions adds every Permission in ps.
func (s *Set) AddPermissions(ps []permission.Permission) error {
	for _, p := range ps {
		if err := s.AddPermission(p); err != nil {
			return err
		}
	}
	return nil
}

// Intersection returns a new set containing, for each bucket present in
// both s and other, every nonempty pairwise intersection.
func (s *Set) Intersection(other *Set) (*Set, error) {
	if other == nil {
		return New(s.effect), nil
	}
	if other.effect != s.effect {
		return nil, fmt.Errorf("%w: set is %s, other is %s", permission.ErrEffectMismatch, s.effect, other.effect)
	}

	result := New(s.effect)
	for k, bucket := range s.buckets {
		otherBucket, ok := other.buckets[k]
		if !ok {
			continue
		}
		for _, a := range bucket {
			for _, b := range otherBucket {
				if merged, ok := a.Intersection(b); ok {
					if err := result.AddPermission(merged); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return result, nil
}

// SubtractResult is the residual Allow set and accumulated Deny set
// produced by Subtract.
type SubtractResult struct {
	Allow *Set
	Deny  *Set
}

// Subtract implements PermissionSet.subtract: s must be an Allow set,
// denySet a Deny set. Each Allow in s is iteratively subtracted by every
// matching Deny in denySet; surviving Denies are accumulated.
func (s *Set) Subtract(denySet *Set) (*SubtractResult, error) {
	if s.effect != permission.Allow {
		return nil, fmt.Errorf("%w: Subtract requires an Allow set, got %s", permission.ErrEffectMismatch, s.effect)
	}
	if denySet != nil && denySet.effect != permission.Deny {
		return nil, fmt.Errorf("%w: Subtract requires a Deny argument, got %s", permission.ErrEffectMismatch, denySet.effect)
	}

	residualAllow := New(permission.Allow)
	accumulatedDeny := New(permission.Deny)

	for k, bucket := range s.buckets {
		var denies []permission.Permission
		if denySet != nil {
			denies = denySet.buckets[k]
		}

		for _, a := range bucket {
			survivors := []permission.Permission{a}
			for _, d := range denies {
				var next []permission.Permission
				for _, cur := range survivors {
					for _, out := range cur.Subtract(d) {
						if out.Effect() == permission.Allow {
							next = append(next, out)
						} else {
							if err := accumulatedDeny.AddPermission(out); err != nil {
								return nil, err
							}
						}
					}
				}
				survivors = next
			}
			for _, surv := range survivors {
				if err := residualAllow.AddPermission(surv); err != nil {
					return nil, err
				}
			}
		}
	}

	return &SubtractResult{Allow: residualAllow, Deny: accumulatedDeny}, nil
}

// Clone returns a deep copy of s (Permissions are immutable, only the
// containers are copied).
func (s *Set) Clone() *Set {
	out := New(s.effect)
	for k, bucket := range s.buckets {
		out.buckets[k] = append([]permission.Permission(nil), bucket...)
	}
	return out
}

func (s *Set) IsEmpty() bool {
	for _, bucket := range s.buckets {
		if len(bucket) > 0 {
			return false
		}
	}
	return true
}

func (s *Set) HasService(service string) bool {
	service = strings.ToLower(service)
	for k, bucket := range s.buckets {
		if k.service == service && len(bucket) > 0 {
			return true
		}
	}
	return false
}

func (s *Set) HasAction(service, action string) bool {
	bucket, ok := s.buckets[bucketKey{service: strings.ToLower(service), action: strings.ToLower(action)}]
	return ok && len(bucket) > 0
}

func (s *Set) GetPermissions(service, action string) []permission.Permission {
	bucket := s.buckets[bucketKey{service: strings.ToLower(service), action: strings.ToLower(action)}]
	return append([]permission.Permission(nil), bucket...)
}

func (s *Set) sortedKeys() []bucketKey {
	keys := make([]bucketKey, 0, len(s.buckets))
	for k := range s.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].service != keys[j].service {
			return keys[i].service < keys[j].service
		}
		return keys[i].action < keys[j].action
	})
	return keys
}

// All returns every Permission in the set, in stable (service, action)
// order.
func (s *Set) All() []permission.Permission {
	var out []permission.Permission
	for _, k := range s.sortedKeys() {
		out = append(out, s.buckets[k]...)
	}
	return out
}

// Statement is the JSON shape of a single emitted policy statement.
type Statement struct {
	Effect     permission.Effect   `json:"Effect"`
	Action     json.RawMessage     `json:"Action,omitempty"`
	Resource   json.RawMessage     `json:"Resource,omitempty"`
	NotResource json.RawMessage    `json:"NotResource,omitempty"`
	Condition  condition.Conditions `json:"Condition,omitempty"`
}

type statementGroupKey struct {
	conditionsKey string
	notResource   bool
	resourceKey   string
}

// ToPolicyStatements groups canonical-form permissions by
// (conditions, resource-shape, resource-list) and collects each group's
// service:action pairs into a single statement. Statement ordering and
// action-array ordering are stable.
func (s *Set) ToPolicyStatements() []Statement {
	groups := make(map[statementGroupKey]*groupAccum)
	var order []statementGroupKey

	for _, p := range s.All() {
		gk := groupKeyFor(p)
		g, ok := groups[gk]
		if !ok {
			g = &groupAccum{permission: p}
			groups[gk] = g
			order = append(order, gk)
		}
		g.actions = append(g.actions, p.Service()+":"+p.Action())
	}

	out := make([]Statement, 0, len(order))
	for _, gk := range order {
		g := groups[gk]
		sort.Strings(g.actions)
		out = append(out, buildStatement(s.effect, g))
	}
	return out
}

type groupAccum struct {
	permission permission.Permission
	actions    []string
}

func groupKeyFor(p permission.Permission) statementGroupKey {
	condBytes, _ := json.Marshal(p.Conditions())
	var resKey string
	if p.HasNotResource() {
		resKey = patternKey(p.NotResources())
	} else {
		resKey = patternKey(p.Resources())
	}
	return statementGroupKey{
		conditionsKey: string(condBytes),
		notResource:   p.HasNotResource(),
		resourceKey:   resKey,
	}
}

func patternKey(ps []pattern.Pattern) string {
	ss := make([]string, len(ps))
	for i, p := range ps {
		ss[i] = string(p)
	}
	sort.Strings(ss)
	return strings.Join(ss, "\x00")
}

func buildStatement(effect permission.Effect, g *groupAccum) Statement {
	stmt := Statement{Effect: effect}

	if len(g.actions) == 1 {
		b, _ := json.Marshal(g.actions[0])
		stmt.Action = b
	} else {
		b, _ := json.Marshal(g.actions)
		stmt.Action = b
	}

	if g.permission.HasNotResource() {
		stmt.NotResource = resourceJSON(g.permission.NotResources())
	} else {
		stmt.Resource = resourceJSON(g.permission.Resources())
	}

	if len(g.permission.Conditions()) > 0 {
		stmt.Condition = g.permission.Conditions()
	}
	return stmt
}

func resourceJSON(ps []pattern.Pattern) json.RawMessage {
	if len(ps) == 1 {
		b, _ := json.Marshal(string(ps[0]))
		return b
	}
	ss := make([]string, len(ps))
	for i, p := range ps {
		ss[i] = string(p)
	}
	b, _ := json.Marshal(ss)
	return b
}
