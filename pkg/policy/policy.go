// Package policy implements the JSON wire types for a loaded IAM policy
// document: Policy, Statement, Principal, Condition, and the
// DynaString single-or-array string encoding AWS uses throughout its
// policy grammar.
package policy

import (
	"encoding/json"
	"fmt"

	"github.com/iamlens/iamlens/pkg/condition"
)

// Policy is a parsed IAM policy document.
type Policy struct {
	Id        string          `json:"Id,omitempty"`
	Version   string          `json:"Version"`
	Statement StatementList   `json:"Statement"`
}

// ParseJSON parses a JSON policy document.
func ParseJSON(data []byte) (*Policy, error) {
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy document: %w", err)
	}
	if p.Version == "" {
		return nil, fmt.Errorf("parse policy document: missing Version")
	}
	if len(p.Statement) == 0 {
		return nil, fmt.Errorf("parse policy document: empty Statement")
	}
	return &p, nil
}

// StatementList accepts either a single Statement object or an array, as
// AWS's policy grammar allows both.
type StatementList []Statement

func (sl *StatementList) UnmarshalJSON(data []byte) error {
	var single Statement
	if err := json.Unmarshal(data, &single); err == nil {
		*sl = StatementList{single}
		return nil
	}
	var multi []Statement
	if err := json.Unmarshal(data, &multi); err != nil {
		return fmt.Errorf("unmarshal Statement: %w", err)
	}
	*sl = multi
	return nil
}

// Statement is a single IAM policy statement.
type Statement struct {
	Sid          string      `json:"Sid,omitempty"`
	Effect       string      `json:"Effect"`
	Principal    *Principal  `json:"Principal,omitempty"`
	NotPrincipal *Principal  `json:"NotPrincipal,omitempty"`
	Action       *DynaString `json:"Action,omitempty"`
	NotAction    *DynaString `json:"NotAction,omitempty"`
	Resource     *DynaString `json:"Resource,omitempty"`
	NotResource  *DynaString `json:"NotResource,omitempty"`
	Condition    Condition   `json:"Condition,omitempty"`
}

// Conditions converts the statement's wire-format Condition block into
// the algebra package's normalized Conditions type.
func (s Statement) Conditions() condition.Conditions {
	if len(s.Condition) == 0 {
		return nil
	}
	out := make(condition.Conditions, len(s.Condition))
	for op, stmt := range s.Condition {
		inner := make(map[string][]string, len(stmt))
		for k, v := range stmt {
			inner[k] = append([]string(nil), v...)
		}
		out[op] = inner
	}
	return condition.Normalize(out)
}

// Principal is the statement Principal/NotPrincipal block. A bare "*"
// unmarshals to every field populated with a single "*" entry.
type Principal struct {
	AWS           *DynaString `json:"AWS,omitempty"`
	Service       *DynaString `json:"Service,omitempty"`
	Federated     *DynaString `json:"Federated,omitempty"`
	CanonicalUser *DynaString `json:"CanonicalUser,omitempty"`
}

func (p *Principal) UnmarshalJSON(data []byte) error {
	if string(data) == `"*"` {
		star := DynaString{"*"}
		*p = Principal{AWS: &star, Service: &star, Federated: &star, CanonicalUser: &star}
		return nil
	}
	type alias Principal
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("unmarshal Principal: %w", err)
	}
	*p = Principal(a)
	return nil
}

// ARNs returns every AWS-principal ARN/wildcard named by p.
func (p *Principal) ARNs() []string {
	if p == nil || p.AWS == nil {
		return nil
	}
	return append([]string(nil), (*p.AWS)...)
}

// Condition is operator name -> context key -> value list, exactly as it
// appears on the wire (not yet normalized; use Statement.Conditions for
// the normalized algebra form).
type Condition map[string]ConditionStatement

// ConditionStatement is context key -> ordered value list.
type ConditionStatement map[string]DynaString

// DynaString decodes either a bare string or a JSON array of strings into
// a single slice, matching AWS's single-or-list policy grammar.
type DynaString []string

func (d *DynaString) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*d = DynaString{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("unmarshal DynaString: %w", err)
	}
	*d = many
	return nil
}

func (d DynaString) MarshalJSON() ([]byte, error) {
	if len(d) == 1 {
		return json.Marshal(d[0])
	}
	return json.Marshal([]string(d))
}
