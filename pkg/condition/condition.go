// Package condition implements the IAM condition algebra: normalization,
// union, intersection, and inversion of condition blocks, dispatched per
// normalized operator family.
package condition

import (
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Conditions is operator name -> context key -> ordered values. Operator
// names and context keys are stored normalized to lowercase; values keep
// their original casing.
type Conditions map[string]map[string][]string

// OpParts is an operator name parsed into its algebraic components.
type OpParts struct {
	SetQuantifier string // "forallvalues", "foranyvalue", or ""
	Base          string // normalized base operator, e.g. "stringequals"
	IfExists      bool
}

// ParseOperator normalizes and decomposes an operator name into its set
// quantifier prefix (ForAllValues/ForAnyValue), base comparison, and
// IfExists suffix.
func ParseOperator(op string) OpParts {
	lop := strings.ToLower(op)

	var quant string
	switch {
	case strings.HasPrefix(lop, "forallvalues:"):
		quant = "forallvalues"
		lop = strings.TrimPrefix(lop, "forallvalues:")
	case strings.HasPrefix(lop, "foranyvalue:"):
		quant = "foranyvalue"
		lop = strings.TrimPrefix(lop, "foranyvalue:")
	}

	ifExists := strings.HasSuffix(lop, "ifexists")
	if ifExists {
		lop = strings.TrimSuffix(lop, "ifexists")
	}

	return OpParts{SetQuantifier: quant, Base: lop, IfExists: ifExists}
}

// String renders the operator in canonical lowercase form.
func (p OpParts) String() string {
	var b strings.Builder
	switch p.SetQuantifier {
	case "forallvalues":
		b.WriteString("forallvalues:")
	case "foranyvalue":
		b.WriteString("foranyvalue:")
	}
	b.WriteString(p.Base)
	if p.IfExists {
		b.WriteString("ifexists")
	}
	return b.String()
}

// invertQuantifier swaps ForAllValues <-> ForAnyValue, leaving "" alone.
func invertQuantifier(q string) string {
	switch q {
	case "forallvalues":
		return "foranyvalue"
	case "foranyvalue":
		return "forallvalues"
	default:
		return q
	}
}

type family int

const (
	famUnknown family = iota
	famStringPos
	famStringNeg
	famNumUpper
	famNumLower
	famDateUpper
	famDateLower
	famBool
	famIP
)

var familyOf = map[string]family{
	"stringequals":  famStringPos,
	"stringlike":    famStringPos,
	"arnequals":     famStringPos,
	"arnlike":       famStringPos,
	"numericequals": famStringPos,
	"dateequals":    famStringPos,

	"stringnotequals":  famStringNeg,
	"stringnotlike":    famStringNeg,
	"arnnotequals":     famStringNeg,
	"arnnotlike":       famStringNeg,
	"numericnotequals": famStringNeg,
	"datenotequals":    famStringNeg,

	"numericlessthan":       famNumUpper,
	"numericlessthanequals": famNumUpper,
	"numericgreaterthan":       famNumLower,
	"numericgreaterthanequals": famNumLower,

	"datelessthan":       famDateUpper,
	"datelessthanequals": famDateUpper,
	"dategreaterthan":       famDateLower,
	"dategreaterthanequals": famDateLower,

	"bool": famBool,
	"null": famBool,

	"ipaddress":    famIP,
	"notipaddress": famIP,
}

// complement maps a base operator to its Boolean complement.
var complement = map[string]string{
	"stringequals": "stringnotequals", "stringnotequals": "stringequals",
	"stringlike": "stringnotlike", "stringnotlike": "stringlike",
	"arnequals": "arnnotequals", "arnnotequals": "arnequals",
	"arnlike": "arnnotlike", "arnnotlike": "arnlike",
	"numericequals": "numericnotequals", "numericnotequals": "numericequals",
	"dateequals": "datenotequals", "datenotequals": "dateequals",
	"numericlessthan": "numericgreaterthanequals", "numericgreaterthanequals": "numericlessthan",
	"numericlessthanequals": "numericgreaterthan", "numericgreaterthan": "numericlessthanequals",
	"datelessthan": "dategreaterthanequals", "dategreaterthanequals": "datelessthan",
	"datelessthanequals": "dategreaterthan", "dategreaterthan": "datelessthanequals",
	"ipaddress": "notipaddress", "notipaddress": "ipaddress",
	"bool": "bool",
	"null": "null",
}

func isListFamily(f family) bool {
	return f == famStringPos || f == famStringNeg || f == famIP
}

func isSingleFamily(f family) bool {
	return f == famNumUpper || f == famNumLower || f == famDateUpper || f == famDateLower || f == famBool
}

// Normalize lowercases every operator name and context key and returns a
// defensive copy of all value slices.
func Normalize(c Conditions) Conditions {
	if c == nil {
		return nil
	}
	out := make(Conditions, len(c))
	for op, stmt := range c {
		lop := ParseOperator(op).String()
		nstmt := out[lop]
		if nstmt == nil {
			nstmt = make(map[string][]string, len(stmt))
			out[lop] = nstmt
		}
		for k, vals := range stmt {
			lk := strings.ToLower(k)
			cp := append([]string(nil), vals...)
			nstmt[lk] = cp
		}
	}
	return out
}

// IsEmpty reports whether c has no operators.
func IsEmpty(c Conditions) bool {
	return len(c) == 0
}

// Equal reports structural equality of two condition blocks after
// normalization (order-insensitive on operators and keys, and on values:
// each key's value list is compared as a set, matching AWS's treatment of
// value lists as sets).
func Equal(a, b Conditions) bool {
	na, nb := Normalize(a), Normalize(b)
	if len(na) != len(nb) {
		return false
	}
	for op, stmtA := range na {
		stmtB, ok := nb[op]
		if !ok || len(stmtA) != len(stmtB) {
			return false
		}
		for k, va := range stmtA {
			vb, ok := stmtB[k]
			if !ok {
				return false
			}
			if !sameSet(va, vb) {
				return false
			}
		}
	}
	return true
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	ac := append([]string(nil), a...)
	bc := append([]string(nil), b...)
	sort.Strings(ac)
	sort.Strings(bc)
	return reflect.DeepEqual(ac, bc)
}

func listUnion(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range append(append([]string{}, a...), b...) {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func listIntersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(a))
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		if _, ok := set[v]; !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func listSubtract(a, minus []string) []string {
	set := make(map[string]struct{}, len(minus))
	for _, v := range minus {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(a))
	for _, v := range a {
		if _, ok := set[v]; ok {
			continue
		}
		out = append(out, v)
	}
	return out
}

// combineList merges two value lists for a list-family operator.
// intersect selects the AND column, otherwise the OR column.
func combineList(fam family, a, b []string, intersect bool) []string {
	switch fam {
	case famStringNeg:
		if intersect {
			return listUnion(a, b)
		}
		return listIntersect(a, b)
	default: // famStringPos, famIP
		if intersect {
			return listIntersect(a, b)
		}
		return listUnion(a, b)
	}
}

// combineSingle merges two single-valued bound operators. ok is false when
// the values cannot be compared (e.g. non-numeric for a numeric family) or,
// for Bool/Null, when the two values differ.
func combineSingle(fam family, a, b string, intersect bool) (string, bool) {
	switch fam {
	case famBool:
		if a == b {
			return a, true
		}
		return "", false
	case famNumUpper, famNumLower:
		fa, erra := strconv.ParseFloat(a, 64)
		fb, errb := strconv.ParseFloat(b, 64)
		if erra != nil || errb != nil {
			return "", false
		}
		wantMin := (fam == famNumUpper) == intersect
		if wantMin {
			if fa <= fb {
				return a, true
			}
			return b, true
		}
		if fa >= fb {
			return a, true
		}
		return b, true
	case famDateUpper, famDateLower:
		wantMin := (fam == famDateUpper) == intersect
		if wantMin {
			if a <= b {
				return a, true
			}
			return b, true
		}
		if a >= b {
			return a, true
		}
		return b, true
	}
	return "", false
}

// Includes reports whether every request satisfying b's conditions also
// satisfies a's: per family, b's constraint must be at least as
// restrictive as a's.
func Includes(a, b Conditions) bool {
	na, nb := Normalize(a), Normalize(b)
	for op, stmtA := range na {
		stmtB, ok := nb[op]
		if !ok {
			return false
		}
		fam := familyOf[ParseOperator(op).Base]
		for k, va := range stmtA {
			vb, ok := stmtB[k]
			if !ok {
				return false
			}
			switch fam {
			case famStringPos, famIP:
				if !isSubset(vb, va) {
					return false
				}
			case famStringNeg:
				if !isSubset(va, vb) {
					return false
				}
			case famNumUpper, famDateUpper:
				if len(va) == 0 || len(vb) == 0 || !boundaryAtMost(fam, vb[0], va[0]) {
					return false
				}
			case famNumLower, famDateLower:
				if len(va) == 0 || len(vb) == 0 || !boundaryAtLeast(fam, vb[0], va[0]) {
					return false
				}
			case famBool:
				if len(va) == 0 || len(vb) == 0 || va[0] != vb[0] {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}

func isSubset(small, big []string) bool {
	set := make(map[string]struct{}, len(big))
	for _, v := range big {
		set[v] = struct{}{}
	}
	for _, v := range small {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}

func boundaryAtMost(fam family, x, y string) bool {
	if fam == famNumUpper {
		fx, e1 := strconv.ParseFloat(x, 64)
		fy, e2 := strconv.ParseFloat(y, 64)
		if e1 != nil || e2 != nil {
			return false
		}
		return fx <= fy
	}
	return x <= y
}

func boundaryAtLeast(fam family, x, y string) bool {
	if fam == famNumLower {
		fx, e1 := strconv.ParseFloat(x, 64)
		fy, e2 := strconv.ParseFloat(y, 64)
		if e1 != nil || e2 != nil {
			return false
		}
		return fx >= fy
	}
	return x >= y
}

// UnionConditions returns merged conditions iff both sides have identical
// operator sets and, per operator, identical key sets. The boolean result
// is false when the blocks are not mergeable as a single statement.
func UnionConditions(a, b Conditions) (Conditions, bool) {
	na, nb := Normalize(a), Normalize(b)

	if len(na) != len(nb) {
		return nil, false
	}

	result := make(Conditions, len(na))
	for op, stmtA := range na {
		stmtB, ok := nb[op]
		if !ok || len(stmtA) != len(stmtB) {
			return nil, false
		}

		fam := familyOf[ParseOperator(op).Base]
		merged := make(map[string][]string, len(stmtA))
		for k, va := range stmtA {
			vb, ok := stmtB[k]
			if !ok {
				return nil, false
			}
			switch {
			case isListFamily(fam):
				merged[k] = combineList(fam, va, vb, false)
			case isSingleFamily(fam):
				if len(va) == 0 || len(vb) == 0 {
					return nil, false
				}
				v, ok := combineSingle(fam, va[0], vb[0], false)
				if !ok {
					return nil, false
				}
				merged[k] = []string{v}
			default:
				return nil, false
			}
		}
		result[op] = merged
	}

	return result, true
}

// IntersectConditions returns the narrowed conditions satisfying both a
// and b. The boolean result is false when the intersection is provably
// empty.
func IntersectConditions(a, b Conditions) (Conditions, bool) {
	na, nb := Normalize(a), Normalize(b)

	ops := make(map[string]struct{}, len(na)+len(nb))
	for op := range na {
		ops[op] = struct{}{}
	}
	for op := range nb {
		ops[op] = struct{}{}
	}

	result := make(Conditions, len(ops))
	for op := range ops {
		stmtA, aok := na[op]
		stmtB, bok := nb[op]
		fam := familyOf[ParseOperator(op).Base]

		switch {
		case aok && bok:
			keys := make(map[string]struct{}, len(stmtA)+len(stmtB))
			for k := range stmtA {
				keys[k] = struct{}{}
			}
			for k := range stmtB {
				keys[k] = struct{}{}
			}
			merged := make(map[string][]string, len(keys))
			for k := range keys {
				va, aHas := stmtA[k]
				vb, bHas := stmtB[k]
				switch {
				case aHas && bHas:
					switch {
					case isListFamily(fam):
						m := combineList(fam, va, vb, true)
						if len(m) == 0 {
							return nil, false
						}
						merged[k] = m
					case isSingleFamily(fam):
						if len(va) == 0 || len(vb) == 0 {
							return nil, false
						}
						v, ok := combineSingle(fam, va[0], vb[0], true)
						if !ok {
							return nil, false
						}
						merged[k] = []string{v}
					default:
						merged[k] = append([]string(nil), va...)
					}
				case aHas:
					merged[k] = append([]string(nil), va...)
				default:
					merged[k] = append([]string(nil), vb...)
				}
			}
			result[op] = merged
		case aok:
			result[op] = copyStmt(stmtA)
		default:
			result[op] = copyStmt(stmtB)
		}
	}

	if ok := reduceComplementaryPairs(result); !ok {
		return nil, false
	}

	return result, true
}

func copyStmt(stmt map[string][]string) map[string][]string {
	out := make(map[string][]string, len(stmt))
	for k, v := range stmt {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// reduceComplementaryPairs implements the complementary-pair reduction
// step of intersectConditions: for each operator paired with its logical
// complement, where both sides name the same key, values named on the
// negative side are removed from the positive side's list. Numeric/date
// bound pairs are reduced only in the provably-empty case, since a
// partial boundary subtraction cannot be expressed as a single bound
// operator. Returns false if the reduction empties any value list.
func reduceComplementaryPairs(result Conditions) bool {
	seen := make(map[string]struct{})
	for op := range result {
		if _, done := seen[op]; done {
			continue
		}
		parts := ParseOperator(op)
		compBase, ok := complement[parts.Base]
		if !ok || compBase == parts.Base {
			continue
		}
		compOp := OpParts{SetQuantifier: parts.SetQuantifier, Base: compBase, IfExists: parts.IfExists}.String()
		if _, ok := result[compOp]; !ok {
			continue
		}
		seen[op] = struct{}{}
		seen[compOp] = struct{}{}

		fam := familyOf[parts.Base]
		positiveOp, positiveFam := op, fam
		if fam == famStringNeg {
			positiveOp, positiveFam = compOp, familyOf[compBase]
		}
		negativeOp := compOp
		if positiveOp == compOp {
			negativeOp = op
		}

		switch positiveFam {
		case famStringPos:
			posStmt := result[positiveOp]
			negStmt := result[negativeOp]
			for k, negVals := range negStmt {
				posVals, ok := posStmt[k]
				if !ok {
					continue
				}
				reduced := listSubtract(posVals, negVals)
				if len(reduced) == 0 {
					return false
				}
				posStmt[k] = reduced
				// The positive side's finite list already excludes every
				// negated value, so the negative constraint on this key is
				// now redundant.
				delete(negStmt, k)
			}
			if len(negStmt) == 0 {
				delete(result, negativeOp)
			}
		case famNumUpper, famDateUpper, famNumLower, famDateLower:
			// One side is the upper bound (e.g. LessThan), its complement
			// the lower bound (GreaterThanEquals). Provably empty when
			// lower bound >= upper bound.
			upperStmt, lowerStmt := result[op], result[compOp]
			if fam == famNumLower || fam == famDateLower {
				upperStmt, lowerStmt = result[compOp], result[op]
			}
			for k, lowerVals := range lowerStmt {
				upperVals, ok := upperStmt[k]
				if !ok || len(upperVals) == 0 || len(lowerVals) == 0 {
					continue
				}
				if boundsEmpty(familyOf[parts.Base], upperVals[0], lowerVals[0]) {
					return false
				}
			}
		}
	}
	return true
}

func boundsEmpty(fam family, upper, lower string) bool {
	if fam == famNumUpper || fam == famNumLower {
		u, err1 := strconv.ParseFloat(upper, 64)
		l, err2 := strconv.ParseFloat(lower, 64)
		if err1 != nil || err2 != nil {
			return false
		}
		return l >= u
	}
	return lower >= upper
}

// InvertConditions negates a condition block: every operator maps to its
// Boolean complement, set quantifiers swap, and
// IfExists is preserved. Bool/Null keep their operator name but flip
// their single value.
func InvertConditions(c Conditions) Conditions {
	nc := Normalize(c)
	out := make(Conditions, len(nc))
	for op, stmt := range nc {
		parts := ParseOperator(op)
		fam := familyOf[parts.Base]

		newParts := OpParts{
			SetQuantifier: invertQuantifier(parts.SetQuantifier),
			Base:          parts.Base,
			IfExists:      parts.IfExists,
		}
		newStmt := make(map[string][]string, len(stmt))

		if fam == famBool {
			for k, v := range stmt {
				flipped := make([]string, len(v))
				for i, val := range v {
					if val == "true" {
						flipped[i] = "false"
					} else {
						flipped[i] = "true"
					}
				}
				newStmt[k] = flipped
			}
			out[newParts.String()] = newStmt
			continue
		}

		if compBase, ok := complement[parts.Base]; ok {
			newParts.Base = compBase
		}
		for k, v := range stmt {
			newStmt[k] = append([]string(nil), v...)
		}
		out[newParts.String()] = newStmt
	}
	return out
}
