package ast

import (
	"encoding/json"

	"github.com/zerosync/ivmengine/internal/ivmerr"
	"github.com/zerosync/ivmengine/row"
)

// Wire shapes, per spec.md §6:
//   {type:'simple', left:{type:'column',name}, op, right:{type:'literal',value}}
//   {type:'and'|'or', conditions:[...]}
//   {type:'not', condition:{...}}
//   {type:'correlatedSubquery', related:{subquery, correlation}, op:'EXISTS', flip?, negated?}
//
// Unknown optional fields are accepted without error. Every expression
// node below carries an Extra side-channel captured from (and re-emitted
// into) the raw JSON object, so its unknown fields survive a round trip;
// unknown fields on the top-level AST object and on related entries are
// accepted but dropped.

func extractExtra(raw map[string]json.RawMessage, known ...string) map[string]any {
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}
	var extra map[string]any
	for k, v := range raw {
		if knownSet[k] {
			continue
		}
		if extra == nil {
			extra = map[string]any{}
		}
		var val any
		_ = json.Unmarshal(v, &val)
		extra[k] = val
	}
	return extra
}

func mergeExtra(m map[string]any, obj map[string]any) {
	for k, v := range m {
		obj[k] = v
	}
}

// MarshalExpr encodes e into its tagged-tree wire form.
func MarshalExpr(e Expr) (json.RawMessage, error) {
	if e == nil {
		return json.Marshal(nil)
	}
	obj := map[string]any{}
	switch v := e.(type) {
	case SimpleExpr:
		obj["type"] = "simple"
		obj["left"] = map[string]any{"type": "column", "name": v.Column}
		obj["op"] = string(v.Op)
		obj["right"] = map[string]any{"type": "literal", "value": v.Value.Any()}
		mergeExtra(v.Extra, obj)
	case AndExpr:
		obj["type"] = "and"
		conds, err := marshalExprList(v.Conditions)
		if err != nil {
			return nil, err
		}
		obj["conditions"] = conds
		mergeExtra(v.Extra, obj)
	case OrExpr:
		obj["type"] = "or"
		conds, err := marshalExprList(v.Conditions)
		if err != nil {
			return nil, err
		}
		obj["conditions"] = conds
		mergeExtra(v.Extra, obj)
	case NotExpr:
		obj["type"] = "not"
		cond, err := MarshalExpr(v.Condition)
		if err != nil {
			return nil, err
		}
		obj["condition"] = json.RawMessage(cond)
		mergeExtra(v.Extra, obj)
	case ExistsExpr:
		obj["type"] = "correlatedSubquery"
		obj["op"] = "EXISTS"
		related, err := marshalRelated(v.Related)
		if err != nil {
			return nil, err
		}
		obj["related"] = related
		if v.Flip {
			obj["flip"] = true
		}
		if v.Negated {
			obj["negated"] = true
		}
		mergeExtra(v.Extra, obj)
	default:
		return nil, ivmerr.Validation.New("unknown expr type %T", e)
	}
	return json.Marshal(obj)
}

func marshalExprList(exprs []Expr) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(exprs))
	for i, e := range exprs {
		raw, err := MarshalExpr(e)
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

func marshalRelated(r Related) (map[string]any, error) {
	m := map[string]any{
		"system": string(r.System),
		"correlation": map[string]any{
			"parentFields": r.Correlation.ParentFields,
			"childFields":  r.Correlation.ChildFields,
		},
	}
	if r.RelationshipName != "" {
		m["relationshipName"] = r.RelationshipName
	}
	if r.Subquery != nil {
		sub, err := MarshalAST(*r.Subquery)
		if err != nil {
			return nil, err
		}
		m["subquery"] = json.RawMessage(sub)
	}
	return m, nil
}

// UnmarshalExpr decodes a wire-form expression, preserving any field
// not named above in the returned node's Extra map.
func UnmarshalExpr(data []byte) (Expr, error) {
	if string(data) == "null" {
		return nil, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ivmerr.Validation.Wrap(err)
	}
	var typ string
	if err := json.Unmarshal(raw["type"], &typ); err != nil {
		return nil, ivmerr.Validation.New("expr missing type field")
	}
	switch typ {
	case "simple":
		var left struct {
			Name string `json:"name"`
		}
		var right struct {
			Value any `json:"value"`
		}
		var op string
		_ = json.Unmarshal(raw["left"], &left)
		_ = json.Unmarshal(raw["right"], &right)
		_ = json.Unmarshal(raw["op"], &op)
		return SimpleExpr{
			Column: left.Name,
			Op:     Op(op),
			Value:  toValue(right.Value),
			Extra:  extractExtra(raw, "type", "left", "op", "right"),
		}, nil
	case "and", "or":
		var rawConds []json.RawMessage
		if err := json.Unmarshal(raw["conditions"], &rawConds); err != nil {
			return nil, ivmerr.Validation.Wrap(err)
		}
		conds := make([]Expr, len(rawConds))
		for i, rc := range rawConds {
			e, err := UnmarshalExpr(rc)
			if err != nil {
				return nil, err
			}
			conds[i] = e
		}
		extra := extractExtra(raw, "type", "conditions")
		if typ == "and" {
			return AndExpr{Conditions: conds, Extra: extra}, nil
		}
		return OrExpr{Conditions: conds, Extra: extra}, nil
	case "not":
		cond, err := UnmarshalExpr(raw["condition"])
		if err != nil {
			return nil, err
		}
		return NotExpr{Condition: cond, Extra: extractExtra(raw, "type", "condition")}, nil
	case "correlatedSubquery":
		related, err := unmarshalRelated(raw["related"])
		if err != nil {
			return nil, err
		}
		var flip, negated bool
		_ = json.Unmarshal(raw["flip"], &flip)
		_ = json.Unmarshal(raw["negated"], &negated)
		return ExistsExpr{
			Related: related,
			Flip:    flip,
			Negated: negated,
			Extra:   extractExtra(raw, "type", "related", "op", "flip", "negated"),
		}, nil
	default:
		return nil, ivmerr.Validation.New("unknown expr type %q", typ)
	}
}

func unmarshalRelated(data json.RawMessage) (Related, error) {
	var wire struct {
		System           string          `json:"system"`
		Subquery         json.RawMessage `json:"subquery"`
		RelationshipName string          `json:"relationshipName"`
		Correlation      struct {
			ParentFields []string `json:"parentFields"`
			ChildFields  []string `json:"childFields"`
		} `json:"correlation"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Related{}, ivmerr.Validation.Wrap(err)
	}
	r := Related{
		System:           RelatedSystem(wire.System),
		RelationshipName: wire.RelationshipName,
		Correlation: Correlation{
			ParentFields: wire.Correlation.ParentFields,
			ChildFields:  wire.Correlation.ChildFields,
		},
	}
	if len(wire.Subquery) > 0 && string(wire.Subquery) != "null" {
		sub, err := UnmarshalAST(wire.Subquery)
		if err != nil {
			return Related{}, err
		}
		r.Subquery = &sub
	}
	return r, nil
}

func toValue(v any) row.Value {
	switch t := v.(type) {
	case nil:
		return row.Null()
	case string:
		return row.String(t)
	case bool:
		return row.Bool(t)
	case float64:
		if t == float64(int64(t)) {
			return row.Int(int64(t))
		}
		return row.Float(t)
	default:
		return row.JSON(t)
	}
}

// MarshalAST encodes an AST to its wire form.
func MarshalAST(a AST) (json.RawMessage, error) {
	obj := map[string]any{"table": a.Table}
	if a.Where != nil {
		where, err := MarshalExpr(a.Where)
		if err != nil {
			return nil, err
		}
		obj["where"] = json.RawMessage(where)
	}
	if len(a.Related) > 0 {
		rels := make([]map[string]any, len(a.Related))
		for i, r := range a.Related {
			m, err := marshalRelated(r)
			if err != nil {
				return nil, err
			}
			rels[i] = m
		}
		obj["related"] = rels
	}
	if len(a.OrderBy) > 0 {
		terms := make([]map[string]any, len(a.OrderBy))
		for i, t := range a.OrderBy {
			dir := "asc"
			if t.Desc {
				dir = "desc"
			}
			terms[i] = map[string]any{"column": t.Column, "direction": dir}
		}
		obj["orderBy"] = terms
	}
	if a.Limit != nil {
		obj["limit"] = *a.Limit
	}
	if a.Start != nil {
		vals := make([]any, len(a.Start.Key))
		for i, v := range a.Start.Key {
			vals[i] = v.Any()
		}
		obj["start"] = map[string]any{"key": vals, "inclusive": a.Start.Inclusive}
	}
	if a.One {
		obj["one"] = true
	}
	if a.Name != "" {
		obj["name"] = a.Name
		obj["args"] = a.Args
	}
	return json.Marshal(obj)
}

// UnmarshalAST decodes a wire-form AST.
func UnmarshalAST(data []byte) (AST, error) {
	var wire struct {
		Table   string            `json:"table"`
		Where   json.RawMessage   `json:"where"`
		Related []json.RawMessage `json:"related"`
		OrderBy []struct {
			Column    string `json:"column"`
			Direction string `json:"direction"`
		} `json:"orderBy"`
		Limit *int `json:"limit"`
		Start *struct {
			Key       []any `json:"key"`
			Inclusive *bool `json:"inclusive"`
		} `json:"start"`
		One  bool   `json:"one"`
		Name string `json:"name"`
		Args []any  `json:"args"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return AST{}, ivmerr.Validation.Wrap(err)
	}
	out := AST{Table: wire.Table, Limit: wire.Limit, One: wire.One, Name: wire.Name, Args: wire.Args}
	if len(wire.Where) > 0 && string(wire.Where) != "null" {
		where, err := UnmarshalExpr(wire.Where)
		if err != nil {
			return AST{}, err
		}
		out.Where = where
	}
	for _, rr := range wire.Related {
		rel, err := unmarshalRelated(rr)
		if err != nil {
			return AST{}, err
		}
		out.Related = append(out.Related, rel)
	}
	for _, t := range wire.OrderBy {
		out.OrderBy = append(out.OrderBy, OrderTerm{Column: t.Column, Desc: t.Direction == "desc"})
	}
	if wire.Start != nil {
		keys := make([]row.Value, len(wire.Start.Key))
		for i, k := range wire.Start.Key {
			keys[i] = toValue(k)
		}
		// Absent "inclusive" on the wire defaults to true, per the
		// resolved Open Question in DESIGN.md.
		inclusive := true
		if wire.Start.Inclusive != nil {
			inclusive = *wire.Start.Inclusive
		}
		s := NewStart(keys, inclusive)
		out.Start = &s
	}
	return out, nil
}
