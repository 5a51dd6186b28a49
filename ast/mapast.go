package ast

import "github.com/zerosync/ivmengine/schema"

// MapAST rewrites a's table and column names using mapper, translating
// from the vocabulary mapper's "client" side to its "server" side. Every
// table name, orderBy column and where-clause column reachable from a
// must resolve through mapper, or MapAST returns the mapper's
// ivmerr.Schema error. The parent and child field lists of a Related or
// EXISTS correlation are carried over unchanged, not mapped.
func MapAST(a AST, mapper *schema.NameMapper) (AST, error) {
	serverTable, err := mapper.ServerTable(a.Table)
	if err != nil {
		return AST{}, err
	}
	out := a
	out.Table = serverTable

	if a.Where != nil {
		where, err := mapExpr(a.Where, serverTable, mapper)
		if err != nil {
			return AST{}, err
		}
		out.Where = where
	}

	if len(a.Related) > 0 {
		out.Related = make([]Related, len(a.Related))
		for i, r := range a.Related {
			mr, err := mapRelated(r, mapper)
			if err != nil {
				return AST{}, err
			}
			out.Related[i] = mr
		}
	}

	if len(a.OrderBy) > 0 {
		out.OrderBy = make([]OrderTerm, len(a.OrderBy))
		for i, t := range a.OrderBy {
			col, err := mapper.ServerColumn(serverTable, t.Column)
			if err != nil {
				return AST{}, err
			}
			out.OrderBy[i] = OrderTerm{Column: col, Desc: t.Desc}
		}
	}

	return out, nil
}

func mapRelated(r Related, mapper *schema.NameMapper) (Related, error) {
	out := r
	if r.Subquery != nil {
		sub, err := MapAST(*r.Subquery, mapper)
		if err != nil {
			return Related{}, err
		}
		out.Subquery = &sub
	}
	return out, nil
}

func mapExpr(e Expr, serverTable string, mapper *schema.NameMapper) (Expr, error) {
	switch v := e.(type) {
	case nil:
		return nil, nil
	case SimpleExpr:
		col, err := mapper.ServerColumn(serverTable, v.Column)
		if err != nil {
			return nil, err
		}
		out := v
		out.Column = col
		return out, nil
	case AndExpr:
		conds, err := mapExprList(v.Conditions, serverTable, mapper)
		if err != nil {
			return nil, err
		}
		out := v
		out.Conditions = conds
		return out, nil
	case OrExpr:
		conds, err := mapExprList(v.Conditions, serverTable, mapper)
		if err != nil {
			return nil, err
		}
		out := v
		out.Conditions = conds
		return out, nil
	case NotExpr:
		cond, err := mapExpr(v.Condition, serverTable, mapper)
		if err != nil {
			return nil, err
		}
		out := v
		out.Condition = cond
		return out, nil
	case ExistsExpr:
		rel, err := mapRelated(v.Related, mapper)
		if err != nil {
			return nil, err
		}
		out := v
		out.Related = rel
		return out, nil
	default:
		return e, nil
	}
}

func mapExprList(exprs []Expr, serverTable string, mapper *schema.NameMapper) ([]Expr, error) {
	out := make([]Expr, len(exprs))
	for i, e := range exprs {
		m, err := mapExpr(e, serverTable, mapper)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}
