package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zerosync/ivmengine/ast"
)

type issuesByOwnerArgs struct {
	OwnerID string
}

func TestRegisterAndResolve(t *testing.T) {
	r := New()
	err := Register(r, QueryDef[issuesByOwnerArgs]{
		Name: "issuesByOwner",
		Build: func(args issuesByOwnerArgs) (ast.AST, error) {
			return ast.AST{Table: "issues"}, nil
		},
	})
	require.NoError(t, err)

	a, err := r.Resolve("issuesByOwner", issuesByOwnerArgs{OwnerID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "issues", a.Table)
	require.Equal(t, "issuesByOwner", a.Name)
}

func TestResolveUnknownQuery(t *testing.T) {
	r := New()
	_, err := r.Resolve("nope", nil)
	require.Error(t, err)
}

func TestRegisterRejectsAsyncValidator(t *testing.T) {
	r := New()
	err := Register(r, QueryDef[issuesByOwnerArgs]{
		Name:      "async",
		Validator: AsyncValidator[issuesByOwnerArgs](func(ctx context.Context, a issuesByOwnerArgs) (issuesByOwnerArgs, error) { return a, nil }),
		Build: func(args issuesByOwnerArgs) (ast.AST, error) {
			return ast.AST{Table: "issues"}, nil
		},
	})
	require.Error(t, err)
}

func TestCustomQueryIDDedupesDeeplyEqualArgs(t *testing.T) {
	id1, err := CustomQueryID("issuesByOwner", issuesByOwnerArgs{OwnerID: "u1"})
	require.NoError(t, err)
	id2, err := CustomQueryID("issuesByOwner", issuesByOwnerArgs{OwnerID: "u1"})
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	id3, err := CustomQueryID("issuesByOwner", issuesByOwnerArgs{OwnerID: "u2"})
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

func TestCustomQueryIDRetainsOriginalArgsNotValidatorOutput(t *testing.T) {
	r := New()
	err := Register(r, QueryDef[issuesByOwnerArgs]{
		Name:      "issuesByOwner",
		Validator: SyncValidator[issuesByOwnerArgs](func(a issuesByOwnerArgs) (issuesByOwnerArgs, error) { return issuesByOwnerArgs{OwnerID: "rewritten"}, nil }),
		Build: func(args issuesByOwnerArgs) (ast.AST, error) {
			return ast.AST{Table: "issues"}, nil
		},
	})
	require.NoError(t, err)

	a, err := r.Resolve("issuesByOwner", issuesByOwnerArgs{OwnerID: "u1"})
	require.NoError(t, err)
	require.Equal(t, issuesByOwnerArgs{OwnerID: "u1"}, a.Args[0])
}
