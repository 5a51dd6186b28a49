package row_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zerosync/ivmengine/row"
)

func TestRowGetReturnsOkFalseForMissingColumn(t *testing.T) {
	r := row.New([]string{"id"}, map[string]row.Value{"id": row.String("i1")})
	_, ok := r.Get("nope")
	require.False(t, ok)
}

func TestRowWithAddsNewColumnToOrder(t *testing.T) {
	r := row.New([]string{"id"}, map[string]row.Value{"id": row.String("i1")})
	out := r.With("closed", row.Bool(true))
	require.Equal(t, []string{"id", "closed"}, out.Columns())
	require.Equal(t, []string{"id"}, r.Columns(), "With must not mutate the receiver")
}

func TestRowWithOverwritingExistingColumnKeepsOrder(t *testing.T) {
	r := row.New([]string{"id", "closed"}, map[string]row.Value{"id": row.String("i1"), "closed": row.Bool(false)})
	out := r.With("closed", row.Bool(true))
	require.Equal(t, []string{"id", "closed"}, out.Columns())
	v, _ := out.Get("closed")
	b, _ := v.Bool()
	require.True(t, b)
}

func TestKeyFromValuesAndPrimaryKeyProduceEqualStringsForEqualTuples(t *testing.T) {
	r := row.New([]string{"a", "b"}, map[string]row.Value{"a": row.String("x"), "b": row.Int(1)})
	k1 := r.PrimaryKey([]string{"a", "b"})
	k2 := row.KeyFromValues([]row.Value{row.String("x"), row.Int(1)})
	require.True(t, k1.Equal(k2))
}

func TestCompareOrdersNullBeforeEveryOtherKind(t *testing.T) {
	require.Negative(t, row.Compare(row.Null(), row.Int(0)))
	require.Positive(t, row.Compare(row.Int(0), row.Null()))
	require.Zero(t, row.Compare(row.Null(), row.Null()))
}

func TestCompareOrdersWithinKind(t *testing.T) {
	require.Negative(t, row.Compare(row.Int(1), row.Int(2)))
	require.Negative(t, row.Compare(row.String("a"), row.String("b")))
	require.Negative(t, row.Compare(row.Bool(false), row.Bool(true)))
}

func TestCompareKeysHonorsPerColumnDirection(t *testing.T) {
	a := []row.Value{row.Int(1), row.Int(5)}
	b := []row.Value{row.Int(1), row.Int(3)}
	require.Positive(t, row.CompareKeys(a, b, []bool{false, false}))
	require.Negative(t, row.CompareKeys(a, b, []bool{false, true}))
}

func TestValueAnyRoundTripsEachKind(t *testing.T) {
	require.Nil(t, row.Null().Any())
	require.Equal(t, "s", row.String("s").Any())
	require.Equal(t, int64(3), row.Int(3).Any())
	require.Equal(t, 1.5, row.Float(1.5).Any())
	require.Equal(t, true, row.Bool(true).Any())
	require.Equal(t, map[string]any{"k": "v"}, row.JSON(map[string]any{"k": "v"}).Any())
}
