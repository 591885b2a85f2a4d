package querylanguage_test

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tabula/querylanguage"
)

func TestNodeString(t *testing.T) {
	tests := []struct {
		N querylanguage.Node
		S string
	}{
		{
			N: querylanguage.And(
				querylanguage.Where("name", querylanguage.OpEq, "a8m"),
				querylanguage.Where("org", querylanguage.OpIn, []any{"fb", "ent"}),
			),
			S: `name == "a8m" && org in ["fb","ent"]`,
		},
		{
			N: querylanguage.Or(
				querylanguage.Not(querylanguage.Where("name", querylanguage.OpEq, "mashraki")),
				querylanguage.Where("org", querylanguage.OpIn, []string{"fb", "ent"}),
			),
			S: `!(name == "mashraki") || org in ["fb","ent"]`,
		},
		{
			N: querylanguage.And(
				querylanguage.Where("age", querylanguage.OpGt, 30),
				querylanguage.Or(
					querylanguage.Where("name", querylanguage.OpBlank, nil),
					querylanguage.Where("score", querylanguage.OpLte, 32.23),
				),
			),
			S: `age > 30 && (name blank || score <= 32.23)`,
		},
		{
			N: querylanguage.WhereDate("due", querylanguage.OpIsWithin, querylanguage.SubPastNumberOfDays, 7),
			S: `due isWithin pastNumberOfDays 7`,
		},
		{
			N: querylanguage.WhereDate("due", querylanguage.OpEq, querylanguage.SubToday, nil),
			S: `due == today`,
		},
		{
			N: querylanguage.Where("deleted", querylanguage.OpEq, nil),
			S: `deleted == null`,
		},
		{
			N: querylanguage.And(),
			S: ``,
		},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			assert.Equal(t, tt.S, tt.N.String())
		})
	}
}

func TestOpUnary(t *testing.T) {
	for _, op := range []querylanguage.Op{querylanguage.OpBlank, querylanguage.OpNotNull, querylanguage.OpChecked} {
		assert.True(t, op.Unary(), op)
	}
	for _, op := range []querylanguage.Op{querylanguage.OpEq, querylanguage.OpLike, querylanguage.OpAnyOf} {
		assert.False(t, op.Unary(), op)
	}
}

func TestMerge(t *testing.T) {
	a := querylanguage.Where("a", querylanguage.OpEq, 1)
	b := querylanguage.Where("b", querylanguage.OpEq, 2)
	assert.Nil(t, querylanguage.Merge(nil, querylanguage.And()))
	assert.Same(t, a, querylanguage.Merge(nil, a))
	m := querylanguage.Merge(a, b)
	require.IsType(t, &querylanguage.Group{}, m)
	assert.Equal(t, querylanguage.LogicAnd, m.(*querylanguage.Group).Logic)
	assert.Len(t, m.(*querylanguage.Group).Children, 2)
}

func TestColumns(t *testing.T) {
	n := querylanguage.Or(
		querylanguage.Where("a", querylanguage.OpEq, 1),
		querylanguage.Not(querylanguage.Where("b", querylanguage.OpBlank, nil), querylanguage.Where("a", querylanguage.OpGt, 0)),
	)
	assert.Equal(t, []string{"a", "b"}, querylanguage.Columns(n))
	assert.Empty(t, querylanguage.Columns(nil))
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: `null`, want: ""},
		{in: `[]`, want: ""},
		{
			in:   `[{"fk_column_id":"c1","comparison_op":"eq","value":"x"},{"fk_column_id":"c2","comparison_op":"gt","value":3}]`,
			want: `c1 == "x" && c2 > 3`,
		},
		{
			in:   `[{"fk_column_id":"c1","comparison_op":"blank"},{"fk_column_id":"c2","comparison_op":"notnull","logical_op":"or"}]`,
			want: `c1 blank || c2 notnull`,
		},
		{
			in:   `{"is_group":true,"logical_op":"not","children":[{"column":"c1","op":"like","value":"ab"}]}`,
			want: `!(c1 like "ab")`,
		},
		{
			in:   `{"column":"d","op":"isWithin","sub_op":"pastWeek"}`,
			want: `d isWithin pastWeek`,
		},
		{in: `{"op":"eq"}`, wantErr: true},
		{in: `{"column":"c1"}`, wantErr: true},
		{in: `{"logic":"xor","children":[]}`, wantErr: true},
		{in: `[1]`, wantErr: true},
		{in: `"c1"`, wantErr: true},
		{in: `{`, wantErr: true},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			n, err := querylanguage.ParseJSON([]byte(tt.in))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, n)
				return
			}
			assert.Equal(t, tt.want, n.String())
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	n := querylanguage.And(
		querylanguage.Where("c1", querylanguage.OpEq, "x"),
		querylanguage.WhereDate("c2", querylanguage.OpEq, querylanguage.SubDaysAgo, 3.0),
	)
	data, err := json.Marshal(n)
	require.NoError(t, err)
	back, err := querylanguage.ParseJSON(data)
	require.NoError(t, err)
	assert.Equal(t, n, back)
}
