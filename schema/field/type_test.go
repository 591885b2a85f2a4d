package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraits(t *testing.T) {
	tests := []struct {
		typ                                          Type
		numeric, integral, text, temporal, virt, rel bool
	}{
		{typ: Number, numeric: true, integral: true},
		{typ: Decimal, numeric: true},
		{typ: Currency, numeric: true},
		{typ: SingleLineText, text: true},
		{typ: SingleSelect, text: true},
		{typ: Date, temporal: true},
		{typ: CreatedTime, temporal: true},
		{typ: Formula, virt: true},
		{typ: Rollup, virt: true},
		{typ: Links, virt: true, rel: true},
		{typ: LinkToAnotherRecord, virt: true, rel: true},
		{typ: Checkbox},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.numeric, tt.typ.Numeric())
			assert.Equal(t, tt.integral, tt.typ.Integral())
			assert.Equal(t, tt.text, tt.typ.Text())
			assert.Equal(t, tt.temporal, tt.typ.Temporal())
			assert.Equal(t, tt.virt, tt.typ.Virtual())
			assert.Equal(t, tt.rel, tt.typ.Relation())
		})
	}
	assert.True(t, Checkbox.Boolean())
	assert.True(t, MultiSelect.Choice())
	assert.True(t, ID.Key())
	assert.True(t, AutoNumber.System())
	assert.False(t, TypeInvalid.Valid())
	assert.False(t, Type(200).Numeric())
	assert.Equal(t, "Type(200)", Type(200).String())
}

func TestParse(t *testing.T) {
	for _, typ := range Types() {
		got, err := Parse(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	got, err := Parse("singlelinetext")
	require.NoError(t, err)
	assert.Equal(t, SingleLineText, got)
	_, err = Parse("Barcode")
	require.Error(t, err)

	var typ Type
	require.NoError(t, typ.UnmarshalText([]byte("Rollup")))
	assert.Equal(t, Rollup, typ)
	b, err := Currency.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Currency", string(b))
	_, err = TypeInvalid.MarshalText()
	require.Error(t, err)
}
