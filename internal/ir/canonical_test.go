package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	obj := IRObject{
		"zeta":  IRInt(1),
		"alpha": IRString("a"),
		"mid":   IRBool(true),
	}

	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","mid":true,"zeta":1}`, string(got))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical(IRString("<a & b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(got))
}

func TestMarshalCanonical_NFCNormalization(t *testing.T) {
	// "é" as e + combining acute accent vs precomposed.
	decomposed, err := MarshalCanonical(IRString("Cefe\u0301pime"))
	require.NoError(t, err)
	composed, err := MarshalCanonical(IRString("Cef\u00e9pime"))
	require.NoError(t, err)

	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonical_LineSeparatorsStayLiteral(t *testing.T) {
	got, err := MarshalCanonical(IRString("a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))
}

func TestMarshalCanonical_EscapedBackslashPreserved(t *testing.T) {
	got, err := MarshalCanonical(IRString(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(got))
}

func TestMarshalCanonical_NestedArray(t *testing.T) {
	got, err := MarshalCanonical(IRArray{IRInt(2), IRObject{"b": IRString("x")}})
	require.NoError(t, err)
	assert.Equal(t, `[2,{"b":"x"}]`, string(got))
}

func TestMarshalCanonical_NilForbidden(t *testing.T) {
	_, err := MarshalCanonical(IRArray{nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null is forbidden")
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+FB01 sorts before U+1F600 in UTF-8 but after it in UTF-16.
	obj := IRObject{"\U0001F600": IRInt(1), "\ufb01": IRInt(2)}
	assert.Equal(t, []string{"\U0001F600", "\ufb01"}, obj.SortedKeys())
}
