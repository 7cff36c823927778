package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiateLanguage(t *testing.T) {
	tr, err := NewTranslator("en")
	require.NoError(t, err)

	assert.Equal(t, "de", tr.Negotiate("de", "en-US"))
	assert.Equal(t, "de", tr.Negotiate("", "de-CH,de;q=0.9,en;q=0.8"))
	assert.Equal(t, "en", tr.Negotiate("", "fr-FR"))
	assert.Equal(t, "en", tr.Negotiate("xx", ""))
	assert.Equal(t, []string{"en", "de"}, tr.Languages())
}

func TestLabels(t *testing.T) {
	tr, err := NewTranslator("en")
	require.NoError(t, err)

	assert.Equal(t, "Meine Policen", tr.Labels("de")["my_policies"])
	assert.Equal(t, "myPolicies", tr.Labels("fr")["my_policies"])
	assert.Equal(t, "unknown_key", tr.Translate("de", "unknown_key"))

	_, err = NewTranslator("fr")
	assert.Error(t, err)
}
