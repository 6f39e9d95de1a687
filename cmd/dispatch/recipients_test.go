package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recipients.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadRecipientsParsesEmailAndVars(t *testing.T) {
	path := writeCSV(t, "email,name,plan\nA@Example.com,Ada,pro\nb@example.com,Bob,free\n")

	recipients, invalid, err := loadRecipients(path)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Zero(t, invalid)

	assert.Equal(t, "a@example.com", recipients[0].Email)
	assert.Equal(t, "Ada", recipients[0].Name)
	assert.Equal(t, "pro", recipients[0].Vars["plan"])

	assert.Equal(t, "b@example.com", recipients[1].Email)
	assert.Equal(t, "free", recipients[1].Vars["plan"])
}

func TestLoadRecipientsRequiresEmailColumn(t *testing.T) {
	path := writeCSV(t, "name\nAda\n")

	_, _, err := loadRecipients(path)
	assert.Error(t, err)
}

func TestLoadRecipientsMissingFile(t *testing.T) {
	_, _, err := loadRecipients(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestLoadRecipientsFiltersInvalidEmails(t *testing.T) {
	path := writeCSV(t, "email,name\n"+
		"valid@example.com,Ada\n"+
		"not-an-email,Bob\n"+
		"also bad@@example.com,Cleo\n"+
		"still-valid@example.com,Dee\n")

	recipients, invalid, err := loadRecipients(path)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Equal(t, 2, invalid)

	assert.Equal(t, "valid@example.com", recipients[0].Email)
	assert.Equal(t, "still-valid@example.com", recipients[1].Email)
}

func TestLoadRecipientsAllInvalidYieldsNoRecipients(t *testing.T) {
	path := writeCSV(t, "email\nnope\nalso-nope\n")

	recipients, invalid, err := loadRecipients(path)
	require.NoError(t, err)
	assert.Empty(t, recipients)
	assert.Equal(t, 2, invalid)
}
