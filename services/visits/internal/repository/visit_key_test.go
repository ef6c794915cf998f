package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"3f2c1e0a-8b7d-4c6e-9f10-2a3b4c5d6e7f", "3f2c1e0a-8b7d-4c6e-9f10-2a3b4c5d6e7f", true},
		{"3F2C1E0A-8B7D-4C6E-9F10-2A3B4C5D6E7F", "3f2c1e0a-8b7d-4c6e-9f10-2a3b4c5d6e7f", true},
		{"urn:uuid:3f2c1e0a-8b7d-4c6e-9f10-2a3b4c5d6e7f", "3f2c1e0a-8b7d-4c6e-9f10-2a3b4c5d6e7f", true},
		{"abc", "", false},
		{"", "", false},
		{"3f2c1e0a-8b7d-4c6e-9f10-2a3b4c5d6e7", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := visitKey(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Malformed ids never reach the pool, so a nil pool is enough here.
func TestPostgresRepositories_MalformedIDIsMissing(t *testing.T) {
	ctx := context.Background()
	visits := &visitRepository{}
	emails := &emailRepository{}
	tx := &visitTx{}

	v, err := visits.GetByID(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, v)

	locked, err := tx.GetForUpdate(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, locked)

	evs, err := visits.ListEvents(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, evs)

	notes, err := visits.ListNotes(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, notes)

	list, err := emails.ListEmails(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, list)
}
