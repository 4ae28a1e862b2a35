package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewTemplate(t *testing.T) {
	t.Run("trims and starts at version one", func(t *testing.T) {
		tpl, err := NewTemplate(id.NewWaiverID(), "  Liability  ", "waivers/templates/liability.pdf", now)
		require.NoError(t, err)
		assert.Equal(t, "Liability", tpl.Name)
		assert.Equal(t, 1, tpl.Version)
		assert.True(t, tpl.IsActive())
		assert.Nil(t, tpl.Supersedes)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := NewTemplate(id.NewWaiverID(), " ", "doc.pdf", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects long name", func(t *testing.T) {
		_, err := NewTemplate(id.NewWaiverID(), strings.Repeat("x", 129), "doc.pdf", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects missing document", func(t *testing.T) {
		_, err := NewTemplate(id.NewWaiverID(), "Photo release", "", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestArchive(t *testing.T) {
	tpl, err := NewTemplate(id.NewWaiverID(), "Liability", "doc.pdf", now)
	require.NoError(t, err)

	require.NoError(t, tpl.CanArchive())
	tpl.ApplyArchive(now.Add(time.Hour))
	assert.False(t, tpl.IsActive())
	require.NotNil(t, tpl.ArchivedAt)
	assert.Equal(t, now.Add(time.Hour), *tpl.ArchivedAt)

	assert.True(t, dErrors.HasCode(tpl.CanArchive(), dErrors.CodeInvariantViolation))
}

func TestNextVersion(t *testing.T) {
	tpl, err := NewTemplate(id.NewWaiverID(), "Liability", "v1.pdf", now)
	require.NoError(t, err)

	nextID := id.NewWaiverID()
	next, err := tpl.NextVersion(nextID, "v2.pdf", now)
	require.NoError(t, err)
	assert.Equal(t, nextID, next.ID)
	assert.Equal(t, "Liability", next.Name)
	assert.Equal(t, 2, next.Version)
	require.NotNil(t, next.Supersedes)
	assert.Equal(t, tpl.ID, *next.Supersedes)

	tpl.ApplyArchive(now)
	_, err = tpl.NextVersion(id.NewWaiverID(), "v3.pdf", now)
	assert.Error(t, err, "archived templates cannot be revised")
}

func TestClone(t *testing.T) {
	tpl, err := NewTemplate(id.NewWaiverID(), "Liability", "v1.pdf", now)
	require.NoError(t, err)
	tpl.ApplyArchive(now)

	c := tpl.Clone()
	*c.ArchivedAt = now.Add(time.Hour)
	assert.Equal(t, now, *tpl.ArchivedAt)
}
