package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

func TestPrintObjects(t *testing.T) {
	var out bytes.Buffer
	err := printObjects(&out, []domain.BlobInfo{{
		Path:         "archive/trades/2025/01/20250101T000000Z-20250102T000000Z.jsonl",
		Size:         2048,
		LastModified: time.Date(2025, 2, 1, 3, 0, 0, 0, time.UTC),
	}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "PATH"))
	assert.Contains(t, lines[1], "2048")
	assert.Contains(t, lines[1], "2025-02-01T03:00:00Z")
}

func TestArchivesGetRequiresPath(t *testing.T) {
	c := archivesGetCmd()
	c.SetArgs([]string{})
	c.SetOut(&bytes.Buffer{})
	c.SetErr(&bytes.Buffer{})
	assert.Error(t, c.Execute())
}
