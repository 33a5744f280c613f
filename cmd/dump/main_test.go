package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pair-regress-go/internal/store"
)

func TestWriteRecords(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, writeRecords(&buf, []store.TradeRecord{
		{ID: 7, Symbol: "ETHUSDT", Price: decimal.RequireFromString("3456.78"), Timestamp: ts},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"ID", "Symbol", "Price", "Timestamp"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"7", "ETHUSDT", "3456.78", "2024-03-01T12:00:00Z"}, strings.Fields(lines[1]))
}
