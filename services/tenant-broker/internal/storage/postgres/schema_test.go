package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Каждая команда начальной схемы повторяема на базе, где часть таблиц уже создана
func TestBaselineSchema_Repeatable(t *testing.T) {
	assert.Len(t, BaselineSchema, 6)

	for i, statement := range BaselineSchema {
		assert.True(t, strings.HasPrefix(strings.TrimSpace(statement), "CREATE TABLE IF NOT EXISTS "),
			"statement %d is not repeatable", i+1)

		if strings.Contains(statement, "INSERT INTO") {
			assert.Contains(t, statement, "WHERE NOT EXISTS (SELECT 1 FROM information)",
				"statement %d inserts a row on every run", i+1)
		}
	}
}
