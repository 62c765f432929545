package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"Site", &Site{}, "sites"},
		{"Fix", &Fix{}, "fixes"},
		{"Performance", &Performance{}, "performances"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestDatabaseModelsCoverTables(t *testing.T) {
	for _, models := range [][]any{DatabaseModels, DatabaseModelsSQLite} {
		names := make([]string, 0, len(models))
		for _, m := range models {
			names = append(names, m.(interface{ TableName() string }).TableName())
		}
		assert.ElementsMatch(t, []string{"sites", "fixes", "performances"}, names)
	}
}
