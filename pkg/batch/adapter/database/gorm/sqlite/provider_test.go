package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/ddbimport/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
)

type widget struct {
	ID   string `gorm:"primaryKey"`
	Name string
}

func TestProvider_GetConnection(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig()
	cfg.Importer.AdapterConfigs = map[string]interface{}{
		"progress": map[string]interface{}{
			"type":     "sqlite",
			"database": filepath.Join(t.TempDir(), "nested", "progress.db"),
		},
		"other": map[string]interface{}{"type": "postgres"},
	}

	p := sqlite.NewProvider(cfg)
	defer p.CloseAll()
	assert.Equal(t, "sqlite", p.Type())

	conn, err := p.GetConnection("progress")
	require.NoError(t, err)
	require.NoError(t, conn.RefreshConnection(ctx))

	again, err := p.GetConnection("progress")
	require.NoError(t, err)
	assert.Same(t, conn, again, "connections are cached by name")

	require.NoError(t, conn.AutoMigrate(ctx, &widget{}))
	_, err = conn.ExecuteUpsert(ctx, &widget{ID: "w1", Name: "first"}, "", []string{"id"}, []string{"name"})
	require.NoError(t, err)
	_, err = conn.ExecuteUpsert(ctx, &widget{ID: "w1", Name: "second"}, "", []string{"id"}, []string{"name"})
	require.NoError(t, err)

	var got []widget
	require.NoError(t, conn.ExecuteQuery(ctx, &got, map[string]interface{}{"id": "w1"}))
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Name)

	_, err = p.GetConnection("missing")
	assert.Error(t, err)
	_, err = p.GetConnection("other")
	assert.Error(t, err, "type mismatch")
}
