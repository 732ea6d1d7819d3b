package field

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/postgres"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

func TestPGRegistry(t *testing.T) {
	dsn := os.Getenv("LX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LX_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	client := postgres.FromDB(db)

	name := fmt.Sprintf("body_%d", time.Now().UnixNano())
	t.Cleanup(func() { db.Exec(`DELETE FROM lexicon_fields WHERE name=$1`, name) })

	r, err := NewPGRegistry(ctx, client)
	require.NoError(t, err)
	info, err := r.Define(ctx, Info{Name: name, Attrs: Uncased | Positions})
	require.NoError(t, err)
	assert.Positive(t, info.ID)

	other, err := NewPGRegistry(ctx, client)
	require.NoError(t, err)
	got, ok := other.Field(name)
	require.True(t, ok)
	assert.Equal(t, info, got)

	_, err = other.Define(ctx, Info{Name: name, Attrs: Cased})
	assert.ErrorIs(t, err, lxerrors.ErrSchemaMismatch)

	again, err := other.Define(ctx, Info{Name: name, Attrs: Uncased | Positions})
	require.NoError(t, err)
	assert.Equal(t, info.ID, again.ID)
}
