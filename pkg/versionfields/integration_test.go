//go:build integration

package versionfields_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/labrinth-go/labrinth/pkg/enums"
	"github.com/labrinth-go/labrinth/pkg/facets"
	"github.com/labrinth-go/labrinth/pkg/legacy"
	"github.com/labrinth-go/labrinth/pkg/loaderfields"
	"github.com/labrinth-go/labrinth/pkg/migrations"
	"github.com/labrinth-go/labrinth/pkg/schema"
	"github.com/labrinth-go/labrinth/pkg/seed"
	pgstore "github.com/labrinth-go/labrinth/pkg/storage/postgres"
	"github.com/labrinth-go/labrinth/pkg/versionfields"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("labrinth_test"),
		postgres.WithUsername("labrinth"),
		postgres.WithPassword("labrinth_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	t.Cleanup(func() {
		db.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})
	return db
}

type stack struct {
	db        *sql.DB
	schema    *schema.Schema
	store     *versionfields.Store
	service   *versionfields.Service
	index     *facets.PostgresIndex
	projector *facets.Projector
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()
	log, _ := test.NewNullLogger()

	db := setupPostgres(t)
	require.NoError(t, migrations.RunMigrations(ctx, db, log))

	conns := pgstore.NewConnectionManagerFromDB(db)
	s := schema.NewSchema(conns, log)
	registry := enums.NewRegistry(conns, log)

	catalog, err := seed.Default()
	require.NoError(t, err)
	_, err = seed.NewSeeder(s, registry, log).Apply(ctx, catalog)
	require.NoError(t, err)

	store := versionfields.NewStore(db, log)
	index := facets.NewPostgresIndex(db, log)
	projector := facets.NewProjector(store, index, nil, log)

	return &stack{
		db:        db,
		schema:    s,
		store:     store,
		service:   versionfields.NewService(s, registry, store, nil, log),
		index:     index,
		projector: projector,
	}
}

func (st *stack) loaderIDs(t *testing.T, loaders ...string) []loaderfields.LoaderID {
	t.Helper()
	ids, err := st.schema.LoaderIDs(context.Background(), loaders)
	require.NoError(t, err)
	return ids
}

func TestIntegration_VersionFieldLifecycle(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()

	loaders := st.loaderIDs(t, "fabric")
	require.NoError(t, st.service.CreateVersionFields(ctx, 1, 10, loaders, map[string]json.RawMessage{
		"game_versions": json.RawMessage(`["1.20.1","1.20"]`),
	}))

	fields, err := st.service.GetFields(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.20.1", "1.20"}, fields["game_versions"].EnumStrings())
	assert.NotContains(t, fields, "client_side")

	metas, err := st.service.GetFieldsBulk(ctx, []loaderfields.VersionID{10})
	require.NoError(t, err)
	v2 := legacy.FromVersion(metas[10])
	assert.Equal(t, legacy.DefaultSide, v2.ClientSide)
	assert.Equal(t, []string{"fabric"}, v2.Loaders)

	t.Run("registering the same version twice conflicts", func(t *testing.T) {
		err := st.service.CreateVersionFields(ctx, 1, 10, loaders, map[string]json.RawMessage{
			"game_versions": json.RawMessage(`["1.19.4"]`),
		})
		assert.True(t, errors.Is(err, loaderfields.ErrConflict))
	})

	t.Run("partial update and clear", func(t *testing.T) {
		require.NoError(t, st.service.UpdateVersionFields(ctx, 10, map[string]json.RawMessage{
			"client_side": json.RawMessage(`"required"`),
		}))
		fields, err := st.service.GetFields(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, "required", fields["client_side"].Logical())
		assert.Equal(t, []string{"1.20.1", "1.20"}, fields["game_versions"].EnumStrings())

		require.NoError(t, st.service.UpdateVersionFields(ctx, 10, map[string]json.RawMessage{
			"client_side": json.RawMessage(`null`),
		}))
		fields, err = st.service.GetFields(ctx, 10)
		require.NoError(t, err)
		assert.NotContains(t, fields, "client_side")
	})

	t.Run("invalid submission leaves stored values", func(t *testing.T) {
		err := st.service.UpdateVersionFields(ctx, 10, map[string]json.RawMessage{
			"game_versions": json.RawMessage(`["9.9.9"]`),
			"mrpack_loaders": json.RawMessage(`["fabric"]`),
		})
		var verrs *loaderfields.ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.Equal(t, []string{"game_versions", "mrpack_loaders"}, verrs.Fields())

		fields, err := st.service.GetFields(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"1.20.1", "1.20"}, fields["game_versions"].EnumStrings())
	})

	t.Run("concurrent updates never interleave", func(t *testing.T) {
		sets := []string{`["1.19.4"]`, `["1.18.2","1.16.5"]`}
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(body string) {
				defer wg.Done()
				assert.NoError(t, st.service.UpdateVersionFields(ctx, 10, map[string]json.RawMessage{
					"game_versions": json.RawMessage(body),
				}))
			}(sets[i%2])
		}
		wg.Wait()

		fields, err := st.service.GetFields(ctx, 10)
		require.NoError(t, err)
		got := fields["game_versions"].EnumStrings()
		assert.Contains(t, [][]string{{"1.19.4"}, {"1.18.2", "1.16.5"}}, got)
	})
}

func TestIntegration_FacetProjection(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()

	fabric := st.loaderIDs(t, "fabric")
	require.NoError(t, st.service.CreateVersionFields(ctx, 1, 10, fabric, map[string]json.RawMessage{
		"game_versions": json.RawMessage(`["1.20.1"]`),
		"client_side":   json.RawMessage(`"required"`),
	}))
	forge := st.loaderIDs(t, "forge")
	require.NoError(t, st.service.CreateVersionFields(ctx, 2, 20, forge, map[string]json.RawMessage{
		"game_versions": json.RawMessage(`["1.19.4"]`),
	}))

	require.NoError(t, st.projector.ReindexAll(ctx))

	doc, err := st.index.Document(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.20.1"}, doc.Facets["game_versions"])
	assert.Equal(t, []string{"required"}, doc.Facets["client_side"])
	assert.Equal(t, []string{"fabric"}, doc.Loaders)

	pred, err := facets.ParseFilter(`[["game_versions:1.20.1","game_versions:1.19.4"],["loaders:forge"]]`)
	require.NoError(t, err)
	ids, err := st.index.Search(ctx, pred, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []loaderfields.ProjectID{2}, ids)

	_, err = st.db.ExecContext(ctx, `DELETE FROM versions WHERE mod_id = 2`)
	require.NoError(t, err)
	require.NoError(t, st.projector.ProjectProject(ctx, 2))
	_, err = st.index.Document(ctx, 2)
	assert.True(t, errors.Is(err, loaderfields.ErrNotFound))
}
