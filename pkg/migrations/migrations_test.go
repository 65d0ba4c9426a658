package migrations

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMigrations_Ordered(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.SQL)
	}
}

func TestRunMigrations_AppliesPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	all := GetMigrations()
	last := all[len(all)-1]

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS loader_field_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	applied := sqlmock.NewRows([]string{"version"})
	for _, m := range all[:len(all)-1] {
		applied.AddRow(m.Version)
	}
	mock.ExpectQuery(`SELECT version FROM loader_field_migrations ORDER BY version`).WillReturnRows(applied)

	mock.ExpectBegin()
	mock.ExpectExec(`DO \$\$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO loader_field_migrations \(version, description\) VALUES \(\$1, \$2\)`).
		WithArgs(last.Version, last.Description).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	log, hook := test.NewNullLogger()
	require.NoError(t, RunMigrations(context.Background(), db, log))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "Migration completed", hook.LastEntry().Message)
}

func TestRunMigrations_FailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS loader_field_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM loader_field_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS games`).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = RunMigrations(context.Background(), db, nil)
	assert.ErrorContains(t, err, "failed to execute migration 1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppliedVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT version FROM loader_field_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1).AddRow(3))

	applied, err := AppliedVersions(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true, 3: true}, applied)
}
