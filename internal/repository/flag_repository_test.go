package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneyquiz/routing-gateway/internal/models"
)

func newFlagRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func TestFlagRepositoryAll(t *testing.T) {
	db, mock, cleanup := newFlagRepoMock(t)
	defer cleanup()

	repo := NewFlagRepository(db)
	rows := sqlmock.NewRows([]string{"action", "fraction", "updated_by", "updated_at"}).
		AddRow("quiz_display", 0.25, "ops@example.com", time.Now()).
		AddRow("quiz_submit", 0.0, "rollback", time.Now())
	mock.ExpectQuery("SELECT action, fraction").WillReturnRows(rows)

	flags, err := repo.All(context.Background())
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Equal(t, "quiz_display", flags[0].Action)
	assert.InDelta(t, 0.25, flags[0].Fraction, 1e-9)
}

func TestFlagRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newFlagRepoMock(t)
	defer cleanup()

	repo := NewFlagRepository(db)
	mock.ExpectExec("INSERT INTO routing_flags").
		WithArgs("quiz_display", 0.5, "ops@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	flag := &models.RolloutFlag{Action: "quiz_display", Fraction: 0.5, UpdatedBy: "ops@example.com"}
	require.NoError(t, repo.Upsert(context.Background(), flag))
	assert.False(t, flag.UpdatedAt.IsZero())
}

func TestFlagRepositoryZeroAll(t *testing.T) {
	db, mock, cleanup := newFlagRepoMock(t)
	defer cleanup()

	repo := NewFlagRepository(db)
	mock.ExpectExec("UPDATE routing_flags SET fraction = 0").
		WithArgs("rollback", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.ZeroAll(context.Background(), "rollback"))
	require.NoError(t, mock.ExpectationsWereMet())
}
