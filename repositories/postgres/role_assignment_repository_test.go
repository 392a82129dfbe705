package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/workspace-authz/models"
	"github.com/upb/workspace-authz/repositories"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return WrapDB(sqlDB, zap.NewNop()), mock
}

func assignmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "role", "organization_id", "assigned_by", "created_at"})
}

func TestRoleAssignmentRepository_QueryAssignments(t *testing.T) {
	now := time.Now().UTC()
	id1, id2 := uuid.New(), uuid.New()

	tests := []struct {
		name   string
		filter models.OrgFilter
		where  string
		args   []driver.Value
	}{
		{
			name:   "exact or global",
			filter: models.InOrganizationOrGlobal("org-7"),
			where:  "WHERE user_id = $1 AND (organization_id = $2 OR organization_id IS NULL)",
			args:   []driver.Value{"u1", "org-7"},
		},
		{
			name:   "exact",
			filter: models.InOrganization("org-7"),
			where:  "WHERE user_id = $1 AND organization_id = $2",
			args:   []driver.Value{"u1", "org-7"},
		},
		{
			name:   "global",
			filter: models.GlobalOnly(),
			where:  "WHERE user_id = $1 AND organization_id IS NULL",
			args:   []driver.Value{"u1"},
		},
		{
			name:   "any",
			filter: models.AnyOrganization(),
			where:  "WHERE user_id = $1 ORDER BY",
			args:   []driver.Value{"u1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewRoleAssignmentRepository(db, time.Second, zap.NewNop())

			mock.ExpectQuery(regexp.QuoteMeta("FROM role_assignments " + tt.where)).
				WithArgs(tt.args...).
				WillReturnRows(assignmentRows().
					AddRow(id1.String(), "u1", "admin", nil, "root", now).
					AddRow(id2.String(), "u1", "viewer", "org-7", "root", now))

			got, err := repo.QueryAssignments(context.Background(), "u1", tt.filter)
			require.NoError(t, err)
			require.Len(t, got, 2)

			assert.Equal(t, id1, got[0].ID)
			assert.Equal(t, models.RoleAdmin, got[0].Role)
			assert.True(t, got[0].IsGlobal())
			assert.Equal(t, models.RoleViewer, got[1].Role)
			assert.True(t, got[1].ScopedTo("org-7"))

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRoleAssignmentRepository_QueryAssignments_InvalidRoleFailsQuery(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoleAssignmentRepository(db, 0, zap.NewNop())

	mock.ExpectQuery("FROM role_assignments").
		WillReturnRows(assignmentRows().
			AddRow(uuid.NewString(), "u1", "admin", nil, "", time.Now()).
			AddRow(uuid.NewString(), "u1", "superuser", "org-1", "", time.Now()))

	got, err := repo.QueryAssignments(context.Background(), "u1", models.AnyOrganization())
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUnknownRole))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleAssignmentRepository_QueryAssignments_Errors(t *testing.T) {
	t.Run("query error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, 0, zap.NewNop())
		mock.ExpectQuery("FROM role_assignments").WillReturnError(errors.New("connection reset"))

		_, err := repo.QueryAssignments(context.Background(), "u1", models.GlobalOnly())
		assert.ErrorContains(t, err, "connection reset")
	})

	t.Run("row error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, 0, zap.NewNop())
		mock.ExpectQuery("FROM role_assignments").
			WillReturnRows(assignmentRows().
				AddRow(uuid.NewString(), "u1", "admin", nil, "", time.Now()).
				RowError(0, errors.New("broken row")))

		_, err := repo.QueryAssignments(context.Background(), "u1", models.GlobalOnly())
		assert.Error(t, err)
	})

	t.Run("unknown filter", func(t *testing.T) {
		db, _ := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, 0, zap.NewNop())

		_, err := repo.QueryAssignments(context.Background(), "u1", models.OrgFilter{Kind: 42})
		assert.ErrorContains(t, err, "unsupported organization filter")
	})

	t.Run("empty result is an empty slice", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, 0, zap.NewNop())
		mock.ExpectQuery("FROM role_assignments").WillReturnRows(assignmentRows())

		got, err := repo.QueryAssignments(context.Background(), "u1", models.GlobalOnly())
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestRoleAssignmentRepository_Create(t *testing.T) {
	t.Run("scoped", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, 0, zap.NewNop())
		a := models.NewRoleAssignment("u1", models.RoleWriter, "org-9", "root")

		mock.ExpectExec("INSERT INTO role_assignments").
			WithArgs(sqlmock.AnyArg(), "u1", "writer", "org-9", "root", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(context.Background(), a))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("global", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, 0, zap.NewNop())
		a := models.NewRoleAssignment("u1", models.RoleAdmin, "", "root")

		mock.ExpectExec("INSERT INTO role_assignments").
			WithArgs(sqlmock.AnyArg(), "u1", "admin", nil, "root", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(context.Background(), a))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid role is rejected before the database", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, 0, zap.NewNop())
		a := models.NewRoleAssignment("u1", models.Role("owner"), "", "root")

		err := repo.Create(context.Background(), a)
		assert.True(t, errors.Is(err, models.ErrUnknownRole))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRoleAssignmentRepository_GetByID(t *testing.T) {
	id := uuid.New()

	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, 0, zap.NewNop())
		mock.ExpectQuery(regexp.QuoteMeta("FROM role_assignments WHERE id = $1")).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(assignmentRows().AddRow(id.String(), "u1", "guest", "org-1", "root", time.Now()))

		a, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, a.ID)
		assert.Equal(t, models.RoleGuest, a.Role)
		assert.Equal(t, "org-1", a.Scope())
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, 0, zap.NewNop())
		mock.ExpectQuery("FROM role_assignments").WillReturnRows(assignmentRows())

		_, err := repo.GetByID(context.Background(), id)
		assert.True(t, errors.Is(err, repositories.ErrNotFound))
	})
}

func TestRoleAssignmentRepository_Delete(t *testing.T) {
	id := uuid.New()

	t.Run("deleted", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, 0, zap.NewNop())
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM role_assignments WHERE id = $1")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Delete(context.Background(), id))
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRoleAssignmentRepository(db, 0, zap.NewNop())
		mock.ExpectExec("DELETE FROM role_assignments").WillReturnResult(sqlmock.NewResult(0, 0))

		assert.True(t, errors.Is(repo.Delete(context.Background(), id), repositories.ErrNotFound))
	})
}

func TestRoleAssignmentRepository_ListByOrganization(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoleAssignmentRepository(db, 0, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("FROM role_assignments WHERE organization_id = $1 ORDER BY created_at, id LIMIT 10 OFFSET 20")).
		WithArgs("org-1").
		WillReturnRows(assignmentRows().AddRow(uuid.NewString(), "u1", "writer", "org-1", "root", time.Now()))

	got, err := repo.ListByOrganization(context.Background(), "org-1", 10, 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.RoleWriter, got[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_InTransaction(t *testing.T) {
	t.Run("commit joins repository writes", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())
		repo := NewRoleAssignmentRepository(db, 0, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO role_assignments").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := tm.InTransaction(context.Background(), func(ctx context.Context, _ repositories.Transaction) error {
			return repo.Create(ctx, models.NewRoleAssignment("u1", models.RoleGuest, "org-1", "root"))
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on error", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := tm.InTransaction(context.Background(), func(context.Context, repositories.Transaction) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nested call reuses the outer transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectCommit()

		err := tm.InTransaction(context.Background(), func(ctx context.Context, outer repositories.Transaction) error {
			return tm.InTransaction(ctx, func(_ context.Context, inner repositories.Transaction) error {
				assert.Same(t, outer, inner)
				return nil
			})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on panic", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.Panics(t, func() {
			_ = tm.InTransaction(context.Background(), func(context.Context, repositories.Transaction) error {
				panic("kaboom")
			})
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
