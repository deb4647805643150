package realtime

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres"), ""), mock
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	t.Run("Existing", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"doc"}).AddRow([]byte(`{"m1":{"name":"Ana"}}`))
		mock.ExpectQuery("SELECT doc FROM realtime_nodes WHERE root = \\$1").
			WithArgs("students").
			WillReturnRows(rows)

		snap, err := s.Get(ctx, "students/m1/name")
		require.NoError(t, err)
		var name string
		require.NoError(t, snap.Unmarshal(&name))
		assert.Equal(t, "Ana", name)
	})

	t.Run("Missing", func(t *testing.T) {
		mock.ExpectQuery("SELECT doc FROM realtime_nodes WHERE root = \\$1").
			WithArgs("students").
			WillReturnRows(sqlmock.NewRows([]string{"doc"}))

		snap, err := s.Get(ctx, "students")
		require.NoError(t, err)
		assert.False(t, snap.Exists())
	})

	t.Run("Error", func(t *testing.T) {
		mock.ExpectQuery("SELECT doc FROM realtime_nodes WHERE root = \\$1").
			WithArgs("students").
			WillReturnError(assert.AnError)

		_, err := s.Get(ctx, "students")
		assert.ErrorIs(t, err, assert.AnError)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetUpsertsAndNotifies(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT doc FROM realtime_nodes WHERE root = \\$1 FOR UPDATE").
		WithArgs("deletedControlNumbers").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}))
	mock.ExpectExec("INSERT INTO realtime_nodes \\(root,doc,updated_at\\) VALUES \\(\\$1,\\$2,now\\(\\)\\) ON CONFLICT").
		WithArgs("deletedControlNumbers", `["CN-06-01-001"]`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SELECT pg_notify").
		WithArgs(DefaultChangeChannel, "deletedControlNumbers").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := s.Set(ctx, "deletedControlNumbers", []string{"CN-06-01-001"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateMergesIntoDocument(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT doc FROM realtime_nodes WHERE root = \\$1 FOR UPDATE").
		WithArgs("registrations").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow([]byte(`{"r1":{"status":"pending","studentName":"Ana"}}`)))
	mock.ExpectExec("INSERT INTO realtime_nodes").
		WithArgs("registrations", `{"r1":{"status":"approved","studentName":"Ana"}}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SELECT pg_notify").
		WithArgs(DefaultChangeChannel, "registrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := s.Update(ctx, "registrations/r1", map[string]any{"status": "approved"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteLastChildRemovesRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT doc FROM realtime_nodes WHERE root = \\$1 FOR UPDATE").
		WithArgs("registrations").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow([]byte(`{"r1":{"status":"pending"}}`)))
	mock.ExpectExec("DELETE FROM realtime_nodes WHERE root = \\$1").
		WithArgs("registrations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SELECT pg_notify").
		WithArgs(DefaultChangeChannel, "registrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	assert.NoError(t, s.Delete(ctx, "registrations/r1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WriteFailureRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT doc FROM realtime_nodes WHERE root = \\$1 FOR UPDATE").
		WithArgs("students").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}))
	mock.ExpectExec("INSERT INTO realtime_nodes").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.Set(ctx, "students/m1", map[string]any{"name": "Ana"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SubscribeRefreshesOnNotification(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT doc FROM realtime_nodes WHERE root = \\$1").
		WithArgs("registrations").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow([]byte(`{"r1":{"status":"pending"}}`)))

	var statuses []string
	sub, err := s.Subscribe(ctx, "registrations/r1/status", func(snap Snapshot) {
		var st string
		require.NoError(t, snap.Unmarshal(&st))
		statuses = append(statuses, st)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pending"}, statuses)

	// A notification for another root is ignored.
	s.refreshMatching("students")

	mock.ExpectQuery("SELECT doc FROM realtime_nodes WHERE root = \\$1").
		WithArgs("registrations").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow([]byte(`{"r1":{"status":"approved"}}`)))
	s.refreshMatching("registrations")
	assert.Equal(t, []string{"pending", "approved"}, statuses)

	// Unchanged value is not redelivered.
	mock.ExpectQuery("SELECT doc FROM realtime_nodes WHERE root = \\$1").
		WithArgs("registrations").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow([]byte(`{"r1":{"status":"approved"}}`)))
	s.refreshMatching("")
	assert.Len(t, statuses, 2)

	sub.Unsubscribe()
	s.refreshMatching("registrations")
	assert.Len(t, statuses, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
