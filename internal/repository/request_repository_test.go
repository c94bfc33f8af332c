package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-uprava/portal-api/internal/models"
)

func newRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func requestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "citizen_id", "service_id", "processed_by", "status", "citizen_note",
		"officer_note", "attachment", "form_data", "payment_status", "payment_date",
		"created_at", "updated_at",
	})
}

func TestRequestRepositoryListFiltersByCitizen(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	rows := requestRows().
		AddRow("r1", "c1", "s1", nil, "DRAFT", nil, nil, nil, []byte(`{"purpose":"x"}`), "NOT_PAID", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM service_requests WHERE 1=1 AND citizen_id = $1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("c1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM service_requests WHERE 1=1 AND citizen_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.RequestFilter{CitizenID: "c1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.RequestDraft, list[0].Status)
	assert.Equal(t, "x", list[0].FormData["purpose"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec("INSERT INTO service_requests").
		WillReturnResult(sqlmock.NewResult(1, 1))

	request := &models.ServiceRequest{
		CitizenID:     "c1",
		ServiceID:     "s1",
		Status:        models.RequestDraft,
		FormData:      models.FormData{"purpose": "enrollment"},
		PaymentStatus: models.PaymentNotPaid,
	}
	require.NoError(t, repo.Create(context.Background(), request))
	assert.NotEmpty(t, request.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryAssignWinsWhenUnassigned(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_requests SET processed_by = $2, updated_at = $3 WHERE id = $1 AND processed_by IS NULL")).
		WithArgs("r1", "officer-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.Assign(context.Background(), "r1", "officer-1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryAssignLosesWhenAlreadyClaimed(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_requests SET processed_by = $2, updated_at = $3 WHERE id = $1 AND processed_by IS NULL")).
		WithArgs("r1", "officer-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.Assign(context.Background(), "r1", "officer-2", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateStatusKeepsNoteWhenNil(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_requests SET status = $2, officer_note = COALESCE($3, officer_note), updated_at = $4 WHERE id = $1")).
		WithArgs("r1", models.RequestInReview, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "r1", models.RequestInReview, nil, time.Now().UTC()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("APPROVED", 3).
		AddRow("DRAFT", 5)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM service_requests GROUP BY status ORDER BY status")).
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, models.RequestApproved, counts[0].Status)
	assert.Equal(t, 3, counts[0].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
