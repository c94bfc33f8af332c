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

func newFieldRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestFieldRepositoryListOrdersBySortOrder(t *testing.T) {
	db, mock, cleanup := newFieldRepoMock(t)
	defer cleanup()
	repo := NewFieldRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "service_id", "key", "label", "data_type", "is_required",
		"options", "validation_rules", "sort_order", "created_at", "updated_at",
	}).
		AddRow("f1", "s1", "delivery_method", "Nacin dostave", "SELECT", true, []byte(`["EMAIL","POST","PICKUP"]`), []byte(`["in:EMAIL,POST,PICKUP"]`), 1, time.Now(), time.Now()).
		AddRow("f2", "s1", "purpose", "Svrha izdavanja", "STRING", true, nil, []byte(`["max:255"]`), 2, time.Now(), time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("FROM service_fields WHERE service_id = $1 ORDER BY sort_order ASC, created_at ASC")).
		WithArgs("s1").
		WillReturnRows(rows)

	fields, err := repo.ListByService(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "delivery_method", fields[0].Key)
	assert.Equal(t, models.StringList{"EMAIL", "POST", "PICKUP"}, fields[0].Options)
	assert.Nil(t, fields[1].Options)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRepositoryExistsByKeyScopedToService(t *testing.T) {
	db, mock, cleanup := newFieldRepoMock(t)
	defer cleanup()
	repo := NewFieldRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM service_fields WHERE service_id = $1 AND key = $2 LIMIT 1")).
		WithArgs("s1", "purpose").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.ExistsByKey(context.Background(), "s1", "purpose", "")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM service_fields WHERE service_id = $1 AND key = $2 AND id <> $3 LIMIT 1")).
		WithArgs("s1", "purpose", "f1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	exists, err = repo.ExistsByKey(context.Background(), "s1", "purpose", "f1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newFieldRepoMock(t)
	defer cleanup()
	repo := NewFieldRepository(db)

	mock.ExpectExec("INSERT INTO service_fields").
		WillReturnResult(sqlmock.NewResult(1, 1))

	field := &models.ServiceField{
		ServiceID:  "s1",
		Key:        "number_of_copies",
		Label:      "Broj kopija",
		DataType:   models.FieldNumber,
		IsRequired: true,
		SortOrder:  1,
	}
	require.NoError(t, repo.Create(context.Background(), field))
	assert.NotEmpty(t, field.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
