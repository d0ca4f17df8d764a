package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"CrisisDesk/internal/crisis"
	pkgerrors "CrisisDesk/pkg/errors"
	"CrisisDesk/utils"
)

const testKey = "0123456789abcdef0123456789abcdef"

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *InterventionStore, *utils.Cipher) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	cipher, err := utils.NewCipher(testKey)
	require.NoError(t, err)

	return mock, NewInterventionStore(db, cipher, nil), cipher
}

func sampleRecord() *crisis.Record {
	followUp := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return &crisis.Record{
		ID:                42,
		UserID:            "user-1",
		Severity:          crisis.SeverityHigh,
		InterventionType:  crisis.InterventionVideo,
		Status:            crisis.RecordStatusActive,
		Symptoms:          []string{"hopelessness", "insomnia"},
		TriggerEvent:      "job loss",
		FollowUpRequired:  true,
		FollowUpDate:      &followUp,
		ResourcesProvided: []string{"988 Suicide & Crisis Lifeline"},
		CreatedAt:         time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestToModel_EncryptsPHI(t *testing.T) {
	_, store, cipher := setupMockDB(t)

	row, err := store.toModel(sampleRecord())
	require.NoError(t, err)

	assert.NotContains(t, row.SymptomsCipher, "hopelessness")
	plain, err := cipher.Decrypt(row.SymptomsCipher)
	require.NoError(t, err)
	var symptoms []string
	require.NoError(t, json.Unmarshal([]byte(plain), &symptoms))
	assert.Equal(t, []string{"hopelessness", "insomnia"}, symptoms)

	require.NotNil(t, row.TriggerEventCipher)
	assert.NotEqual(t, "job loss", *row.TriggerEventCipher)
	assert.Equal(t, int64(42), row.ID)
	assert.Equal(t, "HIGH", row.Severity)
	assert.Equal(t, "ACTIVE", string(row.Status))
}

func TestToModel_NoTriggerEvent(t *testing.T) {
	_, store, _ := setupMockDB(t)
	rec := sampleRecord()
	rec.TriggerEvent = ""
	rec.ResourcesProvided = nil

	row, err := store.toModel(rec)
	require.NoError(t, err)
	assert.Nil(t, row.TriggerEventCipher)
	assert.NotNil(t, row.ResourcesProvided)
}

func TestCreateInterventionRecord(t *testing.T) {
	mock, store, _ := setupMockDB(t)

	mock.ExpectQuery(`INSERT INTO "intervention_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	id, err := store.CreateInterventionRecord(context.Background(), sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInterventionRecord_DBError(t *testing.T) {
	mock, store, _ := setupMockDB(t)

	mock.ExpectQuery(`INSERT INTO "intervention_records"`).
		WillReturnError(assert.AnError)

	_, err := store.CreateInterventionRecord(context.Background(), sampleRecord())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestListByUser_DecryptsRows(t *testing.T) {
	mock, store, cipher := setupMockDB(t)

	symptoms, err := cipher.Encrypt(`["panic attacks"]`)
	require.NoError(t, err)
	trigger, err := cipher.Encrypt("argument")
	require.NoError(t, err)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "intervention_records" WHERE user_id = \$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT \* FROM "intervention_records" WHERE user_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "severity", "intervention_type", "status",
			"symptoms_cipher", "trigger_event_cipher", "follow_up_required", "resources_provided", "created_at",
		}).
			AddRow(7, "user-1", "MODERATE", "CHAT", "ACTIVE", symptoms, trigger, true, `["Crisis Text Line"]`, created).
			AddRow(8, "user-1", "LOW", "REFERRAL", "ACTIVE", "not-a-ciphertext", nil, false, `[]`, created))

	items, total, err := store.ListByUser(context.Background(), "user-1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	// 解密失败的记录被跳过
	require.Len(t, items, 1)
	assert.Equal(t, "7", items[0].ID)
	assert.Equal(t, []string{"panic attacks"}, items[0].Symptoms)
	assert.Equal(t, "argument", items[0].TriggerEvent)
	assert.Equal(t, []string{"Crisis Text Line"}, items[0].ResourcesProvided)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComplete(t *testing.T) {
	at := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)

	t.Run("not found", func(t *testing.T) {
		mock, store, _ := setupMockDB(t)
		mock.ExpectQuery(`SELECT "id","user_id","status" FROM "intervention_records"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status"}))

		err := store.Complete(context.Background(), 9, "user-1", at)
		assert.ErrorIs(t, err, pkgerrors.InterventionNotFound)
	})

	t.Run("other user", func(t *testing.T) {
		mock, store, _ := setupMockDB(t)
		mock.ExpectQuery(`SELECT "id","user_id","status" FROM "intervention_records"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status"}).AddRow(9, "user-2", "ACTIVE"))

		err := store.Complete(context.Background(), 9, "user-1", at)
		assert.ErrorIs(t, err, pkgerrors.Forbidden)
	})

	t.Run("already completed", func(t *testing.T) {
		mock, store, _ := setupMockDB(t)
		mock.ExpectQuery(`SELECT "id","user_id","status" FROM "intervention_records"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status"}).AddRow(9, "user-1", "COMPLETED"))

		assert.NoError(t, store.Complete(context.Background(), 9, "user-1", at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("owner", func(t *testing.T) {
		mock, store, _ := setupMockDB(t)
		mock.ExpectQuery(`SELECT "id","user_id","status" FROM "intervention_records"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status"}).AddRow(9, "user-1", "ACTIVE"))
		mock.ExpectExec(`UPDATE "intervention_records" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.Complete(context.Background(), 9, "user-1", at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFindDueFollowUps(t *testing.T) {
	mock, store, _ := setupMockDB(t)
	due := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT "id","user_id","severity","follow_up_date" FROM "intervention_records" WHERE status = \$1 AND follow_up_required = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "severity", "follow_up_date"}).
			AddRow(11, "user-3", "MODERATE", due))

	rows, err := store.FindDueFollowUps(context.Background(), due.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(11), rows[0].ID)
	assert.Equal(t, "MODERATE", rows[0].Severity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFollowUpSent(t *testing.T) {
	mock, store, _ := setupMockDB(t)
	at := time.Now()

	mock.ExpectExec(`UPDATE "intervention_records" SET "follow_up_sent_at"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "intervention_records" SET "follow_up_sent_at"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	marked, err := store.MarkFollowUpSent(context.Background(), 11, at)
	require.NoError(t, err)
	assert.True(t, marked)

	marked, err = store.MarkFollowUpSent(context.Background(), 11, at)
	require.NoError(t, err)
	assert.False(t, marked)
	assert.NoError(t, mock.ExpectationsWereMet())
}
