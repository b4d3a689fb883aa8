package repository_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/amirphl/onboarding/models"
	"github.com/amirphl/onboarding/repository"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	return db, mock
}

func newSQLAccountStore(db *gorm.DB) repository.AccountStore {
	return repository.NewAccountStore(
		repository.NewTransactor(db),
		repository.NewAccountRepository(db),
		repository.NewProfileRepository(db),
		repository.NewBusinessRepository(db),
		repository.NewAccountBusinessRepository(db),
		bcrypt.MinCost,
	)
}

func agentDetails() models.Agent {
	return models.Agent{BusinessID: 7, ContractYearStart: 2024, TotalCommissionThisContractYear: decimal.Zero}
}

func TestAccountStore_SQL_AgentCommits(t *testing.T) {
	db, mock := newMockDB(t)
	store := newSQLAccountStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "handle" FROM "accounts"`)).
		WillReturnRows(sqlmock.NewRows([]string{"handle"}).AddRow("ana"))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "accounts"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "account_businesses"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "profiles"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectCommit()

	account, err := store.CreateAccount(context.Background(), credentials("ana@x.com"), agentDetails())
	require.NoError(t, err)
	assert.Equal(t, uint(11), account.ID)
	assert.Equal(t, "ana-1", account.Handle)
	assert.Equal(t, models.RoleIDAgent, account.RoleID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_SQL_ProfileFailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	store := newSQLAccountStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "handle" FROM "accounts"`)).
		WillReturnRows(sqlmock.NewRows([]string{"handle"}))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "accounts"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "account_businesses"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "profiles"`)).
		WillReturnError(&pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"})
	mock.ExpectRollback()

	_, err := store.CreateAccount(context.Background(), credentials("ana@x.com"), agentDetails())
	require.Error(t, err)
	assert.True(t, repository.IsTransactionAborted(err))

	var pe *repository.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "create profiles", pe.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_SQL_DuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	store := newSQLAccountStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "handle" FROM "accounts"`)).
		WillReturnRows(sqlmock.NewRows([]string{"handle"}))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "accounts"`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uk_accounts_email"})
	mock.ExpectRollback()

	_, err := store.CreateAccount(context.Background(), credentials("ana@x.com"), models.PlainUser{})
	require.Error(t, err)
	assert.True(t, repository.IsUniqueViolation(err))
	assert.True(t, repository.IsPersistenceError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChallengeRepository_SQL_ExpireActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewVerificationChallengeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "verification_challenges" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.ExpireActive(context.Background(), 11, models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChallengeRepository_SQL_ActiveForUpdateLocksRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewVerificationChallengeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "verification_challenges" WHERE .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "channel", "code", "status", "attempts_count", "max_attempts"}).
			AddRow(5, 11, models.ChannelEmail, "123456", models.ChallengeStatusPending, 2, 3))
	mock.ExpectCommit()

	var got *models.VerificationChallenge
	err := repository.WithTransaction(context.Background(), db, func(txCtx context.Context) error {
		var err error
		got, err = repo.ActiveForUpdate(txCtx, 11, models.ChannelEmail)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint(5), got.ID)
	assert.Equal(t, 2, got.AttemptsCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChallengeRepository_SQL_FailedAttemptIsCapped(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewVerificationChallengeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "verification_challenges" SET .* WHERE \(?id = \$\d+ AND attempts_count < max_attempts`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, repo.RecordFailedAttempt(context.Background(), 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}
