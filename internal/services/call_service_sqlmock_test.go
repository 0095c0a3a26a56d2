package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/callcenter-backend/internal/classify"
)

// newMockService returns a CallService over a MySQL dialector backed by
// sqlmock, so tests can assert the exact statements issued.
func newMockService(t *testing.T) (*CallService, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return NewCallService(db, classify.NewKeywordClassifier()), mock
}

func TestEndCall_EmptyPayload_IssuesNoSQL(t *testing.T) {
	s, mock := newMockService(t)

	ok, err := s.EndCall(context.Background(), mustPayload(t, `{}`))

	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrMissingConversationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndCall_GuardedUpdatePredicate(t *testing.T) {
	s, mock := newMockService(t)

	mock.ExpectExec("UPDATE `calls` SET .* WHERE conversation_id = \\? AND status = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.EndCall(context.Background(), mustPayload(t, `{"conversation_id":"conv-x"}`))

	require.NoError(t, err)
	assert.False(t, ok, "a guard miss is a no-op, not an error")
	// no follow-up lookup or event insert after a miss
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndCall_InfraErrorIsWrapped(t *testing.T) {
	s, mock := newMockService(t)
	boom := errors.New("connection reset")

	mock.ExpectExec("UPDATE `calls` SET").WillReturnError(boom)

	ok, err := s.EndCall(context.Background(), mustPayload(t, `{"conversation_id":"conv-x"}`))

	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "end call conv-x")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHoldCall_GuardMissIssuesSingleUpdate(t *testing.T) {
	s, mock := newMockService(t)

	mock.ExpectExec("UPDATE `calls` SET .* WHERE id = \\? AND status IN \\(\\?\\)").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.HoldCall(context.Background(), 7)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendCall_InvalidAgent_IssuesNoSQL(t *testing.T) {
	s, mock := newMockService(t)

	ok, err := s.AttendCall(context.Background(), 7, "x")

	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInvalidAgent)
	assert.NoError(t, mock.ExpectationsWereMet())
}
