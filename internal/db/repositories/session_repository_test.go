package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/opsdeck/opsdeck/internal/db/models"
)

func sessionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "ip_address", "user_agent", "refresh_token", "created_at", "expires_at", "is_active"})
}

func TestCreateSession_AssignsIDAndActivates(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(sqlmock.AnyArg(), "u1", nil, nil, "tok", sqlmock.AnyArg(), sqlmock.AnyArg(), true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.Session{
		UserID:       "u1",
		RefreshToken: "tok",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := repo.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.ID == "" || !session.IsActive {
		t.Errorf("session = %+v, want ID assigned and active", session)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetActiveByRefreshToken_NotFoundReturnsNilNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs("gone").
		WillReturnRows(sessionRows())

	session, err := repo.GetActiveByRefreshToken(context.Background(), "gone")
	if err != nil {
		t.Fatalf("GetActiveByRefreshToken: %v", err)
	}
	if session != nil {
		t.Errorf("session = %+v, want nil", session)
	}
}

func TestDeactivateByRefreshToken_ReportsWhetherRowMatched(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	mock.ExpectExec("UPDATE sessions").
		WithArgs("u1", "tok").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE sessions").
		WithArgs("u1", "already-inactive").
		WillReturnResult(sqlmock.NewResult(0, 0))

	matched, err := repo.DeactivateByRefreshToken(context.Background(), "u1", "tok")
	if err != nil || !matched {
		t.Errorf("DeactivateByRefreshToken = (%v, %v), want (true, nil)", matched, err)
	}

	matched, err = repo.DeactivateByRefreshToken(context.Background(), "u1", "already-inactive")
	if err != nil || matched {
		t.Errorf("DeactivateByRefreshToken = (%v, %v), want (false, nil)", matched, err)
	}
}

func TestDeactivateExpired_ReturnsCount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	now := time.Now()
	mock.ExpectExec("UPDATE sessions").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.DeactivateExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("DeactivateExpired: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestListSessions_AppliesPagination(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs(10, 20).
		WillReturnRows(sessionRows().
			AddRow("s1", "u1", nil, nil, "tok", time.Now(), time.Now().Add(time.Hour), true))

	sessions, err := repo.ListSessions(context.Background(), 10, 20)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("len = %d, want 1", len(sessions))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
