package handlers

import (
	"database/sql/driver"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/opsdeck/opsdeck/internal/audit"
	"github.com/opsdeck/opsdeck/internal/db/repositories"
)

// newAPIKeyRouter wires the API key endpoints against sqlmock. The audit
// recorder writes through the same mock connection.
func newAPIKeyRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { mockDb.Close() })

	db := sqlx.NewDb(mockDb, "sqlmock")
	h := NewAPIKeyHandlers(
		repositories.NewAPIKeyRepository(db),
		audit.NewRecorder(repositories.NewAuditRepository(db)),
	)

	r := gin.New()
	r.GET("/admin/apikeys", h.ListAPIKeysHandler())
	r.POST("/admin/apikeys", h.CreateAPIKeyHandler())
	r.POST("/admin/apikeys/:id/regenerate", h.RegenerateAPIKeyHandler())
	r.DELETE("/admin/apikeys/:id", h.DeactivateAPIKeyHandler())
	return r, mock
}

func apiKeyColumns() []string {
	return []string{"id", "name", "token", "scopes", "is_active", "created_at"}
}

const testRawToken = "opk_0123456789abcdef0123456789abcdef0123456789abcdef"

func TestListAPIKeys_MasksTokens(t *testing.T) {
	r, mock := newAPIKeyRouter(t)

	mock.ExpectQuery("SELECT (.+) FROM api_keys").
		WillReturnRows(sqlmock.NewRows(apiKeyColumns()).
			AddRow("k1", "ci-deploy", testRawToken, []byte(`["tasks:read"]`), true, time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/admin/apikeys", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), testRawToken) {
		t.Error("listing leaked a raw API key token")
	}
	if !strings.Contains(w.Body.String(), "ci-deploy") {
		t.Errorf("listing missing key name: %s", w.Body.String())
	}
}

func TestCreateAPIKey_ReturnsRawTokenOnce(t *testing.T) {
	r, mock := newAPIKeyRouter(t)

	mock.ExpectExec("INSERT INTO api_keys").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := postJSON(r, "/admin/apikeys", gin.H{
		"name":   "ci-deploy",
		"scopes": []string{"tasks:read", "metrics:read"},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	token, _ := body["token"].(string)
	if token == "" || strings.Contains(token, "...") {
		t.Errorf("creation must return the full raw token, got %q", token)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateAPIKey_RejectsUnknownScope(t *testing.T) {
	r, _ := newAPIKeyRouter(t)

	w := postJSON(r, "/admin/apikeys", gin.H{
		"name":   "ci-deploy",
		"scopes": []string{"tasks:read", "everything"},
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateAPIKey_RequiresScopes(t *testing.T) {
	r, _ := newAPIKeyRouter(t)

	w := postJSON(r, "/admin/apikeys", gin.H{"name": "ci-deploy", "scopes": []string{}})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for empty scope list", w.Code)
	}
}

func TestRegenerateAPIKey_SwapsTokenAndAudits(t *testing.T) {
	r, mock := newAPIKeyRouter(t)

	newToken := "opk_fedcba9876543210fedcba9876543210fedcba9876543210"
	mock.ExpectQuery("SELECT (.+) FROM api_keys").
		WithArgs("k1").
		WillReturnRows(sqlmock.NewRows(apiKeyColumns()).
			AddRow("k1", "ci-deploy", testRawToken, []byte(`["tasks:read"]`), true, time.Now()))
	mock.ExpectQuery("UPDATE api_keys").
		WillReturnRows(sqlmock.NewRows(apiKeyColumns()).
			AddRow("k1", "ci-deploy", newToken, []byte(`["tasks:read"]`), true, time.Now()))
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := postJSON(r, "/admin/apikeys/k1/regenerate", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if got, _ := body["token"].(string); got != newToken {
		t.Errorf("token = %q, want the regenerated raw token", got)
	}
	if strings.Contains(w.Body.String(), testRawToken) {
		t.Error("response leaked the retired token")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations (audit row missing?): %v", err)
	}
}

func TestRegenerateAPIKey_UnknownKeyReturns404(t *testing.T) {
	r, mock := newAPIKeyRouter(t)

	mock.ExpectQuery("SELECT (.+) FROM api_keys").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(apiKeyColumns()))

	w := postJSON(r, "/admin/apikeys/missing/regenerate", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDeactivateAPIKey_MarksInactive(t *testing.T) {
	r, mock := newAPIKeyRouter(t)

	mock.ExpectQuery("SELECT (.+) FROM api_keys").
		WithArgs("k1").
		WillReturnRows(sqlmock.NewRows(apiKeyColumns()).
			AddRow("k1", "ci-deploy", testRawToken, []byte(`["tasks:read"]`), true, time.Now()))
	mock.ExpectExec("UPDATE api_keys").
		WithArgs("k1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodDelete, "/admin/apikeys/k1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeactivateAPIKey_UnknownKeyReturns404(t *testing.T) {
	r, mock := newAPIKeyRouter(t)

	mock.ExpectQuery("SELECT (.+) FROM api_keys").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(apiKeyColumns()))

	req := httptest.NewRequest(http.MethodDelete, "/admin/apikeys/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// verifies the audit row for a regeneration carries masked tokens only
func TestRegenerateAPIKey_AuditPayloadMasksTokens(t *testing.T) {
	r, mock := newAPIKeyRouter(t)

	newToken := "opk_fedcba9876543210fedcba9876543210fedcba9876543210"
	mock.ExpectQuery("SELECT (.+) FROM api_keys").
		WithArgs("k1").
		WillReturnRows(sqlmock.NewRows(apiKeyColumns()).
			AddRow("k1", "ci-deploy", testRawToken, []byte(`["tasks:read"]`), true, time.Now()))
	mock.ExpectQuery("UPDATE api_keys").
		WillReturnRows(sqlmock.NewRows(apiKeyColumns()).
			AddRow("k1", "ci-deploy", newToken, []byte(`["tasks:read"]`), true, time.Now()))
	// Column order: id, correlation_id, user_id, ip_address, user_agent,
	// endpoint, method, action, payload, result_status, created_at.
	args := anyArgs(11)
	args[7] = argContains{"api_key.regenerated"}
	args[8] = argNotContains{testRawToken, newToken}
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := postJSON(r, "/admin/apikeys/k1/regenerate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func argString(v driver.Value) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	case *string:
		if s == nil {
			return "", false
		}
		return *s, true
	}
	return "", false
}

// argContains matches a string/bytes argument containing the substring.
type argContains struct{ substring string }

func (a argContains) Match(v driver.Value) bool {
	s, ok := argString(v)
	if !ok {
		return false
	}
	return strings.Contains(s, a.substring)
}

// argNotContains matches a string/bytes argument containing none of the
// substrings.
type argNotContains struct{ first, second string }

func (a argNotContains) Match(v driver.Value) bool {
	s, ok := argString(v)
	if !ok {
		return false
	}
	return !strings.Contains(s, a.first) && !strings.Contains(s, a.second)
}
