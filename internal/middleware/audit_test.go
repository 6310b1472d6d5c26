package middleware

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opsdeck/opsdeck/internal/audit"
	"github.com/opsdeck/opsdeck/internal/db/repositories"
)

// argContains is a sqlmock argument matcher asserting that a string or []byte
// argument contains the given substring.
type argContains string

func (a argContains) Match(v driver.Value) bool {
	switch val := v.(type) {
	case string:
		return strings.Contains(val, string(a))
	case []byte:
		return strings.Contains(string(val), string(a))
	default:
		return false
	}
}

// argNotContains asserts the argument does NOT contain the given substring.
type argNotContains string

func (a argNotContains) Match(v driver.Value) bool {
	switch val := v.(type) {
	case string:
		return !strings.Contains(val, string(a))
	case []byte:
		return !strings.Contains(string(val), string(a))
	default:
		return true
	}
}

// anyArgs returns n sqlmock.AnyArg matchers, to be selectively overridden.
func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

// newAuditRouter builds a Gin engine with request-ID and audit middleware
// wired to a sqlmock-backed recorder.
func newAuditRouter(t *testing.T, maxBodyBytes int) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { mockDb.Close() })

	db := sqlx.NewDb(mockDb, "sqlmock")
	rec := audit.NewRecorder(repositories.NewAuditRepository(db))

	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.Use(AuditMiddleware(rec, maxBodyBytes))
	return r, mock
}

// ---------------------------------------------------------------------------
// Sensitive path detection
// ---------------------------------------------------------------------------

func TestIsSensitivePath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/tasks/dashboard", true},
		{"/metrics/summary", true},
		{"/admin/apikeys", true},
		{"/admin/", true},
		{"/auth/login", false},
		{"/healthz", false},
		{"/webhooks/github", false},
		{"/tasks", false}, // prefix requires the trailing slash
		{"/", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsSensitivePath(tt.path); got != tt.want {
				t.Errorf("IsSensitivePath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// AuditMiddleware — two-phase capture
// ---------------------------------------------------------------------------

func TestAuditMiddleware_RedactsSensitiveFieldsAndPatchesStatus(t *testing.T) {
	r, mock := newAuditRouter(t, 2000)
	r.POST("/admin/foo", func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	// Pre-handler row: payload must carry the redaction marker and must not
	// carry the raw password value.
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(
			sqlmock.AnyArg(), // id
			sqlmock.AnyArg(), // correlation_id
			nil,              // user_id unresolved pre-handler
			sqlmock.AnyArg(), // ip_address
			sqlmock.AnyArg(), // user_agent
			"/admin/foo",     // endpoint
			"POST",           // method
			"request",        // action
			argContains(`"[REDACTED]"`),
			nil, // result_status unset
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	// Post-handler patch: status 201 by correlation ID.
	mock.ExpectExec("UPDATE audit_logs").
		WithArgs(sqlmock.AnyArg(), "201", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"username": "a", "password": "secret123"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/foo", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAuditMiddleware_RawPasswordNeverStored(t *testing.T) {
	r, mock := newAuditRouter(t, 2000)
	r.POST("/admin/foo", func(c *gin.Context) { c.Status(http.StatusOK) })

	args := anyArgs(11)
	args[8] = argNotContains("secret123") // payload column
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"password": "secret123"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/foo", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAuditMiddleware_NonSensitivePathNotAudited(t *testing.T) {
	r, mock := newAuditRouter(t, 2000)
	r.POST("/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	// No DB expectations: any audit write would fail the test.
	body := `{"username": "a", "password": "x"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected audit write: %v", err)
	}
}

func TestAuditMiddleware_HandlerStillSeesFullBody(t *testing.T) {
	r, mock := newAuditRouter(t, 10) // cap far below body size

	var seen []byte
	r.POST("/admin/echo", func(c *gin.Context) {
		seen, _ = io.ReadAll(c.Request.Body)
		c.Status(http.StatusOK)
	})

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"field": "` + strings.Repeat("x", 500) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/echo", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if !bytes.Equal(seen, []byte(body)) {
		t.Errorf("handler saw %d body bytes, want %d unmodified", len(seen), len(body))
	}
}

func TestAuditMiddleware_NonJSONContentTypeNotStored(t *testing.T) {
	r, mock := newAuditRouter(t, 2000)
	r.POST("/admin/upload", func(c *gin.Context) { c.Status(http.StatusOK) })

	args := anyArgs(11)
	args[8] = argContains("(not stored)")
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/admin/upload", strings.NewReader("some text"))
	req.Header.Set("Content-Type", "text/plain")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAuditMiddleware_BodylessNonJSONRequestKeepsMarker(t *testing.T) {
	r, mock := newAuditRouter(t, 2000)
	r.POST("/admin/upload", func(c *gin.Context) { c.Status(http.StatusOK) })

	// The marker depends on the declared content type, not on body bytes.
	args := anyArgs(11)
	args[8] = argContains("application/x-www-form-urlencoded (not stored)")
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/admin/upload", nil)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAuditMiddleware_MalformedJSONFallsBackToScrubbedRaw(t *testing.T) {
	r, mock := newAuditRouter(t, 2000)
	r.POST("/admin/foo", func(c *gin.Context) { c.Status(http.StatusOK) })

	// The raw fallback runs the denylist scrub over the text, so the literal
	// word "password" must be gone from the stored payload.
	args := anyArgs(11)
	args[8] = argNotContains("password")
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/admin/foo", strings.NewReader(`{"password": oops`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAuditMiddleware_PersistenceFailureNeverAffectsRequest(t *testing.T) {
	r, mock := newAuditRouter(t, 2000)
	r.POST("/admin/foo", func(c *gin.Context) { c.Status(http.StatusCreated) })

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(fmt.Errorf("db down"))
	mock.ExpectExec("UPDATE audit_logs").WillReturnError(fmt.Errorf("db down"))

	req := httptest.NewRequest(http.MethodPost, "/admin/foo", strings.NewReader(`{"a": 1}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201 despite audit failure", w.Code)
	}
}

// argCapture records the matched argument for later assertions.
type argCapture struct{ value *string }

func (a argCapture) Match(v driver.Value) bool {
	if s, ok := v.(string); ok {
		*a.value = s
		return true
	}
	return false
}

func TestAuditMiddleware_CorrelationIDIsServerGenerated(t *testing.T) {
	r, mock := newAuditRouter(t, 2000)
	r.POST("/admin/foo", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Two requests forging the same X-Request-ID: each audit row must be keyed
	// by a fresh server-side UUID, and each status patch must target its own
	// row's ID, never the forged header value.
	const forged = "definitely-not-a-uuid"
	correlations := make([]string, 2)
	patches := make([]string, 2)
	for i := 0; i < 2; i++ {
		insertArgs := anyArgs(11)
		insertArgs[1] = argCapture{&correlations[i]}
		mock.ExpectExec("INSERT INTO audit_logs").
			WithArgs(insertArgs...).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE audit_logs").
			WithArgs(argCapture{&patches[i]}, "200", nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/admin/foo", strings.NewReader(`{"a": 1}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(RequestIDHeader, forged)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
	for i, id := range correlations {
		if id == forged {
			t.Fatalf("request %d stored the forged header as correlation ID", i)
		}
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("request %d correlation ID %q is not a UUID: %v", i, id, err)
		}
		if patches[i] != id {
			t.Errorf("request %d patched correlation %q, want its own row %q", i, patches[i], id)
		}
	}
	if correlations[0] == correlations[1] {
		t.Error("concurrent requests sharing a header must not share a correlation ID")
	}
}

func TestAuditMiddleware_GETWithoutBodyHasNilPayload(t *testing.T) {
	r, mock := newAuditRouter(t, 2000)
	r.GET("/metrics/summary", func(c *gin.Context) { c.Status(http.StatusOK) })

	args := anyArgs(11)
	args[5] = "/metrics/summary"
	args[6] = "GET"
	args[8] = nil // no payload
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE audit_logs").
		WithArgs(sqlmock.AnyArg(), "200", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodGet, "/metrics/summary", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
