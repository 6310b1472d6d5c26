// audit.go provides Gin middleware that captures requests to sensitive path
// prefixes as two-phase audit rows: one row written before the handler runs
// with the redacted request payload and no result status, then patched with the
// response status by correlation ID once the handler finishes.
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opsdeck/opsdeck/internal/audit"
	"github.com/opsdeck/opsdeck/internal/db/models"
)

// SensitivePrefixes lists the path prefixes subject to mandatory audit capture.
var SensitivePrefixes = []string{"/tasks/", "/metrics/", "/admin/"}

// rawScrubLimit caps how much of an unparseable body is kept in the fallback
// payload.
const rawScrubLimit = 1000

// IsSensitivePath reports whether a request path falls under audit capture.
func IsSensitivePath(path string) bool {
	for _, prefix := range SensitivePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// AuditMiddleware records sensitive-path requests.
//
// Pre-handler, a row is written synchronously (best-effort) carrying the
// redacted payload, client metadata, and the request ID as correlation ID,
// with result_status unset. Post-handler, the row is patched with the numeric
// response status and the acting user if one was resolved. Both writes go
// through the Recorder, so a broken audit store never affects the request.
//
// maxBodyBytes caps how much of the request body is parsed for the payload;
// bodies larger than the cap fall through to the scrubbed-raw form. The full
// body is always restored for the handler regardless of size.
func AuditMiddleware(rec *audit.Recorder, maxBodyBytes int) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if !IsSensitivePath(path) {
			c.Next()
			return
		}

		correlationID := c.GetString(RequestIDKey)
		ip := c.ClientIP()
		userAgent := c.Request.UserAgent()
		action := "request"

		entry := &models.AuditLog{
			CorrelationID: correlationID,
			IPAddress:     &ip,
			Endpoint:      path,
			Method:        c.Request.Method,
			Action:        &action,
			Payload:       capturePayload(c, maxBodyBytes),
			CreatedAt:     time.Now(),
		}
		if userAgent != "" {
			entry.UserAgent = &userAgent
		}

		// The pre-handler row must exist before the handler runs so that a
		// crashed handler still leaves a record with its status unset.
		rec.Record(c.Request.Context(), entry)

		c.Next()

		var userID *string
		if user := CurrentUser(c); user != nil {
			userID = &user.ID
		}
		rec.SetResult(c.Request.Context(), correlationID, strconv.Itoa(c.Writer.Status()), userID)
	}
}

// capturePayload extracts the auditable form of the request body. The body is
// fully read and restored so the handler sees it untouched. Any failure along
// the way yields a nil payload rather than affecting the request.
func capturePayload(c *gin.Context, maxBodyBytes int) map[string]interface{} {
	var body []byte
	if c.Request.Body != nil {
		read, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(read))
		body = read
	}

	// A declared non-JSON content type leaves a marker even when the body is
	// empty, so the row shows what kind of request arrived.
	contentType := c.ContentType()
	if contentType != "" && !strings.Contains(contentType, "json") {
		return map[string]interface{}{"raw": contentType + " (not stored)"}
	}

	if len(body) == 0 {
		return nil
	}

	capped := body
	if len(capped) > maxBodyBytes {
		capped = capped[:maxBodyBytes]
	}

	var parsed interface{}
	if err := json.Unmarshal(capped, &parsed); err != nil {
		raw := capped
		if len(raw) > rawScrubLimit {
			raw = raw[:rawScrubLimit]
		}
		return map[string]interface{}{"raw": audit.ScrubString(string(raw))}
	}

	switch redacted := audit.Redact(parsed).(type) {
	case map[string]interface{}:
		return redacted
	default:
		// Top-level arrays and primitives are valid JSON bodies too; wrap them
		// so the payload column stays an object.
		return map[string]interface{}{"data": redacted}
	}
}
