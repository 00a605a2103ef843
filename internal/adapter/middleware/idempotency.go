package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	// A provisional lock outlives any reasonable handler run; the final
	// response overwrites it well before this expires.
	provisionalLockTTL = 60 * time.Second
	// Ax-Request-At must land within this window of server time.
	maxClockSkew = 10 * time.Minute
	// Budget for each Redis round trip on the request path.
	storeTimeout = 2 * time.Second
)

type idempEntry struct {
	InProgress  bool      `json:"in_progress"`
	Code        int       `json:"code"`
	Body        []byte    `json:"body"`
	BodySHA256  string    `json:"body_sha256"`
	RequestID   string    `json:"request_id"`
	RequestAtMS int64     `json:"request_at_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// idempHeaders holds the validated Ax-* header triple.
type idempHeaders struct {
	requestID string
	requestAt time.Time
	accountID string
}

// parseIdempHeaders validates the Ax-* triple. On failure it writes the 400
// itself and reports ok=false.
func parseIdempHeaders(c echo.Context) (h idempHeaders, ok bool, err error) {
	req := c.Request()
	reject := func(msg string) (idempHeaders, bool, error) {
		return h, false, c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
	}

	h.requestID = strings.TrimSpace(req.Header.Get("Ax-Request-Id"))
	if h.requestID == "" {
		return reject("missing Ax-Request-Id")
	}
	if !validReqID(h.requestID) {
		return reject("invalid Ax-Request-Id format")
	}

	at, perr := parseAxRequestAt(req.Header.Get("Ax-Request-At"))
	if perr != nil {
		return reject(perr.Error())
	}
	now := nowUTC()
	if at.Before(now.Add(-maxClockSkew)) || at.After(now.Add(maxClockSkew)) {
		return reject("Ax-Request-At too skewed")
	}
	h.requestAt = at

	h.accountID = strings.TrimSpace(req.Header.Get("Ax-Account-Id"))
	if h.accountID == "" {
		return reject("missing Ax-Account-Id")
	}
	if !reHex32.MatchString(h.accountID) {
		return reject("invalid Ax-Account-Id")
	}
	return h, true, nil
}

type respRecorder struct {
	w    http.ResponseWriter
	buf  *bytes.Buffer
	code int
}

func (r *respRecorder) Header() http.Header { return r.w.Header() }
func (r *respRecorder) Write(b []byte) (int, error) {
	if r.buf != nil {
		r.buf.Write(b)
	}
	return r.w.Write(b)
}
func (r *respRecorder) WriteHeader(code int) { r.code = code; r.w.WriteHeader(code) }

// IdempotencyMiddleware deduplicates mutating calls, keyed by method, route,
// account id and request id. Funding and payment move money and cannot be
// retried blindly, so a replayed Ax-Request-Id gets the recorded response
// instead of a second execution. Ax-Request-At must be epoch seconds/millis
// or RFC3339 with an explicit zone.
func IdempotencyMiddleware(rdb *redis.Client, ttl time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch req.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			hdr, ok, err := parseIdempHeaders(c)
			if !ok {
				return err
			}

			var body []byte
			if req.Body != nil {
				body, _ = io.ReadAll(req.Body)
			}
			req.Body = io.NopCloser(bytes.NewBuffer(body))
			bhash := bodyHash(body)

			key := buildKey(req.Method, c.Path(), hdr.accountID, hdr.requestID)
			ctx, cancel := context.WithTimeout(req.Context(), storeTimeout)
			defer cancel()

			locked, err := provisionalSet(ctx, rdb, key, idempEntry{
				InProgress:  true,
				BodySHA256:  bhash,
				RequestID:   hdr.requestID,
				RequestAtMS: hdr.requestAt.UnixMilli(),
				CreatedAt:   nowUTC(),
			})
			if err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "idempotency store unavailable"})
			}
			if !locked {
				return replayOrConflict(ctx, c, rdb, key, bhash)
			}

			rec := &respRecorder{w: c.Response().Writer, buf: &bytes.Buffer{}, code: http.StatusOK}
			c.Response().Writer = rec
			if err := next(c); err != nil {
				c.Error(err)
			}

			_ = saveFinal(context.Background(), rdb, key, idempEntry{
				Code:        rec.code,
				Body:        rec.buf.Bytes(),
				BodySHA256:  bhash,
				RequestID:   hdr.requestID,
				RequestAtMS: hdr.requestAt.UnixMilli(),
				CreatedAt:   nowUTC(),
			}, ttl)
			return nil
		}
	}
}

// replayOrConflict handles a request whose key is already held: a finished
// entry with a matching body replays, everything else conflicts.
func replayOrConflict(ctx context.Context, c echo.Context, rdb *redis.Client, key, bhash string) error {
	cur, err := loadEntry(ctx, rdb, key)
	if err != nil {
		c.Logger().Warnf("idempotency: load %s: %v", key, err)
	}
	if cur.BodySHA256 != "" && cur.BodySHA256 != bhash {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Ax-Request-Id reused with different body"})
	}
	if !cur.InProgress && cur.Code != 0 && len(cur.Body) > 0 {
		return c.Blob(cur.Code, echo.MIMEApplicationJSON, cur.Body)
	}
	return c.JSON(http.StatusConflict, map[string]string{"error": "request is already in progress"})
}
