package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	testReqID  = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testAcctID = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func idempEcho(rdb *redis.Client, ttl time.Duration, handler echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(IdempotencyMiddleware(rdb, ttl))
	e.POST("/loans", handler)
	e.GET("/loans", handler)
	return e
}

func created(c echo.Context) error {
	return c.JSON(http.StatusCreated, map[string]any{"ok": true})
}

func goodHeaders() map[string]string {
	return map[string]string{
		"Ax-Request-Id": testReqID,
		"Ax-Request-At": time.Now().UTC().Format(time.RFC3339),
		"Ax-Account-Id": testAcctID,
	}
}

func post(t *testing.T, e *echo.Echo, method, path string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency_BypassesReads(t *testing.T) {
	e := idempEcho(testRedis(t), 30*time.Second, func(c echo.Context) error {
		return c.String(http.StatusOK, "read ok")
	})
	// no Ax-* headers at all
	if rec := post(t, e, http.MethodGet, "/loans", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}
}

func TestIdempotency_HeaderValidation(t *testing.T) {
	e := idempEcho(testRedis(t), 30*time.Second, created)

	mutate := func(k, v string) map[string]string {
		h := goodHeaders()
		if v == "" {
			delete(h, k)
		} else {
			h[k] = v
		}
		return h
	}
	cases := []struct {
		name string
		hdr  map[string]string
	}{
		{"missing request id", mutate("Ax-Request-Id", "")},
		{"malformed request id", mutate("Ax-Request-Id", "NOT-VALID")},
		{"unparseable request at", mutate("Ax-Request-At", "not-a-time")},
		{"skewed request at", mutate("Ax-Request-At", time.Now().UTC().Add(-maxClockSkew-time.Minute).Format(time.RFC3339))},
		{"missing account id", mutate("Ax-Account-Id", "")},
		{"malformed account id", mutate("Ax-Account-Id", "not32hex")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(t, e, http.MethodPost, "/loans", strings.NewReader(`{"x":1}`), tc.hdr)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body = %s, want 400", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestIdempotency_ReplayReturnsStoredResponse(t *testing.T) {
	e := idempEcho(testRedis(t), 2*time.Minute, created)
	hdr := goodHeaders()
	const body = `{"amount":"5000000"}`

	rec1 := post(t, e, http.MethodPost, "/loans", strings.NewReader(body), hdr)
	if rec1.Code != http.StatusCreated {
		t.Fatalf("first: status = %d body = %s", rec1.Code, rec1.Body.String())
	}

	rec2 := post(t, e, http.MethodPost, "/loans", strings.NewReader(body), hdr)
	if rec2.Code != http.StatusCreated {
		t.Fatalf("replay: status = %d body = %s", rec2.Code, rec2.Body.String())
	}
	if rec1.Body.String() != rec2.Body.String() {
		t.Fatalf("replay body %q differs from original %q", rec2.Body.String(), rec1.Body.String())
	}
}

func TestIdempotency_ConflictWhileInProgress(t *testing.T) {
	rdb := testRedis(t)
	e := idempEcho(rdb, 2*time.Minute, created)
	body := []byte(`{"x":1}`)

	// hold the provisional lock so the incoming request loses SetNX
	key := buildKey(http.MethodPost, "/loans", testAcctID, testReqID)
	seed := idempEntry{
		InProgress:  true,
		BodySHA256:  bodyHash(body),
		RequestID:   testReqID,
		RequestAtMS: time.Now().UnixMilli(),
		CreatedAt:   nowUTC(),
	}
	if ok, err := provisionalSet(context.Background(), rdb, key, seed); err != nil || !ok {
		t.Fatalf("seed lock: ok=%v err=%v", ok, err)
	}

	rec := post(t, e, http.MethodPost, "/loans", bytes.NewReader(body), goodHeaders())
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d body = %s, want 409", rec.Code, rec.Body.String())
	}
}

func TestIdempotency_ConflictOnBodyMismatch(t *testing.T) {
	rdb := testRedis(t)
	e := idempEcho(rdb, 2*time.Minute, created)

	// a finished entry recorded for a different body
	key := buildKey(http.MethodPost, "/loans", testAcctID, testReqID)
	seed := idempEntry{
		Code:        http.StatusCreated,
		Body:        []byte(`{"ok":true}`),
		BodySHA256:  bodyHash([]byte(`{"x":1}`)),
		RequestID:   testReqID,
		RequestAtMS: time.Now().UnixMilli(),
		CreatedAt:   nowUTC(),
	}
	if err := saveFinal(context.Background(), rdb, key, seed, 5*time.Minute); err != nil {
		t.Fatalf("seed final: %v", err)
	}

	rec := post(t, e, http.MethodPost, "/loans", strings.NewReader(`{"x":2}`), goodHeaders())
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d body = %s, want 409", rec.Code, rec.Body.String())
	}
}

func TestIdempotency_StoreDown(t *testing.T) {
	// nothing listens on port 1, SetNX fails fast
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	e := idempEcho(rdb, time.Minute, created)

	rec := post(t, e, http.MethodPost, "/loans", strings.NewReader(`{}`), goodHeaders())
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
