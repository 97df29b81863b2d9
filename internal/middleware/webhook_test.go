package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/dto"
)

const testSecret = "webhook-secret"

var webhookNow = time.Unix(1_700_000_000, 0)

func newWebhookRouter(secret string, handled *bool) *gin.Engine {
	r := gin.New()
	r.Use(WebhookSignature(WebhookConfig{
		Name:   "intent-submitted",
		Secret: secret,
		Skew:   time.Minute,
		Now:    func() time.Time { return webhookNow },
	}))
	r.POST("/hook", func(c *gin.Context) {
		*handled = true
		body, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, string(body))
	})
	return r
}

func signedRequest(secret, nonce string, ts time.Time, body string) *http.Request {
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
	req.Header.Set(WebhookNonceHeader, nonce)
	req.Header.Set(WebhookTimestampHeader, timestamp)
	req.Header.Set(WebhookSignatureHeader, SignWebhook(secret, nonce, timestamp, []byte(body)))
	return req
}

func TestWebhookSignature_Valid_RestoresBody(t *testing.T) {
	handled := false
	body := `[{"address":"0x01"}]`

	w := httptest.NewRecorder()
	newWebhookRouter(testSecret, &handled).ServeHTTP(w, signedRequest(testSecret, "n1", webhookNow, body))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, handled)
	assert.Equal(t, body, w.Body.String())
}

func TestWebhookSignature_FailsClosed(t *testing.T) {
	body := `[{"address":"0x01"}]`

	tampered := signedRequest(testSecret, "n1", webhookNow, body)
	tampered.Body = io.NopCloser(strings.NewReader(`[{"address":"0x02"}]`))

	missing := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))

	garbled := signedRequest(testSecret, "n1", webhookNow, body)
	garbled.Header.Set(WebhookSignatureHeader, "zz")

	tests := []struct {
		name   string
		secret string
		req    *http.Request
	}{
		{"wrong secret", testSecret, signedRequest("other", "n1", webhookNow, body)},
		{"tampered body", testSecret, tampered},
		{"missing headers", testSecret, missing},
		{"bad encoding", testSecret, garbled},
		{"stale timestamp", testSecret, signedRequest(testSecret, "n1", webhookNow.Add(-2*time.Minute), body)},
		{"future timestamp", testSecret, signedRequest(testSecret, "n1", webhookNow.Add(2*time.Minute), body)},
		{"no secret configured", "", signedRequest("", "n1", webhookNow, body)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handled := false
			w := httptest.NewRecorder()
			newWebhookRouter(tt.secret, &handled).ServeHTTP(w, tt.req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.False(t, handled)
			assert.Equal(t, dto.ErrInvalidWebhookSignature.Code, decodeResponse(t, w).Code)
		})
	}
}

func TestSignWebhook_Deterministic(t *testing.T) {
	a := SignWebhook("s", "n", "1", []byte("b"))
	assert.Equal(t, a, SignWebhook("s", "n", "1", []byte("b")))
	assert.NotEqual(t, a, SignWebhook("s", "n", "2", []byte("b")))
	assert.Len(t, a, 64)
}
