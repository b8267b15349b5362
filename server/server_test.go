package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/IBM/sarama/mocks"
	"github.com/alicebob/miniredis/v2"
	"github.com/chrlshc/Huntaze-sub010/di"
	"github.com/chrlshc/Huntaze-sub010/httpx"
	"github.com/chrlshc/Huntaze-sub010/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serverConfig = `
app:
  name: gate-server-test
http:
  mode: test
store:
  enabled: true
  addrs: ["%s"]
  health_interval: 1h
policies:
  default:
    per_minute: 2
  routes:
    - path: /v1/admission/check
      per_minute: 1000
    - path: /v1/forward
      per_minute: 1000
kafka:
  enabled: true
  brokers: ["localhost:9092"]
auth:
  enabled: %t
  secret: 0123456789abcdef0123456789abcdef
`

func newTestServer(t *testing.T, auth bool, producer *mocks.SyncProducer) (*Server, *di.Application) {
	t.Helper()
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	content := fmt.Sprintf(serverConfig, mr.Addr(), auth)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	t.Setenv("APP_ENV", "test")

	app := di.NewApplication(
		di.WithConfigPath(dir),
		di.WithEnvPrefix("ADMISSION_SERVER_TEST"),
		di.WithKafkaOptions(kafka.WithSaramaProducer(producer)),
	)
	require.NoError(t, app.Setup())
	require.NoError(t, app.Start(context.Background()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	s, err := New(app)
	require.NoError(t, err)
	return s, app
}

func request(t *testing.T, s *Server, method, path string, body interface{}, header ...string) (*httptest.ResponseRecorder, httpx.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "198.51.100.4:5555"
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	var resp httpx.Response
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func TestServer_HealthIsNeverRateLimited(t *testing.T) {
	s, _ := newTestServer(t, false, mocks.NewSyncProducer(t, nil))

	for i := 0; i < 5; i++ {
		w, _ := request(t, s, http.MethodGet, PathHealth, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestServer_DefaultPolicyRejectsWith429(t *testing.T) {
	s, _ := newTestServer(t, false, mocks.NewSyncProducer(t, nil))

	for i := 0; i < 2; i++ {
		w, resp := request(t, s, http.MethodGet, "/unknown", nil)
		assert.Equal(t, http.StatusNotFound, w.Code, "admitted then routed")
		assert.Equal(t, "NOT_FOUND", resp.Code)
	}
	w, resp := request(t, s, http.MethodGet, "/unknown", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", resp.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestServer_Check(t *testing.T) {
	s, _ := newTestServer(t, false, mocks.NewSyncProducer(t, nil))

	req := CheckRequest{Key: "creator:c-1", Path: "/profile"}
	for i := 0; i < 2; i++ {
		w, resp := request(t, s, http.MethodPost, PathCheck, req)
		require.Equal(t, http.StatusOK, w.Code)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, true, data["allowed"])
	}

	w, resp := request(t, s, http.MethodPost, PathCheck, req)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, false, data["allowed"])
	assert.Greater(t, data["retry_after"].(float64), float64(0))

	w, resp = request(t, s, http.MethodPost, PathCheck, CheckRequest{Path: "/profile"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", resp.Code)
}

func TestServer_Forward(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()
	s, _ := newTestServer(t, false, producer)

	payload := map[string]interface{}{
		"action":     "send_message",
		"creator_id": "c-9",
		"timestamp":  "2026-05-01T12:00:00Z",
		"content":    "hello",
	}
	w, resp := request(t, s, http.MethodPost, PathForward, payload)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "forwarded", data["disposition"])
	assert.Equal(t, "c-9", data["ordering_key"])

	payload["content"] = "hello again"
	w, resp = request(t, s, http.MethodPost, PathForward, payload)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, true, resp.Data.(map[string]interface{})["duplicate"])

	w, resp = request(t, s, http.MethodPost, PathForward, map[string]interface{}{"creator_id": "c-9"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "FORWARD_PAYLOAD_INVALID", resp.Code)
}

func TestServer_BearerTokenKeysCaller(t *testing.T) {
	s, app := newTestServer(t, true, mocks.NewSyncProducer(t, nil))
	v, err := app.Verifier()
	require.NoError(t, err)
	token, err := v.Sign("c-3", "")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		w, _ := request(t, s, http.MethodGet, "/profile", nil, "Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusNotFound, w.Code)
	}
	w, _ := request(t, s, http.MethodGet, "/profile", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w, _ = request(t, s, http.MethodGet, "/profile", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "anonymous caller has its own IP quota")

	w, _ = request(t, s, http.MethodGet, "/profile", nil, "Authorization", "Bearer forged")
	assert.Equal(t, http.StatusNotFound, w.Code, "forged token shares the IP quota")
	w, _ = request(t, s, http.MethodGet, "/profile", nil, "Authorization", "Bearer forged")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
