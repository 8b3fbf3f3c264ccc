package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WesleyKishore-2054/Resilient-Email-Service/dispatch"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/breaker"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/metrics"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/ratelimit"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/queue"
)

type fakeStatuses struct {
	statuses map[string]dispatch.Status
	breakers []breaker.Snapshot
	limiter  *ratelimit.Limiter
}

func (f *fakeStatuses) Status(fp string) (dispatch.Status, bool) {
	s, ok := f.statuses[fp]
	return s, ok
}

func (f *fakeStatuses) BreakerSnapshot() []breaker.Snapshot { return f.breakers }

func (f *fakeStatuses) Limiter() *ratelimit.Limiter {
	if f.limiter == nil {
		f.limiter = ratelimit.New(0, 0, nil)
	}
	return f.limiter
}

type fakeQueue struct {
	mu        sync.Mutex
	submitted []dispatch.Message
}

func (q *fakeQueue) Submit(msg dispatch.Message) queue.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submitted = append(q.submitted, msg)
	return queue.Entry{ID: "entry", Message: msg, Fingerprint: dispatch.Fingerprint(msg)}
}

func (q *fakeQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.submitted)
}

func request(t *testing.T, statuses *fakeStatuses, q *fakeQueue, rec *metrics.Recorder, method, target, body string) (*http.Response, map[string]any) {
	t.Helper()
	app := New(statuses, q, rec, zerolog.Nop())

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestSendQueuesMessage(t *testing.T) {
	q := &fakeQueue{}
	body := `{"from":"p1@x.com","to":"a@x.com","subject":"s","body":"b"}`

	resp, out := request(t, &fakeStatuses{}, q, nil, http.MethodPost, "/send", body)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "Email has been queued for sending.", out["message"])
	want := dispatch.Fingerprint(dispatch.Message{To: "a@x.com", Subject: "s", Body: "b"})
	assert.Equal(t, want, out["id"])
	require.Len(t, q.submitted, 1)
	assert.Equal(t, "p1@x.com", q.submitted[0].From)
}

func TestSendRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"malformed json": `{"to":`,
		"missing field":  `{"from":"p@x.com","to":"a@x.com","subject":"s"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			q := &fakeQueue{}
			resp, out := request(t, &fakeStatuses{}, q, nil, http.MethodPost, "/send", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, out["message"])
			assert.Empty(t, q.submitted)
		})
	}
}

func TestStatusFound(t *testing.T) {
	statuses := &fakeStatuses{statuses: map[string]dispatch.Status{
		"abc": {Kind: dispatch.StatusSent, Provider: "ProviderA"},
	}}

	resp, out := request(t, statuses, &fakeQueue{}, nil, http.MethodGet, "/status/abc", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc", out["id"])
	assert.Equal(t, "sent via ProviderA", out["status"])
	detail, ok := out["detail"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ProviderA", detail["provider"])
}

func TestStatusNotFound(t *testing.T) {
	resp, out := request(t, &fakeStatuses{}, &fakeQueue{}, nil, http.MethodGet, "/status/missing", "")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Email status not found", out["message"])
}

func TestHealth(t *testing.T) {
	q := &fakeQueue{}
	q.Submit(dispatch.Message{To: "a@x.com"})
	limiter := ratelimit.New(5, 30*time.Second, nil)
	require.True(t, limiter.Allow())
	require.True(t, limiter.Allow())
	statuses := &fakeStatuses{
		breakers: []breaker.Snapshot{{Name: "ProviderA", State: breaker.Open, FailureCount: 3}},
		limiter:  limiter,
	}

	resp, out := request(t, statuses, q, nil, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, 1.0, out["queue_depth"])
	breakers, ok := out["breakers"].([]any)
	require.True(t, ok)
	require.Len(t, breakers, 1)
	assert.Equal(t, "OPEN", breakers[0].(map[string]any)["state"])

	rl, ok := out["rate_limit"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 5.0, rl["limit"])
	assert.Equal(t, "30s", rl["window"])
	assert.Equal(t, 2.0, rl["in_window"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := metrics.New()
	rec.IncSubmitted()

	app := New(&fakeStatuses{}, &fakeQueue{}, rec, zerolog.Nop())
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "dispatch_queue_submitted_total 1")
}

func TestMetricsNotMountedWithoutRecorder(t *testing.T) {
	resp, out := request(t, &fakeStatuses{}, &fakeQueue{}, nil, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not Found", out["message"])
}
