package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/edilink/internal/host"
	"github.com/danmuck/edilink/internal/protocol/session"
	"github.com/danmuck/edilink/internal/testutil/fakezmq"
	"github.com/danmuck/edilink/internal/testutil/testlog"
	"github.com/danmuck/edilink/internal/transport"
	"github.com/gin-gonic/gin"
)

type stubController struct {
	mu        sync.Mutex
	endpoint  session.Endpoint
	running   bool
	reconfErr error
	stopErr   error
}

func (s *stubController) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	return nil
}

func (s *stubController) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopErr != nil {
		return s.stopErr
	}
	s.running = false
	return nil
}

func (s *stubController) Reconfigure(ep session.Endpoint) (session.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ep.Validate(); err != nil {
		return s.endpoint, err
	}
	if s.reconfErr != nil {
		return s.endpoint, s.reconfErr
	}
	s.endpoint = ep
	return ep, nil
}

func (s *stubController) State() session.State {
	if s.Running() {
		return session.StateListening
	}
	return session.StateDisconnected
}

func (s *stubController) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *stubController) Endpoint() session.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

func (s *stubController) Registrations() int64 { return 0 }
func (s *stubController) LastError() error     { return nil }

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func TestPutEndpointReconfiguresAndPersists(t *testing.T) {
	testlog.Start(t)

	ctrl := &stubController{endpoint: session.Endpoint{URL: "127.0.0.1", Port: 9928}}
	s := Appear("admin-a", ":0", nil, ctrl, nil)
	var persisted session.Endpoint
	s.OnReconfigure = func(ep session.Endpoint) error {
		persisted = ep
		return nil
	}

	rr := do(t, s, http.MethodPut, "/endpoint", `{"url":"10.0.0.2","port":9999}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var body struct {
		Endpoint session.Endpoint `json:"endpoint"`
		Address  string           `json:"address"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := session.Endpoint{URL: "10.0.0.2", Port: 9999}
	if body.Endpoint != want || body.Address != "tcp://10.0.0.2:9999" || persisted != want {
		t.Fatalf("unexpected result body=%+v persisted=%+v", body, persisted)
	}
}

func TestPutEndpointErrors(t *testing.T) {
	testlog.Start(t)

	ctrl := &stubController{endpoint: session.Endpoint{URL: "127.0.0.1", Port: 9928}}
	s := Appear("admin-a", ":0", nil, ctrl, nil)

	cases := []struct {
		body string
		want int
	}{
		{`{"url":"10.0.0.2"}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
		{`{"url":"10.0.0.2","port":70000}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if rr := do(t, s, http.MethodPut, "/endpoint", tc.body); rr.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.body, tc.want, rr.Code)
		}
	}

	ctrl.reconfErr = session.ErrShutdownTimeout
	rr := do(t, s, http.MethodPut, "/endpoint", `{"url":"10.0.0.2","port":9999}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on stop timeout, got %d", rr.Code)
	}
	if ctrl.Endpoint().Port != 9928 {
		t.Fatalf("endpoint changed after timeout")
	}
}

func TestStartStopAndStatus(t *testing.T) {
	testlog.Start(t)

	ctrl := &stubController{endpoint: session.Endpoint{URL: "127.0.0.1", Port: 9928}}
	mem := &host.Memory{}
	mem.SetRecordingStatus(true)
	s := Appear("admin-a", ":0", []string{"http://example.test"}, ctrl, mem)

	if rr := do(t, s, http.MethodPost, "/start", ""); rr.Code != http.StatusOK {
		t.Fatalf("start: %d", rr.Code)
	}
	rr := do(t, s, http.MethodGet, "/status", "")
	var st struct {
		State   string         `json:"state"`
		Running bool           `json:"running"`
		Address string         `json:"address"`
		Host    *host.Snapshot `json:"host"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.State != "listening" || !st.Running || st.Address != "tcp://127.0.0.1:9928" {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.Host == nil || !st.Host.Recording || !st.Host.Acquiring {
		t.Fatalf("host flags missing: %+v", st.Host)
	}

	ctrl.stopErr = session.ErrShutdownTimeout
	if rr := do(t, s, http.MethodPost, "/stop", ""); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on stop timeout, got %d", rr.Code)
	}
	ctrl.stopErr = nil
	if rr := do(t, s, http.MethodPost, "/stop", ""); rr.Code != http.StatusOK || ctrl.Running() {
		t.Fatalf("stop: %d running=%v", rr.Code, ctrl.Running())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	testlog.Start(t)

	s := Appear("admin-a", ":0", nil, &stubController{}, nil)
	if rr := do(t, s, http.MethodGet, "/health", ""); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"admin-a"`) {
		t.Fatalf("health: %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, s, http.MethodGet, "/metrics", ""); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "edilink_http_requests_total") {
		t.Fatalf("metrics: %d", rr.Code)
	}
}

func TestAdminDrivesRealManager(t *testing.T) {
	testlog.Start(t)

	netw := fakezmq.NewNetwork()
	cfg := session.DefaultConfig()
	cfg.Identity = "OpenEphys_admin"
	cfg.SettleDelay = time.Millisecond
	cfg.RegisterInterval = -1
	cfg.PollInterval = 5 * time.Millisecond
	cfg.QuiesceDelay = -1
	mem := &host.Memory{Name: "rig"}
	mgr, err := session.NewManager(cfg, session.Endpoint{URL: "127.0.0.1", Port: 9928}, mem,
		session.WithArbiter(transport.NewArbiter(netw.Factory())))
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	defer mgr.Close()

	s := Appear("admin-live", ":0", nil, mgr, mem)
	if rr := do(t, s, http.MethodPost, "/start", ""); rr.Code != http.StatusOK {
		t.Fatalf("start: %d", rr.Code)
	}
	if rr := do(t, s, http.MethodPut, "/endpoint", `{"url":"10.1.1.1","port":7000}`); rr.Code != http.StatusOK {
		t.Fatalf("reconfigure: %d %s", rr.Code, rr.Body.String())
	}
	if mgr.ListeningPort() != 7000 || mgr.ListeningURL() != "10.1.1.1" {
		t.Fatalf("manager endpoint not updated: %+v", mgr.Endpoint())
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if rr := do(t, s, http.MethodPost, "/start", ""); rr.Code != http.StatusConflict {
		t.Fatalf("start after close: %d", rr.Code)
	}
	if !errors.Is(mgr.Start(), session.ErrClosed) {
		t.Fatalf("manager should stay closed")
	}
}
