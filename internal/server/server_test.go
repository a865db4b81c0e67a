package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/AIGelman23/Connectify-sub001/internal/capture"
	"github.com/AIGelman23/Connectify-sub001/internal/config"
	"github.com/AIGelman23/Connectify-sub001/internal/media/virtual"
	"github.com/AIGelman23/Connectify-sub001/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	*Server
	studio  *service.Studio
	clock   clockwork.FakeClock
	handler http.Handler
}

func newTestServer(t *testing.T, vopts virtual.Options, configFile string) *testServer {
	t.Helper()
	clock := clockwork.NewFakeClock()
	vopts.Clock = clock

	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.LoadWithProfile(configFile, ""); err != nil {
			t.Fatalf("LoadWithProfile failed: %v", err)
		}
	} else {
		cfg.Output.Directory = t.TempDir()
		cfg.Output.SoundsDirectory = t.TempDir()
	}

	studio, err := service.New(cfg, configFile, service.Options{Platform: virtual.New(vopts), Clock: clock})
	if err != nil {
		t.Fatalf("service.New failed: %v", err)
	}
	t.Cleanup(func() { studio.Close() })

	srv := New(studio, configFile, "0")
	return &testServer{Server: srv, studio: studio, clock: clock, handler: srv.Handler()}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode %q: %v", w.Body.String(), err)
	}
}

func TestServer_RecordAndDownload(t *testing.T) {
	ts := newTestServer(t, virtual.Options{}, "")

	w := ts.do(t, http.MethodPost, "/api/camera/open", `{"facing":"environment"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 opening the camera, got %d: %s", w.Code, w.Body.String())
	}
	var sess capture.Session
	decode(t, w, &sess)
	if sess.State != capture.StateStreaming || sess.FacingName != "environment" {
		t.Errorf("Expected a STREAMING environment camera, got %+v", sess)
	}

	if w := ts.do(t, http.MethodPost, "/api/recording/start", `{"name":"take1"}`); w.Code != http.StatusOK {
		t.Fatalf("Expected 200 starting the recording, got %d: %s", w.Code, w.Body.String())
	}
	for i := 0; i < 5; i++ {
		ts.clock.Advance(100 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}

	var status StatusResponse
	decode(t, ts.do(t, http.MethodGet, "/api/status", ""), &status)
	if status.Status.Recorder.State != "RECORDING" {
		t.Errorf("Expected RECORDING, got %s", status.Status.Recorder.State)
	}
	if !strings.HasPrefix(status.Message, "Recording in progress") {
		t.Errorf("Expected a recording message, got %q", status.Message)
	}

	w = ts.do(t, http.MethodPost, "/api/recording/stop", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 stopping the recording, got %d: %s", w.Code, w.Body.String())
	}
	var stopped struct {
		Success bool             `json:"success"`
		Clip    service.ClipInfo `json:"clip"`
	}
	decode(t, w, &stopped)
	if !stopped.Success || stopped.Clip.Name != "take1.webm" {
		t.Fatalf("Expected take1.webm, got %+v", stopped)
	}
	if stopped.Clip.DownloadURL != "/api/clips/take1.webm" {
		t.Errorf("Expected download URL, got %s", stopped.Clip.DownloadURL)
	}

	var clips ClipsResponse
	decode(t, ts.do(t, http.MethodGet, "/api/clips", ""), &clips)
	if clips.TotalCount != 1 || clips.Clips[0].Name != "take1.webm" {
		t.Errorf("Expected one clip, got %+v", clips)
	}

	w = ts.do(t, http.MethodGet, stopped.Clip.DownloadURL, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 downloading, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "video/webm") {
		t.Errorf("Expected video/webm, got %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="take1.webm"` {
		t.Errorf("Unexpected Content-Disposition: %s", cd)
	}
	if int64(w.Body.Len()) != stopped.Clip.Size {
		t.Errorf("Expected %d bytes, got %d", stopped.Clip.Size, w.Body.Len())
	}
}

func TestServer_ErrorMapping(t *testing.T) {
	ts := newTestServer(t, virtual.Options{}, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"flip without camera", http.MethodPost, "/api/camera/flip", "", http.StatusConflict},
		{"pause while idle", http.MethodPost, "/api/recording/pause", "", http.StatusConflict},
		{"start without camera", http.MethodPost, "/api/recording/start", "", http.StatusConflict},
		{"bad facing", http.MethodPost, "/api/camera/open", `{"facing":"sideways"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/camera/open", `{`, http.StatusBadRequest},
		{"zoom without camera", http.MethodPost, "/api/camera/zoom", `{"level":2}`, http.StatusNotImplemented},
		{"unknown sound", http.MethodPost, "/api/sounds/select", `{"id":"ghost"}`, http.StatusNotFound},
		{"unknown waveform", http.MethodGet, "/api/sounds/ghost/waveform", "", http.StatusNotFound},
		{"bad buckets", http.MethodGet, "/api/sounds/ghost/waveform?buckets=many", "", http.StatusBadRequest},
		{"missing clip", http.MethodGet, "/api/clips/missing.webm", "", http.StatusNotFound},
		{"trim missing clip", http.MethodPost, "/api/clips/missing.webm/trim", `{"start_ms":0,"end_ms":1000}`, http.StatusNotFound},
		{"trim without range", http.MethodPost, "/api/clips/missing.webm/trim", `{}`, http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/api/nothing", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("Expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			var resp ErrorResponse
			decode(t, w, &resp)
			if resp.Success || resp.Error == "" {
				t.Errorf("Expected an error body, got %+v", resp)
			}
		})
	}
}

func TestServer_PermissionDeniedIsRetryable(t *testing.T) {
	ts := newTestServer(t, virtual.Options{DenyPermission: true}, "")

	w := ts.do(t, http.MethodPost, "/api/camera/open", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d: %s", w.Code, w.Body.String())
	}
	var resp ErrorResponse
	decode(t, w, &resp)
	if resp.Kind != "PermissionDenied" || !resp.Retryable {
		t.Errorf("Expected retryable PermissionDenied, got %+v", resp)
	}

	var status StatusResponse
	decode(t, ts.do(t, http.MethodGet, "/api/status", ""), &status)
	if status.Status.Camera.Permission != capture.PermissionDenied {
		t.Errorf("Expected denied permission, got %s", status.Status.Camera.Permission)
	}
	if status.Status.LastError == "" {
		t.Error("Expected the failure reported as last error")
	}
}

func TestServer_Profiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reelcapture.yaml")
	content := `
active_config: default
globals:
  output:
    recordings_directory: ` + filepath.Join(dir, "reels") + `
    sounds_directory: ` + filepath.Join(dir, "sounds") + `
configs:
  default:
    capture:
      facing: user
  studio:
    capture:
      facing: environment
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	ts := newTestServer(t, virtual.Options{}, path)

	var profiles struct {
		Profiles      []string `json:"profiles"`
		ActiveProfile string   `json:"active_profile"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/profiles", ""), &profiles)
	if len(profiles.Profiles) != 2 || profiles.Profiles[0] != "default" || profiles.Profiles[1] != "studio" {
		t.Errorf("Expected [default studio], got %v", profiles.Profiles)
	}
	if profiles.ActiveProfile != "default" {
		t.Errorf("Expected default active, got %s", profiles.ActiveProfile)
	}

	if w := ts.do(t, http.MethodPost, "/api/profiles/select", `{"profile":"missing"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an unknown profile, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/profiles/select", `{"profile":"studio"}`); w.Code != http.StatusOK {
		t.Fatalf("Expected 200 selecting studio, got %d: %s", w.Code, w.Body.String())
	}
	if got := getActiveProfileName(path); got != "studio" {
		t.Errorf("Expected studio persisted, got %s", got)
	}
	if ts.studio.GetConfig().FacingMode().String() != "environment" {
		t.Errorf("Expected the studio profile applied, got %s", ts.studio.GetConfig().Capture.Facing)
	}

	// Opening without a facing mode uses the profile default.
	var sess capture.Session
	decode(t, ts.do(t, http.MethodPost, "/api/camera/open", ""), &sess)
	if sess.FacingName != "environment" {
		t.Errorf("Expected environment camera, got %s", sess.FacingName)
	}
}

func TestServer_Events(t *testing.T) {
	ts := newTestServer(t, virtual.Options{}, "")
	hs := httptest.NewServer(ts.handler)
	defer hs.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http")+"/api/events", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	read := func() StatusResponse {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage failed: %v", err)
		}
		var resp StatusResponse
		if err := sonic.Unmarshal(data, &resp); err != nil {
			t.Fatalf("Failed to decode event: %v", err)
		}
		return resp
	}

	if first := read(); first.Status.Camera.State != capture.StateIdle {
		t.Errorf("Expected an IDLE snapshot on connect, got %s", first.Status.Camera.State)
	}

	if _, err := ts.studio.OpenCamera(context.Background(), ""); err != nil {
		t.Fatalf("OpenCamera failed: %v", err)
	}
	for {
		ev := read()
		if ev.Status.Camera.State == capture.StateStreaming {
			break
		}
	}
}

func TestStatusCodeFor(t *testing.T) {
	if got := statusCodeFor(context.DeadlineExceeded); got != http.StatusGatewayTimeout {
		t.Errorf("Expected 504, got %d", got)
	}
	if got := statusCodeFor(os.ErrPermission); got != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", got)
	}
}
