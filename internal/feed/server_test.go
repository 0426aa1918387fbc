package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"

	"github.com/osadchyi/cansat-ground/internal/export"
	"github.com/osadchyi/cansat-ground/internal/session"
	"github.com/osadchyi/cansat-ground/internal/sim"
	"github.com/osadchyi/cansat-ground/internal/transport"
	"github.com/osadchyi/cansat-ground/internal/transport/httppoll"
)

type env struct {
	is        *is.I
	ts        *httptest.Server
	device    *sim.Server
	deviceURL string
	srv       *Server
	sess      *session.Session
}

func newEnv(t *testing.T, options ...func(s *Server)) *env {
	t.Helper()

	device := sim.NewServer(sim.NewFlight(7))
	deviceTS := httptest.NewServer(device.Router())
	t.Cleanup(deviceTS.Close)

	factory := func(kind, target string) (transport.Transport, error) {
		if kind != httppoll.Kind {
			return nil, fmt.Errorf("unknown transport %q", kind)
		}
		return httppoll.New(httppoll.Config{
			Target:       target,
			PollInterval: transport.TimeDuration(5 * time.Millisecond),
		})
	}

	sess := session.New()
	srv := NewServer(context.Background(), sess, factory, options...)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		_ = sess.Disconnect()
	})

	return &env{
		is:        is.New(t),
		ts:        ts,
		device:    device,
		deviceURL: deviceTS.URL,
		srv:       srv,
		sess:      sess,
	}
}

func (e *env) request(method, path string, body io.Reader) (*http.Response, string) {
	req, _ := http.NewRequest(method, e.ts.URL+path, body)
	resp, err := http.DefaultClient.Do(req)
	e.is.NoErr(err)
	respBody, _ := io.ReadAll(resp.Body)
	defer resp.Body.Close()

	return resp, string(respBody)
}

func (e *env) connectBody() io.Reader {
	return strings.NewReader(fmt.Sprintf(`{"transport":%q,"target":%q}`, httppoll.Kind, e.deviceURL))
}

func (e *env) connect(t *testing.T) {
	t.Helper()
	resp, body := e.request(http.MethodPost, "/api/connect", e.connectBody())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("connect: %d %s", resp.StatusCode, body)
	}
}

func (e *env) waitStatus(t *testing.T, cond func(st session.Status) bool) session.Status {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, body := e.request(http.MethodGet, "/api/status", nil)
		e.is.Equal(resp.StatusCode, http.StatusOK)

		var st session.Status
		e.is.NoErr(json.Unmarshal([]byte(body), &st))
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("status condition not met, last: %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.request(http.MethodGet, "/health", nil)

	e.is.Equal(resp.StatusCode, http.StatusNoContent) // health endpoint status code not ok
}

func TestStatusBeforeConnect(t *testing.T) {
	e := newEnv(t)

	resp, body := e.request(http.MethodGet, "/api/status", nil)

	e.is.Equal(resp.StatusCode, http.StatusOK)
	var st session.Status
	e.is.NoErr(json.Unmarshal([]byte(body), &st))
	e.is.Equal(st.State, session.StateDisconnected)
	e.is.Equal(st.LoggingActive, false)
	e.is.Equal(st.LogLength, 0)
}

func TestLatestEmpty(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.request(http.MethodGet, "/api/latest", nil)

	e.is.Equal(resp.StatusCode, http.StatusNoContent)
}

func TestLogCSVEmpty(t *testing.T) {
	e := newEnv(t)

	resp, body := e.request(http.MethodGet, "/api/log.csv", nil)

	e.is.Equal(resp.StatusCode, http.StatusGone)
	e.is.True(strings.Contains(body, "notice")) // empty log is a notice, not an error
}

func TestExportEmpty(t *testing.T) {
	e := newEnv(t)

	resp, body := e.request(http.MethodPost, "/api/export", nil)

	e.is.Equal(resp.StatusCode, http.StatusGone)
	e.is.True(strings.Contains(body, "notice"))
}

func TestConnectUnknownTransport(t *testing.T) {
	e := newEnv(t)

	resp, body := e.request(http.MethodPost, "/api/connect",
		strings.NewReader(`{"transport":"carrier-pigeon","target":"somewhere"}`))

	e.is.Equal(resp.StatusCode, http.StatusBadRequest)
	e.is.True(strings.Contains(body, "carrier-pigeon"))
}

func TestConnectMalformedBody(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.request(http.MethodPost, "/api/connect", strings.NewReader("{not json"))

	e.is.Equal(resp.StatusCode, http.StatusBadRequest)
}

func TestConnectRejectedByDevice(t *testing.T) {
	e := newEnv(t)
	e.device.SetReject(true)

	resp, body := e.request(http.MethodPost, "/api/connect", e.connectBody())

	e.is.Equal(resp.StatusCode, http.StatusBadGateway)
	e.is.True(strings.Contains(body, "error"))

	st := e.waitStatus(t, func(st session.Status) bool { return true })
	e.is.Equal(st.State, session.StateDisconnected) // failed handshake must not leave the session half-connected
}

func TestConnectAndStream(t *testing.T) {
	e := newEnv(t)

	resp, body := e.request(http.MethodPost, "/api/connect", e.connectBody())
	e.is.Equal(resp.StatusCode, http.StatusOK)

	var st session.Status
	e.is.NoErr(json.Unmarshal([]byte(body), &st))
	e.is.Equal(st.State, session.StateConnected)
	e.is.Equal(st.Transport, httppoll.Kind)

	// Connecting again while connected is a conflict.
	resp, _ = e.request(http.MethodPost, "/api/connect", e.connectBody())
	e.is.Equal(resp.StatusCode, http.StatusConflict)

	// Samples flow into the latest slot without logging.
	e.waitStatus(t, func(st session.Status) bool { return st.Stats.Received >= 1 })
	resp, body = e.request(http.MethodGet, "/api/latest", nil)
	e.is.Equal(resp.StatusCode, http.StatusOK)

	var sample map[string]any
	e.is.NoErr(json.Unmarshal([]byte(body), &sample))
	if _, ok := sample["altitude"]; !ok {
		t.Fatalf("latest sample has no altitude: %s", body)
	}

	st = e.waitStatus(t, func(st session.Status) bool { return true })
	e.is.Equal(st.LogLength, 0) // nothing may be logged before logging starts

	resp, _ = e.request(http.MethodPost, "/api/logging/start", nil)
	e.is.Equal(resp.StatusCode, http.StatusOK)
	e.waitStatus(t, func(st session.Status) bool { return st.LogLength >= 2 })

	resp, body = e.request(http.MethodGet, "/api/log.csv", nil)
	e.is.Equal(resp.StatusCode, http.StatusOK)
	e.is.Equal(resp.Header.Get("Content-Type"), "text/csv; charset=utf-8")
	e.is.True(strings.Contains(resp.Header.Get("Content-Disposition"), export.DefaultFilename))
	e.is.True(strings.HasPrefix(body, "device_time,capture_time,altitude"))

	resp, body = e.request(http.MethodPost, "/api/disconnect", nil)
	e.is.Equal(resp.StatusCode, http.StatusOK)
	e.is.NoErr(json.Unmarshal([]byte(body), &st))
	e.is.Equal(st.State, session.StateDisconnected)
	e.is.Equal(st.LoggingActive, true) // logging flag survives the disconnect

	// The log survives too.
	resp, _ = e.request(http.MethodGet, "/api/log.csv", nil)
	e.is.Equal(resp.StatusCode, http.StatusOK)
}

func TestResetClearsLogAndLatest(t *testing.T) {
	e := newEnv(t)
	e.connect(t)

	resp, _ := e.request(http.MethodPost, "/api/logging/start", nil)
	e.is.Equal(resp.StatusCode, http.StatusOK)
	e.waitStatus(t, func(st session.Status) bool { return st.LogLength >= 1 })

	resp, _ = e.request(http.MethodPost, "/api/disconnect", nil)
	e.is.Equal(resp.StatusCode, http.StatusOK)

	resp, body := e.request(http.MethodPost, "/api/reset", nil)
	e.is.Equal(resp.StatusCode, http.StatusOK)

	var st session.Status
	e.is.NoErr(json.Unmarshal([]byte(body), &st))
	e.is.Equal(st.LogLength, 0)
	e.is.Equal(st.LoggingActive, false)

	resp, _ = e.request(http.MethodGet, "/api/latest", nil)
	e.is.Equal(resp.StatusCode, http.StatusNoContent)

	resp, _ = e.request(http.MethodGet, "/api/log.csv", nil)
	e.is.Equal(resp.StatusCode, http.StatusGone)
}

func TestExportSavesThroughSink(t *testing.T) {
	dir := t.TempDir()
	e := newEnv(t, WithSink(export.FileSink{Dir: dir}))
	e.connect(t)

	resp, _ := e.request(http.MethodPost, "/api/logging/start", nil)
	e.is.Equal(resp.StatusCode, http.StatusOK)
	e.waitStatus(t, func(st session.Status) bool { return st.LogLength >= 1 })

	resp, body := e.request(http.MethodPost, "/api/export", nil)
	e.is.Equal(resp.StatusCode, http.StatusOK)
	e.is.True(strings.Contains(body, export.DefaultFilename))

	data, err := os.ReadFile(filepath.Join(dir, export.DefaultFilename))
	e.is.NoErr(err)
	e.is.True(strings.HasPrefix(string(data), "device_time,capture_time"))
}

func TestCommandRoundTrip(t *testing.T) {
	e := newEnv(t)

	// Commands need a connection first.
	resp, _ := e.request(http.MethodPost, "/api/command", strings.NewReader(`{"value":"ON"}`))
	e.is.Equal(resp.StatusCode, http.StatusConflict)

	e.connect(t)

	resp, body := e.request(http.MethodPost, "/api/command", strings.NewReader(`{"value":"CMD,111,CALIBRATE"}`))
	e.is.Equal(resp.StatusCode, http.StatusOK)
	e.is.True(strings.Contains(body, "CMD,111,CALIBRATE"))
	e.is.Equal(e.device.LastCommand(), "CMD,111,CALIBRATE")
}

type liveEvent struct {
	Type   string          `json:"type"`
	Logged bool            `json:"logged"`
	Sample json.RawMessage `json:"sample"`
	Status json.RawMessage `json:"status"`
}

func TestLiveStreamsEvents(t *testing.T) {
	e := newEnv(t)

	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/api/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	e.is.NoErr(err)
	defer conn.Close()

	e.connect(t)

	e.is.NoErr(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var sawStatus, sawSample bool
	for !sawStatus || !sawSample {
		_, msg, err := conn.ReadMessage()
		e.is.NoErr(err) // live stream closed before both event kinds arrived

		var ev liveEvent
		e.is.NoErr(json.Unmarshal(msg, &ev))
		switch ev.Type {
		case "status":
			sawStatus = true
			e.is.True(len(ev.Status) > 0)
		case "sample":
			sawSample = true
			e.is.True(len(ev.Sample) > 0)
		}
	}
}

func TestMetricsExposition(t *testing.T) {
	e := newEnv(t)
	e.connect(t)
	e.waitStatus(t, func(st session.Status) bool { return st.Stats.Received >= 1 })

	resp, body := e.request(http.MethodGet, "/metrics", nil)

	e.is.Equal(resp.StatusCode, http.StatusOK)
	e.is.True(strings.Contains(body, "cansat_samples_received_total"))
	e.is.True(strings.Contains(body, "cansat_connects_total 1"))
	e.is.True(strings.Contains(body, "cansat_session_state 2")) // connected
	e.is.True(strings.Contains(body, "cansat_logging_active 0"))
}
