package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"

	"vendotrash/internal/domain"
)

type fakePort struct {
	r     *io.PipeReader
	board *io.PipeWriter

	mu     sync.Mutex
	out    bytes.Buffer
	closed bool
}

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{r: r, board: w}
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.r.Close()
}

func (p *fakePort) written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeCamera struct {
	frame []byte
	err   error
}

func (c *fakeCamera) Capture(context.Context) ([]byte, error) { return c.frame, c.err }

type fakeServer struct {
	mu             sync.Mutex
	hasSession     bool
	token          string
	classifyStatus int
	material       domain.Material
	// currentTokenOnly answers 409 to any bearer but the current customer's.
	currentTokenOnly bool
	tokenCalls     atomic.Int32
	lastAuth       string
	lastKey        string
	lastRequest    domain.ClassifyRequestDTO
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/vendo/session-status", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(domain.SessionStatusDTO{HasSession: f.hasSession})
	})
	mux.HandleFunc("/api/vendo/active-token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.token == "" {
			_ = json.NewEncoder(w).Encode(domain.ActiveTokenDTO{Status: "error", Message: "no active session"})
			return
		}
		_ = json.NewEncoder(w).Encode(domain.ActiveTokenDTO{Status: "success", Token: f.token, UserID: 7})
	})
	mux.HandleFunc("/api/vendo/capture-and-classify", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastAuth = r.Header.Get("Authorization")
		f.lastKey = r.Header.Get(machineKeyHeader)
		_ = json.NewDecoder(r.Body).Decode(&f.lastRequest)
		if f.currentTokenOnly && f.lastAuth != "Bearer "+f.token {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"user is not the machine's current customer","code":"NOT_ACTIVE_CUSTOMER"}`))
			return
		}
		if f.classifyStatus != http.StatusOK {
			w.WriteHeader(f.classifyStatus)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(domain.ClassifyResponseDTO{MaterialType: f.material, Confidence: 0.9, PointsEarned: 2})
	})
	mux.HandleFunc("/api/vendo/test", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func (f *fakeServer) lastCall() (auth, key string, req domain.ClassifyRequestDTO) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth, f.lastKey, f.lastRequest
}

func newFakeServer(t *testing.T, configure ...func(*fakeServer)) (*fakeServer, *httptest.Server) {
	t.Helper()
	f := &fakeServer{hasSession: true, token: "jwt-abc", classifyStatus: http.StatusOK, material: domain.MaterialPlastic}
	for _, fn := range configure {
		fn(f)
	}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return f, srv
}

func TestBridge_HandleReadyMapsOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		session  bool
		status   int
		material domain.Material
		want     domain.Signal
	}{
		{"plastic", true, http.StatusOK, domain.MaterialPlastic, domain.SignalPlastic},
		{"can", true, http.StatusOK, domain.MaterialNonPlastic, domain.SignalCan},
		{"rejected", true, http.StatusOK, domain.MaterialRejected, domain.SignalRejected},
		{"unknown material", true, http.StatusOK, domain.Material("GLASS"), domain.SignalRejected},
		{"lowercase material", true, http.StatusOK, domain.Material("plastic"), domain.SignalPlastic},
		{"no session", false, http.StatusOK, domain.MaterialPlastic, domain.SignalNoSession},
		{"session closed meanwhile", true, http.StatusConflict, "", domain.SignalNoSession},
		{"unauthorized", true, http.StatusUnauthorized, "", domain.SignalError},
		{"forbidden", true, http.StatusForbidden, "", domain.SignalError},
		{"server error", true, http.StatusInternalServerError, "", domain.SignalError},
		{"vision down", true, http.StatusServiceUnavailable, "", domain.SignalError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, srv := newFakeServer(t, func(f *fakeServer) {
				f.hasSession = tc.session
				f.classifyStatus = tc.status
				f.material = tc.material
			})

			b := New(nil, NewServerClient(srv.URL, "key-1", time.Minute), &fakeCamera{frame: []byte("jpeg")}, 3)

			assert.Equal(t, tc.want, b.handleReady(context.Background()))
		})
	}
}

func TestBridge_ClassifyRequestCarriesCredentials(t *testing.T) {
	f, srv := newFakeServer(t)
	b := New(nil, NewServerClient(srv.URL+"/", "key-1", time.Minute), &fakeCamera{frame: []byte("jpeg")}, 3)

	require.Equal(t, domain.SignalPlastic, b.handleReady(context.Background()))

	auth, key, req := f.lastCall()
	assert.Equal(t, "Bearer jwt-abc", auth)
	assert.Equal(t, "key-1", key)
	assert.Equal(t, 3, req.MachineID)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpeg")), req.ImageBase64)
}

func TestBridge_ClassifiesWithoutTokenWhenNoneIsAvailable(t *testing.T) {
	f, srv := newFakeServer(t, func(f *fakeServer) {
		f.token = ""
		f.classifyStatus = http.StatusUnauthorized
	})
	b := New(nil, NewServerClient(srv.URL, "", time.Minute), &fakeCamera{frame: []byte("jpeg")}, 1)

	assert.Equal(t, domain.SignalError, b.handleReady(context.Background()))
	auth, _, _ := f.lastCall()
	assert.Empty(t, auth)
}

func TestBridge_CaptureFailureSendsError(t *testing.T) {
	_, srv := newFakeServer(t)
	b := New(nil, NewServerClient(srv.URL, "", time.Minute), &fakeCamera{err: errors.New("camera unplugged")}, 1)

	assert.Equal(t, domain.SignalError, b.handleReady(context.Background()))
}

func TestBridge_ServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewServerClient(url, "", time.Minute)
	b := New(nil, client, &fakeCamera{frame: []byte("jpeg")}, 1)

	assert.Equal(t, domain.SignalError, b.handleReady(context.Background()), "an unanswered session check is a fault, not a missing customer")
	assert.Equal(t, domain.SignalError, client.Classify(context.Background(), []byte("jpeg"), "t", 1))
	assert.Error(t, client.Ping(context.Background()))
}

func TestBridge_SessionCheckFailureSendsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	cam := &fakeCamera{frame: []byte("jpeg")}
	b := New(nil, NewServerClient(srv.URL, "", time.Minute), cam, 1)

	assert.Equal(t, domain.SignalError, b.handleReady(context.Background()))
}

func TestBridge_StaleTokenIsReplacedWhenCustomerChanges(t *testing.T) {
	f, srv := newFakeServer(t, func(f *fakeServer) {
		f.token = "jwt-ana"
		f.currentTokenOnly = true
	})
	client := NewServerClient(srv.URL, "", time.Hour)
	b := New(nil, client, &fakeCamera{frame: []byte("jpeg")}, 1)
	ctx := context.Background()

	require.Equal(t, domain.SignalPlastic, b.handleReady(ctx))
	auth, _, _ := f.lastCall()
	require.Equal(t, "Bearer jwt-ana", auth)

	f.mu.Lock()
	f.token = "jwt-bob"
	f.mu.Unlock()

	assert.Equal(t, domain.SignalPlastic, b.handleReady(ctx))
	auth, _, _ = f.lastCall()
	assert.Equal(t, "Bearer jwt-bob", auth)
	assert.Equal(t, int32(2), f.tokenCalls.Load())

	tok, err := client.ActiveToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jwt-bob", tok)
	assert.Equal(t, int32(2), f.tokenCalls.Load(), "the fresh token is cached")
}

func TestServerClient_ConflictForgetsToken(t *testing.T) {
	f, srv := newFakeServer(t, func(f *fakeServer) { f.classifyStatus = http.StatusConflict })
	client := NewServerClient(srv.URL, "", time.Hour)
	ctx := context.Background()

	_, err := client.ActiveToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SignalNoSession, client.Classify(ctx, []byte("jpeg"), "jwt-abc", 1))

	_, err = client.ActiveToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestServerClient_TokenIsCached(t *testing.T) {
	f, srv := newFakeServer(t)
	client := NewServerClient(srv.URL, "", 300*time.Second)
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tok, err := client.ActiveToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "jwt-abc", tok)
	}
	assert.Equal(t, int32(1), f.tokenCalls.Load())

	now = now.Add(301 * time.Second)
	_, err := client.ActiveToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokenCalls.Load())

	client.ForgetToken()
	_, err = client.ActiveToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.tokenCalls.Load())
}

func TestServerClient_RejectedTokenIsForgotten(t *testing.T) {
	f, srv := newFakeServer(t, func(f *fakeServer) { f.classifyStatus = http.StatusUnauthorized })
	client := NewServerClient(srv.URL, "", time.Hour)
	b := New(nil, client, &fakeCamera{frame: []byte("jpeg")}, 1)
	ctx := context.Background()

	require.Equal(t, domain.SignalError, b.handleReady(ctx))
	require.Equal(t, domain.SignalError, b.handleReady(ctx))

	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestServerClient_NoActiveToken(t *testing.T) {
	_, srv := newFakeServer(t, func(f *fakeServer) { f.token = "" })
	client := NewServerClient(srv.URL, "", time.Hour)

	_, err := client.ActiveToken(context.Background())

	assert.ErrorIs(t, err, ErrNoActiveToken)
}

func TestBridge_RunWritesSignalsAndStopsOnCancel(t *testing.T) {
	f, srv := newFakeServer(t, func(f *fakeServer) { f.material = domain.MaterialNonPlastic })
	port := newFakePort()
	b := New(port, NewServerClient(srv.URL, "", time.Minute), &fakeCamera{frame: []byte("jpeg")}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- b.Run(ctx) }()

	_, err := io.WriteString(port.board, "SYSTEM READY\r\nTRASH DETECTED\nREADY\r\n")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return port.written() == "CAN\n" }, 2*time.Second, 10*time.Millisecond)

	f.mu.Lock()
	f.hasSession = false
	f.mu.Unlock()
	_, err = io.WriteString(port.board, "READY\n")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return port.written() == "CAN\nNO_SESSION\n" }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, port.isClosed())
}

func TestBridge_RunReturnsOnEOF(t *testing.T) {
	_, srv := newFakeServer(t)
	port := newFakePort()
	b := New(port, NewServerClient(srv.URL, "", time.Minute), &fakeCamera{frame: []byte("jpeg")}, 1)

	go func() {
		_, _ = io.WriteString(port.board, "hello")
		_ = port.board.Close()
	}()

	assert.NoError(t, b.Run(context.Background()))
	assert.True(t, port.isClosed())
	assert.Empty(t, port.written())
}

func TestOpenWithRetry(t *testing.T) {
	t.Run("succeeds on third attempt", func(t *testing.T) {
		calls := 0
		open := func(path string) (Port, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("access denied")
			}
			return newFakePort(), nil
		}

		port, err := OpenWithRetry(context.Background(), open, "/dev/ttyUSB0", 3, 0, 0)

		require.NoError(t, err)
		assert.NotNil(t, port)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		open := func(path string) (Port, error) {
			calls++
			return nil, errors.New("no such device")
		}

		_, err := OpenWithRetry(context.Background(), open, "COM6", 3, 0, 0)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "no such device")
		assert.Equal(t, 3, calls)
	})

	t.Run("cancelled while settling", func(t *testing.T) {
		port := newFakePort()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := OpenWithRetry(ctx, func(string) (Port, error) { return port, nil }, "COM6", 3, time.Second, time.Second)

		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, port.isClosed())
	})
}

func TestMatchPort(t *testing.T) {
	ports := []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523"},
		{Name: "/dev/ttyACM0", IsUSB: true, Product: "Arduino Uno"},
	}

	name, ok := matchPort(ports)
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyUSB0", name)

	name, ok = matchPort(ports[2:])
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyACM0", name)

	_, ok = matchPort(ports[:1])
	assert.False(t, ok)
}

func TestSnapshotCamera(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	var body atomic.Value
	body.Store("frame-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = io.Copy(w, strings.NewReader(body.Load().(string)))
	}))
	defer srv.Close()
	cam := NewSnapshotCamera(srv.URL)

	frame, err := cam.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("frame-bytes"), frame)

	body.Store("")
	_, err = cam.Capture(context.Background())
	assert.ErrorIs(t, err, ErrEmptySnapshot)

	status.Store(http.StatusNotFound)
	_, err = cam.Capture(context.Background())
	assert.Error(t, err)
}
