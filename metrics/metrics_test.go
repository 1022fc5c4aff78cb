package metrics

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	config := Config{Enabled: true, Host: "127.0.0.1", Port: 8080, ReadTimeout: 15 * time.Second}

	m := New(config)

	assert.Equal(t, config, m.config)
	assert.Equal(t, "127.0.0.1:8080", m.server.Addr)
	assert.Equal(t, 15*time.Second, m.server.ReadTimeout)
	assert.Nil(t, m.pusher)
}

func TestNewHttpServer_Endpoints(t *testing.T) {
	srv := httptest.NewServer(NewHttpServer(Config{}).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(srv.URL + "/unknown")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInitDefault_Disabled(t *testing.T) {
	closer, err := InitDefault(Config{Enabled: false, Port: 1})

	require.NoError(t, err)
	assert.NoError(t, closer.Close())
}

func TestInitDefault_Enabled(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	closer, err := InitDefault(Config{Enabled: true, Host: "127.0.0.1", Port: port, ReadTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer closer.Close()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port)) + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
}

func TestInitDefault_PushOnClose(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, path = r.Method, r.URL.Path
		mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	closer, err := InitDefault(Config{PushURL: gateway.URL, PushJob: "bulkmail-test"})
	require.NoError(t, err)
	m := closer.(*Metrics)
	assert.Nil(t, m.server)

	require.NoError(t, closer.Close())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/bulkmail-test", path)
}

func TestClose_PushFailure(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	m := New(Config{PushURL: gateway.URL})
	require.NoError(t, m.Start())
	assert.ErrorContains(t, m.Close(), "failed to push metrics")
}

func TestInitPrometheus_Idempotent(t *testing.T) {
	require.NoError(t, InitPrometheus())
	require.NoError(t, InitPrometheus())
}
