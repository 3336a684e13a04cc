package metrics

import (
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()
	return addr
}

func TestServer_ServesMetricsAndHealth(t *testing.T) {
	DroppedRecordsTotal.WithLabelValues("queue_full").Inc()
	QueueDepth.WithLabelValues("1").Set(42)

	addr := freeAddr(t)
	srv := NewServer(addr, nil)
	srv.Start()
	defer srv.Stop()

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/health")
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "OK", string(body))

	metricsResp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	require.Equal(t, http.StatusOK, metricsResp.StatusCode)
	metricsBody, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	require.Contains(t, string(metricsBody), "quillgo_dropped_records_total")
	require.Contains(t, string(metricsBody), "quillgo_queue_depth_bytes")
}

func TestSafeRegister_IgnoresAlreadyRegistered(t *testing.T) {
	require.NotPanics(t, func() {
		safeRegister(prometheus.DefaultRegisterer, QueueDepth, DroppedRecordsTotal)
	})
}
