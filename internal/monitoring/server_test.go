package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"ixperf/internal/index"
	"ixperf/internal/logging"
	"ixperf/internal/pipeline"
	"ixperf/internal/testutil"
)

func newTestPipeline(t *testing.T, metrics *Metrics) *pipeline.Pipeline {
	t.Helper()
	opts, err := pipeline.OptionsFromConfig(testutil.TestConfig())
	require.NoError(t, err)
	var reporter pipeline.Reporter
	if metrics != nil {
		reporter = metrics
	}
	return pipeline.New(testutil.TestIndex(t), opts, testutil.TestLogger(), reporter)
}

func get(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStatusAndReport(t *testing.T) {
	metrics := NewMetrics()
	p := newTestPipeline(t, metrics)
	srv := NewServer(testutil.TestConfig().Server, p, metrics, testutil.TestLogger())
	router := srv.Router()

	rec := get(t, router, "/api/v1/report")
	testutil.AssertHTTPStatus(t, rec, http.StatusNotFound)
	assert.NotEmpty(t, rec.Header().Get(logging.RequestIDHeader))

	rec = get(t, router, "/api/v1/status")
	testutil.AssertHTTPStatus(t, rec, http.StatusOK)
	var idle pipeline.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &idle))
	assert.Equal(t, pipeline.StateIdle, idle.State)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	rec = get(t, router, "/api/v1/status")
	var done pipeline.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	assert.Equal(t, pipeline.StateDone, done.State)
	assert.Len(t, done.Phases, 2)

	rec = get(t, router, "/api/v1/report")
	testutil.AssertHTTPStatus(t, rec, http.StatusOK)
	snap, err := pipeline.ParseReport(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), snap.Seed)
	require.Len(t, snap.Phases, 2)
	assert.Equal(t, pipeline.PhaseInitialLoad, snap.Phases[0].Name)

	rec = get(t, router, "/api/v1/report?format=text")
	testutil.AssertHTTPStatus(t, rec, http.StatusOK)
	testutil.AssertContains(t, rec.Body.String(), "initial-load")

	rec = get(t, router, "/api/v1/report?format=xml")
	testutil.AssertHTTPStatus(t, rec, http.StatusBadRequest)

	rec = get(t, router, "/metrics")
	testutil.AssertHTTPStatus(t, rec, http.StatusOK)
	testutil.AssertContains(t, rec.Body.String(), `ixperf_operations_total{op="load",phase="initial-load"} 200`)
}

func TestHealthEndpoint(t *testing.T) {
	p := newTestPipeline(t, nil)
	srv := NewServer(testutil.TestConfig().Server, p, nil, testutil.TestLogger())
	router := srv.Router()

	rec := get(t, router, "/health")
	testutil.AssertHTTPStatus(t, rec, http.StatusOK)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, HealthStatusHealthy, resp.Status)
	assert.Contains(t, resp.Checks, "pipeline")
	assert.Contains(t, resp.Checks, "runtime")

	// metrics are optional
	rec = get(t, router, "/metrics")
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

type checkerFunc struct {
	name     string
	critical bool
	status   HealthStatus
}

func (c checkerFunc) Name() string     { return c.name }
func (c checkerFunc) IsCritical() bool { return c.critical }
func (c checkerFunc) Check(ctx context.Context) HealthCheck {
	return HealthCheck{Status: c.status}
}

func TestHealthManagerFolding(t *testing.T) {
	tests := []struct {
		name     string
		checkers []checkerFunc
		expected HealthStatus
	}{
		{"no checkers", nil, HealthStatusHealthy},
		{"all healthy", []checkerFunc{{"a", true, HealthStatusHealthy}, {"b", false, HealthStatusHealthy}}, HealthStatusHealthy},
		{"degraded", []checkerFunc{{"a", true, HealthStatusHealthy}, {"b", false, HealthStatusDegraded}}, HealthStatusDegraded},
		{"non-critical failure degrades", []checkerFunc{{"a", false, HealthStatusUnhealthy}}, HealthStatusDegraded},
		{"critical failure", []checkerFunc{{"a", false, HealthStatusDegraded}, {"b", true, HealthStatusUnhealthy}}, HealthStatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm := NewHealthManager()
			for _, c := range tt.checkers {
				hm.RegisterChecker(c)
			}
			resp := hm.CheckHealth(context.Background())
			assert.Equal(t, tt.expected, resp.Status)
			assert.Equal(t, tt.expected, hm.LastStatus())
			assert.Len(t, resp.Checks, len(tt.checkers))
		})
	}
}

func TestUnhealthyReturns503(t *testing.T) {
	p := newTestPipeline(t, nil)
	srv := NewServer(testutil.TestConfig().Server, p, nil, testutil.TestLogger())
	srv.Health().RegisterChecker(checkerFunc{"index", true, HealthStatusUnhealthy})

	rec := get(t, srv.Router(), "/health")
	testutil.AssertHTTPStatus(t, rec, http.StatusServiceUnavailable)
}

type brokenIndex struct {
	index.Index
}

func (brokenIndex) Set(key, value []byte) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func TestFailedRunIsUnhealthy(t *testing.T) {
	opts, err := pipeline.OptionsFromConfig(testutil.TestConfig())
	require.NoError(t, err)
	p := pipeline.New(brokenIndex{Index: testutil.TestIndex(t)}, opts, testutil.TestLogger(), nil)
	srv := NewServer(testutil.TestConfig().Server, p, nil, testutil.TestLogger())

	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, pipeline.ErrBackend)

	rec := get(t, srv.Router(), "/health")
	testutil.AssertHTTPStatus(t, rec, http.StatusServiceUnavailable)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)
	check := resp.Checks["pipeline"]
	assert.Equal(t, HealthStatusUnhealthy, check.Status)
	assert.Contains(t, check.Message, "disk on fire")
	assert.Equal(t, "failed", check.Details["state"])

	rec = get(t, srv.Router(), "/api/v1/status")
	var status pipeline.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, pipeline.StateFailed, status.State)
	assert.Contains(t, status.Error, "disk on fire")
}

func TestServerAppliesRuntimeLimits(t *testing.T) {
	cfg := testutil.TestConfig().Server
	cfg.MaxGoroutines = 1
	srv := NewServer(cfg, newTestPipeline(t, nil), nil, testutil.TestLogger())

	// runtime is not critical, so exceeding a limit only degrades
	rec := get(t, srv.Router(), "/health")
	testutil.AssertHTTPStatus(t, rec, http.StatusOK)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, HealthStatusDegraded, resp.Status)
	assert.Equal(t, HealthStatusUnhealthy, resp.Checks["runtime"].Status)
}

func TestRuntimeCheckerLimits(t *testing.T) {
	check := NewRuntimeChecker(0, 1).Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, check.Status)

	check = NewRuntimeChecker(0, 0).Check(context.Background())
	assert.Equal(t, HealthStatusHealthy, check.Status)
	assert.Contains(t, check.Details, "goroutines")
}

func TestGRPCHealth(t *testing.T) {
	p := newTestPipeline(t, nil)
	srv := NewServer(testutil.TestConfig().Server, p, nil, testutil.TestLogger())

	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcLn := bufconn.Listen(1 << 20)
	srv.serve(httpLn, grpcLn)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return grpcLn.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	client := healthpb.NewHealthClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	srv.Health().RegisterChecker(checkerFunc{"index", true, HealthStatusUnhealthy})
	get(t, srv.Router(), "/health")

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	conn.Close()
	require.NoError(t, srv.Stop(ctx))
}

func TestStartAndStop(t *testing.T) {
	cfg := testutil.TestConfig().Server
	cfg.Host = "127.0.0.1"
	p := newTestPipeline(t, nil)
	srv := NewServer(cfg, p, nil, testutil.TestLogger())
	require.NoError(t, srv.Start())

	resp, err := http.Get("http://" + srv.HTTPAddr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(srv.GRPCAddr().String(), "127.0.0.1:"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	select {
	case err := <-srv.Errors():
		t.Fatalf("unexpected server error: %v", err)
	default:
	}
}
