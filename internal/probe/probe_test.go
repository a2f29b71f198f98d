package probe

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type switchPinger struct {
	down atomic.Bool
}

func (p *switchPinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("unreachable")
	}
	return nil
}

func TestProbe_ReportsBackendHealth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slots := &switchPinger{}
	srv := New([]Check{{Name: "slots", Pinger: slots}}, time.Hour, nil)

	lis := bufconn.Listen(1 << 20)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
		defer callCancel()
		resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(ServiceName))

	slots.down.Store(true)
	err = srv.Evaluate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slots")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(ServiceName))

	slots.down.Store(false)
	require.NoError(t, srv.Evaluate(ctx))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("probe server did not stop")
	}
}
