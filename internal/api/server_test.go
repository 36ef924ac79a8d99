package api

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vericloud/vericloud-fusion/internal/config"
	"github.com/vericloud/vericloud-fusion/internal/engine"
	"github.com/vericloud/vericloud-fusion/internal/grpc/fusionv1"
	"github.com/vericloud/vericloud-fusion/internal/models"
	"github.com/vericloud/vericloud-fusion/internal/services"
)

func startGRPC(t *testing.T, policy engine.Policy) *grpc.ClientConn {
	t.Helper()
	eng, err := engine.New(engine.Options{Policy: policy})
	require.NoError(t, err)
	svc := services.NewFusionService(nil, eng, services.Upstreams{})

	lis := bufconn.Listen(1 << 20)
	server := NewGRPCServerOnListener(lis, config.ServerConfig{MaxUploadBytes: 1 << 20}, svc.GRPC())
	go func() { _ = server.Start() }()
	t.Cleanup(func() { server.Shutdown(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGRPCScore(t *testing.T) {
	conn := startGRPC(t, engine.PolicyDegrade)
	client := fusionv1.NewFusionClient(conn)

	result, err := client.Score(context.Background(), &fusionv1.ScoreRequest{Results: map[string]models.RawPrediction{
		"text":  {Prediction: "Truth", Confidence: 0.92},
		"voice": {Prediction: "Lie", Confidence: 78},
	}})
	require.NoError(t, err)
	assert.Equal(t, models.LabelTruthful, result.FinalPrediction)
	assert.InDelta(t, 0.43, result.FinalScore, 1e-9)
	assert.NotEmpty(t, result.AnalysisID)
}

func TestGRPCFuseValidation(t *testing.T) {
	conn := startGRPC(t, engine.PolicyDegrade)
	client := fusionv1.NewFusionClient(conn)

	_, err := client.Fuse(context.Background(), &fusionv1.FuseRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCFuseWithoutPredictorsIsFailedPrecondition(t *testing.T) {
	conn := startGRPC(t, engine.PolicyDegrade)
	client := fusionv1.NewFusionClient(conn)

	_, err := client.Fuse(context.Background(), &fusionv1.FuseRequest{Text: "statement"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestGRPCHealth(t *testing.T) {
	conn := startGRPC(t, engine.PolicyDegrade)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: fusionv1.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	// the JSON codec serves proto messages too
	resp, err = healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{}, grpc.CallContentSubtype(fusionv1.CodecName))
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGRPCReflection(t *testing.T) {
	conn := startGRPC(t, engine.PolicyDegrade)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := reflectionpb.NewServerReflectionClient(conn).ServerReflectionInfo(ctx)
	require.NoError(t, err)

	require.NoError(t, stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_ListServices{ListServices: "*"},
	}))
	resp, err := stream.Recv()
	require.NoError(t, err)
	var names []string
	for _, svc := range resp.GetListServicesResponse().GetService() {
		names = append(names, svc.GetName())
	}
	assert.Contains(t, names, fusionv1.ServiceName)
	assert.Contains(t, names, "grpc.health.v1.Health")

	require.NoError(t, stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_FileContainingSymbol{FileContainingSymbol: "grpc.health.v1.Health"},
	}))
	resp, err = stream.Recv()
	require.NoError(t, err)
	assert.NotEmpty(t, resp.GetFileDescriptorResponse().GetFileDescriptorProto())

	// JSON-coded fusion messages have no descriptor to serve.
	require.NoError(t, stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_FileContainingSymbol{FileContainingSymbol: fusionv1.ServiceName},
	}))
	resp, err = stream.Recv()
	require.NoError(t, err)
	assert.NotNil(t, resp.GetErrorResponse())
}
