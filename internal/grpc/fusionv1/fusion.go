// Package fusionv1 defines the vericloud.fusion.v1.Fusion gRPC service:
// message types, the service descriptor, and a typed client.
package fusionv1

import (
	"context"

	"google.golang.org/grpc"

	"github.com/vericloud/vericloud-fusion/internal/models"
)

const (
	ServiceName     = "vericloud.fusion.v1.Fusion"
	FuseFullMethod  = "/" + ServiceName + "/Fuse"
	ScoreFullMethod = "/" + ServiceName + "/Score"
)

// File is an uploaded artifact. Data is base64 on the wire.
type File struct {
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}

// FuseRequest mirrors the multipart form accepted by /predict_fusion.
type FuseRequest struct {
	Text  string `json:"text,omitempty"`
	Audio *File  `json:"audio,omitempty"`
	Video *File  `json:"video,omitempty"`
}

// ScoreRequest carries pre-computed modality outputs keyed by modality name.
type ScoreRequest struct {
	Results map[string]models.RawPrediction `json:"results"`
}

// FusionServer is the server API for the Fusion service.
type FusionServer interface {
	Fuse(context.Context, *FuseRequest) (*models.FusionResult, error)
	Score(context.Context, *ScoreRequest) (*models.FusionResult, error)
}

// RegisterFusionServer attaches srv to s.
func RegisterFusionServer(s grpc.ServiceRegistrar, srv FusionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the Fusion service for grpc.Server. Messages are
// JSON-coded Go structs with no registered proto file, so server reflection
// lists the service but cannot describe it.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FusionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Fuse", Handler: fuseHandler},
		{MethodName: "Score", Handler: scoreHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func fuseHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(FuseRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FusionServer).Fuse(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FuseFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FusionServer).Fuse(ctx, req.(*FuseRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func scoreHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ScoreRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FusionServer).Score(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ScoreFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FusionServer).Score(ctx, req.(*ScoreRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// FusionClient is the client API for the Fusion service.
type FusionClient struct {
	cc grpc.ClientConnInterface
}

// NewFusionClient wraps a connection.
func NewFusionClient(cc grpc.ClientConnInterface) *FusionClient {
	return &FusionClient{cc: cc}
}

// Fuse calls Fusion/Fuse.
func (c *FusionClient) Fuse(ctx context.Context, in *FuseRequest, opts ...grpc.CallOption) (*models.FusionResult, error) {
	out := new(models.FusionResult)
	if err := c.cc.Invoke(ctx, FuseFullMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// Score calls Fusion/Score.
func (c *FusionClient) Score(ctx context.Context, in *ScoreRequest, opts ...grpc.CallOption) (*models.FusionResult, error) {
	out := new(models.FusionResult)
	if err := c.cc.Invoke(ctx, ScoreFullMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

// ToArtifact converts a wire file into a models.Artifact. A nil or empty file
// yields nil.
func (f *File) ToArtifact() *models.Artifact {
	if f == nil || len(f.Data) == 0 {
		return nil
	}
	return &models.Artifact{Filename: f.Filename, ContentType: f.ContentType, Data: f.Data}
}

// FileFrom is the inverse of ToArtifact.
func FileFrom(a *models.Artifact) *File {
	if a.Empty() {
		return nil
	}
	return &File{Filename: a.Filename, ContentType: a.ContentType, Data: a.Data}
}
