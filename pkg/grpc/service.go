package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The vitals service speaks google.protobuf.Struct on the wire so the
// payloads stay the same JSON shapes the REST API uses.
const (
	ServiceName = "vitals.v1.VitalsService"

	MethodPostReading     = "/" + ServiceName + "/PostReading"
	MethodGetAlerts       = "/" + ServiceName + "/GetAlerts"
	MethodGetDeviceStatus = "/" + ServiceName + "/GetDeviceStatus"
	MethodPostLimiter     = "/" + ServiceName + "/PostLimiter"
)

type VitalsServiceServer interface {
	PostReading(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetAlerts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetDeviceStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	PostLimiter(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv VitalsServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(VitalsServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(VitalsServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var VitalsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VitalsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PostReading", Handler: unaryHandler(MethodPostReading, VitalsServiceServer.PostReading)},
		{MethodName: "GetAlerts", Handler: unaryHandler(MethodGetAlerts, VitalsServiceServer.GetAlerts)},
		{MethodName: "GetDeviceStatus", Handler: unaryHandler(MethodGetDeviceStatus, VitalsServiceServer.GetDeviceStatus)},
		{MethodName: "PostLimiter", Handler: unaryHandler(MethodPostLimiter, VitalsServiceServer.PostLimiter)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vitals/v1/vitals.proto",
}

func RegisterVitalsServiceServer(s grpc.ServiceRegistrar, srv VitalsServiceServer) {
	s.RegisterService(&VitalsServiceDesc, srv)
}

type VitalsServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewVitalsServiceClient(cc grpc.ClientConnInterface) *VitalsServiceClient {
	return &VitalsServiceClient{cc: cc}
}

func (c *VitalsServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *VitalsServiceClient) PostReading(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodPostReading, in, opts...)
}

func (c *VitalsServiceClient) GetAlerts(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetAlerts, in, opts...)
}

func (c *VitalsServiceClient) GetDeviceStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetDeviceStatus, in, opts...)
}

func (c *VitalsServiceClient) PostLimiter(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodPostLimiter, in, opts...)
}
