package grpc

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-pix-access/app/mapper"
	"github.com/vibast-solutions/ms-go-pix-access/app/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName       = "pix.v1.PixAccessService"
	GetStatusMethod   = "/" + ServiceName + "/GetStatus"
	HealthMethod      = "/" + ServiceName + "/Health"
	maxStatusIDLength = 128
)

// PixAccessServer is served over well-known protobuf types so the service
// needs no generated code.
type PixAccessServer interface {
	GetStatus(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	Health(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PixAccessServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: getStatusHandler},
		{MethodName: "Health", Handler: healthHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterPixAccessServer(registrar grpc.ServiceRegistrar, srv PixAccessServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

type Server struct {
	paymentService *service.PaymentService
}

func NewServer(paymentService *service.PaymentService) *Server {
	return &Server{paymentService: paymentService}
}

func (s *Server) Health(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "ok"})
}

func (s *Server) GetStatus(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := req.GetValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	if len(id) > maxStatusIDLength {
		return nil, status.Error(codes.InvalidArgument, "id is too long")
	}

	envelope, err := s.paymentService.GetStatus(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return nil, status.Error(codes.NotFound, "not_found")
		case errors.Is(err, service.ErrInvalidRequest):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		default:
			loggerWithContext(ctx).WithError(err).Error("Get status failed")
			return nil, status.Error(codes.Internal, "internal server error")
		}
	}

	resp, err := mapper.StatusToStruct(envelope)
	if err != nil {
		loggerWithContext(ctx).WithError(err).Error("Status encoding failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return resp, nil
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PixAccessServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetStatusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PixAccessServer).GetStatus(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func healthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PixAccessServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: HealthMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PixAccessServer).Health(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
