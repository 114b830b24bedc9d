package api

import (
	"context"
	"encoding/json"
	"strings"

	"comer/internal/domain"
	"comer/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	availabilityServiceName = "comer.availability.v1.Availability"

	methodGetLedger = "/" + availabilityServiceName + "/GetLedger"
	methodReserve   = "/" + availabilityServiceName + "/Reserve"
	methodCancel    = "/" + availabilityServiceName + "/Cancel"
)

// BookingEngine is the part of the booking service exposed over gRPC.
type BookingEngine interface {
	Availability(ctx context.Context, experienceID string) (*models.Ledger, error)
	Reserve(ctx context.Context, req models.ReserveRequest) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID, userID string) (*models.Booking, error)
}

// AvailabilityServer is the gRPC Availability service. Requests and
// responses are google.protobuf.Struct documents.
type AvailabilityServer interface {
	GetLedger(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Reserve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type structCall func(AvailabilityServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name, fullMethod string, call structCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AvailabilityServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AvailabilityServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var availabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: availabilityServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetLedger", methodGetLedger, AvailabilityServer.GetLedger),
		unaryMethod("Reserve", methodReserve, AvailabilityServer.Reserve),
		unaryMethod("Cancel", methodCancel, AvailabilityServer.Cancel),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "comer/availability/v1/availability.proto",
}

func RegisterAvailabilityServer(s grpc.ServiceRegistrar, srv AvailabilityServer) {
	s.RegisterService(&availabilityServiceDesc, srv)
}

// AvailabilityService adapts the booking engine to the gRPC surface.
type AvailabilityService struct {
	engine BookingEngine
}

func NewAvailabilityService(engine BookingEngine) *AvailabilityService {
	return &AvailabilityService{engine: engine}
}

func (s *AvailabilityService) GetLedger(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	expID, err := requiredField(req, "experience_id")
	if err != nil {
		return nil, err
	}
	l, err := s.engine.Availability(ctx, expID)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(l)
}

func (s *AvailabilityService) Reserve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var (
		r   models.ReserveRequest
		err error
	)
	if r.ExperienceID, err = requiredField(req, "experience_id"); err != nil {
		return nil, err
	}
	if r.SlotID, err = requiredField(req, "slot_id"); err != nil {
		return nil, err
	}
	if r.UserID, err = requiredField(req, "user_id"); err != nil {
		return nil, err
	}
	r.UserEmail = stringField(req, "user_email")

	b, err := s.engine.Reserve(ctx, r)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(b)
}

func (s *AvailabilityService) Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	bookingID, err := requiredField(req, "booking_id")
	if err != nil {
		return nil, err
	}
	userID, err := requiredField(req, "user_id")
	if err != nil {
		return nil, err
	}

	if _, err := s.engine.Cancel(ctx, bookingID, userID); err != nil {
		return nil, grpcError(err)
	}
	return structpb.NewStruct(map[string]any{"cancelled": true})
}

func stringField(req *structpb.Struct, name string) string {
	return strings.TrimSpace(req.GetFields()[name].GetStringValue())
}

func requiredField(req *structpb.Struct, name string) (string, error) {
	v := stringField(req, name)
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	return v, nil
}

// toStruct converts v through its JSON form, so field names match the REST API.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// grpcError maps a domain error onto a status.
func grpcError(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code
	switch domain.CodeOf(err) {
	case domain.CodeNotFound:
		code = codes.NotFound
	case domain.CodeConflict:
		code = codes.AlreadyExists
	case domain.CodeExhausted, domain.CodeRateLimited:
		code = codes.ResourceExhausted
	case domain.CodeForbidden:
		code = codes.PermissionDenied
	case domain.CodeUnauthorized:
		code = codes.Unauthenticated
	case domain.CodeInvalidWindow, domain.CodeValidation:
		code = codes.InvalidArgument
	default:
		code = codes.Internal
	}
	return status.Error(code, domain.PublicMessage(err))
}

// AvailabilityClient calls the Availability service.
type AvailabilityClient struct {
	cc grpc.ClientConnInterface
}

func NewAvailabilityClient(cc grpc.ClientConnInterface) *AvailabilityClient {
	return &AvailabilityClient{cc: cc}
}

func (c *AvailabilityClient) call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AvailabilityClient) GetLedger(ctx context.Context, experienceID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, methodGetLedger, map[string]any{"experience_id": experienceID}, opts...)
}

func (c *AvailabilityClient) Reserve(ctx context.Context, experienceID, slotID, userID, email string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, methodReserve, map[string]any{
		"experience_id": experienceID,
		"slot_id":       slotID,
		"user_id":       userID,
		"user_email":    email,
	}, opts...)
}

func (c *AvailabilityClient) Cancel(ctx context.Context, bookingID, userID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, methodCancel, map[string]any{"booking_id": bookingID, "user_id": userID}, opts...)
}
