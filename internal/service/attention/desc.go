package attention

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "attention.v2.AttentionService"

// Server is the AttentionService API. Requests and responses are
// google.protobuf.Struct documents; see requests.go for their fields.
type Server interface {
	RegisterUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RegisterDevice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddFriend(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RenameFriend(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetFriendName(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveFriend(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetUserInfo(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteUserData(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendAlert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AlertRead(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes AttentionService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		unary("RegisterUser", Server.RegisterUser),
		unary("RegisterDevice", Server.RegisterDevice),
		unary("AddFriend", Server.AddFriend),
		unary("RenameFriend", Server.RenameFriend),
		unary("GetFriendName", Server.GetFriendName),
		unary("RemoveFriend", Server.RemoveFriend),
		unary("GetUserInfo", Server.GetUserInfo),
		unary("DeleteUserData", Server.DeleteUserData),
		unary("SendAlert", Server.SendAlert),
		unary("AlertRead", Server.AlertRead),
	},
	Streams: []grpc.StreamDesc{},
}

// FullMethod returns the gRPC path of a method of this service.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary(
	name string,
	call func(Server, context.Context, *structpb.Struct) (*structpb.Struct, error),
) grpc.MethodDesc {
	info := &grpc.UnaryServerInfo{FullMethod: FullMethod(name)}
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(Server), ctx, in)
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(Server), ctx, req.(*structpb.Struct))
			}
			callInfo := *info
			callInfo.Server = srv
			return interceptor(ctx, in, &callInfo, handler)
		},
	}
}
