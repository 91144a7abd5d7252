package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"droneSurveyManagement/internal/broadcast"
	"droneSurveyManagement/internal/mission"
	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

const serviceName = "survey.v1.MissionControl"

// Full method names.
const (
	MethodGetMission  = "/" + serviceName + "/GetMission"
	MethodListActive  = "/" + serviceName + "/ListActiveMissions"
	MethodTransition  = "/" + serviceName + "/Transition"
	MethodWatch       = "/" + serviceName + "/Watch"
	healthCheckMethod = "/grpc.health.v1.Health/Check"
)

// MissionControlServer is the gRPC control plane. Requests and responses
// are google.protobuf.Struct values shaped like the REST JSON.
type MissionControlServer interface {
	GetMission(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListActiveMissions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Watch(*structpb.Struct, grpc.ServerStream) error
}

// MissionControlServiceDesc describes survey.v1.MissionControl.
var MissionControlServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MissionControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetMission", Handler: unaryHandler(MethodGetMission, MissionControlServer.GetMission)},
		{MethodName: "ListActiveMissions", Handler: unaryHandler(MethodListActive, MissionControlServer.ListActiveMissions)},
		{MethodName: "Transition", Handler: unaryHandler(MethodTransition, MissionControlServer.Transition)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "survey/v1/mission_control.proto",
}

type unaryMethod func(MissionControlServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MissionControlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MissionControlServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MissionControlServer).Watch(in, stream)
}

// MissionControl implements MissionControlServer over the mission engine.
type MissionControl struct {
	Repo       repository.Repository
	Engine     *mission.Engine
	Registry   *broadcast.Registry
	SendBuffer int
	// Done ends open Watch streams when closed. Nil leaves them to their clients.
	Done <-chan struct{}
}

var _ MissionControlServer = (*MissionControl)(nil)

func (s *MissionControl) GetMission(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := missionID(in)
	if err != nil {
		return nil, err
	}
	m, err := s.Repo.GetMission(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(m)
}

func (s *MissionControl) ListActiveMissions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	ms, err := s.Repo.ListMissionsByStatus(ctx, models.MissionStatusInProgress)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(broadcast.MissionsActive(ms))
}

// Transition moves a mission to the requested status and broadcasts the
// change to observers.
func (s *MissionControl) Transition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := missionID(in)
	if err != nil {
		return nil, err
	}
	target := models.MissionStatus(in.GetFields()["status"].GetStringValue())
	if !target.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown status %q", target)
	}
	res, err := s.Engine.Transition(ctx, id, target)
	if err != nil {
		return nil, toStatus(err)
	}
	s.Registry.PublishResult(ctx, res)
	return toStruct(res.Mission)
}

// Watch streams the same events a WebSocket observer subscribed to the
// mission receives, plus fleet events, until the client goes away.
func (s *MissionControl) Watch(in *structpb.Struct, stream grpc.ServerStream) error {
	id, err := missionID(in)
	if err != nil {
		return err
	}
	ctx := stream.Context()
	if _, err := s.Repo.GetMission(ctx, id); err != nil {
		return toStatus(err)
	}
	buf := s.SendBuffer
	if buf <= 0 {
		buf = 64
	}
	sink := &streamSink{id: "grpc:" + uuid.NewString(), events: make(chan broadcast.Event, buf), done: make(chan struct{})}
	s.Registry.Register(sink)
	defer s.Registry.Unregister(sink.id)
	if err := s.Registry.Subscribe(ctx, sink.id, id); err != nil {
		return toStatus(err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.Done:
			return status.Error(codes.Unavailable, "server shutting down")
		case <-sink.done:
			return status.Error(codes.ResourceExhausted, "watch stream fell behind")
		case ev := <-sink.events:
			out, err := toStruct(ev)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		}
	}
}

// streamSink queues events for one Watch stream.
type streamSink struct {
	id     string
	events chan broadcast.Event
	done   chan struct{}
	once   sync.Once
}

func (s *streamSink) ID() string { return s.id }

func (s *streamSink) Send(ev broadcast.Event) error {
	select {
	case s.events <- ev:
		return nil
	default:
	}
	s.once.Do(func() { close(s.done) })
	return errors.New("watch stream queue full")
}

func missionID(in *structpb.Struct) (int64, error) {
	v, ok := in.GetFields()["missionId"]
	if !ok {
		return 0, status.Error(codes.InvalidArgument, "missionId is required")
	}
	f := v.GetNumberValue()
	if f <= 0 || f != math.Trunc(f) {
		return 0, status.Errorf(codes.InvalidArgument, "invalid missionId %v", f)
	}
	return int64(f), nil
}

// toStruct converts v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return out, nil
}

// toStatus maps engine and repository errors to gRPC codes.
func toStatus(err error) error {
	var verr *mission.ValidationError
	var serr *mission.StorageError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, mission.ErrInvalidTransition),
		errors.Is(err, mission.ErrDroneUnavailable),
		errors.Is(err, mission.ErrProgressRegression):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &serr):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Errorf(codes.Internal, "%v", err)
	}
}
