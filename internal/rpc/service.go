package rpc

import (
	"context"

	"github.com/signalsfoundry/plant-trainer/internal/broadcast"
	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "planttrainer.v1.TrainerService"

// TrainerServer is the server API for the trainer service.
type TrainerServer interface {
	GetState(context.Context, *Empty) (*StateResponse, error)
	IssueCommand(context.Context, *CommandRequest) (*CommandResponse, error)
	SetSpeed(context.Context, *SpeedRequest) (*SpeedResponse, error)
	ListCatalog(context.Context, *Empty) (*CatalogResponse, error)
	StartScenario(context.Context, *ScenarioRequest) (*ScenarioResponse, error)
	StopScenario(context.Context, *Empty) (*StopScenarioResponse, error)
	StartTutorial(context.Context, *TutorialRequest) (*TutorialResponse, error)
	NextStep(context.Context, *Empty) (*TutorialResponse, error)
	BackStep(context.Context, *Empty) (*TutorialResponse, error)
	FinishTutorial(context.Context, *Empty) (*TutorialResponse, error)
	ExitTutorial(context.Context, *Empty) (*TutorialResponse, error)
	ReportUIEvent(context.Context, *UIEventRequest) (*UIEventResponse, error)
	Acknowledge(context.Context, *AcknowledgeRequest) (*AlarmResponse, error)
	ListAlarms(context.Context, *Empty) (*AlarmsResponse, error)
	ListHistory(context.Context, *HistoryRequest) (*HistoryResponse, error)
	ClearHistory(context.Context, *Empty) (*ClearHistoryResponse, error)
	ListTrendTags(context.Context, *Empty) (*TrendTagsResponse, error)
	GetTrend(context.Context, *TrendRequest) (*TrendResponse, error)
	ExportHistory(context.Context, *ExportRequest) (*ExportResponse, error)
	WatchState(*Empty, TrainerWatchStateServer) error
}

// TrainerWatchStateServer is the server side of the WatchState stream.
type TrainerWatchStateServer interface {
	Send(*broadcast.Frame) error
	grpc.ServerStream
}

type watchStateServer struct {
	grpc.ServerStream
}

func (x *watchStateServer) Send(f *broadcast.Frame) error {
	return x.ServerStream.SendMsg(f)
}

// RegisterTrainerServer registers srv on s.
func RegisterTrainerServer(s grpc.ServiceRegistrar, srv TrainerServer) {
	s.RegisterService(&TrainerServiceDesc, srv)
}

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

func unary[Req, Resp any](name string, call func(TrainerServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TrainerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(TrainerServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchStateHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TrainerServer).WatchState(in, &watchStateServer{stream})
}

// TrainerServiceDesc describes the trainer service for grpc.Server. Messages
// travel with the json codec.
var TrainerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TrainerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetState", TrainerServer.GetState),
		unary("IssueCommand", TrainerServer.IssueCommand),
		unary("SetSpeed", TrainerServer.SetSpeed),
		unary("ListCatalog", TrainerServer.ListCatalog),
		unary("StartScenario", TrainerServer.StartScenario),
		unary("StopScenario", TrainerServer.StopScenario),
		unary("StartTutorial", TrainerServer.StartTutorial),
		unary("NextStep", TrainerServer.NextStep),
		unary("BackStep", TrainerServer.BackStep),
		unary("FinishTutorial", TrainerServer.FinishTutorial),
		unary("ExitTutorial", TrainerServer.ExitTutorial),
		unary("ReportUIEvent", TrainerServer.ReportUIEvent),
		unary("Acknowledge", TrainerServer.Acknowledge),
		unary("ListAlarms", TrainerServer.ListAlarms),
		unary("ListHistory", TrainerServer.ListHistory),
		unary("ClearHistory", TrainerServer.ClearHistory),
		unary("ListTrendTags", TrainerServer.ListTrendTags),
		unary("GetTrend", TrainerServer.GetTrend),
		unary("ExportHistory", TrainerServer.ExportHistory),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchState",
			Handler:       watchStateHandler,
			ServerStreams: true,
		},
	},
	Metadata: "planttrainer/v1/trainer",
}
