package rpc

import (
	"context"

	"github.com/signalsfoundry/plant-trainer/internal/broadcast"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Client is a typed wrapper over a connection to the trainer service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection. Calls select the json codec
// themselves, so cc may be shared with other services.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens a plaintext connection to addr.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	return grpc.NewClient(addr, append(base, opts...)...)
}

// WithRequestID attaches an x-request-id that the server uses as the
// operation_id of the call.
func WithRequestID(ctx context.Context, id string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, requestIDMetadataKey, id)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetState(ctx context.Context, opts ...grpc.CallOption) (*StateResponse, error) {
	return invoke[StateResponse](ctx, c.cc, "GetState", &Empty{}, opts)
}

func (c *Client) IssueCommand(ctx context.Context, in *CommandRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	return invoke[CommandResponse](ctx, c.cc, "IssueCommand", in, opts)
}

func (c *Client) SetSpeed(ctx context.Context, in *SpeedRequest, opts ...grpc.CallOption) (*SpeedResponse, error) {
	return invoke[SpeedResponse](ctx, c.cc, "SetSpeed", in, opts)
}

func (c *Client) ListCatalog(ctx context.Context, opts ...grpc.CallOption) (*CatalogResponse, error) {
	return invoke[CatalogResponse](ctx, c.cc, "ListCatalog", &Empty{}, opts)
}

func (c *Client) StartScenario(ctx context.Context, in *ScenarioRequest, opts ...grpc.CallOption) (*ScenarioResponse, error) {
	return invoke[ScenarioResponse](ctx, c.cc, "StartScenario", in, opts)
}

func (c *Client) StopScenario(ctx context.Context, opts ...grpc.CallOption) (*StopScenarioResponse, error) {
	return invoke[StopScenarioResponse](ctx, c.cc, "StopScenario", &Empty{}, opts)
}

func (c *Client) StartTutorial(ctx context.Context, in *TutorialRequest, opts ...grpc.CallOption) (*TutorialResponse, error) {
	return invoke[TutorialResponse](ctx, c.cc, "StartTutorial", in, opts)
}

func (c *Client) NextStep(ctx context.Context, opts ...grpc.CallOption) (*TutorialResponse, error) {
	return invoke[TutorialResponse](ctx, c.cc, "NextStep", &Empty{}, opts)
}

func (c *Client) BackStep(ctx context.Context, opts ...grpc.CallOption) (*TutorialResponse, error) {
	return invoke[TutorialResponse](ctx, c.cc, "BackStep", &Empty{}, opts)
}

func (c *Client) FinishTutorial(ctx context.Context, opts ...grpc.CallOption) (*TutorialResponse, error) {
	return invoke[TutorialResponse](ctx, c.cc, "FinishTutorial", &Empty{}, opts)
}

func (c *Client) ExitTutorial(ctx context.Context, opts ...grpc.CallOption) (*TutorialResponse, error) {
	return invoke[TutorialResponse](ctx, c.cc, "ExitTutorial", &Empty{}, opts)
}

func (c *Client) ReportUIEvent(ctx context.Context, in *UIEventRequest, opts ...grpc.CallOption) (*UIEventResponse, error) {
	return invoke[UIEventResponse](ctx, c.cc, "ReportUIEvent", in, opts)
}

func (c *Client) Acknowledge(ctx context.Context, in *AcknowledgeRequest, opts ...grpc.CallOption) (*AlarmResponse, error) {
	return invoke[AlarmResponse](ctx, c.cc, "Acknowledge", in, opts)
}

func (c *Client) ListAlarms(ctx context.Context, opts ...grpc.CallOption) (*AlarmsResponse, error) {
	return invoke[AlarmsResponse](ctx, c.cc, "ListAlarms", &Empty{}, opts)
}

func (c *Client) ListHistory(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*HistoryResponse, error) {
	return invoke[HistoryResponse](ctx, c.cc, "ListHistory", in, opts)
}

func (c *Client) ClearHistory(ctx context.Context, opts ...grpc.CallOption) (*ClearHistoryResponse, error) {
	return invoke[ClearHistoryResponse](ctx, c.cc, "ClearHistory", &Empty{}, opts)
}

func (c *Client) ListTrendTags(ctx context.Context, opts ...grpc.CallOption) (*TrendTagsResponse, error) {
	return invoke[TrendTagsResponse](ctx, c.cc, "ListTrendTags", &Empty{}, opts)
}

func (c *Client) GetTrend(ctx context.Context, in *TrendRequest, opts ...grpc.CallOption) (*TrendResponse, error) {
	return invoke[TrendResponse](ctx, c.cc, "GetTrend", in, opts)
}

func (c *Client) ExportHistory(ctx context.Context, in *ExportRequest, opts ...grpc.CallOption) (*ExportResponse, error) {
	return invoke[ExportResponse](ctx, c.cc, "ExportHistory", in, opts)
}

// FrameStream receives frames from WatchState.
type FrameStream struct {
	grpc.ClientStream
}

// Recv blocks for the next frame. It returns io.EOF when the server ends the
// stream.
func (x *FrameStream) Recv() (*broadcast.Frame, error) {
	m := new(broadcast.Frame)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// WatchState opens the frame stream. The current frame arrives first.
func (c *Client) WatchState(ctx context.Context, opts ...grpc.CallOption) (*FrameStream, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &TrainerServiceDesc.Streams[0], fullMethod("WatchState"), opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &FrameStream{ClientStream: stream}, nil
}
