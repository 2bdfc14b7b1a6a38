package rpc

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/plant-trainer/internal/equipment"
	"github.com/signalsfoundry/plant-trainer/internal/export"
	"github.com/signalsfoundry/plant-trainer/internal/logging"
	"github.com/signalsfoundry/plant-trainer/internal/sim"
	"github.com/signalsfoundry/plant-trainer/internal/tutorial"
	"github.com/signalsfoundry/plant-trainer/model"
)

// TrainerService implements TrainerServer over a simulation session.
type TrainerService struct {
	session *sim.Session
	log     logging.Logger
}

// NewTrainerService returns the gRPC facade for session.
func NewTrainerService(session *sim.Session, log logging.Logger) *TrainerService {
	if log == nil {
		log = logging.Noop()
	}
	return &TrainerService{session: session, log: log}
}

func (s *TrainerService) GetState(ctx context.Context, _ *Empty) (*StateResponse, error) {
	return &StateResponse{Frame: s.session.CurrentFrame()}, nil
}

func (s *TrainerService) IssueCommand(ctx context.Context, req *CommandRequest) (*CommandResponse, error) {
	if req == nil || req.EquipmentID == "" {
		return nil, ToStatusError(fmt.Errorf("%w: equipmentId is required", ErrInvalidRequest))
	}
	verb, ok := model.ParseVerb(req.Verb)
	if !ok {
		return nil, ToStatusError(fmt.Errorf("%w: unknown verb %q", ErrInvalidRequest, req.Verb))
	}
	res, err := s.session.IssueCommand(ctx, equipment.Command{
		EquipmentID: req.EquipmentID,
		Verb:        verb,
		Value:       req.Value,
	})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return &CommandResponse{
		Unit:   res.Unit,
		Before: res.Before,
		After:  res.After,
		NoOp:   res.NoOp,
		Event:  res.Event,
	}, nil
}

func (s *TrainerService) SetSpeed(ctx context.Context, req *SpeedRequest) (*SpeedResponse, error) {
	if req == nil {
		return nil, ToStatusError(fmt.Errorf("%w: multiplier is required", ErrInvalidRequest))
	}
	if err := s.session.SetSpeed(ctx, req.Multiplier); err != nil {
		return nil, ToStatusError(err)
	}
	return &SpeedResponse{Multiplier: s.session.Speed()}, nil
}

func (s *TrainerService) ListCatalog(ctx context.Context, _ *Empty) (*CatalogResponse, error) {
	return &CatalogResponse{
		Entries:   s.session.Catalog(),
		Tutorials: s.session.TutorialSummaries(),
		Scenarios: s.session.ScenarioSummaries(),
	}, nil
}

func (s *TrainerService) StartScenario(ctx context.Context, req *ScenarioRequest) (*ScenarioResponse, error) {
	if req == nil || req.ID == "" {
		return nil, ToStatusError(fmt.Errorf("%w: scenario id is required", ErrInvalidRequest))
	}
	active, err := s.session.StartScenario(ctx, req.ID)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return &ScenarioResponse{Active: active}, nil
}

func (s *TrainerService) StopScenario(ctx context.Context, _ *Empty) (*StopScenarioResponse, error) {
	stopped, err := s.session.StopScenario(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return &StopScenarioResponse{Stopped: stopped}, nil
}

func (s *TrainerService) StartTutorial(ctx context.Context, req *TutorialRequest) (*TutorialResponse, error) {
	if req == nil || req.ID == "" {
		return nil, ToStatusError(fmt.Errorf("%w: tutorial id is required", ErrInvalidRequest))
	}
	return tutorialResponse(s.session.StartTutorial(ctx, req.ID))
}

func (s *TrainerService) NextStep(ctx context.Context, _ *Empty) (*TutorialResponse, error) {
	return tutorialResponse(s.session.NextStep(ctx))
}

func (s *TrainerService) BackStep(ctx context.Context, _ *Empty) (*TutorialResponse, error) {
	return tutorialResponse(s.session.BackStep(ctx))
}

func (s *TrainerService) FinishTutorial(ctx context.Context, _ *Empty) (*TutorialResponse, error) {
	return tutorialResponse(s.session.FinishTutorial(ctx))
}

func (s *TrainerService) ExitTutorial(ctx context.Context, _ *Empty) (*TutorialResponse, error) {
	return &TutorialResponse{View: s.session.ExitTutorial(ctx)}, nil
}

func (s *TrainerService) ReportUIEvent(ctx context.Context, req *UIEventRequest) (*UIEventResponse, error) {
	if req == nil || req.EventID == "" {
		return nil, ToStatusError(fmt.Errorf("%w: eventId is required", ErrInvalidRequest))
	}
	matched, view, err := s.session.ReportUIEvent(ctx, req.EventID)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return &UIEventResponse{Matched: matched, View: view}, nil
}

func (s *TrainerService) Acknowledge(ctx context.Context, req *AcknowledgeRequest) (*AlarmResponse, error) {
	if req == nil || req.AlarmID == "" {
		return nil, ToStatusError(fmt.Errorf("%w: alarmId is required", ErrInvalidRequest))
	}
	rec, err := s.session.Acknowledge(ctx, req.AlarmID)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return &AlarmResponse{Alarm: rec}, nil
}

func (s *TrainerService) ListAlarms(ctx context.Context, _ *Empty) (*AlarmsResponse, error) {
	return &AlarmsResponse{
		Active:  s.session.ActiveAlarms(),
		History: s.session.AlarmHistory(),
	}, nil
}

func (s *TrainerService) ListHistory(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	limit := -1
	if req != nil && req.Limit > 0 {
		limit = req.Limit
	}
	return &HistoryResponse{Events: s.session.History(limit)}, nil
}

func (s *TrainerService) ClearHistory(ctx context.Context, _ *Empty) (*ClearHistoryResponse, error) {
	return &ClearHistoryResponse{Removed: s.session.ClearHistory(ctx)}, nil
}

func (s *TrainerService) ListTrendTags(ctx context.Context, _ *Empty) (*TrendTagsResponse, error) {
	return &TrendTagsResponse{Tags: s.session.TrendTags()}, nil
}

func (s *TrainerService) GetTrend(ctx context.Context, req *TrendRequest) (*TrendResponse, error) {
	if req == nil || req.Tag == "" {
		return nil, ToStatusError(fmt.Errorf("%w: tag is required", ErrInvalidRequest))
	}
	points, err := s.session.Trends(req.Tag)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return &TrendResponse{Tag: req.Tag, Points: points}, nil
}

func (s *TrainerService) ExportHistory(ctx context.Context, req *ExportRequest) (*ExportResponse, error) {
	var name string
	if req != nil {
		name = req.Format
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		return nil, ToStatusError(err)
	}
	data, err := s.session.Export(format)
	if err != nil {
		logging.LoggerFromContext(ctx, s.log).Error(ctx, "export failed",
			logging.String("format", string(format)),
			logging.Err(err),
		)
		return nil, ToStatusError(err)
	}
	return &ExportResponse{Format: string(format), ContentType: format.ContentType(), Data: data}, nil
}

// WatchState streams every published frame until the client goes away or
// the session shuts down. A slow client misses frames rather than stalling
// the simulation.
func (s *TrainerService) WatchState(_ *Empty, stream TrainerWatchStateServer) error {
	ctx := stream.Context()
	log := logging.LoggerFromContext(ctx, s.log)
	sub := s.session.Subscribe(logging.OperationIDFromContext(ctx))
	defer s.session.Unsubscribe(sub)
	log.Info(ctx, "state observer connected")

	for {
		select {
		case <-ctx.Done():
			log.Info(ctx, "state observer disconnected")
			return nil
		case f, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := stream.Send(&f); err != nil {
				log.Warn(ctx, "state stream send failed", logging.Err(err))
				return err
			}
		}
	}
}

func tutorialResponse(v tutorial.View, err error) (*TutorialResponse, error) {
	if err != nil {
		return nil, ToStatusError(err)
	}
	return &TutorialResponse{View: v}, nil
}
