// Package observer serves observer channels: a WebSocket per client for
// mission subscriptions and telemetry, and a fleet-wide SSE feed.
package observer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"droneSurveyManagement/internal/broadcast"
	"droneSurveyManagement/internal/mission"
	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

// Inbound message types.
const (
	TypeSubscribe   = "subscribe:mission"
	TypeUnsubscribe = "unsubscribe:mission"
	TypeTelemetry   = "telemetry:update"
)

// Error texts sent back to the client.
const (
	msgInvalidFormat    = "Invalid message format"
	msgInvalidTelemetry = "Invalid telemetry data"
	msgUnknownType      = "Unknown message type"
	msgMissionNotFound  = "Mission not found"
	msgStorageFailure   = "Temporarily unable to process message"
)

type inbound struct {
	Type       string          `json:"type"`
	MissionID  *int64          `json:"missionId"`
	Telemetry  json.RawMessage `json:"telemetry"`
	ActualPath json.RawMessage `json:"actualPath"`
}

// Protocol handles inbound messages for any sink registered with the registry.
type Protocol struct {
	registry *broadcast.Registry
	engine   *mission.Engine
	logger   *slog.Logger
}

func NewProtocol(registry *broadcast.Registry, engine *mission.Engine, logger *slog.Logger) *Protocol {
	return &Protocol{registry: registry, engine: engine, logger: logger}
}

// Handle processes one raw message from sink. Problems are reported to sink
// as error events; nothing here ends the connection.
func (p *Protocol) Handle(ctx context.Context, sink broadcast.Sink, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		p.reply(sink, broadcast.Error(msgInvalidFormat))
		return
	}
	switch msg.Type {
	case TypeSubscribe:
		if msg.MissionID == nil {
			p.reply(sink, broadcast.Error(msgInvalidFormat))
			return
		}
		if err := p.registry.Subscribe(ctx, sink.ID(), *msg.MissionID); err != nil {
			p.logger.Warn("subscribe failed", slog.String("sink", sink.ID()), slog.Int64("mission", *msg.MissionID), slog.Any("error", err))
			p.reply(sink, broadcast.Error(msgStorageFailure))
		}
	case TypeUnsubscribe:
		if msg.MissionID == nil {
			p.reply(sink, broadcast.Error(msgInvalidFormat))
			return
		}
		p.registry.Unsubscribe(sink.ID(), *msg.MissionID)
	case TypeTelemetry:
		p.handleTelemetry(ctx, sink, msg)
	default:
		p.reply(sink, broadcast.Error(msgUnknownType))
	}
}

func (p *Protocol) handleTelemetry(ctx context.Context, sink broadcast.Sink, msg inbound) {
	if len(msg.Telemetry) == 0 || string(msg.Telemetry) == "null" {
		p.reply(sink, broadcast.Error(msgInvalidTelemetry))
		return
	}
	var in mission.TelemetryInput
	if err := json.Unmarshal(msg.Telemetry, &in); err != nil {
		p.reply(sink, broadcast.Error(msgInvalidTelemetry))
		return
	}
	var actual *models.Path
	if len(msg.ActualPath) > 0 && string(msg.ActualPath) != "null" {
		path, err := models.ParsePath(msg.ActualPath)
		if err != nil {
			p.reply(sink, broadcast.Error(msgInvalidTelemetry))
			return
		}
		actual = &path
	}

	res, err := p.engine.IngestTelemetry(ctx, in, actual)
	if err != nil {
		var verr *mission.ValidationError
		switch {
		case errors.As(err, &verr):
			p.reply(sink, broadcast.Error(msgInvalidTelemetry))
		case errors.Is(err, repository.ErrNotFound):
			p.reply(sink, broadcast.Error(msgMissionNotFound))
		default:
			p.logger.Warn("telemetry ingest failed", slog.String("sink", sink.ID()), slog.Int64("mission", in.MissionID), slog.Any("error", err))
			p.reply(sink, broadcast.Error(msgStorageFailure))
		}
		return
	}
	p.registry.PublishResult(ctx, res)
	p.reply(sink, broadcast.TelemetryAck(res.Telemetry.ID))
}

func (p *Protocol) reply(sink broadcast.Sink, ev broadcast.Event) {
	if err := sink.Send(ev); err != nil {
		p.logger.Debug("reply dropped", slog.String("sink", sink.ID()), slog.Any("error", err))
	}
}
