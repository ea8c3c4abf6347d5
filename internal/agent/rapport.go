package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jmeijer/socmon/internal/domain"
	"github.com/jmeijer/socmon/internal/report"
)

// RapportAgent executes report jobs: assemble the dashboard feed for the
// requested period, render it in the requested format, and hand the
// artifact to the sink.
type RapportAgent struct {
	feed      *report.Feed
	renderers map[domain.ReportFormat]report.Renderer
	sink      report.Sink
	logger    *zap.Logger
}

func NewRapportAgent(feed *report.Feed, renderers map[domain.ReportFormat]report.Renderer, sink report.Sink, logger *zap.Logger) *RapportAgent {
	return &RapportAgent{
		feed:      feed,
		renderers: renderers,
		sink:      sink,
		logger:    logger,
	}
}

func (a *RapportAgent) Name() string { return "rapport-agent" }

func (a *RapportAgent) Kinds() []domain.JobKind {
	return []domain.JobKind{domain.JobKindReport}
}

func (a *RapportAgent) Handle(ctx context.Context, job *domain.Job) error {
	var payload domain.ReportPayload
	if err := decodePayload(job.Payload, &payload); err != nil {
		return &PermanentFailure{Err: err}
	}

	renderer, ok := a.renderers[payload.Format]
	if !ok {
		// A validated format with no renderer wired is a deployment
		// gap; retrying cannot fix it.
		return &PermanentFailure{Err: fmt.Errorf("no renderer configured for format %q", payload.Format)}
	}

	for _, month := range reportMonths(payload) {
		data, err := a.feed.Generate(ctx, month)
		if err != nil {
			return fmt.Errorf("generate dashboard data for %s: %w", month, err)
		}
		if len(data.Accounts) == 0 {
			if payload.Type == domain.ReportTypeYearly {
				continue
			}
			// The analyse job for this month may still be queued or
			// running; the attempt ceiling buries the report if the
			// metrics never arrive.
			return &RetriableFailure{Err: fmt.Errorf("no metrics computed for %s", month)}
		}

		artifact, err := renderer.Render(ctx, data)
		if err != nil {
			return &PermanentFailure{Err: fmt.Errorf("render %s report for %s: %w", payload.Format, month, err)}
		}
		location, err := a.sink.Put(ctx, artifact)
		if err != nil {
			return fmt.Errorf("store artifact %s: %w", artifact.Name, err)
		}
		a.logger.Info("report artifact written",
			zap.String("month", month),
			zap.String("format", string(payload.Format)),
			zap.String("location", location))
	}
	return nil
}

// reportMonths expands a report payload into the month keys it covers.
// A yearly report walks all twelve months; months without data are
// skipped at generation time.
func reportMonths(payload domain.ReportPayload) []string {
	if payload.Type == domain.ReportTypeMonthly {
		return []string{payload.Month}
	}
	months := make([]string, 0, 12)
	for m := 1; m <= 12; m++ {
		months = append(months, fmt.Sprintf("%04d-%02d", payload.Year, m))
	}
	return months
}

// DefaultRenderers wires the formats that ship in-box. The dashboard
// feed is JSON; the Excel path is covered by CSV, which spreadsheet
// tools open natively. PDF needs a layout engine and stays unwired.
func DefaultRenderers() map[domain.ReportFormat]report.Renderer {
	return map[domain.ReportFormat]report.Renderer{
		domain.ReportFormatDashboard: report.JSONRenderer{},
		domain.ReportFormatExcel:     report.CSVRenderer{},
	}
}
