package submit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/logger"
	"github.com/hpungsan/leadcap/internal/observability"
)

// Result is the outcome of one submission attempt. ID is set whenever the
// sink assigned the lead an identity, including on a failed attempt whose
// record was stored before the failure.
type Result struct {
	Success bool
	ID      string
	// Lead is the record that was sent, including the closing message.
	Lead *contact.Lead
}

// Controller builds leads and sends them to a sink.
type Controller struct {
	sink   Sink
	log    *logger.Logger
	source string
}

// NewController returns a controller sending to sink. source tags every
// lead with where it was captured.
func NewController(sink Sink, log *logger.Logger, source string) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{sink: sink, log: log, source: source}
}

// Submit sends one lead. Failures are reported and returned as an
// unsuccessful Result, never as an error.
func (c *Controller) Submit(ctx context.Context, in Input) Result {
	ctx, span := observability.Tracer().Start(ctx, "leadcap.submit")
	defer span.End()

	lead := BuildLead(in, c.source)
	attrs := []attribute.KeyValue{
		attribute.Int("lead.fields", len(lead.Fields)),
		attribute.Bool("lead.complete", lead.IsComplete),
		attribute.Bool("lead.abandoned", lead.IsAbandoned),
		attribute.Bool("lead.resubmission", lead.RefID != ""),
	}
	span.SetAttributes(attrs...)

	if c.sink == nil {
		c.fail(span, lead, errors.NewNotConfigured("lead sink"), attrs)
		return Result{Lead: lead}
	}

	res, err := c.sink.Send(ctx, lead, Extras{Channel: in.Channel, CurrentURL: in.CurrentURL})
	if err == nil && res.Status != StatusSuccess {
		err = errors.NewSubmissionFailed(res.Status, res.Message)
	}
	if res.RefID != "" {
		lead.RefID = res.RefID
	}
	if err != nil {
		c.fail(span, lead, err, attrs)
		return Result{ID: res.RefID, Lead: lead}
	}

	span.SetAttributes(attribute.String("lead.ref_id", lead.RefID))
	c.log.Info("lead submitted",
		"ref_id", lead.RefID,
		"session_id", lead.SessionID,
		"fields", len(lead.Fields),
		"complete", lead.IsComplete,
		"abandoned", lead.IsAbandoned,
	)
	return Result{Success: true, ID: lead.RefID, Lead: lead}
}

func (c *Controller) fail(span trace.Span, lead *contact.Lead, err error, attrs []attribute.KeyValue) {
	observability.RecordFailure(span, err, attrs...)
	c.log.Error("lead submission failed",
		"error", err,
		"ref_id", lead.RefID,
		"session_id", lead.SessionID,
		"fields", len(lead.Fields),
	)
}
