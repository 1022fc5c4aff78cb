package smtp

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/bulkmail/mail"
)

var tracer = otel.Tracer("github.com/pure-golang/bulkmail/mail/smtp")

func recordResult(span trace.Span, res mail.Result) {
	if res.OK {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(res.Err)
	span.SetStatus(codes.Error, res.Error())
}
