package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName scopes spans emitted by this service.
const TracerName = "github.com/spec-kit/support-agent"

// Tracer returns the global tracer. Spans are no-ops until an SDK provider is installed.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
