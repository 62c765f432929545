package rendezvous

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/stereoloc/locator/internal/rendezvous"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
