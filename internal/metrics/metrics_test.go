package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestCounterVecsAcceptLabels(t *testing.T) {
	before := testutil.ToFloat64(Loads.WithLabelValues("ok"))
	Loads.WithLabelValues("ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Loads.WithLabelValues("ok")))

	before = testutil.ToFloat64(DebounceEvents.WithLabelValues("settled"))
	DebounceEvents.WithLabelValues("settled").Add(2)
	assert.Equal(t, before+2, testutil.ToFloat64(DebounceEvents.WithLabelValues("settled")))
}
