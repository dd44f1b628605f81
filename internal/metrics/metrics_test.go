package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunGathersObservations(t *testing.T) {
	r := NewRun()
	r.ObserveFetch("misp", 12)
	r.ObserveFetch("misp-secondary", 3)
	r.ObserveRender(6)
	r.NotifyFailed()
	r.Finish(42 * time.Second)

	families, err := r.registry.Gather()
	require.NoError(t, err)

	byName := make(map[string]float64)
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			v := m.GetGauge().GetValue() + m.GetCounter().GetValue()
			byName[fam.GetName()] += v
		}
	}
	assert.Equal(t, float64(15), byName["railreport_records_fetched_total"])
	assert.Equal(t, float64(6), byName["railreport_report_pages"])
	assert.Equal(t, float64(42), byName["railreport_run_duration_seconds"])
	assert.Equal(t, float64(1), byName["railreport_notify_failures_total"])
	assert.Greater(t, byName["railreport_last_success_timestamp_seconds"], float64(0))
}

func TestPushDisabledWithoutURL(t *testing.T) {
	assert.NoError(t, NewRun().Push("", "railreport"))
}
