package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveBackend(t *testing.T) {
	before := testutil.ToFloat64(backendCalls.WithLabelValues("score", "webhook", "error"))

	ObserveBackend("score", "webhook", time.Now(), errors.New("502"))
	ObserveBackend("score", "webhook", time.Now(), nil)

	assert.Equal(t, before+1, testutil.ToFloat64(backendCalls.WithLabelValues("score", "webhook", "error")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(backendCalls.WithLabelValues("score", "webhook", "ok")), 1.0)
}

func TestIncFiles(t *testing.T) {
	before := testutil.ToFloat64(filesIngested.WithLabelValues("cv", "rejected"))
	IncFiles("cv", "rejected", 3)
	assert.Equal(t, before+3, testutil.ToFloat64(filesIngested.WithLabelValues("cv", "rejected")))
}

func TestRegisterIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
		ObserveCandidates(4)
		ObserveRequirements("parsed", 2)
	})
}
