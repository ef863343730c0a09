package metrics_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoelho/xmlhub"
	"github.com/jacoelho/xmlhub/metrics"
)

func TestMetricsObserveDocuments(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	handlers := xmlhub.NewRegistry()
	require.NoError(t, handlers.Register("b", func() xmlhub.Handler { return xmlhub.NullHandler{} }))
	hub, err := xmlhub.New(handlers, xmlhub.WithObserver(m))
	require.NoError(t, err)

	require.NoError(t, hub.Process(context.Background(), strings.NewReader(`<a><b/><b/></a>`)))
	require.Error(t, hub.Process(context.Background(), strings.NewReader(`<a></a></a>`)))
	require.Error(t, hub.Process(context.Background(), strings.NewReader(``)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Documents.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Documents.WithLabelValues("malformed-input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("xml-unbalanced-end")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("xml-no-root")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Elements))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HandlerScopes))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProcessLatency))

	count, err := testutil.GatherAndCount(reg, "xmlhub_documents_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetricsNilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() { m.DocumentProcessed(xmlhub.Report{}) })
}
