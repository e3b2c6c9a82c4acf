package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	require.NotNil(t, m)

	m.HandshakesCompleted.Inc()
	m.PacketsRelayed.Add(3)
	m.SessionsActive.Set(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandshakesCompleted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PacketsRelayed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsActive))
}

func TestRecordDrop(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.RecordDrop(DropNoSession)
	m.RecordDrop(DropNoSession)
	m.RecordDrop(DropDecrypt)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PacketsDropped.WithLabelValues(DropNoSession)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PacketsDropped.WithLabelValues(DropDecrypt)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PacketsDropped.WithLabelValues(DropPeerOffline)))
}

func TestDefault_Singleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
