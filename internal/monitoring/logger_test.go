package monitoring

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/rehab.report/internal/session"
)

func TestSetLogger(t *testing.T) {
	// Save original logger
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	// Nil installs a no-op logger.
	called = false
	SetLogger(nil)
	Logf("test message")
	assert.False(t, called)
}

func TestStreamsFor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	tests := []struct {
		name             string
		debug, trace     bool
		wantDiag, wantTr bool
	}{
		{"quiet", false, false, false, false},
		{"debug", true, false, true, false},
		{"trace implies diag", false, true, true, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lw := StreamsFor(&buf, tt.debug, tt.trace)
			assert.NotNil(t, lw.Ops)
			assert.Equal(t, tt.wantDiag, lw.Diag != nil)
			assert.Equal(t, tt.wantTr, lw.Trace != nil)
		})
	}
}

func TestConfigure(t *testing.T) {
	var buf bytes.Buffer
	Configure(LogWriters{Ops: &buf})
	defer Configure(LogWriters{})

	obs := session.NewChannelObserver(1)
	obs.OnProgress(session.ProgressEvent{})
	obs.OnProgress(session.ProgressEvent{})

	assert.Contains(t, buf.String(), "[session] ")
	assert.Contains(t, buf.String(), "1 events dropped")
}
