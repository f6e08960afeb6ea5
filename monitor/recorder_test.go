package monitor

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xshoji/go-img-reg/registration"
)

func recordSamples(r *Recorder) {
	r.OnIteration(registration.IterationEvent{Level: 0, Iteration: 0, Value: 10, StepLength: 1})
	r.OnIteration(registration.IterationEvent{Level: 0, Iteration: 1, Value: 5, StepLength: 1})
	r.OnIteration(registration.IterationEvent{Level: 1, Iteration: 0, Value: 2.5, StepLength: 0.5})
}

func TestRecorderLevels(t *testing.T) {
	r := NewRecorder()
	recordSamples(r)

	want := [][]Sample{
		{{Level: 0, Iteration: 0, Value: 10, StepLength: 1}, {Level: 0, Iteration: 1, Value: 5, StepLength: 1}},
		{{Level: 1, Iteration: 0, Value: 2.5, StepLength: 0.5}},
	}
	if diff := cmp.Diff(want, r.Levels()); diff != "" {
		t.Errorf("Levels() mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, r.Samples(), 3)
}

func TestRecorderWriteCSV(t *testing.T) {
	r := NewRecorder()
	recordSamples(r)

	var buf bytes.Buffer
	require.NoError(t, r.WriteCSV(&buf))

	want := "level,iteration,value,step\n0,0,10,1\n0,1,5,1\n1,0,2.5,0.5\n"
	assert.Equal(t, want, buf.String())
}

func TestRecorderSavePlot(t *testing.T) {
	tests := []struct {
		name    string
		record  bool
		wantErr error
	}{
		{"正常系: PNGを出力", true, nil},
		{"異常系: 記録なし", false, ErrNoSamples},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecorder()
			if tt.record {
				recordSamples(r)
			}
			path := filepath.Join(t.TempDir(), "convergence.png")

			err := r.SavePlot(path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Greater(t, info.Size(), int64(0))
		})
	}
}
