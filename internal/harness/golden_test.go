package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Scenarios(t *testing.T) {
	paths, err := FindScenarios(scenariosDir, "")
	require.NoError(t, err)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			// Regenerate with: go test ./internal/harness -run TestRunWithGolden -update
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestTraceSnapshot_Marshal(t *testing.T) {
	snapshot := TraceSnapshot{
		ScenarioName: "snapshot",
		Trace: []TraceEvent{
			{Seq: 1, Type: EventExecute, Sender: "alice", Variant: "swap", Code: "SWAP_NOT_OPEN"},
			{Seq: 2, Type: EventDispatch, ID: 1, Call: "swap", Contract: "pool", Flow: "flow-0002", Outcome: "error", Error: "pool paused"},
		},
	}

	data, err := snapshot.Marshal()
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"snapshot","trace":[`+
			`{"code":"SWAP_NOT_OPEN","sender":"alice","seq":1,"type":"execute","variant":"swap"},`+
			`{"call":"swap","contract":"pool","error":"pool paused","flow":"flow-0002","id":1,"outcome":"error","seq":2,"type":"dispatch"}]}`,
		string(data))
}

func TestTraceSnapshot_EmptyTrace(t *testing.T) {
	snapshot := TraceSnapshot{ScenarioName: "empty"}

	data, err := snapshot.Marshal()
	require.NoError(t, err)
	assert.Equal(t, `{"scenario_name":"empty","trace":[]}`, string(data))
}

func TestTraceSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenariosDir, "compensate_on_failure.yaml"))
	require.NoError(t, err)

	var snapshots []string
	for i := 0; i < 3; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		snapshot := TraceSnapshot{ScenarioName: scenario.Name, Trace: result.Trace}
		data, err := snapshot.Marshal()
		require.NoError(t, err)
		snapshots = append(snapshots, string(data))
	}
	assert.Equal(t, snapshots[0], snapshots[1])
	assert.Equal(t, snapshots[1], snapshots[2])
}
