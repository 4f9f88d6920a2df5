package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/negsched/app"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		solveOpts.k, solveOpts.budget, solveOpts.publish, solveOpts.exclude = 0, 0, false, false
		solveOpts.format = "json"
	})
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

const scenarioYAML = `legs:
  - id: A
    origin: KTEB
    destination: KPBI
    earliest_departure: 2025-03-04T08:00:00Z
    latest_departure: 2025-03-04T08:00:00Z
    block_minutes: 60
    fleet_class: CJ3
  - id: B
    origin: KPBI
    destination: KTEB
    earliest_departure: 2025-03-04T09:15:00Z
    latest_departure: 2025-03-04T09:15:00Z
    block_minutes: 60
    fleet_class: CJ3
tails:
  - id: N301
    fleet_class: CJ3
    duty_cap_minutes: 600
policy:
  shift_buckets:
    - minutes: 30
      cost: 1
`

func writeScenario(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0o600))
	return path
}

func TestSolveCommand(t *testing.T) {
	out, err := execute(t, "solve", "-s", writeScenario(t), "-k", "1")
	require.NoError(t, err)

	var rep app.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "optimal", rep.Status)
	require.Len(t, rep.Solutions, 1)
	assert.Equal(t, 1.0, rep.Solutions[0].Cost)
	assert.Len(t, rep.Solutions[0].Explanations, 1)
}

func TestSolveCommandCSV(t *testing.T) {
	out, err := execute(t, "solve", "-s", writeScenario(t), "-k", "1", "--format", "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "rank,leg_id,kind"))
}

func TestSolvePublishNeedsBroker(t *testing.T) {
	_, err := execute(t, "solve", "-s", writeScenario(t), "--publish")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mqtt.broker")
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", "-s", writeScenario(t))
	require.NoError(t, err)
	assert.Contains(t, out, "ok: 2 legs, 1 tails")
}

func TestValidateReportsBrokenRecords(t *testing.T) {
	out, err := execute(t, "validate", "-s", filepath.Join("..", "core", "scenario", "testdata", "broken.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 problems found")
	assert.Contains(t, out, `"L2"`)
	assert.Contains(t, out, `"L3"`)
	assert.Contains(t, out, `"N2"`)
}
