package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/kwpulse/am"
	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/pulse/discovery"
)

// run executes args against a fresh root carrying the job and am commands.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "kwpulse", SilenceUsage: true, SilenceErrors: true}
	AddGlobalFlags(root)
	root.AddCommand(JobCmd, AmCmd, PulseCmd, UsageCmd, VersionCmd)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func isolateCLI(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("KWPULSE_OPENROUTER_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("KWPULSE_CATALOG_CACHE_BACKEND", "none")
	dbPath := filepath.Join(project, "kwpulse.db")
	t.Setenv("KWPULSE_DATABASE_PATH", dbPath)
	t.Chdir(project)
	am.Reset()
	t.Cleanup(am.Reset)
	return dbPath
}

func TestJobCommands_Lifecycle(t *testing.T) {
	isolateCLI(t)

	out, err := run(t, "job", "create",
		"--name", "sleep", "--strategy", "category", "--category", "Health & Fitness",
		"--country", "GB", "--searches", "3", "--interval", "30", "--cycles", "4",
		"--tag", "q3", "-o", "json")
	require.NoError(t, err)

	var job discovery.Job
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, discovery.StatusPending, job.Status)
	assert.Equal(t, "gb", job.Country)
	assert.Equal(t, 4, job.TotalCycles)

	out, err = run(t, "job", "ls", "--tag", "q3", "-o", "json")
	require.NoError(t, err)
	var jobs []discovery.Job
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)

	out, err = run(t, "job", "ls", "--tag", "other", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	out, err = run(t, "job", "show", job.ID, "-o", "json")
	require.NoError(t, err)
	var detail discovery.JobDetail
	require.NoError(t, json.Unmarshal([]byte(out), &detail))
	assert.Equal(t, "sleep", detail.Job.Name)
	assert.Empty(t, detail.Results)

	_, err = run(t, "job", "stop", job.ID)
	assert.True(t, errors.IsNotRunning(err))

	out, err = run(t, "job", "rm", job.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted job "+job.ID)

	_, err = run(t, "job", "show", job.ID)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestJobCreate_RejectsOutOfRange(t *testing.T) {
	isolateCLI(t)

	_, err := run(t, "job", "create", "--name", "x", "--searches", "11")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = run(t, "job", "create", "--name", "x", "--strategy", "weekly")
	require.Error(t, err)
	assert.Contains(t, FormatError(err), "hint: use one of: random, category, trending")
}

func TestAmInitAndCheck(t *testing.T) {
	isolateCLI(t)
	path := filepath.Join(t.TempDir(), "kwpulse.toml")

	out, err := run(t, "am", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = run(t, "am", "check", path, "-o", "json")
	require.NoError(t, err)

	_, err = run(t, "am", "init", "--path", path)
	assert.Error(t, err)
}

func TestVersionCommand_JSON(t *testing.T) {
	out, err := run(t, "version", "-o", "json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info["version"])
	assert.NotEmpty(t, info["go_version"])
}

func TestUsageCommand_EmptyLedger(t *testing.T) {
	isolateCLI(t)
	t.Setenv("KWPULSE_BUDGET_DAILY_USD", "2.5")

	out, err := run(t, "usage", "--since", "48h", "-o", "json")
	require.NoError(t, err)

	var report struct {
		Totals struct {
			TotalRequests int `json:"total_requests"`
		} `json:"totals"`
		Models []any `json:"models"`
		Budget struct {
			DailySpend float64 `json:"daily_spend"`
			Limits     struct {
				DailyUSD float64 `json:"daily_usd"`
			} `json:"limits"`
		} `json:"budget"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Zero(t, report.Totals.TotalRequests)
	assert.Empty(t, report.Models)
	assert.Equal(t, 2.5, report.Budget.Limits.DailyUSD)
}

func TestCommands_ConfigErrorsCarryHint(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		args    []string
		invalid bool
	}{
		{"pulse start with negative budget", "-1", []string{"pulse", "start", "--no-metrics"}, true},
		{"job ls with negative budget", "-1", []string{"job", "ls"}, true},
		{"pulse start with unparsable budget", "lots", []string{"pulse", "start", "--no-metrics"}, false},
		{"am show with unparsable budget", "lots", []string{"am", "show"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateCLI(t)
			t.Setenv("KWPULSE_BUDGET_DAILY_USD", tt.value)

			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.invalid, errors.IsInvalidRequestError(err))
			assert.Contains(t, FormatError(err), "am check")
			assert.NotEmpty(t, errors.GetStack(err))
		})
	}
}
