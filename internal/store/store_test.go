package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/pageprobe/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport(id string, started time.Time) *types.RunReport {
	return &types.RunReport{
		ID:         id,
		BaseURL:    "http://localhost:3000",
		StartedAt:  started,
		FinishedAt: started.Add(12 * time.Second),
		State:      types.StateClosed,
		Login:      &types.LoginOutcome{Success: true, ResultingURL: "http://localhost:3000/admin"},
		Results: []types.ProbeResult{
			{
				Target:     "admin",
				Path:       "/admin",
				URL:        "http://localhost:3000/admin",
				Status:     200,
				Matched:    []string{"heading"},
				Screenshot: "screenshots/admin.png",
				Success:    true,
				Duration:   1500 * time.Millisecond,
			},
			{
				Target:     "staff",
				Path:       "/admin/staff-unified",
				Status:     200,
				Missing:    []string{"table", "tabs"},
				Screenshot: "screenshots/admin-staff-unified.png",
				Partial:    true,
				Message:    "table: selector not found: table",
				Duration:   10 * time.Second,
			},
		},
	}
}

func TestSaveRun_ListRuns(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveRun(sampleReport(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := s.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID, "newest first")
	assert.Equal(t, "run-1", runs[1].ID)

	r := runs[0]
	assert.Equal(t, "http://localhost:3000", r.BaseURL)
	assert.Equal(t, types.StateClosed, r.State)
	assert.True(t, r.LoggedIn)
	assert.Equal(t, 1, r.Passed)
	assert.Equal(t, 1, r.Failed)
	assert.Empty(t, r.Error)
	assert.False(t, r.OK())
	assert.True(t, r.StartedAt.Equal(base.Add(2*time.Hour)))
}

func TestSaveRun_Results(t *testing.T) {
	s := openTestStore(t)
	report := sampleReport("run-a", time.Now())
	require.NoError(t, s.SaveRun(report))

	results, err := s.Results("run-a")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "admin", results[0].Target)
	assert.True(t, results[0].Success)
	assert.Empty(t, results[0].Missing)
	assert.Equal(t, 1500*time.Millisecond, results[0].Duration)

	assert.Equal(t, "/admin/staff-unified", results[1].Path)
	assert.Equal(t, []string{"table", "tabs"}, results[1].Missing)
	assert.True(t, results[1].Partial)
	assert.Equal(t, "table: selector not found: table", results[1].Message)
}

func TestSaveRun_SameIDReplaces(t *testing.T) {
	s := openTestStore(t)
	report := sampleReport("run-a", time.Now())
	require.NoError(t, s.SaveRun(report))

	report.Results = report.Results[:1]
	report.State = types.StateAborted
	report.Error = "context canceled"
	require.NoError(t, s.SaveRun(report))

	runs, err := s.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.StateAborted, runs[0].State)
	assert.Equal(t, "context canceled", runs[0].Error)
	assert.Equal(t, 0, runs[0].Failed)

	results, err := s.Results("run-a")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSaveRun_AbortedBeforeLogin(t *testing.T) {
	s := openTestStore(t)
	report := &types.RunReport{
		ID:         "run-x",
		BaseURL:    "http://localhost:3000",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		State:      types.StateAborted,
		Error:      "browser launch failed: chrome not found",
	}
	require.NoError(t, s.SaveRun(report))

	runs, err := s.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].LoggedIn)
	assert.False(t, runs[0].OK())
}

func TestListRuns_Empty(t *testing.T) {
	runs, err := openTestStore(t).ListRuns(10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestFindRun(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(sampleReport("0f8fad5b-d9cb-469f-a165-70867728950e", base)))
	require.NoError(t, s.SaveRun(sampleReport("7c9e6679-7425-40de-944b-e07fc1f90ae7", base.Add(time.Hour))))
	require.NoError(t, s.SaveRun(sampleReport("7c9e0000-0000-4000-8000-000000000000", base.Add(2*time.Hour))))

	run, err := s.FindRun("0f8fad5b")
	require.NoError(t, err)
	assert.Equal(t, "0f8fad5b-d9cb-469f-a165-70867728950e", run.ID)
	assert.True(t, run.LoggedIn)

	run, err = s.FindRun("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failed)

	_, err = s.FindRun("7c9e")
	assert.ErrorContains(t, err, "ambiguous")

	_, err = s.FindRun("ffff")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = s.FindRun("")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSaveResults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	report := sampleReport("run-json", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	path, err := SaveResults(dir, report)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ResultsFile), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded types.RunReport
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, report.ID, loaded.ID)
	assert.Equal(t, report.State, loaded.State)
	assert.True(t, report.StartedAt.Equal(loaded.StartedAt))
	require.NotNil(t, loaded.Login)
	assert.Equal(t, report.Results, loaded.Results)
	assert.Nil(t, loaded.Err)
}
