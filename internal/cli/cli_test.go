package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/worklog/internal/app"
	"github.com/JonMunkholm/worklog/internal/config"
	"github.com/JonMunkholm/worklog/internal/core"
	"github.com/JonMunkholm/worklog/internal/report"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeStore struct {
	mu        sync.Mutex
	keys      core.KeySet
	lookupErr error
	inserted  int
}

func (s *fakeStore) ExistingKeys(_ context.Context, keys []core.Key) (core.KeySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	found := core.NewKeySet()
	for _, k := range keys {
		if s.keys.Has(k) {
			found.Add(k)
		}
	}
	return found, nil
}

func (s *fakeStore) InsertWorkLogs(_ context.Context, _ uuid.UUID, records []core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.keys.Add(r.Key())
	}
	s.inserted += len(records)
	return nil
}

type fakeSource struct {
	empty bool
}

func (f *fakeSource) MonthlyHours(context.Context, time.Time, time.Time) ([]report.Row, error) {
	return []report.Row{{Label: "2024-01", TotalHours: decimal.RequireFromString("12.5")}}, nil
}

func (f *fakeSource) TopProjects(context.Context, time.Time, time.Time, int) ([]report.Row, error) {
	return []report.Row{{Label: "Apollo", TotalHours: decimal.RequireFromString("12.5")}}, nil
}

func (f *fakeSource) TopMembers(context.Context, time.Time, time.Time, int) ([]report.Row, error) {
	return []report.Row{{Label: "alice", TotalHours: decimal.NewFromInt(10)}}, nil
}

func (f *fakeSource) DateRange(context.Context) (report.DateRange, error) {
	if f.empty {
		return report.DateRange{}, nil
	}
	return report.DateRange{
		First:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Last:    time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
		HasData: true,
	}, nil
}

const worklogCSV = "WorkDate,Member,Project,WorkType,Hours,HourlyRate\n" +
	"2024-01-15,alice,Apollo,dev,8,90\n" +
	"2024-01-15,alice,Apollo,dev,2,\n" +
	"2024-01-16,,Apollo,dev,1,\n"

type testEnv struct {
	store    *fakeStore
	source   *fakeSource
	opened   int
	migrated int
}

// run executes the command tree with fake services and returns stdout and stderr.
func (e *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://worklog@localhost:5432/worklog")

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	rt := &runtime{
		open: func(_ context.Context, cfg *config.Config) (*app.App, error) {
			e.opened++
			return &app.App{
				Config:   cfg,
				Importer: core.NewImporter(e.store, nil),
				Reports:  report.NewService(e.source, cfg.Report.TopN),
			}, nil
		},
		migrate: func(context.Context, *config.Config) error {
			e.migrated++
			return nil
		},
	}

	var stdout, stderr bytes.Buffer
	root := newRootCmd(rt)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func newTestEnv() *testEnv {
	return &testEnv{
		store:  &fakeStore{keys: core.NewKeySet()},
		source: &fakeSource{},
	}
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worklogs.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImport_Summary(t *testing.T) {
	env := newTestEnv()
	path := writeSource(t, worklogCSV)

	stdout, _, err := env.run(t, "import", path)
	require.NoError(t, err)

	assert.Contains(t, stdout, "File:             worklogs.csv")
	assert.Contains(t, stdout, "Rows read:        3")
	assert.Contains(t, stdout, "Inserted:         1")
	assert.Contains(t, stdout, "Rejected:         2")
	assert.Contains(t, stdout, "  required_missing    1")
	assert.Contains(t, stdout, "  duplicate_in_file   1")
	assert.Contains(t, stdout, "Error report:")
	assert.Equal(t, 1, env.store.inserted)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), core.ErrorReportPrefix+"*.csv"))
	require.NoError(t, err)
	assert.Len(t, matches, 1, "error report is written next to the source")
}

func TestImport_DryRunJSON(t *testing.T) {
	env := newTestEnv()
	path := writeSource(t, worklogCSV)

	stdout, _, err := env.run(t, "import", "--dry-run", "--json", path)
	require.NoError(t, err)

	var out core.Outcome
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.True(t, out.DryRun)
	assert.Equal(t, 1, out.PlannedInsert)
	assert.Equal(t, 0, out.Inserted)
	assert.Equal(t, 1, out.Count(core.ReasonRequiredMissing))
	assert.Equal(t, 0, env.store.inserted)
}

func TestImport_MissingFile(t *testing.T) {
	env := newTestEnv()

	_, _, err := env.run(t, "import", filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Zero(t, env.opened, "database is not opened for a missing file")
}

func TestImport_BatchFailure(t *testing.T) {
	env := newTestEnv()
	env.store.lookupErr = errors.New("pool closed")
	path := writeSource(t, worklogCSV)

	_, _, err := env.run(t, "import", path)
	require.Error(t, err)
	assert.True(t, core.IsBatchFailure(err))

	var buf bytes.Buffer
	printError(&buf, err)
	assert.Contains(t, buf.String(), "(Code: IMP001)")
	assert.Contains(t, buf.String(), "cause:")
}

func TestImport_RequiresOneArg(t *testing.T) {
	_, _, err := newTestEnv().run(t, "import")
	assert.Error(t, err)
}

func TestReport_Formats(t *testing.T) {
	env := newTestEnv()

	stdout, _, err := env.run(t, "report", "projects", "--format", "csv", "--from", "2024-01-01", "--to", "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, "Project,TotalHours\nApollo,12.5\n", stdout)

	stdout, _, err = env.run(t, "report", "monthly")
	require.NoError(t, err)
	assert.Contains(t, stdout, "monthly report 2024-01-15 .. 2024-02-03")
	assert.Contains(t, stdout, "12.50")

	stdout, _, err = env.run(t, "report", "members", "--format", "json")
	require.NoError(t, err)
	var table report.Table
	require.NoError(t, json.Unmarshal([]byte(stdout), &table))
	assert.Equal(t, report.KindMembers, table.Kind)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "alice", table.Rows[0].Label)
}

func TestReport_XLSXToFile(t *testing.T) {
	env := newTestEnv()
	out := filepath.Join(t.TempDir(), "members.xlsx")

	_, stderr, err := env.run(t, "report", "members", "--format", "xlsx", "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stderr, "wrote "+out)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue("members", "A2")
	require.NoError(t, err)
	assert.Equal(t, "alice", v)
}

func TestReport_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		is   error
	}{
		{"unknown kind", []string{"report", "weekly"}, report.ErrUnknownKind},
		{"bad date", []string{"report", "monthly", "--from", "01/02/2024"}, report.ErrInvalidPeriod},
		{"unknown format", []string{"report", "monthly", "--format", "pdf"}, nil},
		{"xlsx to stdout", []string{"report", "monthly", "--format", "xlsx"}, nil},
		{"reversed period", []string{"report", "monthly", "--from", "2024-02-01", "--to", "2024-01-01"}, report.ErrInvalidPeriod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := newTestEnv().run(t, tt.args...)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestRange(t *testing.T) {
	env := newTestEnv()
	stdout, _, err := env.run(t, "range")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15 .. 2024-02-03\n", stdout)

	env.source.empty = true
	stdout, _, err = env.run(t, "range")
	require.NoError(t, err)
	assert.Equal(t, "no work logs stored\n", stdout)
}

func TestMigrate(t *testing.T) {
	env := newTestEnv()
	stdout, _, err := env.run(t, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "migrations applied\n", stdout)
	assert.Equal(t, 1, env.migrated)
	assert.Zero(t, env.opened)
}

func TestSetup_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")

	root := newRootCmd(newRuntime())
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--env-file", "", "range"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestSetup_EnvFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")
	// godotenv never overrides a variable that is present, even when empty.
	require.NoError(t, os.Unsetenv("DB_URL"))
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DB_URL=postgres://localhost/fromfile\n"), 0o644))

	rt := newRuntime()
	rt.migrate = func(context.Context, *config.Config) error { return nil }
	root := newRootCmd(rt)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--env-file", path, "migrate"})

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	require.NoError(t, root.Execute())
	assert.Equal(t, "postgres://localhost/fromfile", rt.cfg.Database.URL)
}
