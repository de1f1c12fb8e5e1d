package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tagshelf/tagshelf/internal/tagstore/backup"
	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
)

// resetFlags restores every flag to its default so runs do not leak into
// each other.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// run executes the CLI against the store at dbPath.
func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--db", dbPath, "--quiet", "--no-color"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dbPath string, args ...string) string {
	t.Helper()
	out, err := run(t, dbPath, args...)
	if err != nil {
		t.Fatalf("tagshelf %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func setup(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	return filepath.Join(dir, "store.db")
}

func TestCLI_TagLifecycle(t *testing.T) {
	dbPath := setup(t)

	out := mustRun(t, dbPath, "tag", "add", "p1", " Lang/Go ")
	if !strings.Contains(out, "Added Lang/Go to p1") {
		t.Errorf("unexpected add output: %q", out)
	}

	out = mustRun(t, dbPath, "tag", "add", "p1", "Lang/Go")
	if !strings.Contains(out, "already exists") {
		t.Errorf("duplicate add should be reported, got %q", out)
	}

	mustRun(t, dbPath, "tag", "color", "Lang", "blue")
	out = mustRun(t, dbPath, "tag", "tree")
	if want := "● Lang [blue]\n└── ● Go\n"; out != want {
		t.Errorf("tree = %q, want %q", out, want)
	}

	out = mustRun(t, dbPath, "tag", "move", "Lang/Go", "--root")
	if !strings.Contains(out, "Moved Lang/Go to Go") {
		t.Errorf("unexpected move output: %q", out)
	}

	out = mustRun(t, dbPath, "tag", "delete", "Go", "--yes")
	if !strings.Contains(out, "Deleted 1 tag(s)") {
		t.Errorf("unexpected delete output: %q", out)
	}

	out = mustRun(t, dbPath, "project", "list", "--untagged", "--json")
	var projects []schema.Project
	if err := json.Unmarshal([]byte(out), &projects); err != nil {
		t.Fatalf("project list --json: %v\n%s", err, out)
	}
	if len(projects) != 1 || projects[0].ID != "p1" || len(projects[0].Tags) != 0 {
		t.Errorf("unexpected projects: %+v", projects)
	}
}

func TestCLI_DeleteNeedsConfirmation(t *testing.T) {
	dbPath := setup(t)
	mustRun(t, dbPath, "tag", "add", "p1", "A/B")

	// Test stdin is not a terminal, so without --yes the command refuses.
	if _, err := run(t, dbPath, "tag", "delete", "A"); err == nil {
		t.Fatal("expected delete without --yes to fail")
	}
	out := mustRun(t, dbPath, "tag", "tree")
	if !strings.Contains(out, "A") {
		t.Errorf("tag should survive a refused delete, got %q", out)
	}
}

func TestCLI_ProjectListFilters(t *testing.T) {
	dbPath := setup(t)
	mustRun(t, dbPath, "tag", "add", "alpha", "AI/ML")
	mustRun(t, dbPath, "tag", "add", "beta", "AI")
	mustRun(t, dbPath, "tag", "add", "gamma", "Go")
	mustRun(t, dbPath, "project", "pin", "gamma")

	ids := func(args ...string) []string {
		out := mustRun(t, dbPath, append([]string{"project", "list", "--json"}, args...)...)
		var ps []schema.Project
		if err := json.Unmarshal([]byte(out), &ps); err != nil {
			t.Fatalf("decode: %v\n%s", err, out)
		}
		var ids []string
		for _, p := range ps {
			ids = append(ids, p.ID)
		}
		return ids
	}

	if got := strings.Join(ids(), ","); got != "gamma,alpha,beta" {
		t.Errorf("default order = %s, want pinned first", got)
	}
	if got := strings.Join(ids("--under", "AI"), ","); got != "alpha,beta" {
		t.Errorf("--under AI = %s", got)
	}
	if got := strings.Join(ids("--tag", "AI"), ","); got != "beta" {
		t.Errorf("--tag AI = %s", got)
	}
	if got := strings.Join(ids("--pinned"), ","); got != "gamma" {
		t.Errorf("--pinned = %s", got)
	}
	if got := ids("--since", "2999-01-01"); len(got) != 0 {
		t.Errorf("--since in the future = %v", got)
	}
	if _, err := run(t, dbPath, "project", "list", "--sort", "random"); err == nil {
		t.Error("expected invalid sort mode to fail")
	}
}

func TestCLI_StatusAndMigrate(t *testing.T) {
	dbPath := setup(t)
	mustRun(t, dbPath, "tag", "add", "p1", "X")

	out := mustRun(t, dbPath, "sync", "status", "--json")
	var st Status
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if st.MigrationVersion != 3 || st.Tags != 1 || st.Projects != 1 {
		t.Errorf("unexpected status: %+v", st)
	}
	if st.Path != dbPath || st.Items == 0 || st.QuotaItems != 512 {
		t.Errorf("unexpected status: %+v", st)
	}

	out = mustRun(t, dbPath, "migrate")
	if !strings.Contains(out, "Schema is current (version 3)") {
		t.Errorf("unexpected migrate output: %q", out)
	}
}

func TestCLI_BackupRoundTrip(t *testing.T) {
	dbPath := setup(t)
	mustRun(t, dbPath, "tag", "add", "p1", "Lang/Go")
	mustRun(t, dbPath, "tag", "color", "Lang", "green")

	snapshot := filepath.Join(filepath.Dir(dbPath), "snap.toml")
	out := mustRun(t, dbPath, "backup", "export", snapshot)
	if !strings.Contains(out, "Exported") {
		t.Errorf("unexpected export output: %q", out)
	}
	f, err := os.Open(snapshot)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	items, err := backup.Decode(f, backup.FormatTOML)
	f.Close()
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if _, ok := items["project:p1"]; !ok {
		t.Errorf("snapshot is missing project:p1: %v", items.Keys())
	}

	other := filepath.Join(filepath.Dir(dbPath), "other.db")
	out = mustRun(t, other, "backup", "import", snapshot, "--dry-run")
	if !strings.Contains(out, "Would import") {
		t.Errorf("unexpected dry-run output: %q", out)
	}
	if out := mustRun(t, other, "tag", "tree"); !strings.Contains(out, "No tags yet") {
		t.Errorf("dry run wrote data: %q", out)
	}

	mustRun(t, other, "backup", "import", snapshot)
	if out := mustRun(t, other, "tag", "tree"); out != "● Lang [green]\n└── ● Go\n" {
		t.Errorf("tree after import = %q", out)
	}
}

func TestCLI_Loadtest(t *testing.T) {
	dbPath := setup(t)
	out := mustRun(t, dbPath, "loadtest", "--instances", "3", "--ops", "5", "--projects", "2", "--tags", "4")
	if !strings.Contains(out, "Converged:      true") {
		t.Errorf("unexpected loadtest output: %q", out)
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2026-03-01T10:00:00Z", want: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{in: "2026-03-01", want: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{in: "72h", want: now.Add(-72 * time.Hour)},
		{in: "-2h", want: now.Add(-2 * time.Hour)},
		{in: "", wantErr: true},
		{in: "xyzzy", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSince(tt.in, now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSince(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseSince(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	got, err := parseSince("3 days ago", now)
	if err != nil {
		t.Fatalf("natural language: %v", err)
	}
	if !got.Before(now) || now.Sub(got) > 4*24*time.Hour {
		t.Errorf("3 days ago = %v", got)
	}
}
