package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/extract"
	"github.com/rushteam/shoprec/internal/testdb"
)

// writeConfig 导出种子数据为 CSV，并生成使用 CSV 数据集、sqlite 规则库、badger 缓存的配置
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	db := testdb.Open(t)
	testdb.Seed(t, db)
	src := extract.NewSQLSource(db, zerolog.Nop())
	src.Statuses = nil
	csvPath := filepath.Join(dir, "dataset.csv")
	if _, err := extract.Export(context.Background(), src, csvPath); err != nil {
		t.Fatal(err)
	}

	cfg := fmt.Sprintf(`log:
  level: disabled
dataset:
  source: csv
  csv_path: %s
catalog:
  kind: memory
rules:
  store: gorm
  driver: sqlite
  dsn: %s
mining:
  min_support: 0.25
cache:
  store: badger
  badger_dir: %s
metrics:
  enabled: false
`, csvPath, filepath.Join(dir, "rules.db"), filepath.Join(dir, "cache"))
	path := filepath.Join(dir, "shoprec.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestRun_MineThenRelated(t *testing.T) {
	cfg := writeConfig(t)

	out, err := runCLI(t, "-config", cfg, "mine", "--min-confidence", "0.5")
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	var report struct {
		Transactions int `json:"transactions"`
		Saved        int `json:"saved"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if report.Transactions != 4 || report.Saved != 4 {
		t.Errorf("report = %+v", report)
	}

	out, err = runCLI(t, "-config", cfg, "related", "--product", "Boots")
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	var related struct {
		Related []core.RelatedProduct `json:"related"`
	}
	if err := json.Unmarshal([]byte(out), &related); err != nil {
		t.Fatal(err)
	}
	if len(related.Related) != 2 || related.Related[0].Product != "Jacket" {
		t.Errorf("related = %+v", related.Related)
	}

	if _, err := runCLI(t, "-config", cfg, "related", "--product", "Gloves"); !core.IsNotFound(err) {
		t.Errorf("related Gloves err = %v", err)
	}
}

func TestRun_HybridAndRecommend(t *testing.T) {
	cfg := writeConfig(t)

	out, err := runCLI(t, "-config", cfg, "hybrid", "--user-email", "alice@example.com")
	if err != nil {
		t.Fatalf("hybrid: %v", err)
	}
	var snap core.RecommendationSnapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Metadata.Reason != "few orders" {
		t.Errorf("metadata = %+v", snap.Metadata)
	}
	for _, r := range snap.Recommendations {
		if r.ProductName == "Scarf" || r.ProductName == "Hat" {
			t.Errorf("unavailable product recommended: %+v", r)
		}
	}

	out, err = runCLI(t, "-config", cfg, "recommend")
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	var outcomes []core.Outcome
	if err := json.Unmarshal([]byte(out), &outcomes); err != nil {
		t.Fatal(err)
	}
	// CSV 目录只包含下过单的用户
	if len(outcomes) != 2 {
		t.Errorf("outcomes = %+v", outcomes)
	}
}

func TestRun_Errors(t *testing.T) {
	cfg := writeConfig(t)
	tests := []struct {
		name  string
		args  []string
		check func(error) bool
	}{
		{"no command", nil, func(err error) bool { return errors.Is(err, flag.ErrHelp) }},
		{"unknown command", []string{"-config", cfg, "train"}, func(err error) bool {
			return err != nil && strings.Contains(err.Error(), "unknown command")
		}},
		{"hybrid without email", []string{"-config", cfg, "hybrid"}, core.IsInvalidInput},
		{"hybrid unknown user", []string{"-config", cfg, "hybrid", "--user-email", "nobody@example.com"}, core.IsNotFound},
		{"bad flag", []string{"-config", cfg, "mine", "--bogus"}, func(err error) bool { return err != nil }},
		{"export without database", []string{"-config", cfg, "export"}, core.IsNotSupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCLI(t, tt.args...); !tt.check(err) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.NewDomainError(core.ModuleRules, core.ErrorCodeNotFound, "x"), 2},
		{core.NewDomainError(core.ModuleRules, core.ErrorCodeInvalidInput, "x"), 2},
		{core.NewDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "x"), 1},
		{errors.New("boom"), 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
