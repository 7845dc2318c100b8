package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/eoirdata/eoirload/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Clean: config.CleanConfig{
			SampleSize: 100,
			Postfix:    "06_25",
		},
	}
}

func TestPostfixOr(t *testing.T) {
	cfg := testConfig()

	if got := postfixOr("", cfg); got != "06_25" {
		t.Errorf("unset flag = %q, want config default", got)
	}
	if got := postfixOr("01_26", cfg); got != "01_26" {
		t.Errorf("flag = %q, want 01_26", got)
	}
}

func TestSampleSizeOr(t *testing.T) {
	cfg := testConfig()

	if got := sampleSizeOr(-1, cfg); got != 100 {
		t.Errorf("unset flag = %d, want config default 100", got)
	}
	if got := sampleSizeOr(25, cfg); got != 25 {
		t.Errorf("flag = %d, want 25", got)
	}
	// An explicit zero disables sampling; it must not fall back to config.
	if got := sampleSizeOr(0, cfg); got != 0 {
		t.Errorf("zero flag = %d, want 0", got)
	}
}

func TestCleanCmdSampleSizeFlag(t *testing.T) {
	cmd := cleanCmd()
	if cmd.PersistentFlags().Lookup("sample-size") == nil {
		t.Fatal("clean command has no --sample-size flag")
	}
	if err := cmd.PersistentFlags().Set("sample-size", "50"); err != nil {
		t.Fatalf("set sample-size: %v", err)
	}
	if got, _ := cmd.PersistentFlags().GetInt("sample-size"); got != 50 {
		t.Errorf("sample-size = %d, want 50", got)
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(errDirty); got != 2 {
		t.Errorf("dirty load = %d, want 2", got)
	}
	if got := exitCode(fmt.Errorf("loading: %w", errDirty)); got != 2 {
		t.Errorf("wrapped dirty load = %d, want 2", got)
	}
	if got := exitCode(errors.New("boom")); got != 1 {
		t.Errorf("hard failure = %d, want 1", got)
	}
}
