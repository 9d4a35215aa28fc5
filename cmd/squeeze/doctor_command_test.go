package main

import (
	"strings"
	"testing"
)

func TestDoctorAllChecksPass(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, env, "doctor")
	if err != nil {
		t.Fatalf("doctor failed: %v\noutput: %s", err, stdout)
	}
	requireContains(t, stdout, "== Environment ==")
	requireContains(t, stdout, "Cache directory")
	requireContains(t, stdout, "Download directory")
	requireContains(t, stdout, "Log directory")
	requireContains(t, stdout, "Cache store")
	requireContains(t, stdout, "Compression service")
	requireContains(t, stdout, "running at "+env.service.host)
	requireContains(t, stdout, "All checks passed")
	if got := strings.Count(stdout, "[OK]"); got != 5 {
		t.Fatalf("expected 5 passing checks, got %d\noutput: %s", got, stdout)
	}
}

func TestDoctorReportsStoppedWorkers(t *testing.T) {
	env := setupCLITestEnv(t)
	env.service.setWorkers("stopped")

	stdout, _, err := runCLI(t, env, "doctor")
	if err == nil {
		t.Fatal("expected doctor to fail with stopped workers")
	}
	requireContains(t, err.Error(), "1 of 5 checks failed")
	requireContains(t, stdout, "[ERROR]")
	requireContains(t, stdout, "compression workers are stopped")
}

func TestDoctorReportsUnreachableService(t *testing.T) {
	env := setupCLITestEnv(t)
	env.service.server.Close()

	stdout, _, err := runCLI(t, env, "doctor")
	if err == nil {
		t.Fatal("expected doctor to fail with the service down")
	}
	requireContains(t, err.Error(), "1 of 5 checks failed")
	requireContains(t, stdout, "[ERROR]")
}
