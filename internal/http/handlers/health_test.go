package handlers

import (
	"context"
	"testing"
)

type fakeRunCounter struct{ n int }

func (f fakeRunCounter) ActiveRuns() int { return f.n }

func TestHealthHandler_GetHealth(t *testing.T) {
	handler := NewHealthHandler("1.0.0", fakeRunCounter{n: 2})

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output == nil {
		t.Fatal("expected non-nil output")
	}

	if output.Body.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", output.Body.Status)
	}

	if output.Body.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", output.Body.Version)
	}

	if output.Body.Uptime == "" {
		t.Error("expected non-empty uptime")
	}

	if output.Body.CPUInfo.Cores == 0 {
		t.Error("expected non-zero CPU cores")
	}

	if output.Body.ActiveRuns != 2 {
		t.Errorf("expected active_runs 2, got %d", output.Body.ActiveRuns)
	}
}

func TestHealthHandler_GetHealth_NoRunCounter(t *testing.T) {
	handler := NewHealthHandler("1.0.0", nil)

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output.Body.ActiveRuns != 0 {
		t.Errorf("expected active_runs 0 when no counter wired, got %d", output.Body.ActiveRuns)
	}
}
