// Copyright 2025 Consent DocGen Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCheckAllHealthy(t *testing.T) {
	manager := NewManager("consent-docgen", "1.0.0", nil)
	manager.AddCheckerFunc("chromadb", func(ctx context.Context) error { return nil })
	manager.AddCheckerFunc("metadata", func(ctx context.Context) error { return nil })

	resp := manager.Check(context.Background())

	if resp.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", resp.Status)
	}
	if resp.Service != "consent-docgen" {
		t.Errorf("Unexpected service name: %s", resp.Service)
	}
	if len(resp.Dependencies) != 2 {
		t.Fatalf("Expected 2 dependencies, got %d", len(resp.Dependencies))
	}
	for name, result := range resp.Dependencies {
		if result.Status != StatusHealthy {
			t.Errorf("Dependency %s expected healthy, got %s", name, result.Status)
		}
	}
}

func TestCheckOneDependencyDownDegradesService(t *testing.T) {
	manager := NewManager("consent-docgen", "1.0.0", nil)
	manager.AddCheckerFunc("chromadb", func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	manager.AddCheckerFunc("metadata", func(ctx context.Context) error { return nil })

	resp := manager.Check(context.Background())

	if resp.Status != StatusDegraded {
		t.Errorf("Expected degraded, got %s", resp.Status)
	}
	if resp.Dependencies["chromadb"].Status != StatusUnhealthy {
		t.Errorf("Expected chromadb unhealthy, got %s", resp.Dependencies["chromadb"].Status)
	}
	if resp.Dependencies["chromadb"].Error != "connection refused" {
		t.Errorf("Unexpected error message: %s", resp.Dependencies["chromadb"].Error)
	}
	if resp.Dependencies["metadata"].Status != StatusHealthy {
		t.Errorf("Expected metadata healthy, got %s", resp.Dependencies["metadata"].Status)
	}
}

func TestCheckAllDependenciesDown(t *testing.T) {
	manager := NewManager("consent-docgen", "1.0.0", nil)
	manager.AddCheckerFunc("chromadb", func(ctx context.Context) error {
		return errors.New("down")
	})

	resp := manager.Check(context.Background())

	if resp.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", resp.Status)
	}
}

func TestCheckNoDependencies(t *testing.T) {
	manager := NewManager("consent-docgen", "1.0.0", nil)

	resp := manager.Check(context.Background())

	if resp.Status != StatusHealthy {
		t.Errorf("Service with no dependencies is trivially healthy, got %s", resp.Status)
	}
}

func TestProbeTimeout(t *testing.T) {
	manager := NewManager("consent-docgen", "1.0.0", nil)
	manager.SetTimeout(20 * time.Millisecond)
	manager.AddCheckerFunc("slow", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	start := time.Now()
	resp := manager.Check(context.Background())

	if time.Since(start) > 500*time.Millisecond {
		t.Error("Probe did not respect its timeout")
	}
	if resp.Dependencies["slow"].Status != StatusUnhealthy {
		t.Errorf("Timed-out probe should be unhealthy, got %s", resp.Dependencies["slow"].Status)
	}
}
