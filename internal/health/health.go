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

// Package health aggregates dependency probes (vector store, metadata
// database) into one readiness report for the generation service.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// StatusHealthy means the dependency responded normally
	StatusHealthy = "healthy"
	// StatusUnhealthy means the dependency is down or erroring
	StatusUnhealthy = "unhealthy"
	// StatusDegraded means some, but not all, dependencies are unhealthy
	StatusDegraded = "degraded"
	// DefaultTimeout bounds each dependency probe
	DefaultTimeout = 5 * time.Second
)

// CheckResult is the outcome of probing one dependency
type CheckResult struct {
	Status    string    `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Response is the aggregate health report for the service
type Response struct {
	Status       string                 `json:"status"`
	Service      string                 `json:"service"`
	Version      string                 `json:"version"`
	UptimeSec    int64                  `json:"uptime_seconds"`
	Dependencies map[string]CheckResult `json:"dependencies"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Checker probes one dependency. Implementations must honor ctx.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a plain probe function to the Checker interface
type CheckerFunc func(ctx context.Context) error

// Check implements Checker
func (f CheckerFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// Manager runs dependency probes and rolls them up into one status
type Manager struct {
	service   string
	version   string
	startTime time.Time
	timeout   time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	checkers map[string]Checker
}

// NewManager creates a manager for the named service
func NewManager(service, version string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		service:   service,
		version:   version,
		startTime: time.Now(),
		timeout:   DefaultTimeout,
		logger:    logger,
		checkers:  make(map[string]Checker),
	}
}

// SetTimeout overrides the per-probe timeout
func (m *Manager) SetTimeout(timeout time.Duration) {
	m.timeout = timeout
}

// AddChecker registers a dependency probe under a name
func (m *Manager) AddChecker(name string, checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

// AddCheckerFunc registers a plain function as a dependency probe
func (m *Manager) AddCheckerFunc(name string, check func(ctx context.Context) error) {
	m.AddChecker(name, CheckerFunc(check))
}

// Check probes every dependency and returns the aggregate report.
// One unhealthy dependency degrades the service; all unhealthy marks it
// unhealthy outright.
func (m *Manager) Check(ctx context.Context) Response {
	m.mu.Lock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	checkers := make(map[string]Checker, len(m.checkers))
	for name, checker := range m.checkers {
		checkers[name] = checker
	}
	m.mu.Unlock()

	dependencies := make(map[string]CheckResult, len(names))
	unhealthy := 0
	for _, name := range names {
		result := m.probe(ctx, name, checkers[name])
		dependencies[name] = result
		if result.Status != StatusHealthy {
			unhealthy++
		}
	}

	status := StatusHealthy
	switch {
	case len(names) > 0 && unhealthy == len(names):
		status = StatusUnhealthy
	case unhealthy > 0:
		status = StatusDegraded
	}

	return Response{
		Status:       status,
		Service:      m.service,
		Version:      m.version,
		UptimeSec:    int64(time.Since(m.startTime).Seconds()),
		Dependencies: dependencies,
		Timestamp:    time.Now(),
	}
}

func (m *Manager) probe(ctx context.Context, name string, checker Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := checker.Check(ctx)
	latency := time.Since(start)

	result := CheckResult{
		Status:    StatusHealthy,
		LatencyMS: latency.Milliseconds(),
		Timestamp: time.Now(),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		m.logger.Warn("Dependency health check failed",
			zap.String("dependency", name),
			zap.Duration("latency", latency),
			zap.Error(err))
	}
	return result
}
