// Package monitor periodically samples editing-session health counters,
// mirrors them to a status file and ships them to telemetry.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nacalab/editcore/internal/telemetry"
)

// DefaultInterval is how often the monitor samples session state.
const DefaultInterval = time.Second

// SampleFunc returns the current session health counters.
type SampleFunc func() telemetry.SessionSample

// Dependencies holds all dependencies for the monitor service.
type Dependencies struct {
	Telemetry *telemetry.Manager
	Logger    *slog.Logger
	Sample    SampleFunc
	StatusDir string
	Interval  time.Duration
}

// Service manages status monitoring.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service.
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// StatusReport renders the current sample as indented JSON lines.
func (s *Service) StatusReport() ([]string, telemetry.SessionSample) {
	sample := s.deps.Sample()

	var output []string
	sampleStr, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		sampleStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	output = append(output, string(sampleStr))

	return output, sample
}

// Start starts the status monitor goroutine.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.deps.Logger.Debug("Starting status monitor goroutine")

		statusFile, err := os.Create(filepath.Join(s.deps.StatusDir, "status.txt"))
		if err != nil {
			s.deps.Logger.Error("Error creating status file", "error", err)
		}
		defer statusFile.Close()

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				statusStr, sample := s.StatusReport()

				if sample.ScreenID == "" {
					continue
				}

				if statusFile != nil {
					statusFile.Truncate(0)
					statusFile.Seek(0, 0)
					for _, line := range statusStr {
						statusFile.WriteString(line + "\n")
					}
				}

				if s.deps.Telemetry != nil {
					bucket, point := telemetry.SessionPoint(sample)
					if err := s.deps.Telemetry.WritePoint(context.Background(), bucket, point); err != nil {
						s.deps.Logger.Error("Error writing session sample", "error", err)
					}
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
