package dumper

import (
	"time"

	"vkdump/pkg/logger"
)

// StageSummary accumulates per-stage counters during a run.
type StageSummary struct {
	Fetched  int      `json:"fetched"`
	Skipped  int      `json:"skipped"`
	Warnings []string `json:"warnings,omitempty"`
}

// Summary is the outcome of one dump run.
type Summary struct {
	GroupID   int64                   `json:"group_id"`
	GroupName string                  `json:"group_name"`
	Stages    map[Stage]*StageSummary `json:"stages"`
	StartedAt time.Time               `json:"started_at"`
	Duration  time.Duration           `json:"duration"`
	Complete  bool                    `json:"complete"`
}

func newSummary() *Summary {
	return &Summary{
		Stages:    make(map[Stage]*StageSummary),
		StartedAt: time.Now(),
	}
}

func (s *Summary) stage(st Stage) *StageSummary {
	if s.Stages[st] == nil {
		s.Stages[st] = &StageSummary{}
	}
	return s.Stages[st]
}

func (s *Summary) fetched(st Stage) { s.stage(st).Fetched++ }
func (s *Summary) skipped(st Stage) { s.stage(st).Skipped++ }

func (s *Summary) warn(st Stage, msg string) {
	ss := s.stage(st)
	ss.Warnings = append(ss.Warnings, msg)
}

// WarningCount returns the total number of warnings across stages.
func (s *Summary) WarningCount() int {
	n := 0
	for _, ss := range s.Stages {
		n += len(ss.Warnings)
	}
	return n
}

// Log writes the run summary through the logger, one line per stage.
func (s *Summary) Log(log logger.Logger) {
	for _, st := range stageOrder {
		ss := s.Stages[st]
		if ss == nil {
			continue
		}
		log.InfoWithFields("stage summary", map[string]interface{}{
			"stage":    string(st),
			"fetched":  ss.Fetched,
			"skipped":  ss.Skipped,
			"warnings": len(ss.Warnings),
		})
		for _, w := range ss.Warnings {
			log.WarnWithFields("stage warning", map[string]interface{}{
				"stage":   string(st),
				"warning": w,
			})
		}
	}

	log.InfoWithFields("dump finished", map[string]interface{}{
		"group":    s.GroupName,
		"group_id": s.GroupID,
		"duration": s.Duration,
		"complete": s.Complete,
	})
}
