package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RegionReport counts the outcome of one region within a run.
type RegionReport struct {
	Region        string `json:"region"`
	Attempted     int    `json:"attempted"`
	Succeeded     int    `json:"succeeded"`
	Failed        int    `json:"failed"`
	StoreFailures int    `json:"store_failures"`
	PagesVisited  int    `json:"pages_visited"`
	SessionLost   bool   `json:"session_lost"`
	Error         string `json:"error,omitempty"`
}

// RegionReports is persisted as a JSON document inside the run row.
type RegionReports []RegionReport

func (r RegionReports) Value() (driver.Value, error) {
	b, err := json.Marshal([]RegionReport(r))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *RegionReports) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), r)
	case []byte:
		return json.Unmarshal(v, r)
	default:
		return fmt.Errorf("unsupported type for RegionReports: %T", src)
	}
}

// RunReport summarizes a whole ingestion run.
type RunReport struct {
	ID         int64         `json:"-" gorm:"primaryKey"`
	RunID      string        `json:"run_id" gorm:"type:varchar(36);not null;uniqueIndex"`
	StartedAt  time.Time     `json:"started_at" gorm:"not null;index"`
	FinishedAt time.Time     `json:"finished_at"`
	Regions    RegionReports `json:"regions" gorm:"type:text"`
	Attempted  int           `json:"attempted"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	AllEmpty   bool          `json:"all_empty"`
	Staled     int64         `json:"staled"`
	Cancelled  bool          `json:"cancelled"`
}

func (RunReport) TableName() string {
	return "runs"
}

// Finalize computes the aggregate counters from the region reports.
func (r *RunReport) Finalize(finishedAt time.Time) {
	r.FinishedAt = finishedAt
	r.Attempted, r.Succeeded, r.Failed = 0, 0, 0
	for _, reg := range r.Regions {
		r.Attempted += reg.Attempted
		r.Succeeded += reg.Succeeded
		r.Failed += reg.Failed
	}
	r.AllEmpty = r.Succeeded == 0
}

// Status is a short label distinguishing total failure from partial success.
func (r *RunReport) Status() string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.AllEmpty:
		return "empty"
	case r.Failed > 0:
		return "partial"
	default:
		return "ok"
	}
}
