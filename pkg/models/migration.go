package models

import (
	"fmt"
	"time"
)

// CutoverOperator selects records relative to a profile's cutover date
type CutoverOperator string

const (
	CutoverBefore    CutoverOperator = "before"
	CutoverOnOrAfter CutoverOperator = "on-or-after"
)

// ParseCutoverOperator validates an operator name
func ParseCutoverOperator(s string) (CutoverOperator, error) {
	switch op := CutoverOperator(s); op {
	case CutoverBefore, CutoverOnOrAfter:
		return op, nil
	}
	return "", fmt.Errorf("invalid cutover operator %q (must be %q or %q)", s, CutoverBefore, CutoverOnOrAfter)
}

// DomainOp returns the comparison used in remote search domains
func (o CutoverOperator) DomainOp() string {
	if o == CutoverOnOrAfter {
		return ">="
	}
	return "<"
}

// ConnectionProfile describes one legacy system being migrated
type ConnectionProfile struct {
	ID              int             `json:"id" yaml:"-"`
	Name            string          `json:"name" yaml:"name"`
	Host            string          `json:"host" yaml:"host"`
	Port            int             `json:"port" yaml:"port"`
	Protocol        string          `json:"protocol" yaml:"protocol"`
	Database        string          `json:"database" yaml:"database"`
	Username        string          `json:"username" yaml:"username"`
	Password        string          `json:"-" yaml:"password"`
	CutoverDate     time.Time       `json:"cutover_date" yaml:"-"`
	CutoverOperator CutoverOperator `json:"cutover_operator" yaml:"cutover_operator"`
	RemoteVersion   string          `json:"remote_version" yaml:"-"`
	CreatedAt       time.Time       `json:"created_at" yaml:"-"`
}

// CutoverDateString formats the cutover date as the legacy server compares it
func (p *ConnectionProfile) CutoverDateString() string {
	return p.CutoverDate.Format("2006-01-02")
}

// LogLevel classifies a migration log entry
type LogLevel string

const (
	LogWarning LogLevel = "warning" // record migrated with a data-quality repair
	LogFailure LogLevel = "failure" // record skipped
)

// MigrationLogEntry records one per-record problem
type MigrationLogEntry struct {
	ID         int        `json:"id"`
	RunID      string     `json:"run_id"`
	ProfileID  int        `json:"profile_id"`
	EntityType EntityType `json:"entity_type"`
	RemoteID   int        `json:"remote_id"`
	Level      LogLevel   `json:"level"`
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
}

// IdentityMapping anchors a local record to its legacy record
type IdentityMapping struct {
	EntityType EntityType `json:"entity_type"`
	RemoteID   int        `json:"remote_id"`
	LocalID    int        `json:"local_id"`
	RunID      string     `json:"run_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
