package policy

import (
	"fmt"
	"strings"
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is logged but does not block the operation.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the operation.
	SeverityError Severity = "error"

	// SeverityCritical blocks the operation.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity denies the operation.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Config selects the admission policies applied to engine operations.
type Config struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Paths are .rego or .json policy files, or directories holding them.
	Paths []string `yaml:"paths" json:"paths"`

	// Disable names built-in policies to switch off.
	Disable []string `yaml:"disable" json:"disable"`
}

// Policy is a Rego module whose deny set lists violations.
type Policy struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Rego        string                 `json:"rego"`
	Severity    Severity               `json:"severity"`
	Enabled     bool                   `json:"enabled"`
	Tags        []string               `json:"tags,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Input is the document a policy sees as input.
type Input struct {
	// Operation is the engine operation name, e.g. "ensure_bd".
	Operation string `json:"operation"`

	// Key identifies the object the operation works on, e.g. "tenantA/net-1".
	Key string `json:"key"`

	// Path is Key split on "/".
	Path []string `json:"path"`

	Timestamp time.Time `json:"timestamp"`
}

// NewInput builds the policy input for one operation.
func NewInput(operation, key string) *Input {
	return &Input{
		Operation: operation,
		Key:       key,
		Path:      strings.Split(key, "/"),
		Timestamp: time.Now().UTC(),
	}
}

// Violation is one entry of a policy's deny set.
type Violation struct {
	Policy   string   `json:"policy"`
	Key      string   `json:"key,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating every enabled policy.
type Result struct {
	Allowed           bool          `json:"allowed"`
	Violations        []Violation   `json:"violations,omitempty"`
	Warnings          []Violation   `json:"warnings,omitempty"`
	EvaluatedPolicies []string      `json:"evaluated_policies"`
	Duration          time.Duration `json:"duration"`
}

// DeniedError is returned by Admit when a blocking violation was found.
type DeniedError struct {
	Operation  string
	Key        string
	Violations []Violation
}

func (e *DeniedError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, fmt.Sprintf("%s: %s", v.Policy, v.Message))
	}
	return fmt.Sprintf("%s %s denied: %s", e.Operation, e.Key, strings.Join(msgs, "; "))
}
