package domain

import "fmt"

// PreflightReport is the result of the synchronous checks Preflight runs
// before a campaign starts. A campaign must not start if OK is false.
type PreflightReport struct {
	OK       bool
	Errors   []string
	Warnings []string
}

// AddError appends a failure and marks the report not-OK.
func (r *PreflightReport) AddError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.OK = false
}

// AddWarning appends a non-fatal warning.
func (r *PreflightReport) AddWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
