package engine

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/blackwell-systems/toolkeeper/internal/backup"
	"github.com/blackwell-systems/toolkeeper/internal/breaking"
	"github.com/blackwell-systems/toolkeeper/internal/progress"
)

// Step names.
const (
	StepCheck   = "check"
	StepInstall = "install"
	StepUpgrade = "upgrade"
	StepVerify  = "verify"
)

var (
	// errSkipped marks units never started because of fail-fast.
	errSkipped = errors.New("skipped after an earlier failure")
	// errCancelled marks units never started because ctx was done.
	errCancelled = errors.New("cancelled before start")
)

// StepResult is the outcome of one step of a unit.
type StepResult struct {
	Step            string   `json:"step"`
	Command         []string `json:"command,omitempty"`
	Success         bool     `json:"success"`
	ExitCode        int      `json:"exit_code"`
	Stderr          string   `json:"stderr,omitempty"`
	AttemptNumber   int      `json:"attempt_number"`
	DryRun          bool     `json:"dry_run,omitempty"`
	DurationSeconds float64  `json:"duration_seconds"`
	ErrorMessage    string   `json:"error_message"`
}

func newStepResult(step string, argv []string, ok bool, exitCode int, stderr string, attempts int, errMsg string, start, end time.Time) StepResult {
	if !ok && errMsg == "" {
		errMsg = stderr
		if errMsg == "" {
			errMsg = step + " failed"
		}
	}
	if ok {
		errMsg = ""
	}
	return StepResult{
		Step:            step,
		Command:         argv,
		Success:         ok,
		ExitCode:        exitCode,
		Stderr:          stderr,
		AttemptNumber:   attempts,
		DurationSeconds: end.Sub(start).Seconds(),
		ErrorMessage:    errMsg,
	}
}

func plannedStep(step string, argv []string) StepResult {
	return StepResult{Step: step, Command: argv, Success: true, DryRun: true}
}

// MarshalJSON writes error_message as null when empty.
func (s StepResult) MarshalJSON() ([]byte, error) {
	type alias StepResult
	return json.Marshal(struct {
		alias
		ErrorMessage *string `json:"error_message"`
	}{alias(s), optional(s.ErrorMessage)})
}

// Unit is the part of a result shared by installs and upgrades.
type Unit struct {
	Tool            string
	Manager         string
	Status          progress.Status
	Success         bool
	DurationSeconds float64
	ErrorMessage    string
}

// Result is implemented by *InstallResult and *UpgradeResult.
type Result interface {
	Unit() Unit
}

// InstallResult is the outcome of installing one tool.
type InstallResult struct {
	ToolName         string          `json:"tool"`
	PackageName      string          `json:"package"`
	PackageManager   string          `json:"package_manager,omitempty"`
	SelectionReason  string          `json:"selection_reason,omitempty"`
	TargetVersion    string          `json:"target_version"`
	InstalledVersion string          `json:"installed_version,omitempty"`
	BinaryPath       string          `json:"binary_path,omitempty"`
	Steps            []StepResult    `json:"steps"`
	Status           progress.Status `json:"status"`
	DryRun           bool            `json:"dry_run,omitempty"`
	Success          bool            `json:"success"`
	DurationSeconds  float64         `json:"duration_seconds"`
	ErrorMessage     string          `json:"error_message"`
}

// installRecord collects what a unit produced before it is frozen.
type installRecord struct {
	tool, pkg, manager, reason, target string
	installed, path                    string
	steps                              []StepResult
	dryRun                             bool
	err                                error
	start, end                         time.Time
}

func newInstallResult(r installRecord) *InstallResult {
	status, msg := statusOf(r.err)
	return &InstallResult{
		ToolName:         r.tool,
		PackageName:      r.pkg,
		PackageManager:   r.manager,
		SelectionReason:  r.reason,
		TargetVersion:    r.target,
		InstalledVersion: r.installed,
		BinaryPath:       r.path,
		Steps:            r.steps,
		Status:           status,
		DryRun:           r.dryRun,
		Success:          status == progress.Success,
		DurationSeconds:  r.end.Sub(r.start).Seconds(),
		ErrorMessage:     msg,
	}
}

// Unit implements Result.
func (r *InstallResult) Unit() Unit {
	return Unit{
		Tool:            r.ToolName,
		Manager:         r.PackageManager,
		Status:          r.Status,
		Success:         r.Success,
		DurationSeconds: r.DurationSeconds,
		ErrorMessage:    r.ErrorMessage,
	}
}

// MarshalJSON writes error_message as null when empty.
func (r *InstallResult) MarshalJSON() ([]byte, error) {
	type alias InstallResult
	return json.Marshal(struct {
		*alias
		ErrorMessage *string `json:"error_message"`
	}{(*alias)(r), optional(r.ErrorMessage)})
}

// UpgradeResult is the outcome of upgrading one tool.
type UpgradeResult struct {
	ToolName        string                `json:"tool"`
	PackageName     string                `json:"package"`
	PackageManager  string                `json:"package_manager,omitempty"`
	SelectionReason string                `json:"selection_reason,omitempty"`
	PreviousVersion string                `json:"previous_version"`
	TargetVersion   string                `json:"target_version"`
	NewVersion      string                `json:"new_version,omitempty"`
	BinaryPath      string                `json:"binary_path,omitempty"`
	BreakingChange  bool                  `json:"breaking_change"`
	Blocked         bool                  `json:"blocked"`
	Backup          *backup.UpgradeBackup `json:"backup,omitempty"`
	RolledBack      bool                  `json:"rolled_back"`
	Steps           []StepResult          `json:"steps"`
	Status          progress.Status       `json:"status"`
	DryRun          bool                  `json:"dry_run,omitempty"`
	Message         string                `json:"message,omitempty"`
	Success         bool                  `json:"success"`
	DurationSeconds float64               `json:"duration_seconds"`
	ErrorMessage    string                `json:"error_message"`
}

type upgradeRecord struct {
	tool, pkg, manager, reason string
	from, target, to, path     string
	breaking                   bool
	backup                     *backup.UpgradeBackup
	rolledBack                 bool
	steps                      []StepResult
	dryRun                     bool
	message                    string
	err                        error
	start, end                 time.Time
}

func newUpgradeResult(r upgradeRecord) *UpgradeResult {
	status, msg := statusOf(r.err)
	return &UpgradeResult{
		ToolName:        r.tool,
		PackageName:     r.pkg,
		PackageManager:  r.manager,
		SelectionReason: r.reason,
		PreviousVersion: r.from,
		TargetVersion:   r.target,
		NewVersion:      r.to,
		BinaryPath:      r.path,
		BreakingChange:  r.breaking,
		Blocked:         isBlocked(r.err),
		Backup:          r.backup,
		RolledBack:      r.rolledBack,
		Steps:           r.steps,
		Status:          status,
		DryRun:          r.dryRun,
		Message:         r.message,
		Success:         status == progress.Success,
		DurationSeconds: r.end.Sub(r.start).Seconds(),
		ErrorMessage:    msg,
	}
}

// Unit implements Result.
func (r *UpgradeResult) Unit() Unit {
	return Unit{
		Tool:            r.ToolName,
		Manager:         r.PackageManager,
		Status:          r.Status,
		Success:         r.Success,
		DurationSeconds: r.DurationSeconds,
		ErrorMessage:    r.ErrorMessage,
	}
}

// MarshalJSON writes error_message as null when empty.
func (r *UpgradeResult) MarshalJSON() ([]byte, error) {
	type alias UpgradeResult
	return json.Marshal(struct {
		*alias
		ErrorMessage *string `json:"error_message"`
	}{(*alias)(r), optional(r.ErrorMessage)})
}

// BulkResult is the outcome of a bulk install or upgrade.
type BulkResult struct {
	Operation         string     `json:"operation"`
	Levels            [][]string `json:"levels"`
	Results           []Result   `json:"results"`
	Succeeded         int        `json:"succeeded"`
	Failed            int        `json:"failed"`
	Skipped           int        `json:"skipped"`
	Blocked           int        `json:"blocked"`
	RollbackScript    string     `json:"rollback_script,omitempty"`
	RollbackAttempted bool       `json:"rollback_attempted"`
	RollbackSucceeded bool       `json:"rollback_succeeded"`
	DryRun            bool       `json:"dry_run,omitempty"`
	Success           bool       `json:"success"`
	DurationSeconds   float64    `json:"duration_seconds"`
	ErrorMessage      string     `json:"error_message"`
}

type bulkRecord struct {
	operation         string
	levels            [][]string
	results           []Result
	script            string
	rollbackAttempted bool
	rollbackSucceeded bool
	dryRun            bool
	err               error
	start, end        time.Time
}

func newBulkResult(r bulkRecord) *BulkResult {
	b := &BulkResult{
		Operation:         r.operation,
		Levels:            r.levels,
		Results:           r.results,
		RollbackScript:    r.script,
		RollbackAttempted: r.rollbackAttempted,
		RollbackSucceeded: r.rollbackSucceeded,
		DryRun:            r.dryRun,
		DurationSeconds:   r.end.Sub(r.start).Seconds(),
	}
	for _, res := range r.results {
		u := res.Unit()
		switch {
		case u.Success:
			b.Succeeded++
		case u.Status == progress.Skipped && isBlockedResult(res):
			b.Blocked++
		case u.Status == progress.Skipped:
			b.Skipped++
		default:
			b.Failed++
		}
	}
	b.Success = b.Failed == 0 && b.Blocked == 0 && b.Skipped == 0 && r.err == nil
	if r.err != nil {
		b.ErrorMessage = r.err.Error()
	} else if !b.Success {
		b.ErrorMessage = summarize(b)
	}
	return b
}

// MarshalJSON writes error_message as null when empty.
func (b *BulkResult) MarshalJSON() ([]byte, error) {
	type alias BulkResult
	return json.Marshal(struct {
		*alias
		ErrorMessage *string `json:"error_message"`
	}{(*alias)(b), optional(b.ErrorMessage)})
}

func summarize(b *BulkResult) string {
	var parts []string
	if b.Failed > 0 {
		parts = append(parts, plural(b.Failed, "failed"))
	}
	if b.Blocked > 0 {
		parts = append(parts, plural(b.Blocked, "blocked"))
	}
	if b.Skipped > 0 {
		parts = append(parts, plural(b.Skipped, "skipped"))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, what string) string {
	if n == 1 {
		return "1 tool " + what
	}
	return strconv.Itoa(n) + " tools " + what
}

// statusOf maps a unit error onto a tracker status and message.
func statusOf(err error) (progress.Status, string) {
	switch {
	case err == nil:
		return progress.Success, ""
	case errors.Is(err, errSkipped), errors.Is(err, errCancelled), isBlocked(err):
		return progress.Skipped, err.Error()
	default:
		return progress.Failed, err.Error()
	}
}

func isBlocked(err error) bool {
	return errors.Is(err, breaking.ErrBlocked) || errors.Is(err, breaking.ErrDeclined)
}

func isBlockedResult(r Result) bool {
	u, ok := r.(*UpgradeResult)
	return ok && u.Blocked
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
