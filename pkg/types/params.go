package types

import (
	"fmt"
	"strings"
)

// TasksFor identifies the origin of a trigger.
type TasksFor string

const (
	TasksForCron          TasksFor = "cron"
	TasksForGithubRelease TasksFor = "github-release"
	TasksForAction        TasksFor = "action"
	TasksForGithubPush    TasksFor = "github-push"
	TasksForPullRequest   TasksFor = "github-pull-request"
)

// IsShipping reports whether the trigger origin may produce shippable,
// production-signed and indexed builds.
func (t TasksFor) IsShipping() bool {
	switch t {
	case TasksForCron, TasksForGithubRelease, TasksForAction:
		return true
	}
	return false
}

// Well-known release types.
const (
	ReleaseTypeNightly = "nightly"
	ReleaseTypeBeta    = "beta"
	ReleaseTypeRelease = "release"
)

// Parameters are the trigger parameters of one decision run.
// They are loaded once and passed by value; nothing mutates them afterwards.
type Parameters struct {
	ReleaseType       string   `yaml:"release_type" json:"release_type" env:"RELEASE_TYPE"`
	Project           string   `yaml:"project" json:"project" env:"PROJECT"`
	HeadRepository    string   `yaml:"head_repository" json:"head_repository" env:"GITHUB_HEAD_REPO_URL"`
	HeadRef           string   `yaml:"head_ref" json:"head_ref" env:"GITHUB_HEAD_BRANCH"`
	HeadRev           string   `yaml:"head_rev" json:"head_rev" env:"GITHUB_HEAD_SHA"`
	Level             int      `yaml:"level" json:"level" env:"LEVEL"`
	TasksFor          TasksFor `yaml:"tasks_for" json:"tasks_for" env:"TASKS_FOR"`
	Owner             string   `yaml:"owner" json:"owner" env:"OWNER"`
	TargetTasksMethod string   `yaml:"target_tasks_method" json:"target_tasks_method" env:"TARGET_TASKS_METHOD"`
	DecisionTaskID    string   `yaml:"decision_task_id" json:"decision_task_id" env:"TASK_ID"`
}

// Validate checks the fields every consumer relies on.
func (p Parameters) Validate() error {
	var problems []string
	if p.Level < 1 || p.Level > 3 {
		problems = append(problems, fmt.Sprintf("level must be between 1 and 3, got %d", p.Level))
	}
	if p.Project == "" {
		problems = append(problems, "project is required")
	}
	if p.HeadRev == "" {
		problems = append(problems, "head_rev is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid parameters: %s", strings.Join(problems, "; "))
	}
	return nil
}
