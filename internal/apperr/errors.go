// Package apperr holds the error vocabulary shared by the pipeline stages.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
)

// ValidationError lists the fields a candidate record failed on.
// It is returned before anything touches the disk.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Generation error codes.
const (
	CodeMissingCredentials = "missing_credentials"
	CodeInvalidAPIKey      = "invalid_api_key"
	CodeInsufficientQuota  = "insufficient_quota"
	CodeRateLimited        = "rate_limit_exceeded"
	CodeUnknown            = "unknown_error"
)

// GenerationError is a classified failure of the text provider.
type GenerationError struct {
	Code    string
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("generation: %s: %s", e.Code, e.Message)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// FileSystemError reports a failed filesystem operation with its path.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }

// DeployStage names the step a deploy attempt failed in.
type DeployStage string

const (
	StageVerify DeployStage = "verify"
	StageStage  DeployStage = "stage"
	StageCommit DeployStage = "commit"
	StagePush   DeployStage = "push"
)

// DeployError is a failed deploy attempt. Committed is true when a local
// commit exists that was not pushed; no rollback is attempted.
type DeployError struct {
	Stage     DeployStage
	Slug      string
	Committed bool
	Commit    string
	Err       error
}

func (e *DeployError) Error() string {
	if e.Committed {
		return fmt.Sprintf("deploy %s: %s failed after commit %s: %v", e.Slug, e.Stage, e.Commit, e.Err)
	}
	return fmt.Sprintf("deploy %s: %s failed: %v", e.Slug, e.Stage, e.Err)
}

func (e *DeployError) Unwrap() error { return e.Err }
