package git

import (
	"errors"
)

// Sentinel errors returned by the vault engine. Callers classify them with errors.Is;
// operations wrap them with context using %w.
var (
	ErrNotARepository        = errors.New("not a git repository")
	ErrDirtyWorkingTree      = errors.New("working tree has uncommitted changes")
	ErrNotAutomationCommit   = errors.New("last commit was not made by automation")
	ErrAlreadyMerging        = errors.New("a merge is already in progress")
	ErrNotMerging            = errors.New("no merge in progress")
	ErrConflictsRemain       = errors.New("conflicts still exist")
	ErrNonFastForward        = errors.New("remote has diverged, pull first")
	ErrPathOutsideRepository = errors.New("path is outside the repository")
	ErrCredentialMissing     = errors.New("no credential available")
	ErrCredentialRejected    = errors.New("credential rejected by remote")
	ErrNetworkFailure        = errors.New("network failure")
	ErrObjectNotFound        = errors.New("object not found")
	ErrNotAFile              = errors.New("path is not a file")
	ErrMissingContent        = errors.New("manual resolution requires content")
	ErrNoChanges             = errors.New("nothing to commit")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotARepository, "not_a_repository"},
	{ErrDirtyWorkingTree, "dirty_working_tree"},
	{ErrNotAutomationCommit, "not_automation_commit"},
	{ErrAlreadyMerging, "already_merging"},
	{ErrNotMerging, "not_merging"},
	{ErrConflictsRemain, "conflicts_remain"},
	{ErrNonFastForward, "non_fast_forward"},
	{ErrPathOutsideRepository, "path_outside_repository"},
	{ErrCredentialMissing, "credential_missing"},
	{ErrCredentialRejected, "credential_rejected"},
	{ErrNetworkFailure, "network_failure"},
	{ErrObjectNotFound, "object_not_found"},
	{ErrNotAFile, "not_a_file"},
	{ErrMissingContent, "missing_content"},
	{ErrNoChanges, "no_changes"},
}

// ErrorCode returns a stable machine-readable code for err, or "internal" when err
// does not wrap any engine sentinel.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}
