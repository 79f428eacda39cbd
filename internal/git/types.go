package git

// CommitStats aggregates the diff of a commit against its first parent.
type CommitStats struct {
	FilesChanged int      `json:"files_changed"`
	Insertions   int      `json:"insertions"`
	Deletions    int      `json:"deletions"`
	FilePaths    []string `json:"file_paths"`
}

// CommitInfo is the display projection of a commit.
type CommitInfo struct {
	ID           string       `json:"oid"`
	Message      string       `json:"message"`
	Author       string       `json:"author"`
	Timestamp    int64        `json:"timestamp"`
	IsAutomation bool         `json:"is_mosaic"`
	Stats        *CommitStats `json:"stats,omitempty"`
}

// ChangeStatus describes how a file changed in a commit.
type ChangeStatus string

const (
	ChangeAdded    ChangeStatus = "added"
	ChangeModified ChangeStatus = "modified"
	ChangeDeleted  ChangeStatus = "deleted"
	ChangeRenamed  ChangeStatus = "renamed"
	ChangeCopied   ChangeStatus = "copied"
	ChangeUnknown  ChangeStatus = "unknown"
)

// FileChange is one file's change in a commit relative to its first parent.
type FileChange struct {
	Path      string       `json:"path"`
	Status    ChangeStatus `json:"status"`
	Additions int          `json:"additions"`
	Deletions int          `json:"deletions"`
}

// ConflictEntry holds the three sides of a conflicted path. A nil side means the
// file does not exist on that side.
type ConflictEntry struct {
	Path     string  `json:"path"`
	Ancestor *string `json:"ancestor"`
	Ours     *string `json:"ours"`
	Theirs   *string `json:"theirs"`
}

// SyncStatus compares the local branch with its remote-tracking branch.
type SyncStatus struct {
	Ahead    int  `json:"ahead"`
	Behind   int  `json:"behind"`
	UpToDate bool `json:"up_to_date"`
}

// ConflictResolution is returned by every operation that may stop on conflicts.
type ConflictResolution struct {
	HasConflicts bool            `json:"has_conflicts"`
	Conflicts    []ConflictEntry `json:"conflicts"`
	SyncStatus   SyncStatus      `json:"sync_status"`
}

// Strategy selects how a conflicted path is resolved.
type Strategy int

const (
	KeepOurs Strategy = iota
	KeepTheirs
	Manual
)

func (s Strategy) String() string {
	switch s {
	case KeepOurs:
		return "ours"
	case KeepTheirs:
		return "theirs"
	case Manual:
		return "manual"
	}
	return "unknown"
}

// ParseStrategy maps the resolution names used by clients to a Strategy.
func ParseStrategy(name string) (Strategy, bool) {
	switch name {
	case "ours", "KeepOurs":
		return KeepOurs, true
	case "theirs", "KeepTheirs":
		return KeepTheirs, true
	case "manual", "Manual":
		return Manual, true
	}
	return 0, false
}

// HistoryOptions filters ListCommits.
type HistoryOptions struct {
	// Limit caps the number of returned entries. Zero means DefaultHistoryLimit.
	Limit          int
	AutomationOnly bool
	// Path restricts history to commits touching this slash-separated path.
	Path      string
	WithStats bool
}

const DefaultHistoryLimit = 50
