package models

// GitState is a snapshot of the working copy, recorded in session hand-off
// documents.
type GitState struct {
	Branch     string `json:"branch"`
	LastCommit string `json:"last_commit"`
	// RecentCommits holds "<short-hash> <subject>" lines, newest first,
	// merges excluded.
	RecentCommits []string `json:"recent_commits"`
	// UncommittedCount counts every changed or untracked path;
	// UncommittedFiles lists at most the first few as "XY path".
	UncommittedCount int      `json:"uncommitted_count"`
	UncommittedFiles []string `json:"uncommitted_files"`
}
