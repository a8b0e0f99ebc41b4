package publisher

import (
	"fmt"
	"os"
	"time"
)

// CommitMessage is the message the workflow commits the output with.
func CommitMessage(now time.Time) string {
	return fmt.Sprintf("Update malware hashes %s (UTC)", now.UTC().Format("2006-01-02"))
}

// WriteGitHubOutput appends changed and commit_message to the file named by
// GITHUB_OUTPUT so the workflow can skip the commit when nothing changed.
// It does nothing when the variable is unset.
func WriteGitHubOutput(changed bool, now time.Time) error {
	path := os.Getenv("GITHUB_OUTPUT")
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open github output: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "changed=%t\ncommit_message=%s\n", changed, CommitMessage(now)); err != nil {
		return fmt.Errorf("write github output: %w", err)
	}
	return nil
}
