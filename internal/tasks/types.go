package tasks

import (
	"fmt"
	"path/filepath"
)

// Task type constants
const (
	TypeReplayDockerfile = "replay:dockerfile"
)

// Task queue names
const (
	QueueReplay = "replay"
)

// ReplayPayload represents the payload for a replay task. It carries either
// inline Dockerfile text or a repository location.
type ReplayPayload struct {
	ReplayID   string `json:"replay_id"`
	SessionID  string `json:"session_id,omitempty"` // session that requested the replay
	Dockerfile string `json:"dockerfile,omitempty"`
	RepoURL    string `json:"repo_url,omitempty"`
	Branch     string `json:"branch,omitempty"`
	Path       string `json:"path,omitempty"` // Dockerfile path inside the repository
	Compare    bool   `json:"compare,omitempty"`
	RequestID  string `json:"request_id,omitempty"` // API request that enqueued the replay
}

// Validate checks that the payload names exactly one Dockerfile source
func (p ReplayPayload) Validate() error {
	if p.ReplayID == "" {
		return fmt.Errorf("replay_id is required")
	}
	switch {
	case p.Dockerfile == "" && p.RepoURL == "":
		return fmt.Errorf("either dockerfile or repo_url is required")
	case p.Dockerfile != "" && p.RepoURL != "":
		return fmt.Errorf("dockerfile and repo_url are mutually exclusive")
	}
	if p.Path != "" && !filepath.IsLocal(p.Path) {
		return fmt.Errorf("path %q must stay inside the repository", p.Path)
	}
	return nil
}

// DockerfilePath returns the repository-relative Dockerfile path
func (p ReplayPayload) DockerfilePath() string {
	if p.Path == "" {
		return "Dockerfile"
	}
	return filepath.Clean(p.Path)
}
