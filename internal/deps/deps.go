// Package deps checks that the external binaries remux shells out to are
// resolvable before the daemon accepts work.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"remux/internal/config"
)

// Requirement defines an external dependency remux relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the external binaries for the given configuration.
func Requirements(cfg *config.Config) []Requirement {
	binary := "ffmpeg"
	if cfg != nil && strings.TrimSpace(cfg.Encoder.Binary) != "" {
		binary = strings.TrimSpace(cfg.Encoder.Binary)
	}
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     binary,
			Description: "Codec engine for all transcode work",
		},
		{
			Name:        "FFprobe",
			Command:     "ffprobe",
			Description: "Media inspection",
			Optional:    true,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the names of required dependencies that are not
// available.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, status := range statuses {
		if status.Optional || status.Available {
			continue
		}
		missing = append(missing, status.Name)
	}
	return missing
}
