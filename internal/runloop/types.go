package runloop

import "time"

// DevboxStatus is the provider-reported lifecycle state of a devbox.
type DevboxStatus string

const (
	StatusProvisioning DevboxStatus = "provisioning"
	StatusRunning      DevboxStatus = "running"
	StatusSuspended    DevboxStatus = "suspended"
	StatusShutdown     DevboxStatus = "shutdown"
	StatusFailed       DevboxStatus = "failed"
	StatusUnknown      DevboxStatus = "unknown"
)

// BlueprintStatus is the provider-reported build state of a blueprint.
type BlueprintStatus string

const (
	BlueprintBuilding      BlueprintStatus = "building"
	BlueprintBuildComplete BlueprintStatus = "build_complete"
	BlueprintFailed        BlueprintStatus = "failed"
)

// Devbox is a remote instance as reported by the provider.
type Devbox struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Status      DevboxStatus `json:"status"`
	BlueprintID string       `json:"blueprint_id,omitempty"`
	CreatedAt   string       `json:"created_at,omitempty"`
}

// IsRunning reports whether the devbox can accept commands.
func (d *Devbox) IsRunning() bool {
	return d.Status == StatusRunning
}

// CreatedTime parses the created_at timestamp. The second return value is
// false when the field is absent or unparseable.
func (d *Devbox) CreatedTime() (time.Time, bool) {
	return parseCreatedAt(d.CreatedAt)
}

// Blueprint is a reusable devbox image definition.
type Blueprint struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Status    BlueprintStatus `json:"status"`
	CreatedAt string          `json:"created_at,omitempty"`
}

// IsReady reports whether devboxes can be launched from this blueprint.
func (b *Blueprint) IsReady() bool {
	return b.Status == BlueprintBuildComplete
}

// CreatedTime parses the created_at timestamp. The second return value is
// false when the field is absent or unparseable.
func (b *Blueprint) CreatedTime() (time.Time, bool) {
	return parseCreatedAt(b.CreatedAt)
}

// ExecResult is the outcome of a synchronous command execution.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitStatus int    `json:"exit_status"`
}

// Success reports whether the command exited cleanly.
func (r ExecResult) Success() bool {
	return r.ExitStatus == 0
}

func parseCreatedAt(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
