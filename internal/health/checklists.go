package health

import "strings"

// GeneralChecklist covers the baseline a general-purpose devbox must satisfy.
// The general pass threshold is 0.80.
func GeneralChecklist() []Check {
	return []Check{
		{Name: "Basic connectivity", Command: "echo 'Hello from devbox'"},
		{Name: "Python availability", Command: "python3 --version"},
		{Name: "Flask availability", Command: `python3 -c 'import flask; print("Flask OK")'`},
		{Name: "Curl availability", Command: "curl --version"},
		{Name: "File system", Command: "ls -la /home/user"},
	}
}

// BackendChecklist covers a model-serving backend devbox. Backends gate on a
// strict 1.00 threshold; callers may still soft-accept a failing instance.
func BackendChecklist() []Check {
	return []Check{
		{Name: "Basic connectivity", Command: "echo 'Hello from devbox'"},
		{Name: "Ollama service", Command: "curl -s http://localhost:11434/api/tags"},
		{Name: "Model server", Command: "curl -s http://localhost:8000/health"},
		{Name: "Model availability", Command: "curl -s http://localhost:8000/qwen/models"},
		{Name: "Python dependencies", Command: `python3 -c 'import flask, requests; print("Dependencies OK")'`},
	}
}

// ChecklistForRole returns the checklist matching a role name. Roles
// containing "backend" get the strict backend battery; everything else gets
// the general battery.
func ChecklistForRole(role string) []Check {
	if isBackendRole(role) {
		return BackendChecklist()
	}
	return GeneralChecklist()
}

func isBackendRole(role string) bool {
	return strings.Contains(strings.ToLower(role), "backend")
}
