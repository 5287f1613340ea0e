package deps

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Status represents the installation status of a dependency
type Status struct {
	Name      string
	Installed bool
	Path      string
	Version   string
	// Required is set when the current configuration cannot run without it.
	Required bool
}

const versionTimeout = 3 * time.Second

// Check looks up binary on PATH and reads the first line of its version output.
func Check(binary string, versionArgs ...string) Status {
	path, err := exec.LookPath(binary)
	if err != nil {
		return Status{Name: binary}
	}

	status := Status{
		Name:      binary,
		Installed: true,
		Path:      path,
	}
	if len(versionArgs) == 0 {
		return status
	}

	ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
	defer cancel()

	// some tools print their version on stderr
	output, err := exec.CommandContext(ctx, path, versionArgs...).CombinedOutput()
	if err == nil {
		line, _, _ := strings.Cut(string(output), "\n")
		status.Version = strings.TrimSpace(line)
	}
	return status
}

// CheckWhisperCli checks if whisper-cli, the local fallback transcriber, is installed
func CheckWhisperCli() Status {
	return Check("whisper-cli", "--version")
}

// CheckPwRecord checks for the PipeWire capture tool
func CheckPwRecord() Status {
	return Check("pw-record", "--version")
}

func CheckNotifySend() Status {
	return Check("notify-send", "--version")
}

// Requirements says which optional features the configuration turns on.
type Requirements struct {
	WhisperFallback      bool
	DesktopNotifications bool
}

// Report checks every external tool, marking the ones the requirements need.
func Report(req Requirements) []Status {
	pw := CheckPwRecord()
	pw.Required = true

	whisper := CheckWhisperCli()
	whisper.Required = req.WhisperFallback

	notify := CheckNotifySend()
	notify.Required = req.DesktopNotifications

	return []Status{pw, whisper, notify}
}

// Missing returns the required tools that are not installed.
func Missing(statuses []Status) []string {
	var out []string
	for _, s := range statuses {
		if s.Required && !s.Installed {
			out = append(out, s.Name)
		}
	}
	return out
}
