package tui

import (
	"errors"
	"os/exec"
	"runtime"
)

var errNoExplorer = errors.New("no explorer URL configured")

// browserCommand returns the launcher for url on the given OS.
func browserCommand(goos, url string) (string, []string) {
	switch goos {
	case "windows":
		return "cmd", []string{"/c", "start", url}
	case "darwin":
		return "open", []string{url}
	default:
		return "xdg-open", []string{url}
	}
}

// openExplorer shows url in the default browser without waiting for it.
func openExplorer(url string) error {
	if url == "" {
		return errNoExplorer
	}
	name, args := browserCommand(runtime.GOOS, url)
	return exec.Command(name, args...).Start()
}
