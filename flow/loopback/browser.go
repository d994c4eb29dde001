package loopback

import (
	"fmt"
	"os/exec"
	"runtime"

	autherrors "github.com/jrsteele09/go-mail-oauth/internal/errors"
)

// OpenBrowser opens uri in the default web browser on Linux, macOS and Windows.
// It returns as soon as the browser process has been started.
func OpenBrowser(uri string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.Command("xdg-open", uri)
	case "darwin":
		cmd = exec.Command("open", uri)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", uri)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return autherrors.Wrapf(err, "failed to open browser")
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}
