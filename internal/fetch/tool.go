package fetch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/lukasz26671/webaudioprov/pkg/logger"
)

const installDirName = "webaudioprov"

// ToolBinaryName is the platform-appropriate file name of the fetch tool.
func ToolBinaryName() string {
	if runtime.GOOS == "windows" {
		return "yt-dlp.exe"
	}

	return "yt-dlp"
}

// InstallTool resolves the fetch tool binary the service should invoke.
//
// A per-installation copy under the user's config directory is preferred;
// if absent, a copy shipped alongside the service in the working directory
// is installed there once and used from then on. When neither exists the
// bare tool name is returned so invocation falls back to PATH resolution
// and a missing tool surfaces per-request as a tool invocation failure.
func InstallTool(workDir string) string {
	name := ToolBinaryName()

	configDir, err := os.UserConfigDir()
	if err != nil {
		log.Warnf("Cannot derive user config dir (%s), resolving fetch tool from PATH\n", err)
		return name
	}

	installed := filepath.Join(configDir, installDirName, name)
	if _, err := os.Stat(installed); err == nil {
		return installed
	}

	source := filepath.Join(workDir, name)
	if _, err := os.Stat(source); errors.Is(err, os.ErrNotExist) {
		if path, lookErr := exec.LookPath(name); lookErr == nil {
			return path
		}

		log.Warnf("Fetch tool '%s' not found in working dir or PATH; requests will fail until it is installed\n", name)
		return name
	}

	if err := copyFile(source, installed); err != nil {
		log.Emit(logger.WARNING, "Failed to install fetch tool to '%s' (%s); using working dir copy\n", installed, err)
		return source
	}

	log.Emit(logger.SUCCESS, "Installed fetch tool to '%s'\n", installed)
	return installed
}

func copyFile(source string, destination string) error {
	if err := os.MkdirAll(filepath.Dir(destination), os.ModeDir|os.ModePerm); err != nil {
		return err
	}

	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(destination, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy fetch tool: %w", err)
	}

	return nil
}
