// Package service installs tinyirc as a systemd user unit that keeps a
// connection open in the background.
package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const unitTemplate = `[Unit]
Description=tinyirc connection to %[1]s
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=%[2]s
Environment="PATH=%[3]s"
%[4]sRestart=on-failure
RestartSec=10

StandardInput=null
StandardOutput=journal
StandardError=journal

[Install]
WantedBy=default.target
`

// Unit describes one installed connection.
type Unit struct {
	// Name is the server label; it becomes part of the unit file name.
	Name string
	Exe  string
	Args []string
	Path string
	// Bus is DBUS_SESSION_BUS_ADDRESS; desktop notifications need it.
	Bus string
}

func (u Unit) FileName() string {
	var b strings.Builder
	for _, r := range strings.ToLower(u.Name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return "tinyirc-" + b.String() + ".service"
}

func (u Unit) Render() string {
	cmd := make([]string, 0, len(u.Args)+1)
	for _, arg := range append([]string{u.Exe}, u.Args...) {
		cmd = append(cmd, quote(arg))
	}

	var bus string
	if u.Bus != "" {
		bus = fmt.Sprintf("Environment=\"DBUS_SESSION_BUS_ADDRESS=%s\"\n", escape(u.Bus))
	}

	return fmt.Sprintf(unitTemplate, u.Name, strings.Join(cmd, " "), escape(u.Path), bus)
}

// escape protects systemd specifiers.
func escape(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

func quote(arg string) string {
	arg = escape(arg)
	if arg != "" && !strings.ContainsAny(arg, " \t\"'\\;") {
		return arg
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(arg) + `"`
}

// Install writes the unit for the running executable with args and
// (re)starts it.
func Install(logger zerolog.Logger, name string, args []string) error {
	envPath := os.Getenv("PATH")
	if envPath == "" {
		return fmt.Errorf("critical env missing: PATH is empty. Cannot install service")
	}

	envDbus := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	if envDbus == "" {
		logger.Warn().Msg("DBUS_SESSION_BUS_ADDRESS is empty, desktop notifications will not work from the service")
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to detect executable path: %w", err)
	}

	exePath, err = filepath.EvalSymlinks(exePath)
	if err != nil {
		return fmt.Errorf("failed to resolve symlinks: %w", err)
	}

	absPath, err := filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home dir: %w", err)
	}

	unit := Unit{Name: name, Exe: absPath, Args: args, Path: envPath, Bus: envDbus}
	systemdDir := filepath.Join(homeDir, ".config", "systemd", "user")
	serviceFile := filepath.Join(systemdDir, unit.FileName())

	logger.Info().Msg("try to delete the old service instance")
	_ = runSystemctl(logger, "disable", "--now", unit.FileName())

	if err := os.MkdirAll(systemdDir, 0o755); err != nil {
		return fmt.Errorf("failed to create systemd directory: %w", err)
	}

	if err := os.WriteFile(serviceFile, []byte(unit.Render()), 0o600); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	logger.Info().Str("path", serviceFile).Msg("service file created")

	for _, args := range [][]string{
		{"daemon-reload"},
		{"enable", unit.FileName()},
		{"restart", unit.FileName()},
	} {
		if err := runSystemctl(logger, args...); err != nil {
			return err
		}
	}

	logger.Info().Msg("service installed and started successfully")
	return nil
}

func runSystemctl(logger zerolog.Logger, args ...string) error {
	logger.Debug().Strs("args", args).Msg("executing systemctl")

	cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl %s failed: %w", strings.Join(args, " "), err)
	}
	return nil
}
