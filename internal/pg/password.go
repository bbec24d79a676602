package pg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/term"
)

// passwordCommandTimeout bounds password_command execution.
const passwordCommandTimeout = 5 * time.Second

// supplementPassword returns a password for a target whose URL carried none,
// using the following precedence:
// 1. Execute the password command if configured
// 2. Prompt interactively if enabled, PGPASSWORD is unset and stdin is a terminal
// 3. Nothing; pgx falls back to PGPASSWORD and the password file itself
func supplementPassword(ctx context.Context, opts Options, label string) (string, bool, error) {
	if opts.PasswordCommand != "" {
		password, err := executePasswordCommand(ctx, opts.PasswordCommand)
		if err != nil {
			return "", false, fmt.Errorf("password command failed: %w", err)
		}
		return password, true, nil
	}

	if opts.PromptPassword {
		if _, set := os.LookupEnv("PGPASSWORD"); !set && term.IsTerminal(int(os.Stdin.Fd())) {
			password, err := promptForPassword(fmt.Sprintf("Password for %s: ", label))
			if err != nil {
				return "", false, fmt.Errorf("interactive password prompt failed: %w", err)
			}
			return password, true, nil
		}
	}

	return "", false, nil
}

// executePasswordCommand runs command and returns its trimmed stdout.
func executePasswordCommand(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, passwordCommandTimeout)
	defer cancel()

	// Split on spaces; no shell quoting
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", fmt.Errorf("empty password command")
	}

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("command timed out after %s", passwordCommandTimeout)
		}
		return "", fmt.Errorf("command failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	password := strings.TrimSpace(stdout.String())
	if password == "" {
		return "", fmt.Errorf("command returned empty password")
	}

	return password, nil
}

// promptForPassword reads a password from the terminal with echo disabled.
func promptForPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Fprintln(os.Stderr)

	password := string(passwordBytes)
	if password == "" {
		return "", fmt.Errorf("empty password entered")
	}

	return password, nil
}
