package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/term"

	"hfcloud/console/internal/client"
	"hfcloud/console/internal/models"
)

type globalOptions struct {
	server    string
	stateFile string
}

// builtinDefaults is shown when neither the server nor the cache can answer.
var builtinDefaults = models.SystemConfig{
	SystemName: "HFCloud Edge Platform",
	LogoURL:    "/logo.png",
	LogoSize:   32,
	FaviconURL: "/favicon.ico",
	AdminEmail: "admin@hfcloud.com",
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".consolectl.json"
	}
	return filepath.Join(dir, "consolectl", "state.json")
}

// openAuth builds the auth context and restores any saved session.
func openAuth(ctx context.Context, opts *globalOptions) (*client.AuthContext, error) {
	store, err := client.OpenState(opts.stateFile)
	if err != nil {
		return nil, err
	}
	ac := client.NewAuthContext(client.New(opts.server), store, builtinDefaults, runtime.GOOS)
	if err := ac.Restore(ctx); err != nil {
		return nil, err
	}
	return ac, nil
}

func requireSignedIn(ac *client.AuthContext) error {
	if ac.State() != client.StateAuthenticated {
		if cause := ac.Err(); cause != nil {
			return fmt.Errorf("%w: %v", client.ErrNotSignedIn, cause)
		}
		return errors.New("not signed in, run consolectl login")
	}
	return nil
}

// secretReader prompts on the terminal without echo, or reads lines from a
// pipe.
type secretReader struct {
	in  io.Reader
	out io.Writer
	buf *bufio.Reader
}

func newSecretReader(in io.Reader, out io.Writer) *secretReader {
	return &secretReader{in: in, out: out, buf: bufio.NewReader(in)}
}

func (r *secretReader) read(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)
	if f, ok := r.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.out)
		return string(raw), err
	}
	line, err := r.buf.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
