package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"time"

	"vignette/internal/api"
	"vignette/internal/config"
)

const (
	serverStartTimeout = 5 * time.Second
	serverPollInterval = 100 * time.Millisecond
	serverPingTimeout  = 500 * time.Millisecond

	noAutostartEnvKey = "VIGNETTE_NO_AUTOSTART"
)

// withClient runs fn against the configured server, starting a local one for
// the duration of the call when nothing answers.
func withClient(cfg *config.Config, fn func(*api.Client) error) error {
	cleanup, err := ensureServer(cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	return fn(api.NewClient(cfg.APIURL))
}

func ensureServer(cfg *config.Config) (func(), error) {
	client := api.NewClient(cfg.APIURL)
	ctx, cancel := context.WithTimeout(context.Background(), serverPingTimeout)
	defer cancel()

	err := client.Ping(ctx)
	if err == nil {
		return nil, nil
	}
	if !canAutostart(cfg.APIURL) {
		return nil, err
	}

	cmd, err := startServerProcess(cfg)
	if err != nil {
		return nil, fmt.Errorf("start local server: %w", err)
	}

	stop := func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	if err := waitForServer(client, serverStartTimeout); err != nil {
		stop()
		return nil, err
	}
	return stop, nil
}

// canAutostart reports whether a missing server may be spawned locally.
// Remote URLs are never started from the CLI.
func canAutostart(apiURL string) bool {
	if os.Getenv(noAutostartEnvKey) == "1" {
		return false
	}
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func startServerProcess(cfg *config.Config) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(exe, "srv")
	cmd.Env = append(os.Environ(),
		"VIGNETTE_DB="+cfg.DBPath,
		"VIGNETTE_API_URL="+cfg.APIURL,
	)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func waitForServer(client *api.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		err := client.Ping(ctx)
		cancel()
		if err == nil {
			return nil
		}
		// Anything other than a refused connection means the port is held by
		// something that is not a vignette server.
		if !isConnRefused(err) {
			return err
		}
		time.Sleep(serverPollInterval)
	}
	return errors.New("server did not start in time")
}

func isConnRefused(err error) bool {
	var netErr *net.OpError
	return errors.As(err, &netErr)
}
