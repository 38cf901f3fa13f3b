// ABOUTME: Tests for command wiring
// ABOUTME: Runs subcommands in-process and checks flags reach the configuration
package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/harperreed/berkeley-go/internal/config"
	"github.com/harperreed/berkeley-go/internal/coordinator"
	"github.com/harperreed/berkeley-go/internal/participant"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "Berkeley Clock Sync "))
}

func TestFlagsBindToConfigKeys(t *testing.T) {
	req := require.New(t)

	cmd := newCoordinatorCmd()
	newRootCmd().AddCommand(cmd)
	req.NoError(cmd.ParseFlags([]string{"--cycle-period=3s", "--ws-port=9999", "--broadcast-concurrency=2"}))

	v, err := loadViper(cmd, config.SetCoordinatorDefaults)
	req.NoError(err)

	cfg, err := config.LoadCoordinator(v)
	req.NoError(err)
	req.Equal(3*time.Second, cfg.CyclePeriod)
	req.Equal(9999, cfg.WSPort)
	req.Equal(2, cfg.BroadcastConcurrency)
	req.Equal(8080, cfg.Port)
}

func TestCoordinatorPortInUse(t *testing.T) {
	req := require.New(t)

	taken, err := net.Listen("tcp", ":0")
	req.NoError(err)
	defer taken.Close()
	port := taken.Addr().(*net.TCPAddr).Port

	_, err = execute(t, "coordinator", "--port", strconv.Itoa(port), "--log-file", "")

	var bindErr *coordinator.BindError
	req.True(errors.As(err, &bindErr), "expected BindError, got %v", err)
}

func TestParticipantRejectsUnknownTransport(t *testing.T) {
	_, err := execute(t, "participant", "--coordinator", "127.0.0.1:1", "--transport", "udp", "--log-file", "")

	var verrs config.ValidationErrors
	require.True(t, errors.As(err, &verrs), "expected validation errors, got %v", err)
	require.Equal(t, "transport", verrs[0].Field)
}

func TestParticipantUnreachableCoordinator(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = execute(t, "participant", "--coordinator", addr, "--connect-timeout", "1s", "--log-file", "")

	var connectErr *participant.ConnectError
	require.True(t, errors.As(err, &connectErr), "expected ConnectError, got %v", err)
}
