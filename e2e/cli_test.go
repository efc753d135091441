package e2e_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/globalchat/internal/api"
	"github.com/mcoot/globalchat/internal/factory"
	"github.com/mcoot/globalchat/internal/gateway"
	"github.com/mcoot/globalchat/internal/services/accounts"
)

// cliRunner manages CLI binary execution
type cliRunner struct {
	binaryPath string
	serverURL  string
	tokenFile  string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	// Find project root (where go.mod is)
	projectRoot := findProjectRoot(t)

	// Build the CLI binary
	binaryPath := filepath.Join(t.TempDir(), "chatctl-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/chatctl")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
		tokenFile:  filepath.Join(t.TempDir(), "token"),
	}
}

func (r *cliRunner) withTokenFile(path string) *cliRunner {
	clone := *r
	clone.tokenFile = path
	return &clone
}

func (r *cliRunner) run(args ...string) (string, error) {
	fullArgs := append([]string{
		"--server", r.serverURL,
		"--token-file", r.tokenFile,
		"--output", "json",
	}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// startTestServer runs the real server stack on a free port
func startTestServer(t *testing.T) string {
	t.Helper()

	// Find a free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	require.NoError(t, listener.Close())
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	app, err := factory.New(factory.Config{
		Accounts: accounts.Config{BcryptCost: bcrypt.MinCost},
		Gateway:  gateway.Config{NotifyRateLimited: true},
	})
	require.NoError(t, err)

	serverCfg := api.DefaultServerConfig()
	serverCfg.Host = "127.0.0.1"
	serverCfg.Port = port
	server := api.NewServer(app.Router(), serverCfg, app.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go app.RunMaintenance(ctx)
	go func() {
		if err := server.Start(); err != nil {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForServer(t, serverURL+"/api/v1/health")

	t.Cleanup(func() {
		cancel()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = server.Shutdown(shutdownCtx)
		_ = app.Shutdown(shutdownCtx)
	})

	return serverURL
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("server did not become ready in time")
}

// Response types for JSON parsing
type loginResponse struct {
	Username string `json:"username"`
	Guest    bool   `json:"guest"`
	Token    string `json:"token"`
}

type messageResponse struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type meResponse struct {
	Username string `json:"username"`
	Guest    bool   `json:"guest"`
}

type accountResponse struct {
	Username   string `json:"username"`
	Experience int    `json:"experience"`
	Level      int    `json:"level"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func TestCLIChatFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	serverURL := startTestServer(t)
	cli := newCLIRunner(t, serverURL)

	t.Run("health", func(t *testing.T) {
		out, err := cli.run("health")
		require.NoError(t, err, out)

		var resp healthResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "ok", resp.Status)
	})

	var first loginResponse
	t.Run("login registers on first use", func(t *testing.T) {
		out, err := cli.run("login", "--user", "alice123", "--pass", "secret12")
		require.NoError(t, err, out)

		require.NoError(t, json.Unmarshal([]byte(out), &first))
		assert.Equal(t, "alice123", first.Username)
		assert.Len(t, first.Token, 43)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		other := cli.withTokenFile(filepath.Join(t.TempDir(), "token"))
		out, err := other.run("login", "--user", "alice123", "--pass", "wrong123")
		require.Error(t, err)
		assert.Contains(t, out, "Wrong password.")
	})

	t.Run("me", func(t *testing.T) {
		out, err := cli.run("me")
		require.NoError(t, err, out)

		var resp meResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "alice123", resp.Username)
		assert.False(t, resp.Guest)
	})

	t.Run("say", func(t *testing.T) {
		out, err := cli.run("say", "hello", "everyone")
		require.NoError(t, err, out)

		var msg messageResponse
		require.NoError(t, json.Unmarshal([]byte(out), &msg))
		assert.Equal(t, "alice123", msg.User)
		assert.Equal(t, "hello everyone", msg.Text)
		assert.NotZero(t, msg.Timestamp)
	})

	t.Run("say inside cooldown is rate limited", func(t *testing.T) {
		out, err := cli.run("say", "again")
		require.Error(t, err)
		assert.Contains(t, out, "rate limited")
	})

	t.Run("guest login", func(t *testing.T) {
		guest := cli.withTokenFile(filepath.Join(t.TempDir(), "token"))
		out, err := guest.run("login", "--guest")
		require.NoError(t, err, out)

		var resp loginResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.True(t, resp.Guest)
		assert.Regexp(t, `^Guest\d{4}$`, resp.Username)
	})

	t.Run("account", func(t *testing.T) {
		out, err := cli.run("account", "alice123")
		require.NoError(t, err, out)

		var resp accountResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "alice123", resp.Username)
		assert.Equal(t, 1, resp.Level)
		assert.Equal(t, 0, resp.Experience)
	})
}
