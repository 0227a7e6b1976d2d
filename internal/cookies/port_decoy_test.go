package cookies

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"browseros-mcporter/internal/selfexe"
)

const decoyEnv = "BROWSEROS_COOKIES_DECOY"

// TestDecoyServe is the body of the listening decoy started below.
func TestDecoyServe(t *testing.T) {
	if os.Getenv(decoyEnv) != "1" {
		return
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		os.Exit(2)
	}
	fmt.Println(ln.Addr().(*net.TCPAddr).Port)
	time.Sleep(30 * time.Second)
	os.Exit(0)
}

func TestPortFinderSkipsOwnServeListener(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("relies on /proc socket and executable tables")
	}
	self, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	me, err := gopsproc.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		t.Fatal(err)
	}
	name, err := me.NameWithContext(ctx)
	if err != nil || name == "" {
		t.Skipf("process name unavailable: %v", err)
	}

	cmd := exec.Command(self, "-test.run=^TestDecoyServe$")
	cmd.Args[0] = "browseros serve"
	cmd.Env = append(os.Environ(), decoyEnv+"=1")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start decoy: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	line, err := bufio.NewReader(stdout).ReadString('\n')
	if err != nil {
		t.Fatalf("read decoy port: %v", err)
	}
	port, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		t.Fatalf("decoy printed %q", line)
	}

	blind := NewPortFinder(0, name, nil)
	blind.self = selfexe.NewMatcher("", nil)
	got, err := blind.Find(ctx)
	if err != nil {
		t.Skipf("socket owners not visible here: %v", err)
	}
	if got != port {
		t.Skipf("another %s listener on %d shadows the decoy on %d", name, got, port)
	}

	if got, err := NewPortFinder(0, name, nil).Find(ctx); !errors.Is(err, ErrPortNotFound) {
		t.Errorf("expected the serve listener to be skipped, got port %d err %v", got, err)
	}
}
