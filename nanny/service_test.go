//go:build unix

package nanny

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ardnew/nanny/envtext"
)

func testService(t *testing.T, opts ...Option) *Service {
	t.Helper()

	svc, err := New(t.Context(), testOptions(t, opts...)...)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		ctx := context.Background()
		for _, info := range svc.List(ctx) {
			if info.Running {
				_ = svc.Stop(ctx, info.Name)
			}
		}

		_ = svc.Close(ctx)
	})

	return svc
}

func TestService_Lifecycle(t *testing.T) {
	svc := testService(t)
	ctx := t.Context()

	seedApp(t, svc.Store(), "demo", "sleep 30")

	port, err := svc.Start(ctx, "demo")
	if err != nil {
		t.Fatal(err)
	}

	if port < testRange.Lo || port > testRange.Hi {
		t.Errorf("port %d outside %v", port, testRange)
	}

	if again, err := svc.Start(ctx, "demo"); err != nil || again != port {
		t.Errorf("second Start = %d, %v, want %d", again, err, port)
	}

	if got, err := svc.Port("demo"); err != nil || got != port {
		t.Errorf("Port = %d, %v", got, err)
	}

	if err := svc.Heartbeat("demo"); err != nil {
		t.Errorf("Heartbeat: %v", err)
	}

	infos := svc.List(ctx)
	if len(infos) != 1 || !infos[0].Running || !infos[0].Active || infos[0].Port != port || infos[0].PID == 0 {
		t.Fatalf("List = %+v", infos)
	}

	m, _ := svc.Store().Get("demo")
	if !m.Active || m.Port != port || m.LastStart().IsZero() {
		t.Errorf("metadata after Start = %+v", m)
	}

	if err := svc.Stop(ctx, "demo"); err != nil {
		t.Fatal(err)
	}

	if err := svc.Stop(ctx, "demo"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop error = %v", err)
	}

	if err := svc.Heartbeat("demo"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Heartbeat after Stop error = %v", err)
	}

	if _, err := svc.Port("demo"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Port after Stop error = %v", err)
	}

	m, _ = svc.Store().Get("demo")
	if m.Active {
		t.Error("metadata still active after Stop")
	}

	if _, err := os.Stat(filepath.Join(svc.Config().AppDir("demo"), pidFileName)); !os.IsNotExist(err) {
		t.Errorf("pid file after Stop: %v", err)
	}

	again, err := svc.Start(ctx, "demo")
	if err != nil {
		t.Fatal(err)
	}

	if again != port {
		t.Errorf("restart on port %d, want last used %d", again, port)
	}
}

func TestService_UnknownApp(t *testing.T) {
	svc := testService(t)
	ctx := t.Context()

	if _, err := svc.Start(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Start error = %v", err)
	}

	if err := svc.Stop(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stop error = %v", err)
	}

	if _, err := svc.Restart(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Restart error = %v", err)
	}

	if err := svc.Heartbeat("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Heartbeat error = %v", err)
	}

	if _, err := svc.Env("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Env error = %v", err)
	}
}

func TestService_StopKillsStubbornApp(t *testing.T) {
	svc := testService(t, WithStopTimeout(200*time.Millisecond))
	ctx := t.Context()

	seedApp(t, svc.Store(), "stubborn", `sh -c 'trap "" TERM; sleep 30'`)

	if _, err := svc.Start(ctx, "stubborn"); err != nil {
		t.Fatal(err)
	}

	// Give the shell a moment to install its trap.
	time.Sleep(200 * time.Millisecond)

	start := time.Now()

	if err := svc.Stop(ctx, "stubborn"); err != nil {
		t.Fatal(err)
	}

	if elapsed := time.Since(start); elapsed < 200*time.Millisecond || elapsed > 10*time.Second {
		t.Errorf("Stop took %v", elapsed)
	}
}

func TestService_StopAfterExit(t *testing.T) {
	svc := testService(t)
	ctx := t.Context()

	seedApp(t, svc.Store(), "brief", "true")

	if _, err := svc.Start(ctx, "brief"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, ok := svc.runtime.Get("brief"); !ok {
			break
		}

		if time.Now().After(deadline) {
			t.Fatal("app did not exit")
		}

		time.Sleep(20 * time.Millisecond)
	}

	if err := svc.Stop(ctx, "brief"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop after exit error = %v", err)
	}
}

func TestService_RecoverAcrossManagers(t *testing.T) {
	opts := testOptions(t)

	first, err := New(t.Context(), opts...)
	if err != nil {
		t.Fatal(err)
	}

	seedApp(t, first.Store(), "survivor", "sleep 30")

	port, err := first.Start(t.Context(), "survivor")
	if err != nil {
		t.Fatal(err)
	}

	p, _ := first.runtime.Get("survivor")

	if err := first.Close(t.Context()); err != nil {
		t.Fatal(err)
	}

	second, err := New(t.Context(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close(context.Background())

	infos := second.List(t.Context())
	if len(infos) != 1 || !infos[0].Running || infos[0].PID != p.PID || infos[0].Port != port {
		t.Fatalf("List after recovery = %+v", infos)
	}

	if err := second.Stop(t.Context(), "survivor"); err != nil {
		t.Fatal(err)
	}

	if !p.Exited() {
		select {
		case <-p.Done():
		case <-time.After(5 * time.Second):
			t.Error("original process still running")
		}
	}
}

func TestService_ImportEnv(t *testing.T) {
	svc := testService(t)
	ctx := t.Context()

	seedApp(t, svc.Store(), "demo", "sleep 30")

	got, err := svc.ImportEnv(ctx, "demo", "# new\nexport TOKEN=abc\nGREETING='hi there'\n", envtext.ModeUpdate)
	if err != nil {
		t.Fatal(err)
	}

	if want := envtext.FromPairs("GREETING", "hi there", "TOKEN", "abc"); !got.Equal(want) {
		t.Errorf("update = %v", got.ToMap())
	}

	if keys := got.Keys(); keys[0] != "GREETING" || keys[1] != "TOKEN" {
		t.Errorf("update order = %v", keys)
	}

	got, err = svc.ImportEnv(ctx, "demo", "ONLY=1", envtext.ModeOverwrite)
	if err != nil {
		t.Fatal(err)
	}

	if !got.Equal(envtext.FromPairs("ONLY", "1")) {
		t.Errorf("overwrite = %v", got.ToMap())
	}

	stored, _ := svc.Env("demo")
	if !stored.Equal(got) {
		t.Errorf("stored env = %v", stored.ToMap())
	}

	onDisk, _ := svc.Store().ReadEnvFile(ctx, "demo")
	if !onDisk.Equal(got) {
		t.Errorf(".env = %v", onDisk.ToMap())
	}

	if _, err := svc.ImportEnv(ctx, "demo", "A=1", envtext.Mode(9)); !errors.Is(err, envtext.ErrInvalidMode) {
		t.Errorf("invalid mode error = %v", err)
	}
}

func TestService_EnvReachesApp(t *testing.T) {
	svc := testService(t)
	ctx := t.Context()

	seedApp(t, svc.Store(), "printer", `sh -c 'echo "$GREETING/$FROM_FILE/$PORT"'`)

	if err := os.WriteFile(svc.Store().EnvFile("printer"), []byte("FROM_FILE=dotenv\nGREETING=overridden\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	port, err := svc.Start(ctx, "printer")
	if err != nil {
		t.Fatal(err)
	}

	p, ok := svc.runtime.Get("printer")
	if ok {
		<-p.Done()
	}

	out, _ := os.ReadFile(filepath.Join(svc.Config().AppDir("printer"), logDirName, "printer_stdout.log"))

	want := "hello/dotenv/" + itoa(port) + "\n"
	if string(out) != want {
		t.Errorf("app output = %q, want %q", out, want)
	}
}

func TestService_CreateAndRestart(t *testing.T) {
	requireGit(t)

	origin := initRepo(t, map[string]string{"run.sh": "sleep 30\n"})
	svc := testService(t)
	ctx := t.Context()

	req := CreateRequest{
		Name:    "repo",
		Kind:    "command",
		Repo:    origin,
		Command: "sh run.sh",
		Env:     envtext.FromPairs("MODE", "test"),
	}

	port, err := svc.Create(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	if port < testRange.Lo || port > testRange.Hi {
		t.Errorf("Create port %d outside %v", port, testRange)
	}

	if _, err := svc.Create(ctx, req); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate Create error = %v", err)
	}

	m, err := svc.Store().Get("repo")
	if err != nil {
		t.Fatal(err)
	}

	if !m.Active || m.Port != port || m.LastStart().IsZero() || m.Kind != KindCommand {
		t.Errorf("created metadata = %+v", m)
	}

	if data, _ := os.ReadFile(svc.Store().EnvFile("repo")); string(data) != "MODE=test\n" {
		t.Errorf(".env = %q", data)
	}

	before, ok := svc.runtime.Get("repo")
	if !ok {
		t.Fatal("created app is not running")
	}

	again, err := svc.Restart(ctx, "repo")
	if err != nil {
		t.Fatal(err)
	}

	after, ok := svc.runtime.Get("repo")
	if !ok || after.PID == before.PID {
		t.Errorf("Restart kept the old process")
	}

	if again != port {
		t.Errorf("Restart port = %d, want %d", again, port)
	}

	if !before.Exited() {
		t.Error("old process still running after Restart")
	}
}

func TestService_CreateRollsBack(t *testing.T) {
	requireGit(t)

	origin := initRepo(t, map[string]string{"run.sh": "sleep 30\n"})

	tests := []struct {
		name    string
		req     CreateRequest
		wantErr error
	}{
		{
			name: "multiline env",
			req: CreateRequest{
				Name: "repo", Kind: "command", Repo: origin, Command: "sh run.sh",
				Env: envtext.FromPairs("MULTI", "line1\nline2"),
			},
			wantErr: envtext.ErrUnrepresentable,
		},
		{
			name: "launch failure",
			req: CreateRequest{
				Name: "repo", Kind: "command", Repo: origin, Command: "no-such-binary-for-nanny",
			},
			wantErr: ErrLaunch,
		},
		{
			name: "clone failure",
			req: CreateRequest{
				Name: "repo", Kind: "command", Repo: filepath.Join(t.TempDir(), "missing"), Command: "sh run.sh",
			},
			wantErr: ErrRepository,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := testService(t)
			ctx := t.Context()

			if _, err := svc.Create(ctx, tt.req); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Create error = %v, want %v", err, tt.wantErr)
			}

			if _, err := svc.Store().Get("repo"); !errors.Is(err, ErrNotFound) {
				t.Errorf("metadata kept after failed Create: %v", err)
			}

			if _, err := os.Stat(svc.Config().AppDir("repo")); !os.IsNotExist(err) {
				t.Errorf("checkout kept after failed Create: %v", err)
			}

			retry := CreateRequest{
				Name: "repo", Kind: "command", Repo: origin, Command: "sh run.sh",
				Env: envtext.FromPairs("MODE", "retry"),
			}

			if _, err := svc.Create(ctx, retry); err != nil {
				t.Errorf("retry Create: %v", err)
			}
		})
	}
}

func TestService_ImportEnvConcurrent(t *testing.T) {
	svc := testService(t)
	ctx := t.Context()

	seedApp(t, svc.Store(), "demo", "sleep 30")

	const n = 40

	var wg sync.WaitGroup

	for i := range n {
		wg.Go(func() {
			if _, err := svc.ImportEnv(ctx, "demo", "K"+itoa(i)+"=v", envtext.ModeUpdate); err != nil {
				t.Errorf("ImportEnv(%d): %v", i, err)
			}
		})
	}

	wg.Wait()

	env, err := svc.Env("demo")
	if err != nil {
		t.Fatal(err)
	}

	if env.Len() != n+1 {
		t.Errorf("env has %d entries, want %d", env.Len(), n+1)
	}

	if v, _ := env.Get("GREETING"); v != "hello" {
		t.Errorf("GREETING = %q", v)
	}

	onDisk, _ := svc.Store().ReadEnvFile(ctx, "demo")
	if !onDisk.Equal(env) {
		t.Errorf(".env has %d entries, metadata %d", onDisk.Len(), env.Len())
	}
}

func TestService_CreateInvalid(t *testing.T) {
	svc := testService(t)

	_, err := svc.Create(t.Context(), CreateRequest{Name: "bad/name", Kind: "flask", Repo: "r", Path: "a.py"})
	if !errors.Is(err, ErrInvalidName) {
		t.Errorf("Create error = %v", err)
	}
}
