package kcrtool

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const fakeKcrScript = "#!/bin/sh\necho kcr v0.1\n"

func zipBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// installerArchive builds the nightly artifact layout: an outer zip of
// per-machine installer zips
func installerArchive(t *testing.T, inner map[string][]byte) []byte {
	t.Helper()
	return zipBytes(t, map[string][]byte{
		"kithare-" + machineTag() + ".zip": zipBytes(t, inner),
	})
}

func archiveServer(t *testing.T, tool *Tool, body []byte, contentType string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	tool.SetIndexURL(srv.URL + "/")
	return srv
}

func newTestTool(t *testing.T) *Tool {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "dist"))
}

func TestPullInstallsBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	tool := newTestTool(t)
	archive := installerArchive(t, map[string][]byte{
		"Kithare/kcr": []byte(fakeKcrScript),
	})
	archiveServer(t, tool, archive, "application/zip")

	if err := tool.Pull(context.Background(), "main"); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	info, err := os.Stat(tool.BinPath())
	if err != nil {
		t.Fatalf("binary not installed: %v", err)
	}
	if info.Mode().Perm() != 0o775 {
		t.Errorf("binary mode = %o, want 775", info.Mode().Perm())
	}

	out, err := tool.Run(context.Background(), 0, "-v")
	if err != nil {
		t.Fatalf("Run after Pull failed: %v", err)
	}
	if strings.TrimSpace(out) != "kcr v0.1" {
		t.Errorf("Run output = %q", out)
	}
}

func TestPullRejectsNonZipResponse(t *testing.T) {
	tool := newTestTool(t)
	archiveServer(t, tool, []byte("<html>not found</html>"), "text/html")

	err := tool.Pull(context.Background(), "main")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("got %v, want FetchError", err)
	}
	if fetchErr.ContentType != "text/html" || fetchErr.Status != http.StatusOK {
		t.Errorf("fetch error = %+v", fetchErr)
	}
	if tool.Pulling() {
		t.Error("pulling flag stuck after failed pull")
	}
}

func TestPullNoMatchingPackage(t *testing.T) {
	tool := newTestTool(t)
	// outer archive carries installers for some other machine only
	archive := zipBytes(t, map[string][]byte{
		"kithare-notmymachine.zip": zipBytes(t, map[string][]byte{"x": nil}),
	})
	archiveServer(t, tool, archive, "application/zip")

	if err := tool.Pull(context.Background(), "main"); !errors.Is(err, ErrNoMatchingPackage) {
		t.Fatalf("got %v, want ErrNoMatchingPackage", err)
	}
	if tool.Pulling() {
		t.Error("pulling flag stuck after failed pull")
	}
}

func TestPullSingleFlight(t *testing.T) {
	tool := newTestTool(t)
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.Header().Set("Content-Type", "text/plain")
	}))
	defer srv.Close()
	tool.SetIndexURL(srv.URL + "/")

	done := make(chan error, 1)
	go func() { done <- tool.Pull(context.Background(), "main") }()
	<-started

	if err := tool.Pull(context.Background(), "main"); !errors.Is(err, ErrAlreadyPulling) {
		t.Errorf("concurrent pull: got %v, want ErrAlreadyPulling", err)
	}

	close(release)
	if err := <-done; err == nil {
		t.Error("first pull unexpectedly succeeded")
	}
	if tool.Pulling() {
		t.Error("pulling flag stuck after pull finished")
	}
}

// a missing binary triggers exactly one pull-and-retry; if the pulled
// package still lacks the binary the run fails with ErrToolMissing
func TestRunRetriesOnceThenGivesUp(t *testing.T) {
	tool := newTestTool(t)
	archive := installerArchive(t, map[string][]byte{
		"Kithare/readme.txt": []byte("no binary in here"),
	})
	archiveServer(t, tool, archive, "application/zip")

	_, err := tool.Run(context.Background(), 0, "-v")
	if !errors.Is(err, ErrToolMissing) {
		t.Fatalf("got %v, want ErrToolMissing", err)
	}
}

func TestRunTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	tool := newTestTool(t)
	writeFakeBinary(t, tool, "#!/bin/sh\nsleep 5\n")

	_, err := tool.Run(context.Background(), 50*time.Millisecond, "-v")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

// cancelling the caller context kills the run; the partial output must
// not come back looking like a successful exit
func TestRunCanceledContext(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	tool := newTestTool(t)
	writeFakeBinary(t, tool, "#!/bin/sh\necho partial\nsleep 5\n")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	out, err := tool.Run(ctx, time.Minute, "-v")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got (%q, %v), want context.Canceled", out, err)
	}
	if out != "" {
		t.Errorf("canceled run returned output %q", out)
	}
}

// nonzero exits are not errors: the output is compiler diagnostics
func TestRunKeepsOutputOnNonzeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	tool := newTestTool(t)
	writeFakeBinary(t, tool, "#!/bin/sh\necho syntax error\nexit 1\n")

	out, err := tool.Run(context.Background(), 0, "broken.kh")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(out) != "syntax error" {
		t.Errorf("output = %q", out)
	}
}

func TestEnsureSkipsPullWhenInstalled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	tool := newTestTool(t)
	writeFakeBinary(t, tool, fakeKcrScript)
	// any pull attempt would hit this and fail loudly
	tool.SetIndexURL("http://127.0.0.1:0/")

	if err := tool.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
}

func writeFakeBinary(t *testing.T, tool *Tool, script string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(tool.BinPath()), 0o775); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tool.BinPath(), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
}
