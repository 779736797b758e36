// Package kcrtool guards the kcr binary (the Kithare compiler the bot
// shells out to): single-flight pull/install from the nightly build
// artifacts, and a run wrapper with timeout and one self-healing retry
package kcrtool

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBranch is pulled when no branch is given
	DefaultBranch = "main"

	// DefaultRunTimeout bounds kcr runs unless overridden
	DefaultRunTimeout = 5 * time.Second

	// DefaultIndexURL is the build-artifact index the installers are
	// fetched from
	DefaultIndexURL = "https://nightly.link/Kithare/Kithare/workflows/"

	// pullPollInterval is how often Run re-checks an in-flight pull
	pullPollInterval = 100 * time.Millisecond
)

var (
	ErrAlreadyPulling    = errors.New("another pull operation is already running")
	ErrNoMatchingPackage = errors.New("no installable package for the bot host machine")
	ErrToolMissing       = errors.New("kcr is not installed and automatic recovery failed")
	ErrTimeout           = errors.New("kcr command timed out")
)

// FetchError reports that the artifact index did not return an archive
type FetchError struct {
	Status      int
	ContentType string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("artifact fetch returned %q (status %d), expected a zip archive",
		e.ContentType, e.Status)
}

// Tool owns the kcr installation and the process-wide pull state.
// There is exactly one Tool per process; the pulling flag is the only
// cross-task shared mutable state and is cleared on every exit path.
type Tool struct {
	distRoot string
	indexURL string
	client   *http.Client
	binName  string

	mu      sync.Mutex
	pulling bool
}

// New creates the tool guard rooted at distRoot. The kcr binary lives
// at <distRoot>/Kithare/kcr.
func New(distRoot string) *Tool {
	bin := "kcr"
	if runtime.GOOS == "windows" {
		bin = "kcr.exe"
	}
	return &Tool{
		distRoot: distRoot,
		indexURL: DefaultIndexURL,
		client:   &http.Client{Timeout: 120 * time.Second},
		binName:  bin,
	}
}

// SetIndexURL overrides the artifact index (tests)
func (t *Tool) SetIndexURL(url string) { t.indexURL = url }

// BinPath returns the kcr binary path
func (t *Tool) BinPath() string {
	return filepath.Join(t.distRoot, "Kithare", t.binName)
}

// Pulling reports whether a pull is in flight
func (t *Tool) Pulling() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pulling
}

func (t *Tool) beginPull() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pulling {
		return false
	}
	t.pulling = true
	return true
}

func (t *Tool) endPull() {
	t.mu.Lock()
	t.pulling = false
	t.mu.Unlock()
}

// Ensure pulls kcr if it is not installed yet
func (t *Tool) Ensure(ctx context.Context) error {
	if _, err := os.Stat(t.BinPath()); err == nil {
		return nil
	}
	return t.Pull(ctx, DefaultBranch)
}

// Pull fetches and installs the kcr build for this machine from the
// artifact index. Single-flight: a concurrent pull fails fast with
// ErrAlreadyPulling instead of queueing.
func (t *Tool) Pull(ctx context.Context, branch string) error {
	if !t.beginPull() {
		return ErrAlreadyPulling
	}

	staging := filepath.Join(filepath.Dir(t.distRoot), "kithare-staging")
	defer func() {
		if err := rmTree(staging); err != nil {
			log.Printf("[WARN] Failed to clean staging dir: %v", err)
		}
		t.endPull()
	}()

	log.Printf("[START] Pulling Kithare (branch: %s)...", branch)

	if err := rmTree(t.distRoot); err != nil {
		return fmt.Errorf("clear dist dir: %w", err)
	}

	machine := machineTag()
	system := runtime.GOOS
	if system == "linux" && machine != "x86" && machine != "x64" {
		system += "-multiarch"
	}

	url := fmt.Sprintf("%s%s/%s/kithare-%s-installers.zip", t.indexURL, system, branch, system)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build artifact request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch installers: %w", err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/zip") {
		return &FetchError{Status: resp.StatusCode, ContentType: contentType}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read installers: %w", err)
	}
	outer, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open installers archive: %w", err)
	}
	if err := extractZip(outer, staging); err != nil {
		return fmt.Errorf("extract installers: %w", err)
	}

	// first installer matching the machine tag wins
	matches, err := filepath.Glob(filepath.Join(staging, "*"+machine+".zip"))
	if err != nil || len(matches) == 0 {
		return ErrNoMatchingPackage
	}

	inner, err := zip.OpenReader(matches[0])
	if err != nil {
		return fmt.Errorf("open installer package: %w", err)
	}
	defer inner.Close()
	if err := extractZip(&inner.Reader, t.distRoot); err != nil {
		return fmt.Errorf("install package: %w", err)
	}

	// zip extraction loses the permission bits
	err = filepath.WalkDir(t.distRoot, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Chmod(path, 0o775)
	})
	if err != nil {
		return fmt.Errorf("fix dist permissions: %w", err)
	}

	log.Printf("[OK] Kithare installed at %s", t.distRoot)
	return nil
}

// Run executes kcr with the given arguments under a timeout (0 means
// the default). On a missing binary it pulls once and retries exactly
// once; a second miss is terminal for this invocation.
func (t *Tool) Run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	return t.run(ctx, timeout, args, true)
}

func (t *Tool) run(ctx context.Context, timeout time.Duration, args []string, retry bool) (string, error) {
	// wait out any in-flight pull before touching the binary
	for t.Pulling() {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pullPollInterval):
		}
	}

	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.BinPath(), args...)
	out, err := cmd.CombinedOutput()

	if runCtx.Err() == context.DeadlineExceeded {
		return "", ErrTimeout
	}
	// a killed run (caller cancellation) must not pass off its partial
	// output as compiler diagnostics
	if cerr := runCtx.Err(); cerr != nil {
		return "", cerr
	}
	if err != nil {
		if isNotFound(err) {
			if !retry {
				return "", ErrToolMissing
			}
			if perr := t.Pull(ctx, DefaultBranch); perr != nil {
				return "", perr
			}
			return t.run(ctx, timeout, args, false)
		}
		// nonzero exits still carry useful compiler output
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), nil
		}
		return "", fmt.Errorf("run kcr: %w", err)
	}
	return string(out), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}

// machineTag maps GOARCH to the artifact naming used by the Kithare
// build workflows
func machineTag() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x64"
	case "386":
		return "x86"
	case "arm64":
		return "arm64"
	case "arm":
		return "armv7"
	case "ppc64le":
		return "ppc64le"
	default:
		return runtime.GOARCH
	}
}

// rmTree removes a directory tree, clearing read-only bits if a first
// attempt fails (zip extraction and Windows like to leave those)
func rmTree(top string) error {
	if _, err := os.Stat(top); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(top); err == nil {
		return nil
	}
	_ = filepath.WalkDir(top, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		_ = os.Chmod(path, 0o775)
		return nil
	})
	return os.RemoveAll(top)
}

// extractZip unpacks an archive under dest, rejecting entries that
// escape it
func extractZip(r *zip.Reader, dest string) error {
	for _, f := range r.File {
		target := filepath.Join(dest, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) &&
			target != filepath.Clean(dest) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o775); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o775); err != nil {
			return err
		}
		src, err := f.Open()
		if err != nil {
			return err
		}
		dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o664)
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
