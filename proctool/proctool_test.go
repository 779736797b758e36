package proctool

import (
	"runtime"
	"strings"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartCapturesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell fixture")
	}
	m := NewManager()
	info, err := m.Start(`sh -c "echo hello"`, false)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if info.ID != "proc-1" || info.PID == 0 {
		t.Errorf("info = %+v", info)
	}

	waitFor(t, "output", func() bool {
		out, err := m.Log(info.ID, 0, 0)
		return err == nil && strings.Contains(out, "hello")
	})

	list := m.List()
	if len(list) != 1 || list[0].ID != info.ID {
		t.Errorf("List = %+v", list)
	}

	waitFor(t, "exit", func() bool { return !m.List()[0].Running })
	if n := m.Reap(); n != 1 {
		t.Errorf("Reap = %d, want 1", n)
	}
	if len(m.List()) != 0 {
		t.Errorf("table not empty after reap: %+v", m.List())
	}
}

func TestWriteAndKill(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell fixture")
	}
	m := NewManager()
	info, err := m.Start("cat", false)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := m.Write(info.ID, "ping\n", false); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	waitFor(t, "echoed input", func() bool {
		out, _ := m.Log(info.ID, 0, 0)
		return strings.Contains(out, "ping")
	})

	if err := m.Kill(info.ID); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	if _, err := m.Log(info.ID, 0, 0); err == nil {
		t.Error("killed process still in table")
	}
}

func TestWriteEOFEndsStdinReader(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell fixture")
	}
	m := NewManager()
	info, err := m.Start("cat", false)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Write(info.ID, "bye\n", true); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	waitFor(t, "exit after eof", func() bool {
		for _, p := range m.List() {
			if p.ID == info.ID {
				return !p.Running
			}
		}
		return true
	})
}

func TestLogOffsetAndLimit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell fixture")
	}
	m := NewManager()
	info, err := m.Start(`sh -c "printf abcdef"`, false)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "output", func() bool {
		out, _ := m.Log(info.ID, 0, 0)
		return len(out) == 6
	})

	out, _ := m.Log(info.ID, 2, 0)
	if out != "cdef" {
		t.Errorf("offset read = %q", out)
	}
	out, _ = m.Log(info.ID, 2, 3)
	if out != "cde" {
		t.Errorf("offset+limit read = %q", out)
	}
	out, _ = m.Log(info.ID, 100, 0)
	if out != "" {
		t.Errorf("past-end read = %q", out)
	}
}

// snapshots taken while the process is still exiting must not touch
// cmd.ProcessState; the recorded exit state is the only source
func TestListDuringExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell fixture")
	}
	m := NewManager()
	info, err := m.Start(`sh -c "exit 3"`, false)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			m.List()
			time.Sleep(time.Millisecond)
		}
	}()
	<-done

	waitFor(t, "exit code", func() bool {
		for _, p := range m.List() {
			if p.ID == info.ID {
				return !p.Running && p.ExitCode == 3
			}
		}
		return false
	})
}

func TestKillAfterExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell fixture")
	}
	m := NewManager()
	info, err := m.Start(`sh -c "true"`, false)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "exit", func() bool {
		for _, p := range m.List() {
			if p.ID == info.ID {
				return !p.Running
			}
		}
		return false
	})

	if err := m.Kill(info.ID); err != nil {
		t.Fatalf("Kill of exited process failed: %v", err)
	}
	if len(m.List()) != 0 {
		t.Errorf("table not empty after kill: %+v", m.List())
	}
}

func TestUnknownProcess(t *testing.T) {
	m := NewManager()
	if _, err := m.Log("proc-404", 0, 0); err == nil {
		t.Error("Log on unknown id succeeded")
	}
	if err := m.Kill("proc-404"); err == nil {
		t.Error("Kill on unknown id succeeded")
	}
	if err := m.Write("proc-404", "x", false); err == nil {
		t.Error("Write on unknown id succeeded")
	}
}

func TestStartRejectsBadCommand(t *testing.T) {
	m := NewManager()
	if _, err := m.Start("", false); err == nil {
		t.Error("empty command accepted")
	}
	if _, err := m.Start(`sh -c "unterminated`, false); err == nil {
		t.Error("unbalanced quoting accepted")
	}
}
