// Package proctool manages helper processes spawned from chat: start,
// inspect, feed stdin and kill, with output captured in a capped
// buffer. Backs the admin proc command group.
package proctool

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/google/shlex"
)

// maxBufferSize caps captured output per process (1MB is plenty for
// chat-driven inspection)
const maxBufferSize = 1 * 1024 * 1024

// Info is a snapshot of one managed process
type Info struct {
	ID        string
	PID       int
	Command   string
	Pty       bool
	Running   bool
	ExitCode  int
	CreatedAt time.Time
}

type process struct {
	id        string
	cmd       *exec.Cmd
	command   string
	pty       *os.File
	stdin     io.WriteCloser
	createdAt time.Time

	bufMu sync.Mutex
	buf   bytes.Buffer

	// exit state recorded by the wait goroutine; cmd.ProcessState is
	// not safe to read while Wait may still be writing it
	stateMu  sync.Mutex
	exited   bool
	exitCode int
}

func (p *process) exitState() (bool, int) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.exited, p.exitCode
}

func (p *process) appendOutput(b []byte) {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	if overflow := p.buf.Len() + len(b) - maxBufferSize; overflow > 0 {
		content := p.buf.String()
		if overflow > len(content) {
			overflow = len(content)
		}
		p.buf.Reset()
		p.buf.WriteString(content[overflow:])
	}
	p.buf.Write(b)
}

// Manager owns the process table
type Manager struct {
	mu    sync.Mutex
	procs map[string]*process
	seq   int
}

// NewManager creates an empty process manager
func NewManager() *Manager {
	return &Manager{procs: make(map[string]*process)}
}

// Start launches a command line, optionally under a pty, and returns
// its session ID
func (m *Manager) Start(command string, usePty bool) (Info, error) {
	parts, err := shlex.Split(command)
	if err != nil {
		return Info{}, fmt.Errorf("parse command: %w", err)
	}
	if len(parts) == 0 {
		return Info{}, fmt.Errorf("empty command")
	}
	cmd := exec.Command(parts[0], parts[1:]...)

	p := &process{
		cmd:       cmd,
		command:   command,
		createdAt: time.Now(),
	}

	if usePty {
		ptyFile, err := pty.Start(cmd)
		if err != nil {
			return Info{}, fmt.Errorf("pty start: %w", err)
		}
		p.pty = ptyFile
		go func() {
			readBuf := make([]byte, 1024)
			for {
				n, err := ptyFile.Read(readBuf)
				if n > 0 {
					p.appendOutput(readBuf[:n])
				}
				if err != nil {
					return
				}
			}
		}()
	} else {
		cmd.Stdout = &lockedWriter{p: p}
		cmd.Stderr = &lockedWriter{p: p}
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return Info{}, fmt.Errorf("stdin pipe: %w", err)
		}
		p.stdin = stdin
		if err := cmd.Start(); err != nil {
			return Info{}, fmt.Errorf("start process: %w", err)
		}
	}

	m.mu.Lock()
	m.seq++
	p.id = fmt.Sprintf("proc-%d", m.seq)
	m.procs[p.id] = p
	m.mu.Unlock()

	log.Printf("[OK] Process started: %s (pid %d, pty %v)", p.id, cmd.Process.Pid, usePty)

	go func() {
		cmd.Wait()
		p.stateMu.Lock()
		p.exited = true
		p.exitCode = cmd.ProcessState.ExitCode()
		p.stateMu.Unlock()
		log.Printf("[END] Process ended: %s (exit code %d)", p.id, cmd.ProcessState.ExitCode())
	}()

	return m.snapshot(p), nil
}

// List returns all managed processes sorted by session ID
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.procs))
	for _, p := range m.procs {
		out = append(out, m.snapshot(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Log returns up to limit bytes of captured output starting at offset
// (limit 0 means all)
func (m *Manager) Log(id string, offset, limit int) (string, error) {
	p, err := m.get(id)
	if err != nil {
		return "", err
	}
	p.bufMu.Lock()
	content := p.buf.String()
	p.bufMu.Unlock()

	if offset < 0 {
		offset = 0
	}
	if offset > len(content) {
		offset = len(content)
	}
	out := content[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Write feeds data to the process stdin (or pty). eof closes the input
// afterwards.
func (m *Manager) Write(id, data string, eof bool) error {
	p, err := m.get(id)
	if err != nil {
		return err
	}

	if data != "" {
		switch {
		case p.pty != nil:
			_, err = p.pty.Write([]byte(data))
		case p.stdin != nil:
			_, err = p.stdin.Write([]byte(data))
		default:
			return fmt.Errorf("stdin not available for %s", id)
		}
		if err != nil {
			return fmt.Errorf("write to %s: %w", id, err)
		}
	}

	if eof {
		if p.pty != nil {
			p.pty.Close()
			p.pty = nil
		}
		if p.stdin != nil {
			p.stdin.Close()
			p.stdin = nil
		}
	}
	return nil
}

// Kill terminates a process and removes it from the table
func (m *Manager) Kill(id string) error {
	p, err := m.get(id)
	if err != nil {
		return err
	}

	if p.pty != nil {
		p.pty.Close()
	}
	if p.stdin != nil {
		p.stdin.Close()
	}
	if exited, _ := p.exitState(); !exited {
		err := p.cmd.Process.Kill()
		if err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill %s: %w", id, err)
		}
	}

	m.mu.Lock()
	delete(m.procs, id)
	m.mu.Unlock()
	return nil
}

// Reap removes exited processes from the table and returns how many
// were dropped
func (m *Manager) Reap() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, p := range m.procs {
		if exited, _ := p.exitState(); exited {
			delete(m.procs, id)
			n++
		}
	}
	return n
}

func (m *Manager) get(id string) (*process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[id]
	if !ok {
		return nil, fmt.Errorf("process not found: %s", id)
	}
	return p, nil
}

func (m *Manager) snapshot(p *process) Info {
	info := Info{
		ID:        p.id,
		Command:   p.command,
		Pty:       p.pty != nil,
		Running:   true,
		CreatedAt: p.createdAt,
	}
	if p.cmd.Process != nil {
		info.PID = p.cmd.Process.Pid
	}
	if exited, code := p.exitState(); exited {
		info.Running = false
		info.ExitCode = code
	}
	return info
}

// lockedWriter routes exec output through the capped buffer
type lockedWriter struct{ p *process }

func (w *lockedWriter) Write(b []byte) (int, error) {
	w.p.appendOutput(b)
	return len(b), nil
}
