package toolreg

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// trackedProcess is one background process started through
// server_start. State lives only for the lifetime
// of the running session, same as server_tools.py's in-memory tracker.
type trackedProcess struct {
	cmd       *exec.Cmd
	PID       int
	Name      string
	Command   string
	Port      int
	SessionID int64
	StartedAt time.Time
	exited    atomic.Bool
}

// ProcessTools tracks background servers started during a session: PID,
// port, and liveness, so the agent can check status and clean up
// without shelling out to ps/netstat for every query.
type ProcessTools struct {
	mu          sync.Mutex
	processes   map[int]*trackedProcess
	projectRoot string
	sessionID   int64
}

// NewProcessTools starts with an empty tracker for sessionID.
func NewProcessTools(projectRoot string, sessionID int64) *ProcessTools {
	return &ProcessTools{processes: map[int]*trackedProcess{}, projectRoot: projectRoot, sessionID: sessionID}
}

// RegisterAll adds every server/process tool to r.
func (pt *ProcessTools) RegisterAll(r *Registry) error {
	regs := []struct {
		name, desc string
		schema     string
		handler    Handler
	}{
		{"server_start", "Start a server command in the background and track its PID.", `{
			"type": "object",
			"properties": {
				"command": {"type": "string"},
				"name": {"type": "string"},
				"port": {"type": "integer"}
			},
			"required": ["command"]
		}`, pt.serverStart},
		{"server_status", "Check the status of tracked servers, optionally filtered by port.", `{
			"type": "object",
			"properties": {"port": {"type": "integer"}}
		}`, pt.serverStatus},
		{"server_wait", "Wait for a port to start accepting connections.", `{
			"type": "object",
			"properties": {
				"port": {"type": "integer"},
				"timeout_seconds": {"type": "integer"}
			},
			"required": ["port"]
		}`, pt.serverWait},
		{"process_list", "List all tracked background processes.", `{}`, pt.processList},
		{"process_stop", "Stop a tracked process by PID.", `{
			"type": "object",
			"properties": {"pid": {"type": "integer"}},
			"required": ["pid"]
		}`, pt.processStop},
		{"process_stop_all", "Stop every tracked background process.", `{}`, pt.processStopAll},
	}
	for _, reg := range regs {
		if err := r.Register(reg.name, reg.desc, []byte(reg.schema), reg.handler); err != nil {
			return fmt.Errorf("register %s: %w", reg.name, err)
		}
	}
	return nil
}

func (pt *ProcessTools) serverStart(ctx context.Context, input map[string]any) (map[string]any, error) {
	command, err := requireString(input, "command")
	if err != nil {
		return nil, err
	}
	name, _ := argString(input, "name")
	if name == "" {
		name = "server"
	}
	port, _ := argInt(input, "port")

	if port != 0 && portInUse(port) {
		return nil, fmt.Errorf("port %d is already in use", port)
	}

	shell, flag := "/bin/sh", "-c"
	if runtime.GOOS == "windows" {
		shell, flag = "cmd", "/C"
	}
	cmd := exec.Command(shell, flag, command)
	cmd.Dir = pt.projectRoot
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start server %q: %w", name, err)
	}

	tp := &trackedProcess{
		cmd:       cmd,
		PID:       cmd.Process.Pid,
		Name:      name,
		Command:   command,
		Port:      port,
		SessionID: pt.sessionID,
		StartedAt: time.Now().UTC(),
	}
	pt.mu.Lock()
	pt.processes[tp.PID] = tp
	pt.mu.Unlock()

	go func() {
		cmd.Wait()
		tp.exited.Store(true)
	}()

	return map[string]any{"pid": tp.PID, "name": name, "port": port}, nil
}

func (pt *ProcessTools) serverStatus(ctx context.Context, input map[string]any) (map[string]any, error) {
	port, hasPort := argInt(input, "port")

	pt.mu.Lock()
	defer pt.mu.Unlock()

	var out []map[string]any
	for _, tp := range pt.processes {
		if hasPort && tp.Port != port {
			continue
		}
		out = append(out, map[string]any{
			"pid":        tp.PID,
			"name":       tp.Name,
			"port":       tp.Port,
			"running":    processRunning(tp),
			"started_at": tp.StartedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{"servers": out}, nil
}

func (pt *ProcessTools) serverWait(ctx context.Context, input map[string]any) (map[string]any, error) {
	port, err := requireInt(input, "port")
	if err != nil {
		return nil, err
	}
	timeoutSeconds, _ := argInt(input, "timeout_seconds")
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}

	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	for time.Now().Before(deadline) {
		if portInUse(port) {
			return map[string]any{"ready": true}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return map[string]any{"ready": false}, nil
}

func (pt *ProcessTools) processList(ctx context.Context, input map[string]any) (map[string]any, error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	var out []map[string]any
	for _, tp := range pt.processes {
		out = append(out, map[string]any{
			"pid":     tp.PID,
			"name":    tp.Name,
			"command": tp.Command,
			"port":    tp.Port,
			"running": processRunning(tp),
		})
	}
	return map[string]any{"processes": out}, nil
}

func (pt *ProcessTools) processStop(ctx context.Context, input map[string]any) (map[string]any, error) {
	pid, err := requireInt(input, "pid")
	if err != nil {
		return nil, err
	}
	pt.mu.Lock()
	tp, ok := pt.processes[pid]
	pt.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("pid %d is not tracked", pid)
	}
	if err := tp.cmd.Process.Kill(); err != nil {
		return nil, fmt.Errorf("stop pid %d: %w", pid, err)
	}
	pt.mu.Lock()
	delete(pt.processes, pid)
	pt.mu.Unlock()
	return map[string]any{"stopped": true}, nil
}

func (pt *ProcessTools) processStopAll(ctx context.Context, input map[string]any) (map[string]any, error) {
	pt.mu.Lock()
	pids := make([]int, 0, len(pt.processes))
	for pid := range pt.processes {
		pids = append(pids, pid)
	}
	pt.mu.Unlock()

	var stopped []int
	for _, pid := range pids {
		if _, err := pt.processStop(ctx, map[string]any{"pid": pid}); err == nil {
			stopped = append(stopped, pid)
		}
	}
	return map[string]any{"stopped": stopped}, nil
}

func portInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func processRunning(tp *trackedProcess) bool {
	return !tp.exited.Load()
}
