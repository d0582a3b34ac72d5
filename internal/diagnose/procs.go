package diagnose

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// Process is the subset of process metadata the client probe inspects.
type Process struct {
	PID     int32
	Name    string
	Exe     string
	Cmdline string
}

// ProcessLister enumerates running processes.
type ProcessLister interface {
	Processes(ctx context.Context) ([]Process, error)
}

// ProcessListerFunc adapts a function to ProcessLister.
type ProcessListerFunc func(ctx context.Context) ([]Process, error)

func (f ProcessListerFunc) Processes(ctx context.Context) ([]Process, error) { return f(ctx) }

// SystemProcesses lists the host's processes through gopsutil.
type SystemProcesses struct{}

// Processes returns every process whose name can be read. Exe and Cmdline
// are left empty when the OS denies access to them.
func (SystemProcesses) Processes(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		exe, _ := p.ExeWithContext(ctx)
		cmdline, _ := p.CmdlineWithContext(ctx)
		out = append(out, Process{PID: p.Pid, Name: name, Exe: exe, Cmdline: cmdline})
	}
	return out, nil
}
