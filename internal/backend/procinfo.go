package backend

import (
	"os"
	"strconv"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

// procInfo caches the handful of per-process attributes the pattern
// formatter's process_id token and the admin stats surface report,
// queried once lazily rather than on every dispatch.
type procInfo struct {
	once sync.Once
	pid  int32
	name string
	proc *process.Process
}

var globalProcInfo procInfo

func (p *procInfo) init() {
	p.once.Do(func() {
		p.pid = int32(os.Getpid())
		proc, err := process.NewProcess(p.pid)
		if err != nil {
			return
		}
		p.proc = proc
		if name, err := proc.Name(); err == nil {
			p.name = name
		}
	})
}

// ProcessIDAttribute returns the value the worker feeds into
// format.Event.ProcessID — the decimal process ID, matching the
// source library's %(process_id) token.
func ProcessIDAttribute() string {
	globalProcInfo.init()
	return strconv.Itoa(int(globalProcInfo.pid))
}

// ProcessName returns the executable name gopsutil resolved for the
// current process, or "" if that lookup failed.
func ProcessName() string {
	globalProcInfo.init()
	return globalProcInfo.name
}

// CPUAffinityHint reports a lightweight stand-in for the source
// library's CPU-affinity diagnostics: the process's current CPU usage
// percentage and thread count, queried via gopsutil since Go exposes
// no portable CPU-affinity-set API the way pthread_setaffinity_np
// does. Diagnostic only, surfaced through the admin stats endpoint.
func CPUAffinityHint() (cpuPercent float64, numThreads int32) {
	globalProcInfo.init()
	if globalProcInfo.proc == nil {
		return 0, 0
	}
	cpuPercent, _ = globalProcInfo.proc.CPUPercent()
	numThreads, _ = globalProcInfo.proc.NumThreads()
	return cpuPercent, numThreads
}
