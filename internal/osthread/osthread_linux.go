//go:build linux

package osthread

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Current returns the kernel thread id of the calling thread.
func Current() int {
	return unix.Gettid()
}

// Pin restricts the current thread to a single CPU. Out-of-range ids wrap
// around the number of logical CPUs.
func Pin(cpu int) error {
	n := NumCPU()
	cpu = ((cpu % n) + n) % n

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(cpu)

	return unix.SchedSetaffinity(0, &mask) // 0 = current thread
}

// SetName sets the name shown by ps and /proc/<pid>/task/<tid>/comm.
func SetName(name string) error {
	if len(name) > 15 {
		name = name[:15]
	}
	p, err := unix.BytePtrFromString(name)
	if err != nil {
		return err
	}
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(p)), 0, 0, 0)
}

// Priority returns the nice value of thread tid.
func Priority(tid int) (int, error) {
	// The raw syscall reports 20 - nice.
	raw, err := unix.Getpriority(unix.PRIO_PROCESS, tid)
	if err != nil {
		return 0, err
	}
	return 20 - raw, nil
}

// SetPriority sets the nice value of thread tid. Raising priority
// (lowering nice) usually requires CAP_SYS_NICE.
func SetPriority(tid, nice int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, tid, nice)
}

// NumCPU returns the number of logical CPUs available.
func NumCPU() int {
	return runtime.NumCPU()
}
