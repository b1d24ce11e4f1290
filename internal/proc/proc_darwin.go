//go:build darwin

package proc

import (
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// proc_info syscall constants (from XNU bsd/sys/proc_info.h).
const (
	sysProcInfo          = 336 // SYS_PROC_INFO
	procInfoCallListPIDs = 1   // PROC_INFO_CALL_LISTPIDS
	procInfoCallPIDInfo  = 2   // PROC_INFO_CALL_PIDINFO
	procAllPIDs          = 1   // PROC_ALL_PIDS
	procPIDPathInfo      = 11  // PROC_PIDPATHINFO
	procPIDPathInfoMaxSz = 4096
)

// listByName lists all PIDs via SYS_PROC_INFO and resolves each executable
// path with the proc_pidpath equivalent (no CGO).
func listByName(name string) ([]Info, error) {
	pids, err := listAllPIDs()
	if err != nil {
		return nil, err
	}

	var result []Info
	for _, pid := range pids {
		if pid == 0 {
			continue
		}
		path, err := pidPath(pid)
		if err != nil {
			continue
		}
		base := filepath.Base(path)
		if base == name {
			result = append(result, Info{PID: int(pid), Name: base, Path: path})
		}
	}
	return result, nil
}

func listAllPIDs() ([]uint32, error) {
	buf := make([]uint32, 4096)
	n, _, errno := unix.Syscall6(
		sysProcInfo,
		uintptr(procInfoCallListPIDs),
		uintptr(procAllPIDs),
		0,
		0,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)*4),
	)
	if errno != 0 {
		return nil, errno
	}
	return buf[:n/4], nil
}

func pidPath(pid uint32) (string, error) {
	buf := make([]byte, procPIDPathInfoMaxSz)
	n, _, errno := unix.Syscall6(
		sysProcInfo,
		uintptr(procInfoCallPIDInfo),
		uintptr(pid),
		uintptr(procPIDPathInfo),
		0,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(procPIDPathInfoMaxSz),
	)
	if errno != 0 {
		return "", errno
	}
	if n == 0 {
		return "", unix.ESRCH
	}
	return unix.ByteSliceToString(buf[:n]), nil
}

func terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}
