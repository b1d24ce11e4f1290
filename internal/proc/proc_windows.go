//go:build windows

package proc

import (
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

// listByName enumerates processes via a toolhelp snapshot.
func listByName(name string) ([]Info, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snapshot)

	var pe windows.ProcessEntry32
	pe.Size = uint32(unsafe.Sizeof(pe))

	if err := windows.Process32First(snapshot, &pe); err != nil {
		return nil, err
	}

	nameLower := strings.ToLower(name)
	var result []Info
	for {
		exe := windows.UTF16ToString(pe.ExeFile[:])
		if strings.ToLower(exe) == nameLower {
			info := Info{PID: int(pe.ProcessID), Name: exe}
			if path := processPath(pe.ProcessID); path != "" {
				info.Path = path
			}
			result = append(result, info)
		}
		if err := windows.Process32Next(snapshot, &pe); err != nil {
			break
		}
	}
	return result, nil
}

// processPath retrieves the full exe path for a PID, best effort.
func processPath(pid uint32) string {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(h)

	var buf [windows.MAX_PATH]uint16
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return ""
	}
	return filepath.Clean(windows.UTF16ToString(buf[:size]))
}

func terminate(pid int) error {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)
	return windows.TerminateProcess(h, 1)
}
