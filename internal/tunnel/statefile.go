package tunnel

import (
	"encoding/json"
	"fmt"
	"os"
)

// stateFile is the on-disk projection of State, so a later `sync-config`
// invocation can learn the live listening ports without talking to the
// (already detached) supervisor process.
type stateFile struct {
	PID         int    `json:"pid"`
	ListenPorts []int  `json:"listen_ports"`
	Status      string `json:"status"`
}

func writeStateFile(path string, st State) error {
	data, err := json.MarshalIndent(stateFile{
		PID:         st.PID,
		ListenPorts: st.ListenPorts,
		Status:      st.Status.String(),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readStateFile(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return State{}, fmt.Errorf("corrupt state file %s: %w", path, err)
	}
	st := State{PID: sf.PID, ListenPorts: sf.ListenPorts}
	switch sf.Status {
	case "running":
		st.Status = Running
	case "starting":
		st.Status = Starting
	case "failed":
		st.Status = Failed
	default:
		st.Status = Stopped
	}
	return st, nil
}
