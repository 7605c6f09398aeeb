package common

import (
	"bufio"
	"encoding/json"
	"io"
)

// ParseLogs decodes JSON log lines captured by SetTestCaptureLogger,
// skipping lines that are not JSON.
func ParseLogs(r io.Reader) []map[string]any {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var logs []map[string]any

	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err == nil {
			logs = append(logs, entry)
		}
	}
	return logs
}

// FindLog returns the first entry matching every key/value pair in match.
func FindLog(logs []map[string]any, match map[string]any) (map[string]any, bool) {
	for _, entry := range logs {
		ok := true
		for k, v := range match {
			if entry[k] != v {
				ok = false
				break
			}
		}
		if ok {
			return entry, true
		}
	}
	return nil, false
}
