package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath names the session log in logsDir, stamped with the session start
// so every run gets its own file.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")),
	)
}
