package logging

import (
	"fmt"
	"path/filepath"
)

// DefaultLogDir is where the worker writes log files when run as a service
const DefaultLogDir = "/var/log/worker-metadata"

// LogrotateConfig renders a logrotate(8) stanza for the log files that
// NewFileLogger writes into dir. copytruncate keeps the open file handle valid.
func LogrotateConfig(dir, component string) string {
	if dir == "" {
		dir = DefaultLogDir
	}
	return fmt.Sprintf(`# Logrotate configuration for worker-metadata %s
# Install: sudo cp this file to /etc/logrotate.d/worker-metadata-%s

%s {
    daily
    rotate 14
    compress
    delaycompress
    missingok
    notifempty
    copytruncate
}
`, component, component, filepath.Join(dir, component+".log"))
}
