package logger

import "github.com/google/uuid"

// ForRun returns a child logger tagged with the command name and a fresh run id.
func (l *Logger) ForRun(command string) (*Logger, string) {
	runID := uuid.NewString()

	return l.With("cmd", command, "run_id", runID), runID
}
