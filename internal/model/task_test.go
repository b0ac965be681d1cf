package model

import "testing"

func TestTaskTerminal(t *testing.T) {
	tests := []struct {
		name     string
		task     FetchTask
		terminal bool
	}{
		{"queued", FetchTask{Status: TaskQueued, MaxRetry: 3}, false},
		{"processing", FetchTask{Status: TaskProcessing, MaxRetry: 3}, false},
		{"completed", FetchTask{Status: TaskCompleted, MaxRetry: 3}, true},
		{"failed with budget", FetchTask{Status: TaskFailed, RetryCount: 1, MaxRetry: 3}, false},
		{"failed exhausted", FetchTask{Status: TaskFailed, RetryCount: 3, MaxRetry: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.Terminal(); got != tt.terminal {
				t.Errorf("Terminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestTaskStatusName(t *testing.T) {
	if TaskStatusName(TaskQueued) != "QUEUED" ||
		TaskStatusName(TaskProcessing) != "PROCESSING" ||
		TaskStatusName(TaskCompleted) != "COMPLETED" ||
		TaskStatusName(TaskFailed) != "FAILED" {
		t.Error("status names out of sync with constants")
	}
	if TaskStatusName(99) != "UNKNOWN" {
		t.Error("unknown status should map to UNKNOWN")
	}
}
