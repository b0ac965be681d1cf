package constraints

// Webhook event names delivered to tenant callbacks.
const (
	EventTaskCompleted = "task.completed"
	EventTaskFailed    = "task.failed"
)
