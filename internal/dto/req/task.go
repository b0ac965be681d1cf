package req

type CreateTaskRequest struct {
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
	SourceURL      string `json:"source_url" binding:"required"`
	CallbackURL    string `json:"callback_url"`
	MaxRetry       int    `json:"max_retry"`
}

type ListTasksRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}