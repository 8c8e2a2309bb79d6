package dto

type MemoryHealthResponse struct {
	Status             string `json:"status"`
	TotalConversations int64  `json:"total_conversations"`
	UniqueUsers        int64  `json:"unique_users"`
	Last24h            int64  `json:"last_24h"`
	Error              string `json:"error,omitempty"`
}

type MemoryUserResponse struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type PruneRequest struct {
	OlderThanDays int `json:"older_than_days" validate:"omitempty,min=1,max=3650"`
}

type PruneResponse struct {
	Deleted   int64  `json:"deleted"`
	OlderThan string `json:"older_than"`
}
