package scheduler

// JobListResponse represents a scheduled job in list responses
type JobListResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	JobType   string  `json:"job_type"`
	Cron      string  `json:"cron"`
	Timezone  string  `json:"timezone"`
	Enabled   bool    `json:"enabled"`
	FilePath  string  `json:"file_path"`
	LastRunAt *string `json:"last_run_at"` // ISO 8601 format
	NextRun   *string `json:"next_run"`    // ISO 8601 format
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// UpsertJobRequest represents a request to create or update a scheduled job
type UpsertJobRequest struct {
	Name     string      `json:"name"`
	JobType  string      `json:"job_type"` // "school_upload" or "contact_update"
	Cron     string      `json:"cron"`
	Timezone string      `json:"timezone"`
	Enabled  bool        `json:"enabled"`
	Payload  interface{} `json:"payload"` // ImportJobPayload as a map, struct or JSON string
}

// ImportJobPayload points a scheduled import at the spreadsheet it re-reads on every run
type ImportJobPayload struct {
	FilePath string `json:"file_path"`
}
