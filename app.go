package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"dcpinventory-desktop/internal/bootstrap"
	"dcpinventory-desktop/internal/config"
	"dcpinventory-desktop/internal/models"
	"dcpinventory-desktop/internal/services/auth"
	"dcpinventory-desktop/internal/services/scheduler"
	"dcpinventory-desktop/internal/services/upload"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// App struct - main application state
type App struct {
	ctx              context.Context
	cfg              *config.Configuration
	rt               *bootstrap.Runtime
	schedulerService *scheduler.Service
}

// NewApp creates a new App application struct
func NewApp(cfg *config.Configuration) *App {
	return &App{cfg: cfg}
}

// eventSink forwards task progress to the frontend
type eventSink struct {
	ctx context.Context
}

func (e eventSink) Emit(event string, data map[string]interface{}) {
	runtime.EventsEmit(e.ctx, event, data)
}

// startup is called when the app starts. The context is saved
// so we can call the runtime methods
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	rt, err := bootstrap.New(ctx, a.cfg, eventSink{ctx: ctx})
	if err != nil {
		log.Fatalf("FATAL: startup failed: %v", err)
	}
	a.rt = rt
	rt.Log.Info("Application starting up...")

	a.schedulerService = scheduler.NewService(rt.DB, ctx, rt.Uploads, rt.Log)
	if err := a.schedulerService.Start(); err != nil {
		rt.Log.Warnf("Failed to start scheduler: %v", err)
	}

	rt.Log.Info("Startup complete")
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	if a.rt == nil {
		return
	}
	a.rt.Log.Info("Application shutting down...")

	if a.schedulerService != nil {
		a.schedulerService.Stop()
	}

	if err := a.rt.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

// ====================================================================================
// WAILS-BOUND METHODS - Exposed to Frontend
// ====================================================================================

// Session

// Login signs in against the DCP backend
func (a *App) Login(username, password string) (*auth.User, error) {
	return a.rt.Auth.Login(a.ctx, username, password)
}

// Logout clears the stored session
func (a *App) Logout() error {
	return a.rt.Auth.Logout()
}

// CurrentUser returns the signed-in user, or nil when signed out
func (a *App) CurrentUser() (*auth.User, error) {
	user, err := a.rt.Auth.CurrentUser()
	if errors.Is(err, auth.ErrNotSignedIn) {
		return nil, nil
	}
	return user, err
}

// Spreadsheet import

// SelectSpreadsheet opens a native file dialog and returns the chosen path ("" when cancelled)
func (a *App) SelectSpreadsheet() (string, error) {
	return runtime.OpenFileDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Select school list",
		Filters: []runtime.FileFilter{
			{DisplayName: "Spreadsheets (*.xlsx, *.xls)", Pattern: "*.xlsx;*.xls"},
		},
	})
}

// PreviewSchoolUpload parses and reconciles a spreadsheet without submitting it
func (a *App) PreviewSchoolUpload(path string) (*upload.Preview, error) {
	if err := upload.ValidateUploadRequest(&upload.UploadRequest{FilePath: path}); err != nil {
		return nil, err
	}
	return a.rt.Uploads.PreviewFile(a.ctx, path)
}

// StartSchoolUpload starts a background bulk upload; progress is emitted as upload:<taskID>
func (a *App) StartSchoolUpload(req upload.UploadRequest) (string, error) {
	return a.rt.Uploads.StartUpload(req)
}

// StartContactUpdate starts a background contact update
func (a *App) StartContactUpdate(req upload.UploadRequest) (string, error) {
	return a.rt.Uploads.StartContactUpdate(req)
}

// GetUploadProgress returns the progress of an upload or contact update task
func (a *App) GetUploadProgress(taskID string) (*upload.UploadProgress, error) {
	return a.rt.Uploads.GetProgress(taskID)
}

// ListJobs returns the most recent import tasks
func (a *App) ListJobs(limit int) ([]JobHistoryResponse, error) {
	if limit <= 0 {
		limit = 10 // Default to 10 most recent jobs
	}

	tasks, err := a.rt.Uploads.ListTasks(limit)
	if err != nil {
		return nil, err
	}

	jobs := make([]JobHistoryResponse, 0, len(tasks))
	for i := range tasks {
		jobs = append(jobs, toJobHistory(&tasks[i]))
	}
	return jobs, nil
}

// Scheduled imports

// ListScheduledJobs returns all scheduled jobs
func (a *App) ListScheduledJobs() ([]scheduler.JobListResponse, error) {
	return a.schedulerService.ListJobs()
}

// UpsertScheduledJob creates or updates a scheduled job
func (a *App) UpsertScheduledJob(req scheduler.UpsertJobRequest) (string, error) {
	return a.schedulerService.UpsertJob(req)
}

// DeleteScheduledJob removes a scheduled job
func (a *App) DeleteScheduledJob(jobID string) error {
	return a.schedulerService.DeleteJob(jobID)
}

// RunScheduledJob runs a scheduled job now and returns its task id
func (a *App) RunScheduledJob(jobID string) (string, error) {
	return a.schedulerService.RunNow(jobID)
}

// ====================================================================================
// REQUEST/RESPONSE TYPES
// ====================================================================================

// JobHistoryResponse represents a task in the history
type JobHistoryResponse struct {
	TaskID      string  `json:"task_id"`
	JobType     string  `json:"job_type"` // "school_upload", "contact_update"
	FileName    string  `json:"file_name"`
	Status      string  `json:"status"`       // "starting", "running", "completed", "error"
	StartedAt   string  `json:"started_at"`   // ISO 8601 timestamp
	CompletedAt *string `json:"completed_at"` // ISO 8601 timestamp or null
	Summary     string  `json:"summary"`
	Progress    int     `json:"progress"` // 0-100
}

func toJobHistory(task *models.TaskProgress) JobHistoryResponse {
	job := JobHistoryResponse{
		TaskID:    task.ID,
		JobType:   task.TaskType,
		FileName:  task.FileName,
		Status:    task.Status,
		StartedAt: task.CreatedAt.Format(time.RFC3339),
		Progress:  task.Progress,
		Summary:   jobSummary(task),
	}

	if task.Status == upload.StatusCompleted || task.Status == upload.StatusError {
		completedAt := task.UpdatedAt.Format(time.RFC3339)
		job.CompletedAt = &completedAt
	}
	return job
}

// jobSummary creates a brief summary of the task result
func jobSummary(task *models.TaskProgress) string {
	switch task.Status {
	case upload.StatusCompleted:
		return "Completed"
	case upload.StatusError:
		return "Failed"
	case upload.StatusRunning:
		return fmt.Sprintf("In progress (%d%%)", task.Progress)
	default:
		return task.Status
	}
}
