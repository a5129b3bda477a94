package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // desktop hosts may ship without a zoneinfo database

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dcpinventory-desktop/internal/logging"
	"dcpinventory-desktop/internal/models"
	"dcpinventory-desktop/internal/services/upload"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Uploader starts import tasks and reports their progress
type Uploader interface {
	StartUpload(req upload.UploadRequest) (string, error)
	StartContactUpdate(req upload.UploadRequest) (string, error)
	GetProgress(taskID string) (*upload.UploadProgress, error)
}

// Service handles scheduled job management and execution
type Service struct {
	db       *gorm.DB
	ctx      context.Context
	cron     *cron.Cron
	jobs     map[string]cron.EntryID // jobID -> cron entry ID
	jobsMu   sync.RWMutex
	uploader Uploader
	log      *zap.SugaredLogger

	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewService creates a new scheduler service
func NewService(db *gorm.DB, ctx context.Context, uploader Uploader, log *zap.SugaredLogger) *Service {
	log = logging.OrNop(log)
	// Create cron scheduler with seconds support
	c := cron.New(cron.WithSeconds())

	return &Service{
		db:           db,
		ctx:          ctx,
		cron:         c,
		jobs:         make(map[string]cron.EntryID),
		uploader:     uploader,
		log:          log,
		pollInterval: 5 * time.Second,
		pollTimeout:  30 * time.Minute,
	}
}

// Start loads enabled jobs from the database and starts the cron loop
func (s *Service) Start() error {
	s.log.Info("Starting scheduler...")

	if err := s.db.AutoMigrate(&models.ScheduledJob{}); err != nil {
		return fmt.Errorf("failed to migrate scheduled_jobs table: %w", err)
	}

	s.cron.Start()

	var jobs []models.ScheduledJob
	if err := s.db.Where("enabled = ?", true).Find(&jobs).Error; err != nil {
		return fmt.Errorf("failed to load scheduled jobs: %w", err)
	}

	for i := range jobs {
		job := jobs[i]
		if err := s.scheduleJob(&job); err != nil {
			s.log.Warnf("Failed to schedule job %s (%s): %v", job.Name, job.ID, err)
		} else {
			s.log.Infof("Scheduled job: %s (%s) with cron: %s", job.Name, job.ID, job.Cron)
		}
	}

	s.log.Infof("Scheduler started with %d enabled jobs", len(jobs))
	return nil
}

// Stop gracefully stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info("Scheduler stopped")
	}
}

// ListJobs retrieves all scheduled jobs
func (s *Service) ListJobs() ([]JobListResponse, error) {
	var jobs []models.ScheduledJob
	if err := s.db.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	responses := make([]JobListResponse, len(jobs))
	for i := range jobs {
		responses[i] = toJobListResponse(&jobs[i])
	}

	return responses, nil
}

// UpsertJob creates or updates a scheduled job
func (s *Service) UpsertJob(req UpsertJobRequest) (string, error) {
	if req.Name == "" || req.JobType == "" || req.Cron == "" {
		return "", fmt.Errorf("name, job_type, and cron are required")
	}
	if req.JobType != models.JobTypeSchoolUpload && req.JobType != models.JobTypeContactUpdate {
		return "", fmt.Errorf("unknown job_type %q", req.JobType)
	}

	normalizedCron, err := normalizeCron(req.Cron)
	if err != nil {
		return "", err
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return "", fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}

	payload, err := encodePayload(req.Payload)
	if err != nil {
		return "", err
	}
	if _, err := decodePayload(payload); err != nil {
		return "", err
	}

	var job models.ScheduledJob
	result := s.db.Where("name = ?", req.Name).First(&job)
	isNew := errors.Is(result.Error, gorm.ErrRecordNotFound)
	if result.Error != nil && !isNew {
		return "", fmt.Errorf("failed to query job: %w", result.Error)
	}
	if isNew {
		job = models.ScheduledJob{Name: req.Name}
	}

	job.JobType = req.JobType
	job.Cron = normalizedCron
	job.Timezone = timezone
	job.Enabled = req.Enabled
	job.Payload = payload

	schedule, err := cronParser.Parse(job.Cron)
	if err != nil {
		return "", fmt.Errorf("failed to parse cron for next run: %w", err)
	}
	nextRun := schedule.Next(time.Now().In(loc))
	job.NextRunAt = &nextRun

	if isNew {
		if err := s.db.Create(&job).Error; err != nil {
			return "", fmt.Errorf("failed to create job: %w", err)
		}
	} else {
		if err := s.db.Save(&job).Error; err != nil {
			return "", fmt.Errorf("failed to update job: %w", err)
		}
	}

	if err := s.rescheduleJob(job.ID); err != nil {
		return "", fmt.Errorf("failed to reschedule job: %w", err)
	}

	return job.ID, nil
}

// DeleteJob removes a scheduled job
func (s *Service) DeleteJob(jobID string) error {
	s.unschedule(jobID)

	if err := s.db.Delete(&models.ScheduledJob{}, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	return nil
}

// RunNow executes a job immediately, outside its schedule. It returns the started task id.
func (s *Service) RunNow(jobID string) (string, error) {
	return s.executeJob(jobID)
}

// scheduleJob adds a job to the cron scheduler
func (s *Service) scheduleJob(job *models.ScheduledJob) error {
	s.unschedule(job.ID)
	if !job.Enabled {
		return nil
	}

	jobID := job.ID
	entryID, err := s.cron.AddFunc(scheduleExpr(job), func() {
		if _, err := s.executeJob(jobID); err != nil {
			s.log.Errorf("Scheduled job %s failed: %v", jobID, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.jobsMu.Lock()
	s.jobs[job.ID] = entryID
	s.jobsMu.Unlock()

	return nil
}

func (s *Service) unschedule(jobID string) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if entryID, exists := s.jobs[jobID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, jobID)
	}
}

// rescheduleJob reloads a job from database and reschedules it
func (s *Service) rescheduleJob(jobID string) error {
	var job models.ScheduledJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.unschedule(jobID)
			return nil
		}
		return fmt.Errorf("failed to load job: %w", err)
	}

	return s.scheduleJob(&job)
}

// executeJob records the run and starts the import task for the job
func (s *Service) executeJob(jobID string) (string, error) {
	s.log.Infof("Executing scheduled job: %s", jobID)

	var job models.ScheduledJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		return "", fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	now := time.Now()
	job.LastRunAt = &now
	if schedule, err := cronParser.Parse(job.Cron); err != nil {
		s.log.Warnf("Failed to parse cron for next run: %v", err)
	} else {
		loc, err := time.LoadLocation(job.Timezone)
		if err != nil {
			loc = time.UTC
		}
		nextRun := schedule.Next(now.In(loc))
		job.NextRunAt = &nextRun
	}
	if err := s.db.Save(&job).Error; err != nil {
		s.log.Warnf("Failed to update job run times: %v", err)
	}

	payload, err := decodePayload(job.Payload)
	if err != nil {
		return "", err
	}
	req := upload.UploadRequest{FilePath: payload.FilePath}

	var taskID string
	switch job.JobType {
	case models.JobTypeSchoolUpload:
		taskID, err = s.uploader.StartUpload(req)
	case models.JobTypeContactUpdate:
		taskID, err = s.uploader.StartContactUpdate(req)
	default:
		return "", fmt.Errorf("unknown job type: %s", job.JobType)
	}
	if err != nil {
		return "", fmt.Errorf("failed to start %s for %s: %w", job.JobType, payload.FilePath, err)
	}

	s.log.Infof("Scheduled %s started for %s (task: %s)", job.JobType, payload.FilePath, taskID)
	go s.monitor(job.Name, taskID)

	return taskID, nil
}

// monitor polls a started task until it finishes and logs the outcome
func (s *Service) monitor(jobName, taskID string) {
	timeout := time.After(s.pollTimeout)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timeout:
			s.log.Warnf("Job %s: task %s timed out after %s", jobName, taskID, s.pollTimeout)
			return
		case <-ticker.C:
			progress, err := s.uploader.GetProgress(taskID)
			if err != nil {
				s.log.Errorf("Job %s: failed to get progress for %s: %v", jobName, taskID, err)
				return
			}

			switch progress.Status {
			case upload.StatusCompleted:
				if progress.Contacts != nil {
					s.log.Infof("Job %s completed: %d contacts updated, %d failed",
						jobName, progress.Contacts.Updated, len(progress.Contacts.Failures))
				} else if progress.Upload != nil {
					s.log.Infof("Job %s completed: %d schools uploaded", jobName, progress.Upload.Uploaded)
				}
				return
			case upload.StatusError:
				last := ""
				if len(progress.Messages) > 0 {
					last = progress.Messages[len(progress.Messages)-1]
				}
				s.log.Errorf("Job %s failed (task: %s): %s", jobName, taskID, last)
				return
			}
		}
	}
}

func scheduleExpr(job *models.ScheduledJob) string {
	if job.Timezone == "" {
		return job.Cron
	}
	return "CRON_TZ=" + job.Timezone + " " + job.Cron
}

func encodePayload(p interface{}) (string, error) {
	switch v := p.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal payload: %w", err)
		}
		return string(data), nil
	}
}

func decodePayload(raw string) (*ImportJobPayload, error) {
	var payload ImportJobPayload
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("failed to parse job payload: %w", err)
		}
	}
	if err := upload.ValidateUploadRequest(&upload.UploadRequest{FilePath: payload.FilePath}); err != nil {
		return nil, fmt.Errorf("invalid job payload: %w", err)
	}
	return &payload, nil
}

// normalizeCron converts 5-field cron to 6-field format by prepending seconds
// 5-field: "minute hour day month dow" (standard cron)
// 6-field: "second minute hour day month dow" (robfig/cron with WithSeconds)
func normalizeCron(cronExpr string) (string, error) {
	cronExpr = strings.TrimSpace(cronExpr)

	fields := strings.Fields(cronExpr)
	if len(fields) == 6 {
		if _, err := cronParser.Parse(cronExpr); err == nil {
			return cronExpr, nil
		}
	}

	if len(fields) == 5 {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return "", fmt.Errorf("invalid 5-field cron expression: %w", err)
		}
		// Prepend seconds (0 = run at 0 seconds of the minute)
		return "0 " + cronExpr, nil
	}

	return "", fmt.Errorf("invalid cron expression: expected 5 or 6 fields, got %d", len(fields))
}

func toJobListResponse(job *models.ScheduledJob) JobListResponse {
	resp := JobListResponse{
		ID:        job.ID,
		Name:      job.Name,
		JobType:   job.JobType,
		Cron:      job.Cron,
		Timezone:  job.Timezone,
		Enabled:   job.Enabled,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	}

	if payload, err := decodePayload(job.Payload); err == nil {
		resp.FilePath = payload.FilePath
	}

	if job.LastRunAt != nil {
		lastRun := job.LastRunAt.Format(time.RFC3339)
		resp.LastRunAt = &lastRun
	}

	if job.NextRunAt != nil {
		nextRun := job.NextRunAt.Format(time.RFC3339)
		resp.NextRun = &nextRun
	}

	return resp
}
