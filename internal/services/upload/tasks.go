package upload

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dcpinventory-desktop/internal/ingest"
	"dcpinventory-desktop/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProgressSink receives task progress events, e.g. the desktop frontend
type ProgressSink interface {
	Emit(event string, data map[string]interface{})
}

// NopSink drops every event
type NopSink struct{}

func (NopSink) Emit(string, map[string]interface{}) {}

// LogSink writes progress events to a logger
type LogSink struct {
	Log *zap.SugaredLogger
}

func (l LogSink) Emit(event string, data map[string]interface{}) {
	l.Log.Infow(fmt.Sprint(data["message"]), "event", event, "status", data["status"], "progress", data["progress"])
}

// EventName is the event a task's progress is published under
func EventName(taskID string) string {
	return "upload:" + taskID
}

// StartUpload validates req and runs parse, reconcile and bulk create in the background
func (s *Service) StartUpload(req UploadRequest) (string, error) {
	return s.startTask(models.TaskTypeSchoolUpload, req, s.performUpload)
}

// StartContactUpdate validates req and runs the contact update in the background
func (s *Service) StartContactUpdate(req UploadRequest) (string, error) {
	return s.startTask(models.TaskTypeContactUpdate, req, s.performContactUpdate)
}

func (s *Service) startTask(taskType string, req UploadRequest, run func(taskID string, req UploadRequest)) (string, error) {
	if err := ValidateUploadRequest(&req); err != nil {
		return "", err
	}

	taskID := uuid.New().String()
	fileName := filepath.Base(req.FilePath)

	progress := &UploadProgress{
		TaskID:    taskID,
		TaskType:  taskType,
		FileName:  fileName,
		Status:    StatusStarting,
		Progress:  0,
		Messages:  []string{fmt.Sprintf("Queued %s", fileName)},
		StartedAt: time.Now().Format(time.RFC3339),
	}

	s.taskMu.Lock()
	s.taskStore[taskID] = progress
	s.taskMu.Unlock()

	if s.db != nil {
		record := &models.TaskProgress{
			ID:       taskID,
			TaskType: taskType,
			FileName: fileName,
			Status:   StatusStarting,
			Progress: 0,
			Messages: marshalMessages(progress.Messages),
		}
		if err := s.db.Create(record).Error; err != nil {
			s.taskMu.Lock()
			delete(s.taskStore, taskID)
			s.taskMu.Unlock()
			return "", fmt.Errorf("failed to create task record: %w", err)
		}
	}

	go run(taskID, req)

	return taskID, nil
}

// GetProgress returns a task's progress from memory, or from the database for
// tasks started by an earlier run
func (s *Service) GetProgress(taskID string) (*UploadProgress, error) {
	s.taskMu.RLock()
	progress, exists := s.taskStore[taskID]
	var snapshot UploadProgress
	if exists {
		snapshot = *progress
		snapshot.Messages = append([]string(nil), progress.Messages...)
	}
	s.taskMu.RUnlock()

	if exists {
		return &snapshot, nil
	}

	if s.db == nil {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}

	var record models.TaskProgress
	if err := s.db.Where("id = ?", taskID).First(&record).Error; err != nil {
		return nil, fmt.Errorf("task not found: %w", err)
	}

	restored := &UploadProgress{
		TaskID:    record.ID,
		TaskType:  record.TaskType,
		FileName:  record.FileName,
		Status:    record.Status,
		Progress:  record.Progress,
		Messages:  unmarshalMessages(record.Messages),
		StartedAt: record.CreatedAt.Format(time.RFC3339),
	}
	if record.Results != "" {
		var results taskResults
		if err := json.Unmarshal([]byte(record.Results), &results); err == nil {
			restored.Upload = results.Upload
			restored.Contacts = results.Contacts
			restored.Mismatches = results.Mismatches
		}
	}
	return restored, nil
}

// ListTasks returns the most recent tasks from the database, newest first
func (s *Service) ListTasks(limit int) ([]models.TaskProgress, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	var tasks []models.TaskProgress
	if err := s.db.Order("created_at desc").Limit(limit).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

func (s *Service) layoutOf(req UploadRequest) ingest.Layout {
	if req.Layout != nil {
		return *req.Layout
	}
	return s.layout
}

// performUpload executes a school upload in a background goroutine
func (s *Service) performUpload(taskID string, req UploadRequest) {
	defer func() {
		if r := recover(); r != nil {
			s.updateProgress(taskID, StatusError, 0, fmt.Sprintf("Panic during upload: %v", r))
			s.log.Errorf("[%s] upload panic recovered: %v", taskID, r)
		}
	}()

	layout := s.layoutOf(req)

	s.updateProgress(taskID, StatusRunning, 10, "Reading spreadsheet...")
	data, err := os.ReadFile(req.FilePath)
	if err != nil {
		s.updateProgress(taskID, StatusError, 0, fmt.Sprintf("Failed to read file: %v", err))
		return
	}

	s.updateProgress(taskID, StatusRunning, 30, "Parsing and reconciling divisions and districts...")
	preview, err := s.preview(s.ctx, filepath.Base(req.FilePath), data, layout)
	if err != nil {
		s.updateProgress(taskID, StatusError, 0, fmt.Sprintf("Failed to prepare upload: %v", err))
		return
	}
	s.setResults(taskID, func(p *UploadProgress) { p.Mismatches = preview.Mismatches })

	s.updateProgress(taskID, StatusRunning, 60, fmt.Sprintf("Prepared %d schools (%d skipped rows, %d unmatched references)",
		len(preview.Records), preview.SkippedRows, len(preview.Mismatches)))

	s.updateProgress(taskID, StatusRunning, 80, fmt.Sprintf("Submitting %d schools...", len(preview.Records)))
	result, err := s.SubmitSchools(s.ctx, preview.Records)
	if err != nil {
		s.setResults(taskID, func(p *UploadProgress) { p.Upload = &BulkResult{Uploaded: 0} })
		var uerr *UploadError
		if errors.As(err, &uerr) && uerr.StatusCode != 0 {
			s.updateProgress(taskID, StatusError, 0, fmt.Sprintf("Upload rejected (HTTP %d): %s", uerr.StatusCode, uerr.Body))
			return
		}
		s.updateProgress(taskID, StatusError, 0, fmt.Sprintf("Upload failed: %v", err))
		return
	}

	s.setResults(taskID, func(p *UploadProgress) { p.Upload = result })
	s.updateProgress(taskID, StatusCompleted, 100, fmt.Sprintf("Uploaded %d schools", result.Uploaded))
}

// performContactUpdate executes a contact update in a background goroutine
func (s *Service) performContactUpdate(taskID string, req UploadRequest) {
	defer func() {
		if r := recover(); r != nil {
			s.updateProgress(taskID, StatusError, 0, fmt.Sprintf("Panic during contact update: %v", r))
			s.log.Errorf("[%s] contact update panic recovered: %v", taskID, r)
		}
	}()

	layout := s.layoutOf(req)

	s.updateProgress(taskID, StatusRunning, 10, "Reading spreadsheet...")
	data, err := os.ReadFile(req.FilePath)
	if err != nil {
		s.updateProgress(taskID, StatusError, 0, fmt.Sprintf("Failed to read file: %v", err))
		return
	}

	_, records, _, err := s.readRecords(data, layout)
	if err != nil {
		s.updateProgress(taskID, StatusError, 0, fmt.Sprintf("Failed to parse spreadsheet: %v", err))
		return
	}
	if len(records) == 0 {
		s.updateProgress(taskID, StatusError, 0, ErrNoRecords.Error())
		return
	}

	s.updateProgress(taskID, StatusRunning, 20, fmt.Sprintf("Updating contacts for %d schools...", len(records)))

	report := s.updateContacts(s.ctx, records, func(done, total int, failure *RowFailure) {
		pct := 20 + (79 * done / total)
		if failure != nil {
			s.updateProgress(taskID, StatusRunning, pct,
				fmt.Sprintf("✗ Row %d (%s): %s", failure.Row, failure.School, failure.Error))
			return
		}
		s.updateProgressOnly(taskID, pct, fmt.Sprintf("%d/%d rows processed", done, total))
	})

	s.setResults(taskID, func(p *UploadProgress) { p.Contacts = report })
	s.updateProgress(taskID, report.Status, 100,
		fmt.Sprintf("Contact update completed: %d updated, %d failed", report.Updated, len(report.Failures)))
}

// updateProgress records a status change, persists it and emits it
func (s *Service) updateProgress(taskID, status string, progress int, message string) {
	var allMessages []string

	s.taskMu.Lock()
	if p, exists := s.taskStore[taskID]; exists {
		p.Status = status
		p.Progress = progress
		p.Messages = append(p.Messages, message)
		allMessages = append([]string(nil), p.Messages...)
	}
	s.taskMu.Unlock()

	if s.db != nil {
		var record models.TaskProgress
		if err := s.db.Where("id = ?", taskID).First(&record).Error; err == nil {
			record.Status = status
			record.Progress = progress
			messages := unmarshalMessages(record.Messages)
			messages = append(messages, message)
			record.Messages = marshalMessages(messages)
			if err := s.db.Save(&record).Error; err != nil {
				s.log.Warnf("[%s] failed to persist progress: %v", taskID, err)
			}
		}
	}

	s.sink.Emit(EventName(taskID), map[string]interface{}{
		"task_id":  taskID,
		"status":   status,
		"progress": progress,
		"message":  message,
		"messages": allMessages,
	})

	s.log.Infof("[%s] %s (%d%%): %s", taskID, status, progress, message)
}

// updateProgressOnly updates progress percentage and message without persisting
func (s *Service) updateProgressOnly(taskID string, progress int, message string) {
	s.taskMu.Lock()
	if p, exists := s.taskStore[taskID]; exists {
		p.Progress = progress
		p.Messages = append(p.Messages, message)
	}
	s.taskMu.Unlock()

	s.sink.Emit(EventName(taskID), map[string]interface{}{
		"task_id":  taskID,
		"status":   StatusRunning,
		"progress": progress,
		"message":  message,
	})
}

// setResults updates the task's result fields in memory and in the database
func (s *Service) setResults(taskID string, apply func(p *UploadProgress)) {
	var results taskResults

	s.taskMu.Lock()
	p, exists := s.taskStore[taskID]
	if exists {
		apply(p)
		results = taskResults{Upload: p.Upload, Contacts: p.Contacts, Mismatches: p.Mismatches}
	}
	s.taskMu.Unlock()

	if !exists || s.db == nil {
		return
	}

	data, err := json.Marshal(results)
	if err != nil {
		s.log.Warnf("[%s] failed to encode results: %v", taskID, err)
		return
	}
	if err := s.db.Model(&models.TaskProgress{}).Where("id = ?", taskID).Update("results", string(data)).Error; err != nil {
		s.log.Warnf("[%s] failed to persist results: %v", taskID, err)
	}
}

// marshalMessages converts a string slice to JSON
func marshalMessages(messages []string) string {
	data, _ := json.Marshal(messages)
	return string(data)
}

// unmarshalMessages converts JSON to a string slice
func unmarshalMessages(messagesJSON string) []string {
	if messagesJSON == "" {
		return []string{}
	}
	var messages []string
	_ = json.Unmarshal([]byte(messagesJSON), &messages)
	return messages
}
