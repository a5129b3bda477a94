package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dcpinventory-desktop/internal/database"
	"dcpinventory-desktop/internal/models"
	"dcpinventory-desktop/internal/services/upload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestNormalizeCron(t *testing.T) {
	t.Run("Should convert 5-field to 6-field cron", func(t *testing.T) {
		tests := []struct {
			name     string
			input    string
			expected string
		}{
			{
				name:     "Daily at 2 AM",
				input:    "0 2 * * *",
				expected: "0 0 2 * * *",
			},
			{
				name:     "Every 15 minutes",
				input:    "*/15 * * * *",
				expected: "0 */15 * * * *",
			},
			{
				name:     "Every Monday at 9 AM",
				input:    "0 9 * * 1",
				expected: "0 0 9 * * 1",
			},
			{
				name:     "First day of month at midnight",
				input:    "0 0 1 * *",
				expected: "0 0 0 1 * *",
			},
			{
				name:     "Every 5 minutes",
				input:    "*/5 * * * *",
				expected: "0 */5 * * * *",
			},
			{
				name:     "At 3:30 PM every day",
				input:    "30 15 * * *",
				expected: "0 30 15 * * *",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				result, err := normalizeCron(tt.input)
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			})
		}
	})

	t.Run("Should keep 6-field cron unchanged", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
		}{
			{
				name:  "6-field daily at 2 AM",
				input: "0 0 2 * * *",
			},
			{
				name:  "6-field every 15 minutes",
				input: "0 */15 * * * *",
			},
			{
				name:  "6-field with seconds",
				input: "30 0 2 * * 1",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				result, err := normalizeCron(tt.input)
				require.NoError(t, err)
				assert.Equal(t, tt.input, result)
			})
		}
	})

	t.Run("Should fail with invalid field count", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
		}{
			{
				name:  "Too few fields (4)",
				input: "0 2 * *",
			},
			{
				name:  "Too many fields (7)",
				input: "0 0 2 * * * 2025",
			},
			{
				name:  "Empty string",
				input: "",
			},
			{
				name:  "Single field",
				input: "*",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := normalizeCron(tt.input)
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "invalid cron expression")
			})
		}
	})

	t.Run("Should handle cron with extra whitespace", func(t *testing.T) {
		input := "  0   2   *   *   *  "
		// The function trims leading/trailing but keeps internal whitespace structure
		expected := "0 0   2   *   *   *"

		result, err := normalizeCron(input)
		require.NoError(t, err)
		assert.Equal(t, expected, result)
	})
}

func TestCronExpressionExamples(t *testing.T) {
	t.Run("Should convert common import schedules", func(t *testing.T) {
		tests := []struct {
			schedule   string
			cron5Field string
			cron6Field string
		}{
			{"Daily", "0 2 * * *", "0 0 2 * * *"},
			{"Weekly (Monday)", "0 2 * * 1", "0 0 2 * * 1"},
			{"Monthly (1st)", "0 2 1 * *", "0 0 2 1 * *"},
			{"Quarterly (1st of Jan/Apr/Jul/Oct)", "0 2 1 1,4,7,10 *", "0 0 2 1 1,4,7,10 *"},
			{"Yearly (Jan 1st)", "0 2 1 1 *", "0 0 2 1 1 *"},
		}

		for _, tt := range tests {
			t.Run(tt.schedule, func(t *testing.T) {
				result, err := normalizeCron(tt.cron5Field)
				require.NoError(t, err)
				assert.Equal(t, tt.cron6Field, result)
			})
		}
	})
}

func TestCronEdgeCases(t *testing.T) {
	t.Run("Should handle complex cron expressions", func(t *testing.T) {
		tests := []struct {
			name     string
			input    string
			expected string
		}{
			{
				name:     "Range (hours 9-17)",
				input:    "0 9-17 * * *",
				expected: "0 0 9-17 * * *",
			},
			{
				name:     "Multiple values",
				input:    "0 8,12,16 * * *",
				expected: "0 0 8,12,16 * * *",
			},
			{
				name:     "Step values",
				input:    "0 */2 * * *",
				expected: "0 0 */2 * * *",
			},
			{
				name:     "Specific days (weekdays)",
				input:    "0 9 * * 1-5",
				expected: "0 0 9 * * 1-5",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				result, err := normalizeCron(tt.input)
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			})
		}
	})
}

type fakeUploader struct {
	mu       sync.Mutex
	uploads  []upload.UploadRequest
	contacts []upload.UploadRequest
	err      error
}

func (f *fakeUploader) StartUpload(req upload.UploadRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.uploads = append(f.uploads, req)
	return "task-upload", nil
}

func (f *fakeUploader) StartContactUpdate(req upload.UploadRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.contacts = append(f.contacts, req)
	return "task-contacts", nil
}

func (f *fakeUploader) GetProgress(taskID string) (*upload.UploadProgress, error) {
	return &upload.UploadProgress{
		TaskID:   taskID,
		Status:   upload.StatusCompleted,
		Progress: 100,
		Upload:   &upload.BulkResult{Uploaded: 2},
	}, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "jobs.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { database.Close(db) })
	return db
}

func newTestService(t *testing.T, uploader Uploader) *Service {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := NewService(openTestDB(t), ctx, uploader, nil)
	svc.pollInterval = 10 * time.Millisecond
	svc.pollTimeout = time.Second
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)
	return svc
}

func nightlyUpload() UpsertJobRequest {
	return UpsertJobRequest{
		Name:     "Nightly schools",
		JobType:  models.JobTypeSchoolUpload,
		Cron:     "0 2 * * *",
		Timezone: "Asia/Manila",
		Enabled:  true,
		Payload:  ImportJobPayload{FilePath: "/data/inbox/schools.xlsx"},
	}
}

func TestUpsertJob(t *testing.T) {
	t.Run("Should create and schedule an enabled job", func(t *testing.T) {
		svc := newTestService(t, &fakeUploader{})

		id, err := svc.UpsertJob(nightlyUpload())
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Len(t, svc.cron.Entries(), 1)

		jobs, err := svc.ListJobs()
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "0 0 2 * * *", jobs[0].Cron)
		assert.Equal(t, "Asia/Manila", jobs[0].Timezone)
		assert.Equal(t, "/data/inbox/schools.xlsx", jobs[0].FilePath)
		assert.NotNil(t, jobs[0].NextRun)
		assert.Nil(t, jobs[0].LastRunAt)
	})

	t.Run("Should update a job with the same name", func(t *testing.T) {
		svc := newTestService(t, &fakeUploader{})

		first, err := svc.UpsertJob(nightlyUpload())
		require.NoError(t, err)

		req := nightlyUpload()
		req.Cron = "0 0 6 * * 1"
		req.Enabled = false
		second, err := svc.UpsertJob(req)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Empty(t, svc.cron.Entries())

		jobs, err := svc.ListJobs()
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "0 0 6 * * 1", jobs[0].Cron)
		assert.False(t, jobs[0].Enabled)
	})

	t.Run("Should accept a JSON string payload", func(t *testing.T) {
		svc := newTestService(t, &fakeUploader{})

		req := nightlyUpload()
		req.JobType = models.JobTypeContactUpdate
		req.Payload = `{"file_path":"/data/inbox/contacts.xls"}`
		_, err := svc.UpsertJob(req)
		require.NoError(t, err)

		jobs, err := svc.ListJobs()
		require.NoError(t, err)
		assert.Equal(t, "/data/inbox/contacts.xls", jobs[0].FilePath)
	})

	t.Run("Should default the timezone to UTC", func(t *testing.T) {
		svc := newTestService(t, &fakeUploader{})

		req := nightlyUpload()
		req.Timezone = ""
		_, err := svc.UpsertJob(req)
		require.NoError(t, err)

		jobs, err := svc.ListJobs()
		require.NoError(t, err)
		assert.Equal(t, "UTC", jobs[0].Timezone)
	})

	t.Run("Should reject invalid requests", func(t *testing.T) {
		svc := newTestService(t, &fakeUploader{})

		tests := []struct {
			name   string
			mutate func(*UpsertJobRequest)
		}{
			{"Missing name", func(r *UpsertJobRequest) { r.Name = "" }},
			{"Unknown job type", func(r *UpsertJobRequest) { r.JobType = "transfer" }},
			{"Bad cron", func(r *UpsertJobRequest) { r.Cron = "every night" }},
			{"Bad timezone", func(r *UpsertJobRequest) { r.Timezone = "Mars/Olympus" }},
			{"Missing file", func(r *UpsertJobRequest) { r.Payload = ImportJobPayload{} }},
			{"Wrong extension", func(r *UpsertJobRequest) { r.Payload = ImportJobPayload{FilePath: "/data/schools.csv"} }},
			{"Malformed payload", func(r *UpsertJobRequest) { r.Payload = "{not json" }},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := nightlyUpload()
				tt.mutate(&req)
				_, err := svc.UpsertJob(req)
				assert.Error(t, err)
			})
		}

		jobs, err := svc.ListJobs()
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func TestDeleteJob(t *testing.T) {
	svc := newTestService(t, &fakeUploader{})

	id, err := svc.UpsertJob(nightlyUpload())
	require.NoError(t, err)
	require.Len(t, svc.cron.Entries(), 1)

	require.NoError(t, svc.DeleteJob(id))
	assert.Empty(t, svc.cron.Entries())

	jobs, err := svc.ListJobs()
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRunNow(t *testing.T) {
	t.Run("Should start a school upload and record the run", func(t *testing.T) {
		uploader := &fakeUploader{}
		svc := newTestService(t, uploader)

		id, err := svc.UpsertJob(nightlyUpload())
		require.NoError(t, err)

		taskID, err := svc.RunNow(id)
		require.NoError(t, err)
		assert.Equal(t, "task-upload", taskID)

		uploader.mu.Lock()
		require.Len(t, uploader.uploads, 1)
		assert.Equal(t, "/data/inbox/schools.xlsx", uploader.uploads[0].FilePath)
		uploader.mu.Unlock()

		jobs, err := svc.ListJobs()
		require.NoError(t, err)
		assert.NotNil(t, jobs[0].LastRunAt)
	})

	t.Run("Should start a contact update", func(t *testing.T) {
		uploader := &fakeUploader{}
		svc := newTestService(t, uploader)

		req := nightlyUpload()
		req.JobType = models.JobTypeContactUpdate
		id, err := svc.UpsertJob(req)
		require.NoError(t, err)

		taskID, err := svc.RunNow(id)
		require.NoError(t, err)
		assert.Equal(t, "task-contacts", taskID)

		uploader.mu.Lock()
		assert.Len(t, uploader.contacts, 1)
		assert.Empty(t, uploader.uploads)
		uploader.mu.Unlock()
	})

	t.Run("Should surface uploader errors", func(t *testing.T) {
		svc := newTestService(t, &fakeUploader{err: errors.New("file vanished")})

		id, err := svc.UpsertJob(nightlyUpload())
		require.NoError(t, err)

		_, err = svc.RunNow(id)
		assert.ErrorContains(t, err, "file vanished")
	})

	t.Run("Should fail for an unknown job", func(t *testing.T) {
		svc := newTestService(t, &fakeUploader{})
		_, err := svc.RunNow("missing")
		assert.Error(t, err)
	})
}

func TestStartLoadsEnabledJobs(t *testing.T) {
	db := openTestDB(t)
	payload, err := json.Marshal(ImportJobPayload{FilePath: "/data/schools.xlsx"})
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.ScheduledJob{
		Name: "enabled", JobType: models.JobTypeSchoolUpload, Cron: "0 0 2 * * *",
		Timezone: "UTC", Enabled: true, Payload: string(payload),
	}).Error)
	require.NoError(t, db.Create(&models.ScheduledJob{
		Name: "disabled", JobType: models.JobTypeSchoolUpload, Cron: "0 0 3 * * *",
		Timezone: "UTC", Enabled: false, Payload: string(payload),
	}).Error)

	svc := NewService(db, context.Background(), &fakeUploader{}, nil)
	require.NoError(t, svc.Start())
	defer svc.Stop()

	assert.Len(t, svc.cron.Entries(), 1)
}

func TestStopLeavesNoGoroutines(t *testing.T) {
	db := openTestDB(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	svc := NewService(db, context.Background(), &fakeUploader{}, nil)
	require.NoError(t, svc.Start())
	_, err := svc.UpsertJob(nightlyUpload())
	require.NoError(t, err)
	svc.Stop()
}

func TestScheduleExpr(t *testing.T) {
	t.Run("Should prefix the timezone", func(t *testing.T) {
		job := &models.ScheduledJob{Cron: "0 0 2 * * *", Timezone: "Asia/Manila"}
		assert.Equal(t, "CRON_TZ=Asia/Manila 0 0 2 * * *", scheduleExpr(job))
	})

	t.Run("Should leave an empty timezone alone", func(t *testing.T) {
		job := &models.ScheduledJob{Cron: "0 0 2 * * *"}
		assert.Equal(t, "0 0 2 * * *", scheduleExpr(job))
	})
}
