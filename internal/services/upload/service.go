package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"dcpinventory-desktop/internal/api"
	"dcpinventory-desktop/internal/ingest"
	"dcpinventory-desktop/internal/logging"
	"dcpinventory-desktop/internal/models"
	"dcpinventory-desktop/internal/reconcile"
	"dcpinventory-desktop/internal/spreadsheet"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ErrNoRecords is returned when a spreadsheet holds no data rows
var ErrNoRecords = errors.New("no school records found in spreadsheet")

// Backend is the part of the DCP API the pipeline talks to
type Backend interface {
	ListDivisions(ctx context.Context) ([]models.ReferenceEntity, error)
	ListDistricts(ctx context.Context) ([]models.ReferenceEntity, error)
	BulkCreateSchools(ctx context.Context, schools interface{}) ([]byte, error)
	LookupSchoolByID(ctx context.Context, schoolID int64) (api.LookupResult, error)
	LookupSchoolByName(ctx context.Context, name string) (api.LookupResult, error)
	UpdateSchoolContact(ctx context.Context, id int64, contact interface{}) error
}

// Options tune the pipeline
type Options struct {
	Layout  ingest.Layout
	Columns ContactColumns

	// SchoolColumns are the columns division and district matching reads
	SchoolColumns reconcile.Columns
	// Workers above 1 update contacts through a bounded pool instead of one row at a time
	Workers       int
	Sink          ProgressSink
}

// Service runs spreadsheet imports against the DCP backend
type Service struct {
	ctx     context.Context
	backend Backend
	db      *gorm.DB
	log     *zap.SugaredLogger
	sink    ProgressSink

	layout        ingest.Layout
	columns       ContactColumns
	schoolColumns reconcile.Columns
	workers       int

	taskStore map[string]*UploadProgress
	taskMu    sync.RWMutex
}

// NewService creates an upload service. db may be nil, in which case task
// progress lives in memory only.
func NewService(ctx context.Context, backend Backend, db *gorm.DB, log *zap.SugaredLogger, opts Options) *Service {
	log = logging.OrNop(log)
	if opts.Layout == (ingest.Layout{}) {
		opts.Layout = ingest.DefaultLayout
	}
	if opts.Columns == (ContactColumns{}) {
		opts.Columns = DefaultContactColumns
	}
	if opts.SchoolColumns == (reconcile.Columns{}) {
		opts.SchoolColumns = reconcile.DefaultColumns
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	return &Service{
		ctx:           ctx,
		backend:       backend,
		db:            db,
		log:           log,
		sink:          opts.Sink,
		layout:        opts.Layout,
		columns:       opts.Columns,
		schoolColumns: opts.SchoolColumns,
		workers:       opts.Workers,
		taskStore:     make(map[string]*UploadProgress),
	}
}

// Layout returns the header layout the service reads spreadsheets with
func (s *Service) Layout() ingest.Layout {
	return s.layout
}

// readRecords runs parse, sanitize and merge
func (s *Service) readRecords(data []byte, layout ingest.Layout) (*ingest.Header, []*ingest.Record, int, error) {
	grid, err := spreadsheet.Parse(data)
	if err != nil {
		return nil, nil, 0, err
	}

	sanitized := ingest.Sanitize(grid)
	header, records, err := ingest.Merge(sanitized, layout)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to read header rows: %w", err)
	}
	return header, records, len(grid) - len(sanitized), nil
}

// loadReferences fetches divisions and districts once per operation
func (s *Service) loadReferences(ctx context.Context) (*reconcile.Resolver, error) {
	var divisions, districts []models.ReferenceEntity

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		divisions, err = s.backend.ListDivisions(gctx)
		if err != nil {
			return fmt.Errorf("failed to fetch divisions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		districts, err = s.backend.ListDistricts(gctx)
		if err != nil {
			return fmt.Errorf("failed to fetch districts: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.Debugf("[upload] loaded %d divisions, %d districts", len(divisions), len(districts))
	return reconcile.NewResolver(divisions, districts, s.log).WithColumns(s.schoolColumns), nil
}

// Preview parses and reconciles a spreadsheet without submitting it
func (s *Service) Preview(ctx context.Context, fileName string, data []byte) (*Preview, error) {
	return s.preview(ctx, fileName, data, s.layout)
}

func (s *Service) preview(ctx context.Context, fileName string, data []byte, layout ingest.Layout) (*Preview, error) {
	header, records, skipped, err := s.readRecords(data, layout)
	if err != nil {
		return nil, err
	}

	resolver, err := s.loadReferences(ctx)
	if err != nil {
		return nil, err
	}

	reconciled, mismatches := resolver.ResolveAll(records)
	if len(mismatches) > 0 {
		s.log.Warnf("[upload] %s: %d division/district values matched nothing", fileName, len(mismatches))
	}

	return &Preview{
		FileName:    fileName,
		Header:      header.Names,
		Records:     reconciled,
		Mismatches:  mismatches,
		SkippedRows: skipped,
	}, nil
}

// PreviewFile reads path and previews it
func (s *Service) PreviewFile(ctx context.Context, path string) (*Preview, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.Preview(ctx, filepath.Base(path), data)
}

// SubmitSchools sends the whole batch in one request. Any rejection fails the
// batch as a whole with an *UploadError; nothing is retried.
func (s *Service) SubmitSchools(ctx context.Context, schools []*reconcile.Reconciled) (*BulkResult, error) {
	if len(schools) == 0 {
		return nil, ErrNoRecords
	}

	body, err := s.backend.BulkCreateSchools(ctx, schools)
	if err != nil {
		var serr *api.StatusError
		if errors.As(err, &serr) {
			return nil, &UploadError{StatusCode: serr.StatusCode, Body: serr.Body, Err: err}
		}
		return nil, &UploadError{Err: err}
	}

	result := &BulkResult{Uploaded: len(schools)}
	if json.Valid(body) {
		result.Response = body
	}
	s.log.Infof("[upload] bulk create accepted %d schools", len(schools))
	return result, nil
}

// UploadFile previews path and submits every reconciled record
func (s *Service) UploadFile(ctx context.Context, path string) (*Preview, *BulkResult, error) {
	preview, err := s.PreviewFile(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.SubmitSchools(ctx, preview.Records)
	if err != nil {
		return preview, nil, err
	}
	return preview, result, nil
}

// rowHook observes each finished contact row. Calls are serialized.
type rowHook func(done, total int, failure *RowFailure)

// UpdateContacts applies the contact columns of each record to its school.
// A failing row is logged and recorded; the remaining rows still run.
func (s *Service) UpdateContacts(ctx context.Context, records []*ingest.Record) *ContactReport {
	return s.updateContacts(ctx, records, nil)
}

func (s *Service) updateContacts(ctx context.Context, records []*ingest.Record, hook rowHook) *ContactReport {
	total := len(records)
	errs := make([]error, total)

	var hookMu sync.Mutex
	done := 0
	finish := func(i int, err error) {
		errs[i] = err
		if err != nil {
			s.log.Warnf("[contacts] row %d (%s): %v", i+1, records[i].Text(s.columns.School), err)
		}
		if hook == nil {
			return
		}
		hookMu.Lock()
		defer hookMu.Unlock()
		done++
		var failure *RowFailure
		if err != nil {
			f := s.rowFailure(i, records[i], err)
			failure = &f
		}
		hook(done, total, failure)
	}

	if s.workers <= 1 {
		for i, rec := range records {
			finish(i, s.updateContactRow(ctx, rec))
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.workers)
		for i, rec := range records {
			i, rec := i, rec
			g.Go(func() error {
				finish(i, s.updateContactRow(ctx, rec))
				return nil
			})
		}
		_ = g.Wait()
	}

	report := &ContactReport{Status: StatusCompleted, Total: total, Failures: []RowFailure{}}
	for i, err := range errs {
		if err != nil {
			report.Failures = append(report.Failures, s.rowFailure(i, records[i], err))
			continue
		}
		report.Updated++
	}
	s.log.Infof("[contacts] completed: %d/%d updated, %d failed", report.Updated, total, len(report.Failures))
	return report
}

// UpdateContactsFile reads path and runs the contact update over its rows
func (s *Service) UpdateContactsFile(ctx context.Context, path string) (*ContactReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	_, records, _, err := s.readRecords(data, s.layout)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return s.UpdateContacts(ctx, records), nil
}

// updateContactRow resolves the backend id of one row and puts its contact payload
func (s *Service) updateContactRow(ctx context.Context, rec *ingest.Record) error {
	id, err := s.resolveSchool(ctx, rec)
	if err != nil {
		return err
	}
	if err := s.backend.UpdateSchoolContact(ctx, id, BuildContactPayload(rec, s.columns)); err != nil {
		return fmt.Errorf("failed to update contact for school %d: %w", id, err)
	}
	return nil
}

// resolveSchool looks the row up by school id, then by name when the id is
// missing, ambiguous or unknown to the backend
func (s *Service) resolveSchool(ctx context.Context, rec *ingest.Record) (int64, error) {
	raw, _ := rec.Lookup(s.columns.SchoolID)
	if schoolID, ok := reconcile.NormalizeSchoolID(raw).(int64); ok && schoolID != 0 {
		res, err := s.backend.LookupSchoolByID(ctx, schoolID)
		if err != nil {
			return 0, fmt.Errorf("lookup by id %d failed: %w", schoolID, err)
		}
		if res.Status == api.LookupFound {
			return res.ID, nil
		}
		s.log.Debugf("[contacts] school id %d is %s, falling back to name", schoolID, res.Status)
	}

	name := strings.TrimSpace(rec.Text(s.columns.School))
	if name == "" {
		return 0, errors.New("row has neither a usable school id nor a school name")
	}
	res, err := s.backend.LookupSchoolByName(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("lookup by name %q failed: %w", name, err)
	}
	if res.Status != api.LookupFound {
		return 0, fmt.Errorf("school %q could not be resolved (%s)", name, res.Status)
	}
	return res.ID, nil
}

// BuildContactPayload reads the contact columns of a row. Blank or missing cells become null.
func BuildContactPayload(rec *ingest.Record, cols ContactColumns) ContactPayload {
	field := func(column string) *string {
		v := strings.TrimSpace(rec.Text(column))
		if v == "" {
			return nil
		}
		return &v
	}
	return ContactPayload{
		TelephoneNumber:         field(cols.Telephone),
		SchoolHeadName:          field(cols.SchoolHeadName),
		SchoolHeadNumber:        field(cols.SchoolHeadNumber),
		SchoolHeadEmail:         field(cols.SchoolHeadEmail),
		Designation:             field(cols.Designation),
		PropertyCustodianName:   field(cols.PropertyCustodianName),
		PropertyCustodianNumber: field(cols.PropertyCustodianNumber),
		PropertyCustodianEmail:  field(cols.PropertyCustodianEmail),
	}
}

func (s *Service) rowFailure(i int, rec *ingest.Record, err error) RowFailure {
	raw, _ := rec.Lookup(s.columns.SchoolID)
	id := reconcile.NormalizeSchoolID(raw)
	idText := ""
	switch v := id.(type) {
	case int64:
		if v != 0 {
			idText = strconv.FormatInt(v, 10)
		}
	case string:
		idText = v
	}
	return RowFailure{
		Row:      i + 1,
		SchoolID: idText,
		School:   rec.Text(s.columns.School),
		Error:    err.Error(),
	}
}
