package upload

import (
	"encoding/json"
	"fmt"

	"dcpinventory-desktop/internal/ingest"
	"dcpinventory-desktop/internal/reconcile"
)

// Task statuses
const (
	StatusStarting  = "starting"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// UploadRequest names the spreadsheet to import
type UploadRequest struct {
	FilePath string         `json:"file_path"`
	Layout   *ingest.Layout `json:"layout,omitempty"` // nil uses the service layout
}

// Preview is the reconciled content of a spreadsheet before submission
type Preview struct {
	FileName    string                  `json:"file_name"`
	Header      []string                `json:"header"`
	Records     []*reconcile.Reconciled `json:"records"`
	Mismatches  []reconcile.Mismatch    `json:"mismatches"`
	SkippedRows int                     `json:"skipped_rows"` // blank and total rows
}

// Columns returns the preview table header: the source columns followed by the resolved fields
func (p *Preview) Columns() []string {
	cols := append([]string{}, p.Header...)
	return append(cols, reconcile.FieldSchoolID, reconcile.FieldName, reconcile.FieldDivision, reconcile.FieldDistrict)
}

// Rows returns one table row per record, aligned with Columns
func (p *Preview) Rows() [][]any {
	rows := make([][]any, len(p.Records))
	for i, r := range p.Records {
		row := make([]any, 0, len(p.Header)+4)
		for _, col := range p.Header {
			v, _ := r.Record.Get(col)
			row = append(row, ingest.CellText(v))
		}
		row = append(row, r.SchoolID, r.Name, r.Division.Name, r.District.Name)
		rows[i] = row
	}
	return rows
}

// BulkResult is the outcome of a bulk create
type BulkResult struct {
	Uploaded int             `json:"uploaded"`
	Response json.RawMessage `json:"response,omitempty"`
}

// UploadError reports a bulk create the backend did not accept.
// Nothing from the batch is considered uploaded.
type UploadError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("school upload failed: %v", e.Err)
	}
	return fmt.Sprintf("school upload failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// ContactPayload is the body of a contact update. Missing fields are sent as null.
type ContactPayload struct {
	TelephoneNumber         *string `json:"telephoneNumber"`
	SchoolHeadName          *string `json:"schoolHeadName"`
	SchoolHeadNumber        *string `json:"schoolHeadNumber"`
	SchoolHeadEmail         *string `json:"schoolHeadEmail"`
	Designation             *string `json:"designation"`
	PropertyCustodianName   *string `json:"propertyCustodianName"`
	PropertyCustodianNumber *string `json:"propertyCustodianNumber"`
	PropertyCustodianEmail  *string `json:"propertyCustodianEmail"`
}

// ContactColumns names the spreadsheet columns read by the contact update
type ContactColumns struct {
	SchoolID                string
	School                  string
	Telephone               string
	SchoolHeadName          string
	SchoolHeadNumber        string
	SchoolHeadEmail         string
	Designation             string
	PropertyCustodianName   string
	PropertyCustodianNumber string
	PropertyCustodianEmail  string
}

var DefaultContactColumns = ContactColumns{
	SchoolID:                "SCHOOL ID",
	School:                  "SCHOOL",
	Telephone:               "TELEPHONE",
	SchoolHeadName:          "SCHOOL HEAD",
	SchoolHeadNumber:        "SCHOOL HEAD NUMBER",
	SchoolHeadEmail:         "SCHOOL HEAD EMAIL",
	Designation:             "DESIGNATION",
	PropertyCustodianName:   "PROPERTY CUSTODIAN",
	PropertyCustodianNumber: "PROPERTY CUSTODIAN NUMBER",
	PropertyCustodianEmail:  "PROPERTY CUSTODIAN EMAIL",
}

// RowFailure is one contact row that could not be applied
type RowFailure struct {
	Row      int    `json:"row"`
	SchoolID string `json:"school_id"`
	School   string `json:"school"`
	Error    string `json:"error"`
}

// ContactReport summarizes a contact update run
type ContactReport struct {
	Status   string       `json:"status"`
	Total    int          `json:"total"`
	Updated  int          `json:"updated"`
	Failures []RowFailure `json:"failures"`
}

// UploadProgress tracks a background upload or contact update
type UploadProgress struct {
	TaskID     string               `json:"task_id"`
	TaskType   string               `json:"task_type"`
	FileName   string               `json:"file_name"`
	Status     string               `json:"status"`
	Progress   int                  `json:"progress"`
	Messages   []string             `json:"messages"`
	StartedAt  string               `json:"started_at"`
	Upload     *BulkResult          `json:"upload,omitempty"`
	Contacts   *ContactReport       `json:"contacts,omitempty"`
	Mismatches []reconcile.Mismatch `json:"mismatches,omitempty"`
}

// taskResults is the JSON persisted in task_progress.results
type taskResults struct {
	Upload     *BulkResult          `json:"upload,omitempty"`
	Contacts   *ContactReport       `json:"contacts,omitempty"`
	Mismatches []reconcile.Mismatch `json:"mismatches,omitempty"`
}
