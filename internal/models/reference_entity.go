package models

// ReferenceEntity is a division or district record owned by the DCP backend.
// The ingestion pipeline only reads these.
type ReferenceEntity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
