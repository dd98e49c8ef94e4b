package model

import (
	"fmt"
	"strings"
)

// PhotoLabel tags when in the work cycle a photo was taken.
type PhotoLabel string

const (
	LabelBefore     PhotoLabel = "before"
	LabelDuring     PhotoLabel = "during"
	LabelAfter      PhotoLabel = "after"
	LabelInstrument PhotoLabel = "instrument"
	LabelOther      PhotoLabel = "other"
)

// PlaceholderURLPrefix marks a photo record whose binary has not reached
// the blob store yet. Once the upload completes the record is updated in
// place (same id) with the final storage path.
const PlaceholderURLPrefix = "blob:"

// Photo is a captured image evidencing a work entry or a rejection
// annotation. URL is the blob-store path, unique and stable once uploaded.
type Photo struct {
	ID          string  `json:"id"`
	WorkEntryID *string `json:"workEntryId,omitempty"`
	CutStageID  *string `json:"cutStageId,omitempty"`
	URL         string  `json:"url"`

	// TS is the capture timestamp, RFC 3339, stored verbatim.
	TS string `json:"ts"`

	GPSLat       *float64    `json:"gpsLat,omitempty"`
	GPSLon       *float64    `json:"gpsLon,omitempty"`
	AuthorUserID *string     `json:"authorUserId,omitempty"`
	Label        *PhotoLabel `json:"label,omitempty"`
}

// Validate checks required photo fields.
func (p *Photo) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.URL == "" {
		return fmt.Errorf("url is required")
	}
	if p.TS == "" {
		return fmt.Errorf("ts is required")
	}
	return nil
}

// Uploaded reports whether the photo's binary has been confirmed in the
// blob store (i.e. the record no longer carries a placeholder URL).
func (p *Photo) Uploaded() bool {
	return !strings.HasPrefix(p.URL, PlaceholderURLPrefix)
}
