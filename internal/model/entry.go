// Package model provides the domain types shared across the fieldsync
// subsystems: work entries, photos, mirrored reference data, and the
// enumerations the remote schema defines for them.
package model

import (
	"fmt"
	"time"
)

// StageCode is an enumerated construction phase. The catalog of stage
// definitions (display names, photo minimums) lives in the stages package;
// the codes themselves are part of the remote schema contract.
type StageCode string

const (
	Stage1Marking    StageCode = "stage_1_marking"
	Stage2Excavation StageCode = "stage_2_excavation"
	Stage3Conduit    StageCode = "stage_3_conduit"
	Stage4Cable      StageCode = "stage_4_cable"
	Stage5Splice     StageCode = "stage_5_splice"
	Stage6Test       StageCode = "stage_6_test"
	Stage7Connect    StageCode = "stage_7_connect"
	Stage8Final      StageCode = "stage_8_final"
	Stage9Backfill   StageCode = "stage_9_backfill"
	Stage10Surface   StageCode = "stage_10_surface"
)

// KnownStageCodes lists every stage code the remote schema accepts,
// in installation order.
var KnownStageCodes = []StageCode{
	Stage1Marking, Stage2Excavation, Stage3Conduit, Stage4Cable,
	Stage5Splice, Stage6Test, Stage7Connect, Stage8Final,
	Stage9Backfill, Stage10Surface,
}

// WorkMethod is how the work was performed.
type WorkMethod string

const (
	MethodMole          WorkMethod = "mole"
	MethodHand          WorkMethod = "hand"
	MethodExcavator     WorkMethod = "excavator"
	MethodTrencher      WorkMethod = "trencher"
	MethodDocumentation WorkMethod = "documentation"
)

// DateFormat is the calendar-date layout used by the `date` column.
// Work entries carry a date, not a timestamp.
const DateFormat = "2006-01-02"

// WorkEntry is a worker's report of completed construction work on a
// segment for a given date.
//
// Optional fields are pointers: a nil pointer means the field is unset and
// must not be sent to the remote store at all (the remote interprets column
// absence differently from explicit null; see the transform package).
type WorkEntry struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"projectId"`
	CabinetID *string `json:"cabinetId,omitempty"`
	SegmentID *string `json:"segmentId,omitempty"`
	CutID     *string `json:"cutId,omitempty"`
	HouseID   *string `json:"houseId,omitempty"`
	CrewID    *string `json:"crewId,omitempty"`
	UserID    string  `json:"userId"`

	// Date is a calendar date in DateFormat, stored verbatim.
	Date        string    `json:"date"`
	StageCode   StageCode `json:"stageCode"`
	MetersDoneM float64   `json:"metersDoneM"`

	Method            *WorkMethod `json:"method,omitempty"`
	WidthM            *float64    `json:"widthM,omitempty"`
	DepthM            *float64    `json:"depthM,omitempty"`
	CablesCount       *int        `json:"cablesCount,omitempty"`
	HasProtectionPipe *bool       `json:"hasProtectionPipe,omitempty"`
	SoilType          *string     `json:"soilType,omitempty"`
	Notes             *string     `json:"notes,omitempty"`

	// Approval workflow. An approved entry is immutable.
	Approved   bool    `json:"approved"`
	ApprovedBy *string `json:"approvedBy,omitempty"`
	ApprovedAt *string `json:"approvedAt,omitempty"`

	// Rejection fields are set together and cleared together on
	// resubmission.
	RejectionReason *string `json:"rejectionReason,omitempty"`
	RejectedBy      *string `json:"rejectedBy,omitempty"`
	RejectedAt      *string `json:"rejectedAt,omitempty"`

	Photos []Photo `json:"photos,omitempty"`
}

// Validate checks field values against the remote schema's constraints.
func (e *WorkEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.ProjectID == "" {
		return fmt.Errorf("projectId is required")
	}
	if e.UserID == "" {
		return fmt.Errorf("userId is required")
	}
	if _, err := time.Parse(DateFormat, e.Date); err != nil {
		return fmt.Errorf("date must be %s: %w", DateFormat, err)
	}
	if !validStageCode(e.StageCode) {
		return fmt.Errorf("unknown stage code %q", e.StageCode)
	}
	if e.MetersDoneM < 0 {
		return fmt.Errorf("metersDoneM must be non-negative (got %v)", e.MetersDoneM)
	}
	if (e.RejectedAt == nil) != (e.RejectionReason == nil) {
		return fmt.Errorf("rejectedAt and rejectionReason must be set together")
	}
	return nil
}

// Rejected reports whether the entry currently carries a rejection.
func (e *WorkEntry) Rejected() bool {
	return e.RejectedAt != nil
}

// ClearRejection removes the rejection mark so the entry can be
// resubmitted. The caller is responsible for making the corresponding
// remote update send explicit nulls for the three columns.
func (e *WorkEntry) ClearRejection() {
	e.RejectionReason = nil
	e.RejectedBy = nil
	e.RejectedAt = nil
	e.Approved = false
}

// SetDefaults applies default values for optional fields.
func (e *WorkEntry) SetDefaults() {
	if e.Date == "" {
		e.Date = time.Now().Format(DateFormat)
	}
}

func validStageCode(c StageCode) bool {
	for _, k := range KnownStageCodes {
		if c == k {
			return true
		}
	}
	return false
}
