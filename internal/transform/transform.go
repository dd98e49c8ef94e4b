// Package transform maps entities between the application's camelCase
// convention and the remote store's snake_case columns.
//
// All functions are pure and total. The package distinguishes three field
// states on the wire:
//
//   - unset (the Unset sentinel): the key is removed by StripUnset and the
//     remote column is left untouched,
//   - explicit null (untyped nil): the remote column is cleared,
//   - a value: the remote column is set.
//
// The distinction is load-bearing: resubmitting a rejected work entry must
// send explicit nulls for the rejection columns, while an ordinary partial
// update must not touch columns it does not mention.
package transform

import (
	"github.com/cometa-fiber/fieldsync/internal/model"
)

type unsetSentinel struct{}

// Unset marks a record key whose column must not be sent to the remote
// store. StripUnset removes such keys; explicit nil values survive.
var Unset any = unsetSentinel{}

// IsUnset reports whether v is the Unset sentinel.
func IsUnset(v any) bool {
	_, ok := v.(unsetSentinel)
	return ok
}

// StripUnset returns a copy of rec without Unset-valued keys. Explicit
// nils, zeros, false, and empty strings are retained.
func StripUnset(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		if IsUnset(v) {
			continue
		}
		out[k] = v
	}
	return out
}

// WorkEntryToRemote renames every work-entry field to its remote column.
// Optional fields that are unset map to the Unset sentinel; callers strip
// them with StripUnset before issuing the remote write.
func WorkEntryToRemote(e model.WorkEntry) map[string]any {
	return map[string]any{
		"id":                  e.ID,
		"project_id":          e.ProjectID,
		"cabinet_id":          opt(e.CabinetID),
		"segment_id":          opt(e.SegmentID),
		"cut_id":              opt(e.CutID),
		"house_id":            opt(e.HouseID),
		"crew_id":             opt(e.CrewID),
		"user_id":             e.UserID,
		"date":                e.Date,
		"stage_code":          string(e.StageCode),
		"meters_done_m":       e.MetersDoneM,
		"method":              optString(e.Method),
		"width_m":             opt(e.WidthM),
		"depth_m":             opt(e.DepthM),
		"cables_count":        opt(e.CablesCount),
		"has_protection_pipe": opt(e.HasProtectionPipe),
		"soil_type":           opt(e.SoilType),
		"notes":               opt(e.Notes),
		"approved":            e.Approved,
		"approved_by":         opt(e.ApprovedBy),
		"approved_at":         opt(e.ApprovedAt),
		"rejection_reason":    opt(e.RejectionReason),
		"rejected_by":         opt(e.RejectedBy),
		"rejected_at":         opt(e.RejectedAt),
	}
}

// WorkEntryFromRemote builds a work entry from a remote row. Missing or
// null columns yield unset fields; the function never fails on absent
// optional columns.
func WorkEntryFromRemote(rec map[string]any) model.WorkEntry {
	e := model.WorkEntry{
		ID:          str(rec["id"]),
		ProjectID:   str(rec["project_id"]),
		CabinetID:   strPtr(rec["cabinet_id"]),
		SegmentID:   strPtr(rec["segment_id"]),
		CutID:       strPtr(rec["cut_id"]),
		HouseID:     strPtr(rec["house_id"]),
		CrewID:      strPtr(rec["crew_id"]),
		UserID:      str(rec["user_id"]),
		Date:        str(rec["date"]),
		StageCode:   model.StageCode(str(rec["stage_code"])),
		MetersDoneM: num(rec["meters_done_m"]),

		WidthM:            numPtr(rec["width_m"]),
		DepthM:            numPtr(rec["depth_m"]),
		CablesCount:       intPtr(rec["cables_count"]),
		HasProtectionPipe: boolPtr(rec["has_protection_pipe"]),
		SoilType:          strPtr(rec["soil_type"]),
		Notes:             strPtr(rec["notes"]),

		Approved:        boolean(rec["approved"]),
		ApprovedBy:      strPtr(rec["approved_by"]),
		ApprovedAt:      strPtr(rec["approved_at"]),
		RejectionReason: strPtr(rec["rejection_reason"]),
		RejectedBy:      strPtr(rec["rejected_by"]),
		RejectedAt:      strPtr(rec["rejected_at"]),
	}
	if m := strPtr(rec["method"]); m != nil {
		wm := model.WorkMethod(*m)
		e.Method = &wm
	}
	if raw, ok := rec["photos"].([]any); ok {
		for _, pr := range raw {
			if prec, ok := pr.(map[string]any); ok {
				e.Photos = append(e.Photos, PhotoFromRemote(prec))
			}
		}
	}
	return e
}

// PhotoToRemote renames every photo field to its remote column.
func PhotoToRemote(p model.Photo) map[string]any {
	return map[string]any{
		"id":             p.ID,
		"work_entry_id":  opt(p.WorkEntryID),
		"cut_stage_id":   opt(p.CutStageID),
		"url":            p.URL,
		"ts":             p.TS,
		"gps_lat":        opt(p.GPSLat),
		"gps_lon":        opt(p.GPSLon),
		"author_user_id": opt(p.AuthorUserID),
		"label":          optString(p.Label),
	}
}

// PhotoFromRemote builds a photo from a remote row, tolerating missing
// optional columns.
func PhotoFromRemote(rec map[string]any) model.Photo {
	p := model.Photo{
		ID:           str(rec["id"]),
		WorkEntryID:  strPtr(rec["work_entry_id"]),
		CutStageID:   strPtr(rec["cut_stage_id"]),
		URL:          str(rec["url"]),
		TS:           str(rec["ts"]),
		GPSLat:       numPtr(rec["gps_lat"]),
		GPSLon:       numPtr(rec["gps_lon"]),
		AuthorUserID: strPtr(rec["author_user_id"]),
	}
	if l := strPtr(rec["label"]); l != nil {
		pl := model.PhotoLabel(*l)
		p.Label = &pl
	}
	return p
}

// opt maps a nil pointer to Unset and a set pointer to its value.
func opt[T any](p *T) any {
	if p == nil {
		return Unset
	}
	return *p
}

// optString is opt for string-kinded enum pointers, emitting plain strings
// so the wire value is the raw enum text.
func optString[T ~string](p *T) any {
	if p == nil {
		return Unset
	}
	return string(*p)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func strPtr(v any) *string {
	if v == nil || IsUnset(v) {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func numPtr(v any) *float64 {
	if v == nil || IsUnset(v) {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	}
	return nil
}

func intPtr(v any) *int {
	if v == nil || IsUnset(v) {
		return nil
	}
	switch n := v.(type) {
	case int:
		return &n
	case int64:
		i := int(n)
		return &i
	case float64:
		i := int(n)
		return &i
	}
	return nil
}

func boolPtr(v any) *bool {
	if v == nil || IsUnset(v) {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}
