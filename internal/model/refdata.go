package model

// Reference data mirrored for offline reads. These collections are
// read-mostly: the client bulk-puts them on pull and never mutates them
// through the sync queue.

// Project is a fiber rollout project.
type Project struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Customer     *string  `json:"customer,omitempty"`
	City         *string  `json:"city,omitempty"`
	Status       string   `json:"status"`
	StartDate    *string  `json:"startDate,omitempty"`
	TotalLengthM float64  `json:"totalLengthM"`
	PMUserID     *string  `json:"pmUserId,omitempty"`
	BaseRatePerM *float64 `json:"baseRatePerM,omitempty"`
}

// Cabinet is a network-topology node (NVT) within a project.
type Cabinet struct {
	ID               string  `json:"id"`
	ProjectID        string  `json:"projectId"`
	Code             string  `json:"code"`
	Name             *string `json:"name,omitempty"`
	Address          *string `json:"address,omitempty"`
	Status           string  `json:"status"`
	TotalLengthM     float64 `json:"totalLengthM"`
	CompletedLengthM float64 `json:"completedLengthM"`
}

// Segment is a planned section of cable route under a cabinet.
type Segment struct {
	ID             string   `json:"id"`
	CabinetID      string   `json:"cabinetId"`
	Name           *string  `json:"name,omitempty"`
	LengthPlannedM float64  `json:"lengthPlannedM"`
	Surface        string   `json:"surface"` // asphalt, concrete, pavers, green
	Area           string   `json:"area"`    // roadway, sidewalk, driveway, green
	DepthReqM      *float64 `json:"depthReqM,omitempty"`
	WidthReqM      *float64 `json:"widthReqM,omitempty"`
	Status         string   `json:"status"` // open, in_progress, done
}

// WorkerDocument is a document assigned to a worker (certificates,
// instructions), cached for offline access.
type WorkerDocument struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Category  string `json:"category"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	CreatedAt string `json:"createdAt"`
}

// DocumentCategory classifies project and worker documents.
type DocumentCategory struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	CategoryType string `json:"categoryType"`
}
