package dto

import "github.com/noah-isme/repense-api/internal/models"

// TransferResult reports the enrollment left behind and the one created.
type TransferResult struct {
	From *models.Enrollment `json:"from,omitempty"`
	To   *models.Enrollment `json:"to"`
}
