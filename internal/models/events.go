package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionEvent struct {
	UserID   uuid.UUID
	Identity *Identity
}

const (
	OpAssetAdded   = "asset_added"
	OpAssetEdited  = "asset_edited"
	OpAssetRemoved = "asset_removed"
)

type PortfolioEvent struct {
	EventID   uuid.UUID     `json:"eventID"`
	UserID    uuid.UUID     `json:"userID"`
	Op        string        `json:"op"`
	Index     int           `json:"index"`
	Portfolio PortfolioView `json:"portfolio"`
	Time      time.Time     `json:"time"`
}
