package connect

import (
	"github.com/osa030/tunedl/internal/domain/item"
)

// ServiceName is the fully-qualified name of the queue service.
const ServiceName = "tunedl.v1.QueueService"

// Procedure paths of the queue service.
const (
	EnqueueProcedure             = "/" + ServiceName + "/Enqueue"
	RemoveProcedure              = "/" + ServiceName + "/Remove"
	RetryProcedure               = "/" + ServiceName + "/Retry"
	PauseAllProcedure            = "/" + ServiceName + "/PauseAll"
	ResumeAllProcedure           = "/" + ServiceName + "/ResumeAll"
	PauseItemProcedure           = "/" + ServiceName + "/PauseItem"
	ResumeItemProcedure          = "/" + ServiceName + "/ResumeItem"
	SetConcurrencyLimitProcedure = "/" + ServiceName + "/SetConcurrencyLimit"
	ClearProcedure               = "/" + ServiceName + "/Clear"
	ClearFinishedProcedure       = "/" + ServiceName + "/ClearFinished"
	GetSnapshotProcedure         = "/" + ServiceName + "/GetSnapshot"
	WatchQueueProcedure          = "/" + ServiceName + "/WatchQueue"
)

// Empty is the message of procedures without parameters or results.
type Empty struct{}

// EnqueueRequest asks for a new download.
type EnqueueRequest struct {
	item.Request
}

// EnqueueResponse carries the id assigned to the new item.
type EnqueueResponse struct {
	ID string `json:"id"`
}

// ItemRequest addresses a single queued item.
type ItemRequest struct {
	ID string `json:"id"`
}

// SetConcurrencyLimitRequest changes the number of simultaneous downloads.
type SetConcurrencyLimitRequest struct {
	Limit int `json:"limit"`
}

// ClearResponse reports how many items were removed.
type ClearResponse struct {
	Removed int `json:"removed"`
}
