package cache

import (
	"sync"

	"github.com/hazardwatch/edge-next/internal/pkg/cache"
)

// PendingReportCount memoizes the pending-queue depth shown by the status
// endpoint. Flushed on every queue mutation and after every sync pass.
var PendingReportCount *cache.Singular[int]

var once sync.Once

func Initialize() {
	once.Do(initializeCaches)
}

func initializeCaches() {
	PendingReportCount = cache.NewSingular[int]("pendingReportCount")
}
