package services

import (
	"context"
	"math"
	"strings"

	"github.com/yeremiapane/restaurant-tables/models"
)

// Capacity bucket labels used by TableStats.ByCapacity.
const (
	CapacityBucketSmall  = "1-2"
	CapacityBucketMedium = "3-4"
	CapacityBucketLarge  = "5-8"
	CapacityBucketXL     = "9+"
)

type TableStats struct {
	Total           int                        `json:"total"`
	ByStatus        map[models.TableStatus]int `json:"by_status"`
	ByArea          map[string]int             `json:"by_area"`
	ByCapacity      map[string]int             `json:"by_capacity"`
	UtilizationRate float64                    `json:"utilization_rate"`
}

func capacityBucket(capacity int) string {
	switch {
	case capacity <= 2:
		return CapacityBucketSmall
	case capacity <= 4:
		return CapacityBucketMedium
	case capacity <= 8:
		return CapacityBucketLarge
	default:
		return CapacityBucketXL
	}
}

// ComputeStats summarizes one snapshot of the table population. Every status
// is present in ByStatus, with zero counts included.
func ComputeStats(tables []models.Table) TableStats {
	stats := TableStats{
		Total:      len(tables),
		ByStatus:   make(map[models.TableStatus]int, len(models.AllTableStatuses)),
		ByArea:     map[string]int{},
		ByCapacity: map[string]int{},
	}
	for _, st := range models.AllTableStatuses {
		stats.ByStatus[st] = 0
	}

	for _, t := range tables {
		stats.ByStatus[t.Status]++
		stats.ByArea[strings.TrimSpace(t.Area)]++
		stats.ByCapacity[capacityBucket(t.Capacity)]++
	}

	if stats.Total > 0 {
		busy := stats.ByStatus[models.TableStatusOccupied] + stats.ByStatus[models.TableStatusReserved]
		stats.UtilizationRate = math.Round(float64(busy)/float64(stats.Total)*1000) / 10
	}
	return stats
}

type StatsAggregator struct {
	registry *TableRegistry
}

func NewStatsAggregator(registry *TableRegistry) *StatsAggregator {
	return &StatsAggregator{registry: registry}
}

func (a *StatsAggregator) Stats(ctx context.Context) (TableStats, error) {
	tables, err := a.registry.All(ctx)
	if err != nil {
		return TableStats{}, err
	}
	return ComputeStats(tables), nil
}
