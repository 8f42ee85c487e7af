// Package repo implements the data persistence layer for workflow entities,
// backed by GORM. This file provides small aggregate queries feeding the
// insurer dashboard. Each function is context-aware and safe to call from
// services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
)

// WorkflowStats is a snapshot of the pipeline: appointment counts per
// workflow stage plus the number of offers still awaiting a shop response.
type WorkflowStats struct {
	Appointments int64                          `json:"appointments"`
	ByStage      map[domain.WorkflowStage]int64 `json:"by_stage"`
	OpenOffers   int64                          `json:"open_offers"`
}

// CollectWorkflowStats runs the aggregate queries behind the insurer
// dashboard. Stages with zero appointments are omitted from ByStage.
func CollectWorkflowStats(ctx context.Context, db *gorm.DB, now time.Time) (*WorkflowStats, error) {
	stats := &WorkflowStats{ByStage: make(map[domain.WorkflowStage]int64)}

	if err := db.WithContext(ctx).
		Model(&domain.Appointment{}).
		Count(&stats.Appointments).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		WorkflowStage domain.WorkflowStage
		N             int64
	}
	if err := db.WithContext(ctx).
		Model(&domain.Appointment{}).
		Select("workflow_stage, COUNT(*) AS n").
		Group("workflow_stage").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.ByStage[r.WorkflowStage] = r.N
	}

	if err := db.WithContext(ctx).
		Model(&domain.JobOffer{}).
		Where("status = ? AND expires_at > ?", domain.OfferStatusOffered, now).
		Count(&stats.OpenOffers).Error; err != nil {
		return nil, err
	}

	return stats, nil
}
