package service

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"SmsRelay/internal/model"
	"SmsRelay/internal/model/dto"
	"SmsRelay/storage/database"
)

var (
	dashboardService *DashboardService
	dashboardOnce    sync.Once
)

func Dashboard() *DashboardService {
	dashboardOnce.Do(func() {
		dashboardService = NewDashboardService(database.DB())
	})

	return dashboardService
}

type DashboardService struct {
	db *gorm.DB
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db}
}

// KPIs 投递看板指标
// total_sent 统计所有真正推给网关的消息，送达率只在已有终态回执的消息上计算
func (s *DashboardService) KPIs(ctx context.Context) (*dto.DashboardKPIs, error) {
	kpis := &dto.DashboardKPIs{}

	db := s.db.WithContext(ctx).Model(&model.Message{})

	err := db.Session(&gorm.Session{}).
		Where("state NOT IN ?", []model.MessageState{
			model.MessageStateDraft,
			model.MessageStateQueued,
			model.MessageStateAPIFailed,
			model.MessageStateCancelled,
		}).
		Count(&kpis.TotalSent).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count sent messages: %w", err)
	}

	if err := s.countState(ctx, model.MessageStateDelivered, &kpis.Delivered); err != nil {
		return nil, err
	}
	if err := s.countState(ctx, model.MessageStateUndelivered, &kpis.Undelivered); err != nil {
		return nil, err
	}

	var rejected, apiFailed int64
	if err := s.countState(ctx, model.MessageStateRejected, &rejected); err != nil {
		return nil, err
	}
	if err := s.countState(ctx, model.MessageStateAPIFailed, &apiFailed); err != nil {
		return nil, err
	}
	kpis.Failed = rejected + apiFailed

	var finalCount int64
	err = s.db.WithContext(ctx).Model(&model.Message{}).
		Where("state IN ?", model.FinalStates).
		Count(&finalCount).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count final messages: %w", err)
	}

	if finalCount > 0 {
		kpis.DeliveryRate = float64(kpis.Delivered) / float64(finalCount) * 100
	}

	return kpis, nil
}

func (s *DashboardService) countState(ctx context.Context, state model.MessageState, out *int64) error {
	err := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("state = ?", state).
		Count(out).Error
	if err != nil {
		return fmt.Errorf("failed to count %s messages: %w", state, err)
	}
	return nil
}
