package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"CrisisDesk/internal/crisis"
	"CrisisDesk/internal/model"
	"CrisisDesk/internal/model/dto"
	pkgerrors "CrisisDesk/pkg/errors"
	"CrisisDesk/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// InterventionStore 干预记录存储，症状与触发事件落库前加密
type InterventionStore struct {
	db     *gorm.DB
	cipher *utils.Cipher
	logger *zap.Logger
}

func NewInterventionStore(db *gorm.DB, cipher *utils.Cipher, logger *zap.Logger) *InterventionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterventionStore{db: db, cipher: cipher, logger: logger}
}

// CreateInterventionRecord 实现 crisis.PersistenceStore
func (s *InterventionStore) CreateInterventionRecord(ctx context.Context, record *crisis.Record) (int64, error) {
	row, err := s.toModel(record)
	if err != nil {
		return 0, err
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return 0, fmt.Errorf("failed to create intervention record: %w", err)
	}
	return row.ID, nil
}

func (s *InterventionStore) toModel(record *crisis.Record) (*model.InterventionRecord, error) {
	symptoms, err := json.Marshal(record.Symptoms)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal symptoms: %w", err)
	}
	symptomsCipher, err := s.cipher.Encrypt(string(symptoms))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt symptoms: %w", err)
	}

	var triggerCipher *string
	if record.TriggerEvent != "" {
		encrypted, err := s.cipher.Encrypt(record.TriggerEvent)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt trigger event: %w", err)
		}
		triggerCipher = &encrypted
	}

	resources := model.StringList(record.ResourcesProvided)
	if resources == nil {
		resources = model.StringList{}
	}

	row := &model.InterventionRecord{
		UserID:             record.UserID,
		Severity:           record.Severity.String(),
		InterventionType:   string(record.InterventionType),
		Status:             model.InterventionStatus(record.Status),
		SymptomsCipher:     symptomsCipher,
		TriggerEventCipher: triggerCipher,
		FollowUpRequired:   record.FollowUpRequired,
		FollowUpDate:       record.FollowUpDate,
		ResourcesProvided:  resources,
	}
	row.ID = record.ID
	if row.Status == "" {
		row.Status = model.InterventionStatusActive
	}
	if !record.CreatedAt.IsZero() {
		row.CreatedAt = record.CreatedAt
		row.UpdatedAt = record.CreatedAt
	}
	return row, nil
}

// ListByUser 按创建时间倒序分页返回用户的干预记录，PHI 字段解密后返回
func (s *InterventionStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]dto.InterventionItem, int64, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	byUser := s.db.WithContext(ctx).Model(&model.InterventionRecord{}).
		Where("user_id = ?", userID).
		Session(&gorm.Session{})

	var total int64
	if err := byUser.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count interventions: %w", err)
	}

	var rows []model.InterventionRecord
	if err := byUser.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list interventions: %w", err)
	}

	items := make([]dto.InterventionItem, 0, len(rows))
	for i := range rows {
		item, err := s.toItem(&rows[i])
		if err != nil {
			// 单条解密失败不影响列表返回
			s.logger.Error("Failed to decrypt intervention record",
				zap.Int64("intervention_id", rows[i].ID),
				zap.Error(err),
			)
			continue
		}
		items = append(items, item)
	}
	return items, total, nil
}

func (s *InterventionStore) toItem(row *model.InterventionRecord) (dto.InterventionItem, error) {
	plain, err := s.cipher.Decrypt(row.SymptomsCipher)
	if err != nil {
		return dto.InterventionItem{}, err
	}
	var symptoms []string
	if err := json.Unmarshal([]byte(plain), &symptoms); err != nil {
		return dto.InterventionItem{}, err
	}

	var trigger string
	if row.TriggerEventCipher != nil {
		trigger, err = s.cipher.Decrypt(*row.TriggerEventCipher)
		if err != nil {
			return dto.InterventionItem{}, err
		}
	}

	resources := []string(row.ResourcesProvided)
	if resources == nil {
		resources = []string{}
	}

	return dto.InterventionItem{
		ID:                strconv.FormatInt(row.ID, 10),
		Severity:          row.Severity,
		InterventionType:  row.InterventionType,
		Status:            string(row.Status),
		Symptoms:          symptoms,
		TriggerEvent:      trigger,
		FollowUpRequired:  row.FollowUpRequired,
		FollowUpDate:      row.FollowUpDate,
		ResourcesProvided: resources,
		CreatedAt:         row.CreatedAt,
		CompletedAt:       row.CompletedAt,
	}, nil
}

// Complete 将记录标记为 COMPLETED，只有记录所属用户可以操作，重复完成幂等
func (s *InterventionStore) Complete(ctx context.Context, id int64, userID string, at time.Time) error {
	var row model.InterventionRecord
	err := s.db.WithContext(ctx).Select("id", "user_id", "status").Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.InterventionNotFound
		}
		return fmt.Errorf("failed to query intervention: %w", err)
	}

	if row.UserID != userID {
		return pkgerrors.Forbidden
	}
	if row.Status == model.InterventionStatusCompleted {
		return nil
	}

	err = s.db.WithContext(ctx).Model(&model.InterventionRecord{}).
		Where("id = ? AND status = ?", id, model.InterventionStatusActive).
		Updates(map[string]interface{}{
			"status":       model.InterventionStatusCompleted,
			"completed_at": at,
			"updated_at":   at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to complete intervention: %w", err)
	}
	return nil
}

// GetForFollowUp 随访消费时读取记录元数据，不解密 PHI
func (s *InterventionStore) GetForFollowUp(ctx context.Context, id int64) (*model.InterventionRecord, error) {
	var row model.InterventionRecord
	err := s.db.WithContext(ctx).
		Select("id", "user_id", "severity", "status", "follow_up_date", "follow_up_sent_at").
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.InterventionNotFound
		}
		return nil, fmt.Errorf("failed to query intervention: %w", err)
	}
	return &row, nil
}

// FindDueFollowUps 查找随访时间在 until 之前、尚未入队且未发送的进行中记录
func (s *InterventionStore) FindDueFollowUps(ctx context.Context, until time.Time, limit int) ([]model.InterventionRecord, error) {
	if limit <= 0 {
		limit = maxPageSize
	}

	var rows []model.InterventionRecord
	err := s.db.WithContext(ctx).
		Select("id", "user_id", "severity", "follow_up_date").
		Where("status = ?", model.InterventionStatusActive).
		Where("follow_up_required = ?", true).
		Where("follow_up_date <= ?", until).
		Where("follow_up_queued_at IS NULL AND follow_up_sent_at IS NULL").
		Order("follow_up_date ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query due follow-ups: %w", err)
	}
	return rows, nil
}

// MarkFollowUpQueued 记录延迟消息已投递，避免扫描器重复入队
func (s *InterventionStore) MarkFollowUpQueued(ctx context.Context, id int64, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.InterventionRecord{}).
		Where("id = ? AND follow_up_queued_at IS NULL", id).
		Update("follow_up_queued_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to mark follow-up queued: %w", err)
	}
	return nil
}

// MarkFollowUpSent 返回 false 表示已被其他消费者标记
func (s *InterventionStore) MarkFollowUpSent(ctx context.Context, id int64, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&model.InterventionRecord{}).
		Where("id = ? AND follow_up_sent_at IS NULL", id).
		Update("follow_up_sent_at", at)
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark follow-up sent: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
