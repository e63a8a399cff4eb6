package sqlite

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"outbox/backend/internal/domain"
	"outbox/backend/internal/storage"
)

// 可认领条件：queued，或 failed 且重试时间已到
const eligibleCond = "status = ? OR (status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?)"

// CreateMessage 持久化消息及其附件行（单事务，全有或全无）
func (s *Store) CreateMessage(msg *domain.Message) error {
	return s.db.Create(msg).Error
}

// GetMessageByUUID 按对外标识取消息（带附件）
func (s *Store) GetMessageByUUID(uuid string) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.Preload("Attachments").Where("uuid = ?", uuid).First(&msg).Error
	if err != nil {
		return nil, notFound(err, domain.ErrMessageNotFound)
	}
	return &msg, nil
}

// ListMessages 按条件分页列出消息，并返回过滤后的总数
func (s *Store) ListMessages(filter storage.ListFilter) ([]domain.Message, int64, error) {
	query := s.db.Model(&domain.Message{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		term := "%" + filter.Search + "%"
		query = query.Where(
			"subject LIKE ? OR to_recipients LIKE ? OR from_address LIKE ? OR uuid LIKE ?",
			term, term, term, term,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var messages []domain.Message
	err := query.Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// CountByStatus 按状态统计消息数
func (s *Store) CountByStatus() (map[domain.Status]int64, error) {
	type row struct {
		Status domain.Status
		N      int64
	}
	var rows []row
	err := s.db.Model(&domain.Message{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.Status]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// ClaimBatch 原子认领一批可投递消息
//
// 单个 immediate 事务（见 NewStore 的 DSN）：先按 created_at
// 升序选出候选，再对每一行做带守卫的条件更新（守卫重复可
// 认领条件）。并发认领者在 BEGIN 处串行排队，排到的那个看见
// 的是前一个事务提交后的状态，守卫更新影响行数为 0 即表示
// 该行已被抢走，直接跳过——两个 worker 永远不会拿到同一行。
func (s *Store) ClaimBatch(limit int, now time.Time) ([]domain.Message, error) {
	var claimed []domain.Message

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var candidates []domain.Message
		err := tx.Preload("Attachments").
			Where(eligibleCond, domain.StatusQueued, domain.StatusFailed, now).
			Order("created_at ASC").
			Limit(limit).
			Find(&candidates).Error
		if err != nil {
			return err
		}

		for i := range candidates {
			msg := &candidates[i]
			res := tx.Model(&domain.Message{}).
				Where("id = ?", msg.ID).
				Where(eligibleCond, domain.StatusQueued, domain.StatusFailed, now).
				Updates(map[string]any{
					"status":     domain.StatusSending,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				msg.Status = domain.StatusSending
				msg.UpdatedAt = now
				claimed = append(claimed, *msg)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	return claimed, nil
}

// MarkSent sending -> sent，盖上 sent_at
func (s *Store) MarkSent(id uint, now time.Time) (bool, error) {
	res := s.db.Model(&domain.Message{}).
		Where("id = ? AND status = ?", id, domain.StatusSending).
		Updates(map[string]any{
			"status":     domain.StatusSent,
			"sent_at":    now,
			"updated_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

// MarkFailed sending -> failed，记录退避时间与错误
func (s *Store) MarkFailed(id uint, retriesRemaining int, nextRetryAt time.Time, lastError string, now time.Time) (bool, error) {
	res := s.db.Model(&domain.Message{}).
		Where("id = ? AND status = ?", id, domain.StatusSending).
		Updates(map[string]any{
			"status":            domain.StatusFailed,
			"retries_remaining": retriesRemaining,
			"next_retry_at":     nextRetryAt,
			"last_error":        lastError,
			"updated_at":        now,
		})
	return res.RowsAffected == 1, res.Error
}

// MarkDead sending -> dead，重试耗尽
func (s *Store) MarkDead(id uint, lastError string, now time.Time) (bool, error) {
	res := s.db.Model(&domain.Message{}).
		Where("id = ? AND status = ?", id, domain.StatusSending).
		Updates(map[string]any{
			"status":            domain.StatusDead,
			"retries_remaining": 0,
			"next_retry_at":     nil,
			"last_error":        lastError,
			"updated_at":        now,
		})
	return res.RowsAffected == 1, res.Error
}

// Requeue failed/dead -> queued，管理性重投（重置重试预算）
func (s *Store) Requeue(id uint, retries int, now time.Time) (bool, error) {
	res := s.db.Model(&domain.Message{}).
		Where("id = ? AND status IN ?", id, []domain.Status{domain.StatusFailed, domain.StatusDead}).
		Updates(map[string]any{
			"status":            domain.StatusQueued,
			"retries_remaining": retries,
			"next_retry_at":     nil,
			"updated_at":        now,
		})
	return res.RowsAffected == 1, res.Error
}

// CancelMessage queued -> cancelled
func (s *Store) CancelMessage(id uint, now time.Time) (bool, error) {
	res := s.db.Model(&domain.Message{}).
		Where("id = ? AND status = ?", id, domain.StatusQueued).
		Updates(map[string]any{
			"status":     domain.StatusCancelled,
			"updated_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

// StuckSending 返回投递中断的遗留行
func (s *Store) StuckSending(olderThan time.Time) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.Where("status = ? AND updated_at < ?", domain.StatusSending, olderThan).
		Find(&messages).Error
	return messages, err
}

// PurgeTerminal 删除过期的终态消息与附件行
func (s *Store) PurgeTerminal(cutoff time.Time) (int64, []string, error) {
	var purged int64
	var hashes []string

	terminal := []domain.Status{domain.StatusSent, domain.StatusDead, domain.StatusCancelled}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var victims []domain.Message
		err := tx.Preload("Attachments").
			Where("status IN ? AND updated_at < ?", terminal, cutoff).
			Find(&victims).Error
		if err != nil {
			return err
		}
		if len(victims) == 0 {
			return nil
		}

		ids := make([]uint, 0, len(victims))
		seen := make(map[string]bool)
		for _, msg := range victims {
			ids = append(ids, msg.ID)
			for _, att := range msg.Attachments {
				if !seen[att.SHA256] {
					seen[att.SHA256] = true
					hashes = append(hashes, att.SHA256)
				}
			}
		}

		if err := tx.Where("message_id IN ?", ids).Delete(&domain.Attachment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&domain.Message{})
		if res.Error != nil {
			return res.Error
		}
		purged = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return purged, hashes, nil
}

// CountAttachmentsByHash 统计仍引用该哈希的附件行数
func (s *Store) CountAttachmentsByHash(hash string) (int64, error) {
	var count int64
	err := s.db.Model(&domain.Attachment{}).
		Where("sha256 = ?", hash).
		Count(&count).Error
	return count, err
}
