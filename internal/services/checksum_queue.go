package services

import (
	"context"
	"sync"

	"github.com/filedepot/backend/internal/models"
	"github.com/filedepot/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChecksumQueueService runs sha512 digest computation off the upload path.
// Delivery is at-least-once: ComputeChecksum is idempotent, and RecoverPending
// re-enqueues any file whose digest was lost to a restart or a full buffer.
type ChecksumQueueService struct {
	DB    *gorm.DB
	Files *FileService

	queue  chan uuid.UUID
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func NewChecksumQueueService(db *gorm.DB, files *FileService, bufferSize int) *ChecksumQueueService {
	s := &ChecksumQueueService{
		DB:    db,
		Files: files,
		queue: make(chan uuid.UUID, bufferSize),
		done:  make(chan struct{}),
	}
	go s.processQueue()
	return s
}

// Enqueue schedules digest computation for a file. A full buffer or a
// stopped queue is not an error: the file stays digestless and
// RecoverPending picks it up later.
func (s *ChecksumQueueService) Enqueue(fileID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		logger.Warn("checksum_queue_stopped", map[string]interface{}{
			"file_id": fileID.String(),
		})
		return
	}

	select {
	case s.queue <- fileID:
		logger.Info("checksum_enqueued", map[string]interface{}{
			"file_id": fileID.String(),
		})
	default:
		logger.Warn("checksum_queue_full", map[string]interface{}{
			"file_id": fileID.String(),
		})
	}
}

// RecoverPending re-enqueues every file that has content but no digest.
// Called at startup so work queued before a restart is not lost.
func (s *ChecksumQueueService) RecoverPending() {
	var pending []models.File
	if err := s.DB.
		Where("storage_path <> '' AND sha512 = ''").
		Find(&pending).Error; err != nil {
		logger.Error("checksum_recovery_scan_failed", err, nil)
		return
	}

	s.mu.Lock()
	for _, file := range pending {
		if s.closed {
			break
		}
		select {
		case s.queue <- file.ID:
		default:
			logger.Warn("checksum_queue_full_on_recovery", map[string]interface{}{
				"file_id": file.ID.String(),
			})
		}
	}
	s.mu.Unlock()

	if len(pending) > 0 {
		logger.Info("checksum_recovery_enqueued", map[string]interface{}{
			"count": len(pending),
		})
	}
}

// Stop closes the queue and waits for the worker to drain it. Enqueue calls
// arriving afterwards are dropped, not panics.
func (s *ChecksumQueueService) Stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	<-s.done
}

func (s *ChecksumQueueService) processQueue() {
	defer close(s.done)
	for fileID := range s.queue {
		if err := s.Files.ComputeChecksum(context.Background(), fileID); err != nil {
			logger.Error("checksum_compute_failed", err, map[string]interface{}{
				"file_id": fileID.String(),
			})
		}
	}
}
