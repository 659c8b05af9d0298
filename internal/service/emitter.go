package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CoolE88/observatory/internal/domain"
	"github.com/CoolE88/observatory/pkg/utils"

	"go.uber.org/zap"
)

type EmitterRepository interface {
	InsertEmitter(ctx context.Context, e domain.Emitter) error
	DeleteEmitters(ctx context.Context, description string) (int64, error)
	ListEmitters(ctx context.Context) ([]domain.Emitter, error)
	FindEmitterByToken(ctx context.Context, token string) (*domain.Emitter, error)
}

// EmitterService реестр API-токенов, которыми подписываются источники данных
type EmitterService struct {
	repo   EmitterRepository
	now    func() time.Time
	logger *zap.Logger
}

func NewEmitterService(repo EmitterRepository, logger *zap.Logger) *EmitterService {
	return &EmitterService{
		repo:   repo,
		now:    time.Now,
		logger: logger,
	}
}

// Add регистрирует эмиттер и выдаёт ему новый токен.
// Описание должно быть уникальным (с учётом регистра), иначе domain.ErrConflict.
func (s *EmitterService) Add(ctx context.Context, description string, ttl time.Duration) (*domain.Emitter, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("%w: description is required", domain.ErrBadRequest)
	}

	token, err := utils.GenerateToken(utils.TokenLength)
	if err != nil {
		return nil, err
	}

	emitter := domain.Emitter{
		Description: description,
		Token:       token,
		CreatedAt:   s.now().UTC(),
	}
	if ttl > 0 {
		expires := emitter.CreatedAt.Add(ttl)
		emitter.ExpiresAt = &expires
	}

	if err := s.repo.InsertEmitter(ctx, emitter); err != nil {
		s.logger.Warn("[EmitterService] Failed to add emitter",
			zap.String("emitter", description),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("[EmitterService] Emitter added", zap.String("emitter", description))
	return &emitter, nil
}

// Delete удаляет все эмиттеры с таким описанием; ноль удалённых строк не ошибка
func (s *EmitterService) Delete(ctx context.Context, description string) (int64, error) {
	affected, err := s.repo.DeleteEmitters(ctx, description)
	if err != nil {
		s.logger.Error("[EmitterService] Failed to delete emitter",
			zap.String("emitter", description),
			zap.Error(err))
		return 0, err
	}

	s.logger.Info("[EmitterService] Deleted emitters",
		zap.String("emitter", description),
		zap.Int64("affected_rows", affected))
	return affected, nil
}

func (s *EmitterService) List(ctx context.Context) ([]domain.Emitter, error) {
	emitters, err := s.repo.ListEmitters(ctx)
	if err != nil {
		s.logger.Error("[EmitterService] Failed to list emitters", zap.Error(err))
		return nil, err
	}
	if emitters == nil {
		emitters = []domain.Emitter{}
	}
	return emitters, nil
}

// Authenticate находит действующий эмиттер по токену
func (s *EmitterService) Authenticate(ctx context.Context, token string) (*domain.Emitter, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing emitter token", domain.ErrUnauthorized)
	}

	emitter, err := s.repo.FindEmitterByToken(ctx, token)
	if err != nil {
		s.logger.Error("[EmitterService] Failed to look up emitter token", zap.Error(err))
		return nil, err
	}
	if emitter == nil {
		return nil, fmt.Errorf("%w: unknown emitter token", domain.ErrUnauthorized)
	}
	return emitter, nil
}
