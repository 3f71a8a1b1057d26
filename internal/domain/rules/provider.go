package rules

import (
	"context"
	"errors"
	"log/slog"

	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
)

// Store читает исходный документ правил.
// Возвращает ошибку, удовлетворяющую shared.IsNotFound, если документа нет.
type Store interface {
	GetRulesDocument(ctx context.Context) ([]byte, error)
}

// Cache - необязательный кэш документа правил.
type Cache interface {
	GetRulesDocument(ctx context.Context) ([]byte, error)
	SetRulesDocument(ctx context.Context, doc []byte) error
}

// Provider загружает правила: кэш, затем хранилище, затем значения по умолчанию.
type Provider struct {
	store  Store
	cache  Cache
	logger *slog.Logger
}

// NewProvider создаёт Provider. cache может быть nil.
func NewProvider(store Store, cache Cache, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{store: store, cache: cache, logger: logger}
}

// Load возвращает действующие правила.
// Отсутствие документа не ошибка: возвращаются Defaults().
// Ошибка чтения хранилища возвращается как shared.ErrPersistence.
func (p *Provider) Load(ctx context.Context) (Config, error) {
	if p.cache != nil {
		doc, err := p.cache.GetRulesDocument(ctx)
		if err == nil {
			cfg, decErr := Decode(doc)
			if decErr == nil {
				return cfg, nil
			}
			p.logger.Warn("cached rules document is malformed", "error", decErr)
		} else if !shared.IsNotFound(err) {
			p.logger.Warn("rules cache read failed", "error", err)
		}
	}

	doc, err := p.loadDocument(ctx)
	if err != nil {
		return Defaults(), err
	}

	cfg, err := Decode(doc)
	if err != nil {
		// A malformed document is treated like an absent one.
		p.logger.Error("rules document is malformed, using defaults", "error", err)
		return Defaults(), nil
	}

	if p.cache != nil {
		if err := p.cache.SetRulesDocument(ctx, doc); err != nil {
			p.logger.Warn("rules cache write failed", "error", err)
		}
	}

	return cfg, nil
}

func (p *Provider) loadDocument(ctx context.Context) ([]byte, error) {
	doc, err := p.store.GetRulesDocument(ctx)
	switch {
	case err == nil:
		return doc, nil
	case shared.IsNotFound(err):
		p.logger.Debug("rules document absent, using defaults", "reason", shared.ErrConfigAbsent)
		return []byte("{}"), nil
	case errors.Is(err, shared.ErrPersistence):
		return nil, err
	default:
		return nil, shared.Persistence("GetRulesDocument", err)
	}
}
