package attendance

import (
	"context"

	"github.com/darb-academy/lifecycle-worker/pkg/timeutil"
)

// Repository - хранилище записей посещаемости.
type Repository interface {
	// ListByDate возвращает все записи за день, любого статуса.
	ListByDate(ctx context.Context, date string) ([]*Record, error)

	// ListByDateAndStatus возвращает записи за день с указанным статусом.
	ListByDateAndStatus(ctx context.Context, date string, status Status) ([]*Record, error)

	// ListInWindow возвращает записи в окне с одним из статусов.
	// Пустой statuses означает любой статус.
	ListInWindow(ctx context.Context, window timeutil.Window, statuses ...Status) ([]*Record, error)

	// ListForStudent возвращает записи ученика в окне.
	ListForStudent(ctx context.Context, studentID string, window timeutil.Window) ([]*Record, error)

	// InsertBatch вставляет записи пачками по chunkSize, каждая пачка в своей
	// транзакции. Уже существующая пара (ученик, день) пропускается.
	// Возвращает вставленные записи, в том числе из пачек, зафиксированных
	// до ошибки.
	InsertBatch(ctx context.Context, records []*Record, chunkSize int) ([]*Record, error)
}

// HolidayRepository - хранилище каникул.
type HolidayRepository interface {
	// ListCovering возвращает периоды, покрывающие день.
	ListCovering(ctx context.Context, date string) ([]HolidayPeriod, error)
}
