package demotion

import "context"

// Repository - хранилище предупреждений.
type Repository interface {
	// UpsertMerge создаёт предупреждения или сливает новые данные в
	// существующие с тем же ID. Поле Status существующих записей не меняется.
	// Возвращает сохранённое состояние каждого предупреждения.
	UpsertMerge(ctx context.Context, alerts []*Alert) ([]*Alert, error)
}
