// Package group описывает халаки (учебные группы) академии.
package group

import "context"

// Kind - тип халаки.
type Kind string

const (
	KindMain    Kind = "main"
	KindReserve Kind = "reserve"
)

// Group - халака.
type Group struct {
	ID   string
	Name string
	Kind Kind
}

// Repository читает халаки.
type Repository interface {
	// GetByID возвращает халаку или ErrGroupNotFound.
	GetByID(ctx context.Context, id string) (*Group, error)
}
