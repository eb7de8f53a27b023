// Package persistence отделяет тиковый цикл от внешнего хранилища.
//
// Store описывает операции хранилища; Gateway выполняет их асинхронно
// на пуле воркеров и возвращает результаты в тиковый цикл через Drain.
package persistence

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound запись отсутствует (например, статистика нового персонажа)
	ErrNotFound = errors.New("запись не найдена")
	// ErrTimeout вызов не уложился в отведённое время
	ErrTimeout = errors.New("превышено время ожидания хранилища")
	// ErrClosed шлюз остановлен
	ErrClosed = errors.New("шлюз хранилища закрыт")
)

// RemoteError непустая строка ошибки, которую вернуло хранилище
type RemoteError struct {
	Op  string
	Msg string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// Store контракт внешнего хранилища. Каждая операция - один логический вызов.
type Store interface {
	LoadWorldItems(ctx context.Context) ([]WorldItemRecord, error)
	LoadNPCs(ctx context.Context) ([]NPCRecord, error)
	LoadBodies(ctx context.Context) ([]BodyRecord, error)

	GetItemsForCharacter(ctx context.Context, characterID int) ([]int, error)
	GetStatsForCharacter(ctx context.Context, characterID int) (StatsRecord, error)
	SetStatsForCharacter(ctx context.Context, characterID int, stats StatsRecord) error
	GetDestinationsForNPC(ctx context.Context, npcID int) ([]DestinationRecord, error)

	// CreateBody сохраняет новый труп и возвращает выданный id
	CreateBody(ctx context.Context, body BodyRecord) (int, error)

	AddItemForCharacter(ctx context.Context, characterID, itemID int) error
	DeleteItemForCharacter(ctx context.Context, characterID, itemID int) error
	AddWorldItem(ctx context.Context, item WorldItemRecord) error
	DeleteWorldItem(ctx context.Context, worldID int) error

	// UpdateInventoryOwnership переносит все предметы oldOwner на newOwner одним вызовом
	UpdateInventoryOwnership(ctx context.Context, oldOwner, newOwner int) error

	Logout(ctx context.Context, characterID int) error
	LogoutAll(ctx context.Context) error

	Close() error
}
