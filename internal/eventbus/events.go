package eventbus

import (
	"context"

	"github.com/annel0/lerocia/internal/logging"
)

// Типы доменных событий
const (
	TypePlayerJoined       = "player.joined"
	TypePlayerLeft         = "player.left"
	TypeCharacterDied      = "character.died"
	TypeCharacterRespawned = "character.respawned"
	TypeItemTraded         = "item.traded"
	TypeItemLooted         = "item.looted"
)

// Приоритеты: смерть и торговля не отбрасываются при переполнении
const (
	PriorityLow    = 1
	PriorityNormal = 4
	PriorityHigh   = 7
)

type PlayerJoined struct {
	CharacterID int    `json:"character_id"`
	Name        string `json:"name"`
	ConnID      uint32 `json:"conn_id"`
}

type PlayerLeft struct {
	CharacterID int    `json:"character_id"`
	ConnID      uint32 `json:"conn_id"`
}

type CharacterDied struct {
	CharacterID int   `json:"character_id"`
	BodyID      int   `json:"body_id"`
	KillerID    int   `json:"killer_id"`
	Items       []int `json:"items"`
}

type CharacterRespawned struct {
	CharacterID int `json:"character_id"`
}

type ItemTraded struct {
	BuyerID    int `json:"buyer_id"`
	MerchantID int `json:"merchant_id"`
	ItemID     int `json:"item_id"`
	Price      int `json:"price"`
}

type ItemLooted struct {
	CharacterID int `json:"character_id"`
	BodyID      int `json:"body_id"`
	ItemID      int `json:"item_id"`
}

// Publisher упаковывает доменные события и публикует их без ожидания.
// Ошибки публикации только логируются. Нулевой Publisher ничего не делает.
type Publisher struct {
	bus EventBus
}

// NewPublisher создаёт публикатор поверх шины; bus может быть nil
func NewPublisher(bus EventBus) *Publisher {
	return &Publisher{bus: bus}
}

// Emit публикует событие типа eventType
func (p *Publisher) Emit(eventType string, priority int, payload interface{}) {
	if p == nil || p.bus == nil {
		return
	}
	ev, err := NewEnvelope(eventType, priority, payload)
	if err != nil {
		logging.Error("[EventBus] encode %s: %v", eventType, err)
		return
	}
	if err := p.bus.Publish(context.Background(), ev); err != nil {
		logging.Warn("[EventBus] publish %s: %v", eventType, err)
	}
}
