package game

import (
	"context"

	"github.com/annel0/lerocia/internal/eventbus"
	"github.com/annel0/lerocia/internal/persistence"
	"github.com/annel0/lerocia/internal/protocol"
	"github.com/annel0/lerocia/internal/session"
	"github.com/annel0/lerocia/internal/vec"
	"github.com/annel0/lerocia/internal/world"
)

// Все операции: проверка -> изменение хранилища сущностей -> рассылка -> запись в хранилище.
// Записи о предметах в мире идут по ключу worldID, о предметах персонажа по id владельца.

// actor возвращает живого персонажа-инициатора
func (w *World) actor(cmd protocol.Command, characterID int) (*world.Character, error) {
	c, err := w.store.Get(characterID)
	if err != nil {
		return nil, err
	}
	if !c.Alive() {
		return nil, reject(cmd, "character %d is dead", characterID)
	}
	return c, nil
}

func (w *World) sendInventory(c *world.Character) {
	w.sendToCharacter(c.ID, protocol.Inventory(c.Inventory))
}

// Drop выкладывает предмет из инвентаря в мир под новым worldID
func (w *World) Drop(characterID, itemID int, pos vec.Vec3) (int, error) {
	c, err := w.actor(protocol.CmdDrop, characterID)
	if err != nil {
		return 0, err
	}
	if err := w.store.RemoveItem(c.ID, itemID); err != nil {
		return 0, err
	}
	worldID := w.store.NextWorldID()
	item := world.WorldItem{WorldID: worldID, ItemID: itemID, Position: pos}
	if err := w.store.InsertWorldItem(item); err != nil {
		// Возвращаем предмет владельцу
		_ = w.store.AddItem(c.ID, itemID)
		return 0, err
	}

	w.broadcast(protocol.DropEvent(c.ID, worldID, itemID, pos))
	w.sendInventory(c)

	w.persist("DeleteItemForCharacter", c.ID, func(ctx context.Context, s persistence.Store) error {
		return s.DeleteItemForCharacter(ctx, characterID, itemID)
	})
	rec := persistence.WorldItemRecord{WorldID: worldID, ItemID: itemID, X: pos.X, Y: pos.Y, Z: pos.Z}
	w.persist("AddWorldItem", worldID, func(ctx context.Context, s persistence.Store) error {
		return s.AddWorldItem(ctx, rec)
	})
	return worldID, nil
}

// Pickup забирает предмет из мира в инвентарь
func (w *World) Pickup(characterID, worldID int) error {
	c, err := w.actor(protocol.CmdPickup, characterID)
	if err != nil {
		return err
	}
	item, err := w.store.RemoveWorldItem(worldID)
	if err != nil {
		return err
	}
	if err := w.store.AddItem(c.ID, item.ItemID); err != nil {
		_ = w.store.InsertWorldItem(item)
		return err
	}

	w.broadcast(protocol.PickupEvent(c.ID, worldID))
	w.sendInventory(c)

	w.persist("AddItemForCharacter", c.ID, func(ctx context.Context, s persistence.Store) error {
		return s.AddItemForCharacter(ctx, characterID, item.ItemID)
	})
	w.persist("DeleteWorldItem", worldID, func(ctx context.Context, s persistence.Store) error {
		return s.DeleteWorldItem(ctx, worldID)
	})
	return nil
}

// container возвращает NPC или труп, у которого можно брать предметы
func (w *World) container(cmd protocol.Command, id int) (*world.Character, error) {
	c, err := w.store.Get(id)
	if err != nil {
		return nil, err
	}
	if c.Kind == world.KindPlayer {
		return nil, reject(cmd, "character %d is a player", id)
	}
	return c, nil
}

// move переносит один предмет между инвентарями и ставит обе записи
func (w *World) move(from, to *world.Character, itemID int) error {
	if err := w.store.RemoveItem(from.ID, itemID); err != nil {
		return err
	}
	if err := w.store.AddItem(to.ID, itemID); err != nil {
		_ = w.store.AddItem(from.ID, itemID)
		return err
	}
	fromID, toID := from.ID, to.ID
	w.persist("DeleteItemForCharacter", fromID, func(ctx context.Context, s persistence.Store) error {
		return s.DeleteItemForCharacter(ctx, fromID, itemID)
	})
	w.persist("AddItemForCharacter", toID, func(ctx context.Context, s persistence.Store) error {
		return s.AddItemForCharacter(ctx, toID, itemID)
	})
	return nil
}

func (w *World) persistStats(c *world.Character) {
	id, stats := c.ID, statsRecord(c.Stats)
	w.persist("SetStatsForCharacter", id, func(ctx context.Context, s persistence.Store) error {
		return s.SetStatsForCharacter(ctx, id, stats)
	})
}

// Buy покупка у NPC или трупа. Отказ сообщается только покупателю.
func (w *World) Buy(buyerID, merchantID, itemID int) error {
	buyer, err := w.actor(protocol.CmdBuy, buyerID)
	if err != nil {
		return err
	}
	merchant, err := w.container(protocol.CmdBuy, merchantID)
	if err != nil {
		return err
	}
	if !merchant.HasItem(itemID) {
		return reject(protocol.CmdBuy, "merchant %d does not have item %d", merchantID, itemID)
	}
	def, ok := w.store.Catalog().Lookup(itemID)
	if !ok {
		return reject(protocol.CmdBuy, "unknown item %d", itemID)
	}
	if buyer.Gold < def.Value {
		return reject(protocol.CmdBuy, "not enough gold")
	}

	if err := w.move(merchant, buyer, itemID); err != nil {
		return err
	}
	buyer.Gold -= def.Value
	merchant.Gold += def.Value

	w.broadcast(protocol.BuyEvent(buyer.ID, merchant.ID, itemID))
	w.sendInventory(buyer)

	w.persistStats(buyer)
	w.persistStats(merchant)
	w.events.Emit(eventbus.TypeItemTraded, eventbus.PriorityNormal, eventbus.ItemTraded{
		BuyerID: buyer.ID, MerchantID: merchant.ID, ItemID: itemID, Price: def.Value,
	})
	return nil
}

// Loot забирает предмет из трупа без оплаты
func (w *World) Loot(characterID, bodyID, itemID int) error {
	c, err := w.actor(protocol.CmdLoot, characterID)
	if err != nil {
		return err
	}
	body, err := w.store.Get(bodyID)
	if err != nil {
		return err
	}
	if body.Kind != world.KindBody {
		return reject(protocol.CmdLoot, "character %d is not a body", bodyID)
	}
	if !body.HasItem(itemID) {
		return reject(protocol.CmdLoot, "body %d does not have item %d", bodyID, itemID)
	}

	if err := w.move(body, c, itemID); err != nil {
		return err
	}

	w.broadcast(protocol.LootEvent(c.ID, body.ID, itemID))
	w.sendInventory(c)
	w.events.Emit(eventbus.TypeItemLooted, eventbus.PriorityNormal, eventbus.ItemLooted{
		CharacterID: c.ID, BodyID: body.ID, ItemID: itemID,
	})
	return nil
}

// Use применяет расходник или переключает экипировку
func (w *World) Use(characterID, itemID int) error {
	c, err := w.actor(protocol.CmdUse, characterID)
	if err != nil {
		return err
	}
	if !c.HasItem(itemID) {
		return reject(protocol.CmdUse, "item %d not held", itemID)
	}
	def, ok := w.store.Catalog().Lookup(itemID)
	if !ok {
		return reject(protocol.CmdUse, "unknown item %d", itemID)
	}

	switch def.Kind {
	case world.ItemConsumable:
		c.Health = min(c.MaxHealth, c.Health+def.Heal)
		if err := w.store.RemoveItem(c.ID, itemID); err != nil {
			return err
		}
		w.persist("DeleteItemForCharacter", c.ID, func(ctx context.Context, s persistence.Store) error {
			return s.DeleteItemForCharacter(ctx, characterID, itemID)
		})
	case world.ItemWeapon:
		if c.Weapon == itemID {
			c.Weapon = world.NoItem
		} else {
			c.Weapon = itemID
		}
	case world.ItemApparel:
		if c.Apparel == itemID {
			c.Apparel = world.NoItem
		} else {
			c.Apparel = itemID
		}
	default:
		return reject(protocol.CmdUse, "item %d cannot be used", itemID)
	}
	c.UpdateStats(w.store.Catalog())

	w.broadcast(protocol.UseEvent(c.ID, itemID))
	if def.Kind == world.ItemConsumable {
		w.sendInventory(c)
	}
	w.persistStats(c)
	return nil
}

// NPCItems отвечает запросившему содержимым NPC или трупа
func (w *World) NPCItems(conn session.ConnID, id int) error {
	c, err := w.container(protocol.CmdNPCItems, id)
	if err != nil {
		return err
	}
	w.send(conn, protocol.NPCInventory(c.ID, c.Inventory))
	return nil
}
