package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/annel0/lerocia/internal/persistence"
	_ "github.com/go-sql-driver/mysql"
)

// MariaStore реализует persistence.Store для MariaDB/MySQL.
// Таблицы создаются автоматически, если их нет.
type MariaStore struct {
	db *sql.DB
}

// NewMariaStore подключается к базе (user:pass@tcp(host:port)/dbname) и создаёт схему
func NewMariaStore(dsn string) (*MariaStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	s := &MariaStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицы: %w", err)
	}
	return s, nil
}

const statsColumns = "max_health, current_health, max_stamina, current_stamina, gold, weight, base_damage, base_armor, weapon_id, apparel_id"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS world_items (
		world_id   INT     PRIMARY KEY,
		item_id    INT     NOT NULL,
		position_x DOUBLE  NOT NULL,
		position_y DOUBLE  NOT NULL,
		position_z DOUBLE  NOT NULL
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS characters (
		character_id    INT          PRIMARY KEY,
		character_name  VARCHAR(64)  NOT NULL DEFAULT '',
		kind            VARCHAR(8)   NOT NULL DEFAULT 'player',
		personality     VARCHAR(16)  NOT NULL DEFAULT 'friendly',
		dialogue_id     INT          NOT NULL DEFAULT 0,
		position_x      DOUBLE       NOT NULL DEFAULT 0,
		position_y      DOUBLE       NOT NULL DEFAULT 0,
		position_z      DOUBLE       NOT NULL DEFAULT 0,
		rotation_w      DOUBLE       NOT NULL DEFAULT 1,
		rotation_x      DOUBLE       NOT NULL DEFAULT 0,
		rotation_y      DOUBLE       NOT NULL DEFAULT 0,
		rotation_z      DOUBLE       NOT NULL DEFAULT 0,
		respawn_delay   DOUBLE       NOT NULL DEFAULT 0,
		look_radius     DOUBLE       NOT NULL DEFAULT 0,
		has_stats       BOOLEAN      NOT NULL DEFAULT FALSE,
		max_health      INT          NOT NULL DEFAULT 100,
		current_health  INT          NOT NULL DEFAULT 100,
		max_stamina     INT          NOT NULL DEFAULT 100,
		current_stamina INT          NOT NULL DEFAULT 100,
		gold            INT          NOT NULL DEFAULT 0,
		weight          INT          NOT NULL DEFAULT 0,
		base_damage     INT          NOT NULL DEFAULT 10,
		base_armor      INT          NOT NULL DEFAULT 0,
		weapon_id       INT          NOT NULL DEFAULT -1,
		apparel_id      INT          NOT NULL DEFAULT -1,
		logged_in       BOOLEAN      NOT NULL DEFAULT FALSE,
		INDEX idx_kind (kind)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS inventory (
		id           BIGINT AUTO_INCREMENT PRIMARY KEY,
		character_id INT    NOT NULL,
		item_id      INT    NOT NULL,
		INDEX idx_owner (character_id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS npc_destinations (
		id         BIGINT AUTO_INCREMENT PRIMARY KEY,
		npc_id     INT    NOT NULL,
		position_x DOUBLE NOT NULL,
		position_y DOUBLE NOT NULL,
		position_z DOUBLE NOT NULL,
		duration   DOUBLE NOT NULL,
		INDEX idx_npc (npc_id)
	) ENGINE=InnoDB`,
}

func (s *MariaStore) createTables() error {
	for _, q := range schema {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("ошибка создания схемы: %w", err)
		}
	}
	return nil
}

func (s *MariaStore) LoadWorldItems(ctx context.Context) ([]persistence.WorldItemRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT world_id, item_id, position_x, position_y, position_z FROM world_items ORDER BY world_id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки предметов мира: %w", err)
	}
	defer rows.Close()

	var out []persistence.WorldItemRecord
	for rows.Next() {
		var w persistence.WorldItemRecord
		if err := rows.Scan(&w.WorldID, &w.ItemID, &w.X, &w.Y, &w.Z); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanStats(st *persistence.StatsRecord) []interface{} {
	return []interface{}{&st.MaxHealth, &st.Health, &st.MaxStamina, &st.Stamina, &st.Gold, &st.Weight, &st.BaseDamage, &st.BaseArmor, &st.Weapon, &st.Apparel}
}

func statsArgs(st persistence.StatsRecord) []interface{} {
	return []interface{}{st.MaxHealth, st.Health, st.MaxStamina, st.Stamina, st.Gold, st.Weight, st.BaseDamage, st.BaseArmor, st.Weapon, st.Apparel}
}

func (s *MariaStore) LoadNPCs(ctx context.Context) ([]persistence.NPCRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT character_id, character_name, personality, dialogue_id,
		position_x, position_y, position_z, rotation_w, rotation_x, rotation_y, rotation_z,
		respawn_delay, look_radius, `+statsColumns+` FROM characters WHERE kind = 'npc' ORDER BY character_id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки NPC: %w", err)
	}
	defer rows.Close()

	var out []persistence.NPCRecord
	for rows.Next() {
		var n persistence.NPCRecord
		dest := []interface{}{&n.ID, &n.Name, &n.Personality, &n.DialogueID,
			&n.X, &n.Y, &n.Z, &n.RotW, &n.RotX, &n.RotY, &n.RotZ, &n.RespawnDelay, &n.LookRadius}
		if err := rows.Scan(append(dest, scanStats(&n.StatsRecord)...)...); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *MariaStore) LoadBodies(ctx context.Context) ([]persistence.BodyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT character_id, character_name, personality,
		position_x, position_y, position_z, `+statsColumns+` FROM characters WHERE kind = 'body' ORDER BY character_id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки трупов: %w", err)
	}
	defer rows.Close()

	var out []persistence.BodyRecord
	for rows.Next() {
		var b persistence.BodyRecord
		dest := []interface{}{&b.ID, &b.Name, &b.Personality, &b.X, &b.Y, &b.Z}
		if err := rows.Scan(append(dest, scanStats(&b.StatsRecord)...)...); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *MariaStore) GetItemsForCharacter(ctx context.Context, characterID int) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_id FROM inventory WHERE character_id = ? ORDER BY id`, characterID)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки инвентаря %d: %w", characterID, err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *MariaStore) GetStatsForCharacter(ctx context.Context, characterID int) (persistence.StatsRecord, error) {
	// Отметка входа; строка создаётся для нового персонажа
	if _, err := s.db.ExecContext(ctx, `INSERT INTO characters (character_id, logged_in) VALUES (?, TRUE)
		ON DUPLICATE KEY UPDATE logged_in = TRUE`, characterID); err != nil {
		return persistence.StatsRecord{}, fmt.Errorf("ошибка входа %d: %w", characterID, err)
	}

	var st persistence.StatsRecord
	var hasStats bool
	dest := append([]interface{}{&hasStats}, scanStats(&st)...)
	err := s.db.QueryRowContext(ctx, `SELECT has_stats, `+statsColumns+` FROM characters WHERE character_id = ?`, characterID).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !hasStats) {
		return persistence.StatsRecord{}, fmt.Errorf("статистика %d: %w", characterID, persistence.ErrNotFound)
	}
	if err != nil {
		return persistence.StatsRecord{}, fmt.Errorf("ошибка загрузки статистики %d: %w", characterID, err)
	}
	return st, nil
}

func (s *MariaStore) SetStatsForCharacter(ctx context.Context, characterID int, stats persistence.StatsRecord) error {
	query := `INSERT INTO characters (character_id, has_stats, ` + statsColumns + `)
		VALUES (?, TRUE, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE has_stats = TRUE,
			max_health = VALUES(max_health), current_health = VALUES(current_health),
			max_stamina = VALUES(max_stamina), current_stamina = VALUES(current_stamina),
			gold = VALUES(gold), weight = VALUES(weight),
			base_damage = VALUES(base_damage), base_armor = VALUES(base_armor),
			weapon_id = VALUES(weapon_id), apparel_id = VALUES(apparel_id)`
	args := append([]interface{}{characterID}, statsArgs(stats)...)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ошибка сохранения статистики %d: %w", characterID, err)
	}
	return nil
}

func (s *MariaStore) GetDestinationsForNPC(ctx context.Context, npcID int) ([]persistence.DestinationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position_x, position_y, position_z, duration FROM npc_destinations WHERE npc_id = ? ORDER BY id`, npcID)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки маршрута %d: %w", npcID, err)
	}
	defer rows.Close()

	var out []persistence.DestinationRecord
	for rows.Next() {
		var d persistence.DestinationRecord
		if err := rows.Scan(&d.X, &d.Y, &d.Z, &d.Duration); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *MariaStore) CreateBody(ctx context.Context, body persistence.BodyRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(character_id), -1) + 1 FROM characters FOR UPDATE`).Scan(&next); err != nil {
		return 0, fmt.Errorf("ошибка выдачи id трупа: %w", err)
	}
	query := `INSERT INTO characters (character_id, character_name, kind, personality, position_x, position_y, position_z, has_stats, ` + statsColumns + `)
		VALUES (?, ?, 'body', ?, ?, ?, ?, TRUE, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := append([]interface{}{next, body.Name, body.Personality, body.X, body.Y, body.Z}, statsArgs(body.StatsRecord)...)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("ошибка создания трупа: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *MariaStore) AddItemForCharacter(ctx context.Context, characterID, itemID int) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO inventory (character_id, item_id) VALUES (?, ?)`, characterID, itemID)
	if err != nil {
		return fmt.Errorf("ошибка добавления предмета %d персонажу %d: %w", itemID, characterID, err)
	}
	return nil
}

func (s *MariaStore) DeleteItemForCharacter(ctx context.Context, characterID, itemID int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inventory WHERE character_id = ? AND item_id = ? ORDER BY id LIMIT 1`, characterID, itemID)
	if err != nil {
		return fmt.Errorf("ошибка удаления предмета %d у %d: %w", itemID, characterID, err)
	}
	return requireAffected(res, fmt.Sprintf("предмет %d у %d", itemID, characterID))
}

func (s *MariaStore) AddWorldItem(ctx context.Context, item persistence.WorldItemRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO world_items (world_id, item_id, position_x, position_y, position_z) VALUES (?, ?, ?, ?, ?)`,
		item.WorldID, item.ItemID, item.X, item.Y, item.Z)
	if err != nil {
		return fmt.Errorf("ошибка добавления предмета в мир %d: %w", item.WorldID, err)
	}
	return nil
}

func (s *MariaStore) DeleteWorldItem(ctx context.Context, worldID int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM world_items WHERE world_id = ?`, worldID)
	if err != nil {
		return fmt.Errorf("ошибка удаления предмета из мира %d: %w", worldID, err)
	}
	return requireAffected(res, fmt.Sprintf("предмет в мире %d", worldID))
}

func (s *MariaStore) UpdateInventoryOwnership(ctx context.Context, oldOwner, newOwner int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE inventory SET character_id = ? WHERE character_id = ?`, newOwner, oldOwner)
	if err != nil {
		return fmt.Errorf("ошибка передачи инвентаря %d -> %d: %w", oldOwner, newOwner, err)
	}
	return nil
}

func (s *MariaStore) Logout(ctx context.Context, characterID int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE characters SET logged_in = FALSE WHERE character_id = ?`, characterID)
	return err
}

func (s *MariaStore) LogoutAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE characters SET logged_in = FALSE WHERE logged_in = TRUE`)
	return err
}

func (s *MariaStore) Close() error {
	return s.db.Close()
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, persistence.ErrNotFound)
	}
	return nil
}

var _ persistence.Store = (*MariaStore)(nil)
