package persistence

// StatsRecord характеристики персонажа в хранилище
type StatsRecord struct {
	MaxHealth  int `json:"max_health" yaml:"max_health"`
	Health     int `json:"current_health" yaml:"current_health"`
	MaxStamina int `json:"max_stamina" yaml:"max_stamina"`
	Stamina    int `json:"current_stamina" yaml:"current_stamina"`
	Gold       int `json:"gold" yaml:"gold"`
	Weight     int `json:"weight" yaml:"weight"`
	BaseDamage int `json:"base_damage" yaml:"base_damage"`
	BaseArmor  int `json:"base_armor" yaml:"base_armor"`
	Weapon     int `json:"weapon_id" yaml:"weapon_id"`
	Apparel    int `json:"apparel_id" yaml:"apparel_id"`
}

// WorldItemRecord предмет в мире
type WorldItemRecord struct {
	WorldID int     `json:"world_id" yaml:"world_id"`
	ItemID  int     `json:"item_id" yaml:"item_id"`
	X       float64 `json:"position_x" yaml:"position_x"`
	Y       float64 `json:"position_y" yaml:"position_y"`
	Z       float64 `json:"position_z" yaml:"position_z"`
}

// NPCRecord определение NPC
type NPCRecord struct {
	ID          int     `json:"npc_id" yaml:"npc_id"`
	Name        string  `json:"npc_name" yaml:"npc_name"`
	Personality string  `json:"personality" yaml:"personality"`
	DialogueID  int     `json:"dialogue_id" yaml:"dialogue_id"`
	X           float64 `json:"position_x" yaml:"position_x"`
	Y           float64 `json:"position_y" yaml:"position_y"`
	Z           float64 `json:"position_z" yaml:"position_z"`
	RotW        float64 `json:"rotation_w" yaml:"rotation_w"`
	RotX        float64 `json:"rotation_x" yaml:"rotation_x"`
	RotY        float64 `json:"rotation_y" yaml:"rotation_y"`
	RotZ        float64 `json:"rotation_z" yaml:"rotation_z"`
	// RespawnDelay в секундах, LookRadius в метрах; 0 означает значение по умолчанию
	RespawnDelay float64 `json:"respawn_delay" yaml:"respawn_delay"`
	LookRadius   float64 `json:"look_radius" yaml:"look_radius"`

	StatsRecord `yaml:",inline"`
}

// BodyRecord труп
type BodyRecord struct {
	ID          int     `json:"character_id" yaml:"character_id"`
	Name        string  `json:"character_name" yaml:"character_name"`
	Personality string  `json:"personality" yaml:"personality"`
	X           float64 `json:"position_x" yaml:"position_x"`
	Y           float64 `json:"position_y" yaml:"position_y"`
	Z           float64 `json:"position_z" yaml:"position_z"`

	StatsRecord `yaml:",inline"`
}

// DestinationRecord точка патруля NPC; Duration в секундах
type DestinationRecord struct {
	X        float64 `json:"position_x" yaml:"position_x"`
	Y        float64 `json:"position_y" yaml:"position_y"`
	Z        float64 `json:"position_z" yaml:"position_z"`
	Duration float64 `json:"duration" yaml:"duration"`
}

// ItemRecord владение предметом
type ItemRecord struct {
	OwnerID int `json:"character_id" yaml:"character_id"`
	ItemID  int `json:"item_id" yaml:"item_id"`
}
