package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/annel0/lerocia/internal/persistence"
)

// Эндпоинты удалённого API хранилища
const (
	EndpointWorldItems        = "get_world_items.php"
	EndpointNPCs              = "get_npcs.php"
	EndpointBodies            = "get_bodies.php"
	EndpointItemsForCharacter = "get_items_for_character.php"
	EndpointGetStats          = "get_stats.php"
	EndpointSetStats          = "set_stats.php"
	EndpointDestinations      = "get_destinations_for_npc.php"
	EndpointCreateBody        = "create_body.php"
	EndpointAddItem           = "add_item_for_user.php"
	EndpointDeleteItem        = "delete_item_for_user.php"
	EndpointAddWorldItem      = "add_world_item.php"
	EndpointDeleteWorldItem   = "delete_world_item.php"
	EndpointUpdateOwnership   = "update_inventory_ownership.php"
	EndpointLogout            = "logout.php"
	EndpointLogoutAll         = "logout_all_users.php"
)

const maxResponseBytes = 4 << 20

// HTTPStore реализует persistence.Store поверх удалённого HTTP API.
// Запросы - POST с form-полями; ответы на чтение - JSON,
// ответы на запись - пустое тело при успехе или строка ошибки.
type HTTPStore struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPStore создаёт клиента для baseURL; client может быть nil
func NewHTTPStore(baseURL string, client *http.Client) (*HTTPStore, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("некорректный адрес хранилища %q: %w", baseURL, err)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPStore{base: u, client: client}, nil
}

func (s *HTTPStore) post(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	target := s.base.ResolveReference(&url.URL{Path: endpoint})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%s: чтение ответа: %w", endpoint, err)
	}
	return body, resp.StatusCode, nil
}

// query выполняет чтение и разбирает JSON ответ в out
func (s *HTTPStore) query(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	body, status, err := s.post(ctx, endpoint, form)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%s: %w", endpoint, persistence.ErrNotFound)
	}
	if status/100 != 2 {
		return &persistence.RemoteError{Op: endpoint, Msg: remoteMessage(status, body)}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: разбор ответа: %w", endpoint, err)
	}
	return nil
}

// command выполняет запись; непустое тело ответа считается ошибкой
func (s *HTTPStore) command(ctx context.Context, endpoint string, form url.Values) error {
	body, status, err := s.post(ctx, endpoint, form)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%s: %w", endpoint, persistence.ErrNotFound)
	}
	msg := strings.TrimSpace(string(body))
	if status/100 != 2 || msg != "" {
		return &persistence.RemoteError{Op: endpoint, Msg: remoteMessage(status, body)}
	}
	return nil
}

func remoteMessage(status int, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return http.StatusText(status)
	}
	return msg
}

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func statsForm(form url.Values, st persistence.StatsRecord) url.Values {
	form.Set("max_health", itoa(st.MaxHealth))
	form.Set("current_health", itoa(st.Health))
	form.Set("max_stamina", itoa(st.MaxStamina))
	form.Set("current_stamina", itoa(st.Stamina))
	form.Set("gold", itoa(st.Gold))
	form.Set("weight", itoa(st.Weight))
	form.Set("base_damage", itoa(st.BaseDamage))
	form.Set("base_armor", itoa(st.BaseArmor))
	form.Set("weapon_id", itoa(st.Weapon))
	form.Set("apparel_id", itoa(st.Apparel))
	return form
}

func (s *HTTPStore) LoadWorldItems(ctx context.Context) ([]persistence.WorldItemRecord, error) {
	var out []persistence.WorldItemRecord
	return out, s.query(ctx, EndpointWorldItems, url.Values{}, &out)
}

func (s *HTTPStore) LoadNPCs(ctx context.Context) ([]persistence.NPCRecord, error) {
	var out []persistence.NPCRecord
	return out, s.query(ctx, EndpointNPCs, url.Values{}, &out)
}

func (s *HTTPStore) LoadBodies(ctx context.Context) ([]persistence.BodyRecord, error) {
	var out []persistence.BodyRecord
	return out, s.query(ctx, EndpointBodies, url.Values{}, &out)
}

func (s *HTTPStore) GetItemsForCharacter(ctx context.Context, characterID int) ([]int, error) {
	var recs []persistence.ItemRecord
	if err := s.query(ctx, EndpointItemsForCharacter, url.Values{"character_id": {itoa(characterID)}}, &recs); err != nil {
		return nil, err
	}
	out := make([]int, len(recs))
	for i, r := range recs {
		out[i] = r.ItemID
	}
	return out, nil
}

func (s *HTTPStore) GetStatsForCharacter(ctx context.Context, characterID int) (persistence.StatsRecord, error) {
	var st persistence.StatsRecord
	err := s.query(ctx, EndpointGetStats, url.Values{"character_id": {itoa(characterID)}}, &st)
	return st, err
}

func (s *HTTPStore) SetStatsForCharacter(ctx context.Context, characterID int, stats persistence.StatsRecord) error {
	return s.command(ctx, EndpointSetStats, statsForm(url.Values{"character_id": {itoa(characterID)}}, stats))
}

func (s *HTTPStore) GetDestinationsForNPC(ctx context.Context, npcID int) ([]persistence.DestinationRecord, error) {
	var out []persistence.DestinationRecord
	return out, s.query(ctx, EndpointDestinations, url.Values{"npc_id": {itoa(npcID)}}, &out)
}

func (s *HTTPStore) CreateBody(ctx context.Context, body persistence.BodyRecord) (int, error) {
	form := statsForm(url.Values{
		"character_name": {body.Name},
		"personality":    {body.Personality},
		"position_x":     {ftoa(body.X)},
		"position_y":     {ftoa(body.Y)},
		"position_z":     {ftoa(body.Z)},
	}, body.StatsRecord)
	var resp struct {
		ID *int `json:"character_id"`
	}
	if err := s.query(ctx, EndpointCreateBody, form, &resp); err != nil {
		return 0, err
	}
	if resp.ID == nil {
		return 0, &persistence.RemoteError{Op: EndpointCreateBody, Msg: "в ответе нет character_id"}
	}
	return *resp.ID, nil
}

func (s *HTTPStore) AddItemForCharacter(ctx context.Context, characterID, itemID int) error {
	return s.command(ctx, EndpointAddItem, url.Values{"user_id": {itoa(characterID)}, "item_id": {itoa(itemID)}})
}

func (s *HTTPStore) DeleteItemForCharacter(ctx context.Context, characterID, itemID int) error {
	return s.command(ctx, EndpointDeleteItem, url.Values{"user_id": {itoa(characterID)}, "item_id": {itoa(itemID)}})
}

func (s *HTTPStore) AddWorldItem(ctx context.Context, item persistence.WorldItemRecord) error {
	return s.command(ctx, EndpointAddWorldItem, url.Values{
		"world_id":   {itoa(item.WorldID)},
		"item_id":    {itoa(item.ItemID)},
		"position_x": {ftoa(item.X)},
		"position_y": {ftoa(item.Y)},
		"position_z": {ftoa(item.Z)},
	})
}

func (s *HTTPStore) DeleteWorldItem(ctx context.Context, worldID int) error {
	return s.command(ctx, EndpointDeleteWorldItem, url.Values{"world_id": {itoa(worldID)}})
}

func (s *HTTPStore) UpdateInventoryOwnership(ctx context.Context, oldOwner, newOwner int) error {
	return s.command(ctx, EndpointUpdateOwnership, url.Values{"old_owner": {itoa(oldOwner)}, "new_owner": {itoa(newOwner)}})
}

func (s *HTTPStore) Logout(ctx context.Context, characterID int) error {
	return s.command(ctx, EndpointLogout, url.Values{"user_id": {itoa(characterID)}})
}

func (s *HTTPStore) LogoutAll(ctx context.Context) error {
	return s.command(ctx, EndpointLogoutAll, url.Values{})
}

func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

var _ persistence.Store = (*HTTPStore)(nil)
