// Package session хранит привязку транспортных соединений к персонажам.
package session

import (
	"errors"
	"fmt"
	"sort"
)

// ConnID идентификатор транспортного соединения
type ConnID uint32

// State этап жизненного цикла соединения
type State uint8

const (
	// StatePending соединение открыто, имя ещё не объявлено
	StatePending State = iota
	// StateLoading имя объявлено, персонаж загружается из хранилища
	StateLoading
	// StateReady персонаж в мире и участвует в рассылках
	StateReady
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

var (
	ErrUnknownConn   = errors.New("соединение не зарегистрировано")
	ErrAlreadyBound  = errors.New("соединение уже привязано")
	ErrCharacterBusy = errors.New("персонаж уже привязан к другому соединению")
	ErrDuplicateConn = errors.New("соединение уже зарегистрировано")
)

type entry struct {
	state       State
	characterID int
	name        string
}

// Registry двусторонняя карта соединение <-> персонаж. Владелец - тиковый цикл.
type Registry struct {
	conns  map[ConnID]*entry
	byChar map[int]ConnID
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[ConnID]*entry),
		byChar: make(map[int]ConnID),
	}
}

// Connect регистрирует новое соединение в состоянии pending
func (r *Registry) Connect(conn ConnID) error {
	if _, exists := r.conns[conn]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateConn, conn)
	}
	r.conns[conn] = &entry{state: StatePending}
	return nil
}

// Bind привязывает персонажа к pending соединению
func (r *Registry) Bind(conn ConnID, characterID int, name string) error {
	e, ok := r.conns[conn]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownConn, conn)
	}
	if e.state != StatePending {
		return fmt.Errorf("%w: %d", ErrAlreadyBound, conn)
	}
	if other, busy := r.byChar[characterID]; busy {
		return fmt.Errorf("%w: персонаж %d, соединение %d", ErrCharacterBusy, characterID, other)
	}
	e.state = StateLoading
	e.characterID = characterID
	e.name = name
	r.byChar[characterID] = conn
	return nil
}

// MarkReady переводит соединение в ready после вставки персонажа в мир
func (r *Registry) MarkReady(conn ConnID) error {
	e, ok := r.conns[conn]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownConn, conn)
	}
	if e.state != StateLoading {
		return fmt.Errorf("соединение %d в состоянии %s, ожидалось loading", conn, e.state)
	}
	e.state = StateReady
	return nil
}

// Disconnect удаляет соединение. Возвращает прежнее состояние и id персонажа, если он был привязан.
func (r *Registry) Disconnect(conn ConnID) (State, int, error) {
	e, ok := r.conns[conn]
	if !ok {
		return StatePending, 0, fmt.Errorf("%w: %d", ErrUnknownConn, conn)
	}
	delete(r.conns, conn)
	if e.state != StatePending {
		delete(r.byChar, e.characterID)
	}
	return e.state, e.characterID, nil
}

// State состояние соединения
func (r *Registry) State(conn ConnID) (State, bool) {
	e, ok := r.conns[conn]
	if !ok {
		return StatePending, false
	}
	return e.state, true
}

// CharacterOf id персонажа соединения, если соединение привязано
func (r *Registry) CharacterOf(conn ConnID) (int, bool) {
	e, ok := r.conns[conn]
	if !ok || e.state == StatePending {
		return 0, false
	}
	return e.characterID, true
}

// ReadyCharacterOf id персонажа только для соединений в состоянии ready
func (r *Registry) ReadyCharacterOf(conn ConnID) (int, bool) {
	e, ok := r.conns[conn]
	if !ok || e.state != StateReady {
		return 0, false
	}
	return e.characterID, true
}

// ConnOf соединение персонажа
func (r *Registry) ConnOf(characterID int) (ConnID, bool) {
	conn, ok := r.byChar[characterID]
	return conn, ok
}

// IsReady привязан ли персонаж к соединению в состоянии ready
func (r *Registry) IsReady(characterID int) bool {
	conn, ok := r.byChar[characterID]
	if !ok {
		return false
	}
	return r.conns[conn].state == StateReady
}

// Connections все соединения по возрастанию id
func (r *Registry) Connections() []ConnID {
	out := make([]ConnID, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ReadyConnections соединения с загруженным персонажем
func (r *Registry) ReadyConnections() []ConnID {
	var out []ConnID
	for _, c := range r.Connections() {
		if r.conns[c].state == StateReady {
			out = append(out, c)
		}
	}
	return out
}

// Entry пара имя/персонаж для списка игроков
type Entry struct {
	Conn        ConnID
	CharacterID int
	Name        string
}

// Roster загруженные игроки по возрастанию id соединения
func (r *Registry) Roster() []Entry {
	var out []Entry
	for _, c := range r.ReadyConnections() {
		e := r.conns[c]
		out = append(out, Entry{Conn: c, CharacterID: e.characterID, Name: e.name})
	}
	return out
}

// Counts число соединений по состояниям
func (r *Registry) Counts() (pending, loading, ready int) {
	for _, e := range r.conns {
		switch e.state {
		case StatePending:
			pending++
		case StateLoading:
			loading++
		case StateReady:
			ready++
		}
	}
	return
}
