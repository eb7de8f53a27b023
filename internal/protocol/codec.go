// Package protocol реализует текстовый протокол обмена с клиентами.
//
// Сообщение состоит из полей, разделённых FieldSep; первое поле задаёт команду.
// Поле-список содержит записи через RecordSep, поля записи разделяются ValueSep,
// вложенный список внутри записи (инвентарь трупа) использует ListSep.
package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	FieldSep  = "|"
	RecordSep = ";"
	ValueSep  = "%"
	ListSep   = ","
)

var (
	ErrEmptyMessage   = errors.New("пустое сообщение")
	ErrUnknownCommand = errors.New("неизвестная команда")
	ErrArgCount       = errors.New("неверное число аргументов")
)

// ParseError ошибка разбора конкретного поля сообщения
type ParseError struct {
	Command Command
	Field   int
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: поле %d: %v", e.Command, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Message сырое сообщение протокола: команда и позиционные аргументы
type Message struct {
	Command Command
	Args    []string
}

// Split делит сырое сообщение на команду и аргументы. Команда не проверяется.
func Split(raw string) (Message, error) {
	raw = strings.TrimRight(raw, "\r\n")
	if raw == "" {
		return Message{}, ErrEmptyMessage
	}
	fields := strings.Split(raw, FieldSep)
	return Message{Command: Command(fields[0]), Args: fields[1:]}, nil
}

// Encode собирает сообщение. Команда без аргументов кодируется голым именем.
func Encode(cmd Command, args ...string) string {
	if len(args) == 0 {
		return string(cmd)
	}
	var b strings.Builder
	b.WriteString(string(cmd))
	for _, a := range args {
		b.WriteString(FieldSep)
		b.WriteString(a)
	}
	return b.String()
}

// String кодирует сообщение обратно в текст
func (m Message) String() string {
	return Encode(m.Command, m.Args...)
}

// argReader читает типизированные аргументы с контролем позиции
type argReader struct {
	cmd  Command
	args []string
	err  error
}

func newArgReader(m Message, want int) (*argReader, error) {
	if len(m.Args) != want {
		return nil, &ParseError{Command: m.Command, Field: len(m.Args), Err: fmt.Errorf("%w: %d вместо %d", ErrArgCount, len(m.Args), want)}
	}
	return &argReader{cmd: m.Command, args: m.Args}, nil
}

func (r *argReader) fail(i int, err error) {
	if r.err == nil {
		r.err = &ParseError{Command: r.cmd, Field: i + 1, Err: err}
	}
}

func (r *argReader) int(i int) int {
	v, err := ParseInt(r.args[i])
	if err != nil {
		r.fail(i, err)
	}
	return v
}

func (r *argReader) float(i int) float64 {
	v, err := ParseFloat(r.args[i])
	if err != nil {
		r.fail(i, err)
	}
	return v
}

func (r *argReader) name(i int) string {
	s := r.args[i]
	if s == "" {
		r.fail(i, errors.New("пустое имя"))
	} else if strings.ContainsAny(s, RecordSep+ValueSep+ListSep) {
		r.fail(i, errors.New("имя содержит служебный разделитель"))
	}
	return s
}

// ParseInt строгий разбор целого: без пробелов и знака '+'
func ParseInt(s string) (int, error) {
	if s == "" || s[0] == '+' {
		return 0, fmt.Errorf("некорректное целое %q", s)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое %q", s)
	}
	return v, nil
}

// ParseFloat строгий разбор конечного числа с плавающей точкой
func ParseFloat(s string) (float64, error) {
	if s == "" || s[0] == '+' {
		return 0, fmt.Errorf("некорректное число %q", s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("некорректное число %q", s)
	}
	return v, nil
}

// FormatFloat кратчайшее десятичное представление без экспоненты
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Itoa сокращение для strconv.Itoa
func Itoa(v int) string {
	return strconv.Itoa(v)
}

// JoinInts кодирует список целых через разделитель
func JoinInts(values []int, sep string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, sep)
}

// SplitInts разбирает список целых; пустая строка даёт пустой список
func SplitInts(s, sep string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, sep)
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := ParseInt(p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
