// Package network доставляет сообщения протокола клиентам.
//
// Надёжный канал работает поверх KCP: каждое сообщение передаётся кадром
// с 4-байтовой длиной (little endian) и байтом флагов. Ненадёжный канал
// использует голые UDP датаграммы, по одному сообщению в датаграмме.
package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Флаги кадра
const (
	flagPlain byte = 0
	flagZstd  byte = 1
)

const (
	headerSize = 5
	// MaxFrameSize предел длины кадра; длиннее считается повреждённым потоком
	MaxFrameSize = 1 << 20
)

var (
	ErrFrameTooLarge = errors.New("кадр превышает допустимый размер")
	ErrUnknownFlag   = errors.New("неизвестный флаг кадра")
)

// Codec кодирует сообщения в кадры. Безопасен для одновременного использования.
type Codec struct {
	threshold int
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

// NewCodec создаёт кодек. Сообщения длиннее threshold сжимаются; 0 отключает сжатие.
func NewCodec(threshold int) (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxFrameSize))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{threshold: threshold, encoder: enc, decoder: dec}, nil
}

// Close освобождает ресурсы zstd
func (c *Codec) Close() {
	_ = c.encoder.Close()
	c.decoder.Close()
}

// Encode собирает кадр из сообщения
func (c *Codec) Encode(msg string) []byte {
	payload := []byte(msg)
	flag := flagPlain
	if c.threshold > 0 && len(payload) > c.threshold {
		payload = c.encoder.EncodeAll(payload, make([]byte, 0, len(payload)/2))
		flag = flagZstd
	}
	frame := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(frame[:4], uint32(len(payload)+1))
	frame[4] = flag
	copy(frame[headerSize:], payload)
	return frame
}

// ReadFrame читает один кадр из потока и возвращает сообщение
func (c *Codec) ReadFrame(r io.Reader) (string, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", err
	}
	length := binary.LittleEndian.Uint32(header[:4])
	if length == 0 || length > MaxFrameSize {
		return "", fmt.Errorf("%w: %d", ErrFrameTooLarge, length)
	}
	payload := make([]byte, length-1)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", err
	}
	switch header[4] {
	case flagPlain:
		return string(payload), nil
	case flagZstd:
		out, err := c.decoder.DecodeAll(payload, nil)
		if err != nil {
			return "", fmt.Errorf("распаковка кадра: %w", err)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownFlag, header[4])
	}
}
