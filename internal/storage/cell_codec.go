package storage

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world"
	"github.com/annel0/voxphys/internal/world/tile"
)

// cellFormatVersion версия двоичного формата ячейки
const cellFormatVersion byte = 1

// tileRecordSize байт на тайл: материал, жидкость, уровень, dx, dy, dz
const tileRecordSize = 6

// ErrCorruptCell возвращается, если блоб ячейки не удается разобрать
var ErrCorruptCell = errors.New("поврежденные данные ячейки")

// CellCodec упаковывает тайлы ячейки в сжатый zstd блоб.
// Безопасен для одновременного использования.
type CellCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCellCodec создаёт кодек ячеек
func NewCellCodec() (*CellCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("не удалось создать компрессор: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("не удалось создать декомпрессор: %w", err)
	}
	return &CellCodec{encoder: encoder, decoder: decoder}, nil
}

// Close освобождает ресурсы кодека
func (c *CellCodec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

// Encode сериализует тайлы ячейки
func (c *CellCodec) Encode(tiles *world.CellTiles) []byte {
	raw := make([]byte, 0, world.CellTileCount*tileRecordSize)
	for z := range tiles {
		for y := range tiles[z] {
			for x := range tiles[z][y] {
				t := tiles[z][y][x]
				raw = append(raw,
					byte(t.Material), byte(t.Fluid), byte(t.Level),
					byte(t.Direction.X), byte(t.Direction.Y), byte(t.Direction.Z))
			}
		}
	}

	out := make([]byte, 1, 1+len(raw)/8)
	out[0] = cellFormatVersion
	return c.encoder.EncodeAll(raw, out)
}

// Decode восстанавливает тайлы ячейки из блоба
func (c *CellCodec) Decode(data []byte, tiles *world.CellTiles) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: пустой блоб", ErrCorruptCell)
	}
	if data[0] != cellFormatVersion {
		return fmt.Errorf("%w: неизвестная версия формата %d", ErrCorruptCell, data[0])
	}

	raw, err := c.decoder.DecodeAll(data[1:], make([]byte, 0, world.CellTileCount*tileRecordSize))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptCell, err)
	}
	if len(raw) != world.CellTileCount*tileRecordSize {
		return fmt.Errorf("%w: длина %d", ErrCorruptCell, len(raw))
	}

	i := 0
	for z := range tiles {
		for y := range tiles[z] {
			for x := range tiles[z][y] {
				r := raw[i : i+tileRecordSize]
				t := tile.Tile{
					Material: tile.Material(r[0]),
					Fluid:    tile.Fluid(r[1]),
					Level:    int8(r[2]),
					Direction: tile.Direction{
						X: int8(r[3]),
						Y: int8(r[4]),
						Z: int8(r[5]),
					},
				}
				if !t.Material.Valid() {
					return fmt.Errorf("%w: материал %d в (%d, %d, %d)", ErrCorruptCell, r[0], x, y, z)
				}
				tiles[z][y][x] = t
				i += tileRecordSize
			}
		}
	}
	return nil
}

// cellKey ключ ячейки в BadgerDB
func cellKey(location vec.Vec3) []byte {
	return []byte(fmt.Sprintf("cell:%d:%d:%d", location.X, location.Y, location.Z))
}
