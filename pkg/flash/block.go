package flash

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// BlockDevice is the persistent storage a Block image lives in. TinyGo's
// machine.Flash implements it.
type BlockDevice interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	EraseBlockSize() int64
	EraseBlocks(start, length int64) error
}

const (
	blockMagic  = 0x46514144 // "DAQF"
	blockHeader = 12
)

// Block is a Memory loaded from a BlockDevice and written back by Sync. The
// image is a header (magic, sector size, sector count) followed by the flash
// contents and the option bytes, the same payload as a File image.
type Block struct {
	*Memory

	dev   BlockDevice
	dirty atomic.Bool
}

// OpenBlock loads the image from dev. A device without an image of geom
// starts erased.
func OpenBlock(dev BlockDevice, geom Geometry) (*Block, error) {
	buf := make([]byte, blockHeader+int(geom.Size())+2*geom.Sectors)
	if _, err := dev.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("flash: could not read block image: %w", err)
	}

	fresh := binary.LittleEndian.Uint32(buf[0:]) != blockMagic ||
		binary.LittleEndian.Uint32(buf[4:]) != geom.SectorSize ||
		binary.LittleEndian.Uint32(buf[8:]) != uint32(geom.Sectors)
	body := buf[blockHeader:]
	mem := newMemory(geom, body[:geom.Size()], body[geom.Size():], fresh)

	b := &Block{Memory: mem, dev: dev}
	mem.Fault = func(op Op, _ uint32) error {
		switch op {
		case OpErase, OpProgram, OpLaunchOptions:
			b.dirty.Store(true)
		}
		return nil
	}
	return b, nil
}

// Dirty reports whether the memory changed since the last Sync.
func (b *Block) Dirty() bool {
	return b.dirty.Load()
}

// Sync rewrites the image on the device when the memory changed.
func (b *Block) Sync() error {
	if !b.dirty.Swap(false) {
		return nil
	}

	b.mu.Lock()
	buf := make([]byte, blockHeader, blockHeader+len(b.data)+len(b.opt))
	binary.LittleEndian.PutUint32(buf[0:], blockMagic)
	binary.LittleEndian.PutUint32(buf[4:], b.geom.SectorSize)
	binary.LittleEndian.PutUint32(buf[8:], uint32(b.geom.Sectors))
	buf = append(buf, b.data...)
	buf = append(buf, b.opt...)
	b.mu.Unlock()

	bs := b.dev.EraseBlockSize()
	if err := b.dev.EraseBlocks(0, (int64(len(buf))+bs-1)/bs); err != nil {
		b.dirty.Store(true)
		return fmt.Errorf("flash: could not erase block image: %w", err)
	}
	if _, err := b.dev.WriteAt(buf, 0); err != nil {
		b.dirty.Store(true)
		return fmt.Errorf("flash: could not write block image: %w", err)
	}
	return nil
}
