// Package window implements the fixed-capacity store of in-flight datagrams
// used by the Go-Back-N sender.
package window

import (
	"github.com/pkg/errors"

	"github.com/skycoin/rdt/pkg/datagram"
)

var (
	// ErrInvalidCapacity is returned by New for a non-positive capacity.
	ErrInvalidCapacity = errors.New("window capacity must be positive")

	// ErrRangeTooWide is returned when a range spans more sequence numbers than the buffer holds.
	ErrRangeTooWide = errors.New("range wider than window capacity")

	// ErrSlotMismatch is returned when a slot does not hold the requested sequence number.
	ErrSlotMismatch = errors.New("slot does not hold requested sequence number")
)

type slot struct {
	d        datagram.Datagram
	occupied bool
}

// Buffer holds the most recently stored datagram for every slot. Sequence
// numbers map to slots by seq mod capacity.
type Buffer struct {
	slots []slot
}

// New constructs a Buffer with the given capacity.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Buffer{slots: make([]slot, capacity)}, nil
}

// Cap returns the number of slots.
func (b *Buffer) Cap() int {
	return len(b.slots)
}

// Slot returns the index holding sequence number seq.
func (b *Buffer) Slot(seq uint16) int {
	return int(seq) % len(b.slots)
}

// Store places d in the slot for seq, replacing whatever the slot held.
// The caller guarantees base <= seq < base+Cap().
func (b *Buffer) Store(seq uint16, d datagram.Datagram) error {
	if d.SeqNum != seq {
		return errors.Wrapf(ErrSlotMismatch, "storing datagram %d under %d", d.SeqNum, seq)
	}
	b.slots[b.Slot(seq)] = slot{d: d, occupied: true}
	return nil
}

// Get returns the datagram stored for seq.
func (b *Buffer) Get(seq uint16) (datagram.Datagram, error) {
	s := b.slots[b.Slot(seq)]
	if !s.occupied {
		return datagram.Datagram{}, errors.Wrapf(ErrSlotMismatch, "slot %d is empty", b.Slot(seq))
	}
	if s.d.SeqNum != seq {
		return datagram.Datagram{}, errors.Wrapf(ErrSlotMismatch, "slot %d holds %d, want %d", b.Slot(seq), s.d.SeqNum, seq)
	}
	return s.d, nil
}

// Range calls fn for every sequence number in [base, next) in ascending
// order, stopping at the first error.
func (b *Buffer) Range(base, next uint16, fn func(seq uint16, d datagram.Datagram) error) error {
	if next < base {
		return errors.Errorf("invalid range [%d, %d)", base, next)
	}
	if int(next-base) > len(b.slots) {
		return errors.Wrapf(ErrRangeTooWide, "[%d, %d) over %d slots", base, next, len(b.slots))
	}

	for seq := base; seq != next; seq++ {
		d, err := b.Get(seq)
		if err != nil {
			return err
		}
		if err := fn(seq, d); err != nil {
			return err
		}
	}
	return nil
}
