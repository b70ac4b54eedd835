package fatdisk

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/aligator/fatdisk/checkpoint"
)

const (
	codeAvailable uint32 = 0
	codeReserved  uint32 = 1
)

// Table is the file allocation table of an image.
// Every entry is one of:
//  - available
//  - reserved (clusters 0 and 1)
//  - bad
//  - the number of the next cluster in a chain
//  - an end-of-chain marker
// The free list always contains exactly the clusters which are available, in the order they get allocated.
type Table struct {
	variant Variant
	codes   variantCodes
	entries []uint32
	free    []uint32
}

// NewTable creates the table of an empty disk where only the root cluster is in use.
func NewTable(variant Variant, entries uint32, rootCluster uint32) (*Table, error) {
	if rootCluster < 2 || rootCluster >= entries {
		return nil, checkpoint.Newf(ErrValidation, "root cluster %d does not fit into a table of %d entries", rootCluster, entries)
	}

	t := newTable(variant, make([]uint32, entries))
	t.entries[0] = codeReserved
	t.entries[1] = codeReserved
	t.entries[rootCluster] = t.codes.eocMax
	t.scanFree()
	return t, nil
}

// ReadTable decodes count entries from r.
//  FAT12: three bytes hold two entries: a = b0<<4 | b1>>4, b = (b1&0x0F)<<8 | b2
//  FAT16: two bytes big-endian per entry
//  FAT32: four bytes big-endian per entry
func ReadTable(variant Variant, r io.Reader, count uint32) (*Table, error) {
	codes := variant.codes()
	raw := make([]byte, encodedSize(codes.bits, count))
	if _, err := io.ReadFull(r, raw); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, checkpoint.Wrap(err, fmt.Errorf("%w: could not read %v table with %d entries", ErrValidation, variant, count))
	}

	t := newTable(variant, decodeEntries(codes.bits, raw, count))
	t.scanFree()
	return t, nil
}

func newTable(variant Variant, entries []uint32) *Table {
	return &Table{
		variant: variant,
		codes:   variant.codes(),
		entries: entries,
	}
}

func (t *Table) scanFree() {
	t.free = t.free[:0]
	for i := 2; i < len(t.entries); i++ {
		if t.entries[i] == codeAvailable {
			t.free = append(t.free, uint32(i))
		}
	}
}

// encodedSize is the number of bytes count entries need. FAT12 always stores pairs.
func encodedSize(bits int, count uint32) int {
	if bits == 12 {
		return int((count+1)/2) * 3
	}
	return int(count) * bits / 8
}

func decodeEntries(bits int, raw []byte, count uint32) []uint32 {
	entries := make([]uint32, count)
	n := int(count)

	switch bits {
	case 12:
		for i, j := 0, 0; i < n; i, j = i+2, j+3 {
			entries[i] = uint32(raw[j])<<4 | uint32(raw[j+1])>>4
			if i+1 < n {
				entries[i+1] = uint32(raw[j+1]&0x0F)<<8 | uint32(raw[j+2])
			}
		}
	case 16:
		for i := 0; i < n; i++ {
			entries[i] = uint32(binary.BigEndian.Uint16(raw[i*2:]))
		}
	default:
		for i := 0; i < n; i++ {
			entries[i] = binary.BigEndian.Uint32(raw[i*4:])
		}
	}

	return entries
}

func encodeEntries(bits int, entries []uint32) []byte {
	raw := make([]byte, encodedSize(bits, uint32(len(entries))))
	n := len(entries)

	switch bits {
	case 12:
		for i, j := 0, 0; i < n; i, j = i+2, j+3 {
			a := entries[i]
			var b uint32
			if i+1 < n {
				b = entries[i+1]
			}
			raw[j] = byte(a >> 4)
			raw[j+1] = byte(a<<4&0xF0) | byte(b>>8&0x0F)
			raw[j+2] = byte(b)
		}
	case 16:
		for i, e := range entries {
			binary.BigEndian.PutUint16(raw[i*2:], uint16(e))
		}
	default:
		for i, e := range entries {
			binary.BigEndian.PutUint32(raw[i*4:], e)
		}
	}

	return raw
}

// WriteTo writes the packed table to w.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(encodeEntries(t.codes.bits, t.entries))
	return int64(n), checkpoint.From(err)
}

func (t *Table) Variant() Variant { return t.variant }

// Entries is the number of entries including the two reserved ones.
func (t *Table) Entries() int { return len(t.entries) }

func (t *Table) FreeCount() int { return len(t.free) }

// Code returns the raw entry of a cluster.
// Clusters outside of the table are reported as reserved.
func (t *Table) Code(cluster uint32) uint32 {
	if int64(cluster) >= int64(len(t.entries)) {
		return codeReserved
	}
	return t.entries[cluster]
}

func (t *Table) inRange(cluster uint32) bool {
	return cluster >= 2 && int64(cluster) < int64(len(t.entries))
}

func (t *Table) isPointer(code uint32) bool {
	return code > codeReserved && code < t.codes.bad
}

func (t *Table) isEOC(code uint32) bool {
	return code >= t.codes.eocMin && code <= t.codes.eocMax
}

// Chain follows the chain starting at head and returns all of its clusters in order.
func (t *Table) Chain(head uint32) ([]uint32, error) {
	if !t.inRange(head) {
		return nil, checkpoint.Newf(ErrCorruptChain, "cluster %d is outside of the data area", head)
	}

	chain := []uint32{head}
	code := t.entries[head]
	for t.isPointer(code) {
		last := chain[len(chain)-1]
		if !t.inRange(code) {
			return nil, checkpoint.Newf(ErrCorruptChain, "cluster %d points to %d outside of the table", last, code)
		}
		if len(chain) >= len(t.entries) {
			return nil, checkpoint.Newf(ErrCorruptChain, "chain starting at %d contains a loop", head)
		}
		chain = append(chain, code)
		code = t.entries[code]
	}

	if t.isEOC(code) {
		return chain, nil
	}

	last := chain[len(chain)-1]
	if code == t.codes.bad {
		return nil, checkpoint.Newf(ErrCorruptChain, "chain starting at %d runs into a bad cluster after %d", head, last)
	}
	return nil, checkpoint.Newf(ErrCorruptChain, "chain starting at %d is broken at cluster %d (code %#x)", head, last, code)
}

// Allocate takes n clusters from the free list and links them into a new chain.
// The returned clusters are in chain order, the head first.
func (t *Table) Allocate(n int) ([]uint32, error) {
	if n <= 0 {
		return nil, nil
	}
	if len(t.free) < n {
		return nil, checkpoint.Newf(ErrSpaceExhausted, "need %d clusters but only %d are free", n, len(t.free))
	}

	chain := make([]uint32, n)
	copy(chain, t.free[:n])
	t.free = t.free[n:]

	for i := 0; i < n-1; i++ {
		t.entries[chain[i]] = chain[i+1]
	}
	t.entries[chain[n-1]] = t.codes.eocMax
	return chain, nil
}

// Resize grows or shrinks the chain starting at head to exactly n clusters.
// The head stays the same as long as n > 0. A size of 0 frees the whole chain.
func (t *Table) Resize(head uint32, n int) ([]uint32, error) {
	chain, err := t.Chain(head)
	if err != nil {
		return nil, err
	}

	switch {
	case n == len(chain):
		return chain, nil
	case n > len(chain):
		grown, err := t.Allocate(n - len(chain))
		if err != nil {
			return nil, err
		}
		t.entries[chain[len(chain)-1]] = grown[0]
		return append(chain, grown...), nil
	case n <= 0:
		t.release(chain)
		return nil, nil
	default:
		t.entries[chain[n-1]] = t.codes.eocMax
		t.release(chain[n:])
		return chain[:n:n], nil
	}
}

// Free releases the whole chain starting at head.
// Cluster 0 is what empty files point to, so freeing it does nothing.
func (t *Table) Free(head uint32) error {
	if head == 0 {
		return nil
	}

	chain, err := t.Chain(head)
	if err != nil {
		return err
	}
	t.release(chain)
	return nil
}

func (t *Table) release(clusters []uint32) {
	for _, c := range clusters {
		if t.entries[c] != codeAvailable {
			t.entries[c] = codeAvailable
			t.free = append(t.free, c)
		}
	}
}
