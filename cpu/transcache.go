package cpu

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/palmsim/insts"
)

// Translation cache geometry. Lines are tracked at 64-byte granularity so an
// InvalidateCacheRange call discards only the lines it touches.
const (
	transLineSize = 64
	transNumSets  = 256
	transAssoc    = 4
)

// maxBlockInsts caps how many instructions one translated block may cover.
const maxBlockInsts = 128

// TransBlock is one translated basic block: the decoded instructions from
// Addr up to and including the first block-ending instruction.
type TransBlock struct {
	Addr  uint32
	Size  uint32 // bytes of guest code covered
	Insts []*insts.Instruction
}

// TransCache caches translated blocks for one guest address space. Tag
// state and LRU eviction ride on an akita cache directory; the blocks
// themselves live in a per-line store indexed by (setID, wayID). A line may
// hold several blocks starting at different addresses within it.
type TransCache struct {
	directory *akitacache.DirectoryImpl
	lineStore []map[uint32]*TransBlock

	hits, misses uint64
}

// NewTransCache creates an empty translation cache.
func NewTransCache() *TransCache {
	lineStore := make([]map[uint32]*TransBlock, transNumSets*transAssoc)
	return &TransCache{
		directory: akitacache.NewDirectory(
			transNumSets,
			transAssoc,
			transLineSize,
			akitacache.NewLRUVictimFinder(),
		),
		lineStore: lineStore,
	}
}

func lineAddr(addr uint32) uint64 {
	return uint64(addr) &^ (transLineSize - 1)
}

func (tc *TransCache) lineIndex(block *akitacache.Block) int {
	return block.SetID*transAssoc + block.WayID
}

// Lookup returns the translated block starting at pc, or nil on a miss.
func (tc *TransCache) Lookup(pc uint32) *TransBlock {
	line := tc.directory.Lookup(0, lineAddr(pc))
	if line == nil || !line.IsValid {
		tc.misses++
		return nil
	}
	tb := tc.lineStore[tc.lineIndex(line)][pc]
	if tb == nil {
		tc.misses++
		return nil
	}
	tc.directory.Visit(line)
	tc.hits++
	return tb
}

// Insert stores a freshly translated block, evicting the LRU line of its set
// when the set is full.
func (tc *TransCache) Insert(tb *TransBlock) {
	la := lineAddr(tb.Addr)
	line := tc.directory.Lookup(0, la)
	if line == nil || !line.IsValid {
		line = tc.directory.FindVictim(la)
		tc.lineStore[tc.lineIndex(line)] = map[uint32]*TransBlock{}
		line.Tag = la
		line.IsValid = true
	}
	tc.lineStore[tc.lineIndex(line)][tb.Addr] = tb
	tc.directory.Visit(line)
}

// InvalidateRange discards every cached block whose covered guest code
// overlaps [start, start+length).
func (tc *TransCache) InvalidateRange(start, length uint32) {
	end := uint64(start) + uint64(length)
	for _, set := range tc.directory.GetSets() {
		for _, line := range set.Blocks {
			if !line.IsValid {
				continue
			}
			store := tc.lineStore[tc.lineIndex(line)]
			for addr, tb := range store {
				if uint64(tb.Addr) < end && uint64(tb.Addr)+uint64(tb.Size) > uint64(start) {
					delete(store, addr)
				}
			}
			if len(store) == 0 {
				line.IsValid = false
			}
		}
	}
}

// Clear discards every cached block.
func (tc *TransCache) Clear() {
	tc.directory.Reset()
	for i := range tc.lineStore {
		tc.lineStore[i] = nil
	}
}

// Stats returns lookup hit and miss counts.
func (tc *TransCache) Stats() (hits, misses uint64) {
	return tc.hits, tc.misses
}
