// First-fit memory allocator for DMA buffers
// https://github.com/usbarmory/dwcmshc
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dma provides primitives for direct memory allocation and alignment,
// it is used in bare metal device driver operation to avoid passing Go
// pointers for DMA purposes.
//
// The application must guarantee that the memory range passed to Init is
// never used by the Go runtime (defining runtime.ramStart and runtime.ramSize
// accordingly).
package dma

import (
	"container/list"
	"sync"
)

// Region represents a memory region allocated for DMA purposes.
type Region struct {
	sync.Mutex

	start uint
	size  uint

	freeBlocks *list.List
	usedBlocks map[uint]*block
}

var dma *Region

// Init initializes the global memory region for DMA buffer allocation.
func Init(start uint, size uint) {
	dma = NewRegion(start, size)
}

// Default returns the global DMA region instance, nil when Init has not been
// invoked.
func Default() *Region {
	return dma
}

// NewRegion initializes a memory region for DMA buffer allocation.
func NewRegion(start uint, size uint) *Region {
	r := &Region{
		start: start,
		size:  size,
	}

	r.freeBlocks = list.New()
	r.freeBlocks.PushFront(&block{
		addr: start,
		size: size,
	})

	r.usedBlocks = make(map[uint]*block)

	return r
}

// Start returns the region start address.
func (r *Region) Start() uint {
	return r.start
}

// End returns the region end address.
func (r *Region) End() uint {
	return r.start + r.size
}

// Alloc reserves a memory region for DMA purposes, copying over a buffer and
// returning its allocation address, with optional alignment. The region can
// be freed up with Free().
//
// The optional alignment must be a power of 2, a zero alignment selects
// word alignment (0 == 4).
func (r *Region) Alloc(buf []byte, align int) (addr uint) {
	if len(buf) == 0 {
		return 0
	}

	r.Lock()
	defer r.Unlock()

	b := r.alloc(uint(len(buf)), uint(align))
	b.write(0, buf)

	r.usedBlocks[b.addr] = b

	return b.addr
}

// Read reads exactly len(buf) bytes from a memory region address into a
// buffer, the region must have been previously allocated with Alloc().
//
// The offset and buffer size are used to retrieve a slice of the memory
// region, a panic occurs if these parameters are not compatible with the
// initial allocation for the address.
func (r *Region) Read(addr uint, off int, buf []byte) {
	if addr == 0 || len(buf) == 0 {
		return
	}

	r.Lock()
	defer r.Unlock()

	b, ok := r.usedBlocks[addr]

	if !ok {
		panic("read of unallocated pointer")
	}

	if uint(off+len(buf)) > b.size {
		panic("invalid read parameters")
	}

	b.read(uint(off), buf)
}

// Write writes buffer contents to a memory region address, the region must
// have been previously allocated with Alloc().
func (r *Region) Write(addr uint, off int, buf []byte) {
	if addr == 0 || len(buf) == 0 {
		return
	}

	r.Lock()
	defer r.Unlock()

	b, ok := r.usedBlocks[addr]

	if !ok {
		return
	}

	if uint(off+len(buf)) > b.size {
		panic("invalid write parameters")
	}

	b.write(uint(off), buf)
}

// Free frees the memory region stored at the passed address, the region must
// have been previously allocated with Alloc().
func (r *Region) Free(addr uint) {
	if addr == 0 {
		return
	}

	r.Lock()
	defer r.Unlock()

	b, ok := r.usedBlocks[addr]

	if !ok {
		return
	}

	r.free(b)
	delete(r.usedBlocks, addr)
}
