// First-fit memory allocator for DMA buffers
// https://github.com/usbarmory/dwcmshc
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dma

import (
	"container/list"
	"unsafe"
)

type block struct {
	// pointer address
	addr uint
	// buffer size
	size uint
}

func (b *block) read(off uint, buf []byte) {
	var ptr unsafe.Pointer

	ptr = unsafe.Add(ptr, b.addr+off)
	mem := unsafe.Slice((*byte)(ptr), len(buf))

	copy(buf, mem)
}

func (b *block) write(off uint, buf []byte) {
	var ptr unsafe.Pointer

	ptr = unsafe.Add(ptr, b.addr+off)
	mem := unsafe.Slice((*byte)(ptr), len(buf))

	copy(mem, buf)
}

func (r *Region) defrag() {
	var prevBlock *block

	// find contiguous free blocks and combine them
	for e := r.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		if prevBlock != nil && prevBlock.addr+prevBlock.size == b.addr {
			prevBlock.size += b.size
			defer r.freeBlocks.Remove(e)
			continue
		}

		prevBlock = b
	}
}

func (r *Region) alloc(size uint, align uint) *block {
	var e *list.Element
	var freeBlock *block
	var pad uint

	if align == 0 {
		// force word alignment
		align = 4
	}

	// find suitable block
	for e = r.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		// pad to required alignment
		pad = -b.addr & (align - 1)

		if b.size >= size+pad {
			freeBlock = b
			break
		}
	}

	if freeBlock == nil {
		panic("out of memory")
	}

	size += pad

	// allocate block from free linked list
	defer r.freeBlocks.Remove(e)

	// adjust block to desired size, add new block for remainder
	if rem := freeBlock.size - size; rem != 0 {
		r.freeBlocks.InsertAfter(&block{
			addr: freeBlock.addr + size,
			size: rem,
		}, e)

		freeBlock.size = size
	}

	if pad != 0 {
		// claim padding space
		r.freeBlocks.InsertBefore(&block{
			addr: freeBlock.addr,
			size: pad,
		}, e)

		freeBlock.addr += pad
		freeBlock.size -= pad
	}

	return freeBlock
}

func (r *Region) free(usedBlock *block) {
	for e := r.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		if b.addr > usedBlock.addr {
			r.freeBlocks.InsertBefore(usedBlock, e)
			r.defrag()
			return
		}
	}

	r.freeBlocks.PushBack(usedBlock)
}
