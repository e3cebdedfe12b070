// Synopsys DesignWare Mobile Storage Host Controller (DWC-MSHC) driver
// https://github.com/usbarmory/dwcmshc
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dwcmshc

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/usbarmory/dwcmshc/dma"
)

// TestADMADescriptor verifies ADMA2 descriptor chain construction.
func TestADMADescriptor(t *testing.T) {
	bd := &ADMABufferDescriptor{}
	bd.Init(0x1000, 512)

	buf := bd.Bytes()

	if len(buf) != 8 {
		t.Fatalf("descriptor length %d, expected 8", len(buf))
	}

	if attr := buf[0]; attr != ACT_TRANSFER<<ATTR_ACT|1<<ATTR_END|1<<ATTR_VALID {
		t.Errorf("attribute %#x", attr)
	}

	if length := binary.LittleEndian.Uint16(buf[2:]); length != 512 {
		t.Errorf("length %d", length)
	}

	if addr := binary.LittleEndian.Uint32(buf[4:]); addr != 0x1000 {
		t.Errorf("address %#x", addr)
	}

	// transfers above the descriptor bound must chain
	bd = &ADMABufferDescriptor{}
	bd.Init(0x1000, ADMA_BD_MAX_LENGTH+512)

	buf = bd.Bytes()

	if len(buf) != 16 {
		t.Fatalf("chain length %d, expected 16", len(buf))
	}

	if buf[0]&(1<<ATTR_END) != 0 {
		t.Error("intermediate descriptor carries end attribute")
	}

	if buf[8]&(1<<ATTR_END) == 0 {
		t.Error("final descriptor misses end attribute")
	}

	if addr := binary.LittleEndian.Uint32(buf[12:]); addr != 0x1000+ADMA_BD_MAX_LENGTH {
		t.Errorf("chained address %#x", addr)
	}
}

// TestDMATransfer verifies the ADMA2 data phase end to end against the
// register stub, with the descriptor chain and payload staged in a DMA
// region.
func TestDMATransfer(t *testing.T) {
	mem := make([]byte, 1<<20)
	start := uint(uintptr(unsafe.Pointer(&mem[0])))

	hw, sim, _ := newTestHost()

	hw.Region = dma.NewRegion(start, uint(len(mem)))
	sim.dmaHigh = uintptr(start) &^ 0xffffffff

	if err := hw.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	sim.cmds = nil

	buf := make([]byte, 4*512)

	if err := hw.ReadBlocks(50, 4, buf); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}

	if !bytes.Equal(buf, fill(50, len(buf))) {
		t.Fatal("DMA read payload mismatch")
	}

	// the transfer mode must select DMA, HOST_CTRL1 must select ADMA2
	if sim.xferMode&TRNS_DMA == 0 {
		t.Error("transfer mode misses DMA enable")
	}

	if sim.hostCtrl1&CTRL_DMA_MASK != CTRL_ADMA32 {
		t.Errorf("DMA select %#x, expected ADMA2", sim.hostCtrl1&CTRL_DMA_MASK)
	}

	// write path
	if err := hw.WriteBlocks(60, 2, make([]byte, 2*512)); err != nil {
		t.Fatalf("WriteBlocks: %v", err)
	}
}
