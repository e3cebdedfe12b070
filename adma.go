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
	"fmt"
)

// ADMA2 descriptor attributes (SD Host Controller Simplified
// Specification Version 3.00, 1.13.3 ADMA2 Descriptor Format).
const (
	ATTR_VALID = 0
	ATTR_END   = 1
	ATTR_INT   = 2
	ATTR_ACT   = 4

	ACT_TRANSFER = 0b10
	ACT_LINK     = 0b11

	ADMA_BD_MAX_LENGTH = 65532
)

// ADMABufferDescriptor implements the ADMA2 descriptor format.
type ADMABufferDescriptor struct {
	Attribute uint8
	res       uint8
	Length    uint16
	Address   uint32

	next *ADMABufferDescriptor
}

// Init initializes an ADMA2 buffer descriptor chain covering size bytes at
// the passed device address.
func (bd *ADMABufferDescriptor) Init(addr uint, size int) {
	b := bd

	for size > 0 {
		if size <= ADMA_BD_MAX_LENGTH {
			b.Attribute = ACT_TRANSFER<<ATTR_ACT | 1<<ATTR_END | 1<<ATTR_VALID
			b.Length = uint16(size)
			b.Address = uint32(addr)
			break
		}

		b.Attribute = ACT_TRANSFER<<ATTR_ACT | 1<<ATTR_VALID
		b.Length = uint16(ADMA_BD_MAX_LENGTH)
		b.Address = uint32(addr)

		addr += ADMA_BD_MAX_LENGTH
		size -= ADMA_BD_MAX_LENGTH

		b.next = &ADMABufferDescriptor{}
		b = b.next
	}
}

// Bytes converts the descriptor chain to byte array format.
func (bd *ADMABufferDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)

	for b := bd; b != nil; b = b.next {
		binary.Write(buf, binary.LittleEndian, b.Attribute)
		binary.Write(buf, binary.LittleEndian, b.res)
		binary.Write(buf, binary.LittleEndian, b.Length)
		binary.Write(buf, binary.LittleEndian, b.Address)
	}

	return buf.Bytes()
}

// armDMA stages the transfer buffer and its ADMA2 descriptor chain in the
// assigned DMA region, both are owned by the issuing call and released on
// its completion.
func (hw *DWCMSHC) armDMA(cmd Command, data *DataBuffer) (dmaAddr uint, bdAddr uint, err error) {
	buf := data.tx

	if cmd.read {
		buf = data.rx
	}

	dmaAddr = hw.Region.Alloc(buf, 32)

	bd := &ADMABufferDescriptor{}
	bd.Init(dmaAddr, len(buf))

	bdAddr = hw.Region.Alloc(bd.Bytes(), 4)

	// select ADMA2
	ctrl := hw.io.Read8(HOST_CTRL1)
	ctrl = ctrl&^uint8(CTRL_DMA_MASK) | CTRL_ADMA32

	hw.io.Write8(HOST_CTRL1, ctrl)
	hw.io.Write32(ADMA_SA, uint32(bdAddr))

	return
}

// waitDMA completes a DMA data phase, reading back card-to-host payloads.
func (hw *DWCMSHC) waitDMA(data *DataBuffer, dmaAddr uint) error {
	if err := hw.waitInterrupt(INT_DATA_END, 100); err != nil {
		return err
	}

	if admaErr := hw.io.Read32(ADMA_ERR_STAT); admaErr != 0 {
		return fmt.Errorf("ADMA error %#x: %w", admaErr, ErrData)
	}

	if data.rx != nil {
		hw.Region.Read(dmaAddr, 0, data.rx)
	}

	return nil
}

// freeDataPhase releases the DMA staging buffers of a completed transfer.
func (hw *DWCMSHC) freeDataPhase(dmaAddr uint, bdAddr uint) {
	if hw.Region == nil {
		return
	}

	hw.Region.Free(dmaAddr)
	hw.Region.Free(bdAddr)
}
