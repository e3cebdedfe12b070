// Synopsys DesignWare Mobile Storage Host Controller (DWC-MSHC) driver
// https://github.com/usbarmory/dwcmshc
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dwcmshc

import (
	"fmt"
	"log"
	"time"
)

const (
	// initial command inhibit wait, doubled on expiry
	CMD_DEFAULT_TIMEOUT = 100 * time.Millisecond
	// command inhibit wait ceiling
	CMD_MAX_TIMEOUT = 500 * time.Millisecond
)

// Command represents an SD/MMC command descriptor.
type Command struct {
	// Opcode is the 6-bit command index
	Opcode uint32
	// Arg is the 32-bit command argument
	Arg uint32
	// Resp is the response type flag mask (RSP_*)
	Resp uint32

	data       bool
	read       bool
	blockSize  uint32
	blockCount uint16
}

// WithData attaches a data phase description to the command.
func (c Command) WithData(blockSize uint32, blockCount uint16, read bool) Command {
	c.data = true
	c.read = read
	c.blockSize = blockSize
	c.blockCount = blockCount

	return c
}

// DataBuffer binds a data phase buffer with its transfer direction.
type DataBuffer struct {
	rx []byte
	tx []byte
}

// ReadBuffer returns a card-to-host bound data buffer.
func ReadBuffer(buf []byte) *DataBuffer {
	return &DataBuffer{rx: buf}
}

// WriteBuffer returns a host-to-card bound data buffer.
func WriteBuffer(buf []byte) *DataBuffer {
	return &DataBuffer{tx: buf}
}

// Response represents raw command response registers.
type Response struct {
	raw [4]uint32
}

// R1 returns the single word response for R1/R1b types.
func (r Response) R1() uint32 { return r.raw[0] }

// R3 returns the single word response for R3 type (OCR).
func (r Response) R3() uint32 { return r.raw[0] }

// R6 returns the single word response for R6 type.
func (r Response) R6() uint32 { return r.raw[0] }

// R7 returns the single word response for R7 type.
func (r Response) R7() uint32 { return r.raw[0] }

// R2 repacks the 136-bit response as delivered by the controller, which
// strips the start and CRC bits, into the CID/CSD register layout. The
// last word is left padded by the stripped 8 bits.
func (r Response) R2() (out [4]uint32) {
	for i := 0; i < 4; i++ {
		out[i] = r.raw[3-i] << 8

		if i != 3 {
			out[i] |= r.raw[3-i-1] >> 24
		}
	}

	return
}

// response reads back the response registers of the last issued command.
func (hw *DWCMSHC) response() (r Response) {
	for i := 0; i < 4; i++ {
		r.raw[i] = hw.io.Read32(RESPONSE + uint32(i*4))
	}

	return
}

func tuning(opcode uint32) bool {
	return opcode == MMC_SEND_TUNING_BLOCK || opcode == MMC_SEND_TUNING_BLOCK_HS200
}

// waitInhibit waits for the command (and, for data commands other than
// STOP_TRANSMISSION, data) inhibit bits to clear, doubling the wait up to
// CMD_MAX_TIMEOUT before carrying on regardless.
func (hw *DWCMSHC) waitInhibit(cmd Command) {
	timeout := CMD_DEFAULT_TIMEOUT

	mask := uint32(PRES_CMD_INHIBIT)

	if cmd.data {
		mask |= PRES_DATA_INHIBIT
	}

	if cmd.Opcode == MMC_STOP_TRANSMISSION {
		mask &^= PRES_DATA_INHIBIT
	}

	elapsed := time.Duration(0)

	for hw.io.Read32(PRESENT_STATE)&mask != 0 {
		if elapsed >= timeout {
			if 2*timeout > CMD_MAX_TIMEOUT {
				log.Printf("dwcmshc: CMD%d inhibit wait expired", cmd.Opcode)
				break
			}

			timeout *= 2
			hw.io.Write16(NORMAL_INT_STAT, 0xffff)
		}

		elapsed += 1 * time.Millisecond
		hw.sleep(1 * time.Millisecond)
	}
}

// send issues a command, waits for its completion and performs its data
// phase, as described in SD Host Controller Simplified Specification
// Version 3.00, 3.7.1 Transaction Control without Data Transfer Using DAT
// Line and 3.7.2 Transaction Control with Data Transfer Using DAT Line.
func (hw *DWCMSHC) send(cmd Command, data *DataBuffer) error {
	hw.waitInhibit(cmd)

	// clear interrupt status
	hw.io.Write16(NORMAL_INT_STAT, 0xffff)
	hw.io.Write16(ERROR_INT_STAT, 0xffff)

	intMask := uint16(INT_RESPONSE)

	if cmd.data && cmd.Resp&RSP_BUSY != 0 {
		intMask |= uint16(INT_DATA_END)
	}

	dmaAddr, bdAddr, err := hw.armDataPhase(cmd, data)

	if err != nil {
		return err
	}

	defer hw.freeDataPhase(dmaAddr, bdAddr)

	command := uint16(cmd.Opcode&0x3f) << 8

	if tuning(cmd.Opcode) {
		intMask &^= uint16(INT_RESPONSE)
		intMask |= uint16(INT_DATA_AVAIL)
		command |= CMD_DATA
	}

	if cmd.Resp&RSP_PRESENT != 0 {
		switch {
		case cmd.Resp&RSP_136 != 0:
			command |= CMD_RESP_LONG
		case cmd.Resp&RSP_BUSY != 0:
			command |= CMD_RESP_SHORT_BUSY
		default:
			command |= CMD_RESP_SHORT
		}
	}

	if cmd.Resp&RSP_CRC != 0 {
		command |= CMD_CRC
	}

	if cmd.Resp&RSP_OPCODE != 0 {
		command |= CMD_INDEX
	}

	if cmd.data {
		command |= CMD_DATA
	}

	// ARGUMENT must be programmed before COMMAND, which fires the
	// transaction and must be the last register write.
	hw.io.Write32(ARGUMENT, cmd.Arg)
	hw.io.Write16(COMMAND, command)

	timeout := CMD_DEFAULT_TIMEOUT

	if cmd.Opcode == MMC_GO_IDLE_STATE || cmd.Opcode == MMC_SEND_OP_COND {
		timeout = CMD_MAX_TIMEOUT
	}

	var status uint16
	elapsed := time.Duration(0)

	for {
		status = hw.io.Read16(NORMAL_INT_STAT)

		if status&INT_ERROR != 0 {
			break
		}

		if status&intMask == intMask {
			break
		}

		if elapsed >= timeout {
			return hw.recover(cmd, fmt.Errorf("CMD%d: %w", cmd.Opcode, ErrTimeout))
		}

		elapsed += 100 * time.Microsecond
		hw.sleep(100 * time.Microsecond)
	}

	if status&(INT_ERROR|intMask) != intMask {
		errStatus := hw.io.Read16(ERROR_INT_STAT)

		err := fmt.Errorf("CMD%d status:%#x error:%#x: %w", cmd.Opcode, status, errStatus, ErrCommand)

		if errStatus&ERR_INT_CMD_TIMEOUT != 0 {
			err = fmt.Errorf("CMD%d status:%#x error:%#x: %w", cmd.Opcode, status, errStatus, ErrTimeout)
		}

		return hw.recover(cmd, err)
	}

	// acknowledge the awaited interrupts
	hw.io.Write16(NORMAL_INT_STAT, intMask)

	if cmd.data {
		if err := hw.dataPhase(cmd, data, dmaAddr); err != nil {
			return err
		}
	}

	hw.io.Write16(NORMAL_INT_STAT, 0xffff)
	hw.io.Write16(ERROR_INT_STAT, 0xffff)

	return nil
}

// recover resets the command line, and the data line when a data phase was
// armed, after a failed command.
func (hw *DWCMSHC) recover(cmd Command, err error) error {
	hw.reset(RESET_CMD)

	if cmd.data {
		hw.reset(RESET_DATA)
	}

	return err
}

// armDataPhase programs the data transfer registers ahead of the COMMAND
// write, validating the buffer direction against the command one.
func (hw *DWCMSHC) armDataPhase(cmd Command, data *DataBuffer) (dmaAddr uint, bdAddr uint, err error) {
	if !cmd.data {
		if cmd.Resp&RSP_BUSY != 0 {
			hw.io.Write8(TIMEOUT_CONTROL, 0xe)
		}

		return
	}

	if cmd.blockSize > MAX_REG_BLOCK_LEN {
		return 0, 0, fmt.Errorf("block size %d: %w", cmd.blockSize, ErrInvalidValue)
	}

	switch {
	case data == nil:
		return 0, 0, fmt.Errorf("missing data buffer: %w", ErrInvalidValue)
	case cmd.read && data.rx == nil, !cmd.read && data.tx == nil:
		return 0, 0, fmt.Errorf("data buffer direction mismatch: %w", ErrInvalidValue)
	}

	hw.io.Write8(TIMEOUT_CONTROL, 0xe)

	mode := uint16(TRNS_BLK_CNT_EN)

	if cmd.blockCount > 1 {
		mode |= TRNS_MULTI
	}

	if cmd.read {
		mode |= TRNS_READ
	}

	if hw.Region != nil {
		if dmaAddr, bdAddr, err = hw.armDMA(cmd, data); err != nil {
			return
		}

		mode |= TRNS_DMA
	}

	hw.io.Write16(BLOCK_SIZE, uint16(cmd.blockSize&0xfff))
	hw.io.Write16(BLOCK_COUNT, cmd.blockCount)
	hw.io.Write16(XFER_MODE, mode)

	return
}

// dataPhase moves the transfer payload once the command phase completed.
func (hw *DWCMSHC) dataPhase(cmd Command, data *DataBuffer, dmaAddr uint) error {
	if hw.Region != nil {
		return hw.waitDMA(data, dmaAddr)
	}

	if cmd.read {
		return hw.readBuffer(data.rx)
	}

	return hw.writeBuffer(data.tx)
}

// waitInterrupt polls the interrupt status until the requested flag, an
// error condition or the bounded timeout occurs. The awaited flag is
// acknowledged.
func (hw *DWCMSHC) waitInterrupt(flag uint32, timeout int) error {
	for i := 0; i < timeout; i++ {
		status := hw.io.Read32(NORMAL_INT_STAT)

		if status&flag != 0 {
			hw.io.Write32(NORMAL_INT_STAT, flag)
			return nil
		}

		if status&INT_ERROR_MASK != 0 {
			hw.io.Write32(NORMAL_INT_STAT, status&INT_ERROR_MASK)
			hw.reset(RESET_DATA)

			return fmt.Errorf("interrupt status %#x: %w", status, ErrData)
		}

		hw.sleep(1 * time.Millisecond)
	}

	return fmt.Errorf("interrupt wait %#x: %w", flag, ErrTimeout)
}

// readBuffer moves data from the controller buffer register, 32-bit little
// endian words at a time.
func (hw *DWCMSHC) readBuffer(buf []byte) error {
	if err := hw.waitInterrupt(INT_DATA_AVAIL, 100); err != nil {
		return err
	}

	for i := 0; i < len(buf); i += 4 {
		val := hw.io.Read32(BUF_DATA)

		buf[i] = byte(val)

		if i+1 < len(buf) {
			buf[i+1] = byte(val >> 8)
		}

		if i+2 < len(buf) {
			buf[i+2] = byte(val >> 16)
		}

		if i+3 < len(buf) {
			buf[i+3] = byte(val >> 24)
		}
	}

	return hw.waitInterrupt(INT_DATA_END, 100)
}

// writeBuffer moves data to the controller buffer register, 32-bit little
// endian words at a time.
func (hw *DWCMSHC) writeBuffer(buf []byte) error {
	if err := hw.waitInterrupt(INT_SPACE_AVAIL, 100); err != nil {
		return err
	}

	for i := 0; i < len(buf); i += 4 {
		val := uint32(buf[i])

		if i+1 < len(buf) {
			val |= uint32(buf[i+1]) << 8
		}

		if i+2 < len(buf) {
			val |= uint32(buf[i+2]) << 16
		}

		if i+3 < len(buf) {
			val |= uint32(buf[i+3]) << 24
		}

		hw.io.Write32(BUF_DATA, val)
	}

	return hw.waitInterrupt(INT_DATA_END, 100)
}
