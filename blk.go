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
)

// cardAddr translates a logical block address to the command argument,
// high capacity cards are block addressed, standard capacity cards are
// byte addressed (p102, 4.3.14 Command Functional Difference in Card
// Capacity Types, SD-PL-7.10).
func (c *Card) cardAddr(lba uint32) uint32 {
	if c.state()&STATE_HIGHCAPACITY != 0 {
		return lba
	}

	return lba * MAX_BLOCK_LEN
}

func (hw *DWCMSHC) checkTransfer(blocks uint16, buf []byte) error {
	if hw.card == nil {
		return ErrNoCard
	}

	if !hw.card.initialized {
		return fmt.Errorf("card not initialized: %w", ErrUnsupported)
	}

	if len(buf) != int(blocks)*MAX_BLOCK_LEN {
		return fmt.Errorf("buffer length %d for %d blocks: %w", len(buf), blocks, ErrIO)
	}

	return nil
}

// stopTransmission closes a multiple block transfer with CMD12.
func (hw *DWCMSHC) stopTransmission() error {
	cmd := Command{Opcode: MMC_STOP_TRANSMISSION, Resp: RSP_R1B}
	return hw.send(cmd, nil)
}

// ReadBlocks reads consecutive 512 bytes blocks starting at lba into
// buf, whose length must match the transfer size.
func (hw *DWCMSHC) ReadBlocks(lba uint32, blocks uint16, buf []byte) error {
	if err := hw.checkTransfer(blocks, buf); err != nil {
		return err
	}

	addr := hw.card.cardAddr(lba)

	if blocks == 1 {
		// CMD17 - READ_SINGLE_BLOCK
		cmd := Command{Opcode: MMC_READ_SINGLE_BLOCK, Arg: addr, Resp: RSP_R1}
		cmd = cmd.WithData(MAX_BLOCK_LEN, 1, true)

		return hw.send(cmd, ReadBuffer(buf))
	}

	// CMD18 - READ_MULTIPLE_BLOCK
	cmd := Command{Opcode: MMC_READ_MULTIPLE_BLOCK, Arg: addr, Resp: RSP_R1}
	cmd = cmd.WithData(MAX_BLOCK_LEN, blocks, true)

	if err := hw.send(cmd, ReadBuffer(buf)); err != nil {
		return err
	}

	// CMD12 - STOP_TRANSMISSION
	return hw.stopTransmission()
}

// WriteBlocks writes consecutive 512 bytes blocks starting at lba from
// buf, whose length must match the transfer size.
func (hw *DWCMSHC) WriteBlocks(lba uint32, blocks uint16, buf []byte) error {
	if err := hw.checkTransfer(blocks, buf); err != nil {
		return err
	}

	if hw.writeProtected() {
		return fmt.Errorf("card is write protected: %w", ErrCommand)
	}

	addr := hw.card.cardAddr(lba)

	if blocks == 1 {
		// CMD24 - WRITE_BLOCK
		cmd := Command{Opcode: MMC_WRITE_BLOCK, Arg: addr, Resp: RSP_R1}
		cmd = cmd.WithData(MAX_BLOCK_LEN, 1, false)

		return hw.send(cmd, WriteBuffer(buf))
	}

	// CMD25 - WRITE_MULTIPLE_BLOCK
	cmd := Command{Opcode: MMC_WRITE_MULTIPLE_BLOCK, Arg: addr, Resp: RSP_R1}
	cmd = cmd.WithData(MAX_BLOCK_LEN, blocks, false)

	if err := hw.send(cmd, WriteBuffer(buf)); err != nil {
		return err
	}

	// CMD12 - STOP_TRANSMISSION
	return hw.stopTransmission()
}

// Status polls the card with CMD13 and returns the raw R1 status word.
func (hw *DWCMSHC) Status() (uint32, error) {
	if hw.card == nil {
		return 0, ErrNoCard
	}

	if !hw.card.initialized {
		return 0, fmt.Errorf("card not initialized: %w", ErrUnsupported)
	}

	cmd := Command{Opcode: MMC_SEND_STATUS, Arg: hw.card.rca << 16, Resp: RSP_R1}

	if err := hw.send(cmd, nil); err != nil {
		return 0, err
	}

	return hw.response().R1(), nil
}

// Capacity returns the card capacity in bytes.
func (hw *DWCMSHC) Capacity() (uint64, error) {
	if hw.card == nil {
		return 0, ErrNoCard
	}

	if !hw.card.initialized {
		return 0, fmt.Errorf("card not initialized: %w", ErrUnsupported)
	}

	return hw.card.capacity, nil
}

// Info returns the detected card information.
func (hw *DWCMSHC) Info() (CardInfo, error) {
	if hw.card == nil {
		return CardInfo{}, ErrNoCard
	}

	if !hw.card.initialized {
		return CardInfo{}, fmt.Errorf("card not initialized: %w", ErrUnsupported)
	}

	return hw.card.info(), nil
}
