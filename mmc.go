// Synopsys DesignWare Mobile Storage Host Controller (DWC-MSHC) driver
// https://github.com/usbarmory/dwcmshc
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dwcmshc

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// CMD1 operating conditions retries
	MMC_OP_COND_RETRIES = 100
)

// goIdle resets the card with CMD0 (p58, 6.4.4 Device identification
// process, JESD84-B51).
func (hw *DWCMSHC) goIdle() error {
	cmd := Command{Opcode: MMC_GO_IDLE_STATE, Resp: RSP_NONE}

	if err := hw.send(cmd, nil); err != nil {
		return err
	}

	hw.sleep(10 * time.Millisecond)

	return nil
}

// sendOpCond validates the operating conditions with CMD1, first querying
// the advertised OCR, then retrying with the negotiated voltage window and
// access mode until the card leaves busy (p57, 6.4.2 Access mode
// validation, JESD84-B51).
func (hw *DWCMSHC) sendOpCond() error {
	card := hw.card

	cmd := Command{Opcode: MMC_SEND_OP_COND, Resp: RSP_R3}

	if err := hw.send(cmd, nil); err != nil {
		return err
	}

	card.ocr = hw.response().R3()

	arg := OCR_HCS | (hw.voltages & (card.ocr & OCR_VOLTAGE_MASK)) |
		(card.ocr & OCR_ACCESS_MODE)

	for retry := 0; retry < MMC_OP_COND_RETRIES; retry++ {
		cmd = Command{Opcode: MMC_SEND_OP_COND, Arg: arg, Resp: RSP_R3}

		if err := hw.send(cmd, nil); err != nil {
			return err
		}

		card.ocr = hw.response().R3()

		if card.ocr&OCR_BUSY != 0 {
			card.Type = CardMMC
			card.mmc = &MMCExt{}

			if card.ocr&OCR_HCS != 0 {
				card.highCapacity = true
				card.mmc.State |= STATE_HIGHCAPACITY
			}

			return nil
		}

		hw.sleep(1 * time.Millisecond)
	}

	return fmt.Errorf("card never left busy: %w", ErrUnsupported)
}

// readExtCSD reads the 512 bytes EXT_CSD register with CMD8.
func (hw *DWCMSHC) readExtCSD(extCSD []byte) error {
	cmd := Command{Opcode: MMC_SEND_EXT_CSD, Resp: RSP_R1}
	cmd = cmd.WithData(MAX_BLOCK_LEN, 1, true)

	return hw.send(cmd, ReadBuffer(extCSD))
}

// parseExtCSD populates the card capacity, partition and reliability
// attributes from EXT_CSD (p193, 7.4 Extended CSD register, JESD84-B51).
func (hw *DWCMSHC) parseExtCSD(extCSD []byte) error {
	card := hw.card
	ext := card.mmc

	capacityUser := card.capacity

	if extCSD[EXT_CSD_REV] >= 2 {
		capacity := uint64(binary.LittleEndian.Uint32(extCSD[EXT_CSD_SEC_CNT:]))
		capacity *= MAX_BLOCK_LEN

		if capacity>>20 > 2*1024 {
			capacityUser = capacity
		}

		switch extCSD[EXT_CSD_REV] {
		case 1:
			card.version = Version4_1
		case 2:
			card.version = Version4_2
		case 3:
			card.version = Version4_3
		case 5:
			card.version = Version4_41
		case 6:
			card.version = Version4_5
		case 7:
			card.version = Version5_0
		case 8:
			card.version = Version5_1
		}
	}

	partCompleted := extCSD[EXT_CSD_PARTITION_SETTING]&EXT_CSD_PARTITION_SETTING_COMPLETED != 0

	if extCSD[EXT_CSD_PARTITIONING_SUPPORT]&PART_SUPPORT != 0 ||
		extCSD[EXT_CSD_BOOT_MULT] != 0 {
		card.partConfig = extCSD[EXT_CSD_PART_CONF]
	}

	if extCSD[EXT_CSD_SEC_FEATURE_SUPPORT]&EXT_CSD_SEC_GB_CL_EN != 0 {
		ext.CanTrim = true
	}

	ext.BootCapacity = uint64(extCSD[EXT_CSD_BOOT_MULT]) << 17
	ext.RPMBCapacity = uint64(extCSD[EXT_CSD_RPMB_MULT]) << 17

	hasParts := false

	for i := 0; i < 4; i++ {
		idx := EXT_CSD_GP_SIZE_MULT + i*3
		mult := uint64(extCSD[idx+2])<<16 | uint64(extCSD[idx+1])<<8 |
			uint64(extCSD[idx])

		if mult != 0 {
			hasParts = true
		}

		if !partCompleted {
			continue
		}

		ext.GPCapacity[i] = mult
		ext.GPCapacity[i] *= uint64(extCSD[EXT_CSD_HC_ERASE_GRP_SIZE])
		ext.GPCapacity[i] *= uint64(extCSD[EXT_CSD_HC_WP_GRP_SIZE])
		ext.GPCapacity[i] <<= 19
	}

	if partCompleted {
		hasParts = true

		size := uint64(extCSD[EXT_CSD_ENH_SIZE_MULT+2])<<16 |
			uint64(extCSD[EXT_CSD_ENH_SIZE_MULT+1])<<8 |
			uint64(extCSD[EXT_CSD_ENH_SIZE_MULT])
		size *= uint64(extCSD[EXT_CSD_HC_ERASE_GRP_SIZE])
		size *= uint64(extCSD[EXT_CSD_HC_WP_GRP_SIZE])
		size <<= 19

		start := uint64(binary.LittleEndian.Uint32(extCSD[EXT_CSD_ENH_START_ADDR:]))

		if card.highCapacity {
			start <<= 9
		}

		ext.EnhUserSize = size
		ext.EnhUserStart = start
	}

	if extCSD[EXT_CSD_PARTITIONING_SUPPORT]&PART_SUPPORT != 0 &&
		extCSD[EXT_CSD_PARTITIONS_ATTRIBUTE]&PART_ENH_ATTRIB != 0 {
		hasParts = true
	}

	if hasParts {
		if err := hw.mmcSwitch(EXT_CSD_ERASE_GROUP_DEF, 1, true); err != nil {
			return fmt.Errorf("erase group def: %w", ErrCommand)
		}

		extCSD[EXT_CSD_ERASE_GROUP_DEF] = 1
	}

	if extCSD[EXT_CSD_ERASE_GROUP_DEF]&0x01 != 0 {
		card.eraseGrpSize = uint32(extCSD[EXT_CSD_HC_ERASE_GRP_SIZE]) * 1024

		if card.highCapacity && partCompleted {
			capacity := uint64(binary.LittleEndian.Uint32(extCSD[EXT_CSD_SEC_CNT:]))
			capacityUser = capacity * MAX_BLOCK_LEN
		}
	} else {
		// fall back to the legacy CSD erase group geometry
		eraseGsz := (card.csd[2] & 0x00007c00) >> 10
		eraseGmul := (card.csd[2] & 0x000003e0) >> 5

		card.eraseGrpSize = (eraseGsz + 1) * (eraseGmul + 1)
	}

	ext.HCWPGrpSize = 1024 *
		uint64(extCSD[EXT_CSD_HC_ERASE_GRP_SIZE]) *
		uint64(extCSD[EXT_CSD_HC_WP_GRP_SIZE])

	ext.PartSupport = extCSD[EXT_CSD_PARTITIONING_SUPPORT]
	ext.WrRelSet = extCSD[EXT_CSD_WR_REL_SET]
	ext.DriverStrength = extCSD[EXT_CSD_DRIVER_STRENGTH]
	ext.UserCapacity = capacityUser

	if partCompleted && extCSD[EXT_CSD_PARTITIONING_SUPPORT]&ENHNCD_SUPPORT != 0 {
		ext.PartAttr = extCSD[EXT_CSD_PARTITIONS_ATTRIBUTE]
	}

	return nil
}

// setCapacity applies the user area capacity to the card, partition
// switching is not supported and only the user area (partition 0) can be
// selected.
func (hw *DWCMSHC) setCapacity(part int) error {
	card := hw.card

	if part != 0 {
		return fmt.Errorf("partition %d: %w", part, ErrInvalidValue)
	}

	if ext, ok := card.MMC(); ok {
		card.capacity = ext.UserCapacity
	}

	return nil
}

// initCard performs the cold boot identification sequence
// (p58, 6.4.4 Device identification process, JESD84-B51).
func (hw *DWCMSHC) initCard() error {
	card := hw.card

	// CMD0 - GO_IDLE_STATE - reset card
	if err := hw.goIdle(); err != nil {
		return err
	}

	// CMD1 - SEND_OP_COND - negotiate operating conditions
	if err := hw.sendOpCond(); err != nil {
		return err
	}

	// the host assigns the relative card address on eMMC
	card.rca = 1

	// CMD2 - ALL_SEND_CID - get unique card identification
	cmd := Command{Opcode: MMC_ALL_SEND_CID, Resp: RSP_R2}

	if err := hw.send(cmd, nil); err != nil {
		return err
	}

	card.cid = hw.response().R2()

	// CMD3 - SET_RELATIVE_ADDR - set relative card address
	cmd = Command{Opcode: MMC_SET_RELATIVE_ADDR, Arg: card.rca << 16, Resp: RSP_R1}

	if err := hw.send(cmd, nil); err != nil {
		return err
	}

	// CMD9 - SEND_CSD - read device specific data
	cmd = Command{Opcode: MMC_SEND_CSD, Arg: card.rca << 16, Resp: RSP_R2}

	if err := hw.send(cmd, nil); err != nil {
		return err
	}

	card.csd = hw.response().R2()

	if err := card.decodeCSD(); err != nil {
		return err
	}

	card.dsr = hw.DSR

	// CMD4 - SET_DSR - optional driver stage register
	if card.dsrImp && card.dsr != 0 && card.dsr != 0xffffffff {
		cmd = Command{Opcode: MMC_SET_DSR, Arg: (card.dsr & 0xffff) << 16, Resp: RSP_NONE}

		if err := hw.send(cmd, nil); err != nil {
			return err
		}
	}

	// CMD7 - SELECT_CARD - enter transfer state
	cmd = Command{Opcode: MMC_SELECT_CARD, Arg: card.rca << 16, Resp: RSP_R1}

	if err := hw.send(cmd, nil); err != nil {
		return err
	}

	if card.Type == CardMMC && card.version >= Version4 {
		// EXT_CSD transfers require High Speed mode first
		if err := hw.selectHS(); err != nil {
			return err
		}

		if err := hw.setClock(CLOCK_52MHZ); err != nil {
			return err
		}

		extCSD := make([]byte, MAX_BLOCK_LEN)

		// CMD8 - SEND_EXT_CSD - read extended device data
		if err := hw.readExtCSD(extCSD); err != nil {
			return err
		}

		if err := hw.parseExtCSD(extCSD); err != nil {
			return err
		}
	}

	if err := hw.setCapacity(0); err != nil {
		return err
	}

	if err := hw.changeFreq(hw.hostCaps); err != nil {
		return err
	}

	card.initialized = true

	return nil
}
