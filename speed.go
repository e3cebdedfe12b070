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
	"fmt"
	"time"
)

const (
	// CMD6 transport retries
	SWITCH_RETRIES = 3
	// CMD6 busy poll bound
	SWITCH_BUSY_TIMEOUT = 1000
	// standard tuning loop bound
	// (p47, 4.2.4.5 Tuning Command, SD-PL-7.10)
	TUNING_MAX_LOOP = 40
)

// mmcSwitch writes an EXT_CSD byte with CMD6 and waits for the card to
// leave busy, either polling CMD13 status or the DAT0 line
// (p62, 6.6.1 Command sets and extended settings, JESD84-B51).
func (hw *DWCMSHC) mmcSwitch(index int, value uint8, sendStatus bool) error {
	cmd := Command{
		Opcode: MMC_SWITCH,
		Arg: SWITCH_MODE_WRITE_BYTE<<24 | uint32(index)<<16 |
			uint32(value)<<8,
		Resp: RSP_R1B,
	}

	for retries := SWITCH_RETRIES; retries > 0; retries-- {
		if err := hw.send(cmd, nil); err != nil {
			continue
		}

		return hw.pollForBusy(sendStatus)
	}

	return fmt.Errorf("CMD6 index %d: %w", index, ErrTimeout)
}

// pollForBusy waits for the card to exit the programming state, checking
// for switch errors when polling through CMD13.
func (hw *DWCMSHC) pollForBusy(sendStatus bool) error {
	for timeout := SWITCH_BUSY_TIMEOUT; timeout > 0; timeout-- {
		var busy bool

		if sendStatus {
			cmd := Command{Opcode: MMC_SEND_STATUS, Arg: hw.card.rca << 16, Resp: RSP_R1}

			if err := hw.send(cmd, nil); err != nil {
				return err
			}

			r1 := hw.response().R1()

			if r1&STATUS_SWITCH_ERROR != 0 {
				return fmt.Errorf("switch error: %w", ErrCommand)
			}

			busy = (r1&STATUS_CURR_STATE)>>STATUS_STATE_SHIFT == STATE_PRG
		} else {
			busy = hw.cardBusy()
		}

		if !busy {
			return nil
		}

		hw.sleep(1 * time.Millisecond)
	}

	return fmt.Errorf("card stuck in programming state: %w", ErrTimeout)
}

// selectCardType intersects the EXT_CSD advertised device type with the
// host capabilities (p224, 7.4.66 DEVICE_TYPE, JESD84-B51). HS400 modes
// additionally require an 8-bit host, HS400ES requires strobe support.
func (hw *DWCMSHC) selectCardType(extCSD []byte, hostCaps uint32) (avail uint32) {
	cardType := uint32(extCSD[EXT_CSD_CARD_TYPE])

	if hostCaps&ModeHS != 0 && cardType&CARD_TYPE_26 != 0 {
		avail |= CARD_TYPE_26
	}

	if hostCaps&ModeHS != 0 && cardType&CARD_TYPE_52 != 0 {
		avail |= CARD_TYPE_52
	}

	if hostCaps&ModeDDR52 != 0 && cardType&CARD_TYPE_DDR_1_8V != 0 {
		avail |= CARD_TYPE_DDR_1_8V
	}

	if hostCaps&ModeHS200 != 0 && cardType&CARD_TYPE_HS200_1_8V != 0 {
		avail |= CARD_TYPE_HS200_1_8V
	}

	if hostCaps&ModeHS400 != 0 && hostCaps&Mode8Bit != 0 &&
		cardType&CARD_TYPE_HS400_1_8V != 0 {
		avail |= CARD_TYPE_HS200_1_8V | CARD_TYPE_HS400_1_8V
	}

	if hostCaps&ModeHS400ES != 0 && hostCaps&Mode8Bit != 0 &&
		extCSD[EXT_CSD_STROBE_SUPPORT] != 0 &&
		avail&CARD_TYPE_HS400_1_8V != 0 {
		avail |= CARD_TYPE_HS200_1_8V | CARD_TYPE_HS400_1_8V |
			CARD_TYPE_HS400ES
	}

	return
}

// selectHS switches the card to High Speed timing.
func (hw *DWCMSHC) selectHS() error {
	if err := hw.mmcSwitch(EXT_CSD_HS_TIMING, EXT_CSD_TIMING_HS, true); err != nil {
		return err
	}

	return hw.setTiming(TIMING_MMC_HS)
}

// selectHS200 widens the bus and switches the card to HS200 timing.
func (hw *DWCMSHC) selectHS200(hostCaps uint32) error {
	width, err := hw.selectBusWidth(hostCaps)

	if err != nil {
		return err
	}

	if width > 0 {
		if err = hw.mmcSwitch(EXT_CSD_HS_TIMING, EXT_CSD_TIMING_HS200, false); err != nil {
			return err
		}

		return hw.setTiming(TIMING_MMC_HS200)
	}

	return nil
}

// setBusSpeed programs the card clock matching the current timing mode.
func (hw *DWCMSHC) setBusSpeed(avail uint32) error {
	var clock uint

	switch hw.timing {
	case TIMING_MMC_HS, TIMING_SD_HS:
		if avail&CARD_TYPE_52 != 0 {
			clock = CLOCK_52MHZ
		} else {
			clock = CLOCK_26MHZ
		}
	case TIMING_MMC_HS200:
		clock = CLOCK_200MHZ
	}

	return hw.setClock(clock)
}

// fingerprint extracts the EXT_CSD fields expected to be invariant across
// a bus width switch.
func fingerprint(extCSD []byte) []byte {
	return []byte{
		extCSD[EXT_CSD_PARTITIONING_SUPPORT],
		extCSD[EXT_CSD_HC_WP_GRP_SIZE],
		extCSD[EXT_CSD_REV],
		extCSD[EXT_CSD_HC_ERASE_GRP_SIZE],
		extCSD[EXT_CSD_SEC_CNT],
		extCSD[EXT_CSD_SEC_CNT+1],
		extCSD[EXT_CSD_SEC_CNT+2],
		extCSD[EXT_CSD_SEC_CNT+3],
	}
}

// selectBusWidth walks the 8-bit then 4-bit bus configurations, declaring
// success only when a stable EXT_CSD fingerprint survives the switch. The
// selected width is returned, 0 when the card or host support neither.
func (hw *DWCMSHC) selectBusWidth(hostCaps uint32) (int, error) {
	extCSDBits := []uint8{EXT_CSD_BUS_WIDTH_8, EXT_CSD_BUS_WIDTH_4}
	busWidths := []int{8, 4}

	if hw.card.version < Version4 || hostCaps&(Mode4Bit|Mode8Bit) == 0 {
		return 0, nil
	}

	extCSD := make([]byte, MAX_BLOCK_LEN)
	testCSD := make([]byte, MAX_BLOCK_LEN)

	if err := hw.readExtCSD(extCSD); err != nil {
		return 0, err
	}

	idx := 0

	if hostCaps&Mode8Bit == 0 {
		idx = 1
	}

	for ; idx < len(busWidths); idx++ {
		if err := hw.mmcSwitch(EXT_CSD_BUS_WIDTH, extCSDBits[idx], true); err != nil {
			continue
		}

		if err := hw.setBusWidth(busWidths[idx]); err != nil {
			return 0, err
		}

		if err := hw.readExtCSD(testCSD); err != nil {
			continue
		}

		if bytes.Equal(fingerprint(extCSD), fingerprint(testCSD)) {
			return busWidths[idx], nil
		}
	}

	return 0, fmt.Errorf("no stable bus width: %w", ErrCommand)
}

// changeFreq negotiates the fastest operating mode supported by both card
// and host, then widens the bus and, in HS200 mode, performs tuning.
func (hw *DWCMSHC) changeFreq(hostCaps uint32) error {
	card := hw.card

	card.caps = 0

	// only version 4.0 and above advertise high speed modes
	if card.version < Version4 {
		return nil
	}

	card.caps = Mode4Bit | Mode8Bit

	extCSD := make([]byte, MAX_BLOCK_LEN)

	if err := hw.readExtCSD(extCSD); err != nil {
		return err
	}

	avail := hw.selectCardType(extCSD, hostCaps)

	switch {
	case avail&CARD_TYPE_HS200 != 0:
		if err := hw.selectHS200(hostCaps); err != nil {
			return err
		}
	case avail&CARD_TYPE_HS != 0:
		if err := hw.selectHS(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("no common bus mode: %w", ErrInvalidValue)
	}

	if err := hw.setBusSpeed(avail); err != nil {
		return err
	}

	if hw.timing == TIMING_MMC_HS200 {
		if err := hw.hs200Tuning(); err != nil {
			return err
		}

		// the HS400 upgrade path is deferred, HS200 operation is
		// retained even when the card advertises HS400
		return nil
	}

	if hw.timing == TIMING_MMC_HS400ES {
		return nil
	}

	width, err := hw.selectBusWidth(hostCaps)

	if err != nil {
		return err
	}

	if width <= 0 {
		return fmt.Errorf("bus width selection: %w", ErrCommand)
	}

	// the DDR52 upgrade path is deferred, single data rate operation is
	// retained even when the card advertises DDR support

	return nil
}

// sendTuning issues a single tuning block read (p138, 6.6.5.1 Sampling
// Tuning Sequence for HS200, JESD84-B51). The block is 128 bytes on an
// 8-bit bus, 64 bytes otherwise.
func (hw *DWCMSHC) sendTuning(opcode uint32) error {
	blockSize := uint16(64)

	if opcode == MMC_SEND_TUNING_BLOCK_HS200 && hw.width == 8 {
		blockSize = 128
	}

	// DMA boundary 7 with the tuning block size
	hw.io.Write16(BLOCK_SIZE, 7<<12|blockSize&0xfff)
	hw.io.Write16(XFER_MODE, TRNS_READ)

	cmd := Command{Opcode: opcode, Resp: RSP_R1}

	return hw.send(cmd, nil)
}

// hs200Tuning executes the standard tuning procedure, valid only in HS200
// timing: tuning for HS400 must be performed before the HS400 switch.
func (hw *DWCMSHC) hs200Tuning() error {
	switch hw.timing {
	case TIMING_MMC_HS200:
		// proceed
	default:
		return fmt.Errorf("tuning in timing mode %d: %w", hw.timing, ErrInvalidValue)
	}

	hw.io.Write16(HOST_CTRL2, hw.io.Read16(HOST_CTRL2)|CTRL2_EXEC_TUNING)

	for i := 0; i < TUNING_MAX_LOOP; i++ {
		if err := hw.sendTuning(MMC_SEND_TUNING_BLOCK_HS200); err != nil {
			return err
		}

		ctrl2 := hw.io.Read16(HOST_CTRL2)

		if ctrl2&CTRL2_EXEC_TUNING == 0 {
			if ctrl2&CTRL2_TUNED_CLK != 0 {
				return nil
			}

			return fmt.Errorf("tuning completed without tuned clock: %w", ErrCommand)
		}
	}

	return fmt.Errorf("tuning: %w", ErrTimeout)
}
