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
	"time"
)

// ChipConfig flags
const (
	// ChipNoDLL disables the DWC-MSHC DLL/PHY block (Arasan style hosts)
	ChipNoDLL = 1 << 0
	// ChipDLLCmdOut enables CMDOUT tap programming in HS400 modes
	ChipDLLCmdOut = 1 << 1
	// ChipRXCLKNoInverter programs the RXCLK inverter bypass
	ChipRXCLKNoInverter = 1 << 2
	// ChipTapValueSel selects the locked DLL tap value on all clock taps
	ChipTapValueSel = 1 << 3
)

// ChipConfig holds chip specific DLL/PHY tuning parameters, selected at
// probe by device tree compatible string.
type ChipConfig struct {
	// Compatible is the device tree compatible string
	Compatible string
	// Flags are chip feature flags (Chip*)
	Flags uint32

	// HS200TxTap is the TXCLK tap number for HS200
	HS200TxTap uint32
	// HS400TxTap is the TXCLK tap number for HS400
	HS400TxTap uint32
	// HS400CmdTap is the CMDOUT tap number for HS400
	HS400CmdTap uint32
	// HS400StrbinTap is the STRBIN tap number for HS400
	HS400StrbinTap uint32
	// DDR50Strbin is the STRBIN delay number below DLL operating range
	DDR50Strbin uint32
}

// Supported host controller configurations.
var (
	RK3568 = ChipConfig{
		Compatible:     "snps,dwcmshc-sdhci",
		Flags:          ChipRXCLKNoInverter,
		HS200TxTap:     16,
		HS400TxTap:     8,
		HS400CmdTap:    8,
		HS400StrbinTap: 3,
		DDR50Strbin:    16,
	}

	RK3588 = ChipConfig{
		Compatible:     "rockchip,rk3588-dwcmshc",
		Flags:          ChipDLLCmdOut,
		HS200TxTap:     16,
		HS400TxTap:     9,
		HS400CmdTap:    8,
		HS400StrbinTap: 3,
		DDR50Strbin:    16,
	}

	RK3528 = ChipConfig{
		Compatible:     "rockchip,rk3528-dwcmshc",
		Flags:          ChipDLLCmdOut | ChipTapValueSel,
		HS200TxTap:     12,
		HS400TxTap:     6,
		HS400CmdTap:    6,
		HS400StrbinTap: 3,
		DDR50Strbin:    10,
	}

	Arasan = ChipConfig{
		Compatible: "arasan,sdhci-5.1",
		Flags:      ChipNoDLL,
	}
)

var chips = []*ChipConfig{&RK3568, &RK3588, &RK3528, &Arasan}

// CompatibleChip returns the chip configuration matching a device tree
// compatible string.
func CompatibleChip(compatible string) (*ChipConfig, error) {
	for _, chip := range chips {
		if chip.Compatible == compatible {
			return chip, nil
		}
	}

	return nil, fmt.Errorf("compatible %q: %w", compatible, ErrUnsupported)
}

// clockDivisor computes the CLOCK_CONTROL divisor landing at or below the
// target rate, the boolean selects programmable clock mode.
func clockDivisor(input uint, target uint, version uint16, clkMul uint32) (div uint32, prog bool) {
	if version >= SPEC_300 {
		if clkMul != 0 {
			// Programmable Clock Mode supports divisors 1..1024.
			div = 1024

			for i := uint(1); i <= 1024; i++ {
				if input/i <= target {
					div = uint32(i)
					break
				}
			}

			return div - 1, true
		}

		// Version 3.00 divisors must be a multiple of 2.
		if input <= target {
			return 0, false
		}

		div = 2046

		for i := uint(2); i <= 2046; i += 2 {
			if input/i <= target {
				div = uint32(i)
				break
			}
		}

		return div >> 1, false
	}

	// Version 2.00 divisors must be a power of 2.
	i := uint(1)

	for i < 256 && input/i > target {
		i *= 2
	}

	return uint32(i >> 1), false
}

// programClock computes and applies the divided card clock against the
// platform source clock, returning the applied CLOCK_CONTROL divisor bits.
func (hw *DWCMSHC) programClock(freq uint) (clk uint16, err error) {
	// wait for command and data inhibit to clear
	for timeout := 20; hw.io.Read32(PRESENT_STATE)&(PRES_CMD_INHIBIT|PRES_DATA_INHIBIT) != 0; timeout-- {
		if timeout == 0 {
			return 0, fmt.Errorf("clock change inhibit: %w", ErrTimeout)
		}

		hw.sleep(1 * time.Millisecond)
	}

	hw.io.Write16(CLOCK_CONTROL, 0)

	if freq == 0 {
		return 0, nil
	}

	input := hw.clockBase

	if hw.SetClock != nil {
		if input, err = hw.SetClock(freq); err != nil {
			return 0, err
		}
	}

	var clkMul uint32

	if hw.Version() >= SPEC_300 {
		clkMul = (hw.caps2 & CAP_CLOCK_MUL_MASK) >> CAP_CLOCK_MUL_SHIFT
	}

	div, prog := clockDivisor(input, freq, hw.Version(), clkMul)

	if prog {
		clk = PROG_CLOCK_MODE
	}

	clk |= uint16(div&0xff) << DIVIDER_SHIFT
	clk |= uint16((div&0x300)>>8) << DIVIDER_HI_SHIFT

	hw.io.Write16(CLOCK_CONTROL, clk)

	return clk, hw.enableCardClock(clk)
}

// enableCardClock enables the internal clock, waits for it to stabilize
// and gates it to the card.
func (hw *DWCMSHC) enableCardClock(clk uint16) error {
	clk |= CLOCK_INT_EN
	clk &^= CLOCK_INT_STABLE

	hw.io.Write16(CLOCK_CONTROL, clk)

	for timeout := 20; hw.io.Read16(CLOCK_CONTROL)&CLOCK_INT_STABLE == 0; timeout-- {
		if timeout == 0 {
			return fmt.Errorf("internal clock never stabilized: %w", ErrTimeout)
		}

		hw.sleep(1 * time.Millisecond)
	}

	hw.io.Write16(CLOCK_CONTROL, clk|CLOCK_CARD_EN)

	return nil
}

func dllLocked(status uint32) bool {
	return status&DLL_LOCKED != 0 && status&DLL_LOCK_TIMEOUT == 0
}

// setDLL programs the DWC-MSHC DLL and clock taps for the target rate,
// the DLL operates at and above 100 MHz and is bypassed below, where a
// fixed strobe delay applies instead.
func (hw *DWCMSHC) setDLL(freq uint) error {
	chip := hw.Chip

	if freq < 100000000 {
		hw.io.Write32(DLL_CTRL, 0)

		// disable cmd conflict check
		hw.io.Write32(HOST_CTRL3, hw.io.Read32(HOST_CTRL3)&^1)

		// reset the clock phase
		hw.io.Write32(DLL_CTRL, DLL_BYPASS|DLL_START)
		hw.io.Write32(DLL_RXCLK, DLL_RXCLK_ORI_GATE)
		hw.io.Write32(DLL_TXCLK, 0)
		hw.io.Write32(DLL_CMDOUT, 0)

		// strobe-in delay applies in place of the bypassed DLL
		hw.io.Write32(DLL_STRBIN, DLL_DLYENA|DLL_STRBIN_DELAY_NUM_SEL|
			chip.DDR50Strbin<<DLL_STRBIN_DELAY_NUM_OFFSET)

		return nil
	}

	hw.io.Write32(DLL_CTRL, DLL_CTRL_RESET)
	hw.sleep(1 * time.Millisecond)
	hw.io.Write32(DLL_CTRL, 0)

	// tuning clock stop and transition counters
	hw.io.Write32(AT_CTRL, 0x1<<16|0x2<<17|0x3<<19)

	hw.io.Write32(DLL_CTRL, DLL_START_DEFAULT<<DLL_START_POINT|
		DLL_INC_VALUE<<DLL_INC|DLL_START)

	for timeout := 500; !dllLocked(hw.io.Read32(DLL_STATUS0)); timeout-- {
		if timeout == 0 {
			return fmt.Errorf("DLL lock: %w", ErrTimeout)
		}

		hw.sleep(1 * time.Millisecond)
	}

	lockValue := ((hw.io.Read32(DLL_STATUS0) & 0xff) * 2) & 0xff

	tapSel := uint32(0)

	if chip.Flags&ChipTapValueSel != 0 {
		tapSel = DLL_TAP_VALUE_SEL | lockValue<<DLL_TAP_VALUE_OFFSET
	}

	val := uint32(DLL_DLYENA | DLL_RXCLK_ORI_GATE)

	if chip.Flags&ChipRXCLKNoInverter != 0 {
		val |= DLL_RXCLK_NO_INVERTER
	}

	hw.io.Write32(DLL_RXCLK, val|tapSel)

	txTap := chip.HS200TxTap

	if chip.Flags&ChipDLLCmdOut != 0 &&
		(hw.timing == TIMING_MMC_HS400 || hw.timing == TIMING_MMC_HS400ES) {
		txTap = chip.HS400TxTap

		val = DLL_CMDOUT_SRC_CLK_NEG | DLL_CMDOUT_BOTH_CLK_EDGE |
			DLL_DLYENA | chip.HS400CmdTap | DLL_CMDOUT_TAPNUM_FROM_SW

		hw.io.Write32(DLL_CMDOUT, val|tapSel)
	}

	val = DLL_DLYENA | DLL_TXCLK_TAPNUM_FROM_SW | DLL_TXCLK_NO_INVERTER | txTap
	hw.io.Write32(DLL_TXCLK, val|tapSel)

	val = DLL_DLYENA | DLL_STRBIN_TAPNUM_FROM_SW | chip.HS400StrbinTap
	hw.io.Write32(DLL_STRBIN, val|tapSel)

	return nil
}

// applyClock re-programs the card clock and, on DLL equipped hosts, the
// DLL and clock taps.
func (hw *DWCMSHC) applyClock(freq uint) error {
	clk, err := hw.programClock(freq)

	if err != nil || freq == 0 {
		return err
	}

	if hw.Chip.Flags&ChipNoDLL != 0 {
		return nil
	}

	// gate the output clock while the DLL is configured
	hw.io.Write16(CLOCK_CONTROL, 0)

	if err = hw.setDLL(freq); err != nil {
		return err
	}

	return hw.enableCardClock(clk)
}

// setUHSSignaling maps the current timing mode on the HOST_CTRL2 UHS mode
// field.
func (hw *DWCMSHC) setUHSSignaling() {
	ctrl2 := hw.io.Read16(HOST_CTRL2)
	ctrl2 &^= CTRL2_UHS_MASK

	if hw.timing != TIMING_LEGACY && hw.timing != TIMING_MMC_HS && hw.timing != TIMING_SD_HS {
		ctrl2 |= CTRL2_VDD_180
	}

	switch hw.timing {
	case TIMING_MMC_HS200, TIMING_UHS_SDR104:
		ctrl2 |= CTRL2_UHS_SDR104 | CTRL2_DRV_TYPE_A
	case TIMING_UHS_SDR12:
		ctrl2 |= CTRL2_UHS_SDR12
	case TIMING_UHS_SDR25:
		ctrl2 |= CTRL2_UHS_SDR25
	case TIMING_UHS_SDR50, TIMING_MMC_HS:
		ctrl2 |= CTRL2_UHS_SDR50
	case TIMING_UHS_DDR50, TIMING_MMC_DDR52:
		ctrl2 |= CTRL2_UHS_DDR50
	case TIMING_MMC_HS400, TIMING_MMC_HS400ES:
		ctrl2 |= CTRL2_HS400 | CTRL2_DRV_TYPE_A
	}

	hw.io.Write16(HOST_CTRL2, ctrl2)
}

// setIOS is the single choke point applying the current clock, bus width
// and timing mode to the controller.
func (hw *DWCMSHC) setIOS() error {
	if err := hw.applyClock(hw.clock); err != nil {
		return err
	}

	ctrl := hw.io.Read8(HOST_CTRL1)

	wide8 := hw.Version() >= SPEC_300 || hw.Quirks&QuirkUseWide8 != 0

	if hw.width == 8 {
		ctrl &^= CTRL_4BITBUS

		if wide8 {
			ctrl |= CTRL_8BITBUS
		}
	} else {
		if wide8 {
			ctrl &^= CTRL_8BITBUS
		}

		if hw.width == 4 {
			ctrl |= CTRL_4BITBUS
		} else {
			ctrl &^= CTRL_4BITBUS
		}
	}

	if hw.timing != TIMING_LEGACY && hw.Quirks&QuirkNoHiSpeedBit == 0 {
		ctrl |= CTRL_HISPD
	} else {
		ctrl &^= CTRL_HISPD
	}

	hw.io.Write8(HOST_CTRL1, ctrl)

	if hw.timing != TIMING_LEGACY && hw.timing != TIMING_MMC_HS && hw.timing != TIMING_SD_HS {
		// all UHS and HS200+ modes signal at 1.8V
		hw.setPower(VDD_165_195_SHIFT)
	}

	hw.setUHSSignaling()

	return nil
}
