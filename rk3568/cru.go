// Rockchip RK3568 clock and reset unit (CRU) driver
// https://github.com/usbarmory/dwcmshc
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package rk3568

import (
	"fmt"

	"github.com/usbarmory/dwcmshc/internal/reg"
)

// CRU registers (RK3568 TRM, 3.6 CRU Register Description).
const (
	CRU_CLKSEL_CON28 = 0x0170

	CCLK_EMMC_SEL      = 12
	CCLK_EMMC_SEL_MASK = 0b111

	BCLK_EMMC_SEL      = 8
	BCLK_EMMC_SEL_MASK = 0b11
)

// CCLK_EMMC source selectors.
const (
	CCLK_EMMC_SEL_24M = iota
	CCLK_EMMC_SEL_200M
	CCLK_EMMC_SEL_150M
	CCLK_EMMC_SEL_100M
	CCLK_EMMC_SEL_50M
	CCLK_EMMC_SEL_375K
)

// BCLK_EMMC source selectors.
const (
	BCLK_EMMC_SEL_200M = iota
	BCLK_EMMC_SEL_150M
	BCLK_EMMC_SEL_125M
)

const (
	KHZ = 1000
	MHZ = 1000000

	// 24 MHz fixed oscillator
	OSC_HZ = 24 * MHZ
)

// ClockController represents the clock and reset unit instance.
type ClockController struct {
	// Base register address
	Base uintptr
}

// clrSetReg writes a CRU register through its write enable mask, the upper
// halfword selects the bits affected by the lower one.
func (hw *ClockController) clrSetReg(off uint32, clr uint32, set uint32) {
	reg.Write(hw.Base+uintptr(off), (clr|set)<<16|set)
}

// EMMCClock returns the currently selected eMMC source clock rate.
func (hw *ClockController) EMMCClock() (uint, error) {
	sel := reg.Get(hw.Base+CRU_CLKSEL_CON28, CCLK_EMMC_SEL, CCLK_EMMC_SEL_MASK)

	switch sel {
	case CCLK_EMMC_SEL_24M:
		return OSC_HZ, nil
	case CCLK_EMMC_SEL_200M:
		return 200 * MHZ, nil
	case CCLK_EMMC_SEL_150M:
		return 150 * MHZ, nil
	case CCLK_EMMC_SEL_100M:
		return 100 * MHZ, nil
	case CCLK_EMMC_SEL_50M:
		return 50 * MHZ, nil
	case CCLK_EMMC_SEL_375K:
		return 375 * KHZ, nil
	}

	return 0, fmt.Errorf("invalid eMMC clock selector %d", sel)
}

// SetEMMCClock programs the eMMC source clock selector for the closest
// supported source at or above the requested rate, returning the actual
// one. The host divider is expected to bring the card clock at or below
// the request. Rates outside the selector range return an error.
func (hw *ClockController) SetEMMCClock(hz uint) (uint, error) {
	var sel uint32

	switch {
	case hz == OSC_HZ:
		sel = CCLK_EMMC_SEL_24M
	case hz == 52*MHZ || hz == 50*MHZ:
		// 52 MHz requests tolerate the 50 MHz source
		sel = CCLK_EMMC_SEL_50M
	case hz == 400*KHZ || hz == 375*KHZ:
		sel = CCLK_EMMC_SEL_375K
	case hz < 375*KHZ || hz > 200*MHZ:
		return 0, fmt.Errorf("unsupported eMMC clock rate %d", hz)
	case hz <= OSC_HZ:
		sel = CCLK_EMMC_SEL_24M
	case hz <= 50*MHZ:
		sel = CCLK_EMMC_SEL_50M
	case hz <= 100*MHZ:
		sel = CCLK_EMMC_SEL_100M
	case hz <= 150*MHZ:
		sel = CCLK_EMMC_SEL_150M
	default:
		sel = CCLK_EMMC_SEL_200M
	}

	hw.clrSetReg(CRU_CLKSEL_CON28,
		CCLK_EMMC_SEL_MASK<<CCLK_EMMC_SEL,
		sel<<CCLK_EMMC_SEL)

	return hw.EMMCClock()
}

// EMMCBusClock returns the currently selected eMMC AXI bus clock rate.
func (hw *ClockController) EMMCBusClock() (uint, error) {
	sel := reg.Get(hw.Base+CRU_CLKSEL_CON28, BCLK_EMMC_SEL, BCLK_EMMC_SEL_MASK)

	switch sel {
	case BCLK_EMMC_SEL_200M:
		return 200 * MHZ, nil
	case BCLK_EMMC_SEL_150M:
		return 150 * MHZ, nil
	case BCLK_EMMC_SEL_125M:
		return 125 * MHZ, nil
	}

	return 0, fmt.Errorf("invalid eMMC bus clock selector %d", sel)
}

// SetEMMCBusClock programs the eMMC AXI bus clock selector for the passed
// rate, returning the actual one.
func (hw *ClockController) SetEMMCBusClock(hz uint) (uint, error) {
	var sel uint32

	switch hz {
	case 200 * MHZ:
		sel = BCLK_EMMC_SEL_200M
	case 150 * MHZ:
		sel = BCLK_EMMC_SEL_150M
	case 125 * MHZ:
		sel = BCLK_EMMC_SEL_125M
	default:
		return 0, fmt.Errorf("unsupported eMMC bus clock rate %d", hz)
	}

	hw.clrSetReg(CRU_CLKSEL_CON28,
		BCLK_EMMC_SEL_MASK<<BCLK_EMMC_SEL,
		sel<<BCLK_EMMC_SEL)

	return hw.EMMCBusClock()
}
