// Synopsys DesignWare Mobile Storage Host Controller (DWC-MSHC) driver
// https://github.com/usbarmory/dwcmshc
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dwcmshc

import (
	"math/rand"
	"testing"
)

// TestClockDivisor verifies divider selection laws across controller
// versions.
func TestClockDivisor(t *testing.T) {
	// v3.00, no multiplier: even divisors
	rng := rand.New(rand.NewSource(0x2c))

	for i := 0; i < 1000; i++ {
		input := uint(rng.Intn(400000000) + 400000)
		target := uint(rng.Intn(200000000) + 375000)

		div, prog := clockDivisor(input, target, SPEC_300, 0)

		if prog {
			t.Fatal("programmable mode without multiplier")
		}

		// the registered value is half the divisor
		d := uint(div) * 2

		if d == 0 {
			if input > target {
				t.Fatalf("input %d target %d: no division", input, target)
			}

			continue
		}

		if input/d > target {
			t.Fatalf("input %d target %d divisor %d overshoots", input, target, d)
		}
	}

	// v3.00 with multiplier: programmable mode, divisor n+1
	div, prog := clockDivisor(100000000, 25000000, SPEC_300, 2)

	if !prog {
		t.Fatal("expected programmable clock mode")
	}

	if div != 3 {
		t.Errorf("programmable divisor %d, expected 3", div)
	}

	// v2.00: power of two, capped at 128
	div, prog = clockDivisor(100000000, 400000, SPEC_200, 0)

	if prog {
		t.Fatal("programmable mode on v2.00")
	}

	if div != 128 {
		t.Errorf("v2.00 divisor %d, expected 128", div)
	}

	if div, _ = clockDivisor(50000000, 25000000, SPEC_200, 0); div != 1 {
		t.Errorf("v2.00 divisor %d, expected 1", div)
	}

	if div, _ = clockDivisor(25000000, 25000000, SPEC_200, 0); div != 0 {
		t.Errorf("v2.00 divisor %d, expected 0", div)
	}
}

// TestBusWidthBitsExclusive verifies that HOST_CTRL1 never carries both
// the 4-bit and 8-bit bus bits.
func TestBusWidthBitsExclusive(t *testing.T) {
	hw, sim, _ := newTestHost()

	if err := hw.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	for _, width := range []int{1, 4, 8, 4, 1, 8, 1} {
		if err := hw.setBusWidth(width); err != nil {
			t.Fatalf("setBusWidth(%d): %v", width, err)
		}

		ctrl := sim.hostCtrl1

		if ctrl&CTRL_4BITBUS != 0 && ctrl&CTRL_8BITBUS != 0 {
			t.Fatalf("width %d: both bus width bits set (%#x)", width, ctrl)
		}

		switch width {
		case 4:
			if ctrl&CTRL_4BITBUS == 0 {
				t.Errorf("width 4: 4-bit bus bit clear")
			}
		case 8:
			if ctrl&CTRL_8BITBUS == 0 {
				t.Errorf("width 8: 8-bit bus bit clear")
			}
		default:
			if ctrl&(CTRL_4BITBUS|CTRL_8BITBUS) != 0 {
				t.Errorf("width 1: bus width bits set (%#x)", ctrl)
			}
		}
	}
}

// TestUHSSignaling verifies the timing mode to HOST_CTRL2 UHS field
// mapping.
func TestUHSSignaling(t *testing.T) {
	hw, sim, _ := newTestHost()

	if err := hw.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	for _, tt := range []struct {
		timing   int
		expected uint16
	}{
		{TIMING_LEGACY, 0},
		{TIMING_MMC_HS, CTRL2_UHS_SDR50},
		{TIMING_SD_HS, 0},
		{TIMING_UHS_SDR12, CTRL2_UHS_SDR12 | CTRL2_VDD_180},
		{TIMING_UHS_SDR25, CTRL2_UHS_SDR25 | CTRL2_VDD_180},
		{TIMING_UHS_SDR50, CTRL2_UHS_SDR50 | CTRL2_VDD_180},
		{TIMING_UHS_SDR104, CTRL2_UHS_SDR104 | CTRL2_DRV_TYPE_A | CTRL2_VDD_180},
		{TIMING_UHS_DDR50, CTRL2_UHS_DDR50 | CTRL2_VDD_180},
		{TIMING_MMC_DDR52, CTRL2_UHS_DDR50 | CTRL2_VDD_180},
		{TIMING_MMC_HS200, CTRL2_UHS_SDR104 | CTRL2_DRV_TYPE_A | CTRL2_VDD_180},
		{TIMING_MMC_HS400, CTRL2_HS400 | CTRL2_DRV_TYPE_A | CTRL2_VDD_180},
		{TIMING_MMC_HS400ES, CTRL2_HS400 | CTRL2_DRV_TYPE_A | CTRL2_VDD_180},
	} {
		hw.timing = tt.timing
		sim.hostCtrl2 = 0

		hw.setUHSSignaling()

		mask := uint16(CTRL2_UHS_MASK | CTRL2_VDD_180 | CTRL2_DRV_TYPE_A)

		if got := sim.hostCtrl2 & mask; got != tt.expected {
			t.Errorf("timing %d: HOST_CTRL2 %#x, expected %#x", tt.timing, got, tt.expected)
		}
	}
}

// TestHighSpeedBit verifies HISPD programming against timing and quirks.
func TestHighSpeedBit(t *testing.T) {
	hw, sim, _ := newTestHost()

	if err := hw.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := hw.setTiming(TIMING_MMC_HS); err != nil {
		t.Fatal(err)
	}

	if sim.hostCtrl1&CTRL_HISPD == 0 {
		t.Error("HISPD clear in high speed timing")
	}

	if err := hw.setTiming(TIMING_LEGACY); err != nil {
		t.Fatal(err)
	}

	if sim.hostCtrl1&CTRL_HISPD != 0 {
		t.Error("HISPD set in legacy timing")
	}

	hw.Quirks |= QuirkNoHiSpeedBit

	if err := hw.setTiming(TIMING_MMC_HS); err != nil {
		t.Fatal(err)
	}

	if sim.hostCtrl1&CTRL_HISPD != 0 {
		t.Error("HISPD set with QuirkNoHiSpeedBit")
	}
}

// TestDLLProgramming verifies the DLL configure/bypass split around the
// 100 MHz boundary.
func TestDLLProgramming(t *testing.T) {
	hw, sim, _ := newTestHost()

	if err := hw.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	// HS200 initialization ends at 200 MHz with a locked DLL
	if sim.misc[DLL_TXCLK]&DLL_TXCLK_TAPNUM_FROM_SW == 0 {
		t.Error("TXCLK tap not software selected")
	}

	if tap := sim.misc[DLL_TXCLK] & 0x1f; tap != RK3568.HS200TxTap {
		t.Errorf("TXCLK tap %d, expected %d", tap, RK3568.HS200TxTap)
	}

	if sim.misc[DLL_RXCLK]&DLL_RXCLK_NO_INVERTER == 0 {
		t.Error("RXCLK inverter not bypassed on RK3568")
	}

	// dropping below 100 MHz bypasses the DLL
	if err := hw.setClock(CLOCK_52MHZ); err != nil {
		t.Fatal(err)
	}

	if sim.misc[DLL_CTRL]&DLL_BYPASS == 0 {
		t.Error("DLL not bypassed below 100 MHz")
	}

	if sim.misc[DLL_STRBIN]&DLL_STRBIN_DELAY_NUM_SEL == 0 {
		t.Error("strobe-in delay not selected below 100 MHz")
	}

	if num := (sim.misc[DLL_STRBIN] >> DLL_STRBIN_DELAY_NUM_OFFSET) & 0xff; num != RK3568.DDR50Strbin {
		t.Errorf("strobe-in delay %d, expected %d", num, RK3568.DDR50Strbin)
	}
}

// TestArasanNoDLL verifies that DLL registers are never touched on hosts
// without the DWC-MSHC DLL block.
func TestArasanNoDLL(t *testing.T) {
	hw, sim, _ := newTestHost()

	hw.Chip = &Arasan
	hw.Caps = 0

	if err := hw.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	for _, off := range []uint32{DLL_CTRL, DLL_RXCLK, DLL_TXCLK, DLL_STRBIN, DLL_CMDOUT} {
		if _, ok := sim.misc[off]; ok {
			t.Errorf("DLL register %#x programmed on Arasan host", off)
		}
	}
}

// TestCompatibleChip verifies chip configuration lookup.
func TestCompatibleChip(t *testing.T) {
	chip, err := CompatibleChip("rockchip,rk3588-dwcmshc")

	if err != nil {
		t.Fatal(err)
	}

	if chip.HS400TxTap != 9 {
		t.Errorf("RK3588 HS400 tap %d, expected 9", chip.HS400TxTap)
	}

	if _, err = CompatibleChip("acme,sdhci"); err == nil {
		t.Error("expected error on unknown compatible")
	}
}
