// Synopsys DesignWare Mobile Storage Host Controller (DWC-MSHC) driver
// https://github.com/usbarmory/dwcmshc
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dwcmshc implements a driver for SDHCI compliant SD/MMC host
// controllers of the Synopsys DesignWare Mobile Storage Host Controller
// family, as found on Rockchip RK3568/RK3588/RK3528 SoCs, as well as
// Arasan-style hosts without the DWC-MSHC DLL block.
//
// The following specifications are adopted:
//   - SD-HC-3.00  - SD Host Controller Simplified Specification          - 3.00       2011/02/25
//   - JESD84-B51  - Embedded Multi-Media Card (e•MMC) Electrical Standard (5.1)       2015/02
//   - SD-PL-7.10  - SD Specifications Part 1 Physical Layer Simplified Specification  2020/03/25
//
// The driver performs card identification, capability negotiation and
// bus width/speed selection up to HS200 mode with standard tuning, and
// exposes block level read/write transfers in PIO mode, or DMA mode when
// a dma.Region is assigned.
//
// The controller is operated by polling, interrupt signals are never
// routed. No operation may be issued concurrently on the same instance.
//
// This package is primarily meant to be used with `GOOS=tamago` as
// supported by the TamaGo framework for bare metal Go, see
// https://github.com/usbarmory/tamago.
package dwcmshc

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/usbarmory/dwcmshc/bits"
	"github.com/usbarmory/dwcmshc/dma"
	"github.com/usbarmory/dwcmshc/internal/reg"
)

// Driver errors
var (
	// ErrTimeout is returned when a polled condition exceeds its bounded
	// wait.
	ErrTimeout = errors.New("timeout")
	// ErrCommand is returned on command phase hardware errors.
	ErrCommand = errors.New("command error")
	// ErrData is returned on data phase hardware errors.
	ErrData = errors.New("data error")
	// ErrInvalidValue is returned on driver level precondition violations.
	ErrInvalidValue = errors.New("invalid value")
	// ErrUnsupported is returned when card and host cannot negotiate a
	// common operating mode, or when the card never leaves busy state.
	ErrUnsupported = errors.New("unsupported")
	// ErrNoCard is returned when no card is present.
	ErrNoCard = errors.New("no card")
	// ErrIO is returned on transfer buffer size mismatches.
	ErrIO = errors.New("i/o error")
)

// RegIO abstracts width typed register access within the controller
// window, allowing the protocol engine to be exercised against register
// stubs.
type RegIO interface {
	Read8(off uint32) uint8
	Read16(off uint32) uint16
	Read32(off uint32) uint32
	Write8(off uint32, val uint8)
	Write16(off uint32, val uint16)
	Write32(off uint32, val uint32)
}

// mmio implements RegIO on a memory mapped register window.
type mmio struct {
	base uintptr
}

func (m *mmio) Read8(off uint32) uint8         { return reg.Read8(m.base + uintptr(off)) }
func (m *mmio) Read16(off uint32) uint16       { return reg.Read16(m.base + uintptr(off)) }
func (m *mmio) Read32(off uint32) uint32       { return reg.Read(m.base + uintptr(off)) }
func (m *mmio) Write8(off uint32, val uint8)   { reg.Write8(m.base+uintptr(off), val) }
func (m *mmio) Write16(off uint32, val uint16) { reg.Write16(m.base+uintptr(off), val) }
func (m *mmio) Write32(off uint32, val uint32) { reg.Write(m.base+uintptr(off), val) }

// DWCMSHC represents an SD/MMC host controller instance.
type DWCMSHC struct {
	// Base register address
	Base uintptr
	// IO optionally overrides register access (defaults to MMIO at Base)
	IO RegIO
	// Chip specific DLL/PHY configuration (defaults to RK3568)
	Chip *ChipConfig
	// SetClock is the platform clock controller hook, it must program
	// the closest supported source clock for the passed rate and return
	// the actual rate.
	SetClock func(hz uint) (uint, error)
	// Sleep is the host environment sleep primitive (defaults to
	// time.Sleep).
	Sleep func(d time.Duration)
	// Caps are additional host capability flags (e.g. ModeHS200) known
	// to the board support package.
	Caps uint32
	// Quirks are controller behavior flags.
	Quirks uint32
	// Region optionally assigns a DMA region, enabling ADMA2 transfers
	// in place of PIO.
	Region *dma.Region
	// DSR is the optional Driver Stage Register value, 0xffffffff (the
	// default zero value is accepted as "unset" as well) leaves the
	// card DSR untouched.
	DSR uint32

	// detected controller properties
	version   uint16
	caps1     uint32
	caps2     uint32
	clockBase uint
	voltages  uint32
	hostCaps  uint32

	// current bus settings
	timing int
	width  int
	clock  uint

	io   RegIO
	card *Card
}

func (hw *DWCMSHC) sleep(d time.Duration) {
	if hw.Sleep != nil {
		hw.Sleep(d)
		return
	}

	time.Sleep(d)
}

// Version returns the SDHC specification version field of the controller.
func (hw *DWCMSHC) Version() uint16 {
	return hw.version & VER_MASK
}

// Card returns the detected card, nil when no card is present.
func (hw *DWCMSHC) Card() *Card {
	return hw.card
}

// HostCaps returns the detected host capability flags.
func (hw *DWCMSHC) HostCaps() uint32 {
	return hw.hostCaps
}

// reset resets the controller circuits selected by mask (RESET_ALL,
// RESET_CMD, RESET_DATA).
func (hw *DWCMSHC) reset(mask uint8) error {
	hw.io.Write8(SOFTWARE_RESET, mask)

	for timeout := 20; (hw.io.Read8(SOFTWARE_RESET) & mask) != 0; timeout-- {
		if timeout == 0 {
			return fmt.Errorf("reset %#x: %w", mask, ErrTimeout)
		}

		hw.sleep(1 * time.Millisecond)
	}

	return nil
}

// setPower programs the bus power for the voltage window at the passed bit
// position, switching power off when the argument is invalid.
func (hw *DWCMSHC) setPower(pos int) {
	var pwr uint8

	switch uint32(1) << pos {
	case VDD_165_195:
		pwr = POWER_180
	case VDD_29_30, VDD_30_31:
		pwr = POWER_300
	case VDD_32_33, VDD_33_34:
		pwr = POWER_330
	}

	if pwr == 0 {
		hw.io.Write8(POWER_CTRL, 0)
		return
	}

	hw.io.Write8(POWER_CTRL, pwr|POWER_ON)
	hw.sleep(10 * time.Millisecond)
}

// cardPresent returns whether a card is inserted and debounced stable.
func (hw *DWCMSHC) cardPresent() bool {
	state := hw.io.Read32(PRESENT_STATE)
	return state&PRES_CARD_INSERTED != 0 && state&PRES_CARD_STABLE != 0
}

// writeProtected returns the write protect switch state.
func (hw *DWCMSHC) writeProtected() bool {
	return hw.io.Read32(PRESENT_STATE)&PRES_WRITE_PROTECT != 0
}

// cardBusy returns whether the card is signaling busy on DAT0.
func (hw *DWCMSHC) cardBusy() bool {
	return hw.io.Read32(PRESENT_STATE)&PRES_DATA_0_LVL == 0
}

// initHost brings up the controller to 1-bit, 400 kHz, legacy timing with
// bus power on and interrupt status (but not signals) enabled.
func (hw *DWCMSHC) initHost() error {
	if err := hw.reset(RESET_ALL); err != nil {
		return err
	}

	hw.version = hw.io.Read16(HOST_CNTRL_VER)
	hw.caps1 = hw.io.Read32(CAPABILITIES1)

	var clkMul uint32

	if hw.Version() >= SPEC_300 {
		hw.caps2 = hw.io.Read32(CAPABILITIES2)
		clkMul = (hw.caps2 & CAP_CLOCK_MUL_MASK) >> CAP_CLOCK_MUL_SHIFT
	}

	if hw.Version() >= SPEC_300 {
		hw.clockBase = uint((hw.caps1 & CAP_CLOCK_V3_BASE_MASK) >> CAP_CLOCK_BASE_SHIFT)
	} else {
		hw.clockBase = uint((hw.caps1 & CAP_CLOCK_BASE_MASK) >> CAP_CLOCK_BASE_SHIFT)
	}

	hw.clockBase *= 1000000

	if clkMul != 0 {
		hw.clockBase *= uint(clkMul)
	}

	if hw.clockBase == 0 {
		return fmt.Errorf("missing base clock frequency: %w", ErrUnsupported)
	}

	hw.hostCaps = ModeHS | ModeHS52 | Mode4Bit | Mode8Bit

	if hw.Version() >= SPEC_300 && hw.caps1&CAP_CAN_DO_8BIT == 0 {
		hw.hostCaps &^= Mode8Bit
	}

	hw.hostCaps |= hw.Caps

	switch {
	case hw.caps1&CAP_CAN_VDD_330 != 0:
		hw.voltages = VDD_32_33 | VDD_33_34
	case hw.caps1&CAP_CAN_VDD_300 != 0:
		hw.voltages = VDD_29_30 | VDD_30_31
	case hw.caps1&CAP_CAN_VDD_180 != 0:
		hw.voltages = VDD_165_195
	default:
		return fmt.Errorf("no supported voltage range: %w", ErrUnsupported)
	}

	hw.setPower(bits.Fls(hw.voltages) - 1)

	// enable command and data interrupt status, leave signals unrouted
	hw.io.Write32(NORMAL_INT_EN, INT_CMD_MASK|INT_DATA_MASK)
	hw.io.Write32(SIGNAL_ENABLE, 0)

	hw.timing = TIMING_LEGACY
	hw.width = 1
	hw.clock = CLOCK_400KHZ

	return hw.setIOS()
}

// Init initializes the controller instance and, when a card is present,
// performs the full card identification and bus negotiation sequence.
//
// Card absence is not an error, the instance is left initialized with no
// card allocated.
func (hw *DWCMSHC) Init() error {
	if hw.io == nil {
		if hw.IO != nil {
			hw.io = hw.IO
		} else if hw.Base != 0 {
			hw.io = &mmio{base: hw.Base}
		} else {
			return fmt.Errorf("invalid controller instance: %w", ErrInvalidValue)
		}
	}

	if hw.Chip == nil {
		hw.Chip = &RK3568
	}

	if err := hw.initHost(); err != nil {
		return err
	}

	log.Printf("dwcmshc: version %#x base clock %d Hz", hw.Version(), hw.clockBase)

	if !hw.cardPresent() {
		hw.card = nil
		return nil
	}

	hw.card = &Card{}

	if err := hw.initCard(); err != nil {
		hw.card = nil
		hw.reset(RESET_ALL)
		hw.io.Write8(POWER_CTRL, 0)
		return err
	}

	return nil
}

// setBusWidth applies a bus width (1, 4, 8) to the controller.
func (hw *DWCMSHC) setBusWidth(width int) error {
	hw.width = width
	return hw.setIOS()
}

// setTiming applies a bus timing mode to the controller.
func (hw *DWCMSHC) setTiming(timing int) error {
	hw.timing = timing
	return hw.setIOS()
}

// setClock applies a card clock rate to the controller.
func (hw *DWCMSHC) setClock(hz uint) error {
	hw.clock = hz
	return hw.setIOS()
}
