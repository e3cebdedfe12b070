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
	"unsafe"
)

// regWrite journals a single register write.
type regWrite struct {
	width int
	off   uint32
	val   uint32
}

// issuedCmd journals a decoded COMMAND register write.
type issuedCmd struct {
	op  uint32
	arg uint32
}

// simCard models the card side of the register stub.
type simCard struct {
	cid    [4]uint32
	csd    [4]uint32
	ocr    uint32
	extCSD [512]byte

	// tuning loops before the controller reports a tuned clock
	tuningOK int
}

// simIO implements RegIO as a synchronous controller and card model,
// providing write-1-to-clear interrupt semantics, self clearing resets,
// response generation and buffer data streaming.
type simIO struct {
	card *simCard

	journal []regWrite
	cmds    []issuedCmd

	normal uint16
	errInt uint16

	present   uint32
	hostCtrl1 uint8
	power     uint8
	clkCtrl   uint16
	hostCtrl2 uint16
	blkSize   uint16
	blkCount  uint16
	xferMode  uint16
	arg       uint32
	resp      [4]uint32
	caps1     uint32
	caps2     uint32
	version   uint16
	intEn     uint32
	sigEn     uint32

	misc map[uint32]uint32

	// upper address bits of the DMA window, the controller registers
	// carry 32-bit addresses
	dmaHigh uintptr

	rx    []byte
	rxPos int

	tuningCount int

	// behavior knobs
	silent    map[uint32]bool
	errOnOp   map[uint32]uint16
	prgPolls  int
	switchErr bool
	glitchREV bool
	origREV   byte
}

// default R1: READY_FOR_DATA, current state TRAN
const simR1 = 1<<8 | STATE_TRAN<<STATUS_STATE_SHIFT

func newSimCard() *simCard {
	c := &simCard{
		cid: [4]uint32{0x150100ab, 0x12345678, 0x5a7bcdef, 0xdeadbe00},
		csd: [4]uint32{
			4<<26 | 0x5<<3 | 0x2,
			0x00090001,
			0x80007fe0,
			9 << 22,
		},
		ocr:      0x40ff8080,
		tuningOK: 3,
	}

	c.extCSD[EXT_CSD_REV] = 7
	c.extCSD[EXT_CSD_CARD_TYPE] = 0x13
	binary.LittleEndian.PutUint32(c.extCSD[EXT_CSD_SEC_CNT:], 0x00e90000)
	c.extCSD[EXT_CSD_HC_ERASE_GRP_SIZE] = 4
	c.extCSD[EXT_CSD_HC_WP_GRP_SIZE] = 4

	return c
}

func newSimIO() *simIO {
	s := &simIO{
		card:    newSimCard(),
		version: SPEC_300,
		caps1: 200<<CAP_CLOCK_BASE_SHIFT | CAP_CAN_DO_8BIT |
			CAP_CAN_VDD_330,
		present: PRES_CARD_INSERTED | PRES_CARD_STABLE | PRES_DATA_0_LVL,
		misc:    make(map[uint32]uint32),
		silent:  make(map[uint32]bool),
		errOnOp: make(map[uint32]uint16),
	}

	s.origREV = s.card.extCSD[EXT_CSD_REV]
	s.misc[DLL_STATUS0] = DLL_LOCKED | 0x12

	return s
}

// packR2 is the inverse of Response.R2, modeling the controller response
// register layout for 136-bit responses.
func packR2(logical [4]uint32) (raw [4]uint32) {
	raw[3] = logical[0] >> 8
	raw[2] = logical[0]<<24 | logical[1]>>8
	raw[1] = logical[1]<<24 | logical[2]>>8
	raw[0] = logical[2]<<24 | logical[3]>>8

	return
}

func (s *simIO) log(width int, off uint32, val uint32) {
	s.journal = append(s.journal, regWrite{width, off, val})
}

func (s *simIO) Read8(off uint32) uint8 {
	switch off {
	case HOST_CTRL1:
		return s.hostCtrl1
	case POWER_CTRL:
		return s.power
	case SOFTWARE_RESET:
		// resets complete instantly
		return 0
	}

	return 0
}

func (s *simIO) Read16(off uint32) uint16 {
	switch off {
	case BLOCK_SIZE:
		return s.blkSize
	case BLOCK_COUNT:
		return s.blkCount
	case XFER_MODE:
		return s.xferMode
	case CLOCK_CONTROL:
		return s.clkCtrl
	case NORMAL_INT_STAT:
		return s.normal
	case ERROR_INT_STAT:
		return s.errInt
	case HOST_CTRL2:
		return s.hostCtrl2
	case HOST_CNTRL_VER:
		return s.version
	}

	return 0
}

func (s *simIO) Read32(off uint32) uint32 {
	switch off {
	case PRESENT_STATE:
		return s.present
	case CAPABILITIES1:
		return s.caps1
	case CAPABILITIES2:
		return s.caps2
	case NORMAL_INT_STAT:
		return uint32(s.normal) | uint32(s.errInt)<<16
	case RESPONSE, RESPONSE + 4, RESPONSE + 8, RESPONSE + 12:
		return s.resp[(off-RESPONSE)/4]
	case BUF_DATA:
		if s.rxPos+4 <= len(s.rx) {
			val := binary.LittleEndian.Uint32(s.rx[s.rxPos:])
			s.rxPos += 4
			return val
		}

		return 0
	}

	return s.misc[off]
}

func (s *simIO) Write8(off uint32, val uint8) {
	s.log(1, off, uint32(val))

	switch off {
	case HOST_CTRL1:
		s.hostCtrl1 = val
	case POWER_CTRL:
		s.power = val
	case SOFTWARE_RESET:
		// self clearing, nothing to store
	}
}

func (s *simIO) Write16(off uint32, val uint16) {
	s.log(2, off, uint32(val))

	switch off {
	case BLOCK_SIZE:
		s.blkSize = val
	case BLOCK_COUNT:
		s.blkCount = val
	case XFER_MODE:
		s.xferMode = val
	case CLOCK_CONTROL:
		s.clkCtrl = val

		if val&CLOCK_INT_EN != 0 {
			s.clkCtrl |= CLOCK_INT_STABLE
		}
	case NORMAL_INT_STAT:
		s.normal &^= val
	case ERROR_INT_STAT:
		s.errInt &^= val
	case HOST_CTRL2:
		if s.hostCtrl2&CTRL2_EXEC_TUNING == 0 && val&CTRL2_EXEC_TUNING != 0 {
			s.tuningCount = 0
		}

		s.hostCtrl2 = val
	case COMMAND:
		s.exec(val)
	}
}

func (s *simIO) Write32(off uint32, val uint32) {
	s.log(4, off, val)

	switch off {
	case ARGUMENT:
		s.arg = val
	case NORMAL_INT_STAT:
		s.normal &^= uint16(val)
		s.errInt &^= uint16(val >> 16)
	case NORMAL_INT_EN:
		s.intEn = val
	case SIGNAL_ENABLE:
		s.sigEn = val
	default:
		s.misc[off] = val
	}
}

// fill returns a deterministic data block pattern for a card address.
func fill(addr uint32, size int) []byte {
	buf := make([]byte, size)

	for i := range buf {
		buf[i] = byte(addr + uint32(i))
	}

	return buf
}

// data presents a card-to-host payload, streamed through BUF_DATA in PIO
// mode or scattered through the programmed ADMA2 descriptor chain in DMA
// mode.
func (s *simIO) data(buf []byte) {
	if s.xferMode&TRNS_DMA == 0 {
		s.rx = buf
		s.rxPos = 0
		return
	}

	bd := uintptr(s.misc[ADMA_SA]) | s.dmaHigh

	for len(buf) > 0 {
		desc := unsafe.Slice((*byte)(unsafe.Pointer(bd)), 8)

		attr := desc[0]
		length := int(binary.LittleEndian.Uint16(desc[2:]))
		addr := uintptr(binary.LittleEndian.Uint32(desc[4:])) | s.dmaHigh

		if length > len(buf) {
			length = len(buf)
		}

		mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
		copy(mem, buf)
		buf = buf[length:]

		if attr&(1<<ATTR_END) != 0 {
			break
		}

		bd += 8
	}
}

// exec decodes a COMMAND register write and models the card response.
func (s *simIO) exec(command uint16) {
	op := uint32(command>>8) & 0x3f

	s.cmds = append(s.cmds, issuedCmd{op, s.arg})

	if s.silent[op] {
		return
	}

	if bits, ok := s.errOnOp[op]; ok {
		s.normal |= INT_ERROR
		s.errInt |= bits
		return
	}

	s.resp = [4]uint32{simR1, 0, 0, 0}

	switch op {
	case MMC_GO_IDLE_STATE:
		s.resp = [4]uint32{}
	case MMC_SEND_OP_COND:
		if s.arg == 0 {
			s.resp[0] = s.card.ocr
		} else {
			s.resp[0] = s.card.ocr | OCR_BUSY | OCR_HCS
		}
	case MMC_ALL_SEND_CID:
		s.resp = packR2(s.card.cid)
	case MMC_SEND_CSD:
		s.resp = packR2(s.card.csd)
	case MMC_SEND_STATUS:
		if s.prgPolls > 0 {
			s.prgPolls--
			s.resp[0] = STATE_PRG << STATUS_STATE_SHIFT
		}

		if s.switchErr {
			s.resp[0] |= STATUS_SWITCH_ERROR
		}
	case MMC_SWITCH:
		index := (s.arg >> 16) & 0xff
		value := byte(s.arg >> 8)

		s.card.extCSD[index] = value

		if s.glitchREV && index == EXT_CSD_BUS_WIDTH {
			switch value {
			case EXT_CSD_BUS_WIDTH_8:
				s.card.extCSD[EXT_CSD_REV] = s.origREV + 1
			default:
				s.card.extCSD[EXT_CSD_REV] = s.origREV
			}
		}
	case MMC_SEND_EXT_CSD:
		s.data(append([]byte{}, s.card.extCSD[:]...))
		s.normal |= INT_DATA_AVAIL | INT_DATA_END
	case MMC_READ_SINGLE_BLOCK, MMC_READ_MULTIPLE_BLOCK:
		blocks := int(s.blkCount)

		if op == MMC_READ_SINGLE_BLOCK {
			blocks = 1
		}

		s.data(fill(s.arg, blocks*MAX_BLOCK_LEN))
		s.normal |= INT_DATA_AVAIL | INT_DATA_END
	case MMC_WRITE_BLOCK, MMC_WRITE_MULTIPLE_BLOCK:
		s.normal |= INT_SPACE_AVAIL | INT_DATA_END
	case MMC_SEND_TUNING_BLOCK_HS200:
		s.tuningCount++

		if s.hostCtrl2&CTRL2_EXEC_TUNING != 0 && s.tuningCount >= s.card.tuningOK {
			s.hostCtrl2 &^= CTRL2_EXEC_TUNING
			s.hostCtrl2 |= CTRL2_TUNED_CLK
		}

		s.normal |= INT_DATA_AVAIL
	}

	s.normal |= INT_RESPONSE
}

// testClock models the platform clock controller discrete rate menu.
type testClock struct {
	requested []uint
}

func (c *testClock) set(hz uint) (uint, error) {
	c.requested = append(c.requested, hz)

	switch {
	case hz == 24000000:
		return 24000000, nil
	case hz == 375000, hz == 400000:
		return 375000, nil
	case hz < 375000, hz > 200000000:
		return 0, fmt.Errorf("unsupported clock rate %d", hz)
	case hz <= 52000000:
		return 50000000, nil
	case hz <= 100000000:
		return 100000000, nil
	case hz <= 150000000:
		return 150000000, nil
	}

	return 200000000, nil
}

// newTestHost returns a controller instance bound to a fresh register
// stub.
func newTestHost() (*DWCMSHC, *simIO, *testClock) {
	sim := newSimIO()
	clk := &testClock{}

	hw := &DWCMSHC{
		IO:       sim,
		Chip:     &RK3568,
		Caps:     ModeHS200 | Mode8Bit,
		SetClock: clk.set,
		Sleep:    func(time.Duration) {},
	}

	return hw, sim, clk
}

// lastWrite returns the journal index of the most recent write matching
// width and offset, -1 when none is found.
func (s *simIO) lastWrite(width int, off uint32) int {
	for i := len(s.journal) - 1; i >= 0; i-- {
		if s.journal[i].width == width && s.journal[i].off == off {
			return i
		}
	}

	return -1
}

// opcodes returns the journaled command opcodes in issue order.
func (s *simIO) opcodes() (ops []uint32) {
	for _, c := range s.cmds {
		ops = append(ops, c.op)
	}

	return
}
