// Synopsys DesignWare Mobile Storage Host Controller (DWC-MSHC) driver
// https://github.com/usbarmory/dwcmshc
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dwcmshc

// SDHC registers (SD Host Controller Simplified Specification Version 3.00,
// 2.1 Standard Register Map).
const (
	SDMA_SA         = 0x00
	BLOCK_SIZE      = 0x04
	BLOCK_COUNT     = 0x06
	ARGUMENT        = 0x08
	XFER_MODE       = 0x0c
	COMMAND         = 0x0e
	RESPONSE        = 0x10
	BUF_DATA        = 0x20
	PRESENT_STATE   = 0x24
	HOST_CTRL1      = 0x28
	POWER_CTRL      = 0x29
	CLOCK_CONTROL   = 0x2c
	TIMEOUT_CONTROL = 0x2e
	SOFTWARE_RESET  = 0x2f
	NORMAL_INT_STAT = 0x30
	ERROR_INT_STAT  = 0x32
	NORMAL_INT_EN   = 0x34
	ERROR_INT_EN    = 0x36
	SIGNAL_ENABLE   = 0x38
	AUTO_CMD_STAT   = 0x3c
	HOST_CTRL2      = 0x3e
	CAPABILITIES1   = 0x40
	CAPABILITIES2   = 0x44
	ADMA_ERR_STAT   = 0x54
	ADMA_SA         = 0x58
	HOST_CNTRL_VER  = 0xfe
)

// DWC-MSHC vendor registers.
const (
	HOST_CTRL3  = 0x508
	EMMC_CTRL   = 0x52c
	AT_CTRL     = 0x540
	DLL_CTRL    = 0x800
	DLL_RXCLK   = 0x804
	DLL_TXCLK   = 0x808
	DLL_STRBIN  = 0x80c
	DLL_CMDOUT  = 0x810
	DLL_STATUS0 = 0x840
	DLL_STATUS1 = 0x844
)

// PRESENT_STATE bits.
const (
	PRES_DATA_INHIBIT  = 0x00000001
	PRES_CMD_INHIBIT   = 0x00000002
	PRES_CARD_INSERTED = 0x00010000
	PRES_CARD_STABLE   = 0x00020000
	PRES_WRITE_PROTECT = 0x00080000
	PRES_DATA_0_LVL    = 0x00100000
)

// HOST_CTRL1 bits.
const (
	CTRL_4BITBUS  = 0x02
	CTRL_HISPD    = 0x04
	CTRL_DMA_MASK = 0x18
	CTRL_SDMA     = 0x00
	CTRL_ADMA32   = 0x10
	CTRL_8BITBUS  = 0x20
)

// POWER_CTRL codes.
const (
	POWER_ON  = 0x01
	POWER_180 = 0x0a
	POWER_300 = 0x0c
	POWER_330 = 0x0e
)

// CLOCK_CONTROL bits.
const (
	CLOCK_INT_EN     = 0x0001
	CLOCK_INT_STABLE = 0x0002
	CLOCK_CARD_EN    = 0x0004
	PROG_CLOCK_MODE  = 0x0020

	DIVIDER_SHIFT    = 8
	DIVIDER_HI_SHIFT = 6
)

// SOFTWARE_RESET bits.
const (
	RESET_ALL  = 0x01
	RESET_CMD  = 0x02
	RESET_DATA = 0x04
)

// XFER_MODE bits.
const (
	TRNS_DMA        = 0x01
	TRNS_BLK_CNT_EN = 0x02
	TRNS_AUTO_CMD12 = 0x04
	TRNS_READ       = 0x10
	TRNS_MULTI      = 0x20
)

// COMMAND register response and check bits.
const (
	CMD_RESP_MASK       = 0x03
	CMD_RESP_NONE       = 0x00
	CMD_RESP_LONG       = 0x01
	CMD_RESP_SHORT      = 0x02
	CMD_RESP_SHORT_BUSY = 0x03
	CMD_CRC             = 0x08
	CMD_INDEX           = 0x10
	CMD_DATA            = 0x20
)

// Interrupt status bits, NORMAL_INT_STAT and ERROR_INT_STAT form a single
// 32-bit word with error bits in the upper half.
const (
	INT_RESPONSE     = 0x00000001
	INT_DATA_END     = 0x00000002
	INT_DMA_END      = 0x00000008
	INT_SPACE_AVAIL  = 0x00000010
	INT_DATA_AVAIL   = 0x00000020
	INT_CARD_INSERT  = 0x00000040
	INT_CARD_REMOVE  = 0x00000080
	INT_ERROR        = 0x00008000
	INT_TIMEOUT      = 0x00010000
	INT_CRC          = 0x00020000
	INT_END_BIT      = 0x00040000
	INT_INDEX        = 0x00080000
	INT_DATA_TIMEOUT = 0x00100000
	INT_DATA_CRC     = 0x00200000
	INT_DATA_END_BIT = 0x00400000
	INT_ACMD12_ERR   = 0x01000000
	INT_ADMA_ERROR   = 0x02000000

	INT_NORMAL_MASK = 0x00007fff
	INT_ERROR_MASK  = 0xffff8000

	INT_CMD_MASK = INT_RESPONSE | INT_TIMEOUT | INT_CRC |
		INT_END_BIT | INT_INDEX
	INT_DATA_MASK = INT_DATA_END | INT_DMA_END | INT_DATA_AVAIL |
		INT_SPACE_AVAIL | INT_DATA_TIMEOUT | INT_DATA_CRC |
		INT_DATA_END_BIT | INT_ADMA_ERROR
)

// ERROR_INT_STAT bits.
const (
	ERR_INT_CMD_TIMEOUT = 0x0001
	ERR_INT_CMD_CRC     = 0x0002
	ERR_INT_CMD_END_BIT = 0x0004
	ERR_INT_CMD_INDEX   = 0x0008
)

// HOST_CTRL2 bits.
const (
	CTRL2_UHS_MASK    = 0x0007
	CTRL2_UHS_SDR12   = 0x0000
	CTRL2_UHS_SDR25   = 0x0001
	CTRL2_UHS_SDR50   = 0x0002
	CTRL2_UHS_SDR104  = 0x0003
	CTRL2_UHS_DDR50   = 0x0004
	CTRL2_HS400       = 0x0007
	CTRL2_VDD_180     = 0x0008
	CTRL2_DRV_TYPE_A  = 0x0010
	CTRL2_EXEC_TUNING = 0x0040
	CTRL2_TUNED_CLK   = 0x0080
)

// CAPABILITIES1/CAPABILITIES2 fields.
const (
	CAP_CLOCK_BASE_MASK    = 0x00003f00
	CAP_CLOCK_V3_BASE_MASK = 0x0000ff00
	CAP_CLOCK_BASE_SHIFT   = 8
	CAP_CAN_DO_8BIT        = 0x00040000
	CAP_CAN_VDD_330        = 1 << 24
	CAP_CAN_VDD_300        = 1 << 25
	CAP_CAN_VDD_180        = 1 << 26

	CAP_CLOCK_MUL_MASK  = 0x00ff0000
	CAP_CLOCK_MUL_SHIFT = 16
)

// HOST_CNTRL_VER SDHC specification versions.
const (
	VER_MASK = 0x00ff
	SPEC_100 = 0
	SPEC_200 = 1
	SPEC_300 = 2
)

// DWC-MSHC DLL control bits.
const (
	DLL_CTRL_RESET  = 1 << 1
	DLL_START       = 1 << 0
	DLL_START_POINT = 16
	DLL_START_DEFAULT = 5
	DLL_INC         = 8
	DLL_INC_VALUE   = 2
	DLL_BYPASS      = 1 << 24
	DLL_DLYENA      = 1 << 27

	DLL_LOCKED      = 1 << 8
	DLL_LOCK_TIMEOUT = 1 << 9

	DLL_TAP_VALUE_SEL    = 1 << 25
	DLL_TAP_VALUE_OFFSET = 8

	DLL_RXCLK_NO_INVERTER = 1 << 29
	DLL_RXCLK_ORI_GATE    = 1 << 31

	DLL_TXCLK_TAPNUM_FROM_SW = 1 << 24
	DLL_TXCLK_NO_INVERTER    = 1 << 29

	DLL_STRBIN_DELAY_NUM_OFFSET = 16
	DLL_STRBIN_TAPNUM_FROM_SW   = 1 << 24
	DLL_STRBIN_DELAY_NUM_SEL    = 1 << 26

	DLL_CMDOUT_TAPNUM_FROM_SW = 1 << 24
	DLL_CMDOUT_SRC_CLK_NEG    = 1 << 28
	DLL_CMDOUT_BOTH_CLK_EDGE  = 1 << 30
)

// SD/MMC command indexes (JESD84-B51, Table 31 and following).
const (
	MMC_GO_IDLE_STATE          = 0
	MMC_SEND_OP_COND           = 1
	MMC_ALL_SEND_CID           = 2
	MMC_SET_RELATIVE_ADDR      = 3
	MMC_SET_DSR                = 4
	MMC_SWITCH                 = 6
	MMC_SELECT_CARD            = 7
	MMC_SEND_EXT_CSD           = 8
	MMC_SEND_CSD               = 9
	MMC_STOP_TRANSMISSION      = 12
	MMC_SEND_STATUS            = 13
	MMC_SET_BLOCKLEN           = 16
	MMC_READ_SINGLE_BLOCK      = 17
	MMC_READ_MULTIPLE_BLOCK    = 18
	MMC_SEND_TUNING_BLOCK      = 19
	MMC_SEND_TUNING_BLOCK_HS200 = 21
	MMC_WRITE_BLOCK            = 24
	MMC_WRITE_MULTIPLE_BLOCK   = 25
)

// Response type flags (p160, Table 68, JESD84-B51).
const (
	RSP_PRESENT = 1 << 0
	RSP_136     = 1 << 1
	RSP_CRC     = 1 << 2
	RSP_BUSY    = 1 << 3
	RSP_OPCODE  = 1 << 4

	RSP_NONE = 0
	RSP_R1   = RSP_PRESENT | RSP_CRC | RSP_OPCODE
	RSP_R1B  = RSP_PRESENT | RSP_CRC | RSP_OPCODE | RSP_BUSY
	RSP_R2   = RSP_PRESENT | RSP_136 | RSP_CRC
	RSP_R3   = RSP_PRESENT
	RSP_R6   = RSP_PRESENT | RSP_CRC | RSP_OPCODE
	RSP_R7   = RSP_PRESENT | RSP_CRC | RSP_OPCODE
)

// Card status (R1) fields (p160, Table 68 - Device Status, JESD84-B51).
const (
	STATUS_SWITCH_ERROR = 1 << 7
	STATUS_CURR_STATE   = 0xf << 9
	STATUS_STATE_SHIFT  = 9

	STATE_IDENT = 2
	STATE_TRAN  = 4
	STATE_PRG   = 7
)

// OCR fields (p181, 7.1 OCR register, JESD84-B51).
const (
	OCR_BUSY         = 0x80000000
	OCR_HCS          = 0x40000000
	OCR_ACCESS_MODE  = 0x60000000
	OCR_VOLTAGE_MASK = 0x007fff80
)

// Voltage windows.
const (
	VDD_165_195 = 0x00000080
	VDD_29_30   = 0x00020000
	VDD_30_31   = 0x00040000
	VDD_32_33   = 0x00100000
	VDD_33_34   = 0x00200000

	VDD_165_195_SHIFT = 7
)

// MMC_SWITCH (CMD6) argument fields (p62, 6.6.1, JESD84-B51).
const (
	SWITCH_MODE_WRITE_BYTE = 0x03
)

// EXT_CSD byte indexes (p193, 7.4 Extended CSD register, JESD84-B51).
const (
	EXT_CSD_ENH_START_ADDR        = 136
	EXT_CSD_ENH_SIZE_MULT         = 140
	EXT_CSD_GP_SIZE_MULT          = 143
	EXT_CSD_PARTITION_SETTING     = 155
	EXT_CSD_PARTITIONS_ATTRIBUTE  = 156
	EXT_CSD_PARTITIONING_SUPPORT  = 160
	EXT_CSD_WR_REL_SET            = 167
	EXT_CSD_RPMB_MULT             = 168
	EXT_CSD_ERASE_GROUP_DEF       = 175
	EXT_CSD_PART_CONF             = 179
	EXT_CSD_BUS_WIDTH             = 183
	EXT_CSD_STROBE_SUPPORT        = 184
	EXT_CSD_HS_TIMING             = 185
	EXT_CSD_REV                   = 192
	EXT_CSD_CARD_TYPE             = 196
	EXT_CSD_DRIVER_STRENGTH       = 197
	EXT_CSD_SEC_CNT               = 212
	EXT_CSD_HC_WP_GRP_SIZE        = 221
	EXT_CSD_HC_ERASE_GRP_SIZE     = 224
	EXT_CSD_BOOT_MULT             = 226
	EXT_CSD_SEC_FEATURE_SUPPORT   = 231
)

// EXT_CSD field values.
const (
	EXT_CSD_PARTITION_SETTING_COMPLETED = 1 << 0

	EXT_CSD_BUS_WIDTH_1 = 0
	EXT_CSD_BUS_WIDTH_4 = 1
	EXT_CSD_BUS_WIDTH_8 = 2

	EXT_CSD_TIMING_LEGACY = 0
	EXT_CSD_TIMING_HS     = 1
	EXT_CSD_TIMING_HS200  = 2
	EXT_CSD_TIMING_HS400  = 3

	EXT_CSD_SEC_GB_CL_EN = 1 << 4

	PART_SUPPORT    = 1 << 0
	ENHNCD_SUPPORT  = 1 << 1
	PART_ENH_ATTRIB = 0x1f
)

// EXT_CSD CARD_TYPE bits (p224, 7.4.66 DEVICE_TYPE, JESD84-B51).
const (
	CARD_TYPE_26        = 1 << 0
	CARD_TYPE_52        = 1 << 1
	CARD_TYPE_DDR_1_8V  = 1 << 2
	CARD_TYPE_DDR_1_2V  = 1 << 3
	CARD_TYPE_HS200_1_8V = 1 << 4
	CARD_TYPE_HS200_1_2V = 1 << 5
	CARD_TYPE_HS400_1_8V = 1 << 6
	CARD_TYPE_HS400_1_2V = 1 << 7

	// synthesized from STROBE_SUPPORT, not an EXT_CSD bit
	CARD_TYPE_HS400ES = 1 << 8

	CARD_TYPE_HS200 = CARD_TYPE_HS200_1_8V | CARD_TYPE_HS200_1_2V
	CARD_TYPE_HS400 = CARD_TYPE_HS400_1_8V | CARD_TYPE_HS400_1_2V
	CARD_TYPE_HS    = CARD_TYPE_26 | CARD_TYPE_52
)

// Bus timing modes.
const (
	TIMING_LEGACY = iota
	TIMING_MMC_HS
	TIMING_SD_HS
	TIMING_UHS_SDR12
	TIMING_UHS_SDR25
	TIMING_UHS_SDR50
	TIMING_UHS_SDR104
	TIMING_UHS_DDR50
	TIMING_MMC_DDR52
	TIMING_MMC_HS200
	TIMING_MMC_HS400
	TIMING_MMC_HS400ES
)

// Host capability flags.
const (
	ModeHS     = 1 << 0
	ModeHS52   = 1 << 1
	Mode4Bit   = 1 << 2
	Mode8Bit   = 1 << 3
	ModeDDR52  = 1 << 4
	ModeHS400  = 1 << 5
	ModeHS200  = 1 << 6
	ModeHS400ES = 1 << 7
)

// Host quirk flags.
const (
	QuirkNoHiSpeedBit = 1 << 0
	QuirkUseWide8     = 1 << 1
)

// Card state flags.
const (
	STATE_HIGHSPEED    = 1 << 2
	STATE_BLOCKADDR    = 1 << 3
	STATE_HIGHCAPACITY = 1 << 4
	STATE_DDR_MODE     = 1 << 6
	STATE_HS200        = 1 << 7
	STATE_HS400        = 1 << 8
)

// Bus clock limits.
const (
	CLOCK_400KHZ = 400000
	CLOCK_26MHZ  = 26000000
	CLOCK_52MHZ  = 52000000
	CLOCK_200MHZ = 200000000
)

const (
	// maximum read/write block length
	MAX_BLOCK_LEN = 512
	// maximum BLOCK_SIZE value (bits 0-11)
	MAX_REG_BLOCK_LEN = 4096

	// PART_CONF value before EXT_CSD parsing
	MMCPART_NOAVAILABLE = 0xff
)
