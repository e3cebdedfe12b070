// Rockchip RK3568 support
// https://github.com/usbarmory/dwcmshc
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package rk3568 provides support for the Rockchip RK3568 SoC eMMC host,
// wiring the DWC-MSHC controller to the SoC clock and reset unit (CRU).
//
// The following specification is adopted:
//   - RK3568 TRM - Rockchip RK3568 Technical Reference Manual - Part 1 Rev 1.0 2021/02
//
// This package is primarily meant to be used with `GOOS=tamago` as
// supported by the TamaGo framework for bare metal Go, see
// https://github.com/usbarmory/tamago.
package rk3568

import (
	"github.com/usbarmory/dwcmshc"
)

// Peripheral base addresses.
const (
	// Clock and Reset Unit
	CRU_BASE = 0xfdd20000
	// eMMC host controller
	EMMC_BASE = 0xfe310000
)

// CRU instance
var CRU = &ClockController{
	Base: CRU_BASE,
}

// EMMC instance
var EMMC = &dwcmshc.DWCMSHC{
	Base:     EMMC_BASE,
	Chip:     &dwcmshc.RK3568,
	SetClock: CRU.SetEMMCClock,
	Caps:     dwcmshc.ModeHS200 | dwcmshc.Mode8Bit,
}
