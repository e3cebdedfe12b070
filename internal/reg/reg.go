// MMIO register primitives
// https://github.com/usbarmory/dwcmshc
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package reg provides primitives for retrieving and modifying
// memory-mapped hardware registers.
//
// Addresses are full-width pointers as the supported SoCs (e.g. Rockchip
// RK3568/RK3588) map peripherals on AArch64.
package reg

import (
	"unsafe"
)

// Get returns the register value at a specific bit position and with a
// bitmask applied.
func Get(addr uintptr, pos int, mask int) uint32 {
	reg := (*uint32)(unsafe.Pointer(addr))
	return uint32((int(*reg) >> pos) & mask)
}

// Set modifies the register by setting an individual bit at the position
// argument.
func Set(addr uintptr, pos int) {
	reg := (*uint32)(unsafe.Pointer(addr))
	*reg |= (1 << pos)
}

// Clear modifies the register by clearing an individual bit at the
// position argument.
func Clear(addr uintptr, pos int) {
	reg := (*uint32)(unsafe.Pointer(addr))
	*reg &= ^uint32(1 << pos)
}

// SetTo modifies the register by setting or clearing an individual bit at
// the position argument.
func SetTo(addr uintptr, pos int, val bool) {
	if val {
		Set(addr, pos)
	} else {
		Clear(addr, pos)
	}
}

// SetN modifies the register by setting a value at a specific bit position
// and with a bitmask applied.
func SetN(addr uintptr, pos int, mask int, val uint32) {
	reg := (*uint32)(unsafe.Pointer(addr))
	*reg = (*reg & (^(uint32(mask) << pos))) | (val << pos)
}

// ClearN modifies the register by clearing a value at a specific bit
// position and with a bitmask applied.
func ClearN(addr uintptr, pos int, mask int) {
	reg := (*uint32)(unsafe.Pointer(addr))
	*reg &= ^(uint32(mask) << pos)
}

// Read returns the register value.
func Read(addr uintptr) uint32 {
	reg := (*uint32)(unsafe.Pointer(addr))
	return *reg
}

// Write modifies the register value.
func Write(addr uintptr, val uint32) {
	reg := (*uint32)(unsafe.Pointer(addr))
	*reg = val
}

// Or modifies the register by applying a logical OR of the value argument.
func Or(addr uintptr, val uint32) {
	reg := (*uint32)(unsafe.Pointer(addr))
	*reg |= val
}
