// MMIO register primitives
// https://github.com/usbarmory/dwcmshc
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package reg

import (
	"unsafe"
)

func Get8(addr uintptr, pos int, mask int) uint8 {
	reg := (*uint8)(unsafe.Pointer(addr))
	return uint8((int(*reg) >> pos) & mask)
}

func Set8(addr uintptr, pos int) {
	reg := (*uint8)(unsafe.Pointer(addr))
	*reg |= (1 << pos)
}

func Clear8(addr uintptr, pos int) {
	reg := (*uint8)(unsafe.Pointer(addr))
	*reg &= ^uint8(1 << pos)
}

func Read8(addr uintptr) uint8 {
	reg := (*uint8)(unsafe.Pointer(addr))
	return *reg
}

func Write8(addr uintptr, val uint8) {
	reg := (*uint8)(unsafe.Pointer(addr))
	*reg = val
}
