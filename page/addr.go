package page

import "unsafe"

// addrOf returns the address of a byte slice's backing array.
func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}
