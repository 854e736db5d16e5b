package bridge

import (
	"fmt"
	"hash/crc64"
)

var crcTable = crc64.MakeTable(crc64.ISO)

// DeviceSignature derives a stable 16-hex-character identity for a USB
// device from its enumeration attributes, used to dedup attach/detach
// events and key the connected-device set.
func DeviceSignature(vendorID, productID, bus, address string) string {
	raw := vendorID + ":" + productID + ":" + bus + ":" + address
	sum := crc64.Checksum([]byte(raw), crcTable)
	return fmt.Sprintf("%016x", sum)
}
