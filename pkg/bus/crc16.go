package bus

// Checksum computes the CRC16 protecting a frame: reflected polynomial
// 0xA001, initial value 0xFFFF, no final XOR, one byte at a time
// LSB-first. Both ends of the link compute it independently, so the bit
// order must never change.
func Checksum(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
