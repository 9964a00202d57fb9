// Package frame encodes the messages exchanged between workers.
//
// A frame carries one tagged vector of float64 values:
//
//	[Tag: u32] [Flags: u8] [RawLen: u32] [WireLen: u32] [Checksum: u32] [Payload: WireLen bytes]
//
// RawLen is the payload size before compression (8 bytes per value). Flags hold
// the Compression of the payload. Checksum is the CRC32-Castagnoli of the first
// 13 header bytes followed by the payload. All integers are little-endian.
//
// Small or incompressible payloads are sent uncompressed regardless of the
// requested compression.
package frame
