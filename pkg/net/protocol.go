// Copyright 2020 Ipalfish, Inc.
// Copyright 2022 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package net

// ParseLengthEncodedInt decodes a length-encoded integer. n is 0 when b is too
// short to hold the integer its first byte announces.
func ParseLengthEncodedInt(b []byte) (num uint64, isNull bool, n int) {
	if len(b) == 0 {
		return 0, false, 0
	}
	switch b[0] {
	// 251: NULL
	case 0xfb:
		return 0, true, 1
	// 252: value of following 2
	case 0xfc:
		if len(b) < 3 {
			return 0, false, 0
		}
		return uint64(b[1]) | uint64(b[2])<<8, false, 3
	// 253: value of following 3
	case 0xfd:
		if len(b) < 4 {
			return 0, false, 0
		}
		return uint64(b[1]) | uint64(b[2])<<8 | uint64(b[3])<<16, false, 4
	// 254: value of following 8
	case 0xfe:
		if len(b) < 9 {
			return 0, false, 0
		}
		num = uint64(b[1]) | uint64(b[2])<<8 | uint64(b[3])<<16 |
			uint64(b[4])<<24 | uint64(b[5])<<32 | uint64(b[6])<<40 |
			uint64(b[7])<<48 | uint64(b[8])<<56
		return num, false, 9
	}
	// 0-250: value of first byte
	return uint64(b[0]), false, 1
}

func DumpLengthEncodedInt(buffer []byte, n uint64) []byte {
	switch {
	case n <= 250:
		return append(buffer, byte(n))
	case n <= 0xffff:
		return append(buffer, 0xfc, byte(n), byte(n>>8))
	case n <= 0xffffff:
		return append(buffer, 0xfd, byte(n), byte(n>>8), byte(n>>16))
	}
	return append(buffer, 0xfe, byte(n), byte(n>>8), byte(n>>16), byte(n>>24),
		byte(n>>32), byte(n>>40), byte(n>>48), byte(n>>56))
}

func DumpLengthEncodedString(buffer []byte, s []byte) []byte {
	buffer = DumpLengthEncodedInt(buffer, uint64(len(s)))
	return append(buffer, s...)
}

func DumpUint16(buffer []byte, n uint16) []byte {
	return append(buffer, byte(n), byte(n>>8))
}
