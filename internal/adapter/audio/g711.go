// Package audio implements playback sinks and the output recorder.
package audio

import "wingman/internal/domain"

// G.711 decoding. Narrow-band sessions deliver 8 kHz mu-law or A-law bytes.

const (
	g711SignBit   = 0x80
	g711QuantMask = 0x0F
	g711SegMask   = 0x70
	g711SegShift  = 4
	mulawBias     = 0x84
)

var (
	mulawTable [256]int16
	alawTable  [256]int16
)

func init() {
	for i := 0; i < 256; i++ {
		mulawTable[i] = decodeMulaw(byte(i))
		alawTable[i] = decodeAlaw(byte(i))
	}
}

func decodeMulaw(u byte) int16 {
	u = ^u
	t := (int(u&g711QuantMask) << 3) + mulawBias
	t <<= (u & g711SegMask) >> g711SegShift
	if u&g711SignBit != 0 {
		return int16(mulawBias - t)
	}
	return int16(t - mulawBias)
}

func decodeAlaw(a byte) int16 {
	a ^= 0x55
	t := int(a&g711QuantMask) << 4
	switch seg := (a & g711SegMask) >> g711SegShift; seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if a&g711SignBit != 0 {
		return int16(t)
	}
	return int16(-t)
}

// ToPCM16 converts a transport frame of codec to little-endian 16-bit PCM.
// Wide-band frames already are PCM16 and are returned unchanged.
func ToPCM16(codec domain.Codec, frame []byte) []byte {
	var table *[256]int16
	switch codec {
	case domain.CodecPCMU:
		table = &mulawTable
	case domain.CodecPCMA:
		table = &alawTable
	default:
		return frame
	}
	pcm := make([]byte, len(frame)*2)
	for i, b := range frame {
		sample := table[b]
		pcm[i*2] = byte(sample)
		pcm[i*2+1] = byte(sample >> 8)
	}
	return pcm
}
