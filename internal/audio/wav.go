package audio

import (
	"encoding/binary"
)

// wavHeaderSize is the size of a canonical PCM WAV header
const wavHeaderSize = 44

// wavHeader represents a canonical PCM WAV header
type wavHeader struct {
	// RIFF chunk descriptor
	ChunkID   [4]byte // "RIFF"
	ChunkSize uint32  // 36 + data size
	Format    [4]byte // "WAVE"

	// "fmt " sub-chunk
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * 2
	BlockAlign    uint16 // NumChannels * 2
	BitsPerSample uint16

	// "data" sub-chunk
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

func newWAVHeader(format Format, dataSize int) wavHeader {
	const bitsPerSample = 16
	return wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + dataSize),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(format.Channels),
		SampleRate:    uint32(format.SampleRate),
		ByteRate:      uint32(format.SampleRate * format.Channels * bitsPerSample / 8),
		BlockAlign:    uint16(format.Channels * bitsPerSample / 8),
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(dataSize),
	}
}

func (h wavHeader) bytes() []byte {
	b := make([]byte, wavHeaderSize)

	copy(b[0:4], h.ChunkID[:])
	binary.LittleEndian.PutUint32(b[4:8], h.ChunkSize)
	copy(b[8:12], h.Format[:])

	copy(b[12:16], h.Subchunk1ID[:])
	binary.LittleEndian.PutUint32(b[16:20], h.Subchunk1Size)
	binary.LittleEndian.PutUint16(b[20:22], h.AudioFormat)
	binary.LittleEndian.PutUint16(b[22:24], h.NumChannels)
	binary.LittleEndian.PutUint32(b[24:28], h.SampleRate)
	binary.LittleEndian.PutUint32(b[28:32], h.ByteRate)
	binary.LittleEndian.PutUint16(b[32:34], h.BlockAlign)
	binary.LittleEndian.PutUint16(b[34:36], h.BitsPerSample)

	copy(b[36:40], h.Subchunk2ID[:])
	binary.LittleEndian.PutUint32(b[40:44], h.Subchunk2Size)

	return b
}

// EncodeWAV wraps raw PCM16 samples in a WAV container
func EncodeWAV(pcm []byte, format Format) []byte {
	out := make([]byte, 0, wavHeaderSize+len(pcm))
	out = append(out, newWAVHeader(format, len(pcm)).bytes()...)
	return append(out, pcm...)
}

// Samples decodes PCM16 little-endian bytes. A trailing odd byte is ignored.
func Samples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return samples
}
