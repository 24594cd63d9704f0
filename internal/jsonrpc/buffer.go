package jsonrpc

import (
	"fmt"
	"strings"
)

const (
	cr byte = '\r'
	lf byte = '\n'
)

// MessageBuffer accumulates raw chunks read from a stream and extracts
// header blocks and bodies from them. It is not safe for concurrent use;
// a reader owns exactly one buffer.
type MessageBuffer struct {
	chunks      [][]byte
	totalLength int
}

// NewMessageBuffer creates an empty buffer.
func NewMessageBuffer() *MessageBuffer {
	return &MessageBuffer{}
}

// Append adds a chunk. The buffer keeps a reference to chunk, so callers
// must not modify it afterwards.
func (b *MessageBuffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.chunks = append(b.chunks, chunk)
	b.totalLength += len(chunk)
}

// Len returns the number of buffered bytes.
func (b *MessageBuffer) Len() int {
	return b.totalLength
}

// TryReadHeaders consumes a header block terminated by an empty line.
// It returns a nil map and consumes nothing when the terminator is not
// buffered yet. A header line without ':' returns ErrMalformedHeader.
func (b *MessageBuffer) TryReadHeaders(lowerCaseKeys bool) (map[string]string, error) {
	if len(b.chunks) == 0 {
		return nil, nil
	}

	// 0: in line, 1: CR, 2: CRLF, 3: CRLFCR, 4: CRLFCRLF
	state := 0
	chunkIndex := 0
	offset := 0
	chunkBytesRead := 0
row:
	for chunkIndex < len(b.chunks) {
		chunk := b.chunks[chunkIndex]
		offset = 0
		for offset < len(chunk) {
			switch chunk[offset] {
			case cr:
				switch state {
				case 0:
					state = 1
				case 2:
					state = 3
				default:
					state = 0
				}
			case lf:
				switch state {
				case 1:
					state = 2
				case 3:
					state = 4
					offset++
					break row
				default:
					state = 0
				}
			default:
				state = 0
			}
			offset++
		}
		chunkBytesRead += len(chunk)
		chunkIndex++
	}

	if state != 4 {
		return nil, nil
	}

	// The block ends with two CRLFs, so the split yields two trailing
	// empty lines.
	block := b.read(chunkBytesRead + offset)
	lines := strings.Split(string(block), "\r\n")
	headers := make(map[string]string, len(lines))
	for i := 0; i < len(lines)-2; i++ {
		line := lines[i]
		idx := strings.IndexByte(line, ':')
		if idx == -1 {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		key := line[:idx]
		if lowerCaseKeys {
			key = strings.ToLower(key)
		}
		headers[key] = strings.TrimSpace(line[idx+1:])
	}
	return headers, nil
}

// TryReadBody consumes length bytes if they are all buffered.
func (b *MessageBuffer) TryReadBody(length int) ([]byte, bool) {
	if b.totalLength < length {
		return nil, false
	}
	return b.read(length), true
}

func (b *MessageBuffer) read(byteCount int) []byte {
	if byteCount == 0 {
		return []byte{}
	}
	if byteCount > b.totalLength {
		panic("jsonrpc: cannot read so many bytes")
	}

	first := b.chunks[0]
	if len(first) == byteCount {
		b.chunks = b.chunks[1:]
		b.totalLength -= byteCount
		return first
	}
	if len(first) > byteCount {
		b.chunks[0] = first[byteCount:]
		b.totalLength -= byteCount
		return first[:byteCount:byteCount]
	}

	result := make([]byte, 0, byteCount)
	for byteCount > 0 {
		chunk := b.chunks[0]
		if len(chunk) > byteCount {
			result = append(result, chunk[:byteCount]...)
			b.chunks[0] = chunk[byteCount:]
			b.totalLength -= byteCount
			byteCount = 0
		} else {
			result = append(result, chunk...)
			b.chunks = b.chunks[1:]
			b.totalLength -= len(chunk)
			byteCount -= len(chunk)
		}
	}
	return result
}
