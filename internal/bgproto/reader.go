package bgproto

import (
	"fmt"

	"github.com/smallnest/ringbuffer"
)

// maxPayload is the largest payload the 11-bit length field can declare.
const maxPayload = 0x07ff

// FrameReader incrementally assembles frames from a byte stream with no
// built-in message boundaries. It tolerates being fed zero, one or a few
// bytes per call and keeps partial state across calls. A FrameReader is not
// safe for concurrent use; the receiver loop is its only caller.
type FrameReader struct {
	header  [HeaderSize]byte
	got     int // header bytes accumulated so far
	need    int // payload length declared by the header, -1 until known
	payload *ringbuffer.RingBuffer
}

// NewFrameReader returns a reader ready to consume a byte stream.
func NewFrameReader() *FrameReader {
	return &FrameReader{
		need:    -1,
		payload: ringbuffer.New(maxPayload + 1),
	}
}

// FeedByte consumes one byte. When the byte completes a frame, the full
// frame (header plus payload) is returned and internal state resets for the
// next one; otherwise it returns nil.
func (r *FrameReader) FeedByte(b byte) []byte {
	if r.got < HeaderSize {
		r.header[r.got] = b
		r.got++
		if r.got == HeaderSize {
			r.need = int(r.header[0]&0x07)<<8 | int(r.header[1])
		}
		if r.got < HeaderSize || r.need > 0 {
			return nil
		}
		return r.emit()
	}

	// Payload byte. The buffer is sized for the maximum declarable
	// payload, so this write cannot fail.
	_ = r.payload.WriteByte(b)
	if r.payload.Length() < r.need {
		return nil
	}
	return r.emit()
}

// Feed consumes a chunk of bytes and returns every frame completed by it,
// in arrival order.
func (r *FrameReader) Feed(p []byte) [][]byte {
	var frames [][]byte
	for _, b := range p {
		if f := r.FeedByte(b); f != nil {
			frames = append(frames, f)
		}
	}
	return frames
}

// emit copies out the completed frame and resets accumulation state.
func (r *FrameReader) emit() []byte {
	out := make([]byte, HeaderSize+r.need)
	copy(out, r.header[:])
	if r.need > 0 {
		if _, err := r.payload.Read(out[HeaderSize:]); err != nil {
			// Cannot happen: Length() == need was just checked.
			panic(fmt.Sprintf("bgproto: frame buffer underrun: %v", err))
		}
	}
	r.got = 0
	r.need = -1
	r.payload.Reset()
	return out
}
