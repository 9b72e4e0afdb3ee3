package protocol

const (
	// FrameLength is the size of every notification frame emitted by the sensor.
	FrameLength = 20

	SyncByte         byte = 0x55
	FrameTypeMotion  byte = 0x61
	FrameTypeGeneric byte = 0x71
)

// Frame is a complete notification frame with a validated two-byte header.
type Frame [FrameLength]byte

// Type returns the frame type marker.
func (f *Frame) Type() byte {
	return f[1]
}

func isFrameType(b byte) bool {
	return b == FrameTypeMotion || b == FrameTypeGeneric
}

// Assembler rebuilds frames from notification payloads. The transport gives no guarantee that a
// notification carries exactly one frame, so bytes are accumulated until a full frame is present.
// There is no length prefix or checksum: a stream is resynchronized by dropping leading bytes
// until a sync byte followed by a known frame type is found.
//
// An Assembler is not safe for concurrent use; notifications for one sensor arrive in order on a
// single goroutine.
type Assembler struct {
	buffer [FrameLength]byte
	length int
}

// Write consumes a chunk of notification bytes and calls emit for every frame completed by it,
// in arrival order. The frame passed to emit is only valid for the duration of the call.
func (a *Assembler) Write(p []byte, emit func(*Frame)) {
	for _, b := range p {
		a.buffer[a.length] = b
		a.length++
		switch {
		case a.length == 1 && b != SyncByte:
			a.length = 0
		case a.length == 2 && !isFrameType(b):
			// Shift the sync window by one. The dropped byte was a sync byte, so the type
			// candidate may itself start a frame.
			a.buffer[0] = b
			a.length = 1
			if b != SyncByte {
				a.length = 0
			}
		case a.length == FrameLength:
			frame := Frame(a.buffer)
			a.length = 0
			emit(&frame)
		}
	}
}

// Pending returns the number of bytes accumulated toward the next frame.
func (a *Assembler) Pending() int {
	return a.length
}

// Reset discards a partially accumulated frame.
func (a *Assembler) Reset() {
	a.length = 0
}
