// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package receiver

// MaxPayload is the largest frame the radio can deliver.
const MaxPayload = 255

const hexDigits = "0123456789ABCDEF"

// HexView is the uppercase hex rendering of a payload, two characters per byte with the most
// significant nibble first, followed by a 0 terminator. Its fixed array holds the rendering of
// a MaxPayload frame.
type HexView struct {
	buf [2*MaxPayload + 1]byte
	n   int // number of hex characters, excluding the terminator
}

// Render replaces the view's contents with the rendering of p.
func (v *HexView) Render(p []byte) error {
	if len(p) > MaxPayload {
		return ErrPayloadTooLong
	}
	for i, b := range p {
		v.buf[2*i] = hexDigits[b>>4]
		v.buf[2*i+1] = hexDigits[b&0x0f]
	}
	v.n = 2 * len(p)
	v.buf[v.n] = 0
	return nil
}

// Len returns the number of hex characters, which is twice the payload length.
func (v *HexView) Len() int { return v.n }

// Bytes returns the hex characters without the terminator. The slice aliases the view.
func (v *HexView) Bytes() []byte { return v.buf[:v.n] }

// Terminated returns the hex characters followed by the 0 terminator.
func (v *HexView) Terminated() []byte { return v.buf[:v.n+1] }

func (v *HexView) String() string { return string(v.buf[:v.n]) }

func (v *HexView) reset() {
	v.n = 0
	v.buf[0] = 0
}
