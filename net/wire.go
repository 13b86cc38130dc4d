package net

import (
	"encoding/json"
	"fmt"
	"io"
)

// Wire framing: every message is a 2-byte big-endian length prefix followed
// by a JSON payload. Stream sockets coalesce and fragment arbitrarily, so one
// read syscall is never assumed to be one message; ReadFrame always returns
// exactly one complete logical message.

// MaxFrameSize bounds a single encoded message.
const MaxFrameSize = 64 * 1024

// WriteFrame encodes v as JSON and writes it as one length-prefixed frame.
func WriteFrame(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if len(data) >= MaxFrameSize {
		return fmt.Errorf("message too large: %d bytes", len(data))
	}
	buf := make([]byte, 2+len(data))
	buf[0], buf[1] = byte(len(data)>>8), byte(len(data))
	copy(buf[2:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads exactly one frame and decodes its JSON payload into v.
func ReadFrame(r io.Reader, v interface{}) error {
	lenBuf := make([]byte, 2)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return err
	}
	length := int(lenBuf[0])<<8 | int(lenBuf[1])
	if length == 0 {
		return fmt.Errorf("empty frame")
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("read frame body: %w", err)
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
