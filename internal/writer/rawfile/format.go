// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package rawfile

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ManuGH/camrec/internal/capture"
)

// Magic identifies the container version in the header line.
const Magic = "camrec/1"

// Extension is the artifact file extension.
const Extension = ".camrec"

const recordHeaderSize = 8 + 8 + 4

var ErrBadMagic = errors.New("rawfile: not a camrec container")

// Header is the first line of a container, JSON encoded.
type Header struct {
	Magic       string              `json:"magic"`
	ID          string              `json:"id"`
	Width       int                 `json:"width"`
	Height      int                 `json:"height"`
	FrameRate   float64             `json:"frame_rate"`
	Format      capture.PixelFormat `json:"pixel_format"`
	Orientation capture.Orientation `json:"orientation"`
	Rotation    int                 `json:"rotation"`
	StartedAt   time.Time           `json:"started_at"`
}

// Properties returns the stream format recorded in h.
func (h Header) Properties() capture.StreamProperties {
	return capture.StreamProperties{FrameRate: h.FrameRate, Width: h.Width, Height: h.Height, Format: h.Format}
}

func writeHeader(w io.Writer, h Header) error {
	h.Magic = Magic
	b, err := json.Marshal(h)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// writeRecord writes seq, pts and len as big-endian followed by the payload.
func writeRecord(w io.Writer, f capture.Frame) (int, error) {
	var hdr [recordHeaderSize]byte
	binary.BigEndian.PutUint64(hdr[0:8], f.Seq)
	binary.BigEndian.PutUint64(hdr[8:16], uint64(f.PTS))
	binary.BigEndian.PutUint32(hdr[16:20], uint32(len(f.Data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, err
	}
	n, err := w.Write(f.Data)
	return recordHeaderSize + n, err
}

// Reader decodes a container.
type Reader struct {
	Header Header
	r      *bufio.Reader
	c      io.Closer
}

// OpenReader opens the container at path and reads its header.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.c = f
	return r, nil
}

// NewReader reads the header from src.
func NewReader(src io.Reader) (*Reader, error) {
	br := bufio.NewReader(src)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("rawfile: read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadMagic, err)
	}
	if h.Magic != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadMagic, h.Magic)
	}
	return &Reader{Header: h, r: br}, nil
}

// Next returns the next frame or io.EOF after the last one.
func (r *Reader) Next() (capture.Frame, error) {
	var hdr [recordHeaderSize]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return capture.Frame{}, fmt.Errorf("rawfile: truncated record header: %w", err)
		}
		return capture.Frame{}, err
	}
	n := binary.BigEndian.Uint32(hdr[16:20])
	data := make([]byte, n)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return capture.Frame{}, fmt.Errorf("rawfile: truncated record: %w", err)
	}
	return capture.Frame{
		Seq:         binary.BigEndian.Uint64(hdr[0:8]),
		PTS:         time.Duration(binary.BigEndian.Uint64(hdr[8:16])),
		Format:      r.Header.Format,
		Width:       r.Header.Width,
		Height:      r.Header.Height,
		Orientation: r.Header.Orientation,
		Data:        data,
	}, nil
}

// Close closes the underlying file when the reader was opened by path.
func (r *Reader) Close() error {
	if r.c == nil {
		return nil
	}
	return r.c.Close()
}
