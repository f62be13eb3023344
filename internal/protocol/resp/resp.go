package resp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the frame type by its leading byte.
type Kind byte

const (
	KindSimple  Kind = '+'
	KindError   Kind = '-'
	KindInteger Kind = ':'
	KindBulk    Kind = '$'
	KindArray   Kind = '*'
	// KindInline is a prefix-less command line.
	KindInline Kind = 0
)

var (
	ErrLineTooLong     = errors.New("resp: line too long")
	ErrBulkTooLarge    = errors.New("resp: bulk string too large")
	ErrArrayTooLarge   = errors.New("resp: array too large")
	ErrMissingCRLF     = errors.New("resp: missing CRLF terminator")
	ErrLineBreak       = errors.New("resp: line break in single-line frame")
	ErrInvalidLength   = errors.New("resp: invalid length")
	ErrInvalidInteger  = errors.New("resp: invalid integer")
	ErrUnsupportedKind = errors.New("resp: unsupported frame kind")
)

// Frame is one decoded wire unit.
type Frame struct {
	Kind  Kind
	Text  string
	Int   int64
	Null  bool
	Items []Frame
}

// Simple builds an inline status frame.
func Simple(text string) Frame { return Frame{Kind: KindSimple, Text: text} }

// Bulk builds a length-prefixed text frame.
func Bulk(text string) Frame { return Frame{Kind: KindBulk, Text: text} }

// Inline builds a prefix-less command line frame.
func Inline(text string) Frame { return Frame{Kind: KindInline, Text: text} }

// preallocItems caps the array capacity reserved up front from a declared count.
const preallocItems = 64

// Limits constrains decode memory use. A zero field disables that check.
type Limits struct {
	MaxLineBytes  int
	MaxBulkBytes  int
	MaxArrayItems int
}

func DefaultLimits() Limits {
	return Limits{
		MaxLineBytes:  64 * 1024,
		MaxBulkBytes:  8 * 1024 * 1024,
		MaxArrayItems: 1024,
	}
}

// Reader decodes frames from a buffered byte stream.
type Reader struct {
	br     *bufio.Reader
	limits Limits
}

func NewReader(r io.Reader, limits Limits) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{br: br, limits: limits}
}

// ReadFrame reads exactly one frame.
func (r *Reader) ReadFrame() (Frame, error) {
	line, err := r.readLine()
	if err != nil {
		return Frame{}, err
	}
	if line == "" {
		return Frame{Kind: KindInline}, nil
	}
	switch Kind(line[0]) {
	case KindSimple, KindError:
		return Frame{Kind: Kind(line[0]), Text: line[1:]}, nil
	case KindInteger:
		n, err := parseInt(line[1:])
		if err != nil {
			return Frame{}, err
		}
		return Frame{Kind: KindInteger, Int: n}, nil
	case KindBulk:
		return r.readBulk(line[1:])
	case KindArray:
		return r.readArray(line[1:])
	default:
		return Frame{Kind: KindInline, Text: line}, nil
	}
}

func (r *Reader) readBulk(header string) (Frame, error) {
	n, err := parseInt(header)
	if err != nil {
		return Frame{}, err
	}
	if n == -1 {
		return Frame{Kind: KindBulk, Null: true}, nil
	}
	if n < 0 {
		return Frame{}, ErrInvalidLength
	}
	if r.limits.MaxBulkBytes > 0 && n > int64(r.limits.MaxBulkBytes) {
		return Frame{}, ErrBulkTooLarge
	}
	if n > int64(math.MaxInt32)-2 {
		return Frame{}, ErrBulkTooLarge
	}
	if r.limits.MaxBulkBytes <= 0 {
		return r.readBulkUnbounded(n)
	}
	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return Frame{}, err
	}
	if buf[n] != '\r' || buf[n+1] != '\n' {
		return Frame{}, ErrMissingCRLF
	}
	return Frame{Kind: KindBulk, Text: string(buf[:n])}, nil
}

// readBulkUnbounded grows the buffer as bytes arrive so a declared length
// alone never drives the allocation.
func (r *Reader) readBulkUnbounded(n int64) (Frame, error) {
	var buf bytes.Buffer
	copied, err := io.CopyN(&buf, r.br, n+2)
	if err != nil {
		if errors.Is(err, io.EOF) && copied > 0 {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}
	b := buf.Bytes()
	if b[n] != '\r' || b[n+1] != '\n' {
		return Frame{}, ErrMissingCRLF
	}
	return Frame{Kind: KindBulk, Text: string(b[:n])}, nil
}

func (r *Reader) readArray(header string) (Frame, error) {
	n, err := parseInt(header)
	if err != nil {
		return Frame{}, err
	}
	if n == -1 {
		return Frame{Kind: KindArray, Null: true}, nil
	}
	if n < 0 {
		return Frame{}, ErrInvalidLength
	}
	if r.limits.MaxArrayItems > 0 && n > int64(r.limits.MaxArrayItems) {
		return Frame{}, ErrArrayTooLarge
	}
	items := make([]Frame, 0, min(n, int64(preallocItems)))
	for i := int64(0); i < n; i++ {
		item, err := r.ReadFrame()
		if err != nil {
			return Frame{}, err
		}
		items = append(items, item)
	}
	return Frame{Kind: KindArray, Items: items}, nil
}

func (r *Reader) readLine() (string, error) {
	var sb strings.Builder
	for {
		chunk, err := r.br.ReadSlice('\n')
		if r.limits.MaxLineBytes > 0 && sb.Len()+len(chunk) > r.limits.MaxLineBytes+2 {
			return "", ErrLineTooLong
		}
		sb.Write(chunk)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && sb.Len() > 0 {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	line := sb.String()
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return "", ErrMissingCRLF
	}
	return line[:len(line)-2], nil
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInteger, s)
	}
	return n, nil
}

// Writer encodes frames onto a byte stream. Callers must Flush.
type Writer struct {
	bw *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriterSize(w, 1024)
	}
	return &Writer{bw: bw}
}

// WriteFrame buffers one complete frame.
func (w *Writer) WriteFrame(f Frame) error {
	switch f.Kind {
	case KindInline:
		if strings.ContainsAny(f.Text, "\r\n") {
			return ErrLineBreak
		}
		return w.writeLine("", f.Text)
	case KindSimple, KindError:
		if strings.ContainsAny(f.Text, "\r\n") {
			return ErrLineBreak
		}
		return w.writeLine(string(f.Kind), f.Text)
	case KindInteger:
		return w.writeLine(":", strconv.FormatInt(f.Int, 10))
	case KindBulk:
		if f.Null {
			return w.writeLine("$", "-1")
		}
		if err := w.writeLine("$", strconv.Itoa(len(f.Text))); err != nil {
			return err
		}
		return w.writeLine("", f.Text)
	case KindArray:
		if f.Null {
			return w.writeLine("*", "-1")
		}
		if err := w.writeLine("*", strconv.Itoa(len(f.Items))); err != nil {
			return err
		}
		for _, item := range f.Items {
			if err := w.WriteFrame(item); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedKind, byte(f.Kind))
	}
}

func (w *Writer) writeLine(prefix, body string) error {
	if _, err := w.bw.WriteString(prefix); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(body); err != nil {
		return err
	}
	_, err := w.bw.WriteString("\r\n")
	return err
}

func (w *Writer) Flush() error {
	return w.bw.Flush()
}
