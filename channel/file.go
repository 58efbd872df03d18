package channel

import (
	"bytes"
	"errors"
	"io"

	"github.com/execfabric/execfabric/xerr"
)

// asEOF maps a clean-close ChannelClosed to io.EOF, the convention
// io.Reader callers expect; a RemoteError (or anything else) passes
// through unchanged so the caller still sees what the peer reported.
func asEOF(err error) error {
	var closed *xerr.ChannelClosed
	if errors.As(err, &closed) {
		return io.EOF
	}
	return err
}

// FileWriter adapts a Channel to io.Writer, sending each Write call's
// bytes as one CHANNEL_DATA item, ported from gateway_base.py's
// ChannelFileWrite (spec §4.5's makefile("w")).
type FileWriter struct {
	ch         *Channel
	proxyClose bool
}

// MakeFileWriter returns a FileWriter over ch. If proxyClose, Close also
// closes ch.
func (c *Channel) MakeFileWriter(proxyClose bool) *FileWriter {
	return &FileWriter{ch: c, proxyClose: proxyClose}
}

func (w *FileWriter) Write(p []byte) (int, error) {
	if err := w.ch.Send(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the writer; if constructed with proxyClose it also closes
// the underlying Channel.
func (w *FileWriter) Close() error {
	if w.proxyClose {
		return w.ch.Close("")
	}
	return nil
}

// FileReader adapts a Channel to a line-buffered io.Reader, ported from
// ChannelFileRead: each received item is a text chunk, buffered and
// re-sliced to satisfy arbitrary-sized Read calls and a ReadLine helper.
type FileReader struct {
	ch         *Channel
	proxyClose bool
	buf        bytes.Buffer
}

// MakeFileReader returns a FileReader over ch.
func (c *Channel) MakeFileReader(proxyClose bool) *FileReader {
	return &FileReader{ch: c, proxyClose: proxyClose}
}

func (r *FileReader) Read(p []byte) (int, error) {
	for r.buf.Len() == 0 {
		item, err := r.ch.Receive(0)
		if err != nil {
			return 0, asEOF(err)
		}
		s, ok := item.(string)
		if !ok {
			return 0, xerr.NewLoadError("channel file expected string item, got %T", item)
		}
		r.buf.WriteString(s)
	}
	return r.buf.Read(p)
}

// ReadLine reads up to and including the next '\n', or returns io.EOF with
// any trailing partial line once the channel closes.
func (r *FileReader) ReadLine() (string, error) {
	for {
		if idx := bytes.IndexByte(r.buf.Bytes(), '\n'); idx >= 0 {
			line := make([]byte, idx+1)
			_, _ = r.buf.Read(line)
			return string(line), nil
		}
		item, err := r.ch.Receive(0)
		if err != nil {
			if r.buf.Len() > 0 {
				rest := r.buf.String()
				r.buf.Reset()
				return rest, io.EOF
			}
			return "", asEOF(err)
		}
		s, ok := item.(string)
		if !ok {
			return "", xerr.NewLoadError("channel file expected string item, got %T", item)
		}
		r.buf.WriteString(s)
	}
}

// Close closes the reader; if constructed with proxyClose it also closes
// the underlying Channel.
func (r *FileReader) Close() error {
	if r.proxyClose {
		return r.ch.Close("")
	}
	return nil
}
