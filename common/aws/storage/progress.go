package storage

import (
	"bytes"
	"io"
)

// progressReader reports the read offset after every read. Seeking is supported because the SDK may rewind the body
// to compute the payload hash before sending it.
type progressReader struct {
	reader   *bytes.Reader
	size     int64
	progress func(written int64)
}

func newProgressReader(data []byte, progress func(written int64)) io.ReadSeeker {
	return &progressReader{bytes.NewReader(data), int64(len(data)), progress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.reader.Read(b)
	if n > 0 && p.progress != nil {
		p.progress(p.size - int64(p.reader.Len()))
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	return p.reader.Seek(offset, whence)
}
