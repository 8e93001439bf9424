package dataset

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/ulikunitz/xz"
)

// decompress unwraps gzip and xz payloads according to the file extension.
// Other data is returned unchanged.
func decompress(path string, data []byte) ([]byte, error) {
	var (
		r   io.Reader
		err error
	)
	switch {
	case strings.HasSuffix(path, ".gz"):
		var gz *gzip.Reader
		gz, err = gzip.NewReader(bytes.NewReader(data))
		if err == nil {
			defer gz.Close()
			r = gz
		}
	case strings.HasSuffix(path, ".xz"):
		r, err = xz.NewReader(bytes.NewReader(data))
	default:
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed %s: %w", path, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	return buf.Bytes(), nil
}
