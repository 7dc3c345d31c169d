package container

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
)

// buildSingleFileArchive wraps data in a tar stream holding one regular file named name.
func buildSingleFileArchive(name string, data []byte, mode int64) ([]byte, error) {
	if name == "" || name == "." || name == "/" {
		return nil, fmt.Errorf("container: invalid file name %q", name)
	}
	if mode == 0 {
		mode = 0o644
	}
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:     name,
		Mode:     mode,
		Size:     int64(len(data)),
		ModTime:  time.Now(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("container: write tar header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return nil, fmt.Errorf("container: write tar body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("container: close tar: %w", err)
	}
	return buf.Bytes(), nil
}

// extractSingleFile returns the contents of the first regular file in a tar stream.
func extractSingleFile(r io.Reader) ([]byte, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, ErrFileNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("container: read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("container: read %s from tar: %w", hdr.Name, err)
		}
		return data, nil
	}
}
