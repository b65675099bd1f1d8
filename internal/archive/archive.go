// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package archive packs build artifacts into zip or zstd-compressed tar
// files.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Archive formats.
const (
	Zip    = "zip"
	TarZst = "tar.zst"
)

// File is one archive member.
type File struct {
	Name string // Slash path inside the archive
	Path string // File on disk
}

// FormatOf returns the archive format selected by the extension of name.
func FormatOf(name string) (string, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return Zip, true
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return TarZst, true
	}
	return "", false
}

// Write packs files into the archive dst. The archive appears at dst only
// once it is complete.
func Write(dst string, files []File) (err error) {
	format, ok := FormatOf(dst)
	if !ok {
		return fmt.Errorf("%s: unknown archive format (want .zip or .tar.zst)", dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	switch format {
	case Zip:
		err = writeZip(f, files)
	default:
		err = writeTarZst(f, files)
	}
	if err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), dst)
}

func writeZip(w io.Writer, files []File) error {
	zw := zip.NewWriter(w)
	for _, file := range files {
		info, err := os.Stat(file.Path)
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = file.Name
		hdr.Method = zip.Deflate
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if err := copyFile(fw, file.Path); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeTarZst(w io.Writer, files []File) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(enc)
	for _, file := range files {
		info, err := os.Stat(file.Path)
		if err != nil {
			enc.Close()
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			enc.Close()
			return err
		}
		hdr.Name = file.Name
		if err := tw.WriteHeader(hdr); err != nil {
			enc.Close()
			return err
		}
		if err := copyFile(tw, file.Path); err != nil {
			enc.Close()
			return err
		}
	}
	if err := tw.Close(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
