package pathtrash

import (
	"fmt"

	"github.com/mirrorlabs/dirmirror/pkg/util"
)

// Format selects the archive container and compression for trashed files.
type Format int

const (
	// FormatTarGz is a gzip-compressed tar archive.
	FormatTarGz Format = iota
	// FormatTarZst is a zstandard-compressed tar archive.
	FormatTarZst
)

var formatToString = map[Format]string{
	FormatTarGz:  "tar.gz",
	FormatTarZst: "tar.zst",
}

var stringToFormat = util.InvertMap(formatToString)

// String returns the canonical name of the format.
func (f Format) String() string {
	if s, ok := formatToString[f]; ok {
		return s
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Ext returns the file extension for archives of this format, without a
// leading dot.
func (f Format) Ext() string {
	return f.String()
}

// ParseFormat converts a config string into a Format.
func ParseFormat(s string) (Format, error) {
	if f, ok := stringToFormat[s]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("unknown trash archive format %q (valid: tar.gz, tar.zst)", s)
}
