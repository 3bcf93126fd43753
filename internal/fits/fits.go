// Package fits reads simple FITS images: a primary HDU with a
// two-dimensional data array, which covers calibrated survey imagery and
// the output of common stacking tools. Extensions, tables, and compressed
// tiles are out of scope.
package fits

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/starfield-go/starfield/internal/grid"
	"github.com/starfield-go/starfield/internal/wcs"
)

const (
	blockSize = 2880
	cardSize  = 80
)

// Image is a decoded primary HDU.
type Image struct {
	// Header holds the raw card values keyed by keyword, with string
	// values unquoted and comments stripped.
	Header map[string]string

	// Data is the image array with physical values applied
	// (BSCALE * raw + BZERO).
	Data *grid.Grid
}

// Open reads a FITS file from disk.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FITS file: %w", err)
	}
	defer f.Close()

	img, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return img, nil
}

// Read decodes the primary HDU from r.
func Read(r io.Reader) (*Image, error) {
	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	if simple := header["SIMPLE"]; simple != "T" {
		return nil, fmt.Errorf("not a standard FITS file (SIMPLE = %q)", simple)
	}
	bitpix, err := headerInt(header, "BITPIX")
	if err != nil {
		return nil, err
	}
	naxis, err := headerInt(header, "NAXIS")
	if err != nil {
		return nil, err
	}
	if naxis != 2 {
		return nil, fmt.Errorf("only 2-dimensional images are supported, got NAXIS = %d", naxis)
	}
	width, err := headerInt(header, "NAXIS1")
	if err != nil {
		return nil, err
	}
	height, err := headerInt(header, "NAXIS2")
	if err != nil {
		return nil, err
	}

	bscale := 1.0
	bzero := 0.0
	if v, ok := header["BSCALE"]; ok {
		if bscale, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid BSCALE %q: %w", v, err)
		}
	}
	if v, ok := header["BZERO"]; ok {
		if bzero, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid BZERO %q: %w", v, err)
		}
	}

	data, err := readData(r, bitpix, width, height, bscale, bzero)
	if err != nil {
		return nil, err
	}
	return &Image{Header: header, Data: data}, nil
}

// Frame builds a coordinate frame from the image's WCS keywords.
func (img *Image) Frame() (*wcs.Frame, error) {
	return wcs.FromHeader(img.Header)
}

// readHeader consumes header blocks up to and including the one holding
// the END card.
func readHeader(r io.Reader) (map[string]string, error) {
	header := make(map[string]string)
	block := make([]byte, blockSize)
	for {
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, fmt.Errorf("failed to read header block: %w", err)
		}
		for off := 0; off < blockSize; off += cardSize {
			key, value, end := parseCard(block[off : off+cardSize])
			if end {
				return header, nil
			}
			if key != "" {
				header[key] = value
			}
		}
	}
}

// parseCard splits one 80-byte card into keyword and value. Comment-only
// cards (COMMENT, HISTORY, blank keyword) yield an empty key.
func parseCard(card []byte) (key, value string, end bool) {
	key = strings.TrimRight(string(card[:8]), " ")
	if key == "END" {
		return "", "", true
	}
	if key == "" || key == "COMMENT" || key == "HISTORY" {
		return "", "", false
	}
	if card[8] != '=' {
		return "", "", false
	}

	raw := string(card[10:])
	if s := strings.TrimLeft(raw, " "); strings.HasPrefix(s, "'") {
		// Quoted string: runs to the closing quote, with '' escaping a
		// literal quote. A slash inside the quotes is not a comment.
		var sb strings.Builder
		rest := s[1:]
		for {
			i := strings.IndexByte(rest, '\'')
			if i < 0 {
				sb.WriteString(rest)
				break
			}
			sb.WriteString(rest[:i])
			if i+1 < len(rest) && rest[i+1] == '\'' {
				sb.WriteByte('\'')
				rest = rest[i+2:]
				continue
			}
			break
		}
		return key, strings.TrimRight(sb.String(), " "), false
	}

	if i := strings.IndexByte(raw, '/'); i >= 0 {
		raw = raw[:i]
	}
	return key, strings.TrimSpace(raw), false
}

func headerInt(header map[string]string, key string) (int, error) {
	v, ok := header[key]
	if !ok {
		return 0, fmt.Errorf("missing required keyword %s", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return n, nil
}

// readData decodes the big-endian data array into physical values. The
// first FITS axis varies fastest, which maps directly onto the grid's
// row-major layout.
func readData(r io.Reader, bitpix, width, height int, bscale, bzero float64) (*grid.Grid, error) {
	bytesPer := 0
	switch bitpix {
	case 8:
		bytesPer = 1
	case 16:
		bytesPer = 2
	case 32, -32:
		bytesPer = 4
	case 64, -64:
		bytesPer = 8
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}

	g, err := grid.New(width, height)
	if err != nil {
		return nil, err
	}
	n := width * height
	size := n * bytesPer
	padded := (size + blockSize - 1) / blockSize * blockSize
	buf := make([]byte, padded)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read data array: %w", err)
	}

	for i := 0; i < n; i++ {
		b := buf[i*bytesPer:]
		var raw float64
		switch bitpix {
		case 8:
			raw = float64(b[0])
		case 16:
			raw = float64(int16(binary.BigEndian.Uint16(b)))
		case 32:
			raw = float64(int32(binary.BigEndian.Uint32(b)))
		case 64:
			raw = float64(int64(binary.BigEndian.Uint64(b)))
		case -32:
			raw = float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
		case -64:
			raw = math.Float64frombits(binary.BigEndian.Uint64(b))
		}
		g.SetIndex(i, bscale*raw+bzero)
	}
	return g, nil
}
