package fits

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	blockSize = 2880
	cardSize  = 80
)

// ErrNoImageData indicates a FITS file whose HDUs carry no pixel array.
var ErrNoImageData = errors.New("fits: no image data")

// Header holds the keyword cards of one HDU.
type Header struct {
	cards map[string]string
}

// Get returns the raw value string for a keyword, or "" if absent.
func (h *Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h.cards[strings.ToUpper(key)]
}

// GetString returns a string-valued card with FITS quoting removed.
func (h *Header) GetString(key, fallback string) string {
	v := h.Get(key)
	if v == "" {
		return fallback
	}
	return v
}

// GetFloat parses a numeric card, returning fallback when absent or malformed.
func (h *Header) GetFloat(key string, fallback float64) float64 {
	v := h.Get(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// GetInt parses an integer card, returning fallback when absent or malformed.
func (h *Header) GetInt(key string, fallback int) int {
	v := h.Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Image is a single 2D pixel array in physical units.
type Image struct {
	Width  int
	Height int
	Pix    []float64
}

// ReadHeader parses the primary header of the FITS file at path.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	hdr, err := readHeaderBlocks(f)
	if err != nil {
		return nil, fmt.Errorf("fits: %s: %w", path, err)
	}
	return hdr, nil
}

// ReadImage returns the first HDU carrying a 2D image, searching the primary
// HDU first and then any extensions, matching how capture software writes
// either layout.
func ReadImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for {
		hdr, err := readHeaderBlocks(f)
		if err == io.EOF {
			return nil, ErrNoImageData
		}
		if err != nil {
			return nil, fmt.Errorf("fits: %s: %w", path, err)
		}

		bitpix := hdr.GetInt("BITPIX", 0)
		naxis := hdr.GetInt("NAXIS", 0)
		dims := make([]int, naxis)
		// A data-less HDU (NAXIS = 0) has no data blocks at all.
		pixels := 0
		if naxis > 0 {
			pixels = 1
			for i := range dims {
				dims[i] = hdr.GetInt(fmt.Sprintf("NAXIS%d", i+1), 0)
				pixels *= dims[i]
			}
		}

		if naxis >= 2 && pixels > 0 {
			img, err := readPixels(f, hdr, bitpix, dims)
			if err != nil {
				return nil, fmt.Errorf("fits: %s: %w", path, err)
			}
			return img, nil
		}

		// Data-less HDU: skip its (possibly empty) data segment and try the next.
		if err := skipData(f, bitpix, pixels, hdr); err != nil {
			return nil, ErrNoImageData
		}
	}
}

func readHeaderBlocks(r io.Reader) (*Header, error) {
	h := &Header{cards: make(map[string]string)}
	block := make([]byte, blockSize)
	first := true
	for {
		if _, err := io.ReadFull(r, block); err != nil {
			if first && (err == io.EOF || err == io.ErrUnexpectedEOF) {
				return nil, io.EOF
			}
			return nil, errors.New("truncated header")
		}
		first = false
		for off := 0; off < blockSize; off += cardSize {
			card := string(block[off : off+cardSize])
			key := strings.TrimSpace(card[:8])
			if key == "END" {
				return h, nil
			}
			if key == "" || key == "COMMENT" || key == "HISTORY" {
				continue
			}
			if len(card) < 10 || card[8] != '=' {
				continue
			}
			h.cards[key] = parseValue(card[10:])
		}
	}
}

// parseValue strips the inline comment and FITS string quoting from a card body.
func parseValue(body string) string {
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "'") {
		// Quoted string; '' escapes a quote.
		var b strings.Builder
		i := 1
		for i < len(body) {
			if body[i] == '\'' {
				if i+1 < len(body) && body[i+1] == '\'' {
					b.WriteByte('\'')
					i += 2
					continue
				}
				break
			}
			b.WriteByte(body[i])
			i++
		}
		return strings.TrimRight(b.String(), " ")
	}
	if idx := strings.IndexByte(body, '/'); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func dataByteSize(bitpix, pixels int) int {
	size := pixels * abs(bitpix) / 8
	if rem := size % blockSize; rem != 0 {
		size += blockSize - rem
	}
	return size
}

func skipData(r io.Reader, bitpix, pixels int, hdr *Header) error {
	pcount := hdr.GetInt("PCOUNT", 0)
	size := dataByteSize(bitpix, pixels+pcount)
	if size == 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, r, int64(size))
	return err
}

func readPixels(r io.Reader, hdr *Header, bitpix int, dims []int) (*Image, error) {
	width, height := dims[0], dims[1]
	n := width * height
	// Higher axes (e.g. a stack) are ignored; only the first plane is read.
	raw := make([]byte, n*abs(bitpix)/8)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("truncated data: %w", err)
	}

	bzero := hdr.GetFloat("BZERO", 0)
	bscale := hdr.GetFloat("BSCALE", 1)

	pix := make([]float64, n)
	switch bitpix {
	case 8:
		for i := 0; i < n; i++ {
			pix[i] = float64(raw[i])
		}
	case 16:
		for i := 0; i < n; i++ {
			pix[i] = float64(int16(binary.BigEndian.Uint16(raw[2*i:])))
		}
	case 32:
		for i := 0; i < n; i++ {
			pix[i] = float64(int32(binary.BigEndian.Uint32(raw[4*i:])))
		}
	case 64:
		for i := 0; i < n; i++ {
			pix[i] = float64(int64(binary.BigEndian.Uint64(raw[8*i:])))
		}
	case -32:
		for i := 0; i < n; i++ {
			pix[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(raw[4*i:])))
		}
	case -64:
		for i := 0; i < n; i++ {
			pix[i] = math.Float64frombits(binary.BigEndian.Uint64(raw[8*i:]))
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}

	if bzero != 0 || bscale != 1 {
		for i := range pix {
			pix[i] = bzero + bscale*pix[i]
		}
	}
	return &Image{Width: width, Height: height, Pix: pix}, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
