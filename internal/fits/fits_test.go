package fits

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// buildHDU assembles one header-data unit: cards padded to 80 columns, an END
// card, header padded to the 2880-byte block, then data padded likewise.
func buildHDU(cards []string, data []byte) []byte {
	var out []byte
	for _, c := range cards {
		out = append(out, []byte(fmt.Sprintf("%-80s", c))...)
	}
	out = append(out, []byte(fmt.Sprintf("%-80s", "END"))...)
	for len(out)%blockSize != 0 {
		out = append(out, ' ')
	}
	out = append(out, data...)
	for len(out)%blockSize != 0 {
		out = append(out, 0)
	}
	return out
}

func card(key string, value any) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("%-8s= '%s'", key, v)
	default:
		return fmt.Sprintf("%-8s= %v", key, v)
	}
}

func writeFITS(t *testing.T, name string, hdus ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	var data []byte
	for _, h := range hdus {
		data = append(data, h...)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func int16Data(values []int16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func float32Data(values []float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func TestReadImageInt16WithScaling(t *testing.T) {
	cards := []string{
		card("SIMPLE", "T"),
		card("BITPIX", 16),
		card("NAXIS", 2),
		card("NAXIS1", 3),
		card("NAXIS2", 2),
		card("BZERO", 32768),
		card("BSCALE", 1),
	}
	// Raw stored values are signed; BZERO shifts them to unsigned range.
	raw := []int16{-32768, -32767, 0, 1, 100, 32767}
	path := writeFITS(t, "u16.fits", buildHDU(cards, int16Data(raw)))

	img, err := ReadImage(path)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	if img.Width != 3 || img.Height != 2 {
		t.Fatalf("got %dx%d, want 3x2", img.Width, img.Height)
	}
	want := []float64{0, 1, 32768, 32769, 32868, 65535}
	for i, w := range want {
		if img.Pix[i] != w {
			t.Errorf("pix[%d] = %v, want %v", i, img.Pix[i], w)
		}
	}
}

func TestReadImageFloat32(t *testing.T) {
	cards := []string{
		card("SIMPLE", "T"),
		card("BITPIX", -32),
		card("NAXIS", 2),
		card("NAXIS1", 2),
		card("NAXIS2", 2),
	}
	vals := []float32{1.5, -2.25, 0, 1000}
	path := writeFITS(t, "f32.fits", buildHDU(cards, float32Data(vals)))

	img, err := ReadImage(path)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	for i, v := range vals {
		if img.Pix[i] != float64(v) {
			t.Errorf("pix[%d] = %v, want %v", i, img.Pix[i], v)
		}
	}
}

func TestReadImageInExtensionHDU(t *testing.T) {
	// Header-only primary HDU, as capture software that stores the image in
	// an extension writes it. The primary must not be treated as having a
	// padded data segment, or the extension header gets swallowed.
	primary := buildHDU([]string{
		card("SIMPLE", "T"),
		card("BITPIX", 8),
		card("NAXIS", 0),
	}, nil)
	ext := buildHDU([]string{
		card("XTENSION", "IMAGE"),
		card("BITPIX", 16),
		card("NAXIS", 2),
		card("NAXIS1", 2),
		card("NAXIS2", 1),
	}, int16Data([]int16{7, 9}))
	path := writeFITS(t, "ext.fits", primary, ext)

	img, err := ReadImage(path)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	if img.Width != 2 || img.Height != 1 || img.Pix[0] != 7 || img.Pix[1] != 9 {
		t.Fatalf("unexpected image: %+v", img)
	}
}

func TestReadImageSkipsSeveralDatalessHDUs(t *testing.T) {
	primary := buildHDU([]string{
		card("SIMPLE", "T"),
		card("BITPIX", 8),
		card("NAXIS", 0),
	}, nil)
	empty := buildHDU([]string{
		card("XTENSION", "IMAGE"),
		card("BITPIX", 16),
		card("NAXIS", 0),
	}, nil)
	ext := buildHDU([]string{
		card("XTENSION", "IMAGE"),
		card("BITPIX", -32),
		card("NAXIS", 2),
		card("NAXIS1", 2),
		card("NAXIS2", 2),
	}, float32Data([]float32{1, 2, 3, 4}))
	path := writeFITS(t, "multi.fits", primary, empty, ext)

	img, err := ReadImage(path)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	if img.Width != 2 || img.Height != 2 || img.Pix[3] != 4 {
		t.Fatalf("unexpected image: %+v", img)
	}
}

func TestReadImageNoData(t *testing.T) {
	path := writeFITS(t, "empty.fits", buildHDU([]string{
		card("SIMPLE", "T"),
		card("BITPIX", 8),
		card("NAXIS", 0),
	}, nil))

	if _, err := ReadImage(path); !errors.Is(err, ErrNoImageData) {
		t.Fatalf("got %v, want ErrNoImageData", err)
	}
}

func TestHeaderQuotingAndComments(t *testing.T) {
	cards := []string{
		card("SIMPLE", "T"),
		card("BITPIX", 8),
		card("NAXIS", 0),
		"OBJECT  = 'M 42    '           / target name",
		"OBSERVER= 'O''Neill'",
		"EXPTIME =                300.0 / seconds",
	}
	path := writeFITS(t, "hdr.fits", buildHDU(cards, nil))

	hdr, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got := hdr.GetString("OBJECT", ""); got != "M 42" {
		t.Errorf("OBJECT = %q, want %q", got, "M 42")
	}
	if got := hdr.GetString("OBSERVER", ""); got != "O'Neill" {
		t.Errorf("OBSERVER = %q, want %q", got, "O'Neill")
	}
	if got := hdr.GetFloat("EXPTIME", 0); got != 300.0 {
		t.Errorf("EXPTIME = %v, want 300", got)
	}
	if got := hdr.GetInt("MISSING", 42); got != 42 {
		t.Errorf("missing key fallback = %d, want 42", got)
	}
}

func TestReadMetadata(t *testing.T) {
	cards := []string{
		card("SIMPLE", "T"),
		card("BITPIX", 8),
		card("NAXIS", 0),
		card("OBJECT", "NGC 7000"),
		card("FILTER", "Ha"),
		card("EXPTIME", 120.0),
		card("DATE-OBS", "2024-05-01T22:13:44.5"),
	}
	path := writeFITS(t, "meta.fits", buildHDU(cards, nil))

	md, err := ReadMetadata(path)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if md.Target != "NGC 7000" {
		t.Errorf("Target = %q", md.Target)
	}
	if md.Filter != "H" {
		t.Errorf("Filter = %q, want H", md.Filter)
	}
	if md.ExposureSec != 120 {
		t.Errorf("ExposureSec = %v, want 120", md.ExposureSec)
	}
	want := time.Date(2024, 5, 1, 22, 13, 44, 500_000_000, time.UTC)
	if !md.Captured.Equal(want) {
		t.Errorf("Captured = %v, want %v", md.Captured, want)
	}
}

func TestReadMetadataDefaults(t *testing.T) {
	path := writeFITS(t, "bare.fits", buildHDU([]string{
		card("SIMPLE", "T"),
		card("BITPIX", 8),
		card("NAXIS", 0),
	}, nil))

	md, err := ReadMetadata(path)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if md.Target != "Unknown" || md.Filter != "UNKNOWN" {
		t.Errorf("defaults = %q / %q", md.Target, md.Filter)
	}
	if !md.Captured.IsZero() {
		t.Errorf("Captured should be zero, got %v", md.Captured)
	}
}

func TestReadMetadataTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.fits")
	if err := os.WriteFile(path, []byte("SIMPLE  = T"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadMetadata(path); err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestSanitizeTarget(t *testing.T) {
	cases := map[string]string{
		"M 42":        "M_42",
		"NGC/7000":    "NGC-7000",
		" Sh2-129 ":   "Sh2-129",
		"a\\b c":      "a-b_c",
		"Orion":       "Orion",
	}
	for in, want := range cases {
		if got := SanitizeTarget(in); got != want {
			t.Errorf("SanitizeTarget(%q) = %q, want %q", in, got, want)
		}
	}
}
