// Package sniffer identifies uploaded documents and the layout of delimited
// exports: source kind from media type, extension and magic bytes; delimiter
// and header row for CSV/TSV files.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// SourceKind selects the processing path of a document.
type SourceKind string

const (
	KindCSV   SourceKind = "csv"
	KindXLSX  SourceKind = "xlsx"
	KindOFX   SourceKind = "ofx"
	KindPDF   SourceKind = "pdf"
	KindImage SourceKind = "image"
	KindText  SourceKind = "text"
)

// Tabular reports whether the kind is parsed into rows rather than text.
func (k SourceKind) Tabular() bool {
	return k == KindCSV || k == KindXLSX || k == KindOFX
}

var (
	pdfMagic  = []byte("%PDF-")
	zipMagic  = []byte("PK\x03\x04")
	ofxMarker = []byte("<OFX>")
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true,
	".webp": true, ".bmp": true, ".gif": true,
}

// DetectSourceKind decides the kind from the bytes first, then the file
// extension, then the declared media type. Anything unrecognized is text.
func DetectSourceKind(mediaType, name string, data []byte) SourceKind {
	ext := strings.ToLower(filepath.Ext(name))
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return KindPDF
	case bytes.HasPrefix(data, zipMagic) && (ext == ".xlsx" || strings.Contains(mediaType, "spreadsheetml")):
		return KindXLSX
	case bytes.Contains(bytes.ToUpper(head(data, 4096)), ofxMarker), ext == ".ofx", ext == ".qfx":
		return KindOFX
	}

	sniffed := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(sniffed, "image/"), imageExtensions[ext], strings.HasPrefix(mediaType, "image/"):
		return KindImage
	case ext == ".pdf", mediaType == "application/pdf":
		return KindPDF
	case ext == ".xlsx", strings.Contains(mediaType, "spreadsheetml"):
		return KindXLSX
	case ext == ".csv", ext == ".tsv", mediaType == "text/csv", mediaType == "text/tab-separated-values":
		return KindCSV
	}
	return KindText
}

func head(data []byte, n int) []byte {
	if len(data) > n {
		return data[:n]
	}
	return data
}

// DecodeText returns data as UTF-8, reading it as Latin-1 when it is not
// valid UTF-8. A leading BOM is removed.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\uFEFF"))
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "")
	}
	return string(decoded)
}

// Common bank statement header keywords, folded (lowercase, no accents).
var headerKeywords = []string{
	"data", "date", "vencimento", "lancamento",
	"descricao", "historico", "estabelecimento", "description", "memo",
	"valor", "amount", "total", "debito", "credito", "debit", "credit",
	"saldo", "balance", "categoria", "category",
}

// FileConfig holds the detected layout of a delimited file.
type FileConfig struct {
	Delimiter   rune
	SkipLines   int
	Headers     []string
	Fingerprint string
}

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoHeadersFound   = errors.New("could not find data headers")
	ErrInvalidDelimiter = errors.New("could not detect valid delimiter")
)

// DetectConfig finds the delimiter and header row of a CSV/TSV text.
func DetectConfig(text string) (*FileConfig, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyFile
	}

	lines := strings.Split(text, "\n")
	delimiter, skipLines, err := findHeaderRow(lines)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(cleanLine(lines[skipLines], skipLines == 0)))
	reader.Comma = delimiter
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	return &FileConfig{
		Delimiter:   delimiter,
		SkipLines:   skipLines,
		Headers:     headers,
		Fingerprint: generateFingerprint(headers),
	}, nil
}

// findHeaderRow prefers the line with the most header keywords, then the
// one with the most columns.
func findHeaderRow(lines []string) (rune, int, error) {
	bestIndex, bestDelimiter, bestKeywords, bestCount := -1, rune(0), 0, 0
	fallbackIndex, fallbackDelimiter, fallbackCount := -1, rune(0), 0

	for i, line := range lines {
		if i > 20 {
			break
		}
		line = cleanLine(line, i == 0)
		if line == "" {
			continue
		}

		delimiter, count := detectDelimiter(line)
		if count < 1 {
			continue
		}

		folded := Fold(line)
		keywords := 0
		for _, kw := range headerKeywords {
			if strings.Contains(folded, kw) {
				keywords++
			}
		}

		if keywords > 0 {
			if bestIndex < 0 || keywords > bestKeywords || (keywords == bestKeywords && count > bestCount) {
				bestIndex, bestDelimiter, bestKeywords, bestCount = i, delimiter, keywords, count
			}
		} else if count > fallbackCount {
			fallbackIndex, fallbackDelimiter, fallbackCount = i, delimiter, count
		}
	}

	if bestIndex >= 0 {
		return bestDelimiter, bestIndex, nil
	}
	if fallbackIndex >= 0 && fallbackCount >= 2 {
		return fallbackDelimiter, fallbackIndex, nil
	}
	return 0, 0, ErrNoHeadersFound
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

func detectDelimiter(line string) (rune, int) {
	delimiters := []rune{';', '\t', ',', '|'}
	bestDelimiter := rune(0)
	bestCount := 0
	for _, d := range delimiters {
		if count := strings.Count(line, string(d)); count > bestCount {
			bestCount = count
			bestDelimiter = d
		}
	}
	return bestDelimiter, bestCount
}

// Fold lowercases s and strips the Portuguese diacritics so headers match
// regardless of accents.
func Fold(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 'á', 'à', 'â', 'ã', 'ä':
			return 'a'
		case 'é', 'ê', 'è':
			return 'e'
		case 'í', 'î':
			return 'i'
		case 'ó', 'ô', 'õ', 'ö':
			return 'o'
		case 'ú', 'ü':
			return 'u'
		case 'ç':
			return 'c'
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}

// generateFingerprint hashes the normalized header names so exports from the
// same bank layout can be recognized.
func generateFingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, Fold(h))
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}
	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}
