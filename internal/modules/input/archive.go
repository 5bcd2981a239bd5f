package input

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/canectors/fundsync/internal/errhandling"
	"github.com/canectors/fundsync/internal/logger"
	"github.com/canectors/fundsync/pkg/connector"
)

// Default configuration values
const (
	// DefaultArchiveURL is the CVM fund registry archive.
	DefaultArchiveURL = "https://dados.cvm.gov.br/dados/FI/CAD/DADOS/registro_fundo_classe.zip"

	defaultArchiveTimeout = 60 * time.Second
	defaultUserAgent      = "Fundsync/1.0"

	// maxArchiveSize bounds the downloaded archive held in memory.
	maxArchiveSize = 512 * 1024 * 1024
	// maxEntrySize bounds one decompressed entry.
	maxEntrySize = 1024 * 1024 * 1024

	csvDelimiter = ';'
	utf8BOM      = "\ufeff"
)

// Error types for the archive source
var (
	ErrDownloadFailed = errors.New("archive download failed")
	ErrEntryNotFound  = errors.New("archive entry not found")
	ErrInvalidArchive = errors.New("invalid zip archive")
	ErrCSVParse       = errors.New("failed to parse CSV entry")
	ErrTooLarge       = errors.New("archive size limit exceeded")
)

// ArchiveSource loads CSV entries from a remote ZIP archive.
type ArchiveSource struct {
	url    string
	client *http.Client

	maxArchiveBytes int64
	maxEntryBytes   int64
}

// NewArchiveSource creates an archive source. An empty url selects
// DefaultArchiveURL, a zero timeout 60s, and a nil client a new one.
func NewArchiveSource(url string, timeout time.Duration, client *http.Client) *ArchiveSource {
	if url == "" {
		url = DefaultArchiveURL
	}
	if timeout <= 0 {
		timeout = defaultArchiveTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &ArchiveSource{
		url:             url,
		client:          client,
		maxArchiveBytes: maxArchiveSize,
		maxEntryBytes:   maxEntrySize,
	}
}

// Load downloads the archive and parses the entry named name.
//
// A non-200 download is a retryable transport error wrapping
// ErrDownloadFailed; a missing entry is a not-found error wrapping
// ErrEntryNotFound.
func (a *ArchiveSource) Load(ctx context.Context, name string) (*Dataset, error) {
	startTime := time.Now()

	raw, err := a.download(ctx)
	if err != nil {
		return nil, err
	}

	archive, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}

	entry := findEntry(archive, name)
	if entry == nil {
		return nil, errhandling.NewNotFoundError(
			fmt.Sprintf("file %q not found in archive", name),
			ErrEntryNotFound,
		)
	}

	content, err := readEntry(entry, a.maxEntryBytes)
	if err != nil {
		return nil, err
	}

	dataset, err := ParseCSV(DecodeText(content))
	if err != nil {
		return nil, err
	}

	logger.Info("archive entry loaded",
		slog.String("url", a.url),
		slog.String("entry", name),
		slog.Int("archive_bytes", len(raw)),
		slog.Int("record_count", len(dataset.Records)),
		slog.Duration("duration", time.Since(startTime)),
	)

	return dataset, nil
}

func (a *ArchiveSource) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating archive request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	logger.Debug("downloading archive", slog.String("url", a.url))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errhandling.ClassifyNetworkError(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("failed to close archive response body", slog.String("error", closeErr.Error()))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errhandling.NewTransportError(resp.StatusCode, "archive download failed", ErrDownloadFailed)
	}

	raw, err := readLimited(resp.Body, a.maxArchiveBytes)
	if errors.Is(err, ErrTooLarge) {
		return nil, fmt.Errorf("downloading %s: %w", a.url, err)
	}
	if err != nil {
		return nil, errhandling.NewTransportError(resp.StatusCode, "reading archive body", err)
	}
	return raw, nil
}

func findEntry(archive *zip.Reader, name string) *zip.File {
	for _, f := range archive.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrInvalidArchive, f.Name, err)
	}
	defer func() {
		_ = rc.Close()
	}()

	content, err := readLimited(rc, limit)
	if errors.Is(err, ErrTooLarge) {
		return nil, fmt.Errorf("entry %s: %w", f.Name, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrInvalidArchive, f.Name, err)
	}
	return content, nil
}

// readLimited reads r to the end, failing with ErrTooLarge past limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	content, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return content, nil
}

// DecodeText decodes raw bytes as UTF-8 without BOM, falling back to
// Latin-1 when the bytes are not valid UTF-8.
func DecodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return strings.TrimPrefix(string(raw), utf8BOM)
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	logger.Debug("entry is not valid UTF-8, decoded as Latin-1", slog.Int("bytes", len(raw)))
	return string(decoded)
}

// ParseCSV parses semicolon-delimited text with a header row.
// Short rows leave the missing columns absent; extra fields are ignored.
func ParseCSV(text string) (*Dataset, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = csvDelimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &Dataset{Columns: []string{}, Records: []connector.Record{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrCSVParse, err)
	}

	dataset := &Dataset{
		Columns: header,
		Records: make([]connector.Record, 0),
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCSVParse, err)
		}

		record := make(connector.Record, len(header))
		for i, column := range header {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		dataset.Records = append(dataset.Records, record)
	}

	return dataset, nil
}

// Close releases idle connections.
func (a *ArchiveSource) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ Module = (*ArchiveSource)(nil)
