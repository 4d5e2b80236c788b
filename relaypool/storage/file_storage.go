package storage

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"statscrape/internal/shared/logger"
	"statscrape/relaypool/model"
)

// The relay file is line oriented. The first line is a format header; every
// other non-blank, non-comment line is one relay:
//
//	endpoint <TAB> scraped <TAB> verified <TAB> success/failure <TAB> latency <TAB> checked <TAB> next <TAB> source
//
// The relay ID is not stored; it is derived from endpoint and scraped
// protocol on load. Missing values are written as "-". Timestamps are RFC3339
// in UTC and latency is a Go duration string.
const (
	formatHeader = "#statscrape-relays v2"
	commentMark  = "#"
	separator    = "\t"
	emptyValue   = "-"
	numColumns   = 8
)

// Storage 接口定义了 relay 数据持久化的行为。
type Storage interface {
	Load() (map[string]*model.Relay, error)
	Save(relays map[string]*model.Relay) error
}

// FileStorage keeps the relay pool in a single versioned text file.
type FileStorage struct {
	filePath string
	mu       sync.RWMutex
}

func NewFileStorage(filePath string) *FileStorage {
	return &FileStorage{
		filePath: filePath,
	}
}

// Load reads the relay file. A missing file is an empty pool; a file written
// in another format version is an error so it is never silently overwritten.
func (fs *FileStorage) Load() (map[string]*model.Relay, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	l := logger.WithComponent("RelayPool/Storage").With().Str("path", fs.filePath).Logger()

	file, err := os.Open(fs.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			l.Info().Msg("Relay data file not found, starting with an empty pool.")
			return make(map[string]*model.Relay), nil
		}
		return nil, err
	}
	defer file.Close()

	relays := make(map[string]*model.Relay)
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if lineNum == 1 {
			if line != formatHeader {
				return nil, fmt.Errorf("relay file %s: unsupported header %q, want %q", fs.filePath, line, formatHeader)
			}
			continue
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, commentMark) {
			continue
		}

		r, err := decodeRelay(line)
		if err != nil {
			l.Warn().Int("line", lineNum).Err(err).Msg("Skipping malformed relay line.")
			continue
		}
		if _, dup := relays[r.ID]; dup {
			l.Warn().Int("line", lineNum).Str("id", r.ID).Msg("Duplicate relay, keeping the later line.")
		}
		relays[r.ID] = r
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	l.Info().Int("count", len(relays)).Msg("Loaded relays from file.")
	return relays, nil
}

// Save writes relays sorted by ID, replacing the file atomically.
func (fs *FileStorage) Save(relays map[string]*model.Relay) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	list := make([]*model.Relay, 0, len(relays))
	for _, r := range relays {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})

	tmp := fs.filePath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, formatHeader)
	for _, r := range list {
		fmt.Fprintln(w, encodeRelay(r))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, fs.filePath); err != nil {
		return err
	}

	l := logger.WithComponent("RelayPool/Storage")
	l.Debug().Int("count", len(list)).Msg("Saved relays to file.")
	return nil
}

func encodeRelay(r *model.Relay) string {
	latency := emptyValue
	if r.Latency > 0 {
		latency = r.Latency.String()
	}
	return strings.Join([]string{
		r.Endpoint(),
		orEmpty(r.ScrapedProtocol),
		orEmpty(r.VerifiedProtocol),
		strconv.Itoa(r.SuccessCount) + "/" + strconv.Itoa(r.FailureCount),
		latency,
		encodeTime(r.LastChecked),
		encodeTime(r.NextChecked),
		orEmpty(strings.Join(strings.Fields(r.Source), " ")),
	}, separator)
}

func decodeRelay(line string) (*model.Relay, error) {
	cols := strings.Split(line, separator)
	if len(cols) != numColumns {
		return nil, fmt.Errorf("expected %d columns, got %d", numColumns, len(cols))
	}

	host, port, err := model.ParseEndpoint(cols[0])
	if err != nil {
		return nil, err
	}
	r := model.NewRelay(host, port, fromEmpty(cols[1]), fromEmpty(cols[7]))
	r.VerifiedProtocol = fromEmpty(cols[2])

	success, failure, ok := strings.Cut(cols[3], "/")
	if !ok {
		return nil, fmt.Errorf("invalid counts %q", cols[3])
	}
	if r.SuccessCount, err = strconv.Atoi(success); err != nil {
		return nil, fmt.Errorf("invalid success count: %w", err)
	}
	if r.FailureCount, err = strconv.Atoi(failure); err != nil {
		return nil, fmt.Errorf("invalid failure count: %w", err)
	}

	if cols[4] != emptyValue {
		if r.Latency, err = time.ParseDuration(cols[4]); err != nil {
			return nil, fmt.Errorf("invalid latency: %w", err)
		}
	}
	if r.LastChecked, err = decodeTime(cols[5]); err != nil {
		return nil, fmt.Errorf("invalid last checked: %w", err)
	}
	if r.NextChecked, err = decodeTime(cols[6]); err != nil {
		return nil, fmt.Errorf("invalid next checked: %w", err)
	}
	return r, nil
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return emptyValue
	}
	return t.UTC().Format(time.RFC3339)
}

func decodeTime(s string) (time.Time, error) {
	if s == emptyValue {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func orEmpty(s string) string {
	if s == "" {
		return emptyValue
	}
	return s
}

func fromEmpty(s string) string {
	if s == emptyValue {
		return ""
	}
	return s
}
