package sweep

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/platewise/platewise-api/internal/usecase/association"
	"github.com/platewise/platewise-api/internal/usecase/heroimage"
	"github.com/platewise/platewise-api/internal/usecase/integration"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// readJSONL decodes one value per non-blank line. Malformed lines are logged and skipped.
func readJSONL[T any](path string, keep func(line int, v T) bool) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			log.Printf("[Sweep] Warning: %s:%d is not valid JSON: %v", path, line, err)
			continue
		}
		if keep(line, v) {
			out = append(out, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return out, nil
}

// MentionFile serves mentions from a JSONL export in fixed-size pages.
// The cursor is the index of the first mention of the page.
type MentionFile struct {
	mentions []association.Mention
	pageSize int
}

var _ association.ContentSource = (*MentionFile)(nil)

func NewMentionFile(path string, pageSize int) (*MentionFile, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	mentions, err := readJSONL(path, func(line int, m association.Mention) bool {
		if m.RestaurantName == "" || m.Item.ID == "" {
			log.Printf("[Sweep] Warning: %s:%d mention without restaurant name or item id", path, line)
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return &MentionFile{mentions: mentions, pageSize: pageSize}, nil
}

func (m *MentionFile) FetchPage(ctx context.Context, cursor string) (association.Page, error) {
	if err := ctx.Err(); err != nil {
		return association.Page{}, err
	}
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return association.Page{}, fmt.Errorf("invalid mention cursor %q", cursor)
		}
		start = n
	}
	if start >= len(m.mentions) {
		return association.Page{}, nil
	}
	end := min(start+m.pageSize, len(m.mentions))
	page := association.Page{Mentions: m.mentions[start:end]}
	if end < len(m.mentions) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

// ReadRecords loads reservation integration records, dropping ones that fail validation.
func ReadRecords(path string) ([]integration.Record, error) {
	return readJSONL(path, func(line int, r integration.Record) bool {
		if err := validate.Struct(r); err != nil {
			log.Printf("[Sweep] Warning: %s:%d invalid integration record: %v", path, line, err)
			return false
		}
		return true
	})
}

// ReadOverrides loads manual hero image overrides, dropping ones that fail validation.
func ReadOverrides(path string) ([]heroimage.Override, error) {
	return readJSONL(path, func(line int, o heroimage.Override) bool {
		if err := validate.Struct(o); err != nil {
			log.Printf("[Sweep] Warning: %s:%d invalid hero image override: %v", path, line, err)
			return false
		}
		return true
	})
}
