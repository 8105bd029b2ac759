package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
)

// FileProvider reads a JSONL export where each line is one provider item.
type FileProvider struct {
	Path string
}

func (p FileProvider) Fetch(ctx context.Context, from, to time.Time) ([]db.RawRecord, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []db.RawRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var it item
		if err := json.Unmarshal([]byte(text), &it); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", p.Path, line, err)
		}
		r, err := it.record()
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", p.Path, line, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return inRange(records, from, to), nil
}
