// Package export renders a ranked board as a downloadable CSV.
package export

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/okian/stark/internal/domain/ranking"
	"github.com/okian/stark/internal/domain/scoring"
)

// Header is the first CSV line.
const Header = "Rank,Startup Name,Teamwork Avg,Idea Avg,Code Avg,Business Avg,Final Total Average"

// ContentType of the rendered file.
const ContentType = "text/csv; charset=utf-8"

// Write renders results in their ranked order. Names are always quoted; the
// numeric columns use two decimals.
func Write(w io.Writer, results []ranking.Result) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return err
	}
	for i := range results {
		r := &results[i]
		fields := []string{
			strconv.Itoa(i + 1),
			quote(r.Name),
			scoring.FormatScore(r.Teamwork),
			scoring.FormatScore(r.Idea),
			scoring.FormatScore(r.Execution),
			scoring.FormatScore(r.Business),
			scoring.FormatScore(r.Average),
		}
		if _, err := bw.WriteString(strings.Join(fields, ",") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Bytes renders results into memory.
func Bytes(results []ranking.Result) []byte {
	var buf bytes.Buffer
	_ = Write(&buf, results) // bytes.Buffer writes do not fail
	return buf.Bytes()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
