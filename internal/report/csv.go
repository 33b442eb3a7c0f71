package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

var csvHeader = []string{"year", "month", "day", "hour", "timestamp", "event"}

// CSVWriter writes events incrementally with a fixed column set plus the
// raw event serialized as JSON in the last column.
type CSVWriter struct {
	w           *csv.Writer
	closer      io.Closer
	needsHeader bool
}

// NewCSVWriter writes CSV to w, emitting the header first.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w), needsHeader: true}
}

// OpenCSV opens path for appending, writing the header only when the file
// is new or empty.
func OpenCSV(path string) (*CSVWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &CSVWriter{
		w:           csv.NewWriter(f),
		closer:      f,
		needsHeader: info.Size() == 0,
	}, nil
}

// WriteEvents appends one row per event.
func (c *CSVWriter) WriteEvents(events []Event) error {
	if c.needsHeader {
		if err := c.w.Write(csvHeader); err != nil {
			return err
		}
		c.needsHeader = false
	}

	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("serialize event: %w", err)
		}

		row := []string{"", "", "", "", "", string(raw)}
		if ts, ok := eventTime(ev); ok {
			row[0] = strconv.Itoa(ts.Year())
			row[1] = strconv.Itoa(int(ts.Month()))
			row[2] = strconv.Itoa(ts.Day())
			row[3] = strconv.Itoa(ts.Hour())
			row[4] = ts.Format(time.RFC3339)
		}
		if err := c.w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// Flush commits buffered rows.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and releases the underlying file, if any.
func (c *CSVWriter) Close() error {
	if err := c.Flush(); err != nil {
		if c.closer != nil {
			c.closer.Close()
		}
		return err
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// eventTime extracts the event timestamp: an ISO8601 "timestamp" field, or
// separate "date" and "time" fields combined.
func eventTime(ev Event) (time.Time, bool) {
	if raw, ok := ev["timestamp"].(string); ok && raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts, true
		}
	}
	date, dok := ev["date"].(string)
	clock, tok := ev["time"].(string)
	if dok && tok {
		if ts, err := time.Parse("2006-01-02T15:04:05", date+"T"+clock); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
