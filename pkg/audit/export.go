package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Export writes events to w in format.
func Export(w io.Writer, events []*Event, format ExportFormat) error {
	switch format {
	case ExportFormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if events == nil {
			events = []*Event{}
		}
		return enc.Encode(events)
	case ExportFormatNDJSON:
		enc := json.NewEncoder(w)
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return fmt.Errorf("failed to encode event %d: %w", e.ID, err)
			}
		}
		return nil
	case ExportFormatCSV:
		return exportCSV(w, events)
	default:
		return fmt.Errorf("unknown export format %q (must be json, ndjson, or csv)", format)
	}
}

func exportCSV(w io.Writer, events []*Event) error {
	cw := csv.NewWriter(w)
	header := []string{
		"id", "timestamp", "event_type", "status",
		"username", "token_prefix", "package",
		"ip_address", "request_id", "method", "path", "status_code",
		"message",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range events {
		statusCode := ""
		if e.StatusCode != 0 {
			statusCode = strconv.Itoa(e.StatusCode)
		}
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.UTC().Format(time.RFC3339),
			string(e.Type),
			string(e.Status),
			e.Username,
			e.TokenPrefix,
			e.Package,
			e.IPAddress,
			e.RequestID,
			e.Method,
			e.Path,
			statusCode,
			e.Message,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
