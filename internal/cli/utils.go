// Package cli formats kura command output.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hyperjump/kura/internal/extract"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/pipeline"
	"github.com/hyperjump/kura/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json" (case-insensitive); "" is text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(OutputText):
		return OutputText, nil
	case string(OutputJSON):
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// SuccessMessage is the line printed after a successful build.
func SuccessMessage(res *pipeline.Result) string {
	return fmt.Sprintf("Vector store '%s' created successfully at %s", res.Name, res.Path)
}

// WriteResult writes a build result to w in the given format.
func WriteResult(w io.Writer, res *pipeline.Result, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintln(w, SuccessMessage(res))
	if res.RequestedName != "" && res.RequestedName != res.Name {
		fmt.Fprintf(w, "  requested name: %s\n", res.RequestedName)
	}
	fmt.Fprintf(w, "  documents: %d  dimensions: %d  index: %s  took: %s\n",
		res.Documents, res.Dimensions, res.IndexType, res.Duration.Round(time.Millisecond))
	if res.SessionID != "" {
		fmt.Fprintf(w, "  session: %s\n", res.SessionID)
	}
	names := make([]string, 0, len(res.Sources))
	for name := range res.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  source %s: %d documents\n", name, res.Sources[name])
	}
	return nil
}

// WriteStores writes catalog entries to w, newest first as given.
func WriteStores(w io.Writer, stores []*models.StoreInfo, format OutputFormat) error {
	if format == OutputJSON {
		if stores == nil {
			stores = []*models.StoreInfo{}
		}
		return writeJSON(w, stores)
	}
	if len(stores) == 0 {
		fmt.Fprintln(w, "No vector stores recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDOCS\tDIMS\tINDEX\tSIZE\tSESSION\tCREATED")
	for _, s := range stores {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			s.Name, s.Documents, s.Dimensions, s.IndexType, HumanBytes(s.SizeBytes),
			orDash(utils.Truncate(s.SessionID, 12)), s.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

// WriteFormats writes parser availability to w.
func WriteFormats(w io.Writer, formats []extract.Availability, format OutputFormat) error {
	if format == OutputJSON {
		if formats == nil {
			formats = []extract.Availability{}
		}
		return writeJSON(w, formats)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EXTENSION\tCAPABILITY\tAVAILABLE\tNOTE")
	for _, a := range formats {
		avail := "yes"
		if !a.Available {
			avail = "no"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Extension, orDash(string(a.Capability)), avail, a.Reason)
	}
	return tw.Flush()
}

// HumanBytes renders n with a binary unit, e.g. "1.5 KiB".
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
