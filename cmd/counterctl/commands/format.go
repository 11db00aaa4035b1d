// Package commands implements the counterctl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"

	appversion "github.com/dantte-lp/counterd/internal/version"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	formatYAML  = "yaml"
	valueNone   = "-"
)

var (
	// errUnsupportedFormat is returned when the requested output format is not supported.
	errUnsupportedFormat = errors.New("unsupported output format")

	// errMalformedListing indicates a ListCounters response missing expected fields.
	errMalformedListing = errors.New("malformed counter listing")
)

// counterRow is one registered counter as printed by 'counter list'.
type counterRow struct {
	CounterID      int32  `json:"counter_id"      yaml:"counter_id"`
	RegistrationID string `json:"registration_id" yaml:"registration_id"`
	TypeID         int32  `json:"type_id"         yaml:"type_id"`
	Key            string `json:"key"             yaml:"key"`
	Label          string `json:"label"           yaml:"label"`
	Registered     string `json:"registered"      yaml:"registered"`
}

// checkFormat rejects unknown --format values before any request is sent.
func checkFormat(format string) error {
	switch format {
	case formatJSON, formatTable, formatYAML:
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatResult renders a command result in the requested format.
func formatResult(r commandResult, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(r)
	case formatYAML:
		return marshalYAML(r)
	case formatTable:
		return formatResultTable(r)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatCounters renders the counter listing in the requested format.
func formatCounters(rows []counterRow, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(rows)
	case formatYAML:
		return marshalYAML(rows)
	case formatTable:
		return formatCountersTable(rows)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatVersion renders build information in the requested format.
func formatVersion(info appversion.Info, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(info)
	case formatYAML:
		return marshalYAML(info)
	case formatTable:
		return appversion.Full(info.Binary) + "\n", nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatHealth renders a health check result in the requested format.
func formatHealth(r healthResult, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(r)
	case formatYAML:
		return marshalYAML(r)
	case formatTable:
		name := r.Service
		if name == "" {
			name = "(server)"
		}
		return fmt.Sprintf("%s: %s\n", name, r.Status), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatters ---

func formatResultTable(r commandResult) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Response:\t%s\n", r.Response)
	fmt.Fprintf(w, "Correlation ID:\t%d\n", r.CorrelationID)
	if r.CounterID != nil {
		fmt.Fprintf(w, "Counter ID:\t%d\n", *r.CounterID)
	}
	if r.ErrorCode != "" {
		fmt.Fprintf(w, "Error Code:\t%s\n", r.ErrorCode)
		fmt.Fprintf(w, "Message:\t%s\n", r.Message)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

func formatCountersTable(rows []counterRow) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREGISTRATION\tTYPE\tKEY\tLABEL\tREGISTERED")

	for _, r := range rows {
		key := r.Key
		if key == "" {
			key = valueNone
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n",
			r.CounterID, r.RegistrationID, r.TypeID, key, r.Label, r.Registered)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

// --- Structured formatters ---

func marshalJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	return string(data) + "\n", nil
}

func marshalYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal yaml: %w", err)
	}
	return string(data), nil
}

// --- Listing conversion ---

// countersFromStruct converts a ListCounters response to rows.
func countersFromStruct(st *structpb.Struct) ([]counterRow, error) {
	list := st.GetFields()["counters"].GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: no counters field", errMalformedListing)
	}

	rows := make([]counterRow, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		entry := v.GetStructValue()
		if entry == nil {
			return nil, fmt.Errorf("%w: entry %d is not an object", errMalformedListing, i)
		}

		f := entry.GetFields()
		rows = append(rows, counterRow{
			CounterID:      int32(f["counter_id"].GetNumberValue()),
			RegistrationID: f["registration_id"].GetStringValue(),
			TypeID:         int32(f["type_id"].GetNumberValue()),
			Key:            f["key"].GetStringValue(),
			Label:          f["label"].GetStringValue(),
			Registered:     f["registered"].GetStringValue(),
		})
	}

	return rows, nil
}
