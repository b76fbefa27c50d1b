// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-clearinghouse.
//
// go-clearinghouse is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeremyhahn/go-clearinghouse/pkg/visa"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(strings.ToLower(format)),
		writer: writer,
	}
}

// PrintVisas prints the visas of a passport
func (p *Printer) PrintVisas(visas []*visa.Visa) error {
	switch p.format {
	case OutputFormatJSON:
		if visas == nil {
			visas = []*visa.Visa{}
		}
		return p.printJSON(map[string]interface{}{
			"visas": visas,
			"count": len(visas),
		})
	case OutputFormatTable:
		if len(visas) == 0 {
			fmt.Fprintln(p.writer, "No visas found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-30s %-36s %-8s %-20s %s\n", "TYPE", "VALUE", "BY", "ASSERTED", "SOURCE")
		fmt.Fprintln(p.writer, strings.Repeat("-", 120))
		for _, v := range visas {
			fmt.Fprintf(p.writer, "%-30s %-36s %-8s %-20s %s\n",
				v.TypeName(), v.Value(), orDash(v.ByName()), asserted(v), v.Source())
		}
		return nil
	case OutputFormatText:
		if len(visas) == 0 {
			fmt.Fprintln(p.writer, "No visas found")
			return nil
		}
		fmt.Fprintf(p.writer, "Visas (%d):\n", len(visas))
		for _, v := range visas {
			fmt.Fprintf(p.writer, "  - %s: %s (source %s, by %s)\n",
				v.TypeName(), v.Value(), v.Source(), orDash(v.ByName()))
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintVisa prints a single visa in detail
func (p *Printer) PrintVisa(v *visa.Visa) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(v)
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, "Visa:")
		if v.Subject() != "" {
			fmt.Fprintf(p.writer, "  Subject:    %s\n", v.Subject())
		}
		fmt.Fprintf(p.writer, "  Type:       %s\n", v.TypeName())
		fmt.Fprintf(p.writer, "  Value:      %s\n", v.Value())
		fmt.Fprintf(p.writer, "  Source:     %s\n", v.Source())
		fmt.Fprintf(p.writer, "  Asserted:   %s\n", asserted(v))
		if v.ByName() != "" {
			fmt.Fprintf(p.writer, "  By:         %s\n", v.ByName())
		}
		if conditions := v.Conditions(); len(conditions) > 0 {
			data, err := json.Marshal(conditions)
			if err != nil {
				return err
			}
			fmt.Fprintf(p.writer, "  Conditions: %s\n", data)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintTokens prints raw visa tokens, one per line in text mode
func (p *Printer) PrintTokens(tokens []string) error {
	switch p.format {
	case OutputFormatJSON:
		if tokens == nil {
			tokens = []string{}
		}
		return p.printJSON(map[string]interface{}{
			"tokens": tokens,
			"count":  len(tokens),
		})
	case OutputFormatTable, OutputFormatText:
		for _, token := range tokens {
			fmt.Fprintln(p.writer, token)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// printJSON prints data as indented JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func asserted(v *visa.Visa) string {
	return time.Unix(v.Asserted(), 0).UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
