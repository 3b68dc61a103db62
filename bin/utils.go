package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"www.velocidex.com/golang/flowsched/json"
	"www.velocidex.com/golang/flowsched/utils"
)

// Render rows either as a table or as one JSON object per line. All
// rows are expected to have the same keys as the first.
func printRows(out io.Writer, format string, rows []*ordereddict.Dict) error {
	if format == "json" {
		serialized, err := json.MarshalJsonl(rows)
		if err != nil {
			return err
		}
		_, err = out.Write(serialized)
		return err
	}

	table := tablewriter.NewWriter(out)
	defer table.Render()

	if len(rows) == 0 {
		return nil
	}

	headers := rows[0].Keys()
	table.SetHeader(headers)

	for _, row := range rows {
		string_row := make([]string, 0, len(headers))
		for _, h := range headers {
			value, _ := row.Get(h)
			string_row = append(string_row, fmt.Sprintf("%v", value))
		}
		table.Append(string_row)
	}

	return nil
}

func print_rows(rows []*ordereddict.Dict) error {
	return printRows(os.Stdout, *format_flag, rows)
}

// Formats a microsecond timestamp relative to now.
func humanTime(ts int64) string {
	if ts == 0 {
		return ""
	}
	return humanize.Time(utils.FromMicroseconds(ts))
}

func humanDeadline(ts int64, now time.Time) string {
	if ts == 0 {
		return ""
	}
	return humanize.RelTime(utils.FromMicroseconds(ts), now, "ago", "from now")
}
