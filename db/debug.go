package db

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// PrintEventsCLI writes the newest events, optionally of one output, as a
// table.
func PrintEventsCLI(w io.Writer, dbPath, outputID string, limit int) error {
	l, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer l.Close()

	var entries []Entry
	if outputID != "" {
		entries, err = l.ForOutput(outputID, limit)
	} else {
		entries, err = l.Recent(limit)
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOUTPUT\tOP\tVALUE\tOVERRIDDEN\tRESULT")
	for _, e := range entries {
		result := "ok"
		if !e.OK {
			result = "failed: " + e.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", e.At.Local().Format(time.DateTime), e.Output, e.Op, e.Value, e.Overridden, result)
	}
	return tw.Flush()
}
