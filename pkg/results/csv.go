package results

import (
	"encoding/csv"
	"fmt"
	"io"
)

var csvHeader = []string{"Account address", "Show boosts"}

// WriteCSV writes a follow-import file: one row per identity of every user, in order.
func WriteCSV(w io.Writer, users []*User) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, u := range users {
		for _, id := range u.IDs {
			if err := cw.Write([]string{id.String(), "true"}); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
