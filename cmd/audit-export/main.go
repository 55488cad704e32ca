package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/reservations_backend/config"
	"bitbucket.org/mmdatafocus/reservations_backend/models"
	"github.com/xuri/excelize/v2"
)

// Exports one month of the audit journal to an xlsx file. The journal is
// the source of truth for reconciliation history; this is how it leaves
// the database for review.
func main() {
	month := flag.String("month", time.Now().UTC().Format("2006-01"), "Journal month to export (YYYY-MM).")
	out := flag.String("out", "", "Output file (defaults to audit-<month>.xlsx).")
	flag.Parse()

	if _, err := time.Parse("2006-01", *month); err != nil {
		fmt.Fprintf(os.Stderr, "invalid month %q: %v\n", *month, err)
		os.Exit(1)
	}
	outFile := *out
	if outFile == "" {
		outFile = fmt.Sprintf("audit-%s.xlsx", *month)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	var entries []models.AuditEntry
	if err := db.Where("journal_month = ?", *month).Order("recorded_at, id").Find(&entries).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to load journal: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Fprintf(os.Stderr, "no journal entries for %s\n", *month)
		return
	}

	f := excelize.NewFile()
	sheet := "Journal"
	if _, err := f.NewSheet(sheet); err != nil {
		fmt.Fprintf(os.Stderr, "creating sheet: %v\n", err)
		os.Exit(1)
	}
	f.DeleteSheet("Sheet1")

	headers := []string{"RecordedAt", "ReservationNumber", "Edition", "Decision", "Reason", "ChangedFields", "Actor", "CorrelationId"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for row, e := range entries {
		values := []interface{}{
			e.RecordedAt.UTC().Format(time.RFC3339),
			e.ReservationNumber,
			e.Edition,
			string(e.Decision),
			e.Reason,
			e.ChangedFields,
			e.Actor,
			e.CorrelationId,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	if err := f.SaveAs(outFile); err != nil {
		fmt.Fprintf(os.Stderr, "writing %s: %v\n", outFile, err)
		os.Exit(1)
	}
	fmt.Printf("exported %d entries to %s\n", len(entries), outFile)
}
