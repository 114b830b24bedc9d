package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"comer/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	guestsSheet = "Guests"
	slotsSheet  = "Slots"

	// ContentType of the produced workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	guestHeaders = []interface{}{"Date", "Start", "End", "Guest email", "User ID", "Price", "Currency", "Booked at", "Booking ID"}
	slotHeaders  = []interface{}{"Date", "Start", "End", "Capacity", "Booked", "Remaining"}
)

// Source is the storage the exporter reads from.
type Source interface {
	GetExperience(ctx context.Context, id string) (*models.Experience, error)
	GetLedger(ctx context.Context, experienceID string) (*models.Ledger, error)
}

// GuestListExporter renders the bookings of an experience as an xlsx workbook.
type GuestListExporter struct {
	source Source
	dir    string
	logger *zerolog.Logger
}

func NewGuestListExporter(source Source, dir string, logger *zerolog.Logger) *GuestListExporter {
	return &GuestListExporter{source: source, dir: dir, logger: logger}
}

// Save writes the guest list into the export directory and returns the file path.
func (e *GuestListExporter) Save(ctx context.Context, experienceID string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.build(ctx, experienceID)
	if err != nil {
		return "", err
	}
	defer f.Close()

	name := fmt.Sprintf("guests_%s_%s.xlsx", experienceID, time.Now().Format("20060102_150405"))
	path := filepath.Join(e.dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", path).Str("experience_id", experienceID).Msg("Guest list exported")
	return path, nil
}

// Write streams the guest list to w.
func (e *GuestListExporter) Write(ctx context.Context, w io.Writer, experienceID string) error {
	f, err := e.build(ctx, experienceID)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func (e *GuestListExporter) build(ctx context.Context, experienceID string) (*excelize.File, error) {
	exp, err := e.source.GetExperience(ctx, experienceID)
	if err != nil {
		return nil, err
	}
	ledger, err := e.source.GetLedger(ctx, experienceID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	ok := false
	defer func() {
		if !ok {
			f.Close()
		}
	}()

	if err := f.SetSheetName("Sheet1", guestsSheet); err != nil {
		return nil, fmt.Errorf("error renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(slotsSheet); err != nil {
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}

	if err := writeGuests(f, exp, ledger); err != nil {
		return nil, err
	}
	if err := writeSlots(f, ledger); err != nil {
		return nil, err
	}

	ok = true
	return f, nil
}

func writeGuests(f *excelize.File, exp *models.Experience, ledger *models.Ledger) error {
	_ = f.SetCellValue(guestsSheet, "A1", fmt.Sprintf("%s (%s, %s - %s)",
		exp.Title, exp.City, exp.StartDate, exp.EndDate))
	_ = f.MergeCell(guestsSheet, "A1", "I1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(guestsSheet, "A1", "A1", titleStyle)

	if err := f.SetSheetRow(guestsSheet, "A2", &guestHeaders); err != nil {
		return fmt.Errorf("error writing headers: %w", err)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	_ = f.SetCellStyle(guestsSheet, "A2", "I2", headerStyle)

	bookings := append([]models.Booking(nil), ledger.Bookings...)
	sort.SliceStable(bookings, func(i, j int) bool {
		if bookings[i].Date != bookings[j].Date {
			return bookings[i].Date.Before(bookings[j].Date)
		}
		return bookings[i].CreatedAt.Before(bookings[j].CreatedAt)
	})

	for i, b := range bookings {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		row := []interface{}{
			b.Date.String(), b.StartTime, b.EndTime, b.UserEmail, b.UserID,
			b.Price, b.Currency, b.CreatedAt.Format("2006-01-02 15:04"), b.ID,
		}
		if err := f.SetSheetRow(guestsSheet, cell, &row); err != nil {
			return fmt.Errorf("error writing booking %s: %w", b.ID, err)
		}
	}

	_ = f.SetColWidth(guestsSheet, "A", "C", 12)
	_ = f.SetColWidth(guestsSheet, "D", "E", 28)
	_ = f.SetColWidth(guestsSheet, "H", "I", 38)
	return nil
}

func writeSlots(f *excelize.File, ledger *models.Ledger) error {
	if err := f.SetSheetRow(slotsSheet, "A1", &slotHeaders); err != nil {
		return fmt.Errorf("error writing headers: %w", err)
	}

	fullStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
	})

	for i, s := range ledger.Slots {
		rowNum := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		row := []interface{}{s.Date.String(), s.StartTime, s.EndTime, s.Capacity, ledger.BookedCount(s.ID), s.Remaining}
		if err := f.SetSheetRow(slotsSheet, cell, &row); err != nil {
			return fmt.Errorf("error writing slot %s: %w", s.ID, err)
		}
		if s.Remaining == 0 {
			end, _ := excelize.CoordinatesToCellName(len(row), rowNum)
			_ = f.SetCellStyle(slotsSheet, cell, end, fullStyle)
		}
	}
	return nil
}
