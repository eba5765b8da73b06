package labels

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"
)

// LabelData is what a rendered (simulated) label shows.
type LabelData struct {
	TrackingNumber string
	OrderRef       string
	SenderName     string
	SenderLine     string
	RecipientName  string
	RecipientLine  string
	WeightKg       string
	Test           bool
}

// Render draws a single-page A6 label to path.
func Render(path string, data LabelData) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: 105, Ht: 148},
	})
	pdf.SetTitle("Label "+data.TrackingNumber, true)
	pdf.SetCreationDate(time.Now())
	pdf.SetMargins(6, 6, 6)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "PackChicken", "", 1, "L", false, 0, "")
	if data.Test {
		pdf.SetTextColor(200, 0, 0)
		pdf.CellFormat(0, 6, "SIMULATED - NOT A REAL SHIPMENT", "", 1, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(0, 4, "FROM", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, tr(pdf, data.SenderName+"\n"+data.SenderLine), "", "L", false)

	pdf.Ln(3)
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(0, 4, "TO", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 12)
	pdf.MultiCell(0, 6, tr(pdf, data.RecipientName+"\n"+data.RecipientLine), "1", "L", false)

	pdf.Ln(4)
	pdf.SetFont("Courier", "B", 12)
	pdf.CellFormat(0, 8, data.TrackingNumber, "1", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Order %s   Weight %s kg", data.OrderRef, data.WeightKg), "", 1, "L", false, 0, "")

	return pdf.OutputFileAndClose(path)
}

// tr converts UTF-8 to the cp1252 encoding the core fonts use (æ, ø, å).
func tr(pdf *fpdf.Fpdf, s string) string {
	return pdf.UnicodeTranslatorFromDescriptor("")(s)
}
