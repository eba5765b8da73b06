package normalize

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"packchicken-service/workers/fulfillment/models"
	"path/filepath"
	"strconv"
	"strings"
)

// CSVRows is every export row that belongs to one order. XLSX imports use
// the same type with Format set to "xlsx".
type CSVRows struct {
	Rows       []map[string]string
	LocationID string
	Format     string
}

func (r CSVRows) sourceTag() string {
	if r.Format != "" {
		return r.Format
	}
	return SourceCSV
}

// ReadCSV reads a storefront order export. The first record is the header.
func ReadCSV(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return recordsToRows(records), nil
}

func recordsToRows(records [][]string) []map[string]string {
	if len(records) == 0 {
		return nil
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, key := range header {
			if i < len(rec) {
				row[key] = rec[i]
			} else {
				row[key] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// GroupRows groups rows by "Id", falling back to "Name". Rows with neither
// are dropped. Groups keep the order in which their key first appears.
func GroupRows(rows []map[string]string) [][]map[string]string {
	index := make(map[string]int)
	var groups [][]map[string]string

	for _, row := range rows {
		key := firstNonEmpty(row["Id"], row["Name"])
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], row)
	}
	return groups
}

// LoadOrderFile reads a .csv or .xlsx export and normalizes every order in it.
func LoadOrderFile(path, locationID string) ([]Result, error) {
	var (
		rows   []map[string]string
		format string
		err    error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		format = SourceXLSX
		rows, err = ReadXLSX(path)
	case ".csv":
		format = SourceCSV
		var f *os.File
		if f, err = os.Open(path); err != nil {
			return nil, err
		}
		defer f.Close()
		rows, err = ReadCSV(f)
	default:
		return nil, fmt.Errorf("unsupported order file %q (want .csv or .xlsx)", filepath.Base(path))
	}
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, group := range GroupRows(rows) {
		res, err := Normalize(CSVRows{Rows: group, LocationID: locationID, Format: format})
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func fromRows(src CSVRows) (Result, error) {
	if len(src.Rows) == 0 {
		return Result{}, fmt.Errorf("%w: no rows in group", ErrEmptySource)
	}

	first := src.Rows[0]
	orderID := firstNonEmpty(first["Id"], first["Name"])

	items := make([]models.LineItem, 0, len(src.Rows))
	for _, row := range src.Rows {
		items = append(items, rowToLineItem(row))
	}

	return Result{
		OrderID: orderID,
		Source:  src.sourceTag(),
		Order: models.Order{
			ID:              orderID,
			OrderNumber:     first["Name"],
			Email:           first["Email"],
			Phone:           first["Phone"],
			ShippingAddress: pickAddress(src.Rows, "Shipping"),
			BillingAddress:  pickAddress(src.Rows, "Billing"),
			LineItems:       items,
			LocationID:      src.LocationID,
		},
	}, nil
}

// pickAddress takes the first row that has any of address1, city or zip for
// the given prefix.
func pickAddress(rows []map[string]string, prefix string) *models.Address {
	col := func(row map[string]string, name string) string {
		return row[prefix+" "+name]
	}

	for _, row := range rows {
		if col(row, "Address1") == "" && col(row, "City") == "" && col(row, "Zip") == "" {
			continue
		}
		return &models.Address{
			Name:        firstNonEmpty(col(row, "Name"), row["Name"]),
			Address1:    firstNonEmpty(col(row, "Address1"), col(row, "Street")),
			Address2:    col(row, "Address2"),
			City:        col(row, "City"),
			Zip:         col(row, "Zip"),
			CountryCode: firstNonEmpty(col(row, "Country"), "NO"),
			Phone:       firstNonEmpty(col(row, "Phone"), row["Phone"]),
			Email:       row["Email"],
		}
	}

	return &models.Address{
		Name:        rows[0]["Name"],
		CountryCode: "NO",
		Phone:       rows[0]["Phone"],
		Email:       rows[0]["Email"],
	}
}

func rowToLineItem(row map[string]string) models.LineItem {
	return models.LineItem{
		Title:            row["Lineitem name"],
		Quantity:         parseIntOr(row["Lineitem quantity"], 1),
		Price:            row["Lineitem price"],
		SKU:              row["Lineitem sku"],
		RequiresShipping: parseBool(row["Lineitem requires shipping"]),
		Grams:            parseIntOr(row["Lineitem grams"], 0),
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true
	}
	return false
}

// parseIntOr accepts "3" as well as spreadsheet-style "3.0".
func parseIntOr(v string, fallback int) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f)
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
