package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"storico/internal/core"
)

// Expected header of the sales tab. Column order is free; names are matched
// case-insensitively.
var salesHeaders = []string{"ClientID", "SaleID", "CreatedAt", "Total", "ProductID", "ProductName", "Quantity", "UnitPrice"}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

// parseSalesRows groups line-item rows of clientID into sales, preserving the
// order in which each sale first appears. Client ids match exactly. Rows of a
// sale share SaleID; the first row with a parseable CreatedAt and Total sets
// the sale header, and every row of the sale contributes its line item. Rows
// without a SaleID, and all rows of a sale that never gets a valid header,
// are counted as skipped.
func parseSalesRows(values [][]interface{}, clientID string, loc *time.Location) ([]core.Sale, int, error) {
	if len(values) == 0 {
		return []core.Sale{}, 0, nil
	}
	headers := toStrings(values[0])
	cols := make(map[string]int, len(salesHeaders))
	var missing []string
	for _, h := range salesHeaders {
		idx := indexOf(headers, h)
		if idx == -1 {
			missing = append(missing, h)
		}
		cols[h] = idx
	}
	if len(missing) > 0 {
		return nil, 0, fmt.Errorf("unexpected sales header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}

	type group struct {
		sale      core.Sale
		hasHeader bool
		rows      int
	}
	clientID = strings.TrimSpace(clientID)
	var groups []*group
	index := map[string]*group{}
	skipped := 0
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		if safeGet(row, cols["ClientID"]) != clientID {
			continue
		}
		saleID := safeGet(row, cols["SaleID"])
		if saleID == "" {
			skipped++
			continue
		}

		g, ok := index[saleID]
		if !ok {
			g = &group{sale: core.Sale{ID: saleID, ClientID: clientID}}
			index[saleID] = g
			groups = append(groups, g)
		}
		g.rows++

		if !g.hasHeader {
			createdAt, dateErr := parseDate(safeGet(row, cols["CreatedAt"]), loc)
			total, totalErr := core.ParseDecimalToCents(safeGet(row, cols["Total"]))
			if dateErr == nil && totalErr == nil {
				g.sale.CreatedAt = createdAt
				g.sale.Total = core.Money{Cents: total}
				g.hasHeader = true
			}
		}

		productID := safeGet(row, cols["ProductID"])
		if productID == "" && safeGet(row, cols["Quantity"]) == "" {
			// Header-only row for a sale without items.
			continue
		}
		qty, err := strconv.Atoi(safeGet(row, cols["Quantity"]))
		if err != nil {
			qty = 0
		}
		price, err := core.ParseDecimalToCents(safeGet(row, cols["UnitPrice"]))
		if err != nil {
			price = 0
		}
		g.sale.Items = append(g.sale.Items, core.LineItem{
			ProductID:   productID,
			ProductName: safeGet(row, cols["ProductName"]),
			Quantity:    qty,
			UnitPrice:   core.Money{Cents: price},
		})
	}

	out := make([]core.Sale, 0, len(groups))
	for _, g := range groups {
		if !g.hasHeader {
			skipped += g.rows
			continue
		}
		out = append(out, g.sale)
	}
	return out, skipped, nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, core.ErrInvalidDate
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
