// Package summary builds the dashboard aggregates: the per-deductibility
// breakdown of a user's receipt items and the trailing monthly spending
// series. Builders are pure; Service only adds the reads.
package summary

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"example.com/receipt-tax-tracker/backend/internal/models"
)

const (
	MonthsInSeries   = 12
	monthLabelLayout = "Jan 2006"
	monthKeyLayout   = "2006-01"
)

var hundred = decimal.NewFromInt(100)

// DeductibilityRow is one GROUP BY deductibility_id row. A nil
// DeductibilityID stands for unclassified items.
type DeductibilityRow struct {
	DeductibilityID *int16
	Total           decimal.Decimal
	Count           int
}

type Entry struct {
	DeductibilityID int16           `json:"deductibility_id"`
	Name            string          `json:"deductibility_name"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ItemCount       int             `json:"item_count"`
	Percentage      decimal.Decimal `json:"percentage"`
}

type Bucket struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"item_count"`
}

// DeductibilitySummary holds one entry per known type in canonical order.
// Total is the sum of the classified entries only; items without a known
// type are reported in Unclassified and never enter the percentage base.
type DeductibilitySummary struct {
	Entries      []Entry
	Total        decimal.Decimal
	Unclassified Bucket
}

// MonthTotal is the receipt total of the calendar month starting at Month.
type MonthTotal struct {
	Month time.Time
	Total decimal.Decimal
}

type MonthlySpending struct {
	Labels []string          `json:"labels"`
	Data   []decimal.Decimal `json:"data"`
}

// BuildDeductibilitySummary заполняет нулевые записи по всем типам и
// накладывает на них сгруппированные суммы.
func BuildDeductibilitySummary(types []models.DeductibilityType, rows []DeductibilityRow) DeductibilitySummary {
	ordered := make([]models.DeductibilityType, len(types))
	copy(ordered, types)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SortOrder != ordered[j].SortOrder {
			return ordered[i].SortOrder < ordered[j].SortOrder
		}
		return ordered[i].ID < ordered[j].ID
	})

	result := DeductibilitySummary{
		Entries: make([]Entry, 0, len(ordered)),
		Total:   decimal.Zero,
		Unclassified: Bucket{
			TotalAmount: decimal.Zero,
		},
	}

	index := make(map[int16]int, len(ordered))
	for _, t := range ordered {
		index[t.ID] = len(result.Entries)
		result.Entries = append(result.Entries, Entry{
			DeductibilityID: t.ID,
			Name:            t.Name,
			TotalAmount:     decimal.Zero,
			Percentage:      decimal.Zero,
		})
	}

	for _, row := range rows {
		pos, known := -1, false
		if row.DeductibilityID != nil {
			pos, known = index[*row.DeductibilityID]
		}

		if !known {
			result.Unclassified.TotalAmount = result.Unclassified.TotalAmount.Add(row.Total)
			result.Unclassified.ItemCount += row.Count
			continue
		}

		entry := &result.Entries[pos]
		entry.TotalAmount = entry.TotalAmount.Add(row.Total)
		entry.ItemCount += row.Count
		result.Total = result.Total.Add(row.Total)
	}

	if result.Total.IsPositive() {
		for i := range result.Entries {
			result.Entries[i].Percentage = Percentage(result.Entries[i].TotalAmount, result.Total)
		}
	}

	return result
}

// Percentage возвращает долю part от total в процентах с округлением до сотых.
func Percentage(part, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}

	return part.Div(total).Mul(hundred).Round(2)
}

// SeriesWindow возвращает первый день самого старого месяца ряда и последний
// день месяца now.
func SeriesWindow(now time.Time) (time.Time, time.Time) {
	current := monthStart(now)
	from := current.AddDate(0, -(MonthsInSeries - 1), 0)
	to := current.AddDate(0, 1, -1)
	return from, to
}

// BuildMonthlySpending раскладывает помесячные суммы по двенадцати корзинам,
// от самого старого месяца к текущему.
func BuildMonthlySpending(now time.Time, totals []MonthTotal) MonthlySpending {
	byMonth := make(map[string]decimal.Decimal, len(totals))
	for _, total := range totals {
		key := total.Month.Format(monthKeyLayout)
		byMonth[key] = byMonth[key].Add(total.Total)
	}

	series := MonthlySpending{
		Labels: make([]string, 0, MonthsInSeries),
		Data:   make([]decimal.Decimal, 0, MonthsInSeries),
	}

	current := monthStart(now)
	for i := MonthsInSeries - 1; i >= 0; i-- {
		month := current.AddDate(0, -i, 0)
		series.Labels = append(series.Labels, month.Format(monthLabelLayout))
		series.Data = append(series.Data, byMonth[month.Format(monthKeyLayout)].Round(2))
	}

	return series
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
