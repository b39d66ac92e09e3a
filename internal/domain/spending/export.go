package spending

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	purchasesSheet = "Покупки"
	summarySheet   = "Итоги"
)

// WriteXLSX выгружает месяц в Excel: лист с журналом покупок и лист с итогами.
func WriteXLSX(w io.Writer, m *Month) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), purchasesSheet); err != nil {
		return err
	}

	// Журнал
	header := []interface{}{"Дата", "Название", "Цена", "Кол-во", "Обязательная"}
	if err := f.SetSheetRow(purchasesSheet, "A1", &header); err != nil {
		return fmt.Errorf("xlsx header: %w", err)
	}
	row := 2
	for _, p := range m.Items {
		var price interface{} = ""
		if p.Price != nil {
			price = p.Price.InexactFloat64()
		}
		excelRow := []interface{}{
			p.PurchasedAt.Format("2006-01-02 15:04"),
			p.Name,
			price,
			p.Quantity,
			yesNo(p.Essential),
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(purchasesSheet, cell, &excelRow); err != nil {
			return fmt.Errorf("xlsx row %d: %w", row, err)
		}
		row++
	}

	// Итоги
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	remaining := m.Limit.Sub(m.NonEssentialSpent)
	summary := [][]interface{}{
		{"Месяц", m.MonthStart.Format("2006-01")},
		{"Лимит", m.Limit.InexactFloat64()},
		{"Обязательные", m.EssentialSpent.InexactFloat64()},
		{"Необязательные", m.NonEssentialSpent.InexactFloat64()},
		{"Остаток", remaining.InexactFloat64()},
	}
	for i, r := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &r); err != nil {
			return fmt.Errorf("xlsx summary: %w", err)
		}
	}

	return f.Write(w)
}

// ExportFileName имя файла выгрузки за месяц.
func ExportFileName(month time.Time) string {
	return fmt.Sprintf("spending_%s.xlsx", month.Format("2006_01"))
}

func yesNo(b bool) string {
	if b {
		return "да"
	}
	return "нет"
}
