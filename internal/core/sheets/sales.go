package sheets

import "github.com/JonMunkholm/golab-ledger/internal/core"

// SalesKey is the layout key of the monthly sales workbook.
const SalesKey = "sales"

// salesSheets are the monthly data sheets. Some workbooks carry a trailing
// space in a sheet name ("10월 "); names are compared trimmed.
var salesSheets = []string{
	"1월", "2월", "3월", "4월", "5월", "6월",
	"7월", "8월", "9월", "10월", "11월", "12월",
}

func init() {
	registerSales()
}

// Each monthly sheet has its header on row 5.
//
//	0 Date      date
//	3 PO No.    document number (memo)
//	4 END USER  customer, the entry's vendor
//	5 진행업체  agent (memo)
//	6 Item      item name
//	7 Q'ty      quantity
//	8 단가      unit sale price
//
// There is no part number column. Rows without a date, or without both a
// customer and an item, are not sales.
func registerSales() {
	core.Register(core.Layout{
		Key:          SalesKey,
		Label:        "매출 (월별)",
		DocType:      core.DocSale,
		Currency:     core.DefaultCurrency,
		Sheets:       salesSheets,
		FirstDataRow: 6,
		MinColumns:   10,
		DateCol:      0,
		VendorCol:    4,
		PartNoCol:    core.NoColumn,
		ItemCol:      6,
		QtyCol:       7,
		PriceCol:     8,
		Memo: []core.MemoField{
			{Label: "진행", Col: 5},
			{Label: "PO", Col: 3},
		},
		RequireDate:  true,
		RequireParty: true,
	})
}
