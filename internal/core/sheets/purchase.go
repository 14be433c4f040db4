package sheets

import "github.com/JonMunkholm/golab-ledger/internal/core"

// PurchaseKey is the layout key of the purchase ledger.
const PurchaseKey = "purchase"

func init() {
	registerPurchase()
}

// The purchase ledger is a single sheet with a header on row 1.
//
//	 0 날짜      date
//	 1 업체명    delivered-to customer (memo)
//	 2 품번      part number
//	 3 상품명    item name
//	 4 수량      quantity
//	 9 구매가    unit purchase price
//	12 판매처    sales channel (memo)
//	13 내구매처  supplier, the entry's vendor
//	14 비고      note (memo)
//	15 출처      provenance (memo)
//
// Columns 5-8, 10 and 11 hold sale prices and totals that are not imported.
func registerPurchase() {
	core.Register(core.Layout{
		Key:          PurchaseKey,
		Label:        "구매 원장",
		DocType:      core.DocPurchase,
		Currency:     core.DefaultCurrency,
		Sheets:       []string{"구매"},
		FirstDataRow: 2,
		MinColumns:   16,
		DateCol:      0,
		VendorCol:    13,
		PartNoCol:    2,
		ItemCol:      3,
		QtyCol:       4,
		PriceCol:     9,
		Memo: []core.MemoField{
			{Col: 14},
			{Label: "판매처", Col: 12},
			{Label: "납품", Col: 1},
			{Label: "출처", Col: 15},
		},
	})
}
