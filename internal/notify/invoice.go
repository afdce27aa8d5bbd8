package notify

import (
	"bytes"
	"fmt"

	"next_mart/internal/model"

	"github.com/go-pdf/fpdf"
)

// InvoiceData 生成发票需要的订单快照和展示信息。
type InvoiceData struct {
	Order        model.Order
	CustomerName string
	// ProductNames 商品名，缺失时显示为 Product #<id>。
	ProductNames map[uint]string
}

const (
	storeName    = "NextMart"
	storeAddress = "Level-4, 34, Awal Centre, Banani, Dhaka"
	storeEmail   = "support@nextmart.com"
)

// BuildInvoicePDF 渲染 A4 发票。金额全部取自订单快照。
func BuildInvoicePDF(data InvoiceData) ([]byte, error) {
	o := data.Order

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(18, 18, 18)
	pdf.SetTitle("Invoice "+o.OrderNo, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 10, storeName, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 5, storeAddress, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, "Email: "+storeEmail, "", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 15)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 8, "Invoice", "B", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(0, 0, 0)
	line := func(s string) { pdf.CellFormat(0, 6, s, "", 1, "L", false, 0, "") }
	line("Invoice No: " + o.OrderNo)
	line("Order Date: " + o.CreatedAt.Format("2006-01-02"))
	line("Customer Name: " + data.CustomerName)
	pdf.MultiCell(0, 6, "Shipping Address: "+o.ShippingAddress, "", "L", false)
	pdf.Ln(3)

	heading := func(s string) {
		pdf.SetFont("Helvetica", "BU", 11)
		pdf.SetTextColor(0, 51, 102)
		pdf.CellFormat(0, 7, s, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.SetTextColor(0, 0, 0)
	}
	heading("Payment Details:")
	line("Payment Status: " + string(o.PaymentStatus))
	line("Payment Method: " + string(o.PaymentMethod))
	pdf.Ln(3)

	heading("Order Products:")
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(90, 8, "Product Name", "B", 0, "L", false, 0, "")
	pdf.CellFormat(30, 8, "Quantity", "B", 0, "C", false, 0, "")
	pdf.CellFormat(0, 8, "Price", "B", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(0, 0, 0)
	for _, it := range o.Items {
		name := data.ProductNames[it.ProductID]
		if name == "" {
			name = fmt.Sprintf("Product #%d", it.ProductID)
		}
		if it.Color != "" {
			name += " (" + it.Color + ")"
		}
		pdf.CellFormat(90, 7, name, "", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, fmt.Sprintf("%d", it.Quantity), "", 0, "C", false, 0, "")
		pdf.CellFormat(0, 7, it.LineTotal().StringFixed(2), "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	row := func(label, amount string) {
		pdf.CellFormat(120, 7, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, amount+" /-", "", 1, "R", false, 0, "")
	}
	row("Sub Total", o.Subtotal.StringFixed(2))
	row("Discount", "-"+o.Discount.StringFixed(2))
	row("Delivery Charge", o.DeliveryCharge.StringFixed(2))
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetTextColor(0, 51, 102)
	row("Total", o.FinalAmount.StringFixed(2))

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 5, "Thank you for shopping!", "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", o.OrderNo, err)
	}
	return buf.Bytes(), nil
}
