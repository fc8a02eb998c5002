package httpapi

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
)

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := a.service.DailyReport(r.Context(), q.Get("pod_id"), q.Get("date"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(q.Get("format"))) {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"daily-report-%s.csv\"", report.Date))
		w.WriteHeader(http.StatusOK)
		if err := writeDailyReportCSV(w, report); err != nil {
			a.logger.Warn("write csv report failed", "error", err)
		}
	case "", "json":
		writeJSON(w, http.StatusOK, report)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported format %q", q.Get("format")))
	}
}

func writeDailyReportCSV(out io.Writer, report domain.DailyReport) error {
	w := csv.NewWriter(out)
	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "date", report.Date},
		{"summary", "pod_id", report.PodID},
		{"summary", "orders", strconv.FormatInt(report.Orders, 10)},
		{"summary", "cancelled", strconv.FormatInt(report.Cancelled, 10)},
		{"summary", "gross_sales", report.GrossSales.StringFixed(2)},
		{"summary", "delivery_fees", report.DeliveryFees.StringFixed(2)},
		{"summary", "cash_expected", report.CashExpected.StringFixed(2)},
	}
	for _, payment := range report.ByPayment {
		rows = append(rows,
			[]string{"payment", string(payment.PaymentMethod) + "_orders", strconv.FormatInt(payment.Orders, 10)},
			[]string{"payment", string(payment.PaymentMethod) + "_total", payment.Total.StringFixed(2)},
		)
	}
	for _, channel := range report.ByChannel {
		rows = append(rows,
			[]string{"channel", string(channel.Channel) + "_orders", strconv.FormatInt(channel.Orders, 10)},
			[]string{"channel", string(channel.Channel) + "_total", channel.Total.StringFixed(2)},
		)
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}
