package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"

	"github.com/kjannette/optiontrack/internal/models"
)

func renderRows(w io.Writer, format string, rows []models.PersistedRow) error {
	switch format {
	case "csv":
		return gocsv.Marshal(&rows, w)
	case "json":
		return writeJSON(w, rows)
	case "table", "":
	default:
		return fmt.Errorf("unknown format %q (table, csv, json)", format)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Load date", "Time", "Expiry", "Spot", "Strike", "Right", "Price", "Bid", "Ask", "OI", "Volume", "IV"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, r := range rows {
		table.Append([]string{
			r.LoadDate, r.LoadTime, r.ExpiryGroup,
			money(r.SpotPrice), money(r.Strike), r.Right,
			money(r.Price), money(r.Bid), money(r.Ask),
			strconv.FormatInt(r.OpenInterest, 10), strconv.FormatInt(r.Volume, 10),
			percent(r.IV),
		})
	}
	table.Render()
	return nil
}

func renderMetrics(w io.Writer, format string, rows []models.MetricsRow) error {
	switch format {
	case "csv":
		return gocsv.Marshal(&rows, w)
	case "json":
		return writeJSON(w, rows)
	case "table", "":
	default:
		return fmt.Errorf("unknown format %q (table, csv, json)", format)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Load date", "Time", "Expiry", "Spot", "ATM", "Call IV", "Put IV", "Avg IV", "Lower", "Upper", "Move"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, m := range rows {
		table.Append([]string{
			m.LoadDate, m.LoadTime, m.ExpiryGroup, money(m.SpotPrice),
			optMoney(m.ATMStrike), percent(m.CallIV), percent(m.PutIV), percent(m.AverageIV),
			optMoney(m.Lower), optMoney(m.Upper), optMoney(m.ExpectedMove),
		})
	}
	table.Render()
	return nil
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func optMoney(v *float64) string {
	if v == nil {
		return "-"
	}
	return money(*v)
}

func percent(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v*100, 'f', 1, 64) + "%"
}
