package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/zxspring21/AISEMITEST/internal/application"
	"github.com/zxspring21/AISEMITEST/internal/domain"
	"github.com/zxspring21/AISEMITEST/internal/ingest"
)

var stdout io.Writer = os.Stdout

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(b))
	return err
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(stdout, "no results")
		return
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func formatMaybeInt64(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

func formatYield(pass, total int64) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", 100*float64(pass)/float64(total))
}

func i64(v int64) string { return strconv.FormatInt(v, 10) }

func uintToString(v uint) string { return strconv.FormatUint(uint64(v), 10) }

func joinIDs(ids []uint) string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, uintToString(id))
	}
	return strings.Join(out, ",")
}

func printLoadResult(res application.LoadResult) {
	rows := [][2]string{
		{"run_id", res.RunID},
		{"source", res.Source},
		{"sha256", res.SHA256},
		{"lot_ids", joinIDs(res.Stats.LotIDs)},
		{"records", i64(res.Stats.Records)},
		{"wafers", i64(res.Stats.Wafers)},
		{"dies", i64(res.Stats.Dies)},
		{"bins", i64(res.Stats.Bins)},
		{"test_items", i64(res.Stats.TestItems)},
		{"discarded", i64(res.Stats.Discarded)},
		{"duration", res.Duration.Round(time.Millisecond).String()},
	}
	kinds := make([]ingest.Kind, 0, len(res.Stats.Warnings))
	for kind := range res.Stats.Warnings {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, kind := range kinds {
		rows = append(rows, [2]string{"warning." + kind.String(), i64(res.Stats.Warnings[kind])})
	}
	printKV(rows)
}

func printOverview(v domain.Overview) {
	printKV([][2]string{
		{"companies", i64(v.Companies)},
		{"products", i64(v.Products)},
		{"lots", i64(v.Lots)},
		{"wafers", i64(v.Wafers)},
		{"dies", i64(v.Dies)},
		{"test_items", i64(v.TestItems)},
	})
}

func printLots(items []domain.LotSummary) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			uintToString(item.Lot.ID),
			item.Lot.Identifier,
			item.Product,
			item.Stage,
			item.Program,
			i64(item.DieCount),
			formatYield(item.PassCount, item.DieCount),
			formatTime(item.Lot.StartTime),
		})
	}
	printTable([]string{"ID", "LOT", "PRODUCT", "STAGE", "PROGRAM", "DIES", "YIELD", "STARTED"}, rows)
}

func printLotSummary(item domain.LotSummary) {
	printKV([][2]string{
		{"id", uintToString(item.Lot.ID)},
		{"lot", item.Lot.Identifier},
		{"company", item.Company},
		{"product", item.Product},
		{"stage", item.Stage},
		{"program", item.Program},
		{"revision", item.Revision},
		{"part_type", item.Lot.PartType},
		{"tester", item.Lot.TesterType},
		{"node", item.Lot.NodeName},
		{"operator", item.Lot.Operator},
		{"started", formatTime(item.Lot.StartTime)},
		{"finished", formatTime(item.Lot.FinishTime)},
		{"wafers", i64(item.WaferCount)},
		{"dies", i64(item.DieCount)},
		{"pass", i64(item.PassCount)},
		{"fail", i64(item.FailCount)},
		{"yield", formatYield(item.PassCount, item.DieCount)},
		{"test_items", i64(item.TestItems)},
	})
}

func printBins(items []domain.BinCount) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{item.Kind, strconv.Itoa(item.Bin), item.Name, i64(item.Count)})
	}
	printTable([]string{"KIND", "BIN", "NAME", "COUNT"}, rows)
}

func printPareto(items []domain.FailCount) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			i64(item.TestNum),
			item.TestType,
			item.TestText,
			item.Suite,
			i64(item.Fails),
			i64(item.Executed),
		})
	}
	printTable([]string{"TEST", "TYPE", "TEXT", "SUITE", "FAILS", "EXECUTED"}, rows)
}

func printSuites(items []domain.SuiteItems) {
	rows := make([][]string, 0, len(items))
	for _, suite := range items {
		name := suite.Suite
		if name == "" {
			name = "-"
		}
		for _, test := range suite.Tests {
			rows = append(rows, []string{name, i64(test.TestNum), test.TestType, test.TestText, i64(test.Count)})
		}
	}
	printTable([]string{"SUITE", "TEST", "TYPE", "TEXT", "ITEMS"}, rows)
}

func printWafers(items []domain.WaferYield) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			uintToString(item.Wafer.ID),
			item.Wafer.Identifier,
			strconv.Itoa(item.Wafer.HeadNum),
			i64(item.Dies),
			i64(item.Pass),
			i64(item.Fail),
			formatYield(item.Pass, item.Dies),
			formatMaybeInt64(item.Wafer.GoodCount),
		})
	}
	printTable([]string{"ID", "WAFER", "HEAD", "DIES", "PASS", "FAIL", "YIELD", "REPORTED_GOOD"}, rows)
}

func printEquipment(items []domain.SiteEquipment) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.Itoa(item.HeadNum),
			strconv.Itoa(item.SiteGroup),
			orDash(item.HandlerID),
			orDash(item.ProbeCardID),
			orDash(item.LoadBoardID),
			orDash(item.DIBID),
			orDash(item.ContactorID),
		})
	}
	printTable([]string{"HEAD", "SITE_GROUP", "HANDLER", "PROBE_CARD", "LOAD_BOARD", "DIB", "CONTACTOR"}, rows)
}

func printImports(items []domain.ImportRun) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		finished := item.FinishedAt
		rows = append(rows, []string{
			item.ID,
			item.FileName,
			joinIDs(item.LotIDs),
			i64(item.Dies),
			i64(item.TestItems),
			i64(item.Warnings),
			formatTime(&finished),
		})
	}
	printTable([]string{"RUN", "FILE", "LOTS", "DIES", "TEST_ITEMS", "WARNINGS", "FINISHED"}, rows)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
