package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/signalsfoundry/plant-trainer/model"
)

var base = time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)

func sampleRows() []Row {
	events := []model.HistoryEvent{
		{Time: base.Add(2 * time.Minute), Category: model.CategorySetpoint, Tag: "COA-FD-201", Description: "Alum dose setpoint: 18.0 → 25.0 mg/L", After: "25.0"},
		{Time: base, Category: model.CategoryPump, Tag: "INT-P-101", Description: "Intake pump 1 (INT-P-101): running → stopped", After: "stopped"},
	}
	alarms := []model.AlarmRecord{
		{RaisedAt: base.Add(time.Minute), Tag: "COA-AIT-201", Description: "Floc turbidity high", Priority: model.PriorityMedium, Value: 6.25, Unit: "NTU", State: model.AlarmCleared},
	}
	return Rows(events, alarms)
}

func TestRowsMergedNewestFirst(t *testing.T) {
	rows := sampleRows()
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].Tag != "COA-FD-201" || rows[1].Tag != "COA-AIT-201" || rows[2].Tag != "INT-P-101" {
		t.Fatalf("unexpected order: %+v", rows)
	}
	if rows[1].Priority != "medium" || rows[1].Value != "6.25 NTU" || rows[1].Status != "cleared" {
		t.Fatalf("alarm row = %+v", rows[1])
	}
	if rows[0].Status != "setpoint" || rows[0].Value != "25.0" {
		t.Fatalf("event row = %+v", rows[0])
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleRows()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("records = %d", len(records))
	}
	header := records[0]
	for i, col := range []string{"time", "tag", "description", "priority", "value", "status"} {
		if header[i] != col {
			t.Fatalf("header[%d] = %q, want %q", i, header[i], col)
		}
	}
	if records[1][2] != "Alum dose setpoint: 18.0 → 25.0 mg/L" || records[1][0] != "2025-04-02T12:02:00Z" {
		t.Fatalf("first data row = %v", records[1])
	}
}

func TestBuildXLSX(t *testing.T) {
	data, err := BuildXLSX(sampleRows())
	if err != nil {
		t.Fatalf("BuildXLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	got, err := f.GetCellValue("history", "C2")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if got != "Alum dose setpoint: 18.0 → 25.0 mg/L" {
		t.Fatalf("C2 = %q", got)
	}
}

func TestBuildPDF(t *testing.T) {
	data, err := BuildPDF(sampleRows(), base)
	if err != nil {
		t.Fatalf("BuildPDF: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output is not a PDF")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatCSV, "CSV": FormatCSV, "xlsx": FormatXLSX, "pdf": FormatPDF} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("docx"); err == nil {
		t.Fatalf("expected error for docx")
	}
}
