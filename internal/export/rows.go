// Package export renders the operator history table for download as CSV,
// XLSX or PDF.
package export

import (
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/plant-trainer/model"
)

// Columns is the fixed header of every export format.
var Columns = []string{"time", "tag", "description", "priority", "value", "status"}

// Row is one line of the history table.
type Row struct {
	Time        time.Time
	Tag         string
	Description string
	Priority    string
	Value       string
	Status      string
}

// Cells returns the row in column order.
func (r Row) Cells() []string {
	return []string{r.Time.UTC().Format(time.RFC3339), r.Tag, r.Description, r.Priority, r.Value, r.Status}
}

// Rows merges operator events and alarm records into one table, newest first.
// Events carry their category as status; alarms carry their lifecycle state.
func Rows(events []model.HistoryEvent, alarms []model.AlarmRecord) []Row {
	rows := make([]Row, 0, len(events)+len(alarms))
	for _, ev := range events {
		rows = append(rows, Row{
			Time:        ev.Time,
			Tag:         ev.Tag,
			Description: ev.Description,
			Value:       ev.After,
			Status:      string(ev.Category),
		})
	}
	for _, a := range alarms {
		rows = append(rows, Row{
			Time:        a.RaisedAt,
			Tag:         a.Tag,
			Description: a.Description,
			Priority:    string(a.Priority),
			Value:       formatAlarmValue(a),
			Status:      string(a.State),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time.After(rows[j].Time) })
	return rows
}

func formatAlarmValue(a model.AlarmRecord) string {
	if a.Unit == "" {
		return fmt.Sprintf("%.2f", a.Value)
	}
	return fmt.Sprintf("%.2f %s", a.Value, a.Unit)
}
