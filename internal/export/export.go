// Package export writes conversations to an xlsx workbook.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"github.com/xuri/excelize/v2"

	"github.com/tony-assistant/console/internal/models"
)

// Sheet names.
const (
	ConversationsSheet = "Conversations"
	MessagesSheet      = "Messages"
)

const timeFormat = "2006-01-02 15:04"

var conversationHeaders = []string{
	"ID", "User", "User ID", "Status", "Mode", "Unread", "Operator",
	"Tags", "Messages", "Pending Response", "Last Activity",
}

var messageHeaders = []string{
	"Conversation ID", "Message ID", "Sender", "Status", "Edited", "Timestamp", "Content",
}

// Options controls the workbook layout.
type Options struct {
	// IncludeMessages adds a sheet with every message transcript.
	IncludeMessages bool
	// Location formats timestamps. Defaults to time.Local.
	Location *time.Location
}

// Row is one line of the conversations sheet. Fields sharing a name with
// models.Conversation are filled by copier.
type Row struct {
	ID               string
	UserName         string
	UserID           string
	Status           string
	Mode             string
	UnreadCount      int
	AssignedOperator string
	TagList          string
	MessageCount     int
	Pending          string
	Activity         string
}

// Rows flattens conversations into sheet rows.
func Rows(convs []models.Conversation, loc *time.Location) ([]Row, error) {
	if loc == nil {
		loc = time.Local
	}
	rows := make([]Row, 0, len(convs))
	for _, conv := range convs {
		var row Row
		if err := copier.Copy(&row, &conv); err != nil {
			return nil, fmt.Errorf("map conversation %s: %w", conv.ID, err)
		}
		row.UserName = conv.User.Name
		row.UserID = conv.User.ID
		row.TagList = strings.Join(conv.Tags, ", ")
		row.MessageCount = len(conv.Messages)
		if conv.HasPendingResponse() {
			row.Pending = conv.PendingResponse.Content
		}
		if !conv.LastActivity.IsZero() {
			row.Activity = conv.LastActivity.In(loc).Format(timeFormat)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Write renders the workbook to w.
func Write(w io.Writer, convs []models.Conversation, opts Options) error {
	f, err := build(convs, opts)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteFile renders the workbook to path.
func WriteFile(path string, convs []models.Conversation, opts Options) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}
	f, err := build(convs, opts)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func build(convs []models.Conversation, opts Options) (*excelize.File, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	rows, err := Rows(convs, loc)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(ConversationsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	if err := writeRow(f, ConversationsSheet, 1, toCells(conversationHeaders)); err != nil {
		f.Close()
		return nil, err
	}
	for i, r := range rows {
		cells := []any{
			r.ID, r.UserName, r.UserID, r.Status, r.Mode, r.UnreadCount, r.AssignedOperator,
			r.TagList, r.MessageCount, r.Pending, r.Activity,
		}
		if err := writeRow(f, ConversationsSheet, i+2, cells); err != nil {
			f.Close()
			return nil, err
		}
	}

	if opts.IncludeMessages {
		if err := writeMessages(f, convs, loc); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeMessages(f *excelize.File, convs []models.Conversation, loc *time.Location) error {
	if _, err := f.NewSheet(MessagesSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := writeRow(f, MessagesSheet, 1, toCells(messageHeaders)); err != nil {
		return err
	}
	line := 2
	for _, conv := range convs {
		for _, m := range conv.Messages {
			cells := []any{
				conv.ID, m.ID, string(m.Sender), string(m.Status), m.Edited,
				m.Timestamp.In(loc).Format(timeFormat), m.Content,
			}
			if err := writeRow(f, MessagesSheet, line, cells); err != nil {
				return err
			}
			line++
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
