package ingest

import (
	"errors"
	"strings"
	"testing"

	"mailmerge/internal/types"
)

func TestParseRecipientsRejectsNonCSVExtension(t *testing.T) {
	_, err := ParseRecipients("recipients.xlsx", strings.NewReader("a,b\n1,2\n"))
	assertAppErrorCode(t, err, types.ErrCodeValidationInvalidFileType)
}

func TestParseRecipientsExtensionCheckIsCaseSensitive(t *testing.T) {
	_, err := ParseRecipients("RECIPIENTS.CSV", strings.NewReader("a,b\n1,2\n"))
	assertAppErrorCode(t, err, types.ErrCodeValidationInvalidFileType)
}

func TestParseRecipientsRejectsHeaderOnlyFile(t *testing.T) {
	_, err := ParseRecipients("r.csv", strings.NewReader("First Name,Email Address\n\n  \n"))
	assertAppErrorCode(t, err, types.ErrCodeValidationFileTooShort)
}

func TestParseRecipientsRejectsEmptyFile(t *testing.T) {
	_, err := ParseRecipients("r.csv", strings.NewReader(""))
	assertAppErrorCode(t, err, types.ErrCodeValidationFileTooShort)
}

func TestParseRecipientsMapsValuesPositionally(t *testing.T) {
	input := "First Name,Last Name,Email Address\n" +
		"Ana,Silva,ana@example.com\n" +
		"Bruno,Costa,bruno@example.com\n"

	rs, err := ParseRecipients("r.csv", strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseRecipients() error = %v", err)
	}

	if got := len(rs.Columns); got != 3 {
		t.Fatalf("len(Columns) = %d, want 3", got)
	}
	if rs.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rs.Len())
	}
	if got := rs.Row(0).Get("First Name"); got != "Ana" {
		t.Errorf("row 0 First Name = %q", got)
	}
	if got := rs.Row(1).EmailAddress(); got != "bruno@example.com" {
		t.Errorf("row 1 address = %q", got)
	}
}

func TestParseRecipientsMissingCellsDefaultToEmpty(t *testing.T) {
	rs, err := ParseRecipients("r.csv", strings.NewReader("a,b,c\n1,2\n"))
	if err != nil {
		t.Fatalf("ParseRecipients() error = %v", err)
	}
	row := rs.Row(0)
	if row.Get("c") != "" {
		t.Errorf("missing cell = %q, want empty", row.Get("c"))
	}
	if _, present := row["c"]; !present {
		t.Error("missing cell should still be present as an empty value")
	}
}

func TestParseRecipientsExtraCellsAreDropped(t *testing.T) {
	rs, err := ParseRecipients("r.csv", strings.NewReader("a,b\n1,2,3,4\n"))
	if err != nil {
		t.Fatalf("ParseRecipients() error = %v", err)
	}
	row := rs.Row(0)
	if len(row) != 2 {
		t.Errorf("len(row) = %d, want 2", len(row))
	}
	if row.Get("b") != "2" {
		t.Errorf("b = %q, want 2", row.Get("b"))
	}
}

func TestParseRecipientsSkipsBlankLinesAndTrims(t *testing.T) {
	input := "\n  First Name , Email Address \n\n Ana , ana@example.com \n   \n"
	rs, err := ParseRecipients("r.csv", strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseRecipients() error = %v", err)
	}
	if rs.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", rs.Len())
	}
	if got := rs.Row(0).Get("First Name"); got != "Ana" {
		t.Errorf("First Name = %q, want trimmed value", got)
	}
}

func TestParseRecipientsDoesNotInterpretQuotes(t *testing.T) {
	// No CSV dialect handling: a quoted comma still splits.
	rs, err := ParseRecipients("r.csv", strings.NewReader("a,b\n\"x,y\",z\n"))
	if err != nil {
		t.Fatalf("ParseRecipients() error = %v", err)
	}
	row := rs.Row(0)
	if row.Get("a") != `"x` || row.Get("b") != `y"` {
		t.Errorf("quoted comma was interpreted: a=%q b=%q", row.Get("a"), row.Get("b"))
	}
}

func TestParseRecipientsHandlesCRLF(t *testing.T) {
	rs, err := ParseRecipients("r.csv", strings.NewReader("a,b\r\n1,2\r\n"))
	if err != nil {
		t.Fatalf("ParseRecipients() error = %v", err)
	}
	if got := rs.Row(0).Get("b"); got != "2" {
		t.Errorf("b = %q, want 2 (carriage returns stripped)", got)
	}
}

func assertAppErrorCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error is not an AppError: %v", err)
	}
	if appErr.Code != code {
		t.Errorf("error code = %q, want %q", appErr.Code, code)
	}
}
