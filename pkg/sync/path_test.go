package sync

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sidkik/drivesync/pkg/remote"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		exp   string
	}{
		{"Plain", "report.txt", 50, "report.txt"},
		{"ReservedCharacters", `a<b>c:d"e/f\g|h?i*j`, 50, "abcdefghij"},
		{"ControlCharacters", "tab\there\nnewline\x7f", 50, "tabherenewline"},
		{"Truncated", strings.Repeat("x", 60), 50, strings.Repeat("x", 50)},
		{"TruncatedByRunes", "ééééé", 3, "ééé"},
		{"NoLimit", strings.Repeat("y", 80), 0, strings.Repeat("y", 80)},
		{"OnlyReserved", "???", 50, ""},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, SanitizeName(test.input, test.max))
		})
	}
}

func TestLocalName(t *testing.T) {
	tests := []struct {
		name  string
		entry remote.Entry
		exp   string
	}{
		{"Name", remote.Entry{ID: "id", Name: "Q1"}, "Q1"},
		{"EmptyAfterSanitizing", remote.Entry{ID: "abc123", Name: "***"}, "abc123"},
		{"Dot", remote.Entry{ID: "abc123", Name: "."}, "abc123"},
		{"DotDot", remote.Entry{ID: "abc123", Name: ".."}, "abc123"},
		{"TraversalIsFlattened", remote.Entry{ID: "id", Name: "../../etc"}, "....etc"},
		{"UnusableID", remote.Entry{ID: "..", Name: ""}, "_"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, localName(test.entry, DefaultMaxNameLength))
		})
	}
}

func TestLocalPath(t *testing.T) {
	exports := DefaultExportTable()
	tests := []struct {
		name string
		item Item
		exp  string
	}{
		{
			name: "RegularFile",
			item: Item{
				Entry:   remote.Entry{Kind: remote.KindFile, MimeType: "text/plain"},
				RelPath: filepath.Join("Reports", "Q1.txt"),
			},
			exp: filepath.Join("/mirror", "Reports", "Q1.txt"),
		},
		{
			name: "Document",
			item: Item{
				Entry: remote.Entry{
					Kind:      remote.KindFile,
					Composite: true,
					MimeType:  "application/vnd.google-apps.document",
				},
				RelPath: "Plan",
			},
			exp: filepath.Join("/mirror", "Plan.pdf"),
		},
		{
			name: "ExtensionAlreadyPresent",
			item: Item{
				Entry: remote.Entry{
					Kind:      remote.KindFile,
					Composite: true,
					MimeType:  "application/vnd.google-apps.spreadsheet",
				},
				RelPath: "Budget.XLSX",
			},
			exp: filepath.Join("/mirror", "Budget.XLSX"),
		},
		{
			name: "UnknownComposite",
			item: Item{
				Entry: remote.Entry{
					Kind:      remote.KindFile,
					Composite: true,
					MimeType:  "application/vnd.google-apps.form",
				},
				RelPath: "Survey",
			},
			exp: filepath.Join("/mirror", "Survey"),
		},
		{
			name: "Folder",
			item: Item{
				Entry:   remote.Entry{Kind: remote.KindFolder},
				RelPath: "Reports",
			},
			exp: filepath.Join("/mirror", "Reports"),
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, LocalPath("/mirror", test.item, exports))
		})
	}
}
