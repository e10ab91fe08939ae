package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openclerk/invoiceaudit/internal/inbox"
	"github.com/openclerk/invoiceaudit/internal/models"
)

func TestRunner_ProcessOnceArchivesAfterRun(t *testing.T) {
	inboxDir := t.TempDir()
	archiveDir := t.TempDir()

	path := filepath.Join(inboxDir, "invoice_001.txt")
	if err := os.WriteFile(path, []byte("INVOICE #1"), 0600); err != nil {
		t.Fatal(err)
	}

	sched, err := inbox.NewScheduler(inboxDir, archiveDir, []string{".txt"})
	if err != nil {
		t.Fatal(err)
	}
	o := NewOrchestrator(
		&fakeExtractor{text: "INVOICE #1"},
		&fakeStandardizer{invoice: &models.StructuredInvoice{}},
		&fakeChecker{},
	)
	r := NewRunner(sched, o, time.Second)

	r.ProcessOnce(context.Background())

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("source file should be archived out of the inbox")
	}
	entries, _ := os.ReadDir(archiveDir)
	if len(entries) != 1 {
		t.Fatalf("archive has %d entries, want 1", len(entries))
	}
}

func TestRunner_ArchivesFailedDocumentsToo(t *testing.T) {
	inboxDir := t.TempDir()
	archiveDir := t.TempDir()

	path := filepath.Join(inboxDir, "poison.txt")
	if err := os.WriteFile(path, []byte("junk"), 0600); err != nil {
		t.Fatal(err)
	}

	sched, err := inbox.NewScheduler(inboxDir, archiveDir, []string{".txt"})
	if err != nil {
		t.Fatal(err)
	}
	o := NewOrchestrator(
		&fakeExtractor{err: os.ErrNotExist},
		&fakeStandardizer{},
		&fakeChecker{},
	)
	r := NewRunner(sched, o, time.Second)

	r.ProcessOnce(context.Background())

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("poison document must still be archived so it cannot block the queue")
	}
}
