package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/uhyunpark/tokenex/pkg/app/core/events"
)

func TestFileJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	j, err := NewFileJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range testChangeSet().Events {
		if err := j.Publish(context.Background(), ev); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var seqs []uint64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev events.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		seqs = append(seqs, ev.Seq)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Errorf("journal seqs = %v", seqs)
	}
}
