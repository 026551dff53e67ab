package draft

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
)

func sampleForm() Form {
	f := DefaultForm()
	f.VendorName = "PT Maju Jaya"
	f.JobDescription = "Perbaikan pipa"
	f.Workers = []entity.Worker{
		{Name: "Budi", Photo: "/uploads/budi.jpg"},
		{Name: "Sari"},
	}
	f.WorkerCount = 2
	return f
}

func waitStored(t *testing.T, s Storage, key string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, ok, _ := s.Get(context.Background(), key); ok {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("draft %s was never written", key)
	return ""
}

func TestScheduleDebounces(t *testing.T) {
	store := NewMemoryStorage()
	p := New(store, Options{Debounce: 40 * time.Millisecond})
	defer p.Close()

	f := sampleForm()
	p.Schedule(f)
	time.Sleep(15 * time.Millisecond)
	f.WorkLocation = "Area Kilang 3"
	p.Schedule(f)

	if _, ok, _ := store.Get(context.Background(), p.Key()); ok {
		t.Fatal("nothing should be written before the debounce elapses")
	}
	raw := waitStored(t, store, p.Key())

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("stored draft is not an envelope: %v", err)
	}
	if env.Version != CurrentVersion || env.Form.WorkLocation != "Area Kilang 3" {
		t.Errorf("expected the last scheduled form, got %+v", env)
	}
}

func TestRestoreNotifiesOnce(t *testing.T) {
	store := NewMemoryStorage()
	p := New(store, Options{})
	p.Schedule(sampleForm())
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	form, notify := p.Restore(context.Background())
	if !notify || form.VendorName != "PT Maju Jaya" || len(form.Workers) != 2 {
		t.Fatalf("unexpected restore %+v notify=%v", form, notify)
	}
	if _, notify := p.Restore(context.Background()); notify {
		t.Error("restoration notice must not repeat")
	}
}

func TestRestoreIgnoresCorruptAndOtherVersions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	p := New(store, Options{})

	store.Set(ctx, p.Key(), "{not json")
	form, notify := p.Restore(ctx)
	if notify || form.VendorName != "" || len(form.Workers) != 1 {
		t.Errorf("corrupt draft should yield the default form, got %+v", form)
	}

	old, _ := json.Marshal(envelope{Version: 1, Form: sampleForm()})
	store.Set(ctx, p.Key(), string(old))
	if form, notify := p.Restore(ctx); notify || form.VendorName != "" {
		t.Errorf("other-version draft should be ignored, got %+v", form)
	}

	if _, ok, _ := store.Get(ctx, "simlok:submission-draft:v1"); ok {
		t.Error("drafts of different versions live under different keys")
	}
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	p := New(store, Options{})
	p.Schedule(sampleForm())
	p.Flush(ctx)

	if _, deleted, err := p.Delete(ctx, func() bool { return false }); deleted || err != nil {
		t.Fatalf("declined delete must keep the draft, deleted=%v err=%v", deleted, err)
	}
	if _, ok, _ := store.Get(ctx, p.Key()); !ok {
		t.Fatal("draft should still exist")
	}

	form, deleted, err := p.Delete(ctx, func() bool { return true })
	if !deleted || err != nil {
		t.Fatalf("confirmed delete failed: %v", err)
	}
	if form.HasContent() || form.WorkerCount != 1 {
		t.Errorf("delete should reset to defaults, got %+v", form)
	}
	if _, ok, _ := store.Get(ctx, p.Key()); ok {
		t.Error("draft should be removed")
	}
}

func TestClearCancelsScheduledWrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	p := New(store, Options{Debounce: 20 * time.Millisecond})
	p.Schedule(sampleForm())
	if err := p.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok, _ := store.Get(ctx, p.Key()); ok {
		t.Error("a cleared draft must not be resurrected by the pending write")
	}
	if p.Pending() {
		t.Error("no write should remain scheduled")
	}
}

func TestCloseStopsTimer(t *testing.T) {
	store := NewMemoryStorage()
	p := New(store, Options{Debounce: 20 * time.Millisecond})
	p.Schedule(sampleForm())
	p.Close()
	p.Schedule(sampleForm())
	time.Sleep(60 * time.Millisecond)
	if _, ok, _ := store.Get(context.Background(), p.Key()); ok {
		t.Error("closed persistence must not write")
	}
}

func TestHasContent(t *testing.T) {
	date := entity.NewDate(2024, time.May, 1)
	tests := []struct {
		name string
		form func() Form
		want bool
	}{
		{"default", DefaultForm, false},
		{"text only", func() Form {
			f := DefaultForm()
			f.VendorName = "PT Maju"
			f.Workers[0].Name = "Budi"
			return f
		}, false},
		{"photo", func() Form {
			f := DefaultForm()
			f.Workers[0].Photo = "/uploads/p.jpg"
			return f
		}, true},
		{"hsse document", func() Form {
			f := DefaultForm()
			f.Workers[0].HSSEPassDocument = "/uploads/h.pdf"
			return f
		}, true},
		{"optional group", func() Form {
			f := DefaultForm()
			f.Documents = []entity.SupportDocument{{Category: entity.DocumentJSA, Date: date}}
			return f
		}, true},
		{"core document only", func() Form {
			f := DefaultForm()
			f.Documents = []entity.SupportDocument{{Category: entity.DocumentSIMJA, Number: "1"}}
			return f
		}, false},
		{"two workers", func() Form {
			f := DefaultForm()
			f.Workers = append(f.Workers, entity.Worker{})
			return f
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.form().HasContent(); got != tt.want {
				t.Errorf("HasContent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFileStorage(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	p := New(fs, Options{})
	p.Schedule(sampleForm())
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	form, notify := p.Restore(ctx)
	if !notify || form.JobDescription != "Perbaikan pipa" {
		t.Fatalf("unexpected restore %+v", form)
	}
	if err := p.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := fs.Remove(ctx, p.Key()); err != nil {
		t.Errorf("removing a missing draft is not an error, got %v", err)
	}
}
