package context

import (
	"fmt"
	"strings"
	"testing"

	"github.com/anvilworks/anvil/internal/agent"
)

func user(content string) agent.Message {
	return agent.Message{Role: "user", Content: content}
}

func TestWindow_AppendPreservesOrder(t *testing.T) {
	w := NewWindow(Options{MaxMessages: 10, MaxChars: 1000, MinRecent: 1})
	for i := 0; i < 5; i++ {
		w.Append(user(fmt.Sprintf("msg-%d", i)))
	}
	snap := w.Snapshot()
	for i, m := range snap {
		if m.Content != fmt.Sprintf("msg-%d", i) {
			t.Fatalf("order broken at %d: %q", i, m.Content)
		}
	}
}

func TestWindow_MessageCap(t *testing.T) {
	w := NewWindow(Options{MaxMessages: 3, MaxChars: 100000, MinRecent: 1})
	for i := 0; i < 10; i++ {
		w.Append(user(fmt.Sprintf("m%d", i)))
	}
	if w.Len() != 3 {
		t.Fatalf("len = %d, want 3", w.Len())
	}
	snap := w.Snapshot()
	if snap[0].Content != "m7" || snap[2].Content != "m9" {
		t.Fatalf("oldest entries should be evicted, got %v", snap)
	}
}

func TestWindow_CharCap(t *testing.T) {
	// max_chars 20, "Hello World!" (12) then "Another msg" (11): the
	// window must end with char_total <= 20 or len == 1.
	w := NewWindow(Options{MaxMessages: 100, MaxChars: 20, MinRecent: 1})
	w.Append(user("Hello World!"))
	w.Append(user("Another msg"))

	if w.CharTotal() > 20 && w.Len() != 1 {
		t.Fatalf("invariant violated: chars=%d len=%d", w.CharTotal(), w.Len())
	}
}

func TestWindow_InvariantAfterEveryAppend(t *testing.T) {
	opts := Options{MaxMessages: 7, MaxChars: 50, MinRecent: 2}
	w := NewWindow(opts)
	for i := 0; i < 40; i++ {
		w.Append(user(strings.Repeat("x", i%23)))
		if w.Len() > opts.MaxMessages {
			t.Fatalf("append %d: len %d > max %d", i, w.Len(), opts.MaxMessages)
		}
		if w.CharTotal() > opts.MaxChars && w.Len() > opts.MinRecent {
			t.Fatalf("append %d: chars %d > max with len %d", i, w.CharTotal(), w.Len())
		}
	}
}

func TestWindow_MinRecentFloor(t *testing.T) {
	w := NewWindow(Options{MaxMessages: 100, MaxChars: 10, MinRecent: 3})
	for i := 0; i < 5; i++ {
		w.Append(user(strings.Repeat("y", 50)))
	}
	if w.Len() < 3 {
		t.Fatalf("min recent floor violated: len=%d", w.Len())
	}
}

func TestWindow_ProjectWithinBudget(t *testing.T) {
	w := NewWindow(Options{MaxMessages: 10, MaxChars: 10000, MinRecent: 1})
	w.Append(user("aaaaa"))  // 5
	w.Append(user("bbbbb"))  // 5
	w.Append(user("ccccc"))  // 5

	got := w.Project(11)
	if len(got) != 2 {
		t.Fatalf("expected newest 2 messages, got %d", len(got))
	}
	if got[0].Content != "bbbbb" || got[1].Content != "ccccc" {
		t.Fatalf("projection must keep insertion order of the newest fit: %v", got)
	}
}

func TestWindow_ProjectTruncatesOversizedNewest(t *testing.T) {
	w := NewWindow(Options{MaxMessages: 10, MaxChars: 10000, MinRecent: 1})
	w.Append(user("short"))
	w.Append(user(strings.Repeat("z", 100)))

	got := w.Project(10)
	if len(got) != 1 {
		t.Fatalf("expected a single truncated message, got %d", len(got))
	}
	if len(got[0].Content) != 10 {
		t.Fatalf("content should be truncated to budget, got %d chars", len(got[0].Content))
	}
}

func TestWindow_ProjectDoesNotMutate(t *testing.T) {
	w := NewWindow(Options{MaxMessages: 10, MaxChars: 10000, MinRecent: 1})
	long := strings.Repeat("q", 50)
	w.Append(user(long))
	w.Project(10)
	if w.Snapshot()[0].Content != long {
		t.Fatal("projection must not mutate the buffer")
	}
}

func TestWindow_ProjectZeroBudget(t *testing.T) {
	w := NewWindow(DefaultOptions())
	w.Append(user("hi"))
	if got := w.Project(0); got != nil {
		t.Fatalf("zero budget should project nothing, got %v", got)
	}
}

func TestWindow_Clear(t *testing.T) {
	w := NewWindow(DefaultOptions())
	w.Append(user("gone"))
	w.Clear()
	if w.Len() != 0 || w.CharTotal() != 0 {
		t.Fatal("clear should reset everything")
	}
}
