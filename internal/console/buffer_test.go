package console

import (
	"fmt"
	"sync"
	"testing"
)

func line(text string) Line {
	return Line{Stream: "stdout", Text: text}
}

func texts(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

func TestBufferTail(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		append int
		tail   int
		want   []string
	}{
		{
			name:   "empty buffer",
			size:   4,
			append: 0,
			tail:   3,
			want:   nil,
		},
		{
			name:   "partial fill",
			size:   4,
			append: 2,
			tail:   2,
			want:   []string{"0", "1"},
		},
		{
			name:   "tail larger than contents",
			size:   4,
			append: 2,
			tail:   10,
			want:   []string{"0", "1"},
		},
		{
			name:   "exactly full",
			size:   4,
			append: 4,
			tail:   4,
			want:   []string{"0", "1", "2", "3"},
		},
		{
			name:   "wrapped evicts oldest",
			size:   4,
			append: 6,
			tail:   4,
			want:   []string{"2", "3", "4", "5"},
		},
		{
			name:   "wrapped short tail",
			size:   4,
			append: 6,
			tail:   2,
			want:   []string{"4", "5"},
		},
		{
			name:   "wrapped tail spanning the seam",
			size:   4,
			append: 5,
			tail:   4,
			want:   []string{"1", "2", "3", "4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(tt.size)
			for i := 0; i < tt.append; i++ {
				b.Append(line(fmt.Sprintf("%d", i)))
			}

			got := texts(b.Tail(tt.tail))
			if len(got) != len(tt.want) {
				t.Fatalf("Tail(%d) returned %d lines, want %d: %v", tt.tail, len(got), len(tt.want), got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Tail(%d)[%d] = %q, want %q", tt.tail, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBufferLen(t *testing.T) {
	b := NewBuffer(3)
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}

	b.Append(line("a"))
	b.Append(line("b"))
	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}

	b.Append(line("c"))
	b.Append(line("d"))
	if b.Len() != 3 {
		t.Errorf("Len() after wrap = %d, want 3", b.Len())
	}
	if b.Cap() != 3 {
		t.Errorf("Cap() = %d, want 3", b.Cap())
	}
}

func TestBufferDefaultSize(t *testing.T) {
	b := NewBuffer(0)
	if b.Cap() != 2000 {
		t.Errorf("Cap() = %d, want 2000", b.Cap())
	}
}

func TestBufferConcurrentAccess(t *testing.T) {
	b := NewBuffer(64)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				b.Append(line(fmt.Sprintf("w%d-%d", w, i)))
				_ = b.Tail(10)
			}
		}(w)
	}
	wg.Wait()

	if b.Len() != 64 {
		t.Errorf("Len() = %d, want 64", b.Len())
	}
}
