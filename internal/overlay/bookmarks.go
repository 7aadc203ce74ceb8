package overlay

import (
	"image"
	"image/color"
	"sort"
	"sync"
)

// Bookmark is a user-saved frequency of interest.
type Bookmark struct {
	ID        int64   `json:"id"`
	Label     string  `json:"label"`
	Frequency float64 `json:"frequency"` // Hz
}

// Bookmarks draws a vertical marker and label for each visible
// bookmark. The set is replaceable at runtime as the store changes.
type Bookmarks struct {
	mu        sync.Mutex
	bookmarks []Bookmark
	text      *annotator
	LineColor color.RGBA
	TextColor color.RGBA
}

// NewBookmarks creates the bookmark layer.
func NewBookmarks(line, text color.RGBA) (*Bookmarks, error) {
	a, err := newAnnotator()
	if err != nil {
		return nil, err
	}
	return &Bookmarks{text: a, LineColor: line, TextColor: text}, nil
}

func (b *Bookmarks) Name() string { return "bookmarks" }

// Set replaces the bookmark set, kept sorted by frequency.
func (b *Bookmarks) Set(bookmarks []Bookmark) {
	sorted := make([]Bookmark, len(bookmarks))
	copy(sorted, bookmarks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Frequency < sorted[j].Frequency
	})

	b.mu.Lock()
	b.bookmarks = sorted
	b.mu.Unlock()
}

// Visible returns the bookmarks inside the span, in frequency order.
func (b *Bookmarks) Visible(span Span) []Bookmark {
	b.mu.Lock()
	defer b.mu.Unlock()

	var visible []Bookmark
	for _, bm := range b.bookmarks {
		if span.Contains(bm.Frequency) {
			visible = append(visible, bm)
		}
	}
	return visible
}

func (b *Bookmarks) Draw(img *image.RGBA, span Span) error {
	if span.Width() <= 0 {
		return nil
	}

	bounds := img.Bounds()
	w := bounds.Dx()
	labelY := tickMarkHeight + 3*b.text.fontHeight()

	for _, bm := range b.Visible(span) {
		x := span.PixelOf(bm.Frequency, w)

		// Dashed vertical marker so the line reads as chrome, not data.
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			if (y/4)%2 == 0 {
				img.SetRGBA(bounds.Min.X+x, y, b.LineColor)
			}
		}

		if err := b.text.drawText(img, x+4, labelY, bm.Label, b.TextColor); err != nil {
			return err
		}
	}
	return nil
}
