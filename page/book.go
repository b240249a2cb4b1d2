package page

import "github.com/congc/congc/internal/classes"

// Book is the collection of per-size-class Page lists plus the empty-page
// cache and the oversize list. No Page appears in more than one of
// ClassHeads/EmptyHead at a time; callers are responsible for unlinking a
// Page from its current list before relinking it elsewhere.
type Book struct {
	ClassHeads [len(classes.Sizes)]*Page
	EmptyHead  *Page
	PageCount  int

	OversizeHead  *Oversize
	OversizeCount int
	OversizeBytes uint64
}

// NewBook returns an empty Book.
func NewBook() *Book {
	return &Book{}
}

// PushFront links p onto the front of the list rooted at head.
func PushFront(head **Page, p *Page) {
	p.Next = *head
	*head = p
}

// PopFront unlinks and returns the front of the list rooted at head, or nil
// if the list is empty.
func PopFront(head **Page) *Page {
	p := *head
	if p == nil {
		return nil
	}
	*head = p.Next
	p.Next = nil
	return p
}

// PushClass links p onto the front of the class-i list.
func (b *Book) PushClass(i int, p *Page) {
	PushFront(&b.ClassHeads[i], p)
}

// PushEmpty links p onto the front of the empty-page cache.
func (b *Book) PushEmpty(p *Page) {
	PushFront(&b.EmptyHead, p)
}

// PopEmpty detaches and returns the front of the empty-page cache.
func (b *Book) PopEmpty() *Page {
	return PopFront(&b.EmptyHead)
}

// LiveBytes recomputes the live-set size: the sum of in-use bytes across
// every class list, excluding the empty cache and oversize blocks.
func (b *Book) LiveBytes() uint64 {
	var total uint64
	for i := range b.ClassHeads {
		for p := b.ClassHeads[i]; p != nil; p = p.Next {
			total += p.Bytes()
		}
	}
	return total
}

// PushOversize links o onto the front of the oversize list.
func (b *Book) PushOversize(o *Oversize) {
	o.Next = b.OversizeHead
	b.OversizeHead = o
	b.OversizeCount++
	b.OversizeBytes += uint64(len(o.Buf))
}
