package ackhandler

import "github.com/GeorgeHahn/quicrecovery/internal/protocol"

// PacketElement is one node of a PacketList, in the shape of the
// teacher's own intrusive linked-list nodes (the pattern the upstream
// repo uses for its ordered packet/symbol histories: a root sentinel,
// next/prev pointers, and a back-pointer to the owning list so Next()/
// Prev() can report "no more elements" at the sentinel).
type PacketElement struct {
	next, prev *PacketElement
	list       *PacketList

	Value PacketInfo
}

// Next returns the next list element, or nil if e is the last one.
func (e *PacketElement) Next() *PacketElement {
	if p := e.next; e.list != nil && p != &e.list.root {
		return p
	}
	return nil
}

// Prev returns the previous list element, or nil if e is the first one.
func (e *PacketElement) Prev() *PacketElement {
	if p := e.prev; e.list != nil && p != &e.list.root {
		return p
	}
	return nil
}

// PacketList is SentPackets (spec §3): an ordered mapping from packet
// number to PacketInfo, ordered by key ascending, supporting insert,
// erase-by-key, lookup-by-key and both ascending and descending
// iteration. Packets are appended in send order and packet-sent events
// are required to be delivered in packet-number order (spec §5), so
// PushBack always keeps the list ascending by packet number; insertion
// never needs to scan for a position.
type PacketList struct {
	root  PacketElement
	len   int
	index map[protocol.PacketNumber]*PacketElement
}

// NewPacketList creates an empty, ready-to-use PacketList.
func NewPacketList() *PacketList {
	l := &PacketList{index: make(map[protocol.PacketNumber]*PacketElement)}
	l.root.next = &l.root
	l.root.prev = &l.root
	return l
}

// Len returns the number of tracked packets.
func (l *PacketList) Len() int { return l.len }

// Front returns the oldest (lowest packet number) tracked packet, or
// nil if none is tracked.
func (l *PacketList) Front() *PacketElement {
	if l.len == 0 {
		return nil
	}
	return l.root.next
}

// Back returns the newest (highest packet number) tracked packet, or
// nil if none is tracked.
func (l *PacketList) Back() *PacketElement {
	if l.len == 0 {
		return nil
	}
	return l.root.prev
}

// Get looks up a packet by its packet number (lookup-by-key).
func (l *PacketList) Get(pn protocol.PacketNumber) (*PacketElement, bool) {
	e, ok := l.index[pn]
	return e, ok
}

// PushBack inserts a packet as the newest tracked packet (insert).
// Callers must only append packet numbers larger than every packet
// number already tracked.
func (l *PacketList) PushBack(p PacketInfo) *PacketElement {
	e := &PacketElement{Value: p, list: l}
	at := l.root.prev
	e.prev = at
	e.next = at.next
	e.prev.next = e
	e.next.prev = e
	l.len++
	l.index[p.PacketNumber] = e
	return e
}

// Remove erases a tracked packet by its list element (erase-by-key).
func (l *PacketList) Remove(e *PacketElement) {
	if e.list != l {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next = nil
	e.prev = nil
	e.list = nil
	l.len--
	delete(l.index, e.Value.PacketNumber)
}

// RemoveByNumber erases a tracked packet by packet number, if present
// (erase-by-key). Reports whether a packet was removed.
func (l *PacketList) RemoveByNumber(pn protocol.PacketNumber) (PacketInfo, bool) {
	e, ok := l.index[pn]
	if !ok {
		return PacketInfo{}, false
	}
	v := e.Value
	l.Remove(e)
	return v, true
}
