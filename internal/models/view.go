package models

import "time"

// DateLayout is the calendar date label used for view headers.
const DateLayout = "Jan 2, 2006"

// TimeLayout is the per-message time label.
const TimeLayout = "03:04 PM"

// Item is one entry of a ConversationView: a DateHeader or a MessageItem.
type Item interface {
	isItem()
}

// DateHeader separates messages from different calendar dates.
type DateHeader struct {
	Label string
}

// MessageItem wraps a message in the view.
type MessageItem struct {
	Message Message
}

func (DateHeader) isItem()  {}
func (MessageItem) isItem() {}

// ConversationView is the display-ready sequence for one conversation.
type ConversationView struct {
	ConversationID ConversationID
	Items          []Item
}

// Messages returns the messages of the view in order.
func (v ConversationView) Messages() []Message {
	out := make([]Message, 0, len(v.Items))
	for _, item := range v.Items {
		if mi, ok := item.(MessageItem); ok {
			out = append(out, mi.Message)
		}
	}
	return out
}

// Headers returns the date header labels of the view in order.
func (v ConversationView) Headers() []string {
	var out []string
	for _, item := range v.Items {
		if h, ok := item.(DateHeader); ok {
			out = append(out, h.Label)
		}
	}
	return out
}

// BuildView scans sorted messages and inserts a DateHeader whenever the
// calendar date in loc changes. The input must already be ordered.
func BuildView(id ConversationID, sorted []Message, loc *time.Location) ConversationView {
	if loc == nil {
		loc = time.Local
	}
	items := make([]Item, 0, len(sorted)+1)
	lastDate := ""
	for _, msg := range sorted {
		date := msg.Time().In(loc).Format(DateLayout)
		if date != lastDate {
			items = append(items, DateHeader{Label: date})
			lastDate = date
		}
		items = append(items, MessageItem{Message: msg})
	}
	return ConversationView{ConversationID: id, Items: items}
}
