package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/tOgg1/courier/internal/delivery"
	"github.com/tOgg1/courier/internal/models"
)

const undecryptable = "<unable to decrypt>"

type messageOutput struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	Time      string `json:"time"`
	Status    string `json:"status"`
}

func toMessageOutput(m models.Message, loc *time.Location) messageOutput {
	return messageOutput{
		ID:        m.ID,
		From:      m.SenderID,
		To:        m.ReceiverID,
		Body:      m.Body,
		Timestamp: m.Timestamp,
		Time:      m.Time().In(loc).Format(time.RFC3339),
		Status:    delivery.StatusLabel(m),
	}
}

func displayBody(m models.Message) string {
	if m.Body == "" && m.Ciphertext != "" {
		return undecryptable
	}
	return m.Body
}

// writeMessageLine prints one message. The delivery status is shown only on
// messages the local identity sent.
func writeMessageLine(out io.Writer, m models.Message, local string, loc *time.Location) {
	line := fmt.Sprintf("  %s  %s: %s", delivery.TimeLabel(m, loc), m.SenderID, displayBody(m))
	if m.SentBy(local) {
		line += "  [" + delivery.StatusLabel(m) + "]"
	}
	fmt.Fprintln(out, line)
}

func writeDateHeader(out io.Writer, label string) {
	fmt.Fprintf(out, "-- %s --\n", label)
}

func writeView(out io.Writer, view models.ConversationView, local string, loc *time.Location) {
	for _, item := range view.Items {
		switch it := item.(type) {
		case models.DateHeader:
			writeDateHeader(out, it.Label)
		case models.MessageItem:
			writeMessageLine(out, it.Message, local, loc)
		}
	}
}
