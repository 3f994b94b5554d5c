package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/yelerty/stickermaker/internal/domain/port"
	"go.uber.org/zap"
)

var kindLabels = map[string]string{
	"video_gif": "GIF from your video",
	"image_gif": "GIF from your images",
	"sticker":   "sticker",
}

type SMTPNotifier struct {
	addr   string
	from   string
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		addr:   net.JoinHostPort(host, strconv.Itoa(port)),
		from:   from,
		send:   smtp.SendMail,
		logger: logger,
	}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, notice port.FailureNotice) error {
	log := n.logger.With(zap.String("to", notice.UserEmail), zap.String("job_id", notice.JobID))

	if err := n.send(n.addr, nil, n.from, []string{notice.UserEmail}, composeFailure(n.from, notice)); err != nil {
		log.Error("failure notification not delivered", zap.Error(err))
		return fmt.Errorf("send failure notice for job %s: %w", notice.JobID, err)
	}

	log.Info("failure notification delivered")
	return nil
}

func composeFailure(from string, notice port.FailureNotice) []byte {
	what, ok := kindLabels[notice.Kind]
	if !ok {
		what = "GIF"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", notice.UserEmail)
	fmt.Fprintf(&b, "Subject: Sticker Maker - your %s could not be created [Job %s]\r\n", what, notice.JobID)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")

	b.WriteString("Hello,\r\n\r\n")
	fmt.Fprintf(&b, "We could not create your %s.\r\n\r\n", what)
	fmt.Fprintf(&b, "Job ID: %s\r\n", notice.JobID)
	if notice.SourceKey != "" {
		fmt.Fprintf(&b, "Source: %s\r\n", notice.SourceKey)
	}
	if notice.Attempts > 1 {
		fmt.Fprintf(&b, "Attempts: %d\r\n", notice.Attempts)
	}
	fmt.Fprintf(&b, "Reason: %s\r\n\r\n", notice.Reason)
	b.WriteString("Check the selected range and options and submit the request again.\r\n\r\n-- Sticker Maker")
	return []byte(b.String())
}
