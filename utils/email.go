package utils

import (
	"fmt"
	"log"
	"net/smtp"
	"os"
	"strings"
)

// smtpConfig is read on every send, so rotated credentials take effect
// without a restart.
type smtpConfig struct {
	host, port, username, password, from string
}

func loadSMTPConfig() smtpConfig {
	return smtpConfig{
		host:     os.Getenv("SMTP_HOST"),
		port:     os.Getenv("SMTP_PORT"),
		username: os.Getenv("SMTP_USERNAME"),
		password: os.Getenv("SMTP_PASSWORD"),
		from:     os.Getenv("SMTP_FROM"),
	}
}

func (c smtpConfig) configured() bool {
	return c.host != "" && c.port != "" && c.from != ""
}

// SendEmail delivers one HTML mail synchronously. Request handlers use the
// Send* wrappers below so checkout and registration never wait on SMTP.
func SendEmail(to, subject, htmlBody string) error {
	cfg := loadSMTPConfig()
	if !cfg.configured() {
		return fmt.Errorf("SMTP not configured")
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", cfg.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.WriteString(htmlBody)

	var auth smtp.Auth
	if cfg.username != "" && cfg.password != "" {
		auth = smtp.PlainAuth("", cfg.username, cfg.password, cfg.host)
	}
	return smtp.SendMail(cfg.host+":"+cfg.port, auth, cfg.from, []string{to}, []byte(msg.String()))
}

// sendAsync fires the mail off in a goroutine and only logs failures. An
// unconfigured SMTP host makes every send a logged no-op.
func sendAsync(to, subject, body string) {
	go func() {
		if err := SendEmail(to, subject, body); err != nil {
			log.Printf("Failed to send %q to %s: %v", subject, to, err)
		}
	}()
}

// firstName trims a full name down to the part greetings use.
func firstName(name string) string {
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

func SendWelcomeEmail(email, name string) {
	body := fmt.Sprintf(`<h2>Welcome to Souq, %s!</h2>
<p>Your account is ready. You can now:</p>
<ul>
<li>Browse the full catalog by category</li>
<li>Save products to your favourites</li>
<li>Track your orders from checkout to delivery</li>
</ul>
<p>Happy shopping!</p>
<p>The Souq Team</p>`, firstName(name))
	sendAsync(email, "Welcome to Souq!", body)
}

func SendOrderConfirmation(email, name, orderNumber string, total float64) {
	body := fmt.Sprintf(`<h2>Order Confirmed!</h2>
<p>Hi %s,</p>
<p>Thank you for your order <strong>%s</strong>.</p>
<p>Order total: <strong>%.2f</strong></p>
<p>We will let you know as soon as it ships.</p>
<p>The Souq Team</p>`, firstName(name), orderNumber, total)
	sendAsync(email, fmt.Sprintf("Order Confirmed - %s", orderNumber), body)
}

func SendOrderStatusUpdate(email, name, orderNumber, status string) {
	body := fmt.Sprintf(`<h2>Order Update</h2>
<p>Hi %s,</p>
<p>Your order <strong>%s</strong> is now: <strong>%s</strong></p>
<p>The Souq Team</p>`, firstName(name), orderNumber, status)
	sendAsync(email, fmt.Sprintf("Order Update - %s", orderNumber), body)
}
