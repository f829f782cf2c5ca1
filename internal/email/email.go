// Package email sends transactional mail over SMTP.
package email

import (
	"crypto/tls"

	"gopkg.in/gomail.v2"
)

type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	SkipTLS  bool   `yaml:"skip_tls"`
}

// Sender delivers a single message. Satisfied by Client and by test fakes.
type Sender interface {
	Send(to, subject, htmlBody string) error
}

type Client struct {
	dialer *gomail.Dialer
	from   string
}

func NewClient(cfg Config) *Client {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.SkipTLS {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{dialer: d, from: cfg.From}
}

func (c *Client) Send(to, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)
	return c.dialer.DialAndSend(m)
}
