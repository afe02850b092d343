package models

import "fmt"

// Channel is a delivery channel
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Channels lists the supported channels
func Channels() []Channel {
	return []Channel{ChannelSMS, ChannelEmail, ChannelWhatsApp}
}

// Valid reports whether c is one of the supported channels
func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelWhatsApp:
		return true
	}
	return false
}

// ParseChannel converts a string into a Channel
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return c, nil
}

// Content types for templates
const (
	ContentTypePlain = "plain"
	ContentTypeHTML  = "html"
)
