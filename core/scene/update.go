package scene

// Update is a normalized incoming update. Decoding from a concrete transport
// happens outside this package; see core/telegram/state.
type Update struct {
	ID        int
	SessionID string
	ChatID    int64
	UserID    int64

	// Text is the message text or caption.
	Text string
	// Command is the bot command without the leading slash and @botname suffix.
	Command string
	// Args holds the text following the command.
	Args string

	// CallbackData is the callback key pressed by the user.
	CallbackData string
	// CallbackPayload is the optional payload encoded after the key.
	CallbackPayload string

	IsMessage  bool
	IsCallback bool

	// Raw keeps the transport update for handlers that need it.
	Raw any
}

// IsCommand reports whether the update carries a bot command.
func (u Update) IsCommand() bool {
	return u.Command != ""
}
