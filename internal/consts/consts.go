package consts

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	TokenQueryParam      = "token"

	BoardChannelPrefix = "board:"
	FrameDedupePrefix  = "relay:frame:"
)
