// Package config implements the read-only configuration oracle of
// spec.md §6: the option set the engine recognises, with the teacher's
// own idiom of a plain struct carrying per-field defaults (rclone's
// fs/config/configstruct pattern, reimplemented locally rather than
// imported — see DESIGN.md) plus an environment-variable loader.
package config

import (
	"os"
	"strconv"
	"strings"
)

// AsciiMode mirrors spec.md's ascii_binary_mode tri-state.
type AsciiMode string

const (
	AsciiAuto   AsciiMode = "auto"
	AsciiAscii  AsciiMode = "ascii"
	AsciiBinary AsciiMode = "binary"
)

// ProxyType mirrors spec.md's proxy_type.
type ProxyType string

const (
	ProxyNone   ProxyType = "none"
	ProxyHTTP   ProxyType = "http"
	ProxySocks5 ProxyType = "socks5"
	ProxySocks4 ProxyType = "socks4"
)

// QueueCompletionAction mirrors spec.md §4.6.
type QueueCompletionAction string

const (
	ActionNone             QueueCompletionAction = "none"
	ActionDesktopNotify    QueueCompletionAction = "notify"
	ActionRequestAttention QueueCompletionAction = "attention"
	ActionCloseApplication QueueCompletionAction = "close"
	ActionShellCommand     QueueCompletionAction = "command"
	ActionPlaySound        QueueCompletionAction = "sound"
	ActionReboot           QueueCompletionAction = "reboot"
	ActionShutdown         QueueCompletionAction = "shutdown"
	ActionSleep            QueueCompletionAction = "sleep"
)

// Options is the full configuration oracle of spec.md §6.
type Options struct {
	NumberOfTransfers       int
	ConcurrentDownloadLimit int
	ConcurrentUploadLimit   int
	ReconnectDelaySeconds   int
	ReconnectCount          int
	PreserveTimestamps      bool
	AsciiBinaryMode         AsciiMode
	AsciiExtensionsList     []string
	AsciiDotfile            bool
	AsciiNoExtension        bool
	PreallocateSpace        bool
	ViewHiddenFiles         bool
	SpeedLimitInbound       int
	SpeedLimitOutbound      int
	SFTPCompression         bool
	SFTPKeyfiles            []string
	ProxyType               ProxyType
	ProxyHost               string
	ProxyPort               int
	ProxyUser               string
	ProxyPass               string
	KioskMode               int
	LoggingDebugLevel       int
	LoggingRawListing       bool
	LoggingDetailed         bool
	InvalidCharReplaceEnable bool
	InvalidCharReplace      rune
	DnDDisabled             bool
	QueueCompletionAction   QueueCompletionAction
	QueueCompletionCommand  string
	CacheTTLSeconds         int
}

// Default returns the option set with the defaults spec.md §6 specifies.
func Default() Options {
	return Options{
		NumberOfTransfers:     2,
		ReconnectDelaySeconds: 5,
		ReconnectCount:        2,
		AsciiBinaryMode:       AsciiAuto,
		QueueCompletionAction: ActionNone,
		CacheTTLSeconds:       600,
	}
}

// ClampCacheTTL enforces spec.md's [30s, 86400s] bound.
func (o *Options) ClampCacheTTL() {
	if o.CacheTTLSeconds < 30 {
		o.CacheTTLSeconds = 30
	}
	if o.CacheTTLSeconds > 86400 {
		o.CacheTTLSeconds = 86400
	}
}

// LoadFromEnv overlays environment variables named TRANSFERENGINE_<FIELD>
// (upper-snake-case) onto a copy of Default(), for standalone operation
// via cmd/transferengine. Unset variables leave the default untouched.
func LoadFromEnv() Options {
	o := Default()
	if v, ok := lookupInt("TRANSFERENGINE_NUMBER_OF_TRANSFERS"); ok {
		o.NumberOfTransfers = v
	}
	if v, ok := lookupInt("TRANSFERENGINE_RECONNECT_DELAY_SECONDS"); ok {
		o.ReconnectDelaySeconds = v
	}
	if v, ok := lookupInt("TRANSFERENGINE_RECONNECT_COUNT"); ok {
		o.ReconnectCount = v
	}
	if v, ok := os.LookupEnv("TRANSFERENGINE_ASCII_BINARY_MODE"); ok {
		o.AsciiBinaryMode = AsciiMode(v)
	}
	if v, ok := os.LookupEnv("TRANSFERENGINE_ASCII_EXTENSIONS_LIST"); ok {
		o.AsciiExtensionsList = splitPipeEscaped(v)
	}
	if v, ok := lookupInt("TRANSFERENGINE_SPEED_LIMIT_INBOUND"); ok {
		o.SpeedLimitInbound = v
	}
	if v, ok := lookupInt("TRANSFERENGINE_SPEED_LIMIT_OUTBOUND"); ok {
		o.SpeedLimitOutbound = v
	}
	if v, ok := lookupInt("TRANSFERENGINE_KIOSK_MODE"); ok {
		o.KioskMode = v
	}
	if v, ok := lookupInt("TRANSFERENGINE_CACHE_TTL"); ok {
		o.CacheTTLSeconds = v
	}
	o.ClampCacheTTL()
	return o
}

func lookupInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// splitPipeEscaped splits spec.md's pipe-separated, backslash-escaped-pipe
// list format.
func splitPipeEscaped(s string) []string {
	var out []string
	var cur strings.Builder
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '|':
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	out = append(out, cur.String())
	return out
}
