package botdetect

// CatalogVersion identifies the revision of the signature catalog. Bump it
// whenever an entry is added, removed, or re-tagged.
const CatalogVersion = "2025-01"

// Kind groups signatures by the family of agent they identify.
type Kind string

// Supported signature kinds.
const (
	KindSearch    Kind = "search"
	KindSocial    Kind = "social"
	KindFeed      Kind = "feed"
	KindValidator Kind = "validator"
	KindRenderer  Kind = "renderer"
)

// Signature is one allow-list entry. Token is matched as a case-insensitive
// substring of the User-Agent header. Preview marks the agents that build
// link-preview cards and therefore receive synthesized preview documents.
type Signature struct {
	Token   string
	Kind    Kind
	Preview bool
}

// catalog is the single allow-list shared by every matcher in this package.
var catalog = []Signature{
	{Token: "Prerender", Kind: KindRenderer},
	{Token: "Googlebot", Kind: KindSearch, Preview: true},
	{Token: "Google-InspectionTool", Kind: KindSearch},
	{Token: "Bingbot", Kind: KindSearch, Preview: true},
	{Token: "Yandex", Kind: KindSearch, Preview: true},
	{Token: "DuckDuckBot", Kind: KindSearch},
	{Token: "Baiduspider", Kind: KindSearch},
	{Token: "Applebot", Kind: KindSearch},
	{Token: "rogerbot", Kind: KindSearch},
	{Token: "facebookexternalhit", Kind: KindSocial, Preview: true},
	{Token: "Twitterbot", Kind: KindSocial, Preview: true},
	{Token: "LinkedInBot", Kind: KindSocial, Preview: true},
	{Token: "Pinterest", Kind: KindSocial, Preview: true},
	{Token: "Slackbot", Kind: KindSocial, Preview: true},
	{Token: "WhatsApp", Kind: KindSocial, Preview: true},
	{Token: "Telegram", Kind: KindSocial, Preview: true},
	{Token: "Discordbot", Kind: KindSocial},
	{Token: "Instagram", Kind: KindSocial},
	{Token: "vkShare", Kind: KindSocial},
	{Token: "embedly", Kind: KindSocial},
	{Token: "quora link preview", Kind: KindSocial},
	{Token: "showyoubot", Kind: KindSocial},
	{Token: "outbrain", Kind: KindFeed},
	{Token: "W3C_Validator", Kind: KindValidator},
}

// staticExtensions lists the file extensions that are never intercepted.
var staticExtensions = map[string]struct{}{
	".js": {}, ".css": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
	".ico": {}, ".svg": {}, ".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
	".json": {}, ".xml": {}, ".txt": {}, ".webp": {}, ".mp4": {}, ".mp3": {},
}

// DefaultReservedPrefixes are the platform and API path prefixes that must
// reach the origin untouched.
var DefaultReservedPrefixes = []string{"/.netlify/", "/api/"}
