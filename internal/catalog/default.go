package catalog

import "sync"

const (
	SocialMedia   = "Social Media"
	Entertainment = "Entertainment"
	Games         = "Games"
	Apple         = "Apple"
	Messaging     = "Messaging"
)

var defaultApps = []App{
	{Name: "Instagram", BundleID: "com.burbn.instagram", Category: SocialMedia,
		Domains: []string{"instagram.com", "www.instagram.com", "m.instagram.com"}},
	{Name: "YouTube", BundleID: "com.google.ios.youtube", Category: SocialMedia,
		Domains: []string{"youtube.com", "www.youtube.com", "m.youtube.com", "youtu.be", "music.youtube.com"}},
	{Name: "TikTok", BundleID: "com.zhiliaoapp.musically", Category: SocialMedia,
		Domains: []string{"tiktok.com", "www.tiktok.com", "m.tiktok.com"}},
	{Name: "Facebook", BundleID: "com.facebook.Facebook", Category: SocialMedia,
		Domains: []string{"facebook.com", "www.facebook.com", "m.facebook.com"}},
	{Name: "Twitter/X", BundleID: "com.twitter.twitter", Category: SocialMedia,
		Domains: []string{"twitter.com", "www.twitter.com", "m.twitter.com", "x.com", "www.x.com"}},
	{Name: "Snapchat", BundleID: "com.toyopagroup.picaboo", Category: SocialMedia},
	{Name: "Reddit", BundleID: "com.reddit.Reddit", Category: SocialMedia,
		Domains: []string{"reddit.com", "www.reddit.com", "m.reddit.com", "old.reddit.com"}},
	{Name: "Discord", BundleID: "com.hammerandchisel.discord", Category: SocialMedia},
	{Name: "LinkedIn", BundleID: "com.linkedin.LinkedIn", Category: SocialMedia},
	{Name: "Pinterest", BundleID: "com.pinterest.pinterest", Category: SocialMedia},

	{Name: "Netflix", BundleID: "com.netflix.Netflix", Category: Entertainment,
		Domains: []string{"netflix.com", "www.netflix.com"}},
	{Name: "Disney+", BundleID: "com.disney.disneyplus", Category: Entertainment},
	{Name: "Amazon Prime", BundleID: "com.amazon.avod.thirdpartyclient", Category: Entertainment},
	{Name: "Spotify", BundleID: "com.spotify.client", Category: Entertainment},
	{Name: "Twitch", BundleID: "tv.twitch", Category: Entertainment},

	{Name: "Candy Crush", BundleID: "com.king.candycrushsaga", Category: Games},
	{Name: "PUBG Mobile", BundleID: "com.tencent.ig", Category: Games},
	{Name: "Clash of Clans", BundleID: "com.supercell.magic", Category: Games},

	// Built-in apps can only be blocked on supervised devices.
	{Name: "Safari", BundleID: "com.apple.mobilesafari", Category: Apple},
	{Name: "Camera", BundleID: "com.apple.camera", Category: Apple},
	{Name: "Photos", BundleID: "com.apple.mobileslideshow", Category: Apple},
	{Name: "Music", BundleID: "com.apple.Music", Category: Apple},
	{Name: "App Store", BundleID: "com.apple.AppStore", Category: Apple},
	{Name: "iTunes Store", BundleID: "com.apple.MobileStore", Category: Apple},
	{Name: "Messages", BundleID: "com.apple.MobileSMS", Category: Apple},
	{Name: "Mail", BundleID: "com.apple.mobilemail", Category: Apple},
	{Name: "FaceTime", BundleID: "com.apple.facetime", Category: Apple},
	{Name: "Maps", BundleID: "com.apple.Maps", Category: Apple},
	{Name: "News", BundleID: "com.apple.news", Category: Apple},

	{Name: "WhatsApp", BundleID: "net.whatsapp.WhatsApp", Category: Messaging},
	{Name: "Telegram", BundleID: "ph.telegra.Telegraph", Category: Messaging},
	{Name: "Signal", BundleID: "org.whispersystems.signal", Category: Messaging},
	{Name: "Messenger", BundleID: "com.facebook.Messenger", Category: Messaging},
}

var defaultPresets = []Preset{
	{Name: "Social Media Block", Apps: []string{"Instagram", "Facebook", "Twitter/X", "Snapchat", "TikTok", "Reddit"}},
	{Name: "Study Mode", Apps: []string{"Instagram", "YouTube", "TikTok", "Netflix", "Discord"}},
	{Name: "Work Focus", Apps: []string{"Instagram", "YouTube", "TikTok", "Facebook", "Twitter/X", "Reddit"}},
}

var defaultEssentialApps = []string{
	"com.apple.mobilephone",
	"com.apple.MobileSMS",
	"com.apple.mobilesafari",
	"com.apple.mobilemail",
	"com.apple.calculator",
	"com.apple.mobilecal",
	"com.apple.reminders",
	"com.apple.mobileaddressbook",
	"com.apple.weather",
	"com.apple.stocks",
	"com.apple.compass",
	"com.apple.VoiceMemos",
	"com.apple.MobileStore",
	"com.apple.Preferences",
}

var Default = sync.OnceValue(func() *Catalog {
	c, err := newCatalog(defaultApps, defaultPresets, defaultEssentialApps)
	if err != nil {
		panic(err)
	}
	return c
})
