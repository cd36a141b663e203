package identity

import (
	"fmt"
	"math/rand/v2"
)

type platform struct {
	name       string
	userAgent  string
	chPlatform string
}

var platforms = []platform{
	{name: "windows", userAgent: "Windows NT 10.0; Win64; x64", chPlatform: `"Windows"`},
	{name: "mac", userAgent: "Macintosh; Intel Mac OS X 10_15_7", chPlatform: `"macOS"`},
	{name: "linux", userAgent: "X11; Linux x86_64", chPlatform: `"Linux"`},
}

type browser int

const (
	browserChrome browser = iota
	browserFirefox
	browserEdge
)

// BrowserGenerator builds header sets for current desktop Chrome, Edge and Firefox builds.
type BrowserGenerator struct {
	// IntN returns a uniform integer in [0, n).
	IntN func(n int) int
}

// NewBrowserGenerator returns a generator backed by the global random source.
func NewBrowserGenerator() *BrowserGenerator {
	return &BrowserGenerator{IntN: rand.IntN}
}

// Generate returns a fresh header set.
func (g *BrowserGenerator) Generate() map[string]string {
	plat := platforms[g.intN(len(platforms))]
	kind := browser(g.intN(3))

	headers := map[string]string{
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
	}

	switch kind {
	case browserFirefox:
		version := 115 + g.intN(20)
		headers["User-Agent"] = fmt.Sprintf("Mozilla/5.0 (%s; rv:%d.0) Gecko/20100101 Firefox/%d.0", plat.userAgent, version, version)
		headers["DNT"] = "1"
	default:
		major := 118 + g.intN(24)
		build := 5000 + g.intN(1500)
		patch := g.intN(200)
		ua := fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.%d.%d Safari/537.36", plat.userAgent, major, build, patch)
		brand := "Google Chrome"
		if kind == browserEdge {
			ua += fmt.Sprintf(" Edg/%d.0.%d.%d", major, build, patch)
			brand = "Microsoft Edge"
		}
		headers["User-Agent"] = ua
		headers["Sec-Ch-Ua"] = fmt.Sprintf(`"Chromium";v="%d", "%s";v="%d", "Not?A_Brand";v="99"`, major, brand, major)
		headers["Sec-Ch-Ua-Mobile"] = "?0"
		headers["Sec-Ch-Ua-Platform"] = plat.chPlatform
	}

	return headers
}

func (g *BrowserGenerator) intN(n int) int {
	if g == nil || g.IntN == nil {
		return rand.IntN(n)
	}
	return g.IntN(n)
}
