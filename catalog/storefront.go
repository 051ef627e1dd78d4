package catalog

import "strings"

// storefronts maps ISO-3166 alpha-2 codes to Apple storefront identifiers.
// The hints endpoint ignores the country query parameter and reads the
// X-Apple-Store-Front header instead.
var storefronts = map[string]string{
	"us": "143441",
	"fr": "143442",
	"de": "143443",
	"gb": "143444",
	"at": "143445",
	"be": "143446",
	"fi": "143447",
	"gr": "143448",
	"ie": "143449",
	"it": "143450",
	"lu": "143451",
	"nl": "143452",
	"pt": "143453",
	"es": "143454",
	"ca": "143455",
	"se": "143456",
	"no": "143457",
	"dk": "143458",
	"ch": "143459",
	"au": "143460",
	"nz": "143461",
	"jp": "143462",
	"hk": "143463",
	"sg": "143464",
	"cn": "143465",
	"kr": "143466",
	"in": "143467",
	"mx": "143468",
	"ru": "143469",
	"tw": "143470",
	"br": "143503",
	"pl": "143478",
	"tr": "143480",
	"ae": "143481",
	"za": "143472",
	"ar": "143505",
	"cl": "143483",
	"co": "143501",
	"id": "143476",
	"th": "143475",
	"my": "143473",
	"ph": "143474",
	"vn": "143471",
	"il": "143491",
	"sa": "143479",
}

// iPhone software platform suffix
const storefrontPlatform = "-1,29"

// StorefrontHeader returns the X-Apple-Store-Front value for a country.
func StorefrontHeader(country string) (string, bool) {
	id, ok := storefronts[strings.ToLower(strings.TrimSpace(country))]
	if !ok {
		return "", false
	}
	return id + storefrontPlatform, true
}
