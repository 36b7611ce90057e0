package privacy

// builtinRule is a ready-made detector selectable by name from config
type builtinRule struct {
	pattern  string
	flags    string
	category string
}

// builtinRules favors coverage and low configuration cost over precision.
// Digit-bounded detectors use lookaround so only the number itself is replaced.
var builtinRules = map[string]builtinRule{
	"email": {
		// a match can only start where a run of local-part characters starts
		pattern:  `(?<![a-z0-9._%+-])[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`,
		flags:    "i",
		category: "EMAIL",
	},
	"china_phone": {
		pattern:  `(?<!\d)1[3-9]\d{9}(?!\d)`,
		category: "CHINA_PHONE",
	},
	"china_id": {
		pattern:  `(?<!\d)\d{17}[\dXx](?!\d)`,
		category: "CHINA_ID",
	},
	"uuid": {
		pattern:  `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}`,
		category: "UUID",
	},
	"ipv4": {
		// octets are not range-checked
		pattern:  `(?:\d{1,3}\.){3}\d{1,3}`,
		category: "IPV4",
	},
	"mac": {
		pattern:  `(?:[0-9a-f]{2}:){5}[0-9a-f]{2}`,
		flags:    "i",
		category: "MAC",
	},
}

// BuiltinNames lists the names accepted in patterns.builtin
func BuiltinNames() []string {
	return []string{"email", "china_phone", "china_id", "uuid", "ipv4", "mac"}
}
