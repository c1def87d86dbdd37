package packing

import "strings"

// FallbackCategory is suggested when nothing matches.
const FallbackCategory = "Other"

// SuggestCategory returns the packing category for the given item name.
// It performs case-insensitive matching: exact match first, then substring
// match.
func SuggestCategory(itemName string) string {
	name := strings.ToLower(strings.TrimSpace(itemName))
	if name == "" {
		return FallbackCategory
	}

	if cat, ok := exactMatch[name]; ok {
		return cat
	}

	// Ordered longer/more-specific first.
	for _, entry := range substringMatches {
		if strings.Contains(name, entry.keyword) {
			return entry.category
		}
	}

	return FallbackCategory
}

var exactMatch = map[string]string{
	// Clothing
	"socks":     "Clothing",
	"underwear": "Clothing",
	"pajamas":   "Clothing",
	"pjs":       "Clothing",
	"jeans":     "Clothing",
	"shorts":    "Clothing",
	"pants":     "Clothing",
	"jacket":    "Clothing",
	"coat":      "Clothing",
	"sweater":   "Clothing",
	"hoodie":    "Clothing",
	"hat":       "Clothing",
	"cap":       "Clothing",
	"gloves":    "Clothing",
	"scarf":     "Clothing",
	"belt":      "Clothing",
	"dress":     "Clothing",
	"skirt":     "Clothing",
	"shoes":     "Clothing",
	"sandals":   "Clothing",
	"boots":     "Clothing",
	"sneakers":  "Clothing",
	"swimsuit":  "Clothing",

	// Toiletries
	"toothbrush":  "Toiletries",
	"toothpaste":  "Toiletries",
	"floss":       "Toiletries",
	"shampoo":     "Toiletries",
	"conditioner": "Toiletries",
	"soap":        "Toiletries",
	"deodorant":   "Toiletries",
	"razor":       "Toiletries",
	"hairbrush":   "Toiletries",
	"comb":        "Toiletries",
	"lotion":      "Toiletries",
	"sunscreen":   "Toiletries",
	"lip balm":    "Toiletries",
	"makeup":      "Toiletries",

	// Electronics
	"phone":      "Electronics",
	"laptop":     "Electronics",
	"tablet":     "Electronics",
	"ipad":       "Electronics",
	"camera":     "Electronics",
	"headphones": "Electronics",
	"earbuds":    "Electronics",
	"kindle":     "Electronics",
	"power bank": "Electronics",

	// Documents
	"passport":      "Documents",
	"passports":     "Documents",
	"wallet":        "Documents",
	"tickets":       "Documents",
	"id":            "Documents",
	"visa":          "Documents",
	"keys":          "Documents",
	"boarding pass": "Documents",

	// Health
	"medicine":    "Health",
	"medications": "Health",
	"vitamins":    "Health",
	"band-aids":   "Health",
	"bandages":    "Health",
	"first aid":   "Health",
	"inhaler":     "Health",
	"ibuprofen":   "Health",
	"tylenol":     "Health",

	// Kids
	"diapers":  "Kids",
	"wipes":    "Kids",
	"stroller": "Kids",
	"pacifier": "Kids",
	"stuffie":  "Kids",
	"car seat": "Kids",

	// Outdoor
	"tent":         "Outdoor",
	"sleeping bag": "Outdoor",
	"flashlight":   "Outdoor",
	"headlamp":     "Outdoor",
	"bug spray":    "Outdoor",
	"cooler":       "Outdoor",
	"water bottle": "Outdoor",
	"hiking boots": "Outdoor",
	"binoculars":   "Outdoor",
	"beach towel":  "Outdoor",

	// Food & Snacks
	"snacks":     "Food & Snacks",
	"granola":    "Food & Snacks",
	"trail mix":  "Food & Snacks",
	"crackers":   "Food & Snacks",
	"fruit":      "Food & Snacks",
	"sandwiches": "Food & Snacks",
	"coffee":     "Food & Snacks",
}

var substringMatches = []struct {
	keyword  string
	category string
}{
	// Outdoor
	{"sleeping bag", "Outdoor"},
	{"sleeping pad", "Outdoor"},
	{"hiking", "Outdoor"},
	{"camping", "Outdoor"},
	{"bug spray", "Outdoor"},
	{"insect repellent", "Outdoor"},
	{"flashlight", "Outdoor"},
	{"lantern", "Outdoor"},
	{"beach", "Outdoor"},
	{"snorkel", "Outdoor"},
	{"fishing", "Outdoor"},

	// Electronics
	{"charger", "Electronics"},
	{"charging", "Electronics"},
	{"cable", "Electronics"},
	{"adapter", "Electronics"},
	{"headphone", "Electronics"},
	{"battery", "Electronics"},
	{"batteries", "Electronics"},
	{"laptop", "Electronics"},
	{"phone", "Electronics"},
	{"camera", "Electronics"},

	// Documents
	{"passport", "Documents"},
	{"boarding pass", "Documents"},
	{"driver's license", "Documents"},
	{"insurance card", "Documents"},
	{"ticket", "Documents"},
	{"itinerary", "Documents"},

	// Health
	{"first aid", "Health"},
	{"prescription", "Health"},
	{"medicine", "Health"},
	{"medication", "Health"},
	{"band-aid", "Health"},
	{"allergy", "Health"},
	{"vitamin", "Health"},

	// Toiletries
	{"toothbrush", "Toiletries"},
	{"toothpaste", "Toiletries"},
	{"shampoo", "Toiletries"},
	{"body wash", "Toiletries"},
	{"deodorant", "Toiletries"},
	{"sunscreen", "Toiletries"},
	{"contact lens", "Toiletries"},
	{"hair", "Toiletries"},
	{"toiletr", "Toiletries"},

	// Kids
	{"diaper", "Kids"},
	{"baby", "Kids"},
	{"sippy", "Kids"},
	{"stroller", "Kids"},
	{"toy", "Kids"},
	{"coloring", "Kids"},

	// Clothing
	{"swimsuit", "Clothing"},
	{"swim trunks", "Clothing"},
	{"rain jacket", "Clothing"},
	{"t-shirt", "Clothing"},
	{"shirt", "Clothing"},
	{"sock", "Clothing"},
	{"pants", "Clothing"},
	{"shorts", "Clothing"},
	{"jacket", "Clothing"},
	{"sweater", "Clothing"},
	{"pajama", "Clothing"},
	{"shoes", "Clothing"},
	{"dress", "Clothing"},

	// Food & Snacks
	{"snack", "Food & Snacks"},
	{"granola bar", "Food & Snacks"},
	{"juice box", "Food & Snacks"},
	{"sandwich", "Food & Snacks"},
	{"cracker", "Food & Snacks"},
}
