package sequencer

import (
	"github.com/opensource-finance/kestrel/internal/dist"
)

// Merchant and city name parts for synthetic naming. Merchant names are
// category-conditioned: electronics and travel merchants carry a suffix.

var merchantFirst = []string{
	"Acme", "Global", "Prime", "Summit", "Pioneer", "Vertex", "Atlas",
	"Nova", "Cascade", "Meridian", "Orion", "Beacon", "Harbor", "Crest",
	"Keystone", "Lakeside", "Northern", "Pacific", "Sterling", "Vanguard",
}

var merchantSecond = []string{
	"Trading", "Retail", "Supplies", "Goods", "Commerce", "Outfitters",
	"Market", "Depot", "Emporium", "Exchange", "Holdings", "Ventures",
	"Brothers", "and Sons", "Group", "Partners", "Direct", "Stores",
	"Solutions", "Co",
}

var cities = []string{
	"Springfield", "Riverton", "Fairview", "Lakewood", "Georgetown",
	"Ashland", "Burlington", "Clinton", "Dayton", "Easton", "Franklin",
	"Greenville", "Hamilton", "Jackson", "Kingston", "Lancaster",
	"Madison", "Newport", "Oakland", "Portsmouth", "Quincy", "Richmond",
	"Salem", "Trenton", "Union City", "Vernon", "Westfield", "York",
	"Arlington", "Bristol", "Chester", "Dover", "Elmwood", "Florence",
	"Glendale", "Hudson", "Irvington", "Jamestown", "Kenton", "Linden",
}

// pickMerchant builds a merchant name, appending the category suffix for
// electronics and travel.
func pickMerchant(category string, src *dist.Source) string {
	name := merchantFirst[src.IntN(len(merchantFirst))] + " " + merchantSecond[src.IntN(len(merchantSecond))]
	switch category {
	case "electronics":
		name += " Electronics"
	case "travel":
		name += " Travel"
	}
	return name
}

// pickCity draws a city independent of the transaction country.
func pickCity(src *dist.Source) string {
	return cities[src.IntN(len(cities))]
}
