package core

import (
	"time"

	"golang.org/x/text/language"
)

// LabelFunc renders the display label of a bucket month.
type LabelFunc func(ym YearMonth) string

var monthAbbreviations = map[language.Tag][12]string{
	language.English:    {"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
	language.Italian:    {"gen", "feb", "mar", "apr", "mag", "giu", "lug", "ago", "set", "ott", "nov", "dic"},
	language.Spanish:    {"ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sept", "oct", "nov", "dic"},
	language.French:     {"janv.", "févr.", "mars", "avr.", "mai", "juin", "juil.", "août", "sept.", "oct.", "nov.", "déc."},
	language.German:     {"Jan.", "Feb.", "März", "Apr.", "Mai", "Juni", "Juli", "Aug.", "Sept.", "Okt.", "Nov.", "Dez."},
	language.Portuguese: {"jan.", "fev.", "mar.", "abr.", "mai.", "jun.", "jul.", "ago.", "set.", "out.", "nov.", "dez."},
}

// English is first so that it wins when nothing matches.
var supportedLabelTags = []language.Tag{
	language.English,
	language.Italian,
	language.Spanish,
	language.French,
	language.German,
	language.Portuguese,
}

var labelMatcher = language.NewMatcher(supportedLabelTags)

// MonthLabeler returns a LabelFunc for the best supported match of the given
// language preferences. Each entry may be a BCP 47 tag or a full
// Accept-Language header value.
func MonthLabeler(prefs ...string) LabelFunc {
	tag := MatchLabelLanguage(prefs...)
	names := monthAbbreviations[tag]
	return func(ym YearMonth) string {
		return names[ym.Month-time.January]
	}
}

// MatchLabelLanguage resolves language preferences to one of the supported label
// languages, defaulting to English.
func MatchLabelLanguage(prefs ...string) language.Tag {
	var wanted []language.Tag
	for _, p := range prefs {
		if p == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		wanted = append(wanted, tags...)
	}
	if len(wanted) == 0 {
		return language.English
	}
	_, idx, conf := labelMatcher.Match(wanted...)
	if conf == language.No {
		return language.English
	}
	return supportedLabelTags[idx]
}
