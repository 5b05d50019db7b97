// Package langmatch normalizes spoken-language codes and decides whether two
// codes denote the same language for turn-routing purposes.
//
// Speech providers report language in whatever form their model emits:
// two-letter ISO 639-1 ("en"), three-letter ISO 639-3 ("eng", "cmn"), or a
// region-tagged BCP-47 tag ("en-US", "pt_BR"). All routing comparisons in
// parley happen on the canonical two-letter form produced by [Normalize].
//
// The package is pure and stateless; all functions are safe for concurrent
// use.
package langmatch

import (
	"strings"

	"golang.org/x/text/language"
)

// iso3to1 maps common ISO 639-3 (and ISO 639-2/B bibliographic) codes to
// their ISO 639-1 equivalent. Codes absent from this table fall through to
// BCP-47 parsing and finally to a first-two-characters heuristic.
var iso3to1 = map[string]string{
	"eng": "en",
	"spa": "es",
	"por": "pt",
	"fra": "fr",
	"fre": "fr",
	"deu": "de",
	"ger": "de",
	"ita": "it",
	"nld": "nl",
	"dut": "nl",
	"jpn": "ja",
	"kor": "ko",
	"rus": "ru",
	"ara": "ar",
	"hin": "hi",
	"pol": "pl",
	"tur": "tr",
	"vie": "vi",
	"tha": "th",
	"swe": "sv",
	"ukr": "uk",
	"ell": "el",
	"gre": "el",
	"ces": "cs",
	"cze": "cs",
	"heb": "he",
	"ind": "id",
	"msa": "ms",
	"may": "ms",
	"ron": "ro",
	"rum": "ro",
	"hun": "hu",
	"fin": "fi",
	"dan": "da",
	"nor": "no",
	"nob": "no",
	"nno": "no",
	"cat": "ca",
	"slk": "sk",
	"slo": "sk",
	"zho": "zh",
	"chi": "zh",
	"cmn": "zh",
}

// macroAlias folds regional or variant codes into the macro-language their
// speakers are routed as. Cantonese and Wu are attributed to the Chinese
// participant; Filipino is the standard register of Tagalog.
var macroAlias = map[string]string{
	"yue": "zh",
	"wuu": "zh",
	"nan": "zh",
	"fil": "tl",
	"tgl": "tl",
}

// Normalize maps a raw language code to its canonical two-letter form.
//
// Resolution order:
//
//  1. Lowercase and trim; "_" separators are treated as "-".
//  2. Region-tagged codes ("en-US", "pt-BR") are reduced to their base
//     subtag and normalized recursively.
//  3. Known ISO 639-3/2 codes map through the alias tables.
//  4. Anything else is handed to BCP-47 parsing; a successful parse yields
//     the base language subtag.
//  5. Unknown codes of three or more characters fall back to their first two
//     characters.
//
// The empty string normalizes to the empty string.
func Normalize(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	c = strings.ReplaceAll(c, "_", "-")
	if c == "" {
		return ""
	}

	if base, _, found := strings.Cut(c, "-"); found {
		return Normalize(base)
	}

	if two, ok := iso3to1[c]; ok {
		return two
	}
	if two, ok := macroAlias[c]; ok {
		return two
	}
	if len(c) == 2 {
		return c
	}

	if tag, err := language.Parse(c); err == nil {
		if base, conf := tag.Base(); conf != language.No {
			s := base.String()
			// ISO 639-1 has no code for some languages; keep the
			// three-letter base rather than inventing one.
			if len(s) == 2 {
				return s
			}
		}
	}

	if len(c) > 2 {
		return c[:2]
	}
	return c
}

// CloseMatch reports whether the detected code and the target code denote the
// same language for routing purposes. Two codes match when their canonical
// forms are equal; region differences ("pt-BR" vs "pt-PT") and macro-variants
// of Spanish, Portuguese, and Chinese never separate a speaker from their
// configured language.
func CloseMatch(detected, target string) bool {
	d := Normalize(detected)
	t := Normalize(target)
	if d == "" || t == "" {
		return false
	}
	return d == t
}
