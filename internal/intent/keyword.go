package intent

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/digkill/NabiBot/internal/models"
)

var (
	motionWords = []string{
		"תזיז", "להזיז", "תניע", "להניע", "אנימציה", "שיזוזו", "יזוזו", "לזוז", "תחיה", "להחיות", "וידאו", "וידיאו", "סרטון",
		"animate", "animation", "move", "moving", "video", "clip",
	}
	decorationWords = []string{
		"ברכה", "כיתוב", "כתוב", "טקסט", "קישוט", "לקשט", "תקשט", "מסגרת", "מזל טוב", "יום הולדת", "חג שמח",
		"greeting", "caption", "text", "decorate", "frame", "birthday",
	}
	songWords = []string{
		"שיר", "לחן", "מנגינה", "מוזיקה", "מוסיקה", "ראפ", "פזמון",
		"song", "music", "melody", "lyrics",
	}
	imageWords = []string{
		"תמונה", "תמונת", "ציור", "צייר", "תצייר", "לצייר", "איור", "פוסטר", "לוגו",
		"image", "picture", "photo", "draw", "painting", "poster", "logo",
	}
	videoWords = []string{
		"וידאו", "וידיאו", "סרטון", "קליפ", "video", "clip", "movie",
	}
)

// hebrewPrefixes are the one-letter particles written attached to the next word.
const hebrewPrefixes = "ובהלמשכ"

const maxHebrewPrefixes = 2

// Keyword is the deterministic router: ordered keyword-containment rules,
// first match wins.
type Keyword struct{}

func (Keyword) Route(_ context.Context, in Input) models.Decision {
	return Classify(in.Text, in.HasImage)
}

// Classify applies the keyword rules to (text, hasImage).
func Classify(text string, hasImage bool) models.Decision {
	text = strings.TrimSpace(text)
	tokens := tokenize(text)

	if hasImage {
		switch {
		case text == "":
			return models.Decision{Type: models.IntentClarify, Reply: ReplyPhotoWhatToDo}
		case matchesAny(tokens, motionWords):
			return models.Decision{
				Type:   models.IntentVideo,
				Prompt: fmt.Sprintf("Animate the people from the photo naturally and smoothly. Request: %s", text),
			}
		case matchesAny(tokens, decorationWords):
			return models.Decision{
				Type:   models.IntentImageEdit,
				Prompt: fmt.Sprintf("Keep the photo as is and add decorative text and ornaments on it according to this request: %s", text),
			}
		default:
			return models.Decision{
				Type:   models.IntentImageEdit,
				Prompt: fmt.Sprintf("Stylize the photo according to this request: %s", text),
			}
		}
	}

	switch {
	case text == "":
		return models.Decision{Type: models.IntentClarify, Reply: ReplyMenu}
	case matchesAny(tokens, songWords):
		return models.Decision{
			Type: models.IntentSong,
			Prompt: fmt.Sprintf("Write and compose a song with Hebrew lyrics based on this request. "+
				"If a musical style or genre is mentioned, keep it. Request: %s", text),
		}
	case matchesAny(tokens, imageWords):
		return models.Decision{Type: models.IntentImageNew, Prompt: text}
	case matchesAny(tokens, videoWords):
		// Video needs a photo in the same message in this mode.
		return models.Decision{Type: models.IntentClarify, Reply: ReplyVideoNeedsPhoto}
	default:
		return models.Decision{Type: models.IntentClarify, Reply: ReplyMenu}
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchesAny reports whether any vocabulary entry occurs in tokens. Entries
// with several words must match consecutive tokens.
func matchesAny(tokens []string, words []string) bool {
	for _, w := range words {
		parts := strings.Fields(w)
		for i := 0; i+len(parts) <= len(tokens); i++ {
			ok := true
			for j, part := range parts {
				if !tokenMatches(tokens[i+j], part) {
					ok = false
					break
				}
			}
			if ok {
				return true
			}
		}
	}
	return false
}

// tokenMatches compares one token with one vocabulary word. The word must
// start the token, so inflected forms match ("songs", "drawing") but words
// that merely contain it do not ("remove"). Hebrew tokens may additionally
// carry up to two attached prefix letters ("לשיר", "המוזיקה").
func tokenMatches(token, word string) bool {
	if strings.HasPrefix(token, word) {
		return true
	}
	if !isHebrew(word) {
		return false
	}
	rest := token
	for i := 0; i < maxHebrewPrefixes; i++ {
		r, size := utf8.DecodeRuneInString(rest)
		if size == 0 || !strings.ContainsRune(hebrewPrefixes, r) {
			return false
		}
		rest = rest[size:]
		if strings.HasPrefix(rest, word) {
			return true
		}
	}
	return false
}

func isHebrew(word string) bool {
	for _, r := range word {
		if unicode.Is(unicode.Hebrew, r) {
			return true
		}
	}
	return false
}
