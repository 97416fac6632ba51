// Package clarify decides whether a project request carries enough detail to
// start generating, or which single question should be asked first.
//
// The Heuristic is a deterministic keyword pre-filter over the accumulated
// user text. The Classifier asks a language model for the same decision and
// falls back to the Heuristic whenever the model cannot give a usable answer.
package clarify

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Field names the missing piece of information a clarifying question probes.
type Field string

// Known fields. FieldNone means nothing is missing.
const (
	FieldNone     Field = ""
	FieldGeneral  Field = "general"
	FieldPages    Field = "pages"
	FieldTheme    Field = "theme"
	FieldPlatform Field = "platform"
	FieldFeatures Field = "features"
)

// ParseField maps free text to a known field, reporting false when it is not one.
func ParseField(s string) (Field, bool) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldGeneral, FieldPages, FieldTheme, FieldPlatform, FieldFeatures:
		return f, true
	}
	return FieldNone, false
}

// shortRequestRunes is the length below which a request without any page
// hint is considered too vague to generate from.
const shortRequestRunes = 80

var questions = map[Field]string{
	FieldGeneral:  "Ne yapmak istediğinizi kısaca anlatır mısınız? Hangi sayfalar/özellikler olsun?",
	FieldPages:    "Hangi sayfaları istiyorsunuz? Ör: ana sayfa, oyun listesi, profil, mağaza, puan tablosu.",
	FieldTheme:    "Bir tema/estetik tercihiniz var mı? (örn. modern, neon, retro, minimal)",
	FieldPlatform: "Hedef platform ne olacak? (örn. tarayıcı/web, mobil (Android/iOS), veya masaüstü)",
	FieldFeatures: "Özel özellikler ister misiniz? (örn. giriş/üye, puan tablosu, çok oyunculu, mağaza)",
}

// Question returns the canned question for f, or "" for FieldNone.
func Question(f Field) string { return questions[f] }

var (
	pageKeywords = []string{
		"index", "home", "hero", "navbar", "menu", "page", "pages", "about", "contact", "profile",
		"shop", "store", "gallery", "blog", "dashboard",
		"ana sayfa", "anasayfa", "oyun listesi", "profil", "mağaza", "puan", "puan tablosu",
	}
	themeKeywords = []string{
		"dark", "light", "retro", "neon", "minimal", "modern", "classic", "material", "flat", "vintage",
	}
	authKeywords = []string{
		"login", "signup", "register", "account", "auth", "profile",
		"giriş", "giris", "kayıt", "kayit", "üye", "uye",
	}
	multiplayerKeywords = []string{
		"multiplayer", "co-op", "online", "server", "lobby", "çok oyunculu", "cok oyunculu",
	}
	platformKeywords = []string{
		"mobile", "android", "ios", "browser", "web", "desktop",
		"tarayıcı", "tarayici", "mobil", "masaüstü", "masaustu",
	}
	featureKeywords = []string{
		"leaderboard", "levels", "score", "store", "shop", "achievements", "forum", "chat",
		"payment", "subscription",
		"puan", "sıralama", "siralama", "puan tablosu", "liderboard", "liderbord",
	}
)

// Verdict is the outcome of a clarification check.
type Verdict struct {
	Needs    bool
	Field    Field
	Question string
}

func ask(f Field) Verdict { return Verdict{Needs: true, Field: f, Question: questions[f]} }

// Evaluate runs the keyword policy over text. Fields listed in answered are
// treated as already satisfied and never asked.
//
// Policy, first unmet condition wins: empty text asks the general question;
// short text without a page hint asks for pages; then theme, platform, and
// finally features (any auth, multiplayer or feature keyword satisfies it).
func Evaluate(text string, answered ...Field) Verdict {
	done := make(map[Field]bool, len(answered))
	for _, f := range answered {
		done[f] = true
	}

	lower := cases.Lower(language.Und).String(strings.TrimSpace(text))
	if lower == "" {
		if !done[FieldGeneral] {
			return ask(FieldGeneral)
		}
	}

	if !done[FieldPages] && utf8.RuneCountInString(lower) < shortRequestRunes && !containsAny(lower, pageKeywords) {
		return ask(FieldPages)
	}
	if !done[FieldTheme] && !containsAny(lower, themeKeywords) {
		return ask(FieldTheme)
	}
	if !done[FieldPlatform] && !containsAny(lower, platformKeywords) {
		return ask(FieldPlatform)
	}
	if !done[FieldFeatures] &&
		!containsAny(lower, authKeywords) &&
		!containsAny(lower, multiplayerKeywords) &&
		!containsAny(lower, featureKeywords) {
		return ask(FieldFeatures)
	}
	return Verdict{}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
