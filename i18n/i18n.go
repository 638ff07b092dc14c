// Package i18n translates symbolic error keys into display messages.
// Services and handlers only ever raise keys like "category.categoryNotFound";
// this package owns every user-facing string.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

var bundle *goi18n.Bundle

func init() {
	bundle = goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	for _, name := range []string{"locales/en.json", "locales/ar.json"} {
		if _, err := bundle.LoadMessageFileFS(localeFS, name); err != nil {
			panic(fmt.Sprintf("i18n: load %s: %v", name, err))
		}
	}
}

// T resolves key in the given language. lang accepts a bare tag ("ar") or a
// full Accept-Language header value; unknown languages fall back to English.
// Unknown keys come back verbatim so a missing translation never hides the
// symbolic key.
func T(lang, key string) string {
	localizer := goi18n.NewLocalizer(bundle, lang)
	msg, err := localizer.Localize(&goi18n.LocalizeConfig{MessageID: key})
	if err != nil {
		return key
	}
	return msg
}
