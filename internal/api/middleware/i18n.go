package middleware

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

const (
	sessionLanguageKey = "language"
	contextLanguageKey = "language"
)

// Translator hält das Übersetzungs-Bundle
type Translator struct {
	bundle      *i18n.Bundle
	tags        []language.Tag
	matcher     language.Matcher
	supported   map[string]bool
	defaultLang string
}

// NewTranslator lädt die eingebetteten Übersetzungsdateien
func NewTranslator(defaultLanguage string) (*Translator, error) {
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	defaultTag, err := language.Parse(defaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", defaultLanguage, err)
	}

	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		if _, err := bundle.LoadMessageFileFS(localeFS, path.Join("locales", file.Name())); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file.Name(), err)
		}
	}

	// Das Bundle führt die Standardsprache als ersten Tag, der Matcher fällt darauf zurück
	tags := bundle.LanguageTags()
	supported := make(map[string]bool, len(tags))
	for _, tag := range tags {
		base, _ := tag.Base()
		supported[base.String()] = true
	}

	return &Translator{
		bundle:      bundle,
		tags:        tags,
		matcher:     language.NewMatcher(tags),
		supported:   supported,
		defaultLang: defaultTag.String(),
	}, nil
}

// DefaultLanguage gibt die Standardsprache zurück
func (t *Translator) DefaultLanguage() string {
	return t.defaultLang
}

// Supports prüft, ob für die Sprache Übersetzungen vorliegen
func (t *Translator) Supports(lang string) bool {
	return t.supported[lang]
}

// Translate übersetzt eine Nachricht. Fehlt sie, wird die ID zurückgegeben.
func (t *Translator) Translate(lang, messageID string, data map[string]interface{}) string {
	localizer := i18n.NewLocalizer(t.bundle, lang, t.defaultLang)
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		log.WithFields(log.Fields{"component": "i18n"}).Debugf("No translation for %s in %s", messageID, lang)
		return messageID
	}
	return msg
}

// Match wählt die beste unterstützte Sprache für einen Accept-Language-Header
func (t *Translator) Match(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return t.defaultLang
	}
	_, index, confidence := t.matcher.Match(tags...)
	if confidence == language.No {
		return t.defaultLang
	}
	base, _ := t.tags[index].Base()
	return base.String()
}

// I18n ermittelt die Sprache der Anfrage: ?lang, dann Session, dann Accept-Language
func I18n(translator *Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		lang := c.Query("lang")

		if lang != "" && translator.Supports(lang) {
			session.Set(sessionLanguageKey, lang)
			if err := session.Save(); err != nil {
				log.WithFields(log.Fields{"component": "i18n"}).WithError(err).Warn("Failed to save language in session")
			}
		} else if stored, ok := session.Get(sessionLanguageKey).(string); ok && translator.Supports(stored) {
			lang = stored
		} else {
			lang = translator.Match(c.GetHeader("Accept-Language"))
		}

		c.Set(contextLanguageKey, lang)
		c.Next()
	}
}

// Language gibt die für die Anfrage ermittelte Sprache zurück
func Language(c *gin.Context) string {
	return c.GetString(contextLanguageKey)
}
