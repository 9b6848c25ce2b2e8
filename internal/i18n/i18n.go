package i18n

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/yok-tottii/mic-calibrator/internal/measure"
	"github.com/yok-tottii/mic-calibrator/internal/selection"
	"github.com/yok-tottii/mic-calibrator/internal/wizard"
)

// Language represents a supported language
type Language string

const (
	// Japanese language
	LanguageJapanese Language = "ja"
	// English language
	LanguageEnglish Language = "en"
)

// Translator manages translations for the application
type Translator struct {
	currentLanguage Language
	translations    map[Language]map[string]string
	mu              sync.RWMutex
}

// NewTranslator creates an empty translator
func NewTranslator(language Language) *Translator {
	return &Translator{
		currentLanguage: language,
		translations:    make(map[Language]map[string]string),
	}
}

// New creates a translator preloaded with the built-in messages
func New(language Language) *Translator {
	t := NewTranslator(language)
	t.translations[LanguageEnglish] = DefaultEnglishTranslations()
	t.translations[LanguageJapanese] = DefaultJapaneseTranslations()
	return t
}

// LoadTranslations merges translations from JSON data over the existing ones
func (t *Translator) LoadTranslations(language Language, data []byte) error {
	var translations map[string]string
	if err := json.Unmarshal(data, &translations); err != nil {
		return fmt.Errorf("failed to unmarshal translations: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.translations[language]
	if !ok {
		existing = make(map[string]string, len(translations))
		t.translations[language] = existing
	}
	for k, v := range translations {
		existing[k] = v
	}
	return nil
}

// SetLanguage sets the current language
func (t *Translator) SetLanguage(language Language) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentLanguage = language
}

// GetLanguage returns the current language
func (t *Translator) GetLanguage() Language {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentLanguage
}

// Translate translates a key in the current language
func (t *Translator) Translate(key string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if translations, ok := t.translations[t.currentLanguage]; ok {
		if text, ok := translations[key]; ok {
			return text
		}
	}

	// Fallback to English if translation not found
	if t.currentLanguage != LanguageEnglish {
		if translations, ok := t.translations[LanguageEnglish]; ok {
			if text, ok := translations[key]; ok {
				return text
			}
		}
	}

	return key
}

// TranslateWithFormat translates a key and fills {param} placeholders
func (t *Translator) TranslateWithFormat(key string, params map[string]string) string {
	text := t.Translate(key)
	for param, value := range params {
		text = strings.ReplaceAll(text, "{"+param+"}", value)
	}
	return text
}

// HasTranslation checks if a translation key exists
func (t *Translator) HasTranslation(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if translations, ok := t.translations[t.currentLanguage]; ok {
		_, ok := translations[key]
		return ok
	}
	return false
}

// State returns the message for a session state
func (t *Translator) State(s wizard.State) string {
	return t.Translate("state." + s.String())
}

// AbortReason returns the message for an abort reason
func (t *Translator) AbortReason(r wizard.AbortReason) string {
	if r == wizard.ReasonNone {
		return ""
	}
	return t.Translate("abort." + string(r))
}

// Failure returns the message for a failed device test
func (t *Translator) Failure(r measure.Reason) string {
	return t.Translate("failure." + string(r))
}

// Error returns the user facing message for err
func (t *Translator) Error(err error) string {
	if err == nil {
		return ""
	}
	return t.Translate(ErrorKey(err))
}

// ErrorKey maps an error to its message key
func ErrorKey(err error) string {
	switch {
	case errors.Is(err, wizard.ErrNoInputDevices):
		return "error.no_input_devices"
	case errors.Is(err, wizard.ErrAllDevicesFailed):
		return "error.all_devices_failed"
	case errors.Is(err, wizard.ErrAlreadyHeld):
		return "error.already_held"
	case errors.Is(err, wizard.ErrInvalidSelection):
		return "error.invalid_selection"
	case errors.Is(err, wizard.ErrSessionBusy):
		return "error.session_busy"
	case errors.Is(err, wizard.ErrSessionClosed):
		return "error.session_closed"
	case errors.Is(err, wizard.ErrSessionNotFound):
		return "error.session_not_found"
	case errors.Is(err, wizard.ErrPersist), errors.Is(err, selection.ErrIO):
		return "error.io"
	case errors.Is(err, wizard.ErrInvalidWeights):
		return "error.invalid_weights"
	}
	return "error.unknown"
}

// ValidateLanguage validates that a language is supported
func ValidateLanguage(language string) bool {
	return language == string(LanguageJapanese) || language == string(LanguageEnglish)
}

// DetectSystemLanguage picks Japanese when the locale environment asks for it
func DetectSystemLanguage() Language {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			if strings.HasPrefix(strings.ToLower(v), "ja") {
				return LanguageJapanese
			}
			return LanguageEnglish
		}
	}
	return LanguageEnglish
}

// GetSupportedLanguages returns a list of supported languages
func GetSupportedLanguages() []Language {
	return []Language{LanguageJapanese, LanguageEnglish}
}

// DefaultEnglishTranslations returns default English translations
func DefaultEnglishTranslations() map[string]string {
	return map[string]string{
		// Menu items
		"menu.calibrate": "Calibrate Microphone",
		"menu.abort":     "Abort Calibration",
		"menu.devices":   "Choose Device",
		"menu.current":   "Current: {device}",
		"menu.none":      "No device selected",
		"menu.quit":      "Quit",

		// States
		"state.preflight":   "Preparing",
		"state.enumerating": "Looking for microphones",
		"state.testing":     "Testing microphones",
		"state.scored":      "Choose a microphone",
		"state.confirmed":   "Microphone saved",
		"state.aborted":     "Calibration stopped",

		// Abort reasons
		"abort.no_input_devices":   "No microphone was found. Connect one and try again.",
		"abort.all_devices_failed": "Every microphone failed its test. Check the connections and try again.",
		"abort.cancelled":          "Calibration was cancelled.",

		// Failed device tests
		"failure.timeout":         "Timed out",
		"failure.transport_error": "Measurement service unreachable",
		"failure.device_busy":     "Device in use",

		// Errors
		"error.no_input_devices":   "No microphone was found",
		"error.all_devices_failed": "Every microphone failed its test",
		"error.already_held":       "Another calibration is already running",
		"error.invalid_selection":  "That microphone has no successful test result",
		"error.session_busy":       "The calibration is busy, try again shortly",
		"error.session_closed":     "The calibration has already finished",
		"error.session_not_found":  "Unknown calibration session",
		"error.io":                 "The selection could not be saved",
		"error.invalid_weights":    "Invalid scoring weights",
		"error.unknown":            "Unexpected error",

		// Progress
		"progress.testing":   "Testing {device}...",
		"progress.suggested": "Suggested: {device}",
		"progress.saved":     "Saved {device}",
	}
}

// DefaultJapaneseTranslations returns default Japanese translations
func DefaultJapaneseTranslations() map[string]string {
	return map[string]string{
		// Menu items
		"menu.calibrate": "マイクを調整",
		"menu.abort":     "調整を中止",
		"menu.devices":   "デバイスを選択",
		"menu.current":   "現在: {device}",
		"menu.none":      "デバイス未選択",
		"menu.quit":      "終了",

		// States
		"state.preflight":   "準備中",
		"state.enumerating": "マイクを検出中",
		"state.testing":     "マイクをテスト中",
		"state.scored":      "マイクを選択してください",
		"state.confirmed":   "マイクを保存しました",
		"state.aborted":     "調整を中止しました",

		// Abort reasons
		"abort.no_input_devices":   "マイクが見つかりません。接続してから再試行してください。",
		"abort.all_devices_failed": "すべてのマイクでテストに失敗しました。接続を確認して再試行してください。",
		"abort.cancelled":          "調整はキャンセルされました。",

		// Failed device tests
		"failure.timeout":         "タイムアウト",
		"failure.transport_error": "測定サービスに接続できません",
		"failure.device_busy":     "デバイス使用中",

		// Errors
		"error.no_input_devices":   "マイクが見つかりません",
		"error.all_devices_failed": "すべてのマイクでテストに失敗しました",
		"error.already_held":       "別の調整が実行中です",
		"error.invalid_selection":  "そのマイクには成功したテスト結果がありません",
		"error.session_busy":       "処理中です。しばらくしてから再試行してください",
		"error.session_closed":     "この調整はすでに終了しています",
		"error.session_not_found":  "不明な調整セッションです",
		"error.io":                 "選択を保存できませんでした",
		"error.invalid_weights":    "スコアの重みが不正です",
		"error.unknown":            "予期しないエラー",

		// Progress
		"progress.testing":   "{device} をテスト中...",
		"progress.suggested": "おすすめ: {device}",
		"progress.saved":     "{device} を保存しました",
	}
}
