package services

import "golang.org/x/text/language"

const DefaultDeletedPlaceholder = "This message was deleted"

var (
	placeholderTags = []language.Tag{
		language.English,
		language.German,
		language.Spanish,
		language.French,
		language.Arabic,
	}
	placeholderMatcher = language.NewMatcher(placeholderTags)

	deletedPlaceholders = map[language.Tag]string{
		language.English: DefaultDeletedPlaceholder,
		language.German:  "Diese Nachricht wurde gelöscht",
		language.Spanish: "Este mensaje fue eliminado",
		language.French:  "Ce message a été supprimé",
		language.Arabic:  "تم حذف هذه الرسالة",
	}
)

// DeletedPlaceholder picks the deleted-message text for an Accept-Language
// header value, falling back to English.
func DeletedPlaceholder(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultDeletedPlaceholder
	}
	_, index, confidence := placeholderMatcher.Match(tags...)
	if confidence == language.No {
		return DefaultDeletedPlaceholder
	}
	return deletedPlaceholders[placeholderTags[index]]
}
