package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Константы валидации
const (
	MinDisputeTitleLength       = 3
	MaxDisputeTitleLength       = 200
	MinDisputeDescriptionLength = 5
	MaxDisputeDescriptionLength = 5000
	MaxReasonLength             = 1000
	MaxEvidenceURLLength        = 500
	MaxEvidenceCount            = 20
	MaxEmailLength              = 254
)

var (
	emailLocalRegex  = regexp.MustCompile(`^[a-z0-9._+-]+$`)
	emailDomainRegex = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("email обязателен")
	}
	if err := ValidateLength("email", email, 0, MaxEmailLength); err != nil {
		return err
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("некорректный формат email")
	}
	localPart, domainPart := email[:at], email[at+1:]

	if !emailLocalRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}
	if !emailDomainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}
	return nil
}

// ValidateDisputeTitle проверяет название спора.
func ValidateDisputeTitle(title string) error {
	if err := ValidateNonEmpty("название спора", title); err != nil {
		return err
	}
	return ValidateLength("название спора", strings.TrimSpace(title), MinDisputeTitleLength, MaxDisputeTitleLength)
}

// ValidateDisputeDescription проверяет описание спора.
func ValidateDisputeDescription(description string) error {
	if err := ValidateNonEmpty("описание спора", description); err != nil {
		return err
	}
	return ValidateLength("описание спора", strings.TrimSpace(description), MinDisputeDescriptionLength, MaxDisputeDescriptionLength)
}

// ValidateReason проверяет причину движения средств или расторжения.
func ValidateReason(reason string) error {
	if err := ValidateNonEmpty("причина", reason); err != nil {
		return err
	}
	return ValidateLength("причина", reason, 0, MaxReasonLength)
}

// ValidateEvidenceURL проверяет ссылку на доказательство: путь к загруженному
// файлу ("/files/...") или внешний http(s) адрес.
func ValidateEvidenceURL(link string) error {
	link = strings.TrimSpace(link)
	if link == "" {
		return fmt.Errorf("ссылка на доказательство не может быть пустой")
	}
	if err := ValidateLength("ссылка на доказательство", link, 0, MaxEvidenceURLLength); err != nil {
		return err
	}

	if strings.HasPrefix(link, "/") {
		if strings.HasPrefix(link, "//") || strings.Contains(link, "..") {
			return fmt.Errorf("некорректный путь к файлу доказательства")
		}
		return nil
	}

	parsedURL, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("некорректный формат URL")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("ссылка должна начинаться с http:// или https://")
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("ссылка должна содержать доменное имя")
	}
	return nil
}

// ValidateEvidence проверяет набор доказательств.
func ValidateEvidence(links []string) error {
	if len(links) > MaxEvidenceCount {
		return fmt.Errorf("можно приложить не более %d доказательств", MaxEvidenceCount)
	}
	for _, link := range links {
		if err := ValidateEvidenceURL(link); err != nil {
			return err
		}
	}
	return nil
}
