package mailer

import (
	"errors"
	"html"
	"net/url"
	"strconv"
	"strings"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// UnsubscribePlaceholder may appear in issue HTML or text; it is replaced by
// the recipient's unsubscribe URL. Content without it gets a footer link.
const UnsubscribePlaceholder = "{{unsubscribe_url}}"

// ErrNoContent is returned when an issue has nothing to render.
var ErrNoContent = errors.New("issue has no content")

// Renderer personalizes issue content per recipient and adds the RFC 8058
// one-click unsubscribe headers.
type Renderer struct {
	// BaseURL is the public origin hosting the one-click endpoint,
	// e.g. "https://news.example.com".
	BaseURL string
	// Mailto is an optional address added as a second List-Unsubscribe target.
	Mailto string
}

// UnsubscribeURL builds the one-click URL for a user and subject.
func (r Renderer) UnsubscribeURL(userID string, subjectID uint, issueID uint, seq int) string {
	q := url.Values{}
	q.Set("user", userID)
	q.Set("subject", strconv.FormatUint(uint64(subjectID), 10))
	q.Set("issue", strconv.FormatUint(uint64(issueID), 10))
	if seq > 0 {
		q.Set("seq", strconv.Itoa(seq))
	}
	return strings.TrimRight(r.BaseURL, "/") + "/unsubscribe?" + q.Encode()
}

// Render builds the message for one user. subjectID and seq identify the
// newsletter line and position the issue was sent at.
func (r Renderer) Render(user domain.User, issue *domain.Issue, subjectID uint, seq int) (Message, error) {
	if !issue.HasContent() {
		return Message{}, ErrNoContent
	}
	c := issue.Content.Data()
	unsub := r.UnsubscribeURL(user.ID, subjectID, issue.ID, seq)

	subject := c.Subject
	if strings.TrimSpace(subject) == "" {
		subject = issue.Title
	}

	listUnsub := "<" + unsub + ">"
	if r.Mailto != "" {
		listUnsub += ", <mailto:" + r.Mailto + "?subject=unsubscribe>"
	}

	return Message{
		UserID:  user.ID,
		To:      user.Email,
		Subject: subject,
		HTML:    injectHTML(c.HTML, unsub),
		Text:    injectText(c.Text, unsub),
		Headers: map[string]string{
			"List-Unsubscribe":      listUnsub,
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		},
	}, nil
}

func injectHTML(body, unsub string) string {
	if body == "" {
		return ""
	}
	escaped := html.EscapeString(unsub)
	if strings.Contains(body, UnsubscribePlaceholder) {
		return strings.ReplaceAll(body, UnsubscribePlaceholder, escaped)
	}
	footer := `<p style="font-size:12px;color:#888"><a href="` + escaped + `">Unsubscribe</a></p>`
	if i := strings.LastIndex(strings.ToLower(body), "</body>"); i >= 0 {
		return body[:i] + footer + body[i:]
	}
	return body + footer
}

func injectText(body, unsub string) string {
	if body == "" {
		return ""
	}
	if strings.Contains(body, UnsubscribePlaceholder) {
		return strings.ReplaceAll(body, UnsubscribePlaceholder, unsub)
	}
	return strings.TrimRight(body, "\n") + "\n\n--\nUnsubscribe: " + unsub + "\n"
}
