package git

import (
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/object"
)

// AutomationTag prefixes every commit message written on behalf of the app itself.
const AutomationTag = "Mosaic:"

const (
	automationName  = "Mosaic"
	automationEmail = "mosaic@amber-app.local"
	userName        = "User"
	userEmail       = "user@amber-app.local"
)

// AutomationSignature is used for auto-commits and undo commits.
func AutomationSignature() *object.Signature {
	return &object.Signature{
		Name:  automationName,
		Email: automationEmail,
		When:  time.Now(),
	}
}

// UserSignature is used for every commit the user asked for explicitly.
func UserSignature() *object.Signature {
	return &object.Signature{
		Name:  userName,
		Email: userEmail,
		When:  time.Now(),
	}
}

// IsAutomationMessage reports whether a commit message carries the automation tag.
func IsAutomationMessage(msg string) bool {
	return strings.HasPrefix(msg, AutomationTag)
}

func automationMessage(msg string, now time.Time) string {
	return AutomationTag + " " + msg + " (" + now.Format("2006-01-02 15:04") + ")"
}
